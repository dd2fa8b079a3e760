package protocol

import (
	"encoding/json"
	"time"
)

type MessageType string

// Client to server messages.
const (
	TypeJoinRoom       MessageType = "JoinRoom"
	TypeLeaveRoom      MessageType = "LeaveRoom"
	TypeWagerConfirmed MessageType = "WagerConfirmed"
	TypeReady          MessageType = "Ready"
	TypePositionUpdate MessageType = "PositionUpdate"
	TypeStartHarvest   MessageType = "StartHarvest"
	TypeStartDig       MessageType = "StartDig"
	TypeCancelHarvest  MessageType = "CancelHarvest"
	TypeCancelDig      MessageType = "CancelDig"
	TypePing           MessageType = "Ping"
)

// Server to client messages.
const (
	TypeRoomJoined      MessageType = "RoomJoined"
	TypeWagerRequired   MessageType = "WagerRequired"
	TypeWagerAccepted   MessageType = "WagerAccepted"
	TypeGameStarting    MessageType = "GameStarting"
	TypeGameStarted     MessageType = "GameStarted"
	TypePlayerMoved     MessageType = "PlayerMoved"
	TypePlayersSync     MessageType = "PlayersSync"
	TypeHarvestStarted  MessageType = "HarvestStarted"
	TypeHarvestComplete MessageType = "HarvestComplete"
	TypeDigStarted      MessageType = "DigStarted"
	TypeDigComplete     MessageType = "DigComplete"
	TypeChestFound      MessageType = "ChestFound"
	TypeUpgradeUnlocked MessageType = "UpgradeUnlocked"
	TypeMapRevealed     MessageType = "MapRevealed"
	TypeGameEnded       MessageType = "GameEnded"
	TypePayoutComplete  MessageType = "PayoutComplete"
	TypePlayerLeft      MessageType = "PlayerLeft"
	TypeError           MessageType = "Error"
	TypePong            MessageType = "Pong"
)

// Message is the frame exchanged on the wire in both directions. Client
// frames omit the timestamp; the server stamps everything it sends.
type Message struct {
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a message with the given type and payload
func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	var data json.RawMessage
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		data = encoded
	}

	return &Message{
		Type:      msgType,
		Payload:   data,
		Timestamp: time.Now(),
	}, nil
}

// Encode marshals a complete frame ready for the transport.
func Encode(msgType MessageType, payload interface{}) ([]byte, error) {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

// MarshalJSON custom marshaller to format timestamp
func (m *Message) MarshalJSON() ([]byte, error) {
	type Alias Message
	return json.Marshal(&struct {
		*Alias
		Timestamp string `json:"timestamp"`
	}{
		Alias:     (*Alias)(m),
		Timestamp: m.Timestamp.UTC().Format(time.RFC3339Nano),
	})
}

// UnmarshalJSON custom unmarshaller to parse timestamp
func (m *Message) UnmarshalJSON(data []byte) error {
	type Alias Message
	aux := &struct {
		*Alias
		Timestamp string `json:"timestamp"`
	}{
		Alias: (*Alias)(m),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.Timestamp != "" {
		timestamp, err := time.Parse(time.RFC3339Nano, aux.Timestamp)
		if err == nil {
			m.Timestamp = timestamp
		}
	}

	return nil
}
