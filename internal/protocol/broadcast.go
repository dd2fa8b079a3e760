package protocol

// BroadcastMessage is a routed outbound frame handed to the hub.
type BroadcastMessage struct {
	Data []byte   // Encoded frame
	To   []string // Target client IDs (empty means everyone)
}

// NewBroadcast creates a broadcast for specific targets; no targets means all
func NewBroadcast(data []byte, targets ...string) *BroadcastMessage {
	return &BroadcastMessage{
		Data: data,
		To:   targets,
	}
}

// IsGlobal returns true if every connected client should receive this
func (bm *BroadcastMessage) IsGlobal() bool {
	return len(bm.To) == 0
}

// HasTarget checks if a specific client ID is targeted
func (bm *BroadcastMessage) HasTarget(clientID string) bool {
	if bm.IsGlobal() {
		return true
	}

	for _, target := range bm.To {
		if target == clientID {
			return true
		}
	}
	return false
}
