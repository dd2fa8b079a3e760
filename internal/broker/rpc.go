package broker

import (
	"encoding/json"
	"fmt"
	"time"
)

// Broker RPC method names. Requests and responses share an id; the broker
// answers auth_request with an auth_challenge, everything else echoes the
// request method or reports "error". bu and cu are unsolicited pushes for
// balance and channel updates.
const (
	methodAuthRequest       = "auth_request"
	methodAuthChallenge     = "auth_challenge"
	methodAuthVerify        = "auth_verify"
	methodGetChannels       = "get_channels"
	methodCreateChannel     = "create_channel"
	methodResizeChannel     = "resize_channel"
	methodGetLedgerBalances = "get_ledger_balances"
	methodTransfer          = "transfer"
	methodError             = "error"
	methodBalanceUpdate     = "bu"
	methodChannelUpdate     = "cu"
)

// envelope is the outer frame: exactly one of req or res carries a call
// body, sig holds hex signatures over those exact bytes.
type envelope struct {
	Req json.RawMessage `json:"req,omitempty"`
	Res json.RawMessage `json:"res,omitempty"`
	Sig []string        `json:"sig"`
}

// rpcMessage is a decoded call body, the positional array
// [id, method, payload, timestamp]. Payload is the params object on
// requests and the result object on responses.
type rpcMessage struct {
	ID      uint64
	Method  string
	Payload json.RawMessage
	Ts      uint64
}

func encodeCall(id uint64, method string, payload interface{}) ([]byte, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", method, err)
	}

	methodJSON, _ := json.Marshal(method)
	parts := []json.RawMessage{
		json.RawMessage(fmt.Sprintf("%d", id)),
		methodJSON,
		payloadJSON,
		json.RawMessage(fmt.Sprintf("%d", nowMillis())),
	}
	return json.Marshal(parts)
}

func decodeCall(body []byte) (*rpcMessage, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(body, &parts); err != nil {
		return nil, fmt.Errorf("failed to parse call body: %w", err)
	}
	if len(parts) != 4 {
		return nil, fmt.Errorf("call body has %d elements, want 4", len(parts))
	}

	var m rpcMessage
	if err := json.Unmarshal(parts[0], &m.ID); err != nil {
		return nil, fmt.Errorf("failed to parse call id: %w", err)
	}
	if err := json.Unmarshal(parts[1], &m.Method); err != nil {
		return nil, fmt.Errorf("failed to parse call method: %w", err)
	}
	m.Payload = parts[2]
	if err := json.Unmarshal(parts[3], &m.Ts); err != nil {
		return nil, fmt.Errorf("failed to parse call timestamp: %w", err)
	}
	return &m, nil
}

// resultError maps an error-tagged response onto a Go error.
func resultError(m *rpcMessage) error {
	if m.Method != methodError {
		return nil
	}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(m.Payload, &body); err != nil || body.Error == "" {
		return fmt.Errorf("broker error")
	}
	return fmt.Errorf("broker error: %s", body.Error)
}

func nowMillis() uint64 {
	return uint64(time.Now().UnixMilli())
}
