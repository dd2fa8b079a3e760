package game

import (
	"time"

	"github.com/JustAnotherDevv/EthGlobalGame-sub000/internal/protocol"
	"github.com/ethereum/go-ethereum/common"
)

type ActionKind int

const (
	ActionIdle ActionKind = iota
	ActionHarvesting
	ActionDigging
)

func (a ActionKind) String() string {
	switch a {
	case ActionIdle:
		return "idle"
	case ActionHarvesting:
		return "harvesting"
	case ActionDigging:
		return "digging"
	default:
		return "unknown"
	}
}

// PlayerSession is the connection-bound state for one player. ID is fixed
// at creation and Address is written by the gateway before each join;
// every other field is owned by the room's event loop while the session
// is in a room, and nothing else may touch them.
type PlayerSession struct {
	ID      string
	Address string
	RoomID  string

	Position   protocol.Vec3
	LastMoveAt time.Time

	Ready     bool
	Wagered   bool
	Connected bool

	CurrentAction   ActionKind
	ActionTarget    string        // resource id while harvesting
	DigPosition     protocol.Vec3 // dig site while digging
	ActionStartedAt time.Time
	ActionDeadline  time.Time

	Inventory Inventory
	Upgrades  Upgrades
}

func NewSession(id, address string) *PlayerSession {
	return &PlayerSession{
		ID:        id,
		Address:   address,
		Connected: true,
		Upgrades:  DeriveUpgrades(Inventory{}, Upgrades{}),
	}
}

// Addr parses the player's wallet address for settlement calls.
func (s *PlayerSession) Addr() common.Address {
	return common.HexToAddress(s.Address)
}

// Busy reports whether an action timer is outstanding for this session.
func (s *PlayerSession) Busy() bool {
	return s.CurrentAction != ActionIdle
}

// resetForRoom clears per-match state when the session enters a room, so
// inventory and upgrades never leak between matches on one connection.
func (s *PlayerSession) resetForRoom(roomID string) {
	s.RoomID = roomID
	s.Position = protocol.Vec3{}
	s.LastMoveAt = time.Time{}
	s.Ready = false
	s.Wagered = false
	s.DigPosition = protocol.Vec3{}
	s.Inventory = Inventory{}
	s.Upgrades = DeriveUpgrades(Inventory{}, Upgrades{})
	s.clearAction()
}

// clearAction flips the session back to idle. The scheduler timer is the
// caller's problem; this only resets the bookkeeping.
func (s *PlayerSession) clearAction() {
	s.CurrentAction = ActionIdle
	s.ActionTarget = ""
	s.ActionStartedAt = time.Time{}
	s.ActionDeadline = time.Time{}
}

// Snapshot renders the session for RoomJoined and PlayersSync frames.
func (s *PlayerSession) Snapshot() protocol.PlayerSnapshot {
	return protocol.PlayerSnapshot{
		ID:        s.ID,
		Address:   s.Address,
		Position:  s.Position,
		Action:    s.CurrentAction.String(),
		Connected: s.Connected,
		Ready:     s.Ready,
		Wagered:   s.Wagered,
		Inventory: s.Inventory.State(),
		Upgrades:  s.Upgrades.State(),
	}
}
