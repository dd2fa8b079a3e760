package protocol

// Room phases as they appear on the wire
const (
	PhaseLobby   = "lobby"
	PhasePlaying = "playing"
	PhaseEnded   = "ended"
)

// Player action states carried in snapshots
const (
	ActionIdle       = "idle"
	ActionHarvesting = "harvesting"
	ActionDigging    = "digging"
)

// End-of-game reasons
const (
	ReasonChestFound = "chest_found"
	ReasonTimeout    = "timeout"
	ReasonAbandoned  = "abandoned"
)

// Upgrade kinds announced by UpgradeUnlocked
const (
	UpgradeSpeed    = "speed"
	UpgradeDigSpeed = "dig_speed"
	UpgradeMap      = "map"
)

// Error texts the client matches on
const (
	ErrTextTooFast         = "Moving too fast"
	ErrTextInvalidResource = "Invalid resource"
	ErrTextTooFar          = "Too far away"
	ErrTextNotInRoom       = "Not in a room"
	ErrTextAlreadyInRoom   = "Already in a room"
	ErrTextBusy            = "Already performing an action"
	ErrTextWrongPhase      = "Not available in this phase"
	ErrTextOffIsland       = "Cannot dig in water"
	ErrTextUnknownType     = "Unknown message type"
	ErrTextBadPayload      = "Malformed payload"
	ErrTextBadAddress      = "Invalid wallet address"
	ErrTextJoinFailed      = "Unable to join room"
)
