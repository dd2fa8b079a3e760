package protocol

// Vec3 is a world position in meters. Y is elevation and advisory only;
// the server validates movement horizontally.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// InventoryState is a player's harvested totals.
type InventoryState struct {
	Wood  int `json:"wood"`
	Stone int `json:"stone"`
	Berry int `json:"berry"`
}

// UpgradeState is the derived modifier set a client applies locally.
type UpgradeState struct {
	SpeedMultiplier  float64 `json:"speedMultiplier"`
	DigMultiplier    float64 `json:"digMultiplier"`
	DigUpgradesTaken int     `json:"digUpgradesTaken"`
	HasMap           bool    `json:"hasMap"`
}

// ResourceState describes one harvestable placement.
type ResourceState struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Position  Vec3   `json:"position"`
	Harvested bool   `json:"harvested"`
}

// PlayerSnapshot is the per-player view carried by RoomJoined and PlayersSync.
type PlayerSnapshot struct {
	ID        string         `json:"id"`
	Address   string         `json:"address"`
	Position  Vec3           `json:"position"`
	Action    string         `json:"action"`
	Connected bool           `json:"connected"`
	Ready     bool           `json:"ready"`
	Wagered   bool           `json:"wagered"`
	Inventory InventoryState `json:"inventory"`
	Upgrades  UpgradeState   `json:"upgrades"`
}

// JoinRoomPayload asks the matchmaker for a lobby seat
type JoinRoomPayload struct {
	Address string `json:"address"`
}

// PositionUpdatePayload reports the client's new position
type PositionUpdatePayload struct {
	Position Vec3 `json:"position"`
}

// StartHarvestPayload begins harvesting a resource
type StartHarvestPayload struct {
	ResourceID string `json:"resourceId"`
}

// StartDigPayload begins digging at a position
type StartDigPayload struct {
	Position Vec3 `json:"position"`
}

// PingPayload for connection health check
type PingPayload struct {
	T int64 `json:"t"`
}

// RoomJoinedPayload confirms room membership to the joining client
type RoomJoinedPayload struct {
	RoomID   string           `json:"roomId"`
	PlayerID string           `json:"playerId"`
	Phase    string           `json:"phase"`
	Players  []PlayerSnapshot `json:"players"`
}

// WagerRequiredPayload tells a client what to stake and where
type WagerRequiredPayload struct {
	Amount        float64 `json:"amount"`
	ServerAddress string  `json:"serverAddress"`
	Asset         string  `json:"asset"`
}

// WagerAcceptedPayload announces a recorded stake
type WagerAcceptedPayload struct {
	PlayerID string  `json:"playerId"`
	Amount   float64 `json:"amount"`
}

// GameStartingPayload announces the countdown before play
type GameStartingPayload struct {
	Countdown int64 `json:"countdown"`
}

// GameStartedPayload carries the seed and the resource field. Clients
// regenerate the island from the seed; no geometry crosses the wire.
type GameStartedPayload struct {
	Seed      uint32          `json:"seed"`
	Resources []ResourceState `json:"resources"`
}

// PlayerMovedPayload broadcasts an accepted position update
type PlayerMovedPayload struct {
	PlayerID string `json:"playerId"`
	Position Vec3   `json:"position"`
}

// PlayersSyncPayload is the periodic room snapshot
type PlayersSyncPayload struct {
	Players []PlayerSnapshot `json:"players"`
}

// HarvestStartedPayload announces a harvest in progress
type HarvestStartedPayload struct {
	PlayerID   string `json:"playerId"`
	ResourceID string `json:"resourceId"`
}

// HarvestCompletePayload announces a finished harvest and its effects
type HarvestCompletePayload struct {
	PlayerID     string         `json:"playerId"`
	ResourceID   string         `json:"resourceId"`
	ResourceType string         `json:"resourceType"`
	Inventory    InventoryState `json:"inventory"`
	Upgrades     UpgradeState   `json:"upgrades"`
}

// DigStartedPayload announces a dig in progress
type DigStartedPayload struct {
	PlayerID string `json:"playerId"`
	Position Vec3   `json:"position"`
}

// DigCompletePayload announces a dig that missed
type DigCompletePayload struct {
	PlayerID string `json:"playerId"`
	Found    bool   `json:"found"`
}

// ChestFoundPayload announces the winning dig and reveals the chest
type ChestFoundPayload struct {
	PlayerID string `json:"playerId"`
	Position Vec3   `json:"position"`
}

// UpgradeUnlockedPayload announces a newly reached upgrade tier
type UpgradeUnlockedPayload struct {
	PlayerID string `json:"playerId"`
	Upgrade  string `json:"upgrade"`
}

// MapRevealedPayload is the unicast treasure-map hint: the chest lies
// within radius of center.
type MapRevealedPayload struct {
	Center Vec3    `json:"center"`
	Radius float64 `json:"radius"`
}

// GameEndedPayload is the final gameplay broadcast of a room
type GameEndedPayload struct {
	WinnerID *string `json:"winnerId"`
	Reason   string  `json:"reason"`
}

// PayoutCompletePayload reports the settlement outcome
type PayoutCompletePayload struct {
	WinnerID *string `json:"winnerId"`
	Amount   float64 `json:"amount"`
}

// PlayerLeftPayload announces a departed member
type PlayerLeftPayload struct {
	PlayerID string `json:"playerId"`
}

// ErrorPayload carries a per-message rejection
type ErrorPayload struct {
	Message string `json:"message"`
}

// PongPayload echoes a ping timestamp
type PongPayload struct {
	T int64 `json:"t"`
}
