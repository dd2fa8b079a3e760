package game

import (
	"time"

	"github.com/JustAnotherDevv/EthGlobalGame-sub000/internal/config"
)

// Rules are the tunables a room enforces. Tests construct them directly
// with millisecond timers; production builds them from the environment.
type Rules struct {
	MinPlayers int
	MaxPlayers int

	WagerAmount   float64
	Asset         string
	ServerAddress string

	Countdown           time.Duration
	HarvestDuration     time.Duration
	DigDuration         time.Duration
	GameTimeout         time.Duration
	SyncInterval        time.Duration
	PositionMinInterval time.Duration
	EndGrace            time.Duration

	ChestFindRadius  float64
	HarvestProximity float64
	MaxSpeed         float64
	SpeedTolerance   float64
	MapRevealRadius  float64

	// Seed pins every room to one map when non-zero; zero draws a fresh
	// seed per room.
	Seed uint32
}

// RulesFromConfig maps the environment onto room rules. serverAddress is
// the wallet address clients stake toward, derived after key load.
func RulesFromConfig(cfg *config.Config, serverAddress string) Rules {
	return Rules{
		MinPlayers: cfg.MinPlayers,
		MaxPlayers: cfg.MaxPlayers,

		WagerAmount:   cfg.WagerAmount,
		Asset:         cfg.Asset,
		ServerAddress: serverAddress,

		Countdown:           time.Duration(cfg.CountdownMs) * time.Millisecond,
		HarvestDuration:     time.Duration(cfg.HarvestDurationMs) * time.Millisecond,
		DigDuration:         time.Duration(cfg.DigDurationMs) * time.Millisecond,
		GameTimeout:         time.Duration(cfg.GameTimeoutMs) * time.Millisecond,
		SyncInterval:        time.Duration(cfg.SyncRateMs) * time.Millisecond,
		PositionMinInterval: time.Duration(cfg.PositionMinIntervalMs) * time.Millisecond,
		EndGrace:            10 * time.Second,

		ChestFindRadius:  cfg.ChestFindRadius,
		HarvestProximity: cfg.HarvestProximity,
		MaxSpeed:         cfg.MaxSpeed,
		SpeedTolerance:   cfg.SpeedTolerance,
		MapRevealRadius:  cfg.MapRevealRadius,

		Seed: cfg.GameSeed,
	}
}
