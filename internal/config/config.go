package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	// Gateway
	GamePort string

	// Wallet and broker
	PrivateKey         string
	BrokerWSURL        string
	TokenAddress       string
	CustodyAddress     string
	AdjudicatorAddress string
	ChainID            int64
	RPCURL             string
	Asset              string
	ChannelCollateral  float64

	// Wager
	WagerAmount float64
	JournalPath string

	// Room rules
	MinPlayers            int
	MaxPlayers            int
	CountdownMs           int
	HarvestDurationMs     int
	DigDurationMs         int
	GameTimeoutMs         int
	SyncRateMs            int
	PositionMinIntervalMs int
	ChestFindRadius       float64
	HarvestProximity      float64
	MaxSpeed              float64
	SpeedTolerance        float64
	MapRevealRadius       float64
	GameSeed              uint32
}

func (c *Config) GameAddr() string {
	return ":" + c.GamePort
}

func LoadFromEnv() *Config {
	cfg := &Config{
		GamePort: getEnv("GAME_PORT", "3002"),

		PrivateKey:         getEnv("PRIVATE_KEY", ""),
		BrokerWSURL:        getEnv("YELLOW_WS_URL", "wss://clearnet-sandbox.yellow.com/ws"),
		TokenAddress:       getEnv("YELLOW_TOKEN", ""),
		CustodyAddress:     getEnv("YELLOW_CUSTODY", ""),
		AdjudicatorAddress: getEnv("YELLOW_ADJUDICATOR", ""),
		ChainID:            getEnvInt64("YELLOW_CHAIN_ID", 80002),
		RPCURL:             getEnv("RPC_URL", ""),
		Asset:              getEnv("YELLOW_ASSET", "ytest.usd"),
		ChannelCollateral:  getEnvFloat("CHANNEL_COLLATERAL", 100),

		WagerAmount: getEnvFloat("WAGER_AMOUNT", 5),
		JournalPath: getEnv("AUDIT_JOURNAL", "data/settlement-failures.jsonl"),

		MinPlayers:            getEnvInt("MIN_PLAYERS", 2),
		MaxPlayers:            getEnvInt("MAX_PLAYERS", 8),
		CountdownMs:           getEnvInt("COUNTDOWN_MS", 10000),
		HarvestDurationMs:     getEnvInt("HARVEST_DURATION_MS", 3000),
		DigDurationMs:         getEnvInt("DIG_DURATION_MS", 3000),
		GameTimeoutMs:         getEnvInt("GAME_TIMEOUT_MS", 1800000),
		SyncRateMs:            getEnvInt("SYNC_BROADCAST_RATE_MS", 100),
		PositionMinIntervalMs: getEnvInt("POSITION_MIN_INTERVAL_MS", 50),
		ChestFindRadius:       getEnvFloat("CHEST_FIND_RADIUS", 2.0),
		HarvestProximity:      getEnvFloat("HARVEST_PROXIMITY", 5.0),
		MaxSpeed:              getEnvFloat("MAX_SPEED", 40),
		SpeedTolerance:        getEnvFloat("SPEED_TOLERANCE", 1.5),
		MapRevealRadius:       getEnvFloat("MAP_REVEAL_RADIUS", 30),
		GameSeed:              getEnvUint32("GAME_SEED", 0),
	}
	return cfg
}

// Validate reports fatal configuration problems. The server refuses to
// start without a wallet key; everything else has a workable default.
func (c *Config) Validate() error {
	if c.PrivateKey == "" {
		return fmt.Errorf("PRIVATE_KEY is required")
	}
	if c.WagerAmount <= 0 {
		return fmt.Errorf("WAGER_AMOUNT must be positive, got %v", c.WagerAmount)
	}
	if c.MinPlayers < 1 {
		return fmt.Errorf("MIN_PLAYERS must be at least 1, got %d", c.MinPlayers)
	}
	if c.MaxPlayers < c.MinPlayers {
		return fmt.Errorf("MAX_PLAYERS %d is below MIN_PLAYERS %d", c.MaxPlayers, c.MinPlayers)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.ParseInt(val, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if floatVal, err := strconv.ParseFloat(val, 64); err == nil {
			return floatVal
		}
	}
	return defaultVal
}

func getEnvUint32(key string, defaultVal uint32) uint32 {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.ParseUint(val, 10, 32); err == nil {
			return uint32(intVal)
		}
	}
	return defaultVal
}
