// Package config loads the engine's runtime configuration from the
// environment. Every knob has a default that works for local development;
// external systems (Postgres, Redis, Kafka, the wallet service) are
// enabled by setting their URL.
package config

import (
	"log/slog"
	"os"
	"time"

	"github.com/shopspring/decimal"
)

// Config carries the environment-driven parameters of the engine.
type Config struct {
	Port string

	DatabaseURL  string // empty: in-memory store
	RedisURL     string // empty: no cache, no cross-instance bridge
	KafkaBrokers string // empty: no downstream mirror, "a:9092,b:9092"
	WalletURL    string // empty: in-memory ledger

	MinBet decimal.Decimal
	MaxBet decimal.Decimal

	HeartbeatInterval time.Duration
	RoomTTL           time.Duration
	RoomSweepInterval time.Duration
	CacheTTL          time.Duration
}

// Load reads the environment and applies defaults.
func Load() Config {
	return Config{
		Port: getEnv("PORT", "8080"),

		DatabaseURL:  getEnv("DATABASE_URL", ""),
		RedisURL:     getEnv("REDIS_URL", ""),
		KafkaBrokers: getEnv("KAFKA_BROKERS", ""),
		WalletURL:    getEnv("WALLET_URL", ""),

		MinBet: getDecimal("MIN_BET", decimal.NewFromInt(1)),
		MaxBet: getDecimal("MAX_BET", decimal.NewFromInt(10000)),

		HeartbeatInterval: getDuration("HEARTBEAT_INTERVAL", 15*time.Second),
		RoomTTL:           getDuration("ROOM_TTL", 10*time.Minute),
		RoomSweepInterval: getDuration("ROOM_SWEEP_INTERVAL", time.Minute),
		CacheTTL:          getDuration("CACHE_TTL", 30*time.Second),
	}
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func getDecimal(key string, def decimal.Decimal) decimal.Decimal {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		slog.Warn("invalid decimal, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}
