package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DatabaseURL string
	LogLevel    string

	// Presence tuning. The timeout must stay a small multiple of the
	// client heartbeat interval (5s) to tolerate jitter.
	PresenceTimeout time.Duration
	PresenceSweep   time.Duration

	// Cadence of the room_state_sync reconciliation broadcast.
	SyncInterval time.Duration

	// Rooms idle longer than this are torn down by the registry sweep.
	RoomIdleTTL time.Duration

	// Admission control thresholds.
	HighTrafficRooms   int
	CriticalRooms      int
	HighTrafficClients int
	CriticalClients    int
	RetryAfterSecs     int
}

func Load() Config {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	return Config{
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		PresenceTimeout:    getEnvDuration("PRESENCE_TIMEOUT", 30*time.Second),
		PresenceSweep:      getEnvDuration("PRESENCE_SWEEP_INTERVAL", 5*time.Second),
		SyncInterval:       getEnvDuration("SYNC_INTERVAL", 10*time.Second),
		RoomIdleTTL:        getEnvDuration("ROOM_IDLE_TTL", time.Hour),
		HighTrafficRooms:   getEnvInt("HIGH_TRAFFIC_ROOMS", 500),
		CriticalRooms:      getEnvInt("CRITICAL_ROOMS", 1000),
		HighTrafficClients: getEnvInt("HIGH_TRAFFIC_CLIENTS", 2000),
		CriticalClients:    getEnvInt("CRITICAL_CLIENTS", 4000),
		RetryAfterSecs:     getEnvInt("TRAFFIC_RETRY_AFTER", 30),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
