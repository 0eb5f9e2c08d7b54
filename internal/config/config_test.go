package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PRESENCE_TIMEOUT", "")

	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want %q", cfg.Port, "8080")
	}
	if cfg.DatabaseURL != "" {
		t.Errorf("DatabaseURL = %q, want %q", cfg.DatabaseURL, "")
	}
	if cfg.PresenceTimeout != 30*time.Second {
		t.Errorf("PresenceTimeout = %v, want %v", cfg.PresenceTimeout, 30*time.Second)
	}
	if cfg.SyncInterval != 10*time.Second {
		t.Errorf("SyncInterval = %v, want %v", cfg.SyncInterval, 10*time.Second)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("PORT", "3000")
	t.Setenv("DATABASE_URL", "postgres://localhost/cardparty")
	t.Setenv("PRESENCE_TIMEOUT", "45s")
	t.Setenv("CRITICAL_ROOMS", "50")

	cfg := Load()

	if cfg.Port != "3000" {
		t.Errorf("Port = %q, want %q", cfg.Port, "3000")
	}
	if cfg.DatabaseURL != "postgres://localhost/cardparty" {
		t.Errorf("DatabaseURL = %q, want %q", cfg.DatabaseURL, "postgres://localhost/cardparty")
	}
	if cfg.PresenceTimeout != 45*time.Second {
		t.Errorf("PresenceTimeout = %v, want %v", cfg.PresenceTimeout, 45*time.Second)
	}
	if cfg.CriticalRooms != 50 {
		t.Errorf("CriticalRooms = %d, want %d", cfg.CriticalRooms, 50)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("PRESENCE_TIMEOUT", "soon")
	t.Setenv("HIGH_TRAFFIC_ROOMS", "many")

	cfg := Load()

	if cfg.PresenceTimeout != 30*time.Second {
		t.Errorf("PresenceTimeout = %v, want %v (fallback)", cfg.PresenceTimeout, 30*time.Second)
	}
	if cfg.HighTrafficRooms != 500 {
		t.Errorf("HighTrafficRooms = %d, want %d (fallback)", cfg.HighTrafficRooms, 500)
	}
}
