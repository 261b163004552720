package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`{}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("port = %d, want 8000", cfg.Server.Port)
	}
	if got := cfg.Ecosystem.BreathPeriod(); got != 9*time.Second {
		t.Errorf("breath period = %v, want 9s", got)
	}
	if got := cfg.Ecosystem.MandateFraction(); got != 0.15 {
		t.Errorf("mandate = %v, want 0.15", got)
	}
	if cfg.Ecosystem.PoolField != "value" {
		t.Errorf("pool field = %q", cfg.Ecosystem.PoolField)
	}
	if got := cfg.Ecosystem.LatencyBudget(); got != 9*time.Second {
		t.Errorf("latency budget = %v", got)
	}
	if got := cfg.Ecosystem.TickInterval(); got != time.Second {
		t.Errorf("tick = %v", got)
	}
	if cfg.Gateway.WebSocket.HeartbeatSeconds != 30 {
		t.Errorf("heartbeat = %d", cfg.Gateway.WebSocket.HeartbeatSeconds)
	}
	if cfg.Server.MigrationsDir != "migrations" {
		t.Errorf("migrations dir = %q", cfg.Server.MigrationsDir)
	}
}

func TestEnvSubstitution(t *testing.T) {
	t.Setenv("NEXUS_TEST_PORT", "9100")
	t.Setenv("NEXUS_TEST_DSN", "")

	cfg, err := Parse([]byte(`{
		"server": {"port": ${NEXUS_TEST_PORT:8000}},
		"database": {"postgres": {"dsn": "${NEXUS_TEST_DSN:postgres://localhost/nexus}"}},
		"ecosystem": {"pool_field": "${NEXUS_TEST_UNSET}"}
	}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("port = %d, want 9100", cfg.Server.Port)
	}
	if cfg.Database.Postgres.DSN != "postgres://localhost/nexus" {
		t.Errorf("dsn = %q", cfg.Database.Postgres.DSN)
	}
	// unset without default resolves to empty, then the default applies
	if cfg.Ecosystem.PoolField != "value" {
		t.Errorf("pool field = %q", cfg.Ecosystem.PoolField)
	}
}

func TestSchemaRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"mandate over 100": `{"ecosystem": {"care_mandate_percent": 150}}`,
		"port type":        `{"server": {"port": "eighty"}}`,
		"log level":        `{"server": {"log_level": "loud"}}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), "invalid config") {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestLoadShippedConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "nexus.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.Redis.StreamKey != "nexus:events" {
		t.Errorf("stream key = %q", cfg.Database.Redis.StreamKey)
	}
	if cfg.Database.Qdrant.Collection == "" {
		t.Error("qdrant collection should be set")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("want not-exist error, got %v", err)
	}
}
