package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var schemaJSON string

// Config is the top-level configuration structure.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Ecosystem EcosystemConfig `json:"ecosystem"`
	API       APIConfig       `json:"api"`
	Gateway   GatewayConfig   `json:"gateway"`
	Database  DatabaseConfig  `json:"database"`
	Export    ExportConfig    `json:"export"`
}

type ServerConfig struct {
	Port            int    `json:"port"`
	LogLevel        string `json:"log_level"`
	ShutdownSeconds int    `json:"shutdown_seconds"`
	MigrationsDir   string `json:"migrations_dir"`
}

// EcosystemConfig tunes the hypercube and the breath cycle.
type EcosystemConfig struct {
	BreathCycleSeconds float64 `json:"breath_cycle_seconds"`
	CareMandatePercent float64 `json:"care_mandate_percent"`
	PoolField          string  `json:"pool_field"`
	LatencyBudgetMs    int     `json:"latency_budget_ms"`
	TickMs             int     `json:"tick_ms"`
}

// BreathPeriod returns the breath cycle length.
func (e EcosystemConfig) BreathPeriod() time.Duration {
	return time.Duration(e.BreathCycleSeconds * float64(time.Second))
}

// MandateFraction converts the percentage into a fraction.
func (e EcosystemConfig) MandateFraction() float64 {
	return e.CareMandatePercent / 100
}

// LatencyBudget returns the advisory query budget.
func (e EcosystemConfig) LatencyBudget() time.Duration {
	return time.Duration(e.LatencyBudgetMs) * time.Millisecond
}

// TickInterval returns the clock tick interval.
func (e EcosystemConfig) TickInterval() time.Duration {
	return time.Duration(e.TickMs) * time.Millisecond
}

type APIConfig struct {
	RateLimitPerSec float64  `json:"rate_limit_per_sec"`
	Burst           int      `json:"burst"`
	CORSOrigins     []string `json:"cors_origins"`
	MaxBodyBytes    int64    `json:"max_body_bytes"`
}

type GatewayConfig struct {
	WebSocket WebSocketGatewayConfig `json:"websocket"`
	Slack     SlackGatewayConfig     `json:"slack"`
	Discord   DiscordGatewayConfig   `json:"discord"`
}

type WebSocketGatewayConfig struct {
	HeartbeatSeconds int `json:"heartbeat_seconds"`
	SendBuffer       int `json:"send_buffer"`
}

type SlackGatewayConfig struct {
	Enabled   bool   `json:"enabled"`
	BotToken  string `json:"bot_token"`
	ChannelID string `json:"channel_id"`
	Username  string `json:"username"`
	IconEmoji string `json:"icon_emoji"`
}

type DiscordGatewayConfig struct {
	Enabled   bool   `json:"enabled"`
	BotToken  string `json:"bot_token"`
	ChannelID string `json:"channel_id"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres"`
	Neo4j    Neo4jConfig    `json:"neo4j"`
	Redis    RedisConfig    `json:"redis"`
	Qdrant   QdrantConfig   `json:"qdrant"`
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type Neo4jConfig struct {
	URI      string `json:"uri"`
	User     string `json:"user"`
	Password string `json:"password"`
}

type RedisConfig struct {
	URL       string `json:"url"`
	StreamKey string `json:"stream_key"`
	MaxLen    int64  `json:"max_len"`
}

type QdrantConfig struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Collection string `json:"collection"`
	Buffer     int    `json:"buffer"`
}

type ExportConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule"`
	Dir      string `json:"dir"`
	Compress bool   `json:"compress"`
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file, substitutes environment variable
// references, validates the result and fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse does what Load does on in-memory data.
func Parse(data []byte) (*Config, error) {
	resolved := substitute(string(data))

	if err := validate([]byte(resolved)); err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// substitute replaces ${VAR} and ${VAR:default} with environment values.
func substitute(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})
}

func validate(doc []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schemaJSON),
		gojsonschema.NewBytesLoader(doc),
	)
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.ShutdownSeconds == 0 {
		c.Server.ShutdownSeconds = 10
	}
	if c.Server.MigrationsDir == "" {
		c.Server.MigrationsDir = "migrations"
	}
	if c.Ecosystem.BreathCycleSeconds == 0 {
		c.Ecosystem.BreathCycleSeconds = 9
	}
	if c.Ecosystem.CareMandatePercent == 0 {
		c.Ecosystem.CareMandatePercent = 15
	}
	if c.Ecosystem.PoolField == "" {
		c.Ecosystem.PoolField = "value"
	}
	if c.Ecosystem.LatencyBudgetMs == 0 {
		c.Ecosystem.LatencyBudgetMs = 9000
	}
	if c.Ecosystem.TickMs == 0 {
		c.Ecosystem.TickMs = 1000
	}
	if c.API.Burst == 0 && c.API.RateLimitPerSec > 0 {
		c.API.Burst = int(c.API.RateLimitPerSec)
		if c.API.Burst < 1 {
			c.API.Burst = 1
		}
	}
	if c.API.MaxBodyBytes == 0 {
		c.API.MaxBodyBytes = 10 << 20
	}
	if c.Gateway.WebSocket.HeartbeatSeconds == 0 {
		c.Gateway.WebSocket.HeartbeatSeconds = 30
	}
	if c.Database.Qdrant.Port == 0 {
		c.Database.Qdrant.Port = 6334
	}
	if c.Export.Schedule == "" {
		c.Export.Schedule = "@every 1h"
	}
	if c.Export.Dir == "" {
		c.Export.Dir = "exports"
	}
}
