package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/mcdev12/courtside/go/internal/dbconfig"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	StatsDirect    = "direct"
	StatsJetStream = "jetstream"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Store     StoreConfig     `yaml:"store"`
	Database  dbconfig.Config `yaml:"database"`
	Session   SessionConfig   `yaml:"session"`
	Stats     StatsConfig     `yaml:"stats"`
	Auth      AuthConfig      `yaml:"auth"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Listener  ListenerConfig  `yaml:"listener"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

type StoreConfig struct {
	Driver   string `yaml:"driver"`
	Fixtures string `yaml:"fixtures"`
}

type SessionConfig struct {
	GraceWindow     time.Duration `yaml:"grace_window"`
	MutationTimeout time.Duration `yaml:"mutation_timeout"`
	DedupeSize      int           `yaml:"dedupe_size"`
	BroadcastQueue  int           `yaml:"broadcast_queue"`
}

type StatsConfig struct {
	Mode            string        `yaml:"mode"`
	Workers         int           `yaml:"workers"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	MaxElapsed      time.Duration `yaml:"max_elapsed"`
	NATSURL         string        `yaml:"nats_url"`
	Stream          string        `yaml:"stream"`
	SubjectPrefix   string        `yaml:"subject_prefix"`
	Consumer        string        `yaml:"consumer"`
}

type AuthConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Secret      string   `yaml:"secret"`
	EditorRoles []string `yaml:"editor_roles"`
}

type WebSocketConfig struct {
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	PongTimeout    time.Duration `yaml:"pong_timeout"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	MaxMessageSize int64         `yaml:"max_message_size"`
	SendBuffer     int           `yaml:"send_buffer"`
}

type ListenerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Channel string `yaml:"channel"`
}

// Default returns a config that runs locally against the fixture store.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"http://localhost:3000"},
		},
		Log: LogConfig{Level: "info", Format: "console"},
		Store: StoreConfig{
			Driver:   StoreMemory,
			Fixtures: "configs/fixtures.yaml",
		},
		Database: dbconfig.Default(),
		Session: SessionConfig{
			GraceWindow:     30 * time.Second,
			MutationTimeout: 5 * time.Second,
			DedupeSize:      1024,
			BroadcastQueue:  256,
		},
		Stats: StatsConfig{
			Mode:            StatsDirect,
			Workers:         2,
			InitialInterval: 200 * time.Millisecond,
			MaxInterval:     10 * time.Second,
			MaxElapsed:      5 * time.Minute,
			NATSURL:         "nats://127.0.0.1:4222",
			Stream:          "PLAYER_STATS",
			SubjectPrefix:   "livegame.stats",
			Consumer:        "player-stat-applier",
		},
		Auth: AuthConfig{EditorRoles: []string{"admin", "coach"}},
		WebSocket: WebSocketConfig{
			WriteTimeout:   10 * time.Second,
			PongTimeout:    60 * time.Second,
			PingInterval:   54 * time.Second,
			MaxMessageSize: 4096,
			SendBuffer:     64,
		},
		Listener: ListenerConfig{Channel: "game_status_changed"},
	}
}

// Load builds the config from defaults, the optional YAML file at path and
// the environment, in that order. An empty path falls back to LIVEGAME_CONFIG.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg := Default()

	if path == "" {
		path = os.Getenv("LIVEGAME_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.ReadTimeout = getEnvAsDuration("SERVER_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvAsDuration("SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.AllowedOrigins = getEnvAsList("ALLOWED_ORIGINS", c.Server.AllowedOrigins)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)

	c.Store.Driver = getEnv("LIVEGAME_STORE", c.Store.Driver)
	c.Store.Fixtures = getEnv("LIVEGAME_FIXTURES", c.Store.Fixtures)
	c.Database.ApplyEnv()

	c.Session.GraceWindow = getEnvAsDuration("LIVEGAME_GRACE_WINDOW", c.Session.GraceWindow)
	c.Session.MutationTimeout = getEnvAsDuration("LIVEGAME_MUTATION_TIMEOUT", c.Session.MutationTimeout)
	c.Session.DedupeSize = getEnvAsInt("LIVEGAME_DEDUPE_SIZE", c.Session.DedupeSize)

	c.Stats.Mode = getEnv("STATS_MODE", c.Stats.Mode)
	c.Stats.Workers = getEnvAsInt("STATS_WORKERS", c.Stats.Workers)
	c.Stats.NATSURL = getEnv("NATS_URL", c.Stats.NATSURL)

	c.Auth.Enabled = getEnvAsBool("AUTH_ENABLED", c.Auth.Enabled)
	c.Auth.Secret = getEnv("AUTH_SECRET", c.Auth.Secret)
	c.Auth.EditorRoles = getEnvAsList("AUTH_EDITOR_ROLES", c.Auth.EditorRoles)

	c.Listener.Enabled = getEnvAsBool("LISTENER_ENABLED", c.Listener.Enabled)
	c.Listener.Channel = getEnv("LISTENER_CHANNEL", c.Listener.Channel)
}

// Validate reports settings the server cannot start with
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreMemory, StorePostgres:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	switch c.Stats.Mode {
	case StatsDirect, StatsJetStream:
	default:
		return fmt.Errorf("unknown stats mode %q", c.Stats.Mode)
	}
	if c.Auth.Enabled && c.Auth.Secret == "" {
		return errors.New("auth is enabled but AUTH_SECRET is empty")
	}
	if c.Listener.Enabled && c.Store.Driver != StorePostgres {
		return errors.New("the status listener needs the postgres store")
	}
	if c.Session.GraceWindow < 0 {
		return errors.New("grace window must not be negative")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
