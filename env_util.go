package tonesync

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables read by ConfigFromEnv.
const (
	EnvBackend         = "TONESYNC_BACKEND"
	EnvSurrealURL      = "TONESYNC_SURREAL_URL"
	EnvSurrealNS       = "TONESYNC_SURREAL_NS"
	EnvSurrealDB       = "TONESYNC_SURREAL_DB"
	EnvSurrealAccess   = "TONESYNC_SURREAL_ACCESS"
	EnvSurrealUsername = "TONESYNC_SURREAL_USERNAME"
	EnvSurrealPassword = "TONESYNC_SURREAL_PASSWORD"
	EnvPostgresDSN     = "TONESYNC_POSTGRES_DSN"
	EnvPollInterval    = "TONESYNC_POLL_INTERVAL"
	EnvLocalPath       = "TONESYNC_LOCAL_PATH"
	EnvRelayURL        = "TONESYNC_RELAY_URL"
	EnvRelayToken      = "TONESYNC_RELAY_TOKEN"
	EnvRelaySecret     = "TONESYNC_RELAY_SECRET"
	EnvUser            = "TONESYNC_USER"
	EnvLogLevel        = "TONESYNC_LOG_LEVEL"
)

// Backends selectable with TONESYNC_BACKEND.
const (
	BackendMemory   = "memory"
	BackendLocal    = "local"
	BackendSurreal  = "surreal"
	BackendPostgres = "postgres"
	BackendRelay    = "relay"
)

// GetEnvOrDefault returns the value of the environment variable key, or
// defaultValue when it is unset or empty.
func GetEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	return value
}

// LoadDotEnv loads the given .env files (".env" when none are given) into
// the process environment. Missing files are ignored and variables that
// are already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// Config selects and configures the store backend of a session.
type Config struct {
	Backend string

	SurrealURL      string
	SurrealNS       string
	SurrealDB       string
	SurrealAccess   string
	SurrealUsername string
	SurrealPassword string

	PostgresDSN  string
	PollInterval time.Duration

	LocalPath  string
	RelayURL   string
	RelayToken string

	// User is the id signed in at startup by the CLI.
	User     string
	LogLevel string
}

// ConfigFromEnv reads a Config from the environment, with defaults for
// everything but credentials.
func ConfigFromEnv() Config {
	poll, err := time.ParseDuration(GetEnvOrDefault(EnvPollInterval, "2s"))
	if err != nil {
		poll = 2 * time.Second
	}
	return Config{
		Backend:         GetEnvOrDefault(EnvBackend, BackendMemory),
		SurrealURL:      GetEnvOrDefault(EnvSurrealURL, "ws://localhost:8000"),
		SurrealNS:       GetEnvOrDefault(EnvSurrealNS, "tonesync"),
		SurrealDB:       GetEnvOrDefault(EnvSurrealDB, "tonesync"),
		SurrealAccess:   os.Getenv(EnvSurrealAccess),
		SurrealUsername: os.Getenv(EnvSurrealUsername),
		SurrealPassword: os.Getenv(EnvSurrealPassword),
		PostgresDSN:     os.Getenv(EnvPostgresDSN),
		PollInterval:    poll,
		LocalPath:       GetEnvOrDefault(EnvLocalPath, "tonesync.db"),
		RelayURL:        GetEnvOrDefault(EnvRelayURL, "ws://localhost:8080/rpc"),
		RelayToken:      os.Getenv(EnvRelayToken),
		User:            os.Getenv(EnvUser),
		LogLevel:        GetEnvOrDefault(EnvLogLevel, "info"),
	}
}

// Validate checks that the selected backend has what it needs.
func (c Config) Validate() error {
	switch strings.ToLower(c.Backend) {
	case BackendMemory:
	case BackendLocal:
		if c.LocalPath == "" {
			return fmt.Errorf("backend %s: local path is required", c.Backend)
		}
	case BackendSurreal:
		if c.SurrealURL == "" || c.SurrealNS == "" || c.SurrealDB == "" {
			return fmt.Errorf("backend %s: url, namespace and database are required", c.Backend)
		}
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("backend %s: %s is required", c.Backend, EnvPostgresDSN)
		}
		if c.PollInterval <= 0 {
			return fmt.Errorf("backend %s: poll interval must be positive", c.Backend)
		}
	case BackendRelay:
		if c.RelayURL == "" {
			return fmt.Errorf("backend %s: relay url is required", c.Backend)
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	return nil
}
