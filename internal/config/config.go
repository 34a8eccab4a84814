package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"

	"switchboard-sdk/internal/logging"
	"switchboard-sdk/pkg/client"
	"switchboard-sdk/pkg/types"
)

// ARCHITECTURAL DISCOVERY: Configuration layer gathers every knob a client process
// needs; the engine itself only ever sees functional options built from it
type Config struct {
	Server    *ServerConfig    `toml:"server"`
	Identity  *IdentityConfig  `toml:"identity"`
	Reconnect *ReconnectConfig `toml:"reconnect"`
	Session   *SessionConfig   `toml:"session"`
	Log       *LogConfig       `toml:"log"`
}

type ServerConfig struct {
	URL              string        `toml:"url"`
	HandshakeTimeout time.Duration `toml:"handshake_timeout"`
	WriteTimeout     time.Duration `toml:"write_timeout"`
}

// IdentityConfig may be left empty and supplied on the command line instead.
type IdentityConfig struct {
	UserID string     `toml:"user_id"`
	Role   types.Role `toml:"role"`
}

// FUNCTIONAL DISCOVERY: Five attempts from a one second base gives 1+2+4+8+16 = 31s of
// retrying, long enough to ride out a server restart in a classroom
type ReconnectConfig struct {
	MaxAttempts int           `toml:"max_attempts"`
	BaseDelay   time.Duration `toml:"base_delay"`
	MaxDelay    time.Duration `toml:"max_delay"`
}

type SessionConfig struct {
	EndGrace time.Duration `toml:"end_grace"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Pretty bool   `toml:"pretty"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: &ServerConfig{
			URL:              "http://localhost:8080",
			HandshakeTimeout: 10 * time.Second,
			WriteTimeout:     5 * time.Second,
		},
		Identity: &IdentityConfig{},
		Reconnect: &ReconnectConfig{
			MaxAttempts: 5,
			BaseDelay:   time.Second,
		},
		Session: &SessionConfig{
			EndGrace: 100 * time.Millisecond,
		},
		Log: &LogConfig{
			Level: "info",
		},
	}
}

// Validate rejects settings the client cannot run with. Identity is only checked when set.
func (c *Config) Validate() error {
	if c.Server == nil {
		return fmt.Errorf("server configuration is required")
	}
	u, err := url.Parse(c.Server.URL)
	if err != nil {
		return fmt.Errorf("server URL is invalid: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("server URL must use http, https, ws or wss, got %q", c.Server.URL)
	}
	if u.Host == "" {
		return fmt.Errorf("server URL must include a host")
	}
	if c.Server.HandshakeTimeout <= 0 {
		return fmt.Errorf("handshake timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive")
	}

	if c.Identity == nil {
		return fmt.Errorf("identity configuration is required")
	}
	if c.Identity.UserID != "" && !types.IsValidUserID(c.Identity.UserID) {
		return fmt.Errorf("user ID %q: %w", c.Identity.UserID, types.ErrInvalidUserID)
	}
	if c.Identity.Role != "" && !c.Identity.Role.Valid() {
		return fmt.Errorf("role %q: %w", c.Identity.Role, types.ErrInvalidRole)
	}

	if c.Reconnect == nil {
		return fmt.Errorf("reconnect configuration is required")
	}
	if c.Reconnect.MaxAttempts < 0 {
		return fmt.Errorf("max reconnect attempts cannot be negative")
	}
	if c.Reconnect.BaseDelay <= 0 {
		return fmt.Errorf("reconnect delay must be positive")
	}
	if c.Reconnect.MaxDelay < 0 {
		return fmt.Errorf("max reconnect delay cannot be negative")
	}

	if c.Session == nil {
		return fmt.Errorf("session configuration is required")
	}
	if c.Session.EndGrace < 0 {
		return fmt.Errorf("session end grace cannot be negative")
	}

	if c.Log == nil {
		return fmt.Errorf("log configuration is required")
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		return fmt.Errorf("log level %q: %w", c.Log.Level, err)
	}

	return nil
}

// FUNCTIONAL DISCOVERY: Environment variables override defaults; unparsable values
// are ignored so a typo never prevents startup
func LoadFromEnv() *Config {
	cfg := DefaultConfig()
	applyEnv(cfg)
	return cfg
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SWITCHBOARD_SERVER_URL"); v != "" {
		cfg.Server.URL = v
	}
	if v := os.Getenv("SWITCHBOARD_USER_ID"); v != "" {
		cfg.Identity.UserID = v
	}
	if v := os.Getenv("SWITCHBOARD_ROLE"); v != "" {
		cfg.Identity.Role = types.Role(v)
	}
	if v := os.Getenv("SWITCHBOARD_MAX_RECONNECT_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Reconnect.MaxAttempts = n
		}
	}
	envDuration("SWITCHBOARD_RECONNECT_DELAY", &cfg.Reconnect.BaseDelay)
	envDuration("SWITCHBOARD_RECONNECT_MAX_DELAY", &cfg.Reconnect.MaxDelay)
	envDuration("SWITCHBOARD_HANDSHAKE_TIMEOUT", &cfg.Server.HandshakeTimeout)
	envDuration("SWITCHBOARD_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("SWITCHBOARD_SESSION_END_GRACE", &cfg.Session.EndGrace)
	if v := os.Getenv("SWITCHBOARD_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SWITCHBOARD_LOG_PRETTY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Log.Pretty = b
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
	}
}

// fileConfig is the TOML shape. Durations are strings such as "1.5s".
type fileConfig struct {
	Server struct {
		URL              string `toml:"url"`
		HandshakeTimeout string `toml:"handshake_timeout"`
		WriteTimeout     string `toml:"write_timeout"`
	} `toml:"server"`
	Identity struct {
		UserID string `toml:"user_id"`
		Role   string `toml:"role"`
	} `toml:"identity"`
	Reconnect struct {
		MaxAttempts int    `toml:"max_attempts"`
		BaseDelay   string `toml:"base_delay"`
		MaxDelay    string `toml:"max_delay"`
	} `toml:"reconnect"`
	Session struct {
		EndGrace string `toml:"end_grace"`
	} `toml:"session"`
	Log struct {
		Level  string `toml:"level"`
		Pretty bool   `toml:"pretty"`
	} `toml:"log"`
}

// LoadFromFile reads a TOML file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := overlayFile(cfg, path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return cfg, nil
}

// overlayFile applies only the keys present in the file, so an env override
// survives unless the file sets the same key.
func overlayFile(cfg *Config, path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if meta.IsDefined("server", "url") {
		cfg.Server.URL = raw.Server.URL
	}
	if err := fileDuration(meta, raw.Server.HandshakeTimeout, &cfg.Server.HandshakeTimeout, "server", "handshake_timeout"); err != nil {
		return err
	}
	if err := fileDuration(meta, raw.Server.WriteTimeout, &cfg.Server.WriteTimeout, "server", "write_timeout"); err != nil {
		return err
	}
	if meta.IsDefined("identity", "user_id") {
		cfg.Identity.UserID = raw.Identity.UserID
	}
	if meta.IsDefined("identity", "role") {
		cfg.Identity.Role = types.Role(raw.Identity.Role)
	}
	if meta.IsDefined("reconnect", "max_attempts") {
		cfg.Reconnect.MaxAttempts = raw.Reconnect.MaxAttempts
	}
	if err := fileDuration(meta, raw.Reconnect.BaseDelay, &cfg.Reconnect.BaseDelay, "reconnect", "base_delay"); err != nil {
		return err
	}
	if err := fileDuration(meta, raw.Reconnect.MaxDelay, &cfg.Reconnect.MaxDelay, "reconnect", "max_delay"); err != nil {
		return err
	}
	if err := fileDuration(meta, raw.Session.EndGrace, &cfg.Session.EndGrace, "session", "end_grace"); err != nil {
		return err
	}
	if meta.IsDefined("log", "level") {
		cfg.Log.Level = raw.Log.Level
	}
	if meta.IsDefined("log", "pretty") {
		cfg.Log.Pretty = raw.Log.Pretty
	}
	return nil
}

func fileDuration(meta toml.MetaData, raw string, dst *time.Duration, key ...string) error {
	if !meta.IsDefined(key...) {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", strings.Join(key, "."), raw, err)
	}
	*dst = d
	return nil
}

// LoadConfigWithPrecedence layers file > environment > defaults. A missing file is
// not an error; a malformed one is.
func LoadConfigWithPrecedence(path string) (*Config, error) {
	cfg := LoadFromEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := overlayFile(cfg, path); err != nil {
				return nil, err
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Logger builds the process logger described by the log section.
func (c *Config) Logger(app string) zerolog.Logger {
	return logging.New(app, c.Log.Level, c.Log.Pretty)
}

// ClientOptions converts the configuration into client options. The logger is
// passed in so callers can add their own fields first.
func (c *Config) ClientOptions(logger zerolog.Logger) []client.Option {
	return []client.Option{
		client.WithServerURL(c.Server.URL),
		client.WithHandshakeTimeout(c.Server.HandshakeTimeout),
		client.WithWriteTimeout(c.Server.WriteTimeout),
		client.WithReconnectPolicy(c.Reconnect.BaseDelay, c.Reconnect.MaxAttempts, c.Reconnect.MaxDelay),
		client.WithSessionEndGrace(c.Session.EndGrace),
		client.WithLogger(logger),
	}
}
