package shared

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
)

//go:embed config.example.toml
var exampleConf []byte

// Store backends accepted by [StoreConfig.Backend].
const (
	BackendSQLite  = "sqlite"
	BackendMemory  = "memory"
	BackendKeyring = "keyring"
	BackendRedis   = "redis"
)

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Auth        AuthConfig        `toml:"auth"`
	Store       StoreConfig       `toml:"store"`
	Database    DatabaseConfig    `toml:"database"`
	Redis       RedisConfig       `toml:"redis"`
	Server      ServerConfig      `toml:"server"`
	API         APIConfig         `toml:"api"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify OAuth client settings and endpoint overrides.
//
// Empty endpoint URLs fall back to the public Spotify endpoints.
type SpotifyConfig struct {
	ClientID     string   `toml:"client_id"`
	ClientSecret string   `toml:"client_secret"`
	RedirectURI  string   `toml:"redirect_uri"`
	Scopes       []string `toml:"scopes"`
	AuthURL      string   `toml:"auth_url"`
	TokenURL     string   `toml:"token_url"`
	APIURL       string   `toml:"api_url"`
}

// AuthConfig controls the token lifecycle manager.
type AuthConfig struct {
	CheckIntervalSeconds int    `toml:"check_interval_seconds"`
	Namespace            string `toml:"namespace"`
}

// CheckInterval returns the proactive expiry check interval.
func (a AuthConfig) CheckInterval() time.Duration {
	return time.Duration(a.CheckIntervalSeconds) * time.Second
}

// StoreConfig selects the credential store backend.
type StoreConfig struct {
	Backend        string `toml:"backend"`
	KeyringService string `toml:"keyring_service"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// RedisConfig contains connection settings for the redis credential store.
type RedisConfig struct {
	URL            string `toml:"url"`
	Prefix         string `toml:"prefix"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Timeout returns the per-operation redis timeout.
func (r RedisConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// APIConfig contains resource API request settings.
type APIConfig struct {
	PageSize          int     `toml:"page_size"`
	HistoryLimit      int     `toml:"history_limit"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// EnvOverrides are environment variables that take precedence over the TOML file.
type EnvOverrides struct {
	ClientID     string `envconfig:"SPOTIFY_CLIENT_ID"`
	ClientSecret string `envconfig:"SPOTIFY_CLIENT_SECRET"`
	RedirectURI  string `envconfig:"SPOTIFY_REDIRECT_URI"`
	Port         int    `envconfig:"PORT"`
	StoreBackend string `envconfig:"RECENTS_STORE_BACKEND"`
	RedisURL     string `envconfig:"RECENTS_REDIS_URL"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig encodes config as TOML and writes it to path.
func SaveConfig(path string, config *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ApplyEnv overlays non-empty environment variables onto config.
func (c *Config) ApplyEnv() error {
	var env EnvOverrides
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if env.ClientID != "" {
		c.Credentials.Spotify.ClientID = env.ClientID
	}
	if env.ClientSecret != "" {
		c.Credentials.Spotify.ClientSecret = env.ClientSecret
	}
	if env.RedirectURI != "" {
		c.Credentials.Spotify.RedirectURI = env.RedirectURI
	}
	if env.Port != 0 {
		c.Server.Port = env.Port
	}
	if env.StoreBackend != "" {
		c.Store.Backend = env.StoreBackend
	}
	if env.RedisURL != "" {
		c.Redis.URL = env.RedisURL
	}
	return nil
}

// Validate checks values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendSQLite, BackendMemory, BackendKeyring, BackendRedis:
	default:
		return fmt.Errorf("%w: unknown store backend %q", ErrInvalidConfig, c.Store.Backend)
	}

	if c.Auth.CheckIntervalSeconds <= 0 {
		return fmt.Errorf("%w: auth.check_interval_seconds must be positive", ErrInvalidConfig)
	}
	if c.Auth.Namespace == "" {
		return fmt.Errorf("%w: auth.namespace is required", ErrInvalidConfig)
	}
	if c.API.PageSize <= 0 || c.API.PageSize > 50 {
		return fmt.Errorf("%w: api.page_size must be between 1 and 50", ErrInvalidConfig)
	}
	if c.Store.Backend == BackendRedis && c.Redis.URL == "" {
		return fmt.Errorf("%w: redis.url is required for the redis backend", ErrInvalidConfig)
	}
	return nil
}

// HasClientCredentials reports whether the Spotify client id and secret are set.
func (s SpotifyConfig) HasClientCredentials() bool {
	return s.ClientID != "" && s.ClientSecret != ""
}
