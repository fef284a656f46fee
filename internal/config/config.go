package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dl-alexandre/mirrorsync/internal/utils"
)

const (
	// ConfigFileName is the name of the config file
	ConfigFileName = "config.json"
	// EnvPrefix is the prefix for environment variables
	EnvPrefix = "MIRRORSYNC_"
)

// Config holds application configuration
type Config struct {
	// DefaultAccount is the account profile used when none is given
	DefaultAccount string `json:"defaultAccount"`

	// RemoteBaseURL is the base URL of the remote drive API
	RemoteBaseURL string `json:"remoteBaseURL"`

	// MirrorRoot is the local directory mirrored against the remote
	MirrorRoot string `json:"mirrorRoot"`

	// OAuthClientID identifies this app to the remote authorization server
	OAuthClientID string `json:"oauthClientID"`

	// OAuthClientSecret is the app secret, empty for public clients
	OAuthClientSecret string `json:"oauthClientSecret"`

	// OAuthTokenURL is the token endpoint used for refresh
	OAuthTokenURL string `json:"oauthTokenURL"`

	// Concurrency is the number of parallel transfer workers
	Concurrency int `json:"concurrency"`

	// BatchSize is how many paths a reconciliation page covers when work is
	// pulled from the store
	BatchSize int `json:"batchSize"`

	// MaxRetries is the total attempt budget for a remote call that keeps
	// failing transiently
	MaxRetries int `json:"maxRetries"`

	// RetryBaseDelay is the base delay for exponential backoff in milliseconds
	RetryBaseDelay int `json:"retryBaseDelay"`

	// RequestTimeout is the default request timeout in seconds
	RequestTimeout int `json:"requestTimeout"`

	// ChunkThreshold is the file size in bytes above which uploads use sessions
	ChunkThreshold int64 `json:"chunkThreshold"`

	// ChunkSize is the byte-range size for chunked uploads
	ChunkSize int64 `json:"chunkSize"`

	// ExcludePatterns are glob patterns skipped during local enumeration
	ExcludePatterns []string `json:"excludePatterns"`

	// ConflictPolicy is the default resolution strategy (keep-local, keep-remote, newer-wins, prompt)
	ConflictPolicy string `json:"conflictPolicy"`

	// LogLevel sets the logging verbosity (debug, info, warn, error)
	LogLevel string `json:"logLevel"`

	// LogFile, when set, enables JSON file logging with rotation
	LogFile string `json:"logFile"`

	// ColorOutput enables color output on the console
	ColorOutput bool `json:"colorOutput"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		DefaultAccount: "default",
		Concurrency:    utils.DefaultConcurrency,
		BatchSize:      utils.DefaultBatchSize,
		MaxRetries:     utils.DefaultMaxRetries,
		RetryBaseDelay: utils.DefaultRetryBaseMs,
		RequestTimeout: 60, // seconds
		ChunkThreshold: 4 * 1024 * 1024,
		ChunkSize:      32 * 320 * 1024,
		ConflictPolicy: "prompt",
		LogLevel:       "info",
		ColorOutput:    true,
	}
}

// Load loads configuration with precedence: env vars > config file > defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.loadFromFile(); err != nil {
		// Config file not existing is not an error
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, c)
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv(EnvPrefix + "DEFAULT_ACCOUNT"); v != "" {
		c.DefaultAccount = v
	}
	if v := os.Getenv(EnvPrefix + "REMOTE_BASE_URL"); v != "" {
		c.RemoteBaseURL = v
	}
	if v := os.Getenv(EnvPrefix + "MIRROR_ROOT"); v != "" {
		c.MirrorRoot = v
	}
	if v := os.Getenv(EnvPrefix + "OAUTH_CLIENT_ID"); v != "" {
		c.OAuthClientID = v
	}
	if v := os.Getenv(EnvPrefix + "OAUTH_CLIENT_SECRET"); v != "" {
		c.OAuthClientSecret = v
	}
	if v := os.Getenv(EnvPrefix + "OAUTH_TOKEN_URL"); v != "" {
		c.OAuthTokenURL = v
	}
	if v := os.Getenv(EnvPrefix + "CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Concurrency = n
		}
	}
	if v := os.Getenv(EnvPrefix + "BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.BatchSize = n
		}
	}
	if v := os.Getenv(EnvPrefix + "MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxRetries = n
		}
	}
	if v := os.Getenv(EnvPrefix + "RETRY_BASE_DELAY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RetryBaseDelay = n
		}
	}
	if v := os.Getenv(EnvPrefix + "REQUEST_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RequestTimeout = n
		}
	}
	if v := os.Getenv(EnvPrefix + "CHUNK_THRESHOLD"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.ChunkThreshold = n
		}
	}
	if v := os.Getenv(EnvPrefix + "CONFLICT_POLICY"); v != "" {
		c.ConflictPolicy = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_FILE"); v != "" {
		c.LogFile = v
	}
	if v := os.Getenv(EnvPrefix + "COLOR_OUTPUT"); v != "" {
		c.ColorOutput = parseBool(v)
	}
}

// Save saves the configuration to the config file
func (c *Config) Save() error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Concurrency < 1 || c.Concurrency > 64 {
		return fmt.Errorf("concurrency must be between 1 and 64, got: %d", c.Concurrency)
	}

	if c.BatchSize < 1 || c.BatchSize > 1000 {
		return fmt.Errorf("batch size must be between 1 and 1000, got: %d", c.BatchSize)
	}

	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("max retries must be between 0 and 10, got: %d", c.MaxRetries)
	}

	if c.RetryBaseDelay < 100 || c.RetryBaseDelay > 60000 {
		return fmt.Errorf("retry base delay must be between 100ms and 60000ms, got: %d", c.RetryBaseDelay)
	}

	if c.RequestTimeout < 1 || c.RequestTimeout > 3600 {
		return fmt.Errorf("request timeout must be between 1 and 3600 seconds, got: %d", c.RequestTimeout)
	}

	if c.ChunkSize <= 0 || c.ChunkSize%(320*1024) != 0 {
		return fmt.Errorf("chunk size must be a positive multiple of 320 KiB, got: %d", c.ChunkSize)
	}

	switch c.ConflictPolicy {
	case "keep-local", "keep-remote", "newer-wins", "prompt":
	default:
		return fmt.Errorf("invalid conflict policy: %s (must be 'keep-local', 'keep-remote', 'newer-wins', or 'prompt')", c.ConflictPolicy)
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	isValid := false
	for _, level := range validLogLevels {
		if c.LogLevel == level {
			isValid = true
			break
		}
	}
	if !isValid {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	return nil
}

// GetRetryBaseDelay returns the retry base delay as a duration
func (c *Config) GetRetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelay) * time.Millisecond
}

// GetRequestTimeout returns the request timeout as a duration
func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// GetConfigPath returns the path to the config file
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, ConfigFileName), nil
}

// GetConfigDir returns the path to the config directory
func GetConfigDir() (string, error) {
	if dir := os.Getenv(EnvPrefix + "CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "mirrorsync"), nil
}

// GetDataDir returns the directory holding the state database
func GetDataDir() (string, error) {
	if dir := os.Getenv(EnvPrefix + "DATA_DIR"); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "mirrorsync"), nil
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
