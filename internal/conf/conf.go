package conf

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/anthropics/chat-autopilot/internal/service"
)

// Config represents application configuration.
type Config struct {
	// API is the local command-surface port.
	APIPort int

	// DataDir holds the SQLite stores.
	DataDir string

	// Dispatch pacing and recipient formatting.
	Dispatch DispatchConfig

	// MessageLogSize caps the in-memory message log.
	MessageLogSize int

	// AutoReplyEnabled is the initial state of the global auto-reply switch.
	AutoReplyEnabled bool

	// Debug mode
	Debug bool
}

// DispatchConfig contains dispatch pipeline configuration.
type DispatchConfig struct {
	NetworkSuffix       string
	BulkDelaySeconds    int
	AccountDelaySeconds int
}

const defaultAPIPort = 9876

// LoadFromEnv loads configuration from environment variables, layered over
// the optional YAML settings file.
func LoadFromEnv() *Config {
	settings, _ := LoadSettings(os.Getenv("SETTINGS_PATH"))

	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		homeDir, _ := os.UserHomeDir()
		dataDir = filepath.Join(homeDir, ".chat-autopilot")
	}

	apiPort := defaultAPIPort
	if val := os.Getenv("API_PORT"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			apiPort = parsed
		}
	}

	logSize := settings.Log.Capacity
	if val := os.Getenv("MESSAGE_LOG_SIZE"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			logSize = parsed
		}
	}

	autoReply := true
	if val := os.Getenv("AUTO_REPLY_ENABLED"); val != "" {
		autoReply = val != "false" && val != "0"
	}

	return &Config{
		APIPort: apiPort,
		DataDir: dataDir,
		Dispatch: DispatchConfig{
			NetworkSuffix:       settings.Network.Suffix,
			BulkDelaySeconds:    settings.Dispatch.BulkDelaySeconds,
			AccountDelaySeconds: settings.Dispatch.AccountDelaySeconds,
		},
		MessageLogSize:   logSize,
		AutoReplyEnabled: autoReply,
		Debug:            os.Getenv("DEBUG") == "true",
	}
}

// ToDispatchConfig converts to the dispatcher's configuration.
func (c *Config) ToDispatchConfig() service.DispatchConfig {
	return service.DispatchConfig{
		NetworkSuffix: c.Dispatch.NetworkSuffix,
		BulkDelay:     time.Duration(c.Dispatch.BulkDelaySeconds) * time.Second,
		AccountDelay:  time.Duration(c.Dispatch.AccountDelaySeconds) * time.Second,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return &ConfigError{Field: "API_PORT", Message: "must be a valid port"}
	}
	if c.Dispatch.BulkDelaySeconds < 0 || c.Dispatch.AccountDelaySeconds < 0 {
		return &ConfigError{Field: "dispatch delays", Message: "must not be negative"}
	}
	if c.Dispatch.NetworkSuffix == "" {
		return &ConfigError{Field: "network.suffix", Message: "required"}
	}
	return nil
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
