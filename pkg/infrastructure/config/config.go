package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all CannaFlow compliance service configuration
type Config struct {
	// HTTP service settings
	Server ServerConfig `json:"server"`

	// Persistence backend
	Storage StorageConfig `json:"storage"`

	// Export artifact destination
	Export ExportConfig `json:"export"`

	// System configuration
	Logging LoggingConfig `json:"logging"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	ListenAddress   string `json:"listen_address"`
	ReadTimeout     int    `json:"read_timeout_seconds"`
	WriteTimeout    int    `json:"write_timeout_seconds"`
	ShutdownTimeout int    `json:"shutdown_timeout_seconds"`
}

// StorageConfig selects and configures the persistence backend
type StorageConfig struct {
	Backend  string         `json:"backend"` // memory, file, postgres
	DataDir  string         `json:"data_dir,omitempty"`
	Postgres PostgresConfig `json:"postgres,omitempty"`
}

// PostgresConfig holds PostgreSQL connection settings
type PostgresConfig struct {
	ConnectionString string `json:"connection_string"`
	MaxConnections   int    `json:"max_connections"`
	ConnectTimeout   int    `json:"connect_timeout_seconds"`
}

// ExportConfig holds export artifact settings
type ExportConfig struct {
	Dir string `json:"dir"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // text, json
	Output string `json:"output"` // console, file
	File   string `json:"file,omitempty"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	base := filepath.Join(homeDir, ".cannaflow")

	return &Config{
		Server: ServerConfig{
			ListenAddress:   "127.0.0.1:8480",
			ReadTimeout:     15,
			WriteTimeout:    30,
			ShutdownTimeout: 10,
		},
		Storage: StorageConfig{
			Backend: "file",
			DataDir: filepath.Join(base, "data"),
			Postgres: PostgresConfig{
				MaxConnections: 10,
				ConnectTimeout: 30,
			},
		},
		Export: ExportConfig{
			Dir: filepath.Join(base, "exports"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "console",
			File:   "",
		},
	}
}

// LoadConfig loads configuration from file with environment variable overrides
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	// Load from file if it exists
	if configPath != "" {
		if err := config.loadFromFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Apply environment variable overrides
	config.applyEnvironmentOverrides()

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFromFile loads configuration from a JSON file
func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, use defaults
			return nil
		}
		return err
	}

	return json.Unmarshal(data, c)
}

// applyEnvironmentOverrides applies environment variable overrides
func (c *Config) applyEnvironmentOverrides() {
	// Server overrides
	if val := os.Getenv("CANNAFLOW_LISTEN_ADDRESS"); val != "" {
		c.Server.ListenAddress = val
	}
	if val := os.Getenv("CANNAFLOW_SHUTDOWN_TIMEOUT"); val != "" {
		if timeout, err := strconv.Atoi(val); err == nil {
			c.Server.ShutdownTimeout = timeout
		}
	}

	// Storage overrides
	if val := os.Getenv("CANNAFLOW_STORAGE_BACKEND"); val != "" {
		c.Storage.Backend = val
	}
	if val := os.Getenv("CANNAFLOW_DATA_DIR"); val != "" {
		c.Storage.DataDir = val
	}
	if val := os.Getenv("CANNAFLOW_POSTGRES_URL"); val != "" {
		c.Storage.Postgres.ConnectionString = val
	}
	if val := os.Getenv("CANNAFLOW_POSTGRES_MAX_CONNS"); val != "" {
		if conns, err := strconv.Atoi(val); err == nil {
			c.Storage.Postgres.MaxConnections = conns
		}
	}

	// Export overrides
	if val := os.Getenv("CANNAFLOW_EXPORT_DIR"); val != "" {
		c.Export.Dir = val
	}

	// Logging overrides
	if val := os.Getenv("CANNAFLOW_LOG_LEVEL"); val != "" {
		c.Logging.Level = val
	}
	if val := os.Getenv("CANNAFLOW_LOG_FORMAT"); val != "" {
		c.Logging.Format = val
	}
	if val := os.Getenv("CANNAFLOW_LOG_OUTPUT"); val != "" {
		c.Logging.Output = val
	}
	if val := os.Getenv("CANNAFLOW_LOG_FILE"); val != "" {
		c.Logging.File = val
	}
}

// Validate validates the configuration and provides helpful suggestions
func (c *Config) Validate() error {
	if c.Server.ListenAddress == "" {
		return fmt.Errorf("listen address cannot be empty. Use '127.0.0.1:8480' for local access")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive (current: %d)", c.Server.ShutdownTimeout)
	}

	switch c.Storage.Backend {
	case "memory":
	case "file":
		if c.Storage.DataDir == "" {
			return fmt.Errorf("data_dir is required for the file storage backend")
		}
	case "postgres":
		if c.Storage.Postgres.ConnectionString == "" {
			return fmt.Errorf("postgres connection string is required for the postgres backend. Set it or use CANNAFLOW_POSTGRES_URL")
		}
		if c.Storage.Postgres.MaxConnections <= 0 {
			return fmt.Errorf("postgres max connections must be positive (current: %d)", c.Storage.Postgres.MaxConnections)
		}
	default:
		return fmt.Errorf("invalid storage backend '%s'. Valid options: memory, file, postgres", c.Storage.Backend)
	}

	if c.Export.Dir == "" {
		return fmt.Errorf("export dir cannot be empty")
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level '%s'. Valid options: debug, info, warn, error", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format '%s'. Valid options: text, json", c.Logging.Format)
	}

	validOutputs := map[string]bool{
		"console": true, "file": true,
	}
	if !validOutputs[c.Logging.Output] {
		return fmt.Errorf("invalid log output '%s'. Valid options: console, file", c.Logging.Output)
	}
	if c.Logging.Output == "file" && c.Logging.File == "" {
		return fmt.Errorf("log file path is required when output is 'file'")
	}

	return nil
}

// SaveToFile saves the configuration to a JSON file
func (c *Config) SaveToFile(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// GetDefaultConfigPath returns the default configuration file path
func GetDefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(homeDir, ".cannaflow", "config.json"), nil
}
