// Package config provides XML-based configuration with environment overrides.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// DefaultFileName is the config file created next to the binary on first run.
const DefaultFileName = "filetable.config"

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"FileTable"`

	Env string `xml:"Environment" env:"APP_ENV"`

	Server     ServerConfig     `xml:"Server"`
	Storage    StorageConfig    `xml:"Storage"`
	Processing ProcessingConfig `xml:"Processing"`
	Advanced   AdvancedConfig   `xml:"Advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `xml:"Port" env:"PORT"`
	BindAddress  string `xml:"BindAddress" env:"BIND_ADDRESS"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds"`
	BodyLimit    string `xml:"BodyLimit" env:"BODY_LIMIT"`
}

// StorageConfig contains staging settings
type StorageConfig struct {
	StagingDirectory string `xml:"StagingDirectory" env:"STAGING_DIR"`
	// MaxFileSize is the largest single file accepted, in bytes. Zero disables the check.
	MaxFileSize int64 `xml:"MaxFileSizeBytes" env:"MAX_FILE_SIZE"`
}

// ProcessingConfig contains read pipeline settings
type ProcessingConfig struct {
	MaxConcurrentReads     int    `xml:"MaxConcurrentReads" env:"MAX_CONCURRENT_READS"`
	DecodeMode             string `xml:"DecodeMode" env:"DECODE_MODE"`
	StripBOM               bool   `xml:"StripBOM" env:"STRIP_BOM"`
	MaxSessions            int    `xml:"MaxSessions"`
	SessionTimeoutMinutes  int    `xml:"SessionTimeoutMinutes"`
	CleanupIntervalMinutes int    `xml:"CleanupIntervalMinutes"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	EnableRequestLogging    bool `xml:"EnableRequestLogging" env:"REQUEST_LOGGING"`
	WebSocketMaxMessageSize int  `xml:"WebSocketMaxMessageSizeKB"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Env: "local",
		Server: ServerConfig{
			Port:         8090,
			BindAddress:  "127.0.0.1",
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  120,
			BodyLimit:    "256M",
		},
		Storage: StorageConfig{
			StagingDirectory: "./data/staging",
			MaxFileSize:      64 << 20,
		},
		Processing: ProcessingConfig{
			MaxConcurrentReads:     8,
			DecodeMode:             "strict",
			StripBOM:               false,
			MaxSessions:            64,
			SessionTimeoutMinutes:  30,
			CleanupIntervalMinutes: 5,
		},
		Advanced: AdvancedConfig{
			EnableRequestLogging:    true,
			WebSocketMaxMessageSize: 1024,
		},
	}
}

// LoadConfig loads configuration from an XML file, creating it with defaults when
// missing, then applies .env and environment overrides.
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := xml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := config.applyEnvironmentOverrides(filepath.Join(filepath.Dir(configPath), ".env")); err != nil {
		return nil, err
	}

	config.resolvePaths(filepath.Dir(configPath))

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- FileTable Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides loads an optional .env file, then lets environment
// variables override fields carrying an env tag.
func (c *AppConfig) applyEnvironmentOverrides(dotenvPath string) error {
	if _, err := os.Stat(dotenvPath); err == nil {
		if err := godotenv.Load(dotenvPath); err != nil {
			return fmt.Errorf("failed to load %s: %w", dotenvPath, err)
		}
	}

	if err := cleanenv.ReadEnv(c); err != nil {
		return fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	return nil
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	if !filepath.IsAbs(c.Storage.StagingDirectory) {
		c.Storage.StagingDirectory = filepath.Join(configDir, c.Storage.StagingDirectory)
	}
}

// Validate rejects settings the server cannot run with.
func (c *AppConfig) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	switch c.Processing.DecodeMode {
	case "", "strict", "lenient":
	default:
		return fmt.Errorf("invalid decode mode %q: must be strict or lenient", c.Processing.DecodeMode)
	}
	if c.Processing.MaxConcurrentReads < 0 {
		return fmt.Errorf("max concurrent reads must not be negative")
	}
	return nil
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// SessionTimeout returns how long an idle session is kept.
func (c *AppConfig) SessionTimeout() time.Duration {
	return time.Duration(c.Processing.SessionTimeoutMinutes) * time.Minute
}

// CleanupInterval returns how often expired sessions and staged files are purged.
func (c *AppConfig) CleanupInterval() time.Duration {
	if c.Processing.CleanupIntervalMinutes <= 0 {
		return time.Minute
	}
	return time.Duration(c.Processing.CleanupIntervalMinutes) * time.Minute
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	if err := os.MkdirAll(c.Storage.StagingDirectory, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", c.Storage.StagingDirectory, err)
	}
	return nil
}
