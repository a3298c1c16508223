package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the escrow daemon.
type Config struct {
	// ProgramID is the address the escrow program runs under.
	ProgramID string `yaml:"program_id"`

	// Storage
	Storage StorageConfig `yaml:"storage"`

	// RPC server
	RPC RPCConfig `yaml:"rpc"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// Rent schedule for maintenance deposits.
	Rent RentConfig `yaml:"rent"`

	// Faucet is a development helper for funding wallets and minting assets.
	Faucet FaucetConfig `yaml:"faucet"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	// DataDir is the directory for all data files.
	DataDir string `yaml:"data_dir"`
}

// RPCConfig holds JSON-RPC server settings.
type RPCConfig struct {
	// Listen is the host:port the server binds.
	Listen string `yaml:"listen"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `yaml:"level"`

	// File is the log file path (empty for stderr).
	File string `yaml:"file"`

	// MaxSizeMB rotates the log file once it reaches this size.
	MaxSizeMB int `yaml:"max_size_mb"`

	// MaxBackups is how many rotated files to keep.
	MaxBackups int `yaml:"max_backups"`
}

// FaucetConfig holds faucet settings.
type FaucetConfig struct {
	Enabled bool `yaml:"enabled"`

	// KeystoreFile holds the encrypted mnemonic of the faucet authority,
	// relative to the data dir.
	KeystoreFile string `yaml:"keystore_file"`

	// AirdropLimit caps a single airdrop, in lamports.
	AirdropLimit uint64 `yaml:"airdrop_limit"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ProgramID: DefaultEscrowProgramID,
		Storage: StorageConfig{
			DataDir: "~/.klingon-escrow",
		},
		RPC: RPCConfig{
			Listen: "127.0.0.1:8899",
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 5,
		},
		Rent: DefaultRent(),
		Faucet: FaucetConfig{
			Enabled:      false,
			KeystoreFile: DefaultKeystoreFile,
			AirdropLimit: DefaultAirdropLimit,
		},
	}
}

// ConfigFileName is the default config file name.
const ConfigFileName = "config.yaml"

// LoadConfig loads configuration from a YAML file in dataDir.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(dataDir string) (*Config, error) {
	return LoadConfigFile(ConfigPath(dataDir), dataDir)
}

// LoadConfigFile loads configuration from the YAML file at path, creating it
// with default values and the given data dir if it doesn't exist.
func LoadConfigFile(path, dataDir string) (*Config, error) {
	configPath := ExpandPath(path)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.Storage.DataDir = dataDir

		if err := cfg.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	if c.ProgramID == "" {
		return fmt.Errorf("config: program_id is required")
	}
	if c.RPC.Listen == "" {
		return fmt.Errorf("config: rpc.listen is required")
	}
	if c.Rent.ExemptionThreshold == 0 {
		return fmt.Errorf("config: rent.exemption_threshold must be positive")
	}
	return nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# Klingon Escrow Daemon Configuration\n# Generated automatically on first run\n\n")
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ConfigPath returns the full path to the config file for the given data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(ExpandPath(dataDir), ConfigFileName)
}

// ExpandPath expands ~ to home directory.
func ExpandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
