package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Flags holds command-line overrides. Empty strings mean "not given"; bool
// flags carry a Set* companion so an explicit false can override the file.
type Flags struct {
	DataDir string
	Config  string

	Topic     string
	Strict    bool
	SetStrict bool

	Backend     string
	StoragePath string

	LogLevel   string
	LogFile    string
	LogJSON    bool
	SetLogJSON bool
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) {
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}

	// Lookup
	if f.Topic != "" {
		cfg.Lookup.Topic = f.Topic
	}
	if f.SetStrict {
		cfg.Lookup.StrictQueries = f.Strict
	}

	// Storage
	if f.Backend != "" {
		cfg.Storage.Backend = f.Backend
	}
	if f.StoragePath != "" {
		cfg.Storage.Path = f.StoragePath
	}

	// Logging
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

// Load loads configuration with the following precedence:
// 1. Default values
// 2. Auto-create data dir + default config (idempotent)
// 3. Config file
// 4. Command-line flags
func Load(flags *Flags) (*Config, error) {
	if flags == nil {
		flags = &Flags{}
	}

	cfg := Default()
	if flags.DataDir != "" {
		cfg.DataDir = flags.DataDir
	}

	if err := EnsureDataDirs(cfg); err != nil {
		return nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	configPath := flags.Config
	if configPath == "" {
		configPath = cfg.ConfigFile()
	}

	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}
	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, fmt.Errorf("applying config file: %w", err)
	}

	ApplyFlags(cfg, flags)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// storage.path may point outside the data directory.
	if dir := filepath.Dir(cfg.IndexPath()); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	return cfg, nil
}

// EnsureDataDirs creates the data directory and a default config file if
// they don't already exist. It is safe to call on every startup.
func EnsureDataDirs(cfg *Config) error {
	for _, dir := range []string{cfg.DataDir, cfg.LogsDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}
	return nil
}
