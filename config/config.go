// Package config handles umpctl configuration.
//
// Settings come from three layers, later ones overriding earlier ones:
// built-in defaults, the ump.conf file in the data directory, and
// command-line flags.
package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/bsv-blockchain/ump-services/internal/storage"
)

// Config holds runtime configuration for the lookup service and its index.
type Config struct {
	DataDir string `conf:"datadir"`

	// Lookup service
	Lookup LookupConfig

	// Index storage
	Storage StorageConfig

	// Logging
	Log LogConfig
}

// LookupConfig holds lookup service settings.
type LookupConfig struct {
	Topic         string `conf:"lookup.topic"`  // Topic whose outputs are indexed
	StrictQueries bool   `conf:"lookup.strict"` // Reject queries with more than one key
}

// StorageConfig holds index database settings.
type StorageConfig struct {
	Backend    string `conf:"storage.backend"`    // badger, sqlite or memory
	Path       string `conf:"storage.path"`       // Overrides the default location under DataDir
	SyncWrites bool   `conf:"storage.syncwrites"` // Sync every commit to disk
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.ump
//	macOS:   ~/Library/Application Support/UMP
//	Windows: %APPDATA%\UMP
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ump"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "UMP")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "UMP")
		}
		return filepath.Join(home, "AppData", "Roaming", "UMP")
	default:
		return filepath.Join(home, ".ump")
	}
}

// IndexPath returns where the index database lives. Badger uses a
// directory, SQLite a single file.
func (c *Config) IndexPath() string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	if c.Storage.Backend == storage.BackendSQLite {
		return filepath.Join(c.DataDir, "index.db")
	}
	return filepath.Join(c.DataDir, "index")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "ump.conf")
}
