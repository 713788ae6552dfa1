package config

import (
	"fmt"
	"strings"

	"github.com/bsv-blockchain/ump-services/internal/storage"
)

// Validate checks the config for obvious operator mistakes and normalizes
// case-insensitive values.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("datadir must not be empty")
	}

	cfg.Lookup.Topic = strings.TrimSpace(cfg.Lookup.Topic)
	if cfg.Lookup.Topic == "" {
		return fmt.Errorf("lookup.topic must not be empty")
	}

	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	switch cfg.Storage.Backend {
	case storage.BackendBadger, storage.BackendSQLite, storage.BackendMemory:
	case "":
		cfg.Storage.Backend = storage.BackendBadger
	default:
		return fmt.Errorf("storage.backend must be badger, sqlite, or memory")
	}

	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error", "disabled", "off":
	case "":
		cfg.Log.Level = "info"
	default:
		return fmt.Errorf("log.level must be debug, info, warn, error, or off")
	}

	return nil
}
