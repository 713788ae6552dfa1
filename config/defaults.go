package config

import (
	"github.com/bsv-blockchain/ump-services/internal/storage"
	"github.com/bsv-blockchain/ump-services/internal/ump"
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		DataDir: DefaultDataDir(),
		Lookup: LookupConfig{
			Topic:         ump.DefaultTopic,
			StrictQueries: false,
		},
		Storage: StorageConfig{
			Backend:    storage.BackendBadger,
			SyncWrites: true,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}
