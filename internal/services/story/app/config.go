package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/louisbranch/storyloom/internal/platform/config"
	"github.com/louisbranch/storyloom/internal/platform/timeouts"
	"github.com/louisbranch/storyloom/internal/services/story/eventlog"
	"github.com/louisbranch/storyloom/internal/services/story/secret"
	"github.com/louisbranch/storyloom/internal/services/story/storage"
	"github.com/louisbranch/storyloom/internal/services/story/storage/memory"
	pebblestore "github.com/louisbranch/storyloom/internal/services/story/storage/pebble"
	"github.com/louisbranch/storyloom/internal/services/story/storage/sqlite"
)

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendPebble = "pebble"
	BackendMemory = "memory"
)

// StoreConfig selects and locates the event store.
type StoreConfig struct {
	Backend   string `env:"STORYLOOM_STORE"          envDefault:"sqlite"`
	DBPath    string `env:"STORYLOOM_DB_PATH"        envDefault:"data/storyloom.db"`
	PebbleDir string `env:"STORYLOOM_PEBBLE_DIR"     envDefault:"data/events"`
	SealKey   string `env:"STORYLOOM_EVENT_SEAL_KEY"`
}

// LoadStoreConfig reads StoreConfig from the environment.
func LoadStoreConfig() (StoreConfig, error) {
	var cfg StoreConfig
	if err := config.ParseEnv(&cfg); err != nil {
		return StoreConfig{}, err
	}
	return cfg, nil
}

// OpenStore opens the backend named by cfg.
func OpenStore(ctx context.Context, cfg StoreConfig) (storage.Store, error) {
	ctx, cancel := context.WithTimeout(ctx, timeouts.StoreOpen)
	defer cancel()

	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case BackendSQLite, "":
		store, err := sqlite.Open(ctx, cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite event store: %w", err)
		}
		return store, nil
	case BackendPebble:
		store, err := pebblestore.Open(cfg.PebbleDir)
		if err != nil {
			return nil, fmt.Errorf("open pebble event store: %w", err)
		}
		return store, nil
	case BackendMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown event store backend %q", cfg.Backend)
	}
}

// CoordinatorOptions builds coordinator options from cfg. An empty seal key
// leaves payloads unsealed.
func CoordinatorOptions(cfg StoreConfig) (eventlog.Options, error) {
	if strings.TrimSpace(cfg.SealKey) == "" {
		return eventlog.Options{}, nil
	}
	key, err := secret.ParseKey(cfg.SealKey)
	if err != nil {
		return eventlog.Options{}, err
	}
	sealer, err := secret.NewChatSealer(key)
	if err != nil {
		return eventlog.Options{}, fmt.Errorf("build payload sealer: %w", err)
	}
	return eventlog.Options{Sealer: sealer}, nil
}
