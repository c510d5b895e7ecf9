// Package mcp parses MCP command flags and selects stdio or HTTP transport.
package mcp

import (
	"context"
	"flag"

	entrypoint "github.com/louisbranch/storyloom/internal/platform/cmd"
	mcpservice "github.com/louisbranch/storyloom/internal/services/mcp/service"
	"github.com/louisbranch/storyloom/internal/services/story/app"
)

// Config holds MCP command configuration.
type Config struct {
	HTTPAddr  string `env:"STORYLOOM_MCP_HTTP_ADDR" envDefault:"localhost:8081"`
	Transport string `env:"STORYLOOM_MCP_TRANSPORT" envDefault:"stdio"`

	Store app.StoreConfig
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP server address (for HTTP transport)")
	fs.StringVar(&cfg.Transport, "transport", cfg.Transport, "Transport type: stdio or http")
	fs.StringVar(&cfg.Store.Backend, "store", cfg.Store.Backend, "event store backend: sqlite, pebble, or memory")
	fs.StringVar(&cfg.Store.DBPath, "db-path", cfg.Store.DBPath, "path to the sqlite event database")
	fs.StringVar(&cfg.Store.PebbleDir, "pebble-dir", cfg.Store.PebbleDir, "directory of the pebble event store")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the MCP protocol adapter.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceMCP, func(ctx context.Context) error {
		return mcpservice.Run(ctx, mcpservice.Config{
			Transport: mcpservice.TransportKind(cfg.Transport),
			HTTPAddr:  cfg.HTTPAddr,
			Store:     cfg.Store,
		})
	})
}
