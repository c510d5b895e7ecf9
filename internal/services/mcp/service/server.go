package service

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/storyloom/internal/services/mcp/domain"
	"github.com/louisbranch/storyloom/internal/services/story/app"
)

const (
	// serverName identifies this MCP server to clients.
	serverName = "Storyloom MCP"
	// serverVersion identifies the MCP server version.
	serverVersion = "0.1.0"
)

// TransportKind identifies the MCP transport implementation.
type TransportKind string

const (
	// TransportStdio uses standard input/output for MCP.
	TransportStdio TransportKind = "stdio"
	// TransportHTTP serves MCP over streamable HTTP.
	TransportHTTP TransportKind = "http"
)

// Config configures the MCP server.
type Config struct {
	Transport TransportKind
	HTTPAddr  string // HTTP listen address. Defaults to localhost:8081 for HTTP transport.
	Store     app.StoreConfig
}

// Server hosts the MCP server over one chat service.
type Server struct {
	mcpServer *mcp.Server
	// closer releases the event store backing the service, when owned.
	closer    io.Closer
	closeOnce sync.Once
	closeErr  error
}

// New opens the configured event store and builds a server over it.
func New(ctx context.Context, cfg app.StoreConfig) (*Server, error) {
	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	options, err := app.CoordinatorOptions(cfg)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("load coordinator options: %w", err)
	}
	chatService, err := app.NewService(store, options)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("build chat service: %w", err)
	}
	server, err := newServer(chatService)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	server.closer = store
	return server, nil
}

// newServer registers the chat tools and resources over chatService.
func newServer(chatService domain.ChatService) (*Server, error) {
	mcpServer := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, &mcp.ServerOptions{
		CompletionHandler:  completionHandler,
		SubscribeHandler:   resourceSubscribeHandler,
		UnsubscribeHandler: resourceUnsubscribeHandler,
	})

	resourceNotifier := func(ctx context.Context, uri string) {
		if strings.TrimSpace(uri) == "" {
			return
		}
		if ctx == nil {
			ctx = context.Background()
		}
		if err := mcpServer.ResourceUpdated(ctx, &mcp.ResourceUpdatedNotificationParams{URI: uri}); err != nil {
			log.Printf("mcp resource updated notify failed: uri=%s err=%v", uri, err)
		}
	}

	if err := registerModules(mcpServer, newMCPRegistrationModules(chatService, resourceNotifier)); err != nil {
		return nil, err
	}
	return &Server{mcpServer: mcpServer}, nil
}

// Close releases the event store held by the server. It is safe to call more
// than once.
func (s *Server) Close() error {
	if s == nil || s.closer == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		s.closeErr = s.closer.Close()
	})
	return s.closeErr
}
