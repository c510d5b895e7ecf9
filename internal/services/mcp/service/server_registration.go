package service

import (
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/storyloom/internal/services/mcp/domain"
)

const (
	mcpMessageToolsModuleName = "message-tools"
	mcpChapterToolsModuleName = "chapter-tools"
	mcpReadToolsModuleName    = "read-tools"
	mcpChatResourceModuleName = "chat-resources"
)

// toolRegistration binds one tool to its typed handler.
type toolRegistration struct {
	name string
	add  func(*mcp.Server)
}

func typedTool[I, O any](tool *mcp.Tool, handler mcp.ToolHandlerFor[I, O]) toolRegistration {
	return toolRegistration{
		name: tool.Name,
		add: func(server *mcp.Server) {
			mcp.AddTool(server, tool, handler)
		},
	}
}

type resourceRegistration struct {
	template *mcp.ResourceTemplate
	handler  mcp.ResourceHandler
}

type mcpRegistrationModule struct {
	name      string
	tools     []toolRegistration
	resources []resourceRegistration
}

// registerModules adds every module to server. Tool names must be unique
// across modules.
func registerModules(server *mcp.Server, modules []mcpRegistrationModule) error {
	seen := make(map[string]string)
	for _, module := range modules {
		for _, tool := range module.tools {
			name := strings.TrimSpace(tool.name)
			if name == "" {
				return fmt.Errorf("register MCP module %q: tool name is required", module.name)
			}
			if owner, ok := seen[name]; ok {
				return fmt.Errorf("register MCP module %q: tool %q already registered by %q", module.name, name, owner)
			}
			seen[name] = module.name
		}
	}
	for _, module := range modules {
		for _, tool := range module.tools {
			tool.add(server)
		}
		for _, resource := range module.resources {
			server.AddResourceTemplate(resource.template, resource.handler)
		}
	}
	return nil
}

func newMCPRegistrationModules(chatService domain.ChatService, notify domain.ResourceUpdateNotifier) []mcpRegistrationModule {
	return []mcpRegistrationModule{
		{name: mcpMessageToolsModuleName, tools: messageTools(chatService, notify)},
		{name: mcpChapterToolsModuleName, tools: chapterTools(chatService, notify)},
		{name: mcpReadToolsModuleName, tools: readTools(chatService)},
		{name: mcpChatResourceModuleName, resources: chatResources(chatService)},
	}
}
