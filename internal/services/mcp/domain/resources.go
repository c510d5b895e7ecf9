package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	chatURIScheme      = "chat://"
	historyResourceTag = "history"
	contextResourceTag = "context"
)

// HistoryResourceURI addresses the readable history of chatID.
func HistoryResourceURI(chatID string) string {
	return chatURIScheme + chatID + "/" + historyResourceTag
}

// ContextResourceURI addresses the readable LLM context of chatID.
func ContextResourceURI(chatID string) string {
	return chatURIScheme + chatID + "/" + contextResourceTag
}

// ChatHistoryResourceTemplate defines the MCP resource template for chat
// histories.
func ChatHistoryResourceTemplate() *mcp.ResourceTemplate {
	return &mcp.ResourceTemplate{
		Name:        "chat_history",
		Title:       "Chat history",
		Description: "Visible full history of a chat. URI format: chat://{chat_id}/history",
		MIMEType:    "application/json",
		URITemplate: "chat://{chat_id}/history",
	}
}

// ChatContextResourceTemplate defines the MCP resource template for chat LLM
// contexts.
func ChatContextResourceTemplate() *mcp.ResourceTemplate {
	return &mcp.ResourceTemplate{
		Name:        "chat_context",
		Title:       "Chat LLM context",
		Description: "Compacted model-ready messages of a chat. URI format: chat://{chat_id}/context",
		MIMEType:    "application/json",
		URITemplate: "chat://{chat_id}/context",
	}
}

// ChatHistoryResourceHandler returns a readable chat history resource.
func ChatHistoryResourceHandler(service ChatService) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		if err := requireService(service); err != nil {
			return nil, err
		}
		uri, chatID, err := resourceChatID(req, historyResourceTag)
		if err != nil {
			return nil, err
		}
		runCtx, cancel := context.WithTimeout(ctx, chatCallTimeout)
		defer cancel()

		entries, err := service.History(runCtx, chatID)
		if err != nil {
			return nil, toolError("history read", err)
		}
		return jsonResource(uri, ChatHistoryGetResult{ChatID: chatID, Entries: historyEntries(entries)})
	}
}

// ChatContextResourceHandler returns a readable chat context resource.
func ChatContextResourceHandler(service ChatService) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		if err := requireService(service); err != nil {
			return nil, err
		}
		uri, chatID, err := resourceChatID(req, contextResourceTag)
		if err != nil {
			return nil, err
		}
		runCtx, cancel := context.WithTimeout(ctx, chatCallTimeout)
		defer cancel()

		view, err := service.Context(runCtx, chatID)
		if err != nil {
			return nil, toolError("context read", err)
		}
		return jsonResource(uri, ChatContextGetResult{
			ChatID:          chatID,
			Messages:        contextMessages(view.Messages),
			ActiveChapterID: view.ActiveChapterID,
			EstimatedTokens: view.EstimatedTokens,
		})
	}
}

func resourceChatID(req *mcp.ReadResourceRequest, tag string) (uri, chatID string, err error) {
	if req == nil || req.Params == nil || req.Params.URI == "" {
		return "", "", fmt.Errorf("chat ID is required; use URI format chat://{chat_id}/%s", tag)
	}
	uri = req.Params.URI
	chatID, err = parseChatIDFromURI(uri, tag)
	if err != nil {
		return "", "", fmt.Errorf("parse chat ID from URI: %w", err)
	}
	return uri, chatID, nil
}

// parseChatIDFromURI extracts the chat id from chat://{chat_id}/{tag}.
func parseChatIDFromURI(uri, tag string) (string, error) {
	rest, ok := strings.CutPrefix(uri, chatURIScheme)
	if !ok {
		return "", fmt.Errorf("URI must start with %q", chatURIScheme)
	}
	chatID, ok := strings.CutSuffix(rest, "/"+tag)
	if !ok {
		return "", fmt.Errorf("URI must end with %q", "/"+tag)
	}
	chatID = strings.TrimSpace(chatID)
	if chatID == "" || strings.Contains(chatID, "/") || strings.HasPrefix(chatID, "{") {
		return "", fmt.Errorf("chat ID is required in URI")
	}
	return chatID, nil
}

func jsonResource(uri string, payload any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal resource: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(data),
			},
		},
	}, nil
}
