package domain

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/storyloom/internal/services/story/projection"
)

// ChatHistoryGetInput represents the MCP tool input for reading the history.
type ChatHistoryGetInput struct {
	ChatID string `json:"chat_id" jsonschema:"chat identifier"`
}

// ChatHistoryGetResult represents the visible full history of a chat.
type ChatHistoryGetResult struct {
	ChatID  string         `json:"chat_id" jsonschema:"chat identifier"`
	Entries []HistoryEntry `json:"entries" jsonschema:"visible entries in creation order"`
}

// ChatHistoryGetTool defines the MCP tool schema for reading the history.
func ChatHistoryGetTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "chat_history_get",
		Description: "Lists the visible entries of a chat: messages, chapters, the story, and image jobs.",
	}
}

// ChatHistoryGetHandler executes a history read.
func ChatHistoryGetHandler(service ChatService) mcp.ToolHandlerFor[ChatHistoryGetInput, ChatHistoryGetResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ChatHistoryGetInput) (*mcp.CallToolResult, ChatHistoryGetResult, error) {
		if err := requireService(service); err != nil {
			return nil, ChatHistoryGetResult{}, err
		}
		chatID, err := requireChatID(input.ChatID)
		if err != nil {
			return nil, ChatHistoryGetResult{}, err
		}
		runCtx, cancel := context.WithTimeout(ctx, chatCallTimeout)
		defer cancel()

		entries, err := service.History(runCtx, chatID)
		if err != nil {
			return nil, ChatHistoryGetResult{}, toolError("history get", err)
		}
		return nil, ChatHistoryGetResult{ChatID: chatID, Entries: historyEntries(entries)}, nil
	}
}

// ChatChapterMessagesGetInput represents the MCP tool input for reading the
// messages a chapter covers.
type ChatChapterMessagesGetInput struct {
	ChatID    string `json:"chat_id" jsonschema:"chat identifier"`
	ChapterID string `json:"chapter_id" jsonschema:"chapter identifier"`
}

// ChatChapterMessagesGetResult lists the covered entries.
type ChatChapterMessagesGetResult struct {
	ChatID    string         `json:"chat_id" jsonschema:"chat identifier"`
	ChapterID string         `json:"chapter_id" jsonschema:"chapter identifier"`
	Entries   []HistoryEntry `json:"entries" jsonschema:"covered entries in chapter order"`
}

// ChatChapterMessagesGetTool defines the MCP tool schema for chapter reads.
func ChatChapterMessagesGetTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "chat_chapter_messages_get",
		Description: "Lists the messages a chapter covers, including ones deleted since.",
	}
}

// ChatChapterMessagesGetHandler executes a chapter messages read.
func ChatChapterMessagesGetHandler(service ChatService) mcp.ToolHandlerFor[ChatChapterMessagesGetInput, ChatChapterMessagesGetResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ChatChapterMessagesGetInput) (*mcp.CallToolResult, ChatChapterMessagesGetResult, error) {
		if err := requireService(service); err != nil {
			return nil, ChatChapterMessagesGetResult{}, err
		}
		chatID, err := requireChatID(input.ChatID)
		if err != nil {
			return nil, ChatChapterMessagesGetResult{}, err
		}
		runCtx, cancel := context.WithTimeout(ctx, chatCallTimeout)
		defer cancel()

		entries, err := service.ChapterMessages(runCtx, chatID, input.ChapterID)
		if err != nil {
			return nil, ChatChapterMessagesGetResult{}, toolError("chapter messages get", err)
		}
		return nil, ChatChapterMessagesGetResult{
			ChatID:    chatID,
			ChapterID: input.ChapterID,
			Entries:   historyEntries(entries),
		}, nil
	}
}

// ChatContextGetInput represents the MCP tool input for reading the LLM
// context.
type ChatContextGetInput struct {
	ChatID string `json:"chat_id" jsonschema:"chat identifier"`
}

// ContextMessage is one role/content pair sent to a model.
type ContextMessage struct {
	Role    string `json:"role" jsonschema:"speaker role"`
	Content string `json:"content" jsonschema:"message text"`
}

// ChatContextGetResult represents the LLM-facing message list.
type ChatContextGetResult struct {
	ChatID          string           `json:"chat_id" jsonschema:"chat identifier"`
	Messages        []ContextMessage `json:"messages" jsonschema:"messages in prompt order"`
	ActiveChapterID string           `json:"active_chapter_id,omitempty" jsonschema:"most recent chapter, if any"`
	EstimatedTokens int              `json:"estimated_tokens" jsonschema:"rough token count of messages"`
}

// ChatContextGetTool defines the MCP tool schema for reading the LLM context.
func ChatContextGetTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "chat_context_get",
		Description: "Returns the compacted message list to send to a model, story first, with chapters rendered as summaries.",
	}
}

// ChatContextGetHandler executes a context read.
func ChatContextGetHandler(service ChatService) mcp.ToolHandlerFor[ChatContextGetInput, ChatContextGetResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ChatContextGetInput) (*mcp.CallToolResult, ChatContextGetResult, error) {
		if err := requireService(service); err != nil {
			return nil, ChatContextGetResult{}, err
		}
		chatID, err := requireChatID(input.ChatID)
		if err != nil {
			return nil, ChatContextGetResult{}, err
		}
		runCtx, cancel := context.WithTimeout(ctx, chatCallTimeout)
		defer cancel()

		view, err := service.Context(runCtx, chatID)
		if err != nil {
			return nil, ChatContextGetResult{}, toolError("context get", err)
		}
		return nil, ChatContextGetResult{
			ChatID:          chatID,
			Messages:        contextMessages(view.Messages),
			ActiveChapterID: view.ActiveChapterID,
			EstimatedTokens: view.EstimatedTokens,
		}, nil
	}
}

func contextMessages(messages []projection.Message) []ContextMessage {
	out := make([]ContextMessage, 0, len(messages))
	for _, msg := range messages {
		out = append(out, ContextMessage{Role: string(msg.Role), Content: msg.Content})
	}
	return out
}
