package domain

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/storyloom/internal/services/story/domain/event"
)

// ChatMessageAddInput represents the MCP tool input for adding a message.
type ChatMessageAddInput struct {
	ChatID  string `json:"chat_id" jsonschema:"chat identifier"`
	Role    string `json:"role" jsonschema:"speaker role (user, assistant, system)"`
	Content string `json:"content" jsonschema:"message text"`
}

// ChatMessageAddResult represents the MCP tool output for adding a message.
type ChatMessageAddResult struct {
	ChatID    string `json:"chat_id" jsonschema:"chat identifier"`
	MessageID string `json:"message_id" jsonschema:"identifier of the new message"`
}

// ChatMessageAddTool defines the MCP tool schema for adding a message.
func ChatMessageAddTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "chat_message_add",
		Description: "Appends a user, assistant, or system message to a chat.",
	}
}

// ChatMessageAddHandler executes a message add request.
func ChatMessageAddHandler(service ChatService, notify ResourceUpdateNotifier) mcp.ToolHandlerFor[ChatMessageAddInput, ChatMessageAddResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ChatMessageAddInput) (*mcp.CallToolResult, ChatMessageAddResult, error) {
		if err := requireService(service); err != nil {
			return nil, ChatMessageAddResult{}, err
		}
		chatID, err := requireChatID(input.ChatID)
		if err != nil {
			return nil, ChatMessageAddResult{}, err
		}
		runCtx, cancel := context.WithTimeout(ctx, chatCallTimeout)
		defer cancel()

		messageID, err := service.AddMessage(runCtx, chatID, event.Role(input.Role), input.Content)
		if err != nil {
			return nil, ChatMessageAddResult{}, toolError("message add", err)
		}
		NotifyChatUpdated(ctx, notify, chatID)
		return nil, ChatMessageAddResult{ChatID: chatID, MessageID: messageID}, nil
	}
}

// ChatMessageEditInput represents the MCP tool input for editing a message.
type ChatMessageEditInput struct {
	ChatID    string `json:"chat_id" jsonschema:"chat identifier"`
	MessageID string `json:"message_id" jsonschema:"message identifier"`
	Content   string `json:"content" jsonschema:"replacement text"`
}

// ChatMessageResult acknowledges a change to one message.
type ChatMessageResult struct {
	ChatID    string `json:"chat_id" jsonschema:"chat identifier"`
	MessageID string `json:"message_id" jsonschema:"message identifier"`
}

// ChatMessageEditTool defines the MCP tool schema for editing a message.
func ChatMessageEditTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "chat_message_edit",
		Description: "Replaces the text of a message. Unknown or deleted messages are left unchanged.",
	}
}

// ChatMessageEditHandler executes a message edit request.
func ChatMessageEditHandler(service ChatService, notify ResourceUpdateNotifier) mcp.ToolHandlerFor[ChatMessageEditInput, ChatMessageResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ChatMessageEditInput) (*mcp.CallToolResult, ChatMessageResult, error) {
		if err := requireService(service); err != nil {
			return nil, ChatMessageResult{}, err
		}
		chatID, err := requireChatID(input.ChatID)
		if err != nil {
			return nil, ChatMessageResult{}, err
		}
		runCtx, cancel := context.WithTimeout(ctx, chatCallTimeout)
		defer cancel()

		if err := service.EditMessage(runCtx, chatID, input.MessageID, input.Content); err != nil {
			return nil, ChatMessageResult{}, toolError("message edit", err)
		}
		NotifyChatUpdated(ctx, notify, chatID)
		return nil, ChatMessageResult{ChatID: chatID, MessageID: input.MessageID}, nil
	}
}

// ChatMessageDeleteInput represents the MCP tool input for deleting a message.
type ChatMessageDeleteInput struct {
	ChatID    string `json:"chat_id" jsonschema:"chat identifier"`
	MessageID string `json:"message_id" jsonschema:"message identifier"`
}

// ChatMessageDeleteTool defines the MCP tool schema for deleting a message.
func ChatMessageDeleteTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "chat_message_delete",
		Description: "Soft-deletes one message. It stays readable in the full history with deleted=true.",
	}
}

// ChatMessageDeleteHandler executes a message delete request.
func ChatMessageDeleteHandler(service ChatService, notify ResourceUpdateNotifier) mcp.ToolHandlerFor[ChatMessageDeleteInput, ChatMessageResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ChatMessageDeleteInput) (*mcp.CallToolResult, ChatMessageResult, error) {
		if err := requireService(service); err != nil {
			return nil, ChatMessageResult{}, err
		}
		chatID, err := requireChatID(input.ChatID)
		if err != nil {
			return nil, ChatMessageResult{}, err
		}
		runCtx, cancel := context.WithTimeout(ctx, chatCallTimeout)
		defer cancel()

		if err := service.DeleteMessage(runCtx, chatID, input.MessageID); err != nil {
			return nil, ChatMessageResult{}, toolError("message delete", err)
		}
		NotifyChatUpdated(ctx, notify, chatID)
		return nil, ChatMessageResult{ChatID: chatID, MessageID: input.MessageID}, nil
	}
}

// ChatMessagesTruncateInput represents the MCP tool input for deleting a
// message and everything after it.
type ChatMessagesTruncateInput struct {
	ChatID    string `json:"chat_id" jsonschema:"chat identifier"`
	MessageID string `json:"message_id" jsonschema:"first message to delete"`
}

// ChatMessagesTruncateResult lists the deleted message ids.
type ChatMessagesTruncateResult struct {
	ChatID     string   `json:"chat_id" jsonschema:"chat identifier"`
	MessageIDs []string `json:"message_ids" jsonschema:"soft-deleted message identifiers, in order"`
}

// ChatMessagesTruncateTool defines the MCP tool schema for truncating a chat.
func ChatMessagesTruncateTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "chat_messages_truncate",
		Description: "Soft-deletes a message and every visible message after it. Chapters and the story are kept. An unknown message id deletes only the last visible message.",
	}
}

// ChatMessagesTruncateHandler executes a truncate request.
func ChatMessagesTruncateHandler(service ChatService, notify ResourceUpdateNotifier) mcp.ToolHandlerFor[ChatMessagesTruncateInput, ChatMessagesTruncateResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ChatMessagesTruncateInput) (*mcp.CallToolResult, ChatMessagesTruncateResult, error) {
		if err := requireService(service); err != nil {
			return nil, ChatMessagesTruncateResult{}, err
		}
		chatID, err := requireChatID(input.ChatID)
		if err != nil {
			return nil, ChatMessagesTruncateResult{}, err
		}
		runCtx, cancel := context.WithTimeout(ctx, chatCallTimeout)
		defer cancel()

		deleted, err := service.DeleteFrom(runCtx, chatID, input.MessageID)
		if err != nil {
			return nil, ChatMessagesTruncateResult{}, toolError("messages truncate", err)
		}
		NotifyChatUpdated(ctx, notify, chatID)
		return nil, ChatMessagesTruncateResult{ChatID: chatID, MessageIDs: deleted}, nil
	}
}

// ChatCivitJobRecordInput represents the MCP tool input for recording an
// image generation job.
type ChatCivitJobRecordInput struct {
	ChatID string `json:"chat_id" jsonschema:"chat identifier"`
	JobID  string `json:"job_id" jsonschema:"external image job identifier"`
	Prompt string `json:"prompt,omitempty" jsonschema:"prompt the job was started with"`
}

// ChatCivitJobRecordResult acknowledges a recorded job.
type ChatCivitJobRecordResult struct {
	ChatID string `json:"chat_id" jsonschema:"chat identifier"`
	JobID  string `json:"job_id" jsonschema:"external image job identifier"`
}

// ChatCivitJobRecordTool defines the MCP tool schema for recording a job.
func ChatCivitJobRecordTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "chat_civit_job_record",
		Description: "Records an external image generation job in the chat history. Jobs never reach the LLM context.",
	}
}

// ChatCivitJobRecordHandler executes a job record request.
func ChatCivitJobRecordHandler(service ChatService, notify ResourceUpdateNotifier) mcp.ToolHandlerFor[ChatCivitJobRecordInput, ChatCivitJobRecordResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ChatCivitJobRecordInput) (*mcp.CallToolResult, ChatCivitJobRecordResult, error) {
		if err := requireService(service); err != nil {
			return nil, ChatCivitJobRecordResult{}, err
		}
		chatID, err := requireChatID(input.ChatID)
		if err != nil {
			return nil, ChatCivitJobRecordResult{}, err
		}
		runCtx, cancel := context.WithTimeout(ctx, chatCallTimeout)
		defer cancel()

		if err := service.RecordCivitJob(runCtx, chatID, input.JobID, input.Prompt); err != nil {
			return nil, ChatCivitJobRecordResult{}, toolError("civit job record", err)
		}
		notify.historyOnly(ctx, chatID)
		return nil, ChatCivitJobRecordResult{ChatID: chatID, JobID: input.JobID}, nil
	}
}
