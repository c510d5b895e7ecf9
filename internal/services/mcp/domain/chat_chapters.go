package domain

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/storyloom/internal/services/story/domain/event"
)

// ChatChapterCompactInput represents the MCP tool input for compacting the
// visible messages into a chapter.
type ChatChapterCompactInput struct {
	ChatID        string `json:"chat_id" jsonschema:"chat identifier"`
	Title         string `json:"title" jsonschema:"chapter title"`
	Summary       string `json:"summary,omitempty" jsonschema:"summary of the covered messages"`
	NextDirection string `json:"next_direction,omitempty" jsonschema:"direction for continuing the story"`
}

// ChatChapterCompactResult represents the MCP tool output for a new chapter.
type ChatChapterCompactResult struct {
	ChatID    string `json:"chat_id" jsonschema:"chat identifier"`
	ChapterID string `json:"chapter_id" jsonschema:"identifier of the new chapter"`
}

// ChatChapterCompactTool defines the MCP tool schema for compaction.
func ChatChapterCompactTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "chat_chapter_compact",
		Description: "Folds every visible message into a new chapter. The LLM context keeps the last 6 covered messages until 6 new ones follow the chapter.",
	}
}

// ChatChapterCompactHandler executes a compaction request.
func ChatChapterCompactHandler(service ChatService, notify ResourceUpdateNotifier) mcp.ToolHandlerFor[ChatChapterCompactInput, ChatChapterCompactResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ChatChapterCompactInput) (*mcp.CallToolResult, ChatChapterCompactResult, error) {
		if err := requireService(service); err != nil {
			return nil, ChatChapterCompactResult{}, err
		}
		chatID, err := requireChatID(input.ChatID)
		if err != nil {
			return nil, ChatChapterCompactResult{}, err
		}
		runCtx, cancel := context.WithTimeout(ctx, chatCallTimeout)
		defer cancel()

		chapterID, err := service.Compact(runCtx, chatID, event.ChapterInput{
			Title:         input.Title,
			Summary:       input.Summary,
			NextDirection: input.NextDirection,
		})
		if err != nil {
			return nil, ChatChapterCompactResult{}, toolError("chapter compact", err)
		}
		NotifyChatUpdated(ctx, notify, chatID)
		return nil, ChatChapterCompactResult{ChatID: chatID, ChapterID: chapterID}, nil
	}
}

// ChatChapterEditInput represents the MCP tool input for patching a chapter.
// Omitted fields keep their current value.
type ChatChapterEditInput struct {
	ChatID        string  `json:"chat_id" jsonschema:"chat identifier"`
	ChapterID     string  `json:"chapter_id" jsonschema:"chapter identifier"`
	Title         *string `json:"title,omitempty" jsonschema:"new title"`
	Summary       *string `json:"summary,omitempty" jsonschema:"new summary"`
	NextDirection *string `json:"next_direction,omitempty" jsonschema:"new direction; empty clears it"`
}

// ChatChapterResult acknowledges a change to one chapter.
type ChatChapterResult struct {
	ChatID    string `json:"chat_id" jsonschema:"chat identifier"`
	ChapterID string `json:"chapter_id" jsonschema:"chapter identifier"`
}

// ChatChapterEditTool defines the MCP tool schema for editing a chapter.
func ChatChapterEditTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "chat_chapter_edit",
		Description: "Updates a chapter's title, summary, or next direction.",
	}
}

// ChatChapterEditHandler executes a chapter edit request.
func ChatChapterEditHandler(service ChatService, notify ResourceUpdateNotifier) mcp.ToolHandlerFor[ChatChapterEditInput, ChatChapterResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ChatChapterEditInput) (*mcp.CallToolResult, ChatChapterResult, error) {
		if err := requireService(service); err != nil {
			return nil, ChatChapterResult{}, err
		}
		chatID, err := requireChatID(input.ChatID)
		if err != nil {
			return nil, ChatChapterResult{}, err
		}
		runCtx, cancel := context.WithTimeout(ctx, chatCallTimeout)
		defer cancel()

		patch := event.ChapterPatch{Title: input.Title, Summary: input.Summary, NextDirection: input.NextDirection}
		if err := service.EditChapter(runCtx, chatID, input.ChapterID, patch); err != nil {
			return nil, ChatChapterResult{}, toolError("chapter edit", err)
		}
		NotifyChatUpdated(ctx, notify, chatID)
		return nil, ChatChapterResult{ChatID: chatID, ChapterID: input.ChapterID}, nil
	}
}

// ChatChapterDeleteInput represents the MCP tool input for deleting a chapter.
type ChatChapterDeleteInput struct {
	ChatID    string `json:"chat_id" jsonschema:"chat identifier"`
	ChapterID string `json:"chapter_id" jsonschema:"chapter identifier"`
}

// ChatChapterDeleteTool defines the MCP tool schema for deleting a chapter.
func ChatChapterDeleteTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "chat_chapter_delete",
		Description: "Deletes a chapter and restores the messages it covered.",
	}
}

// ChatChapterDeleteHandler executes a chapter delete request.
func ChatChapterDeleteHandler(service ChatService, notify ResourceUpdateNotifier) mcp.ToolHandlerFor[ChatChapterDeleteInput, ChatChapterResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ChatChapterDeleteInput) (*mcp.CallToolResult, ChatChapterResult, error) {
		if err := requireService(service); err != nil {
			return nil, ChatChapterResult{}, err
		}
		chatID, err := requireChatID(input.ChatID)
		if err != nil {
			return nil, ChatChapterResult{}, err
		}
		runCtx, cancel := context.WithTimeout(ctx, chatCallTimeout)
		defer cancel()

		if err := service.DeleteChapter(runCtx, chatID, input.ChapterID); err != nil {
			return nil, ChatChapterResult{}, toolError("chapter delete", err)
		}
		NotifyChatUpdated(ctx, notify, chatID)
		return nil, ChatChapterResult{ChatID: chatID, ChapterID: input.ChapterID}, nil
	}
}

// ChatStorySetInput represents the MCP tool input for setting the story.
type ChatStorySetInput struct {
	ChatID  string `json:"chat_id" jsonschema:"chat identifier"`
	Content string `json:"content" jsonschema:"story prologue; empty hides it from the LLM context"`
}

// ChatStorySetResult represents the MCP tool output for setting the story.
type ChatStorySetResult struct {
	ChatID  string `json:"chat_id" jsonschema:"chat identifier"`
	StoryID string `json:"story_id" jsonschema:"story identifier"`
}

// ChatStorySetTool defines the MCP tool schema for setting the story.
func ChatStorySetTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "chat_story_set",
		Description: "Creates the chat's story prologue, or replaces its text when one exists. The story always leads the LLM context.",
	}
}

// ChatStorySetHandler executes a story set request.
func ChatStorySetHandler(service ChatService, notify ResourceUpdateNotifier) mcp.ToolHandlerFor[ChatStorySetInput, ChatStorySetResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ChatStorySetInput) (*mcp.CallToolResult, ChatStorySetResult, error) {
		if err := requireService(service); err != nil {
			return nil, ChatStorySetResult{}, err
		}
		chatID, err := requireChatID(input.ChatID)
		if err != nil {
			return nil, ChatStorySetResult{}, err
		}
		runCtx, cancel := context.WithTimeout(ctx, chatCallTimeout)
		defer cancel()

		storyID, err := service.SetStory(runCtx, chatID, input.Content)
		if err != nil {
			return nil, ChatStorySetResult{}, toolError("story set", err)
		}
		NotifyChatUpdated(ctx, notify, chatID)
		return nil, ChatStorySetResult{ChatID: chatID, StoryID: storyID}, nil
	}
}
