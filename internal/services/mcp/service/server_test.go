package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/storyloom/internal/services/mcp/domain"
	"github.com/louisbranch/storyloom/internal/services/story/app"
	"github.com/louisbranch/storyloom/internal/services/story/eventlog"
	"github.com/louisbranch/storyloom/internal/services/story/storage/memory"
)

func newTestSession(t *testing.T) *mcp.ClientSession {
	t.Helper()

	chatService, err := app.NewService(memory.New(), eventlog.Options{})
	if err != nil {
		t.Fatalf("new chat service: %v", err)
	}
	server, err := newServer(chatService)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := server.mcpServer.Connect(ctx, serverTransport, nil)
	if err != nil {
		cancel()
		t.Fatalf("connect server: %v", err)
	}
	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	clientSession, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		cancel()
		t.Fatalf("connect client: %v", err)
	}
	t.Cleanup(func() {
		_ = clientSession.Close()
		_ = serverSession.Wait()
		cancel()
	})
	return clientSession
}

func callTool[O any](t *testing.T, session *mcp.ClientSession, name string, args any) O {
	t.Helper()

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("call %s: %v", name, err)
	}
	if result.IsError {
		t.Fatalf("call %s returned tool error: %+v", name, result.Content)
	}
	raw, err := json.Marshal(result.StructuredContent)
	if err != nil {
		t.Fatalf("marshal %s output: %v", name, err)
	}
	var out O
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode %s output: %v", name, err)
	}
	return out
}

func TestNewServerRegistersTools(t *testing.T) {
	session := newTestSession(t)

	tools, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	names := make(map[string]bool, len(tools.Tools))
	for _, tool := range tools.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{
		"chat_message_add",
		"chat_message_edit",
		"chat_message_delete",
		"chat_messages_truncate",
		"chat_civit_job_record",
		"chat_chapter_compact",
		"chat_chapter_edit",
		"chat_chapter_delete",
		"chat_story_set",
		"chat_history_get",
		"chat_chapter_messages_get",
		"chat_context_get",
	} {
		if !names[want] {
			t.Fatalf("tool %q not registered; got %v", want, names)
		}
	}

	templates, err := session.ListResourceTemplates(context.Background(), nil)
	if err != nil {
		t.Fatalf("list resource templates: %v", err)
	}
	if len(templates.ResourceTemplates) != 2 {
		t.Fatalf("resource templates = %d, want 2", len(templates.ResourceTemplates))
	}
}

func TestServerToolRoundTrip(t *testing.T) {
	session := newTestSession(t)

	for _, content := range []string{"once upon a time", "a dragon appeared"} {
		added := callTool[domain.ChatMessageAddResult](t, session, "chat_message_add", map[string]any{
			"chat_id": "chat-1",
			"role":    "user",
			"content": content,
		})
		if added.MessageID == "" {
			t.Fatal("expected message id")
		}
	}

	compacted := callTool[domain.ChatChapterCompactResult](t, session, "chat_chapter_compact", map[string]any{
		"chat_id": "chat-1",
		"title":   "Prologue",
		"summary": "the dragon arrives",
	})
	if compacted.ChapterID == "" {
		t.Fatal("expected chapter id")
	}

	history := callTool[domain.ChatHistoryGetResult](t, session, "chat_history_get", map[string]any{"chat_id": "chat-1"})
	if len(history.Entries) != 1 || history.Entries[0].ID != compacted.ChapterID {
		t.Fatalf("history entries = %+v, want only the chapter", history.Entries)
	}

	view := callTool[domain.ChatContextGetResult](t, session, "chat_context_get", map[string]any{"chat_id": "chat-1"})
	if view.ActiveChapterID != compacted.ChapterID {
		t.Fatalf("active chapter = %q, want %q", view.ActiveChapterID, compacted.ChapterID)
	}
	if len(view.Messages) != 3 {
		t.Fatalf("context messages = %d, want buffered pair plus chapter", len(view.Messages))
	}
	if last := view.Messages[2]; last.Role != "system" || !strings.Contains(last.Content, "Prologue") {
		t.Fatalf("last context message = %+v, want chapter summary", last)
	}
}

func TestServerToolErrorIsReported(t *testing.T) {
	session := newTestSession(t)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "chat_message_add",
		Arguments: map[string]any{"chat_id": "chat-1", "role": "narrator", "content": "hi"},
	})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for invalid role")
	}
}

func TestServerReadResource(t *testing.T) {
	session := newTestSession(t)

	callTool[domain.ChatMessageAddResult](t, session, "chat_message_add", map[string]any{
		"chat_id": "chat-2",
		"role":    "assistant",
		"content": "hello",
	})

	result, err := session.ReadResource(context.Background(), &mcp.ReadResourceParams{URI: domain.HistoryResourceURI("chat-2")})
	if err != nil {
		t.Fatalf("read resource: %v", err)
	}
	if len(result.Contents) != 1 {
		t.Fatalf("contents = %d, want 1", len(result.Contents))
	}
	if !strings.Contains(result.Contents[0].Text, "hello") {
		t.Fatalf("resource text = %q, want message content", result.Contents[0].Text)
	}
}

func TestRegisterModulesRejectsDuplicateTools(t *testing.T) {
	server := mcp.NewServer(&mcp.Implementation{Name: "test", Version: "0"}, nil)
	tools := readTools(nil)
	err := registerModules(server, []mcpRegistrationModule{
		{name: "first", tools: tools},
		{name: "second", tools: tools[:1]},
	})
	if err == nil || !strings.Contains(err.Error(), "chat_history_get") || !strings.Contains(err.Error(), "first") {
		t.Fatalf("expected duplicate tool error, got %v", err)
	}
}

func TestResourceSubscribeHandlerRequiresURI(t *testing.T) {
	if err := resourceSubscribeHandler(context.Background(), &mcp.SubscribeRequest{Params: &mcp.SubscribeParams{}}); err == nil {
		t.Fatal("expected error for empty uri")
	}
	if err := resourceSubscribeHandler(context.Background(), &mcp.SubscribeRequest{Params: &mcp.SubscribeParams{URI: "chat://a/history"}}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := resourceUnsubscribeHandler(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil request")
	}
}

func TestRunRejectsUnknownTransport(t *testing.T) {
	err := Run(context.Background(), Config{Transport: "carrier-pigeon"})
	if err == nil || !strings.Contains(err.Error(), "carrier-pigeon") {
		t.Fatalf("expected unsupported transport error, got %v", err)
	}
}

func TestServeWithTransportTreatsCancelAsClean(t *testing.T) {
	chatService, err := app.NewService(memory.New(), eventlog.Options{})
	if err != nil {
		t.Fatalf("new chat service: %v", err)
	}
	server, err := newServer(chatService)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	closer := &countingCloser{}
	server.closer = closer

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	serverTransport, _ := mcp.NewInMemoryTransports()
	if err := server.serveWithTransport(ctx, serverTransport); err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("serve: %v", err)
	}
	if closer.calls != 1 {
		t.Fatalf("close calls = %d, want 1", closer.calls)
	}
	if err := server.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if closer.calls != 1 {
		t.Fatalf("close calls after second close = %d, want 1", closer.calls)
	}
}

type countingCloser struct {
	calls int
}

func (c *countingCloser) Close() error {
	c.calls++
	return nil
}
