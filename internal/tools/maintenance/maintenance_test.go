package maintenance

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"os"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/louisbranch/storyloom/internal/services/story/app"
	"github.com/louisbranch/storyloom/internal/services/story/domain/event"
	"github.com/louisbranch/storyloom/internal/services/story/eventlog"
	"github.com/louisbranch/storyloom/internal/services/story/storage/memory"
)

func TestResolveChatIDs(t *testing.T) {
	tests := []struct {
		single   string
		list     string
		expected []string
		wantErr  bool
	}{
		{single: "", list: "", wantErr: true},
		{single: "c1", list: "c2", wantErr: true},
		{single: "c1", list: "", expected: []string{"c1"}},
		{single: "", list: "c1, c2", expected: []string{"c1", "c2"}},
		{single: "", list: " , c1 , , c2 ", expected: []string{"c1", "c2"}},
	}

	for _, tc := range tests {
		got, err := resolveChatIDs(tc.single, tc.list)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("expected error for %q/%q", tc.single, tc.list)
			}
			continue
		}
		if err != nil {
			t.Fatalf("unexpected error for %q/%q: %v", tc.single, tc.list, err)
		}
		if !reflect.DeepEqual(got, tc.expected) {
			t.Fatalf("expected %v, got %v", tc.expected, got)
		}
	}
}

func TestSplitCSV(t *testing.T) {
	if got := splitCSV(" a, b ,, "); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("expected trimmed entries, got %v", got)
	}
}

func TestCapWarnings(t *testing.T) {
	warnings := []string{"a", "b", "c"}
	if got, total := capWarnings(warnings, 0); total != 3 || len(got) != 3 {
		t.Fatalf("expected all warnings, got %v (total=%d)", got, total)
	}
	if got, total := capWarnings(warnings, 2); total != 3 || len(got) != 2 {
		t.Fatalf("expected capped warnings, got %v (total=%d)", got, total)
	}
}

func TestParseConfigDefaults(t *testing.T) {
	for _, key := range []string{"STORYLOOM_STORE", "STORYLOOM_DB_PATH", "STORYLOOM_MAINTENANCE_TIMEOUT"} {
		t.Setenv(key, "")
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("unset %s: %v", key, err)
		}
	}

	fs := flag.NewFlagSet("maintenance", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Store.DBPath != "data/storyloom.db" {
		t.Fatalf("expected default db path, got %q", cfg.Store.DBPath)
	}
	if cfg.View != ViewHistory {
		t.Fatalf("expected default view history, got %q", cfg.View)
	}
	if cfg.WarningsCap != 25 {
		t.Fatalf("expected warnings cap 25, got %d", cfg.WarningsCap)
	}
	if cfg.Timeout != 10*time.Minute {
		t.Fatalf("expected default timeout 10m, got %v", cfg.Timeout)
	}
}

func TestParseConfigOverrides(t *testing.T) {
	t.Setenv("STORYLOOM_DB_PATH", "env.db")

	fs := flag.NewFlagSet("maintenance", flag.ContinueOnError)
	args := []string{"-chat-id", "chat-1", "-view", "verify", "-store", "pebble", "-json", "-timeout", "1m"}
	cfg, err := ParseConfig(fs, args)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Store.DBPath != "env.db" {
		t.Fatalf("expected env db path, got %q", cfg.Store.DBPath)
	}
	if cfg.ChatID != "chat-1" || cfg.View != ViewVerify || cfg.Store.Backend != "pebble" || !cfg.JSONOutput {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Timeout != time.Minute {
		t.Fatalf("expected timeout 1m, got %v", cfg.Timeout)
	}
}

func TestRunValidatesFlags(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{name: "missing chat", cfg: Config{View: ViewHistory}, want: "-chat-id"},
		{name: "unknown view", cfg: Config{ChatID: "c1", View: "graph"}, want: "graph"},
		{name: "chats with id", cfg: Config{ChatID: "c1", View: ViewChats}, want: "cannot be combined"},
		{name: "negative cap", cfg: Config{ChatID: "c1", View: ViewHistory, WarningsCap: -1}, want: "warnings-cap"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := Run(context.Background(), tc.cfg, nil, nil)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func seededStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.New()
	service, err := app.NewService(store, eventlog.Options{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()
	if _, err := service.SetStory(ctx, "chat-1", "A quiet harbor town."); err != nil {
		t.Fatalf("set story: %v", err)
	}
	for _, content := range []string{"hello", "the tide rolls in"} {
		if _, err := service.AddMessage(ctx, "chat-1", event.RoleUser, content); err != nil {
			t.Fatalf("add message: %v", err)
		}
	}
	if _, err := service.Compact(ctx, "chat-1", event.ChapterInput{Title: "Arrival", Summary: "they arrive"}); err != nil {
		t.Fatalf("compact: %v", err)
	}
	return store
}

func decodeResult(t *testing.T, line string) runResult {
	t.Helper()
	var result runResult
	if err := json.Unmarshal([]byte(line), &result); err != nil {
		t.Fatalf("decode result %q: %v", line, err)
	}
	return result
}

func TestRunWithDepsHistoryJSON(t *testing.T) {
	store := seededStore(t)
	var out, errOut bytes.Buffer
	cfg := Config{ChatID: "chat-1", View: ViewHistory, JSONOutput: true}
	if err := runWithDeps(context.Background(), cfg, store, eventlog.Options{}, &out, &errOut); err != nil {
		t.Fatalf("run: %v (stderr=%s)", err, errOut.String())
	}

	result := decodeResult(t, strings.TrimSpace(out.String()))
	var report historyReport
	if err := json.Unmarshal(result.Report, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.LastSeq != 4 {
		t.Fatalf("last seq = %d, want 4", report.LastSeq)
	}
	// Compacted messages are hidden behind the chapter.
	if len(report.Entries) != 2 {
		t.Fatalf("entries = %d, want story and chapter", len(report.Entries))
	}
}

func TestRunWithDepsContextText(t *testing.T) {
	store := seededStore(t)
	var out, errOut bytes.Buffer
	cfg := Config{ChatID: "chat-1", View: ViewContext}
	if err := runWithDeps(context.Background(), cfg, store, eventlog.Options{}, &out, &errOut); err != nil {
		t.Fatalf("run: %v (stderr=%s)", err, errOut.String())
	}
	text := out.String()
	if !strings.Contains(text, "Context for chat chat-1 through seq 4") {
		t.Fatalf("missing context header: %q", text)
	}
	if !strings.Contains(text, "A quiet harbor town.") || !strings.Contains(text, "Arrival") {
		t.Fatalf("missing story or chapter in context output: %q", text)
	}
}

func TestRunWithDepsVerifyReportsInvalidEvents(t *testing.T) {
	store := seededStore(t)
	if _, err := store.AppendEvent(context.Background(), event.Event{
		ChatID:      "chat-1",
		ID:          "evt-bogus",
		Type:        event.Type("chat.unknown"),
		Timestamp:   time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC),
		PayloadJSON: []byte(`{}`),
	}); err != nil {
		t.Fatalf("append bogus event: %v", err)
	}

	var out, errOut bytes.Buffer
	cfg := Config{ChatID: "chat-1", View: ViewVerify, JSONOutput: true}
	if err := runWithDeps(context.Background(), cfg, store, eventlog.Options{}, &out, &errOut); err != nil {
		t.Fatalf("run: %v (stderr=%s)", err, errOut.String())
	}

	result := decodeResult(t, strings.TrimSpace(out.String()))
	var report verifyReport
	if err := json.Unmarshal(result.Report, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if !report.Match {
		t.Fatalf("expected replay match, got %+v", report)
	}
	if report.TotalEvents != 5 || report.InvalidEvents != 1 || report.LastSeq != 5 {
		t.Fatalf("unexpected verify report: %+v", report)
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "seq 5") {
		t.Fatalf("warnings = %v, want one for seq 5", result.Warnings)
	}
	if report.HistoryFingerprint == "" || report.ContextFingerprint == "" {
		t.Fatal("expected fingerprints")
	}
}

func TestRunWithDepsListsChats(t *testing.T) {
	store := seededStore(t)
	var out bytes.Buffer
	cfg := Config{View: ViewChats}
	if err := runWithDeps(context.Background(), cfg, store, eventlog.Options{}, &out, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "chat-1" {
		t.Fatalf("chats output = %q, want chat-1", got)
	}
}

func TestRunWithDepsMultipleChatsPrefixesOutput(t *testing.T) {
	store := seededStore(t)
	var out bytes.Buffer
	cfg := Config{ChatIDs: "chat-1,chat-2", View: ViewHistory}
	if err := runWithDeps(context.Background(), cfg, store, eventlog.Options{}, &out, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	text := out.String()
	if !strings.Contains(text, "[chat-1] History for chat chat-1") || !strings.Contains(text, "[chat-2] History for chat chat-2 through seq 0 (0 entries)") {
		t.Fatalf("unexpected output: %q", text)
	}
}
