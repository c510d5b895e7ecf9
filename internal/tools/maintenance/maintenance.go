package maintenance

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/louisbranch/storyloom/internal/platform/config"
	"github.com/louisbranch/storyloom/internal/services/story/app"
	"github.com/louisbranch/storyloom/internal/services/story/domain/encoding"
	"github.com/louisbranch/storyloom/internal/services/story/domain/event"
	"github.com/louisbranch/storyloom/internal/services/story/eventlog"
	"github.com/louisbranch/storyloom/internal/services/story/projection"
	"github.com/louisbranch/storyloom/internal/services/story/storage"
)

const replayPageSize = 200

// Views supported by the maintenance command.
const (
	ViewHistory = "history"
	ViewContext = "context"
	ViewVerify  = "verify"
	ViewChats   = "chats"
)

// Config holds maintenance command configuration.
type Config struct {
	ChatID      string
	ChatIDs     string
	View        string
	WarningsCap int
	JSONOutput  bool
	Timeout     time.Duration `env:"STORYLOOM_MAINTENANCE_TIMEOUT" envDefault:"10m"`

	Store app.StoreConfig
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Config{WarningsCap: 25}
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.ChatID, "chat-id", "", "chat ID to replay")
	fs.StringVar(&cfg.ChatIDs, "chat-ids", "", "comma-separated chat IDs to replay")
	fs.StringVar(&cfg.View, "view", ViewHistory, "what to print: history, context, verify, or chats")
	fs.StringVar(&cfg.Store.Backend, "store", cfg.Store.Backend, "event store backend: sqlite, pebble, or memory")
	fs.StringVar(&cfg.Store.DBPath, "db-path", cfg.Store.DBPath, "path to the sqlite event database (default: STORYLOOM_DB_PATH or data/storyloom.db)")
	fs.StringVar(&cfg.Store.PebbleDir, "pebble-dir", cfg.Store.PebbleDir, "directory of the pebble event store (default: STORYLOOM_PEBBLE_DIR or data/events)")
	fs.IntVar(&cfg.WarningsCap, "warnings-cap", cfg.WarningsCap, "max warnings to print (0 = no limit)")
	fs.BoolVar(&cfg.JSONOutput, "json", false, "output JSON reports")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "overall timeout")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run executes the maintenance command.
func Run(ctx context.Context, cfg Config, out io.Writer, errOut io.Writer) error {
	cfg.View = strings.ToLower(strings.TrimSpace(cfg.View))
	if cfg.View == "" {
		cfg.View = ViewHistory
	}
	switch cfg.View {
	case ViewHistory, ViewContext, ViewVerify:
		if _, err := resolveChatIDs(cfg.ChatID, cfg.ChatIDs); err != nil {
			return err
		}
	case ViewChats:
		if cfg.ChatID != "" || cfg.ChatIDs != "" {
			return errors.New("-view chats cannot be combined with -chat-id or -chat-ids")
		}
	default:
		return fmt.Errorf("unknown -view %q", cfg.View)
	}
	if cfg.WarningsCap < 0 {
		return errors.New("-warnings-cap must be >= 0")
	}

	store, err := app.OpenStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	options, err := app.CoordinatorOptions(cfg.Store)
	if err != nil {
		_ = store.Close()
		return err
	}
	return runWithDeps(ctx, cfg, store, options, out, errOut)
}

// runWithDeps contains the core maintenance logic with injectable dependencies.
// It owns the lifecycle of the store (closing it on return).
func runWithDeps(ctx context.Context, cfg Config, store storage.Store, options eventlog.Options, out io.Writer, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(errOut, "Error: close event store: %v\n", err)
		}
	}()

	if cfg.View == ViewChats {
		return runChats(ctx, store, cfg.JSONOutput, out)
	}

	ids, err := resolveChatIDs(cfg.ChatID, cfg.ChatIDs)
	if err != nil {
		return err
	}

	failed := false
	for _, id := range ids {
		result := runChat(ctx, store, options, id, cfg)
		if cfg.JSONOutput {
			outputJSON(out, errOut, result)
		} else {
			prefix := ""
			if len(ids) > 1 {
				prefix = fmt.Sprintf("[%s] ", id)
			}
			printResult(out, errOut, result, prefix)
		}
		if result.ExitCode != 0 {
			failed = true
		}
	}
	if failed {
		return errors.New("maintenance failed")
	}
	return nil
}

type historyReport struct {
	LastSeq uint64             `json:"last_seq"`
	Entries []projection.Entry `json:"entries"`
}

type contextReport struct {
	LastSeq uint64 `json:"last_seq"`
	app.ContextView
}

type verifyReport struct {
	LastSeq            uint64 `json:"last_seq"`
	TotalEvents        int    `json:"total_events"`
	InvalidEvents      int    `json:"invalid_events"`
	HistoryFingerprint string `json:"history_fingerprint"`
	ContextFingerprint string `json:"context_fingerprint"`
	Match              bool   `json:"match"`
}

type runResult struct {
	ChatID        string          `json:"chat_id"`
	Mode          string          `json:"mode"`
	Report        json.RawMessage `json:"report,omitempty"`
	Warnings      []string        `json:"warnings,omitempty"`
	WarningsTotal int             `json:"warnings_total,omitempty"`
	Error         string          `json:"error,omitempty"`
	ExitCode      int             `json:"-"`
}

func runChat(ctx context.Context, store storage.EventStore, options eventlog.Options, chatID string, cfg Config) runResult {
	result := runResult{ChatID: chatID, Mode: cfg.View}

	var report any
	var err error
	switch cfg.View {
	case ViewContext:
		report, err = contextView(ctx, store, options, chatID)
	case ViewVerify:
		var verify verifyReport
		var warnings []string
		verify, warnings, err = verifyChat(ctx, store, options, chatID)
		result.Warnings, result.WarningsTotal = capWarnings(warnings, cfg.WarningsCap)
		if err == nil && !verify.Match {
			result.Error = "replay fingerprints differ"
			result.ExitCode = 1
		}
		report = verify
	default:
		report, err = historyView(ctx, store, options, chatID)
	}
	if err != nil {
		result.Error = err.Error()
		result.ExitCode = 1
		return result
	}

	encoded, err := json.Marshal(report)
	if err != nil {
		result.Error = fmt.Sprintf("encode report: %v", err)
		result.ExitCode = 1
		return result
	}
	result.Report = encoded
	return result
}

func replay(ctx context.Context, store storage.EventStore, options eventlog.Options, chatID string) (*eventlog.Coordinator, error) {
	coordinator, err := eventlog.NewCoordinator(store, chatID, options)
	if err != nil {
		return nil, err
	}
	if err := coordinator.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("replay chat %s: %w", chatID, err)
	}
	return coordinator, nil
}

func historyView(ctx context.Context, store storage.EventStore, options eventlog.Options, chatID string) (historyReport, error) {
	coordinator, err := replay(ctx, store, options, chatID)
	if err != nil {
		return historyReport{}, err
	}
	return historyReport{LastSeq: coordinator.LastSeq(), Entries: coordinator.History().Messages()}, nil
}

func contextView(ctx context.Context, store storage.EventStore, options eventlog.Options, chatID string) (contextReport, error) {
	coordinator, err := replay(ctx, store, options, chatID)
	if err != nil {
		return contextReport{}, err
	}
	llm := coordinator.Context()
	messages := llm.Messages()
	activeID, _ := llm.ActiveChapterID()
	return contextReport{
		LastSeq: coordinator.LastSeq(),
		ContextView: app.ContextView{
			Messages:        messages,
			ActiveChapterID: activeID,
			EstimatedTokens: projection.EstimateTokens(messages),
		},
	}, nil
}

// verifyChat replays the chat twice into fresh projections and compares their
// fingerprints, then scans the raw log for events replay would skip.
func verifyChat(ctx context.Context, store storage.EventStore, options eventlog.Options, chatID string) (verifyReport, []string, error) {
	first, err := replay(ctx, store, options, chatID)
	if err != nil {
		return verifyReport{}, nil, err
	}
	second, err := replay(ctx, store, options, chatID)
	if err != nil {
		return verifyReport{}, nil, err
	}

	firstHistory, err := encoding.Fingerprint(first.History().Messages())
	if err != nil {
		return verifyReport{}, nil, fmt.Errorf("fingerprint history: %w", err)
	}
	secondHistory, err := encoding.Fingerprint(second.History().Messages())
	if err != nil {
		return verifyReport{}, nil, fmt.Errorf("fingerprint history: %w", err)
	}
	firstContext, err := encoding.Fingerprint(first.Context().Messages())
	if err != nil {
		return verifyReport{}, nil, fmt.Errorf("fingerprint context: %w", err)
	}
	secondContext, err := encoding.Fingerprint(second.Context().Messages())
	if err != nil {
		return verifyReport{}, nil, fmt.Errorf("fingerprint context: %w", err)
	}

	total, warnings, err := scanEvents(ctx, store, options.Sealer, chatID)
	if err != nil {
		return verifyReport{}, nil, err
	}
	return verifyReport{
		LastSeq:            first.LastSeq(),
		TotalEvents:        total,
		InvalidEvents:      len(warnings),
		HistoryFingerprint: firstHistory,
		ContextFingerprint: firstContext,
		Match:              firstHistory == secondHistory && firstContext == secondContext && first.LastSeq() == second.LastSeq(),
	}, warnings, nil
}

// scanEvents pages through the stored log and reports every event replay
// cannot open or decode.
func scanEvents(ctx context.Context, store storage.EventStore, sealer eventlog.Sealer, chatID string) (int, []string, error) {
	var (
		afterSeq uint64
		total    int
		warnings []string
	)
	for {
		page, err := store.ListEvents(ctx, chatID, afterSeq, replayPageSize)
		if err != nil {
			return 0, nil, fmt.Errorf("list events: %w", err)
		}
		if len(page) == 0 {
			return total, warnings, nil
		}
		for _, evt := range page {
			total++
			afterSeq = evt.Seq
			if sealer != nil {
				plain, err := sealer.Open(evt.ChatID, evt.ID, evt.PayloadJSON)
				if err != nil {
					warnings = append(warnings, fmt.Sprintf("seq %d type %s: open payload: %v", evt.Seq, evt.Type, err))
					continue
				}
				evt.PayloadJSON = plain
			}
			if _, err := event.DecodePayload(evt); err != nil {
				warnings = append(warnings, fmt.Sprintf("seq %d type %s: %v", evt.Seq, evt.Type, err))
			}
		}
	}
}

func runChats(ctx context.Context, lister storage.ChatLister, jsonOutput bool, out io.Writer) error {
	ids, err := lister.ListChatIDs(ctx)
	if err != nil {
		return fmt.Errorf("list chats: %w", err)
	}
	if jsonOutput {
		if ids == nil {
			ids = []string{}
		}
		encoded, err := json.Marshal(struct {
			Mode    string   `json:"mode"`
			ChatIDs []string `json:"chat_ids"`
		}{Mode: ViewChats, ChatIDs: ids})
		if err != nil {
			return fmt.Errorf("encode chats: %w", err)
		}
		fmt.Fprintln(out, string(encoded))
		return nil
	}
	for _, id := range ids {
		fmt.Fprintln(out, id)
	}
	return nil
}

func resolveChatIDs(single, list string) ([]string, error) {
	single = strings.TrimSpace(single)
	list = strings.TrimSpace(list)
	if single != "" && list != "" {
		return nil, errors.New("-chat-id cannot be combined with -chat-ids")
	}
	if single != "" {
		return []string{single}, nil
	}
	ids := splitCSV(list)
	if len(ids) == 0 {
		return nil, errors.New("-chat-id or -chat-ids is required")
	}
	return ids, nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	output := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		output = append(output, trimmed)
	}
	return output
}

func capWarnings(warnings []string, limit int) ([]string, int) {
	total := len(warnings)
	if limit == 0 || total <= limit {
		return warnings, total
	}
	return warnings[:limit], total
}

func outputJSON(out io.Writer, errOut io.Writer, result runResult) {
	encoded, err := json.Marshal(result)
	if err != nil {
		fmt.Fprintf(errOut, "Error: encode report: %v\n", err)
		return
	}
	fmt.Fprintln(out, string(encoded))
}

func printResult(out io.Writer, errOut io.Writer, result runResult, prefix string) {
	if result.Error != "" {
		fmt.Fprintf(errOut, "%sError: %s\n", prefix, result.Error)
	}
	for _, warning := range result.Warnings {
		fmt.Fprintf(errOut, "%sWarning: %s\n", prefix, warning)
	}
	if result.WarningsTotal > len(result.Warnings) {
		fmt.Fprintf(errOut, "%sWarning: %d more warnings suppressed\n", prefix, result.WarningsTotal-len(result.Warnings))
	}
	if len(result.Report) == 0 {
		return
	}

	switch result.Mode {
	case ViewVerify:
		var report verifyReport
		if err := json.Unmarshal(result.Report, &report); err != nil {
			fmt.Fprintf(errOut, "%sError: decode report: %v\n", prefix, err)
			return
		}
		fmt.Fprintf(out, "%sVerified chat %s through seq %d (%d events, %d invalid)\n", prefix, result.ChatID, report.LastSeq, report.TotalEvents, report.InvalidEvents)
		fmt.Fprintf(out, "%sReplay match: %t (history=%s context=%s)\n", prefix, report.Match, report.HistoryFingerprint, report.ContextFingerprint)
	case ViewContext:
		var report contextReport
		if err := json.Unmarshal(result.Report, &report); err != nil {
			fmt.Fprintf(errOut, "%sError: decode report: %v\n", prefix, err)
			return
		}
		fmt.Fprintf(out, "%sContext for chat %s through seq %d (~%d tokens)\n", prefix, result.ChatID, report.LastSeq, report.EstimatedTokens)
		for _, message := range report.Messages {
			fmt.Fprintf(out, "%s%s: %s\n", prefix, message.Role, message.Content)
		}
	default:
		var report historyReport
		if err := json.Unmarshal(result.Report, &report); err != nil {
			fmt.Fprintf(errOut, "%sError: decode report: %v\n", prefix, err)
			return
		}
		fmt.Fprintf(out, "%sHistory for chat %s through seq %d (%d entries)\n", prefix, result.ChatID, report.LastSeq, len(report.Entries))
		for _, entry := range report.Entries {
			fmt.Fprintf(out, "%s%s %s %s\n", prefix, entry.ID, entry.Type, summarize(entry))
		}
	}
}

func summarize(entry projection.Entry) string {
	if entry.Chapter != nil {
		return entry.Chapter.Title
	}
	if entry.CivitJob != nil {
		return entry.CivitJob.JobID
	}
	return entry.Content
}
