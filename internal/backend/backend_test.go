package backend

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/Piebald-AI/gemini-cli-desktop/internal/backend/acp"
	"github.com/Piebald-AI/gemini-cli-desktop/internal/backend/config"
	"github.com/Piebald-AI/gemini-cli-desktop/internal/backend/events"
	"github.com/Piebald-AI/gemini-cli-desktop/internal/backend/session"
)

// recorderSink captures sink emissions for assertions.
type recorderSink struct {
	mu     sync.Mutex
	events []struct {
		channel string
		payload any
	}
}

func (r *recorderSink) Emit(channel string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, struct {
		channel string
		payload any
	}{channel, payload})
}

func (r *recorderSink) channels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.channel)
	}
	return out
}

func TestNextRequestIDStartsAtThousandAndIncreases(t *testing.T) {
	b := New(&recorderSink{}, nil)
	if id := b.NextRequestID(); id != 1000 {
		t.Fatalf("first id = %d, want 1000", id)
	}
	if id := b.NextRequestID(); id != 1001 {
		t.Fatalf("second id = %d, want 1001", id)
	}

	var wg sync.WaitGroup
	seen := make(chan uint32, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen <- b.NextRequestID()
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[uint32]bool)
	for id := range seen {
		if unique[id] {
			t.Fatalf("duplicate request id %d", id)
		}
		unique[id] = true
	}
}

func TestInitializeSessionRejectsConflictingConfigs(t *testing.T) {
	b := New(&recorderSink{}, nil)
	err := b.InitializeSession(context.Background(), "c1", "/tmp", "",
		&QwenConfig{APIKey: "k", BaseURL: "https://api.openai.com", Model: "m"},
		&GeminiAuthConfig{Method: "oauth-personal"},
		nil)
	if err == nil || !strings.Contains(err.Error(), "conflicting") {
		t.Fatalf("expected conflicting-config error, got %v", err)
	}
}

func TestInitializeSessionRejectsPrivateBaseURL(t *testing.T) {
	b := New(&recorderSink{}, nil)

	err := b.InitializeSession(context.Background(), "c1", "/tmp", "model",
		nil, nil, &LLxprtConfig{Provider: "openai", APIKey: "sk-x", BaseURL: "http://10.0.0.5"})
	if err == nil || !strings.Contains(err.Error(), "private IP") {
		t.Fatalf("expected private-IP rejection, got %v", err)
	}

	// Nothing was spawned and no credential variables remain.
	if statuses := b.GetProcessStatuses(); len(statuses) != 0 {
		t.Fatalf("no session should exist, got %+v", statuses)
	}
	for _, name := range []string{"OPENAI_API_KEY", "OPENAI_BASE_URL"} {
		if _, present := os.LookupEnv(name); present {
			t.Fatalf("%s must not be set after a rejected initialize", name)
		}
	}
}

func TestInitializeSessionRejectsMetadataBaseURL(t *testing.T) {
	b := New(&recorderSink{}, nil)
	err := b.InitializeSession(context.Background(), "c1", "/tmp", "m",
		&QwenConfig{APIKey: "k", BaseURL: "http://169.254.169.254", Model: "m"}, nil, nil)
	if err == nil {
		t.Fatal("metadata endpoint must be rejected")
	}
}

func TestSendMessageUnknownConversation(t *testing.T) {
	b := New(&recorderSink{}, nil)
	err := b.SendMessage(context.Background(), "ghost", "hello")
	if !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestHandleToolConfirmationUnknownACPSession(t *testing.T) {
	b := New(&recorderSink{}, nil)
	err := b.HandleToolConfirmation(context.Background(), "no-such-acp", 42, "t1", "proceed_once")
	if !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestPermissionOutcomeMapping(t *testing.T) {
	if got := permissionOutcome("cancel"); got.Outcome != acp.OutcomeCancelled || got.OptionID != "" {
		t.Fatalf("cancel mapping: %+v", got)
	}
	for _, outcome := range []string{"proceed_once", "proceed_always", "modify_with_editor", "never-seen-before"} {
		got := permissionOutcome(outcome)
		if got.Outcome != acp.OutcomeSelected || got.OptionID != outcome {
			t.Fatalf("%q mapping: %+v", outcome, got)
		}
	}
}

func TestKillProcessUnknownSucceedsAndEmitsSnapshot(t *testing.T) {
	sink := &recorderSink{}
	b := New(sink, nil)
	if err := b.KillProcess("ghost"); err != nil {
		t.Fatalf("kill of unknown conversation should succeed: %v", err)
	}
	found := false
	for _, ch := range sink.channels() {
		if ch == events.ChannelProcessStatusChanged {
			found = true
		}
	}
	if !found {
		t.Fatal("process-status-changed should be emitted after kill")
	}
}

func TestExecuteConfirmedCommandEmitsResult(t *testing.T) {
	sink := &recorderSink{}
	b := New(sink, nil)

	out, err := b.ExecuteConfirmedCommand(context.Background(), "echo confirmed")
	if err != nil {
		t.Fatalf("safe command should run: %v", err)
	}
	if !strings.Contains(out, "confirmed") {
		t.Fatalf("unexpected output %q", out)
	}

	if _, err := b.ExecuteConfirmedCommand(context.Background(), "rm -rf /"); err == nil {
		t.Fatal("unsafe command must fail")
	}

	var results []events.CommandResult
	sink.mu.Lock()
	for _, ev := range sink.events {
		if ev.channel == events.ChannelCommandResult {
			results = append(results, ev.payload.(events.CommandResult))
		}
	}
	sink.mu.Unlock()

	if len(results) != 2 {
		t.Fatalf("expected 2 command results, got %d", len(results))
	}
	if !results[0].Success || results[0].Output == nil {
		t.Fatalf("first result should be a success: %+v", results[0])
	}
	if results[1].Success || results[1].Error == nil {
		t.Fatalf("second result should be a failure: %+v", results[1])
	}
}

func TestConfigDefaultsApplied(t *testing.T) {
	b := New(&recorderSink{}, nil)
	if b.cfg.DefaultModel != config.Default().DefaultModel {
		t.Fatalf("nil config should fall back to defaults, got %+v", b.cfg)
	}
}

func TestTitleHelpers(t *testing.T) {
	if got := lastNonEmptyLine("banner\n\nThe Title\n\n"); got != "The Title" {
		t.Fatalf("lastNonEmptyLine = %q", got)
	}
	if got := lastNonEmptyLine("\n\n"); got != "" {
		t.Fatalf("blank input should yield empty, got %q", got)
	}
	if got := truncateRunes("héllo wörld", 5); got != "héllo" {
		t.Fatalf("truncateRunes = %q", got)
	}
	if got := truncateRunes("short", 30); got != "short" {
		t.Fatalf("truncateRunes should keep short strings, got %q", got)
	}
}
