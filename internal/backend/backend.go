// Package backend is the facade of the Session & ACP Multiplexer: the small
// request surface the UI shell calls, orchestrating the launcher, the
// session registry, mention parsing, and the permission round-trip. All
// asynchronous output flows through the events.Sink supplied at
// construction.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/Piebald-AI/gemini-cli-desktop/common/trace"
	"github.com/Piebald-AI/gemini-cli-desktop/internal/backend/acp"
	"github.com/Piebald-AI/gemini-cli-desktop/internal/backend/config"
	"github.com/Piebald-AI/gemini-cli-desktop/internal/backend/events"
	"github.com/Piebald-AI/gemini-cli-desktop/internal/backend/launcher"
	"github.com/Piebald-AI/gemini-cli-desktop/internal/backend/mention"
	"github.com/Piebald-AI/gemini-cli-desktop/internal/backend/rpc"
	"github.com/Piebald-AI/gemini-cli-desktop/internal/backend/secrets"
	"github.com/Piebald-AI/gemini-cli-desktop/internal/backend/security"
	"github.com/Piebald-AI/gemini-cli-desktop/internal/backend/session"
)

// firstRequestID seeds the in-session request id counter. Ids 1-3 are
// reserved for the handshake, so runtime requests start well clear of them.
const firstRequestID = 1000

// QwenConfig configures the qwen backend (OpenAI-compatible API).
type QwenConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	Yolo    bool   `json:"yolo,omitempty"`
}

// GeminiAuthConfig selects how the gemini backend authenticates.
type GeminiAuthConfig struct {
	// Method is one of oauth-personal, gemini-api-key, vertex-ai,
	// cloud-shell. Empty defaults to oauth-personal.
	Method         string `json:"method"`
	APIKey         string `json:"api_key,omitempty"`
	VertexProject  string `json:"vertex_project,omitempty"`
	VertexLocation string `json:"vertex_location,omitempty"`
	Yolo           bool   `json:"yolo,omitempty"`
}

// LLxprtConfig configures the llxprt backend.
type LLxprtConfig struct {
	// Provider is the UI provider name; openrouter is mapped to openai on
	// the command line.
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
	BaseURL  string `json:"base_url,omitempty"`
	Yolo     bool   `json:"yolo,omitempty"`
}

// Backend is the facade over the session multiplexer.
type Backend struct {
	sink     events.Sink
	registry *session.Registry
	guard    security.Guard
	cfg      *config.Config

	nextRequestID atomic.Uint32
}

// New creates a Backend emitting to sink, tuned by cfg (nil means
// defaults).
func New(sink events.Sink, cfg *config.Config) *Backend {
	if cfg == nil {
		cfg = config.Default()
	}
	b := &Backend{
		sink:     sink,
		registry: session.NewRegistry(),
		guard:    security.Guard{ExtraProviders: cfg.TrustedProviders},
		cfg:      cfg,
	}
	b.nextRequestID.Store(firstRequestID - 1)
	return b
}

// NextRequestID allocates a fresh in-session request id. Strictly
// increasing under any interleaving.
func (b *Backend) NextRequestID() uint32 {
	return b.nextRequestID.Add(1)
}

// CheckCLIInstalled reports whether the Gemini CLI responds to a version
// probe.
func (b *Backend) CheckCLIInstalled() bool {
	return launcher.Probe(launcher.KindGemini) == nil
}

// InitializeSession brings up a session for a conversation. When a live
// session with the requested backend already exists the call is a no-op; a
// live session with a different backend is torn down first, dropping its
// credential scope before the new one is applied. At most one backend
// config may be supplied.
func (b *Backend) InitializeSession(ctx context.Context, conversationID, workingDirectory, model string,
	qwen *QwenConfig, geminiAuth *GeminiAuthConfig, llxprt *LLxprtConfig) error {

	ctx = trace.Ensure(ctx)

	configured := 0
	for _, present := range []bool{llxprt != nil, qwen != nil, geminiAuth != nil} {
		if present {
			configured++
		}
	}
	if configured > 1 {
		return errors.New("conflicting backend configurations: supply at most one of llxprt, qwen, gemini auth")
	}

	if model == "" {
		model = b.cfg.DefaultModel
	}

	opts := session.LaunchOptions{
		ConversationID:   conversationID,
		WorkingDirectory: workingDirectory,
		Model:            model,
		Yolo:             b.cfg.Yolo,
		LogRetention:     b.cfg.RPCLogRetention.Std(),
	}

	switch {
	case llxprt != nil:
		if err := b.checkBaseURL(conversationID, llxprt.BaseURL); err != nil {
			return err
		}
		opts.Backend = launcher.KindLLxprt
		opts.Provider = launcher.MapProvider(llxprt.Provider)
		opts.BaseURL = llxprt.BaseURL
		opts.Yolo = opts.Yolo || llxprt.Yolo
		opts.AuthMethod = secrets.GeminiAuthAPIKey
		opts.Bindings = secrets.ForProvider(llxprt.Provider, llxprt.APIKey, llxprt.BaseURL)

	case qwen != nil:
		if err := b.checkBaseURL(conversationID, qwen.BaseURL); err != nil {
			return err
		}
		opts.Backend = launcher.KindQwen
		opts.Yolo = opts.Yolo || qwen.Yolo
		opts.AuthMethod = secrets.GeminiAuthAPIKey
		opts.Bindings = secrets.ForQwen(qwen.APIKey, qwen.BaseURL, qwen.Model)

	default:
		opts.Backend = launcher.KindGemini
		method := secrets.GeminiAuthOAuthPersonal
		if geminiAuth != nil {
			if geminiAuth.Method != "" {
				method = geminiAuth.Method
			}
			opts.Yolo = opts.Yolo || geminiAuth.Yolo
			opts.Bindings = secrets.ForGeminiAuth(method,
				geminiAuth.APIKey, geminiAuth.VertexProject, geminiAuth.VertexLocation)
		}
		opts.AuthMethod = method
	}

	alreadyLive, err := b.registry.EnsureBackend(conversationID, opts.Backend)
	if err != nil {
		return err
	}
	if alreadyLive {
		slog.Info("backend: session already live", "conversation", conversationID, "backend", opts.Backend)
		return nil
	}

	return session.Launch(ctx, opts, b.registry, b.sink)
}

// checkBaseURL runs a user-supplied base URL through the SSRF guard.
// Rejections fail the call before anything is spawned; observations are
// surfaced as warnings.
func (b *Backend) checkBaseURL(conversationID, baseURL string) error {
	if baseURL == "" {
		return nil
	}
	observations, err := b.guard.ValidateBaseURL(baseURL)
	if err != nil {
		return fmt.Errorf("base URL rejected: %w", err)
	}
	for _, obs := range observations {
		slog.Warn("backend: base URL accepted with observation", "conversation", conversationID, "observation", obs)
		b.sink.Emit(events.CliIo(conversationID), events.CliIoPayload{
			IoType: events.IoError,
			Data:   fmt.Sprintf("warning: base URL %s (%s)", baseURL, obs),
		})
	}
	return nil
}

// SendMessage parses a user message into content blocks and queues a
// session/prompt request for the conversation's agent.
func (b *Backend) SendMessage(ctx context.Context, conversationID, message string) error {
	acpSessionID, err := b.registry.ACPSessionID(conversationID)
	if err != nil {
		return err
	}

	blocks := mention.Parse(message, b.registry.WorkingDirectory(conversationID))

	request := rpc.NewRequest(b.NextRequestID(), acp.MethodSessionPrompt, acp.SessionPromptParams{
		SessionID: acpSessionID,
		Prompt:    blocks,
	})
	encoded, err := rpc.Encode(request)
	if err != nil {
		return err
	}
	if err := b.registry.Send(conversationID, encoded); err != nil {
		return err
	}
	slog.Info("backend: prompt queued", "conversation", conversationID, "blocks", len(blocks))
	return nil
}

// CancelSession pushes a session/cancel notification for the running turn.
func (b *Backend) CancelSession(ctx context.Context, conversationID string) error {
	acpSessionID, err := b.registry.ACPSessionID(conversationID)
	if err != nil {
		return err
	}
	encoded, err := rpc.EncodeNotification(acp.MethodSessionCancel, acp.SessionCancelParams{
		SessionID: acpSessionID,
	})
	if err != nil {
		return err
	}
	return b.registry.Send(conversationID, encoded)
}

// HandleToolConfirmation answers a pending session/request_permission. The
// outcome string "cancel" becomes a cancelled result; anything else is
// passed through as the selected option id — the agent owns the option
// vocabulary. Local tool-call state is deliberately not touched: the agent
// will emit the authoritative tool_call_update events itself.
func (b *Backend) HandleToolConfirmation(ctx context.Context, acpSessionID string, requestID uint64,
	toolCallID, outcome string) error {
	conversationID, err := b.registry.FindByACPSessionID(acpSessionID)
	if err != nil {
		return err
	}

	result := permissionOutcome(outcome)
	encoded, err := rpc.EncodeResponse(requestID, acp.PermissionResult{Outcome: result}, nil)
	if err != nil {
		return err
	}
	if err := b.registry.Send(conversationID, encoded); err != nil {
		return err
	}
	slog.Info("backend: permission outcome sent",
		"conversation", conversationID, "request_id", requestID, "tool_call", toolCallID, "outcome", result.Outcome)
	return nil
}

// permissionOutcome maps the UI's outcome string to the wire outcome.
// "cancel" is the only special value; everything else is an option id the
// agent itself offered, including ids this backend has never seen.
func permissionOutcome(outcome string) acp.PermissionOutcome {
	if outcome == "cancel" {
		return acp.CancelledOutcome()
	}
	return acp.SelectedOutcome(outcome)
}

// GetProcessStatuses returns a snapshot of every tracked session.
func (b *Backend) GetProcessStatuses() []session.Status {
	return b.registry.Snapshot()
}

// KillProcess terminates the session for a conversation and pushes the
// resulting status snapshot. Terminating an unknown or already-dead
// conversation succeeds.
func (b *Backend) KillProcess(conversationID string) error {
	if err := b.registry.Terminate(conversationID); err != nil {
		return err
	}
	b.sink.Emit(events.ChannelProcessStatusChanged, b.registry.Snapshot())
	return nil
}

// ExecuteConfirmedCommand runs a user-confirmed terminal command through
// the safety policy and reports the outcome on the command-result channel.
func (b *Backend) ExecuteConfirmedCommand(ctx context.Context, command string) (string, error) {
	output, err := security.ExecuteTerminalCommand(ctx, command)
	if err != nil {
		message := err.Error()
		b.sink.Emit(events.ChannelCommandResult, events.CommandResult{
			Command: command,
			Success: false,
			Error:   &message,
		})
		return "", err
	}
	b.sink.Emit(events.ChannelCommandResult, events.CommandResult{
		Command: command,
		Success: true,
		Output:  &output,
	})
	return output, nil
}
