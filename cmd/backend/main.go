// Command backend runs the Session & ACP Multiplexer headless: commands
// arrive as JSON objects, one per stdin line, and every event the core
// emits leaves as one NDJSON object on stdout. Logs go to stderr so the
// event stream stays clean. The desktop shell embeds the same core through
// the backend package directly; this binary exists for scripting and for
// driving the backend from any UI that can speak pipes.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Piebald-AI/gemini-cli-desktop/common/environment"
	"github.com/Piebald-AI/gemini-cli-desktop/common/version"
	"github.com/Piebald-AI/gemini-cli-desktop/internal/backend"
	"github.com/Piebald-AI/gemini-cli-desktop/internal/backend/config"
)

func main() {
	setupLogging()

	// Each backend process gets its own id so a consumer multiplexing
	// several of them over one pipe can attribute every line.
	instanceID := uuid.NewString()
	slog.Info("gemini-cli-desktop backend", "version", version.Info(), "instance", instanceID)

	cfgPath := environment.StringOr("BACKEND_CONFIG", "")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	dataDir, err := resolveDataDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	out := newNDJSONWriter(os.Stdout, instanceID)
	core := backend.New(out, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return commandLoop(ctx, core, os.Stdin, out, dataDir)
	})
	group.Go(func() error {
		<-ctx.Done()
		return ctx.Err()
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// resolveDataDir picks the backend's state directory: BACKEND_DATA_DIR when
// set, otherwise gemini-cli-desktop under the user cache directory (falling
// back to .gemini-desktop in the working directory when no cache dir is
// known). Sessions whose
// init command carries no working directory run here, so their audit logs
// land somewhere predictable.
func resolveDataDir() (string, error) {
	dir, ok := environment.String("BACKEND_DATA_DIR")
	if !ok || dir == "" {
		if cache, err := os.UserCacheDir(); err == nil {
			dir = filepath.Join(cache, "gemini-cli-desktop")
		} else {
			dir = ".gemini-desktop"
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create data directory %s: %w", dir, err)
	}
	slog.Info("data directory ready", "path", dir)
	return dir, nil
}

// setupLogging routes slog to stderr at the configured level.
func setupLogging() {
	var level slog.Level
	switch strings.ToLower(environment.StringOr("BACKEND_LOG_LEVEL", "info")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// command is one JSON request on stdin.
type command struct {
	Cmd string `json:"cmd"`

	ConversationID   string `json:"conversation_id,omitempty"`
	WorkingDirectory string `json:"working_directory,omitempty"`
	Model            string `json:"model,omitempty"`
	Message          string `json:"message,omitempty"`

	Qwen       *backend.QwenConfig       `json:"qwen,omitempty"`
	GeminiAuth *backend.GeminiAuthConfig `json:"gemini_auth,omitempty"`
	LLxprt     *backend.LLxprtConfig     `json:"llxprt,omitempty"`

	ACPSessionID string `json:"acp_session_id,omitempty"`
	RequestID    uint64 `json:"request_id,omitempty"`
	ToolCallID   string `json:"tool_call_id,omitempty"`
	Outcome      string `json:"outcome,omitempty"`

	Command string `json:"command,omitempty"`
}

// commandLoop reads one JSON command per line until stdin closes.
func commandLoop(ctx context.Context, core *backend.Backend, in io.Reader, out *ndjsonWriter, dataDir string) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 1<<20), 1<<20)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var cmd command
		if err := json.Unmarshal([]byte(line), &cmd); err != nil {
			out.reply("", nil, fmt.Errorf("bad command line: %w", err))
			continue
		}
		handle(ctx, core, cmd, out, dataDir)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	slog.Info("stdin closed, shutting down")
	return io.EOF
}

// handle executes one command. Session initialization runs detached so a
// slow handshake never blocks the command stream.
func handle(ctx context.Context, core *backend.Backend, cmd command, out *ndjsonWriter, dataDir string) {
	switch cmd.Cmd {
	case "check_cli":
		out.reply(cmd.Cmd, map[string]bool{"installed": core.CheckCLIInstalled()}, nil)

	case "init":
		workingDirectory := cmd.WorkingDirectory
		if workingDirectory == "" {
			workingDirectory = dataDir
		}
		go func() {
			err := core.InitializeSession(ctx, cmd.ConversationID, workingDirectory, cmd.Model,
				cmd.Qwen, cmd.GeminiAuth, cmd.LLxprt)
			out.reply(cmd.Cmd, map[string]string{"conversation_id": cmd.ConversationID}, err)
		}()

	case "send":
		out.reply(cmd.Cmd, nil, core.SendMessage(ctx, cmd.ConversationID, cmd.Message))

	case "cancel":
		out.reply(cmd.Cmd, nil, core.CancelSession(ctx, cmd.ConversationID))

	case "confirm":
		out.reply(cmd.Cmd, nil, core.HandleToolConfirmation(ctx,
			cmd.ACPSessionID, cmd.RequestID, cmd.ToolCallID, cmd.Outcome))

	case "statuses":
		out.reply(cmd.Cmd, core.GetProcessStatuses(), nil)

	case "kill":
		out.reply(cmd.Cmd, nil, core.KillProcess(cmd.ConversationID))

	case "title":
		title, err := core.GenerateConversationTitle(ctx, cmd.Message, cmd.Model)
		out.reply(cmd.Cmd, map[string]string{"title": title}, err)

	case "exec":
		output, err := core.ExecuteConfirmedCommand(ctx, cmd.Command)
		out.reply(cmd.Cmd, map[string]string{"output": output}, err)

	default:
		out.reply(cmd.Cmd, nil, fmt.Errorf("unknown command %q", cmd.Cmd))
	}
}

// ndjsonWriter serializes sink events and command replies onto one stream,
// stamping every line with the process instance id.
type ndjsonWriter struct {
	mu       sync.Mutex
	w        *bufio.Writer
	instance string
}

func newNDJSONWriter(w io.Writer, instanceID string) *ndjsonWriter {
	return &ndjsonWriter{w: bufio.NewWriter(w), instance: instanceID}
}

// Emit implements events.Sink: best-effort, failures are logged and
// swallowed.
func (n *ndjsonWriter) Emit(channel string, payload any) {
	n.writeLine(map[string]any{"instance": n.instance, "channel": channel, "payload": payload})
}

// reply reports the outcome of one stdin command.
func (n *ndjsonWriter) reply(cmd string, data any, err error) {
	line := map[string]any{"instance": n.instance, "reply": cmd, "ok": err == nil}
	if data != nil {
		line["data"] = data
	}
	if err != nil {
		line["error"] = err.Error()
	}
	n.writeLine(line)
}

func (n *ndjsonWriter) writeLine(line map[string]any) {
	raw, err := json.Marshal(line)
	if err != nil {
		slog.Warn("ndjson: marshal failed", "err", err)
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, err := n.w.Write(append(raw, '\n')); err != nil {
		slog.Warn("ndjson: write failed", "err", err)
		return
	}
	if err := n.w.Flush(); err != nil {
		slog.Warn("ndjson: flush failed", "err", err)
	}
}
