package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/Piebald-AI/gemini-cli-desktop/common/retry"
	"github.com/Piebald-AI/gemini-cli-desktop/internal/backend/acp"
	"github.com/Piebald-AI/gemini-cli-desktop/internal/backend/events"
	"github.com/Piebald-AI/gemini-cli-desktop/internal/backend/launcher"
	"github.com/Piebald-AI/gemini-cli-desktop/internal/backend/rpc"
	"github.com/Piebald-AI/gemini-cli-desktop/internal/backend/rpclog"
	"github.com/Piebald-AI/gemini-cli-desktop/internal/backend/secrets"
)

// Handshake request ids. The facade's runtime counter starts at 1000, so
// these never collide with in-session requests.
const (
	idInitialize   = 1
	idAuthenticate = 2
	idSessionNew   = 3
)

// initializeAttempts bounds the initialize retry: the child may not be
// reading stdin yet, so the request is re-sent until a JSON response
// appears.
const (
	initializeAttempts = 20
	initializeDelay    = 2 * time.Second
	handshakeTimeout   = 60 * time.Second
)

// errNoJSONResponse marks an attempt that saw no parseable JSON before its
// deadline; it is the only retryable handshake condition.
var errNoJSONResponse = errors.New("no JSON response from agent yet")

// LaunchOptions carries everything needed to bring one session up.
type LaunchOptions struct {
	ConversationID   string
	WorkingDirectory string
	Model            string
	Backend          launcher.Kind
	Yolo             bool

	// Provider and BaseURL configure the llxprt backend (already mapped and
	// guard-validated by the facade).
	Provider string
	BaseURL  string

	// AuthMethod is the authenticate methodId used when the agent demands
	// authentication.
	AuthMethod string

	// Bindings are the credential variables to apply before spawn; the
	// resulting scope is owned by the session.
	Bindings []secrets.Binding

	// LogRetention bounds audit-log cleanup at session start.
	LogRetention time.Duration
}

// Launch spawns the agent, drives the ACP handshake to Ready, registers the
// session, and starts its I/O goroutines. On any failure the subprocess is
// terminated, the credential scope is dropped, and nothing is inserted.
func Launch(ctx context.Context, opts LaunchOptions, reg *Registry, sink events.Sink) error {
	cid := opts.ConversationID
	cliName := launcher.CLIName(opts.Backend)
	progress := func(stage events.Stage, message string) {
		sink.Emit(events.SessionProgress(cid), events.Progress(stage, message))
	}

	slog.Info("session: starting handshake",
		"conversation", cid, "backend", opts.Backend, "model", opts.Model, "cwd", opts.WorkingDirectory)
	progress(events.StageStarting, fmt.Sprintf("Starting %s session", cliName))

	var logger rpclog.Logger
	if sqlLogger, err := rpclog.New(opts.WorkingDirectory, cliName); err != nil {
		slog.Warn("session: rpc audit log unavailable, continuing without", "conversation", cid, "err", err)
		logger = rpclog.Nop{}
	} else {
		logger = sqlLogger
		if err := rpclog.CleanupOldLogs(opts.WorkingDirectory, opts.LogRetention); err != nil {
			slog.Warn("session: rpc log cleanup failed", "conversation", cid, "err", err)
		}
	}

	progress(events.StageValidatingCli, fmt.Sprintf("Checking %s CLI installation", cliName))
	if err := launcher.Probe(opts.Backend); err != nil {
		logger.Close()
		return err
	}

	// Children inherit the environment at spawn time; the scope must be
	// live before Start and is owned by the session afterwards.
	creds, err := secrets.Apply(opts.Bindings)
	if err != nil {
		logger.Close()
		return fmt.Errorf("apply credentials: %w", err)
	}

	fail := func(err error) error {
		creds.Close()
		logger.Close()
		return err
	}

	progress(events.StageSpawningProcess, fmt.Sprintf("Spawning %s process", cliName))
	cmd := launcher.Spec{
		Kind:             opts.Backend,
		Model:            opts.Model,
		WorkingDirectory: opts.WorkingDirectory,
		Yolo:             opts.Yolo,
		Provider:         opts.Provider,
		BaseURL:          opts.BaseURL,
	}.Command()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fail(fmt.Errorf("open stdin pipe: %w", err))
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fail(fmt.Errorf("open stdout pipe: %w", err))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fail(fmt.Errorf("open stderr pipe: %w", err))
	}
	if err := cmd.Start(); err != nil {
		return fail(fmt.Errorf("session initialization failed: could not run %s through the shell: %w", opts.Backend, err))
	}
	slog.Info("session: agent process spawned", "conversation", cid, "pid", cmd.Process.Pid)

	go drainStderr(cid, stderr, sink)
	lines := readLines(stdout)

	conn := &handshakeConn{
		conversationID: cid,
		stdin:          stdin,
		lines:          lines,
		logger:         logger,
		sink:           sink,
	}

	abort := func(err error) error {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		go func() { _ = cmd.Wait() }()
		return fail(err)
	}

	progress(events.StageInitializing, "Initializing agent connection")
	if err := initialize(ctx, conn); err != nil {
		return abort(fmt.Errorf("initialize handshake with %s: %w", cliName, err))
	}

	progress(events.StageCreatingSession, "Creating agent session")
	acpSessionID, err := createSession(ctx, conn, opts, progress)
	if err != nil {
		return abort(fmt.Errorf("create %s session: %w", cliName, err))
	}
	slog.Info("session: handshake complete", "conversation", cid, "acp_session", acpSessionID)

	outbound := make(chan string, 64)
	sess := newSession(cid, acpSessionID, cmd, stdin, outbound,
		opts.WorkingDirectory, opts.Backend, logger, creds)
	if err := reg.Insert(sess); err != nil {
		return abort(err)
	}

	progress(events.StageReady, "Session ready")
	sink.Emit(events.ChannelProcessStatusChanged, reg.Snapshot())

	queue := make(chan internalEvent, 256)
	go forwardEvents(queue, sink)
	go reg.ioLoop(cid, lines, outbound, queue, sink)
	return nil
}

// initialize drives the initialize request with its bounded re-send loop.
func initialize(ctx context.Context, conn *handshakeConn) error {
	request := rpc.NewRequest(idInitialize, acp.MethodInitialize, acp.InitializeParams{
		ProtocolVersion: acp.ProtocolVersion,
		ClientCapabilities: acp.ClientCapabilities{
			FS: acp.FileSystemCapabilities{ReadTextFile: false, WriteTextFile: false},
		},
	})

	var response *rpc.Response
	err := retry.Do(ctx, retry.Config{
		MaxAttempts:  initializeAttempts,
		InitialDelay: initializeDelay,
		MaxDelay:     initializeDelay,
		ShouldRetry:  func(err error) bool { return errors.Is(err, errNoJSONResponse) },
	}, func() error {
		resp, err := conn.call(ctx, request, initializeDelay)
		if err != nil {
			return err
		}
		response = resp
		return nil
	})
	if err != nil {
		return err
	}

	var result acp.InitializeResult
	if err := json.Unmarshal(response.Result, &result); err != nil {
		return fmt.Errorf("parse initialize result: %w", err)
	}
	slog.Debug("session: agent initialized",
		"conversation", conn.conversationID, "protocol", result.ProtocolVersion, "auth_methods", len(result.AuthMethods))
	return nil
}

// createSession issues session/new, authenticating first when the agent
// demands it, and returns the agent-assigned session id. Any session/new
// failure other than "Authentication required" is fatal.
func createSession(ctx context.Context, conn *handshakeConn, opts LaunchOptions,
	progress func(events.Stage, string)) (string, error) {

	request := rpc.NewRequest(idSessionNew, acp.MethodSessionNew, acp.SessionNewParams{
		Cwd:        opts.WorkingDirectory,
		MCPServers: []acp.MCPServer{},
	})

	response, err := conn.call(ctx, request, handshakeTimeout)
	if err != nil && isAuthRequired(err) {
		progress(events.StageAuthenticating, "Authenticating with agent")
		slog.Info("session: authentication required", "conversation", conn.conversationID, "method", opts.AuthMethod)

		authRequest := rpc.NewRequest(idAuthenticate, acp.MethodAuthenticate, acp.AuthenticateParams{
			MethodID: opts.AuthMethod,
		})
		if _, err := conn.call(ctx, authRequest, handshakeTimeout); err != nil {
			return "", fmt.Errorf("authenticate (%s): %w", opts.AuthMethod, err)
		}
		response, err = conn.call(ctx, request, handshakeTimeout)
	}
	if err != nil {
		return "", err
	}

	var result acp.SessionNewResult
	if err := json.Unmarshal(response.Result, &result); err != nil {
		return "", fmt.Errorf("parse session/new result: %w", err)
	}
	if result.SessionID == "" {
		return "", errors.New("agent returned no session id")
	}
	return result.SessionID, nil
}

// isAuthRequired matches the agent's authentication demand, which arrives
// as a free-form RPC error message.
func isAuthRequired(err error) bool {
	return err != nil && strings.Contains(err.Error(), "Authentication required")
}

// handshakeConn is the synchronous request/response view of the agent's
// stdio used before the I/O loop takes over. Every line that passes
// through, protocol or chatter, is mirrored to the audit log and the UI.
type handshakeConn struct {
	conversationID string
	stdin          io.Writer
	lines          <-chan string
	logger         rpclog.Logger
	sink           events.Sink
}

// call writes one request and reads lines until a parseable JSON response
// arrives, the deadline passes (errNoJSONResponse), or stdout closes. A
// response carrying an error field is returned as that error.
func (c *handshakeConn) call(ctx context.Context, request *rpc.Request, timeout time.Duration) (*rpc.Response, error) {
	encoded, err := rpc.Encode(request)
	if err != nil {
		return nil, err
	}
	if err := c.logger.LogRPC(encoded); err != nil {
		slog.Debug("session: rpc log write failed", "conversation", c.conversationID, "err", err)
	}
	if _, err := io.WriteString(c.stdin, encoded+rpc.Newline); err != nil {
		return nil, fmt.Errorf("write %s request: %w", request.Method, err)
	}
	c.sink.Emit(events.CliIo(c.conversationID), events.CliIoPayload{
		IoType: events.IoInput,
		Data:   encoded,
	})

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-deadline.C:
			return nil, fmt.Errorf("%w (method %s)", errNoJSONResponse, request.Method)

		case line, ok := <-c.lines:
			if !ok {
				return nil, fmt.Errorf("agent closed stdout during %s", request.Method)
			}
			trimmed := strings.TrimSpace(line)
			if err := c.logger.LogRPC(trimmed); err != nil {
				slog.Debug("session: rpc log write failed", "conversation", c.conversationID, "err", err)
			}
			c.sink.Emit(events.CliIo(c.conversationID), events.CliIoPayload{
				IoType: events.IoOutput,
				Data:   trimmed,
			})

			response, parsed := rpc.ParseResponse(trimmed)
			if !parsed {
				// Banners, telemetry notices, progress chatter: mirrored
				// above, skipped here.
				continue
			}
			if response.Error != nil {
				return nil, response.Error
			}
			return response, nil
		}
	}
}
