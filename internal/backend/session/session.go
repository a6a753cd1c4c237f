// Package session owns the live conversations: spawning and authenticating
// agent subprocesses, multiplexing their stdio, translating their
// notifications into UI events, and tracking them in a concurrency-safe
// registry.
//
// Each live session runs three goroutines: the I/O loop (outbound writes
// and stdout lines), a stderr drain, and an event forwarder that serializes
// emissions to the sink. All shared session state is guarded by the
// registry mutex; the stdin handle is taken under the mutex, written to
// outside it, and returned under it so no goroutine blocks the registry on
// a pipe write.
package session

import (
	"io"
	"os/exec"
	"time"

	"github.com/Piebald-AI/gemini-cli-desktop/internal/backend/launcher"
	"github.com/Piebald-AI/gemini-cli-desktop/internal/backend/rpclog"
	"github.com/Piebald-AI/gemini-cli-desktop/internal/backend/secrets"
)

// Session is one live conversation bound to an agent subprocess. All fields
// after construction are guarded by the owning Registry's mutex.
type Session struct {
	conversationID string
	acpSessionID   string
	pid            int
	createdAt      int64
	alive          bool

	// stdin is present only while the session is alive and not mid-write.
	stdin io.WriteCloser
	// outbound is the sender half of the session's message queue.
	outbound chan string
	// child owns the agent subprocess.
	child *exec.Cmd

	workingDirectory string
	backend          launcher.Kind
	logger           rpclog.Logger
	creds            *secrets.Scope
}

// Status is a read-only projection of a Session, produced on demand.
type Status struct {
	ConversationID string `json:"conversation_id"`
	PID            *int   `json:"pid"`
	CreatedAt      int64  `json:"created_at"`
	IsAlive        bool   `json:"is_alive"`
	BackendType    string `json:"backend_type"`
}

// status projects the session. Caller must hold the registry mutex.
func (s *Session) status() Status {
	st := Status{
		ConversationID: s.conversationID,
		CreatedAt:      s.createdAt,
		IsAlive:        s.alive,
		BackendType:    string(s.backend),
	}
	if s.pid != 0 {
		pid := s.pid
		st.PID = &pid
	}
	return st
}

// newSession builds a live session record at handshake completion.
func newSession(conversationID, acpSessionID string, child *exec.Cmd, stdin io.WriteCloser,
	outbound chan string, workingDirectory string, backend launcher.Kind,
	logger rpclog.Logger, creds *secrets.Scope) *Session {

	pid := 0
	if child != nil && child.Process != nil {
		pid = child.Process.Pid
	}
	return &Session{
		conversationID:   conversationID,
		acpSessionID:     acpSessionID,
		pid:              pid,
		createdAt:        time.Now().Unix(),
		alive:            true,
		stdin:            stdin,
		outbound:         outbound,
		child:            child,
		workingDirectory: workingDirectory,
		backend:          backend,
		logger:           logger,
		creds:            creds,
	}
}
