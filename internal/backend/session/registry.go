package session

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/Piebald-AI/gemini-cli-desktop/internal/backend/launcher"
)

// ErrSessionNotFound is returned when an operation references a conversation
// id with no live session.
var ErrSessionNotFound = errors.New("session not found")

// Registry is the concurrency-safe map of sessions by conversation id. Dead
// sessions stay in the map (their Status reports is_alive=false) until a new
// session for the same conversation replaces them.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Insert adds a session. It fails when a live session already exists for
// the same conversation id; a dead entry is replaced.
func (r *Registry) Insert(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sessions[s.conversationID]; ok && existing.alive {
		return fmt.Errorf("conversation %q already has a live session", s.conversationID)
	}
	r.sessions[s.conversationID] = s
	return nil
}

// Snapshot returns a Status projection of every tracked session.
func (r *Registry) Snapshot() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	statuses := make([]Status, 0, len(r.sessions))
	for _, s := range r.sessions {
		statuses = append(statuses, s.status())
	}
	return statuses
}

// LiveBackend reports the backend kind of the live session for a
// conversation, if any.
func (r *Registry) LiveBackend(conversationID string) (launcher.Kind, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[conversationID]; ok && s.alive {
		return s.backend, true
	}
	return "", false
}

// ACPSessionID returns the agent-assigned session id for a conversation.
func (r *Registry) ACPSessionID(conversationID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[conversationID]
	if !ok || s.acpSessionID == "" {
		return "", fmt.Errorf("%w: %s", ErrSessionNotFound, conversationID)
	}
	return s.acpSessionID, nil
}

// WorkingDirectory returns the working directory a conversation's session
// was started in, or "" when the conversation is unknown.
func (r *Registry) WorkingDirectory(conversationID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[conversationID]; ok {
		return s.workingDirectory
	}
	return ""
}

// FindByACPSessionID resolves the conversation owning an agent-assigned
// session id.
func (r *Registry) FindByACPSessionID(acpSessionID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.acpSessionID == acpSessionID {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: no conversation for ACP session %q", ErrSessionNotFound, acpSessionID)
}

// Send places a serialized message on a live session's outbound queue.
func (r *Registry) Send(conversationID, message string) error {
	r.mu.Lock()
	s, ok := r.sessions[conversationID]
	var outbound chan string
	if ok && s.alive {
		outbound = s.outbound
	}
	r.mu.Unlock()

	if outbound == nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, conversationID)
	}
	outbound <- message
	return nil
}

// Terminate tears a session down: the child process is killed (by handle
// when present, by pid otherwise, treating an already-gone process as
// success), the credential scope is dropped, and the record's stdin,
// outbound sender, pid and liveness are cleared. Unknown conversation ids
// and repeat calls succeed.
func (r *Registry) Terminate(conversationID string) error {
	r.mu.Lock()
	s, ok := r.sessions[conversationID]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	child := s.child
	pid := s.pid
	creds := s.creds
	s.child = nil
	s.pid = 0
	s.alive = false
	s.stdin = nil
	s.outbound = nil
	s.creds = nil
	r.mu.Unlock()

	// Kill outside the mutex: pid-level kill shells out and must not block
	// other registry users.
	var killErr error
	switch {
	case child != nil && child.Process != nil:
		if err := child.Process.Kill(); err != nil {
			slog.Debug("registry: child kill", "conversation", conversationID, "err", err)
		}
		// Reap so the child does not linger as a zombie; the I/O loop exits
		// via the EOF this causes.
		go func() { _ = child.Wait() }()
	case pid != 0:
		killErr = launcher.KillPID(pid)
	}

	creds.Close()

	if killErr != nil {
		return fmt.Errorf("terminate %s: %w", conversationID, killErr)
	}
	return nil
}

// EnsureBackend prepares a conversation for a session with the given
// backend kind. When a live session with the same kind exists it reports
// alreadyLive=true (the caller treats initialization as a no-op). A live
// session with a different kind is terminated first.
func (r *Registry) EnsureBackend(conversationID string, kind launcher.Kind) (alreadyLive bool, err error) {
	current, live := r.LiveBackend(conversationID)
	if !live {
		return false, nil
	}
	if current == kind {
		return true, nil
	}
	slog.Info("registry: switching backend", "conversation", conversationID, "from", current, "to", kind)
	if err := r.Terminate(conversationID); err != nil {
		return false, err
	}
	return false, nil
}

// markDead flips a session's liveness to false and clears its I/O handles.
// It reports whether the call changed anything, so the exactly-once
// transition of the I/O loop exit is observable. The credential scope is
// dropped here too: a dead subprocess has no further use for its
// environment.
func (r *Registry) markDead(conversationID string) bool {
	r.mu.Lock()
	s, ok := r.sessions[conversationID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	changed := s.alive
	s.alive = false
	s.stdin = nil
	s.outbound = nil
	creds := s.creds
	s.creds = nil
	// The I/O loop is the last writer of the audit log, so its exit (the
	// only caller of markDead) is where the log closes, even when a
	// Terminate already flipped liveness.
	logger := s.logger
	s.logger = nil
	r.mu.Unlock()

	creds.Close()
	if logger != nil {
		if err := logger.Close(); err != nil {
			slog.Debug("registry: rpc log close failed", "conversation", conversationID, "err", err)
		}
	}
	return changed
}

// takeStdin removes the stdin handle from a session so the caller can write
// without holding the registry mutex. Returns nil when the session is gone,
// dead, or mid-write elsewhere.
func (r *Registry) takeStdin(conversationID string) io.WriteCloser {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[conversationID]
	if !ok || !s.alive {
		return nil
	}
	stdin := s.stdin
	s.stdin = nil
	return stdin
}

// returnStdin puts the stdin handle back after a write. A session that died
// mid-write keeps its handle cleared.
func (r *Registry) returnStdin(conversationID string, stdin io.WriteCloser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[conversationID]
	if !ok || !s.alive {
		return
	}
	s.stdin = stdin
}

// logRPC appends a line to a session's audit log, outside the mutex.
func (r *Registry) logRPC(conversationID, line string) {
	r.mu.Lock()
	var logger interface{ LogRPC(string) error }
	if s, ok := r.sessions[conversationID]; ok && s.logger != nil {
		logger = s.logger
	}
	r.mu.Unlock()

	if logger != nil {
		if err := logger.LogRPC(line); err != nil {
			slog.Debug("registry: rpc log write failed", "conversation", conversationID, "err", err)
		}
	}
}
