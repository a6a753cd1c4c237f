// Package secrets injects provider credentials into the process environment
// for the duration of one session and guarantees their removal afterwards.
//
// Child processes inherit the environment at spawn time, so a scope must be
// applied before the agent subprocess starts. The scope owns exactly the
// variables it set: Close removes those names and nothing else, whether the
// session succeeded or not. The process environment is global, so two live
// scopes that both claim the same variable (two OpenAI-shaped backends at
// once) can race; the registry keeps that the exception by tearing down a
// conversation's previous scope before a new one is applied.
package secrets

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/Piebald-AI/gemini-cli-desktop/common/redact"
)

// Binding is one environment variable a scope will own.
type Binding struct {
	Name  string
	Value string
}

// Scope is a set of applied environment bindings with guaranteed teardown.
type Scope struct {
	mu     sync.Mutex
	names  []string
	closed bool
}

// Apply sets every binding in order and returns the owning scope. On a
// set failure the already-applied bindings are rolled back before the error
// is returned, so a half-applied scope never escapes.
func Apply(bindings []Binding) (*Scope, error) {
	scope := &Scope{}
	for _, b := range bindings {
		if b.Name == "" {
			scope.Close()
			return nil, fmt.Errorf("credential binding with empty name")
		}
		if err := os.Setenv(b.Name, b.Value); err != nil {
			scope.Close()
			return nil, fmt.Errorf("set %s: %w", b.Name, err)
		}
		scope.names = append(scope.names, b.Name)
		slog.Info("secrets: set credential variable", "name", b.Name, "value", redact.MaskKey(b.Value))
	}
	return scope, nil
}

// Close removes every variable the scope created. It is idempotent and
// safe to call on a nil scope.
func (s *Scope) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for _, name := range s.names {
		if err := os.Unsetenv(name); err != nil {
			slog.Warn("secrets: could not unset credential variable", "name", name, "err", err)
		} else {
			slog.Debug("secrets: cleared credential variable", "name", name)
		}
	}
}

// Names returns the variable names the scope owns, in application order.
func (s *Scope) Names() []string {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.names...)
}
