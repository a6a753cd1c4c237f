// Package launcher builds and probes the command lines for each supported
// agent CLI backend.
//
// Every agent is started through the platform shell (sh -lc on POSIX,
// cmd /C on Windows) so the user's login PATH is honoured: these CLIs are
// installed by npm into directories a bare exec would not see. The launcher
// only prepares and spawns; the handshake and supervision live in the
// session package.
package launcher

import (
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Kind identifies an agent CLI backend.
type Kind string

const (
	KindGemini Kind = "gemini"
	KindQwen   Kind = "qwen"
	KindLLxprt Kind = "llxprt"
)

// CLIName returns the human-readable name of a backend's CLI.
func CLIName(kind Kind) string {
	switch kind {
	case KindQwen:
		return "Qwen Code"
	case KindLLxprt:
		return "LLxprt"
	default:
		return "Gemini"
	}
}

// executable returns the binary a backend is invoked as.
func executable(kind Kind) string {
	return string(kind)
}

// MapProvider translates a UI provider name to the provider flag LLxprt
// understands. OpenRouter is OpenAI-compatible on the wire.
func MapProvider(uiProvider string) string {
	if uiProvider == "openrouter" {
		return "openai"
	}
	return uiProvider
}

// Spec describes one agent process to launch.
type Spec struct {
	Kind             Kind
	Model            string
	WorkingDirectory string
	// Yolo makes the agent auto-approve its own tool calls.
	Yolo bool
	// Provider and BaseURL apply to the llxprt backend only. Provider must
	// already be mapped via MapProvider; BaseURL must have passed the URL
	// guard.
	Provider string
	BaseURL  string
}

// commandLine renders the shell command for the spec.
func (s Spec) commandLine() string {
	var parts []string
	switch s.Kind {
	case KindQwen:
		parts = []string{executable(KindQwen)}
		if s.Yolo {
			parts = append(parts, "--yolo")
		}
		parts = append(parts, "--experimental-acp")
	case KindLLxprt:
		parts = []string{executable(KindLLxprt), "--experimental-acp"}
		if s.Provider != "" {
			parts = append(parts, "--provider", s.Provider)
		}
		if s.Model != "" {
			parts = append(parts, "--model", s.Model)
		}
		if s.BaseURL != "" {
			parts = append(parts, "--baseurl", s.BaseURL)
		}
	default:
		parts = []string{executable(KindGemini), "--model", s.Model}
		if s.Yolo {
			parts = append(parts, "--yolo")
		}
		parts = append(parts, "--experimental-acp")
	}
	return strings.Join(parts, " ")
}

// Command prepares the agent process for the spec: platform shell, working
// directory, piped stdio configured by the caller.
func (s Spec) Command() *exec.Cmd {
	line := s.commandLine()
	slog.Info("launcher: prepared agent command", "backend", s.Kind, "command", line, "cwd", s.WorkingDirectory)
	cmd := shellCommand(line)
	if s.WorkingDirectory != "" {
		cmd.Dir = s.WorkingDirectory
	}
	return cmd
}

// PlainCommand prepares a one-shot, non-ACP invocation of a backend's CLI
// (prompt on stdin, answer on stdout). Used for auxiliary calls such as
// conversation-title generation.
func PlainCommand(kind Kind, model string) *exec.Cmd {
	line := executable(kind)
	if model != "" {
		line += " --model " + model
	}
	return shellCommand(line)
}

// Probe verifies a backend's CLI is installed and responding by running
// `<cli> --version` through the platform shell. Qwen is never probed: it is
// reached through its API-compatible CLI which reports no version preflight.
func Probe(kind Kind) error {
	if kind == KindQwen {
		return nil
	}

	cmd := shellCommand(executable(kind) + " --version")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return probeError(kind, err, strings.TrimSpace(string(output)))
	}
	slog.Info("launcher: CLI preflight ok", "backend", kind, "version", strings.TrimSpace(string(output)))
	return nil
}

// probeError builds the remediation message for a failed preflight.
func probeError(kind Kind, err error, output string) error {
	name := CLIName(kind)
	install := installCommand(kind)
	detail := output
	if detail == "" {
		detail = err.Error()
	}
	return fmt.Errorf("%s CLI is not available. Please ensure:\n"+
		"1. %s is installed (run: %s)\n"+
		"2. %q is in your PATH\n"+
		"3. You have permission to execute it\n\nError: %s",
		name, name, install, executable(kind), detail)
}

// installCommand names the canonical install command for a backend's CLI.
func installCommand(kind Kind) string {
	switch kind {
	case KindLLxprt:
		return "npm install -g @vybestack/llxprt-code"
	default:
		return "npm install -g @google/gemini-cli"
	}
}
