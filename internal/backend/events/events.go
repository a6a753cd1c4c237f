// Package events defines the event-sink capability through which the core
// surfaces everything the UI sees, plus the channel-name templates and
// payload types for each channel.
//
// The sink is deliberately minimal: emission is best-effort and must never
// block or fail the caller. A lost event is an acceptable outcome; a stalled
// session I/O loop is not.
package events

import "fmt"

// Sink accepts named events bound for the UI.
type Sink interface {
	// Emit forwards one event. Implementations MUST NOT block the caller
	// and MUST swallow delivery failures (logging them at most).
	Emit(channel string, payload any)
}

// Channel names without a session suffix.
const (
	ChannelProcessStatusChanged = "process-status-changed"
	ChannelCommandResult        = "command-result"
)

// CliIo returns the raw-I/O mirror channel for a conversation.
func CliIo(conversationID string) string {
	return fmt.Sprintf("cli-io-%s", conversationID)
}

// AiOutput returns the assistant-text channel for a conversation.
func AiOutput(conversationID string) string {
	return fmt.Sprintf("ai-output-%s", conversationID)
}

// AiThought returns the assistant-thinking channel for a conversation.
func AiThought(conversationID string) string {
	return fmt.Sprintf("ai-thought-%s", conversationID)
}

// AiTurnFinished returns the turn-completion channel for a conversation.
func AiTurnFinished(conversationID string) string {
	return fmt.Sprintf("ai-turn-finished-%s", conversationID)
}

// AiError returns the in-session error channel for a conversation.
func AiError(conversationID string) string {
	return fmt.Sprintf("ai-error-%s", conversationID)
}

// SessionProgress returns the startup-progress channel for a conversation.
func SessionProgress(conversationID string) string {
	return fmt.Sprintf("session-progress-%s", conversationID)
}

// AcpSessionUpdate returns the typed session-update channel for a
// conversation.
func AcpSessionUpdate(conversationID string) string {
	return fmt.Sprintf("acp-session-update-%s", conversationID)
}

// AcpPermissionRequest returns the permission-request channel for a
// conversation.
func AcpPermissionRequest(conversationID string) string {
	return fmt.Sprintf("acp-permission-request-%s", conversationID)
}

// IoType classifies a mirrored CLI line.
type IoType string

const (
	IoInput  IoType = "input"
	IoOutput IoType = "output"
	IoError  IoType = "error"
)

// CliIoPayload mirrors one raw line of subprocess I/O.
type CliIoPayload struct {
	IoType IoType `json:"io_type"`
	Data   string `json:"data"`
}

// Stage names a handshake phase on the session-progress channel.
type Stage string

const (
	StageStarting        Stage = "Starting"
	StageValidatingCli   Stage = "ValidatingCli"
	StageSpawningProcess Stage = "SpawningProcess"
	StageInitializing    Stage = "Initializing"
	StageAuthenticating  Stage = "Authenticating"
	StageCreatingSession Stage = "CreatingSession"
	StageReady           Stage = "Ready"
)

// Percent returns the canonical completion percentage for a stage.
func (s Stage) Percent() int {
	switch s {
	case StageStarting:
		return 5
	case StageValidatingCli:
		return 15
	case StageSpawningProcess:
		return 25
	case StageInitializing:
		return 40
	case StageAuthenticating:
		return 65
	case StageCreatingSession:
		return 80
	case StageReady:
		return 100
	default:
		return 0
	}
}

// ProgressPayload reports handshake progress.
type ProgressPayload struct {
	Stage           Stage  `json:"stage"`
	Message         string `json:"message"`
	ProgressPercent int    `json:"progress_percent"`
	Details         string `json:"details,omitempty"`
}

// Progress builds the payload for a stage with its canonical percentage.
func Progress(stage Stage, message string) ProgressPayload {
	return ProgressPayload{Stage: stage, Message: message, ProgressPercent: stage.Percent()}
}

// PermissionRequestPayload pairs an inbound permission request with the
// agent's request id so the UI can echo it on the reply.
type PermissionRequestPayload struct {
	RequestID uint64 `json:"request_id"`
	Request   any    `json:"request"`
}

// CommandResult reports the outcome of a confirmed terminal command.
type CommandResult struct {
	Command string  `json:"command"`
	Success bool    `json:"success"`
	Output  *string `json:"output,omitempty"`
	Error   *string `json:"error,omitempty"`
}
