// Package acp defines the wire vocabulary of the Agent Client Protocol
// (ACP): the JSON-RPC 2.0 dialect that coding-assistant CLIs such as Gemini,
// Qwen Code and LLxprt speak over newline-delimited stdio.
//
// Only the subset the multiplexer actually sends or parses is defined here.
// Union-shaped payloads (content blocks, session updates) are modelled as
// flat structs with a discriminator field and omitempty members, matching
// how they appear on the wire.
package acp

import (
	"encoding/json"
	"fmt"
)

// Method names the multiplexer sends or recognises.
const (
	MethodInitialize        = "initialize"
	MethodAuthenticate      = "authenticate"
	MethodSessionNew        = "session/new"
	MethodSessionPrompt     = "session/prompt"
	MethodSessionUpdate     = "session/update"
	MethodSessionCancel     = "session/cancel"
	MethodRequestPermission = "session/request_permission"

	// MethodStreamChunk is the legacy pre-session/update streaming
	// notification some CLI builds still emit.
	MethodStreamChunk = "streamAssistantMessageChunk"
)

// ProtocolVersion is the ACP protocol revision this client implements.
const ProtocolVersion = 1

// InitializeParams is the first request of the handshake.
type InitializeParams struct {
	ProtocolVersion    int                `json:"protocolVersion"`
	ClientCapabilities ClientCapabilities `json:"clientCapabilities"`
}

// ClientCapabilities describes what the client offers the agent.
type ClientCapabilities struct {
	FS FileSystemCapabilities `json:"fs"`
}

// FileSystemCapabilities advertises client-side file access. The desktop
// backend declines both directions; the agent reads and writes on its own.
type FileSystemCapabilities struct {
	ReadTextFile  bool `json:"readTextFile"`
	WriteTextFile bool `json:"writeTextFile"`
}

// InitializeResult is the agent's response to initialize.
type InitializeResult struct {
	ProtocolVersion   int               `json:"protocolVersion"`
	AuthMethods       []AuthMethod      `json:"authMethods,omitempty"`
	AgentCapabilities AgentCapabilities `json:"agentCapabilities,omitempty"`
}

// AuthMethod is one authentication mechanism offered by the agent.
type AuthMethod struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// AgentCapabilities describes agent-side features.
type AgentCapabilities struct {
	LoadSession bool `json:"loadSession"`
}

// AuthenticateParams selects an authentication method.
type AuthenticateParams struct {
	MethodID string `json:"methodId"`
}

// SessionNewParams asks the agent to open a conversation rooted at cwd.
type SessionNewParams struct {
	Cwd        string      `json:"cwd"`
	MCPServers []MCPServer `json:"mcpServers"`
}

// MCPServer describes an MCP server the agent should launch for the session.
type MCPServer struct {
	Name    string   `json:"name"`
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

// SessionNewResult carries the agent-assigned session id.
type SessionNewResult struct {
	SessionID string `json:"sessionId"`
}

// SessionPromptParams sends user content into an open session.
type SessionPromptParams struct {
	SessionID string         `json:"sessionId"`
	Prompt    []ContentBlock `json:"prompt"`
}

// SessionPromptResult terminates a prompt turn.
type SessionPromptResult struct {
	StopReason string `json:"stopReason"`
}

// StopReasonEndTurn is the stop reason that marks a completed turn.
const StopReasonEndTurn = "end_turn"

// SessionCancelParams aborts the in-flight turn of a session.
type SessionCancelParams struct {
	SessionID string `json:"sessionId"`
}

// Content block discriminators.
const (
	ContentText         = "text"
	ContentImage        = "image"
	ContentAudio        = "audio"
	ContentResourceLink = "resource_link"
	ContentResource     = "resource"
)

// ContentBlock is a tagged content variant exchanged with agents. Type
// selects which of the remaining fields are meaningful.
type ContentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// image, audio
	Data     string `json:"data,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`

	// resource_link
	URI  string `json:"uri,omitempty"`
	Name string `json:"name,omitempty"`

	// resource
	Resource *ResourceInfo `json:"resource,omitempty"`
}

// ResourceInfo is an embedded resource's location and body.
type ResourceInfo struct {
	URI  string `json:"uri"`
	Text string `json:"text"`
}

// TextBlock builds a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: ContentText, Text: text}
}

// ResourceLinkBlock builds a resource_link content block.
func ResourceLinkBlock(uri, name string) ContentBlock {
	return ContentBlock{Type: ContentResourceLink, URI: uri, Name: name}
}

// SessionUpdateParams is the envelope of a session/update notification.
type SessionUpdateParams struct {
	SessionID string        `json:"sessionId"`
	Update    SessionUpdate `json:"update"`
}

// Session update discriminators.
const (
	UpdateAgentMessageChunk = "agent_message_chunk"
	UpdateAgentThoughtChunk = "agent_thought_chunk"
	UpdateToolCall          = "tool_call"
	UpdateToolCallUpdate    = "tool_call_update"
)

// SessionUpdate is one update variant. Kind selects the populated fields:
// the chunk variants carry Content; the tool-call variants carry the
// remaining members. The "content" wire key changes shape with the variant
// (a single block for chunks, a list of items for tool calls), so the type
// implements json.Marshaler and json.Unmarshaler itself. The same struct
// round-trips back to the UI on acp-session-update channels.
type SessionUpdate struct {
	Kind string

	// agent_message_chunk, agent_thought_chunk
	Content *ContentBlock

	// tool_call, tool_call_update
	ToolCallID   string
	Status       ToolCallStatus
	Title        string
	ContentItems []ToolCallContentItem
	Locations    []Location
	ToolKind     ToolCallKind
	ServerName   string
	ToolName     string
}

// sessionUpdateWire is the on-the-wire shape with the polymorphic "content"
// key held raw.
type sessionUpdateWire struct {
	Kind       string          `json:"sessionUpdate"`
	Content    json.RawMessage `json:"content,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
	Status     ToolCallStatus  `json:"status,omitempty"`
	Title      string          `json:"title,omitempty"`
	Locations  []Location      `json:"locations,omitempty"`
	ToolKind   ToolCallKind    `json:"kind,omitempty"`
	ServerName string          `json:"server_name,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
}

// UnmarshalJSON decodes a session update, resolving the "content" key by the
// sessionUpdate discriminator.
func (u *SessionUpdate) UnmarshalJSON(data []byte) error {
	var wire sessionUpdateWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*u = SessionUpdate{
		Kind:       wire.Kind,
		ToolCallID: wire.ToolCallID,
		Status:     wire.Status,
		Title:      wire.Title,
		Locations:  wire.Locations,
		ToolKind:   wire.ToolKind,
		ServerName: wire.ServerName,
		ToolName:   wire.ToolName,
	}
	if len(wire.Content) == 0 {
		return nil
	}
	switch wire.Kind {
	case UpdateAgentMessageChunk, UpdateAgentThoughtChunk:
		var block ContentBlock
		if err := json.Unmarshal(wire.Content, &block); err != nil {
			return fmt.Errorf("decode %s content: %w", wire.Kind, err)
		}
		u.Content = &block
	case UpdateToolCall, UpdateToolCallUpdate:
		if err := json.Unmarshal(wire.Content, &u.ContentItems); err != nil {
			return fmt.Errorf("decode %s content: %w", wire.Kind, err)
		}
	}
	return nil
}

// MarshalJSON encodes a session update in its wire shape.
func (u SessionUpdate) MarshalJSON() ([]byte, error) {
	wire := sessionUpdateWire{
		Kind:       u.Kind,
		ToolCallID: u.ToolCallID,
		Status:     u.Status,
		Title:      u.Title,
		Locations:  u.Locations,
		ToolKind:   u.ToolKind,
		ServerName: u.ServerName,
		ToolName:   u.ToolName,
	}
	switch {
	case u.Content != nil:
		raw, err := json.Marshal(u.Content)
		if err != nil {
			return nil, err
		}
		wire.Content = raw
	case u.ContentItems != nil:
		raw, err := json.Marshal(u.ContentItems)
		if err != nil {
			return nil, err
		}
		wire.Content = raw
	}
	return json.Marshal(wire)
}

// ToolCallStatus is the lifecycle state of a tool call.
type ToolCallStatus string

const (
	StatusPending    ToolCallStatus = "pending"
	StatusInProgress ToolCallStatus = "in_progress"
	StatusCompleted  ToolCallStatus = "completed"
	StatusFailed     ToolCallStatus = "failed"
)

// ToolCallKind categorises what a tool call does.
type ToolCallKind string

const (
	KindRead    ToolCallKind = "read"
	KindEdit    ToolCallKind = "edit"
	KindExecute ToolCallKind = "execute"
	KindSearch  ToolCallKind = "search"
	KindFetch   ToolCallKind = "fetch"
	KindOther   ToolCallKind = "other"
)

// Tool call content item discriminators.
const (
	ToolContentContent = "content"
	ToolContentDiff    = "diff"
)

// ToolCallContentItem is one piece of tool-call output: either a nested
// content block or a file diff.
type ToolCallContentItem struct {
	Type string `json:"type"`

	// content
	Content *ContentBlock `json:"content,omitempty"`

	// diff
	Path    string `json:"path,omitempty"`
	OldText string `json:"oldText,omitempty"`
	NewText string `json:"newText,omitempty"`
}

// Location points a tool call at a file position.
type Location struct {
	Path   string `json:"path"`
	Line   *int   `json:"line,omitempty"`
	Column *int   `json:"column,omitempty"`
}

// SessionRequestPermissionParams is the agent's request for user consent
// before running a tool call.
type SessionRequestPermissionParams struct {
	SessionID string             `json:"sessionId"`
	Options   []PermissionOption `json:"options"`
	ToolCall  PermissionToolCall `json:"toolCall"`
}

// PermissionOption is one choice presented to the user.
type PermissionOption struct {
	OptionID string               `json:"optionId"`
	Name     string               `json:"name"`
	Kind     PermissionOptionKind `json:"kind"`
}

// PermissionOptionKind classifies a permission option.
type PermissionOptionKind string

const (
	PermissionAllowOnce    PermissionOptionKind = "allow_once"
	PermissionAllowAlways  PermissionOptionKind = "allow_always"
	PermissionRejectOnce   PermissionOptionKind = "reject_once"
	PermissionRejectAlways PermissionOptionKind = "reject_always"
)

// PermissionToolCall is the tool-call snapshot inside a permission request.
type PermissionToolCall struct {
	ToolCallID string                `json:"toolCallId"`
	Status     ToolCallStatus        `json:"status,omitempty"`
	Title      string                `json:"title,omitempty"`
	Content    []ToolCallContentItem `json:"content,omitempty"`
	Locations  []Location            `json:"locations,omitempty"`
	Kind       ToolCallKind          `json:"kind,omitempty"`
}

// PermissionResult answers a session/request_permission request.
type PermissionResult struct {
	Outcome PermissionOutcome `json:"outcome"`
}

// Permission outcome discriminators.
const (
	OutcomeSelected  = "selected"
	OutcomeCancelled = "cancelled"
)

// PermissionOutcome is the user's decision. Outcome is "selected" (with
// OptionID set) or "cancelled".
type PermissionOutcome struct {
	Outcome  string `json:"outcome"`
	OptionID string `json:"optionId,omitempty"`
}

// SelectedOutcome builds a selected permission outcome.
func SelectedOutcome(optionID string) PermissionOutcome {
	return PermissionOutcome{Outcome: OutcomeSelected, OptionID: optionID}
}

// CancelledOutcome builds a cancelled permission outcome.
func CancelledOutcome() PermissionOutcome {
	return PermissionOutcome{Outcome: OutcomeCancelled}
}

// StreamChunkParams is the payload of the legacy streamAssistantMessageChunk
// notification.
type StreamChunkParams struct {
	Chunk AssistantChunk `json:"chunk"`
}

// AssistantChunk carries streamed assistant text and/or thinking.
type AssistantChunk struct {
	Text    string `json:"text,omitempty"`
	Thought string `json:"thought,omitempty"`
}

// Standard JSON-RPC error codes plus the ACP-specific range.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodeSessionNotFound      = -32001
	CodeAuthenticationFailed = -32002
	CodePermissionDenied     = -32003
	CodeToolExecutionFailed  = -32004
)
