package session

import (
	"testing"

	"github.com/Piebald-AI/gemini-cli-desktop/internal/backend/acp"
	"github.com/Piebald-AI/gemini-cli-desktop/internal/backend/events"
)

// collectEvents runs dispatch and returns everything it emitted, in order.
func collectEvents(t *testing.T, line string) []recordedEvent {
	t.Helper()
	var got []recordedEvent
	dispatch("c1", line, func(channel string, payload any) {
		got = append(got, recordedEvent{channel: channel, payload: payload})
	})
	return got
}

func TestDispatchStreamChunk(t *testing.T) {
	line := `{"method":"streamAssistantMessageChunk","params":{"chunk":{"text":"Hello","thought":"Let me think"}}}`
	got := collectEvents(t, line)
	if len(got) != 2 {
		t.Fatalf("expected thought+text events, got %+v", got)
	}
	if got[0].channel != "ai-thought-c1" || got[0].payload != "Let me think" {
		t.Fatalf("first event: %+v", got[0])
	}
	if got[1].channel != "ai-output-c1" || got[1].payload != "Hello" {
		t.Fatalf("second event: %+v", got[1])
	}
}

func TestDispatchAgentMessageChunk(t *testing.T) {
	line := `{"method":"session/update","params":{"sessionId":"s1","update":{"sessionUpdate":"agent_message_chunk","content":{"type":"text","text":"chunk"}}}}`
	got := collectEvents(t, line)
	if len(got) != 1 || got[0].channel != "ai-output-c1" || got[0].payload != "chunk" {
		t.Fatalf("unexpected events: %+v", got)
	}
}

func TestDispatchAgentThoughtChunk(t *testing.T) {
	line := `{"method":"session/update","params":{"sessionId":"s1","update":{"sessionUpdate":"agent_thought_chunk","content":{"type":"text","text":"hmm"}}}}`
	got := collectEvents(t, line)
	if len(got) != 1 || got[0].channel != "ai-thought-c1" || got[0].payload != "hmm" {
		t.Fatalf("unexpected events: %+v", got)
	}
}

func TestDispatchNonTextChunkIsDropped(t *testing.T) {
	line := `{"method":"session/update","params":{"sessionId":"s1","update":{"sessionUpdate":"agent_message_chunk","content":{"type":"image","data":"...","mime_type":"image/png"}}}}`
	if got := collectEvents(t, line); len(got) != 0 {
		t.Fatalf("non-text content should be discarded, got %+v", got)
	}
}

func TestDispatchToolCall(t *testing.T) {
	line := `{"method":"session/update","params":{"sessionId":"s1","update":{
		"sessionUpdate":"tool_call","toolCallId":"t1","status":"pending","title":"Run tests",
		"content":[],"locations":[],"kind":"execute","server_name":"sh","tool_name":"run"}}}`
	got := collectEvents(t, line)
	if len(got) != 1 || got[0].channel != "acp-session-update-c1" {
		t.Fatalf("unexpected events: %+v", got)
	}
	update, ok := got[0].payload.(acp.SessionUpdate)
	if !ok {
		t.Fatalf("payload type %T", got[0].payload)
	}
	if update.Kind != acp.UpdateToolCall || update.ToolCallID != "t1" ||
		update.ToolKind != acp.KindExecute || update.ServerName != "sh" || update.ToolName != "run" {
		t.Fatalf("unexpected update: %+v", update)
	}
}

func TestDispatchToolCallUpdate(t *testing.T) {
	line := `{"method":"session/update","params":{"sessionId":"s1","update":{
		"sessionUpdate":"tool_call_update","toolCallId":"t1","status":"completed",
		"content":[{"type":"content","content":{"type":"text","text":"done"}}]}}}`
	got := collectEvents(t, line)
	if len(got) != 1 || got[0].channel != "acp-session-update-c1" {
		t.Fatalf("unexpected events: %+v", got)
	}
	update := got[0].payload.(acp.SessionUpdate)
	if update.Status != acp.StatusCompleted || len(update.ContentItems) != 1 {
		t.Fatalf("unexpected update: %+v", update)
	}
}

func TestDispatchPermissionRequestPreservesID(t *testing.T) {
	line := `{"jsonrpc":"2.0","id":42,"method":"session/request_permission","params":{
		"sessionId":"s1",
		"options":[{"optionId":"proceed_once","name":"Allow","kind":"allow_once"}],
		"toolCall":{"toolCallId":"t9","status":"pending","title":"Edit file","content":[],"locations":[],"kind":"edit"}}}`
	got := collectEvents(t, line)
	if len(got) != 1 || got[0].channel != "acp-permission-request-c1" {
		t.Fatalf("unexpected events: %+v", got)
	}
	payload, ok := got[0].payload.(events.PermissionRequestPayload)
	if !ok {
		t.Fatalf("payload type %T", got[0].payload)
	}
	if payload.RequestID != 42 {
		t.Fatalf("request id = %d, want 42", payload.RequestID)
	}
	request, ok := payload.Request.(acp.SessionRequestPermissionParams)
	if !ok {
		t.Fatalf("request type %T", payload.Request)
	}
	if request.ToolCall.ToolCallID != "t9" || len(request.Options) != 1 {
		t.Fatalf("unexpected request: %+v", request)
	}
}

func TestDispatchPermissionRequestWithoutIDIsDropped(t *testing.T) {
	line := `{"method":"session/request_permission","params":{"sessionId":"s1","options":[],"toolCall":{"toolCallId":"t1"}}}`
	if got := collectEvents(t, line); len(got) != 0 {
		t.Fatalf("permission request without id should be dropped, got %+v", got)
	}
}

func TestDispatchEndTurn(t *testing.T) {
	line := `{"jsonrpc":"2.0","id":1000,"result":{"stopReason":"end_turn"}}`
	got := collectEvents(t, line)
	if len(got) != 1 || got[0].channel != "ai-turn-finished-c1" || got[0].payload != true {
		t.Fatalf("unexpected events: %+v", got)
	}
}

func TestDispatchOtherStopReasonIsSilent(t *testing.T) {
	line := `{"jsonrpc":"2.0","id":1000,"result":{"stopReason":"max_tokens"}}`
	if got := collectEvents(t, line); len(got) != 0 {
		t.Fatalf("non-end_turn results should emit nothing, got %+v", got)
	}
}

func TestDispatchRuntimeErrorSurfacesAsAiError(t *testing.T) {
	line := `{"jsonrpc":"2.0","id":1001,"error":{"code":-32004,"message":"tool execution failed"}}`
	got := collectEvents(t, line)
	if len(got) != 1 || got[0].channel != "ai-error-c1" || got[0].payload != "tool execution failed" {
		t.Fatalf("unexpected events: %+v", got)
	}
}

func TestDispatchIgnoresUnknownAndBrokenInput(t *testing.T) {
	for _, line := range []string{
		`{"method":"totally/unknown","params":{}}`,
		"not json at all",
		`{"jsonrpc":"2.0","id":7,"result":{}}`,
	} {
		if got := collectEvents(t, line); len(got) != 0 {
			t.Fatalf("line %q should emit nothing, got %+v", line, got)
		}
	}
}
