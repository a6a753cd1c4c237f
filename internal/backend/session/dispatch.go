package session

import (
	"encoding/json"
	"log/slog"

	"github.com/Piebald-AI/gemini-cli-desktop/internal/backend/acp"
	"github.com/Piebald-AI/gemini-cli-desktop/internal/backend/events"
)

// emitFunc forwards one internal event toward the sink, preserving the
// order events were produced from a single inbound line.
type emitFunc func(channel string, payload any)

// inboundEnvelope is the minimal probe decoded from every inbound JSON line
// before the method-specific payload is.
type inboundEnvelope struct {
	Method string             `json:"method"`
	ID     *uint64            `json:"id"`
	Params json.RawMessage    `json:"params"`
	Result json.RawMessage    `json:"result"`
	Error  *inboundError `json:"error"`
}

type inboundError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// dispatch translates one inbound line into typed UI events. Lines that are
// not JSON were already mirrored as raw output and carry no protocol
// meaning; unknown methods are ignored on purpose.
func dispatch(conversationID, line string, emit emitFunc) {
	var envelope inboundEnvelope
	if err := json.Unmarshal([]byte(line), &envelope); err != nil {
		return
	}

	if envelope.Method != "" {
		dispatchMethod(conversationID, envelope, emit)
		return
	}

	if envelope.Error != nil {
		// A non-fatal agent-reported error on an in-session request. The
		// session stays alive; the UI decides what to show.
		emit(events.AiError(conversationID), envelope.Error.Message)
		return
	}

	if len(envelope.Result) > 0 {
		var result acp.SessionPromptResult
		if err := json.Unmarshal(envelope.Result, &result); err == nil &&
			result.StopReason == acp.StopReasonEndTurn {
			emit(events.AiTurnFinished(conversationID), true)
		}
	}
}

func dispatchMethod(conversationID string, envelope inboundEnvelope, emit emitFunc) {
	switch envelope.Method {
	case acp.MethodStreamChunk:
		var params acp.StreamChunkParams
		if err := json.Unmarshal(envelope.Params, &params); err != nil {
			slog.Warn("dispatch: bad stream chunk params", "conversation", conversationID, "err", err)
			return
		}
		if params.Chunk.Thought != "" {
			emit(events.AiThought(conversationID), params.Chunk.Thought)
		}
		if params.Chunk.Text != "" {
			emit(events.AiOutput(conversationID), params.Chunk.Text)
		}

	case acp.MethodSessionUpdate:
		var params acp.SessionUpdateParams
		if err := json.Unmarshal(envelope.Params, &params); err != nil {
			slog.Warn("dispatch: bad session/update params", "conversation", conversationID, "err", err)
			return
		}
		dispatchSessionUpdate(conversationID, params.Update, emit)

	case acp.MethodRequestPermission:
		var params acp.SessionRequestPermissionParams
		if err := json.Unmarshal(envelope.Params, &params); err != nil {
			slog.Warn("dispatch: bad permission request params", "conversation", conversationID, "err", err)
			return
		}
		if envelope.ID == nil {
			slog.Warn("dispatch: permission request without id", "conversation", conversationID)
			return
		}
		emit(events.AcpPermissionRequest(conversationID), events.PermissionRequestPayload{
			RequestID: *envelope.ID,
			Request:   params,
		})

	default:
		// Unrecognised methods are protocol evolution, not errors.
	}
}

func dispatchSessionUpdate(conversationID string, update acp.SessionUpdate, emit emitFunc) {
	switch update.Kind {
	case acp.UpdateAgentMessageChunk:
		if text, ok := textContent(update.Content); ok {
			emit(events.AiOutput(conversationID), text)
		} else {
			slog.Info("dispatch: dropping non-text message chunk", "conversation", conversationID, "type", contentType(update.Content))
		}

	case acp.UpdateAgentThoughtChunk:
		if text, ok := textContent(update.Content); ok {
			emit(events.AiThought(conversationID), text)
		} else {
			slog.Info("dispatch: dropping non-text thought chunk", "conversation", conversationID, "type", contentType(update.Content))
		}

	case acp.UpdateToolCall, acp.UpdateToolCallUpdate:
		emit(events.AcpSessionUpdate(conversationID), update)

	default:
		slog.Debug("dispatch: unknown session update", "conversation", conversationID, "kind", update.Kind)
	}
}

// textContent extracts the text of a text content block.
func textContent(block *acp.ContentBlock) (string, bool) {
	if block == nil || block.Type != acp.ContentText {
		return "", false
	}
	return block.Text, true
}

func contentType(block *acp.ContentBlock) string {
	if block == nil {
		return "absent"
	}
	return block.Type
}
