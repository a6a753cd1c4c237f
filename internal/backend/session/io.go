package session

import (
	"bufio"
	"io"
	"log/slog"
	"strings"

	"github.com/Piebald-AI/gemini-cli-desktop/internal/backend/events"
	"github.com/Piebald-AI/gemini-cli-desktop/internal/backend/rpc"
)

// maxLineBytes bounds a single stdout line; agents can stream large diffs
// inside one JSON value.
const maxLineBytes = 1 << 20

// internalEvent is one sink emission queued through the forwarder so that
// events from a single inbound line reach the sink in production order.
type internalEvent struct {
	channel string
	payload any
}

// readLines pumps raw (untrimmed) stdout lines into a channel and closes it
// on EOF; consumers trim them.
func readLines(stdout io.Reader) <-chan string {
	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, maxLineBytes), maxLineBytes)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			slog.Debug("session: stdout reader stopped", "err", err)
		}
	}()
	return lines
}

// drainStderr mirrors agent stderr to the UI as error I/O. Stderr traffic
// never terminates a session; agents log progress there.
func drainStderr(conversationID string, stderr io.Reader, sink events.Sink) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, maxLineBytes), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Text()
		slog.Debug("session: agent stderr", "conversation", conversationID, "line", line)
		sink.Emit(events.CliIo(conversationID), events.CliIoPayload{
			IoType: events.IoError,
			Data:   line,
		})
	}
}

// forwardEvents serializes queued internal events to the sink until the
// queue closes.
func forwardEvents(queue <-chan internalEvent, sink events.Sink) {
	for ev := range queue {
		sink.Emit(ev.channel, ev.payload)
	}
}

// ioLoop multiplexes one session: outbound messages are written to the
// agent's stdin, inbound stdout lines are mirrored and dispatched. The loop
// exits on stdout EOF, a stdin write failure, or the outbound queue
// closing; on exit the session's liveness flips to false exactly once and a
// status snapshot is pushed.
func (r *Registry) ioLoop(conversationID string, lines <-chan string, outbound <-chan string,
	queue chan<- internalEvent, sink events.Sink) {

	defer func() {
		if r.markDead(conversationID) {
			slog.Info("session: marked inactive", "conversation", conversationID)
		}
		close(queue)
		sink.Emit(events.ChannelProcessStatusChanged, r.Snapshot())
	}()

	emit := func(channel string, payload any) {
		queue <- internalEvent{channel: channel, payload: payload}
	}

	for {
		select {
		case message, ok := <-outbound:
			if !ok {
				slog.Info("session: outbound queue closed", "conversation", conversationID)
				return
			}
			if !r.writeMessage(conversationID, message, emit) {
				return
			}

		case line, ok := <-lines:
			if !ok {
				slog.Info("session: agent closed stdout", "conversation", conversationID)
				return
			}
			trimmed := strings.TrimSpace(line)
			r.logRPC(conversationID, trimmed)
			emit(events.CliIo(conversationID), events.CliIoPayload{
				IoType: events.IoOutput,
				Data:   trimmed,
			})
			dispatch(conversationID, trimmed, emit)
		}
	}
}

// writeMessage writes one outbound message to the session's stdin. The
// handle is taken under the registry mutex, written to outside it, and
// returned afterwards. Returns false when the write path is broken and the
// loop should exit.
func (r *Registry) writeMessage(conversationID, message string, emit emitFunc) bool {
	stdin := r.takeStdin(conversationID)
	if stdin == nil {
		// Session died between queueing and writing; drop the message.
		slog.Warn("session: no stdin for outbound message", "conversation", conversationID)
		return true
	}

	r.logRPC(conversationID, message)

	if _, err := io.WriteString(stdin, message+rpc.Newline); err != nil {
		slog.Error("session: stdin write failed", "conversation", conversationID, "err", err)
		return false
	}

	emit(events.CliIo(conversationID), events.CliIoPayload{
		IoType: events.IoInput,
		Data:   message,
	})

	r.returnStdin(conversationID, stdin)
	return true
}
