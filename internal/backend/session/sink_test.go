package session

import (
	"sync"
	"time"
)

// recordedEvent is one sink emission captured by recorderSink.
type recordedEvent struct {
	channel string
	payload any
}

// recorderSink captures emissions for assertions.
type recorderSink struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recorderSink) Emit(channel string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{channel: channel, payload: payload})
}

func (r *recorderSink) snapshot() []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedEvent(nil), r.events...)
}

func (r *recorderSink) byChannel(channel string) []any {
	var payloads []any
	for _, ev := range r.snapshot() {
		if ev.channel == channel {
			payloads = append(payloads, ev.payload)
		}
	}
	return payloads
}

// waitFor polls until cond is true or the timeout passes.
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
