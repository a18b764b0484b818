package observe

import (
	"sync"

	"github.com/cloudx-io/pullauction/core"
)

// Recorder keeps emitted events in memory, in order.
type Recorder struct {
	mu     sync.Mutex
	events []core.Event
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Emit(e core.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []core.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Len returns the number of recorded events.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Truncate drops everything after the first n events.
func (r *Recorder) Truncate(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n < len(r.events) {
		r.events = r.events[:n]
	}
}

// Drain returns the recorded events and resets the recorder.
func (r *Recorder) Drain() []core.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}

// Fanout forwards every event to each sink in order.
type Fanout []core.Sink

func (f Fanout) Emit(e core.Event) {
	for _, s := range f {
		if s != nil {
			s.Emit(e)
		}
	}
}
