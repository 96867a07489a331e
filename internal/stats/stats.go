// Package stats counts rate limiter decisions and bot commands.
package stats

import (
	"context"
	"sync"
	"time"
)

// Event is one rate limiter decision.
type Event struct {
	UserKey string
	Allowed bool
	Command string // empty for plain text
	At      time.Time
}

// Recorder stores events. Implementations must be safe for concurrent use.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// Snapshot is a point-in-time copy of a MemoryRecorder.
type Snapshot struct {
	Allowed  int64
	Denied   int64
	Commands map[string]int64
}

// MemoryRecorder keeps counters in process. It holds no per-user state, so
// its size is bounded by the number of distinct commands.
type MemoryRecorder struct {
	mu       sync.Mutex
	allowed  int64
	denied   int64
	commands map[string]int64
}

// NewMemoryRecorder creates an empty recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{
		commands: make(map[string]int64),
	}
}

func (r *MemoryRecorder) Record(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ev.Allowed {
		r.allowed++
	} else {
		r.denied++
	}
	if ev.Command != "" {
		r.commands[ev.Command]++
	}
	return nil
}

// Snapshot returns the current counters.
func (r *MemoryRecorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	cmds := make(map[string]int64, len(r.commands))
	for k, v := range r.commands {
		cmds[k] = v
	}
	return Snapshot{
		Allowed:  r.allowed,
		Denied:   r.denied,
		Commands: cmds,
	}
}
