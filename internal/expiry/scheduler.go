// Package expiry removes the bot's replies after a delay so conversations
// do not accumulate bot output.
package expiry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jdelaire/dirtylaunderer/core"
)

const (
	// DefaultTTL is how long a reply stays visible.
	DefaultTTL = 5 * time.Minute

	defaultTick   = 5 * time.Second
	deleteTimeout = 10 * time.Second
)

// Scheduler tracks pending deletions and performs them when due. With a
// nil Store pending deletions live only in memory.
type Scheduler struct {
	deleter core.Deleter
	store   *Store
	ttl     time.Duration
	tick    time.Duration
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	pending []Deletion
}

// NewScheduler creates a Scheduler and restores any persisted deletions.
func NewScheduler(deleter core.Deleter, store *Store, ttl time.Duration, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	s := &Scheduler{
		deleter: deleter,
		store:   store,
		ttl:     ttl,
		tick:    defaultTick,
		logger:  logger,
		now:     time.Now,
	}

	if store != nil {
		st, err := store.Load()
		if err != nil {
			return nil, fmt.Errorf("restore pending deletions: %w", err)
		}
		s.pending = st.Pending
		if len(s.pending) > 0 {
			logger.Info("restored pending deletions", "count", len(s.pending))
		}
	}
	return s, nil
}

// Schedule queues messageID in chatID for deletion after the TTL.
func (s *Scheduler) Schedule(chatID, messageID int64) error {
	if chatID == 0 || messageID == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = append(s.pending, Deletion{
		ChatID:    chatID,
		MessageID: messageID,
		DueAt:     s.now().Add(s.ttl).UTC(),
	})
	return s.persistLocked()
}

// Pending returns the number of queued deletions.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Run deletes due messages until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runTick(ctx)
		}
	}
}

func (s *Scheduler) runTick(ctx context.Context) {
	due := s.takeDue()
	for _, d := range due {
		delCtx, cancel := context.WithTimeout(ctx, deleteTimeout)
		err := s.deleter.Delete(delCtx, d.ChatID, d.MessageID)
		cancel()
		if err != nil {
			// Already deleted by a user or too old to delete; nothing to retry.
			s.logger.Debug("scheduled deletion failed", "error", err)
		}
	}
}

// takeDue removes and returns every deletion whose time has come.
func (s *Scheduler) takeDue() []Deletion {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var due, rest []Deletion
	for _, d := range s.pending {
		if d.DueAt.After(now) {
			rest = append(rest, d)
		} else {
			due = append(due, d)
		}
	}
	if len(due) == 0 {
		return nil
	}

	s.pending = rest
	if err := s.persistLocked(); err != nil {
		s.logger.Error("persist pending deletions", "error", err)
	}
	return due
}

func (s *Scheduler) persistLocked() error {
	if s.store == nil {
		return nil
	}
	return s.store.Save(State{Pending: s.pending})
}
