package policy

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	freshnessWindow = 5 * time.Minute
	maxSeenIDs      = 10000
	pruneCount      = 1000
)

var (
	ErrStale     = errors.New("stale message")
	ErrDuplicate = errors.New("duplicate update")
)

// Policy drops redelivered and stale updates and knows which chats may run
// admin commands.
type Policy struct {
	mu        sync.Mutex
	admins    map[int64]bool
	seen      map[int64]bool
	seenOrder []int64
	now       func() time.Time
}

// New creates a Policy. adminChatIDs lists the chats allowed to run admin
// commands; every chat may use the bot.
func New(adminChatIDs []int64) *Policy {
	admins := make(map[int64]bool, len(adminChatIDs))
	for _, id := range adminChatIDs {
		admins[id] = true
	}
	return &Policy{
		admins: admins,
		seen:   make(map[int64]bool),
		now:    time.Now,
	}
}

// Authorize checks whether an update should be processed. Telegram retries
// webhook deliveries, so an update ID is accepted only once. A zero update
// ID or timestamp skips the respective check.
func (p *Policy) Authorize(updateID int64, timestamp time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !timestamp.IsZero() {
		if age := p.now().Sub(timestamp); age > freshnessWindow {
			return fmt.Errorf("%w: %v old", ErrStale, age.Truncate(time.Second))
		}
	}

	if updateID == 0 {
		return nil
	}
	if p.seen[updateID] {
		return fmt.Errorf("%w: %d", ErrDuplicate, updateID)
	}

	// Prune oldest entries if at capacity.
	if len(p.seen) >= maxSeenIDs {
		for i := 0; i < pruneCount && i < len(p.seenOrder); i++ {
			delete(p.seen, p.seenOrder[i])
		}
		p.seenOrder = p.seenOrder[pruneCount:]
	}

	p.seen[updateID] = true
	p.seenOrder = append(p.seenOrder, updateID)
	return nil
}

// IsAdmin reports whether chatID may run admin commands.
func (p *Policy) IsAdmin(chatID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.admins[chatID]
}
