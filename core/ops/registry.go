package ops

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Request carries the invocation context of a command.
type Request struct {
	ChatID           int64
	MessageID        int64
	ReplyToMessageID int64
	UserKey          string
	Args             string
	IsAdmin          bool
}

// Reply is sent back to the chat. An empty Text sends nothing.
type Reply struct {
	Text      string
	ParseMode string
}

// Text builds a plain-text reply.
func Text(s string) Reply { return Reply{Text: s} }

// Op defines an executable operation triggered by an inbound command.
type Op interface {
	Name() string
	Description() string
	Execute(ctx context.Context, req Request) (Reply, error)
}

// Registry holds registered operations keyed by name.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]Op
}

// NewRegistry creates an empty operation registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]Op)}
}

// Register adds an operation. Returns an error if the name is already registered.
func (r *Registry) Register(op Op) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := op.Name()
	if _, exists := r.ops[name]; exists {
		return fmt.Errorf("op already registered: %s", name)
	}
	r.ops[name] = op
	return nil
}

// Unregister removes an operation. Missing names are ignored.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ops, name)
}

// Get returns the operation with the given name, or nil if not found.
func (r *Registry) Get(name string) Op {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ops[name]
}

// Lookup returns the operation a caller may run. Admin operations are
// invisible to non-admin callers.
func (r *Registry) Lookup(name string, isAdmin bool) Op {
	op := r.Get(name)
	if op == nil {
		return nil
	}
	if AccessOf(op) == AccessAdmin && !isAdmin {
		return nil
	}
	return op
}

// List returns all registered operations sorted by name.
func (r *Registry) List() []Op {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make([]Op, len(names))
	for i, name := range names {
		result[i] = r.ops[name]
	}
	return result
}

// ListAccess returns the operations with the given access level, sorted by
// name.
func (r *Registry) ListAccess(a Access) []Op {
	var out []Op
	for _, op := range r.List() {
		if AccessOf(op) == a {
			out = append(out, op)
		}
	}
	return out
}
