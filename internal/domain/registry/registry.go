// Package registry holds the process-wide table of versioned message
// handlers. It is populated once during boot, sealed, then read by the
// dispatch layer for the lifetime of the process.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/webitel/chat-delivery-service/internal/domain/model"
)

// Context carries the per-dispatch collaborators a handler may need besides
// the message itself.
type Context struct {
	Room                 *model.Room
	ClientHandlerVersion int
}

// Handler is a pluggable, independently versioned unit of business logic.
// It consumes one message and may produce zero or more follow-up messages.
// Handlers are process-lifetime singletons; the registry holds a non-owning
// reference.
type Handler interface {
	Handle(ctx context.Context, msg *model.Message, hctx *Context) ([]*model.Message, error)
}

// Key identifies one registered handler unit.
type Key struct {
	Name    string
	Version int
}

// Registry follows a write-once-then-read-many discipline: Register calls
// happen during boot under the mutex, Seal flips the table read-only, and
// every later Lookup is a plain map read.
type Registry struct {
	mu       sync.RWMutex
	handlers map[Key]Handler
	sealed   bool
}

func New() *Registry {
	return &Registry{
		handlers: make(map[Key]Handler),
	}
}

// Register adds a handler under (name, version). Registering a key twice, or
// registering after Seal, is a boot misconfiguration and returns an error the
// caller must treat as fatal.
func (r *Registry) Register(name string, version int, h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("handler registry is sealed: cannot register %q v%d", name, version)
	}
	key := Key{Name: name, Version: version}
	if _, exists := r.handlers[key]; exists {
		return &model.DuplicateHandlerError{Name: name, Version: version}
	}
	r.handlers[key] = h
	return nil
}

// Seal forbids further registration. Called once when boot wiring completes,
// before the first frame is served.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Lookup never fails: absence is a normal outcome the caller branches on.
func (r *Registry) Lookup(name string, version int) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[Key{Name: name, Version: version}]
	return h, ok
}
