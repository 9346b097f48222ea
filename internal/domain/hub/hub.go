/*
Package hub implements the in-process broadcast layer the delivery channel
fans out through.

Key architectural concepts:
  - Group rosters: every broadcast scope (see the group package) maps to a
    roster of live session mailboxes. Many sessions may be members of the
    same group concurrently; membership add/remove is safe under concurrent
    join/leave from unrelated connections.
  - Non-blocking handoff: a member's mailbox is a bounded channel. A full
    mailbox is surfaced to the caller as ErrBufferFull instead of blocking,
    so one slow consumer never stalls the rest of the group.
  - Lock-free lookups via sync.Map plus fine-grained locking inside each
    roster, following the read-heavy access pattern.
*/
package hub

import (
	"sync"

	"github.com/google/uuid"
	"github.com/webitel/chat-delivery-service/internal/domain/group"
)

// Hubber defines the membership gateway the transport and delivery layers
// depend on.
type Hubber interface {
	NewConn() Conn
	Join(g group.ID, c Conn)
	Leave(g group.ID, connID uuid.UUID)
	Members(g group.ID) []Conn
	Shutdown()
}

type roster struct {
	mu sync.RWMutex
	// closed marks a roster that was emptied and unlinked from the Hub;
	// a racing Join must retry against a fresh roster.
	closed  bool
	members map[uuid.UUID]Conn
}

func (r *roster) add(c Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.members[c.ID()] = c
	return true
}

// remove reports whether the roster is now empty and marks it closed if so.
func (r *roster) remove(connID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, connID)
	if len(r.members) == 0 {
		r.closed = true
		return true
	}
	return false
}

func (r *roster) snapshot() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Conn, 0, len(r.members))
	for _, c := range r.members {
		out = append(out, c)
	}
	return out
}

// Hub maps group ids to rosters of live connections.
type Hub struct {
	groups sync.Map // group.ID -> *roster
	config struct {
		sendBuffer int
	}
}

func New(opts ...Option) *Hub {
	h := &Hub{}
	h.config.sendBuffer = defaultSendBuffer
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NewConn allocates a session mailbox sized by the hub configuration.
func (h *Hub) NewConn() Conn {
	return newConn(h.config.sendBuffer)
}

// Join adds the connection to the group, creating the roster lazily.
func (h *Hub) Join(g group.ID, c Conn) {
	for {
		val, _ := h.groups.LoadOrStore(g, &roster{members: make(map[uuid.UUID]Conn)})
		if val.(*roster).add(c) {
			return
		}
		// Lost the race against a concurrent purge; unlink and retry.
		h.groups.CompareAndDelete(g, val)
	}
}

// Leave removes the connection from the group and purges the roster once
// vacated. Idempotent: leaving an already-vacated group is a no-op.
func (h *Hub) Leave(g group.ID, connID uuid.UUID) {
	val, ok := h.groups.Load(g)
	if !ok {
		return
	}
	r := val.(*roster)
	if r.remove(connID) {
		h.groups.CompareAndDelete(g, val)
	}
}

// Members returns a point-in-time snapshot; delivery to it proceeds without
// holding any hub lock.
func (h *Hub) Members(g group.ID) []Conn {
	val, ok := h.groups.Load(g)
	if !ok {
		return nil
	}
	return val.(*roster).snapshot()
}

// Shutdown closes every live connection. Used by the fx stop hook.
func (h *Hub) Shutdown() {
	h.groups.Range(func(key, val any) bool {
		for _, c := range val.(*roster).snapshot() {
			c.Close()
		}
		h.groups.Delete(key)
		return true
	})
}
