package hub

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

var (
	// ErrBufferFull signals a saturated receive buffer. The delivery layer
	// decides whether to drop (best effort) or back off and retry.
	ErrBufferFull = errors.New("session send buffer full")
	// ErrClosed signals the session already left. Outstanding sends are
	// abandoned, never retried.
	ErrClosed = errors.New("session closed")
)

// Interface guard
var _ Conn = (*conn)(nil)

// Conn is the per-session mailbox the transport layer pumps frames from.
// This allows mocking and decoupling from the concrete implementation.
type Conn interface {
	ID() uuid.UUID
	// TrySend enqueues one encoded frame without blocking. It reports
	// ErrBufferFull on a saturated mailbox and ErrClosed after Close.
	TrySend(payload []byte) error
	Recv() <-chan []byte
	Done() <-chan struct{}
	Close()
	// Dropped counts frames refused because the mailbox was full.
	Dropped() uint64
}

// [CONNECT] CONCRETE IMPLEMENTATION (UNEXPORTED TO FORCE INTERFACE USAGE)
type conn struct {
	id        uuid.UUID
	sendCh    chan []byte
	done      chan struct{}
	closeOnce sync.Once
	dropped   atomic.Uint64
}

func newConn(bufferSize int) *conn {
	return &conn{
		id:     uuid.New(),
		sendCh: make(chan []byte, bufferSize),
		done:   make(chan struct{}),
	}
}

func (c *conn) ID() uuid.UUID { return c.id }

func (c *conn) TrySend(payload []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case <-c.done:
		return ErrClosed
	case c.sendCh <- payload:
		return nil
	default:
		c.dropped.Add(1)
		return ErrBufferFull
	}
}

func (c *conn) Recv() <-chan []byte   { return c.sendCh }
func (c *conn) Done() <-chan struct{} { return c.done }
func (c *conn) Dropped() uint64       { return c.dropped.Load() }

// Close is idempotent: the Hub (shutdown), the gateway (defer) and the
// delivery layer may all race to call it.
func (c *conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
