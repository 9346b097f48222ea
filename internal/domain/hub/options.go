package hub

const defaultSendBuffer = 256

// Option defines a functional configuration type for the Hub.
type Option func(*Hub)

// WithSendBuffer sets the per-connection mailbox capacity. It is the
// backpressure threshold: a full mailbox is what the delivery layer sees as
// a "buffer full" condition.
func WithSendBuffer(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.config.sendBuffer = size
		}
	}
}
