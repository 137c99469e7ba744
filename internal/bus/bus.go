package bus

import (
	"log/slog"
	"sync"
	"time"

	"echobot/internal/domain"
)

const publishTimeout = 10 * time.Second

// InMemoryBus is a Go-channel based queue between the platform connection
// and the relay workers.
type InMemoryBus struct {
	inbound chan domain.InboundMessage
	done    chan struct{} // closed first by Close to wake waiting publishers
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a new InMemoryBus with the given buffer size.
func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &InMemoryBus{
		inbound: make(chan domain.InboundMessage, bufferSize),
		done:    make(chan struct{}),
		timeout: publishTimeout,
		logger:  logger,
	}
}

// Publish enqueues msg. It blocks up to 10 seconds if the bus is full
// instead of dropping, and gives up at once when the bus is closed.
func (b *InMemoryBus) Publish(msg domain.InboundMessage) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("attempted to publish to closed bus", "message_id", msg.ID)
		return
	}

	select {
	case b.inbound <- msg:
	default:
		b.logger.Warn("inbound bus full, waiting...", "channel_id", msg.Channel.ID, "author", msg.Author.Username)
		timer := time.NewTimer(b.timeout)
		defer timer.Stop()
		select {
		case b.inbound <- msg:
			b.logger.Info("message delivered after wait", "channel_id", msg.Channel.ID)
		case <-b.done:
			b.logger.Warn("message dropped: bus closed while full", "channel_id", msg.Channel.ID)
		case <-timer.C:
			b.logger.Error("message dropped: bus full",
				"channel_id", msg.Channel.ID,
				"author", msg.Author.Username,
				"waited", b.timeout,
			)
		}
	}
}

func (b *InMemoryBus) Subscribe() <-chan domain.InboundMessage {
	return b.inbound
}

// Close stops accepting messages. Messages already queued can still be
// received.
func (b *InMemoryBus) Close() {
	b.once.Do(func() { close(b.done) })

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.inbound)
	}
}
