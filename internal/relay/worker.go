package relay

import (
	"context"
	"sync"

	"echobot/internal/domain"
)

// Run consumes inbound messages from bus until it is closed or ctx is
// cancelled, handling up to concurrency messages at once. It returns after
// every in-flight message has been handled.
func (r *Relay) Run(ctx context.Context, bus domain.MessageBus, concurrency int) {
	if concurrency < 1 {
		concurrency = 1
	}
	r.logger.Info("relay started", "concurrency", concurrency, "redirects", len(r.redirects))

	var wg sync.WaitGroup
	defer wg.Wait()

	sem := make(chan struct{}, concurrency)
	inbound := bus.Subscribe()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("relay stopping")
			return
		case msg, ok := <-inbound:
			if !ok {
				r.logger.Info("inbound channel closed, relay stopping")
				return
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			wg.Go(func() {
				defer func() { <-sem }()
				// Failures are logged inside Handle.
				_ = r.Handle(ctx, msg)
			})
		}
	}
}
