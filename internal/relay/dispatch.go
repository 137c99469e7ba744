package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"echobot/internal/config"
	"echobot/internal/domain"
	"echobot/internal/metrics"
)

// Reason classifies why a destination could not be served.
type Reason int

const (
	ReasonNotFound Reason = iota + 1
	ReasonWrongType
	ReasonTransport
)

func (r Reason) String() string {
	switch r {
	case ReasonNotFound:
		return "not_found"
	case ReasonWrongType:
		return "wrong_type"
	case ReasonTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// DispatchError is the failure of one destination of one redirect. It never
// affects other destinations.
type DispatchError struct {
	Source      string
	Destination string
	Reason      Reason
	Err         error
}

func (e *DispatchError) Error() string {
	prefix := fmt.Sprintf("could not redirect from channel ID %s to channel ID %s", e.Source, e.Destination)
	switch e.Reason {
	case ReasonNotFound:
		return prefix + ": destination channel was not found"
	case ReasonWrongType:
		return prefix + ": destination channel is not a text channel"
	default:
		return fmt.Sprintf("%s: %v", prefix, e.Err)
	}
}

func (e *DispatchError) Unwrap() error { return e.Err }

// DestinationResult is the outcome of dispatching to one destination.
// Err is nil on success and a *DispatchError otherwise.
type DestinationResult struct {
	ChannelID string
	Err       error
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	Platform domain.Platform
	Logger   *slog.Logger
	// MaxConcurrentSends bounds how many destinations of one redirect are
	// served at once. Values below 1 mean one at a time.
	MaxConcurrentSends int
	// Nonce overrides GenerateNonce, mainly for tests.
	Nonce func() string
}

// Dispatcher delivers a built header and body to every destination of a
// redirect.
type Dispatcher struct {
	platform domain.Platform
	logger   *slog.Logger
	limit    int
	nonce    func() string
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	d := &Dispatcher{
		platform: cfg.Platform,
		logger:   cfg.Logger,
		limit:    cfg.MaxConcurrentSends,
		nonce:    cfg.Nonce,
	}
	if d.limit < 1 {
		d.limit = 1
	}
	if d.nonce == nil {
		d.nonce = GenerateNonce
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// Dispatch sends header (when present) then body to each destination of r.
// Destinations are served concurrently; header and body to one destination
// are always sent in that order. One result is returned per destination, in
// the order the destinations are configured. Per-destination log lines go to
// logger, or to the dispatcher's own logger when it is nil.
func (d *Dispatcher) Dispatch(ctx context.Context, logger *slog.Logger, msg domain.InboundMessage, r config.Redirect, header domain.Header, body domain.Body) []DestinationResult {
	if logger == nil {
		logger = d.logger
	}
	results := make([]DestinationResult, len(r.Destinations))

	var g errgroup.Group
	g.SetLimit(d.limit)
	for i, dest := range r.Destinations {
		g.Go(func() error {
			start := time.Now()
			err := d.dispatchOne(ctx, logger, msg, r, dest, header, body)
			results[i] = DestinationResult{ChannelID: dest, Err: err}

			var de *DispatchError
			if errors.As(err, &de) {
				metrics.Dispatches.WithLabelValues(de.Reason.String()).Inc()
			} else {
				metrics.Dispatches.WithLabelValues("ok").Inc()
				metrics.DispatchLatency.Observe(time.Since(start).Seconds())
			}
			return nil
		})
	}
	g.Wait()

	return results
}

func (d *Dispatcher) dispatchOne(ctx context.Context, logger *slog.Logger, msg domain.InboundMessage, r config.Redirect, dest string, header domain.Header, body domain.Body) error {
	fail := func(reason Reason, err error) error {
		return &DispatchError{Source: msg.Channel.ID, Destination: dest, Reason: reason, Err: err}
	}

	ch, err := d.platform.ResolveChannel(ctx, dest)
	if err != nil {
		if errors.Is(err, domain.ErrChannelNotFound) {
			return fail(ReasonNotFound, err)
		}
		return fail(ReasonTransport, err)
	}
	if !ch.Text {
		return fail(ReasonWrongType, nil)
	}

	logger.Info("redirecting message",
		"author", msg.Author.Username,
		"from", msg.Channel.Path(),
		"to", ch.Path(),
	)

	if header.Present() {
		out := header.Outbound(d.nonce())
		logger.Debug("sending header", "kind", header.Kind, "nonce", out.Nonce, "text", out.Content)
		if err := d.platform.Send(ctx, dest, out); err != nil {
			return fail(ReasonTransport, fmt.Errorf("send header: %w", err))
		}
	}

	out := domain.OutboundMessage{
		Content:     body.Contents,
		Embed:       body.Embed,
		Attachments: []domain.Attachment{},
		Nonce:       d.nonce(),
	}
	if r.Options.CopyAttachments {
		out.Attachments = append(out.Attachments, msg.Attachments...)
	}
	logger.Debug("sending body",
		"nonce", out.Nonce,
		"content_len", len(out.Content),
		"embed", out.Embed != nil,
		"attachments", len(out.Attachments),
	)
	if err := d.platform.Send(ctx, dest, out); err != nil {
		return fail(ReasonTransport, fmt.Errorf("send body: %w", err))
	}
	return nil
}
