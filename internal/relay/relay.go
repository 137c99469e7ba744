// Package relay decides which redirects apply to an inbound message, filters
// and rewrites it per redirect, and hands the result to the dispatcher.
package relay

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"echobot/internal/config"
	"echobot/internal/domain"
	"echobot/internal/metrics"
)

// Config configures a Relay.
type Config struct {
	Redirects          config.RedirectList
	Platform           domain.Platform
	Logger             *slog.Logger
	MaxConcurrentSends int
	Nonce              func() string
}

// Relay is the message handling pipeline. It holds only read-only state and
// is safe for concurrent use.
type Relay struct {
	redirects  config.RedirectList
	dispatcher *Dispatcher
	logger     *slog.Logger
}

func New(cfg Config) *Relay {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		redirects: cfg.Redirects,
		dispatcher: NewDispatcher(DispatcherConfig{
			Platform:           cfg.Platform,
			Logger:             logger,
			MaxConcurrentSends: cfg.MaxConcurrentSends,
			Nonce:              cfg.Nonce,
		}),
		logger: logger,
	}
}

// Handle relays msg through every matching redirect. Filter drops are
// logged and skipped. Destination failures are logged and joined into the
// returned error; they never stop the remaining destinations or redirects.
func (r *Relay) Handle(ctx context.Context, msg domain.InboundMessage) error {
	metrics.MessagesReceived.Inc()
	logger := r.logger.With("message_id", msg.ID, "handling_id", uuid.NewString())

	var errs []error
	for _, rd := range MatchingRedirects(msg, r.redirects) {
		metrics.RedirectsMatched.Inc()

		if !PassesAuthorFilter(msg, rd) {
			logger.Info("dropping message: author is not in the allow-list",
				"author", msg.Author.Username,
				"author_id", msg.Author.ID,
				"path", msg.Channel.Path(),
			)
			metrics.RelayDrops.WithLabelValues(metrics.DropNotAllowed).Inc()
			continue
		}

		header := BuildHeader(msg, rd)
		body := BuildBody(msg, rd)

		switch reason := bodyDropReason(body, rd.Options); reason {
		case metrics.DropTooShort:
			logger.Info("dropping message: too short", "author", msg.Author.Username, "path", msg.Channel.Path())
			metrics.RelayDrops.WithLabelValues(reason).Inc()
			continue
		case metrics.DropEmpty:
			logger.Info("dropping message: empty after redirect options", "author", msg.Author.Username, "path", msg.Channel.Path())
			metrics.RelayDrops.WithLabelValues(reason).Inc()
			continue
		}

		for _, res := range r.dispatcher.Dispatch(ctx, logger, msg, rd, header, body) {
			if res.Err != nil {
				logger.Error("dispatch failed", "destination", res.ChannelID, "err", res.Err)
				errs = append(errs, res.Err)
			}
		}
	}

	if len(errs) == 0 {
		logger.Debug("message handled")
	}
	return errors.Join(errs...)
}
