package channel

import (
	"context"
	"log/slog"
	"time"

	"echobot/internal/metrics"
)

const (
	defaultReconnectUnit    = time.Second
	defaultReconnectCeiling = 2 * time.Minute
)

// Conn is one live platform session.
type Conn interface {
	// Ready is closed once the session can receive and send messages.
	Ready() <-chan struct{}
	// Errors delivers the transport error that ended the session.
	Errors() <-chan error
	Close() error
}

// Dialer opens a new session.
type Dialer func(ctx context.Context) (Conn, error)

// ReconnectorConfig configures a Reconnector.
type ReconnectorConfig struct {
	Dial    Dialer
	Logger  *slog.Logger
	Unit    time.Duration
	Ceiling time.Duration
}

// Reconnector keeps a platform session open until its context ends,
// replacing the session after every transport error. Delays between
// attempts grow with each consecutive failure up to a ceiling, and reset
// once a session becomes ready.
type Reconnector struct {
	dial    Dialer
	logger  *slog.Logger
	unit    time.Duration
	ceiling time.Duration
}

func NewReconnector(cfg ReconnectorConfig) *Reconnector {
	r := &Reconnector{
		dial:    cfg.Dial,
		logger:  cfg.Logger,
		unit:    cfg.Unit,
		ceiling: cfg.Ceiling,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.unit <= 0 {
		r.unit = defaultReconnectUnit
	}
	if r.ceiling <= 0 {
		r.ceiling = defaultReconnectCeiling
	}
	if r.ceiling < r.unit {
		r.ceiling = r.unit
	}
	return r
}

// Run dials, serves and redials until ctx is cancelled. It always returns
// nil once ctx is done.
func (r *Reconnector) Run(ctx context.Context) error {
	attempt := 0
	for {
		if attempt > 0 {
			delay := backoff(attempt, r.unit, r.ceiling)
			r.logger.Info("reconnecting", "attempt", attempt, "backoff", delay)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
		}

		conn, err := r.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.logger.Error("connect failed", "err", err)
			attempt++
			continue
		}

		ready := r.serve(ctx, conn)
		metrics.SessionUp.Set(0)
		if err := conn.Close(); err != nil {
			r.logger.Warn("closing session", "err", err)
		}
		if ctx.Err() != nil {
			return nil
		}

		metrics.Reconnects.Inc()
		if ready {
			attempt = 1
		} else {
			attempt++
		}
	}
}

// serve blocks until ctx is done or conn reports an error. It reports
// whether the session became ready.
func (r *Reconnector) serve(ctx context.Context, conn Conn) bool {
	ready := conn.Ready()
	wasReady := false
	for {
		select {
		case <-ctx.Done():
			return wasReady
		case <-ready:
			wasReady = true
			ready = nil
			metrics.SessionUp.Set(1)
			r.logger.Info("session ready")
		case err := <-conn.Errors():
			r.logger.Error("session lost", "err", err)
			return wasReady
		}
	}
}
