package channel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"echobot/internal/metrics"
)

type fakeConn struct {
	ready  chan struct{}
	errs   chan error
	mu     sync.Mutex
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{ready: make(chan struct{}), errs: make(chan error, 1)}
}

func (c *fakeConn) Ready() <-chan struct{} { return c.ready }
func (c *fakeConn) Errors() <-chan error   { return c.errs }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func runReconnector(t *testing.T, ctx context.Context, dial Dialer) <-chan error {
	t.Helper()
	rc := NewReconnector(ReconnectorConfig{
		Dial:    dial,
		Logger:  testLogger(),
		Unit:    time.Millisecond,
		Ceiling: 5 * time.Millisecond,
	})
	done := make(chan error, 1)
	go func() { done <- rc.Run(ctx) }()
	return done
}

func waitDone(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestReconnector_ReplacesLostSession(t *testing.T) {
	before := testutil.ToFloat64(metrics.Reconnects)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := newFakeConn()
	second := newFakeConn()
	var mu sync.Mutex
	dials := 0

	done := runReconnector(t, ctx, func(context.Context) (Conn, error) {
		mu.Lock()
		defer mu.Unlock()
		dials++
		switch dials {
		case 1:
			close(first.ready)
			first.errs <- errors.New("gateway closed")
			return first, nil
		default:
			close(second.ready)
			cancel()
			return second, nil
		}
	})
	waitDone(t, done)

	mu.Lock()
	defer mu.Unlock()
	if dials != 2 {
		t.Errorf("expected 2 dials, got %d", dials)
	}
	if !first.isClosed() || !second.isClosed() {
		t.Error("every session should be closed")
	}
	if got := testutil.ToFloat64(metrics.Reconnects) - before; got != 1 {
		t.Errorf("expected 1 reconnect, got %v", got)
	}
	if testutil.ToFloat64(metrics.SessionUp) != 0 {
		t.Error("session gauge should be down after Run returns")
	}
}

func TestReconnector_RetriesDialFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	dials := 0
	done := runReconnector(t, ctx, func(context.Context) (Conn, error) {
		mu.Lock()
		defer mu.Unlock()
		dials++
		if dials < 4 {
			return nil, errors.New("dial refused")
		}
		cancel()
		return newFakeConn(), nil
	})
	waitDone(t, done)

	mu.Lock()
	defer mu.Unlock()
	if dials != 4 {
		t.Errorf("expected 4 dials, got %d", dials)
	}
}

func TestReconnector_StopsWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rc := NewReconnector(ReconnectorConfig{
		Dial:   func(context.Context) (Conn, error) { return nil, errors.New("down") },
		Logger: testLogger(),
		Unit:   time.Hour,
	})
	done := make(chan error, 1)
	go func() { done <- rc.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	waitDone(t, done)
}
