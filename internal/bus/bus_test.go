package bus

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"echobot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBus_PublishSubscribe(t *testing.T) {
	b := New(2, testLogger())
	b.Publish(domain.InboundMessage{ID: "1"})
	b.Publish(domain.InboundMessage{ID: "2"})

	ch := b.Subscribe()
	if got := (<-ch).ID; got != "1" {
		t.Fatalf("expected 1, got %s", got)
	}
	if got := (<-ch).ID; got != "2" {
		t.Fatalf("expected 2, got %s", got)
	}
}

func TestBus_CloseDrainsThenEnds(t *testing.T) {
	b := New(4, testLogger())
	b.Publish(domain.InboundMessage{ID: "queued"})
	b.Close()
	b.Close() // idempotent

	ch := b.Subscribe()
	msg, ok := <-ch
	if !ok || msg.ID != "queued" {
		t.Fatalf("expected queued message, got %+v ok=%v", msg, ok)
	}
	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed")
	}
}

func TestBus_PublishAfterCloseIsIgnored(t *testing.T) {
	b := New(1, testLogger())
	b.Close()
	b.Publish(domain.InboundMessage{ID: "late"}) // must not panic
}

func TestBus_FullBusDropsAfterTimeout(t *testing.T) {
	b := New(1, testLogger())
	b.timeout = 20 * time.Millisecond
	b.Publish(domain.InboundMessage{ID: "1"})

	start := time.Now()
	b.Publish(domain.InboundMessage{ID: "2"})
	if time.Since(start) < 20*time.Millisecond {
		t.Fatal("publish should have waited for space")
	}
	if n := len(b.Subscribe()); n != 1 {
		t.Fatalf("expected 1 queued message, got %d", n)
	}
}

func TestBus_FullBusDeliversWhenSpaceFrees(t *testing.T) {
	b := New(1, testLogger())
	b.Publish(domain.InboundMessage{ID: "1"})

	go func() {
		time.Sleep(10 * time.Millisecond)
		<-b.Subscribe()
	}()
	b.Publish(domain.InboundMessage{ID: "2"})

	select {
	case msg := <-b.Subscribe():
		if msg.ID != "2" {
			t.Fatalf("expected 2, got %s", msg.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("second message never delivered")
	}
}

func TestBus_CloseWakesBlockedPublisher(t *testing.T) {
	b := New(1, testLogger())
	b.Publish(domain.InboundMessage{ID: "1"})

	published := make(chan struct{})
	go func() {
		b.Publish(domain.InboundMessage{ID: "2"})
		close(published)
	}()
	time.Sleep(20 * time.Millisecond)

	closed := make(chan struct{})
	go func() {
		b.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close blocked behind a waiting publisher")
	}
	select {
	case <-published:
	case <-time.After(time.Second):
		t.Fatal("publisher still waiting after Close")
	}

	var ids []string
	for msg := range b.Subscribe() {
		ids = append(ids, msg.ID)
	}
	if len(ids) != 1 || ids[0] != "1" {
		t.Fatalf("expected only the queued message, got %v", ids)
	}
}
