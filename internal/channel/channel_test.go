package channel

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBackoff_ZeroAttempt(t *testing.T) {
	if d := backoff(0, time.Second, time.Minute); d != 0 {
		t.Errorf("expected 0, got %v", d)
	}
}

func TestBackoff_GrowsWithJitter(t *testing.T) {
	unit := 10 * time.Millisecond
	for attempt := 1; attempt <= 4; attempt++ {
		base := time.Duration(attempt*attempt) * unit
		for range 20 {
			d := backoff(attempt, unit, time.Hour)
			if d < base || d > base+base/2 {
				t.Fatalf("attempt %d: %v outside [%v, %v]", attempt, d, base, base+base/2)
			}
		}
	}
}

func TestBackoff_Ceiling(t *testing.T) {
	for _, attempt := range []int{5, 50, 1 << 20} {
		if d := backoff(attempt, time.Second, 3*time.Second); d > 3*time.Second {
			t.Errorf("attempt %d: %v exceeds ceiling", attempt, d)
		}
	}
}
