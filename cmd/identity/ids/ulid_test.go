package ids

import (
	"testing"
	"time"
)

func TestNew_MonotonicWithinMillisecond(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	prev := Must(now)
	for i := 0; i < 100; i++ {
		next := Must(now)
		if len(next) != 26 {
			t.Fatalf("unexpected length %d", len(next))
		}
		if next <= prev {
			t.Fatalf("ids not increasing: %s <= %s", next, prev)
		}
		prev = next
	}
}
