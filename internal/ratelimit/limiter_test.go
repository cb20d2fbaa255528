package ratelimit

import (
	"testing"
	"time"
)

// testClock returns a limiter whose clock is controlled by the test.
func testClock(policy Policy) (*Limiter, *time.Time) {
	l := New(policy)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestFirstRequestAllowed(t *testing.T) {
	l, _ := testClock(Policy{})
	if d := l.CheckAndRecord("alice"); d != nil {
		t.Fatalf("expected first request allowed, got denial %+v", d)
	}
}

func TestMinuteWindowBlocksSecondRequest(t *testing.T) {
	l, now := testClock(Policy{})

	if d := l.CheckAndRecord("alice"); d != nil {
		t.Fatalf("first request denied: %+v", d)
	}

	*now = now.Add(10 * time.Second)
	d := l.CheckAndRecord("alice")
	if d == nil {
		t.Fatal("expected minute-window denial")
	}
	if d.Window != WindowMinute {
		t.Errorf("expected minute window, got %s", d.Window)
	}
	if d.RetryAfter != 50*time.Second {
		t.Errorf("expected retry after 50s, got %s", d.RetryAfter)
	}
}

func TestMinuteWindowReopensAfterSixtySeconds(t *testing.T) {
	l, now := testClock(Policy{})

	if d := l.CheckAndRecord("alice"); d != nil {
		t.Fatalf("first request denied: %+v", d)
	}

	*now = now.Add(61 * time.Second)
	if d := l.CheckAndRecord("alice"); d != nil {
		t.Errorf("expected request allowed after window passed, got %+v", d)
	}
}

func TestBurstWithinMinuteOnlyFirstAllowed(t *testing.T) {
	l, now := testClock(Policy{})

	allowed := 0
	for i := 0; i < 5; i++ {
		if d := l.CheckAndRecord("alice"); d == nil {
			allowed++
		} else if d.Window != WindowMinute {
			t.Errorf("request %d: expected minute window, got %s", i, d.Window)
		}
		*now = now.Add(5 * time.Second)
	}
	if allowed != 1 {
		t.Errorf("expected exactly 1 allowed request, got %d", allowed)
	}
}

func TestHourWindowBlocksTwentyFirstRequest(t *testing.T) {
	l, now := testClock(Policy{})

	// 20 requests spaced 61s apart stay clear of the minute window but
	// all land inside one rolling hour.
	for i := 0; i < 20; i++ {
		if d := l.CheckAndRecord("alice"); d != nil {
			t.Fatalf("request %d denied: %+v", i, d)
		}
		*now = now.Add(61 * time.Second)
	}

	d := l.CheckAndRecord("alice")
	if d == nil {
		t.Fatal("expected hour-window denial on 21st request")
	}
	if d.Window != WindowHour {
		t.Errorf("expected hour window, got %s", d.Window)
	}
	if d.RetryAfter <= 0 || d.RetryAfter > time.Hour {
		t.Errorf("retry after out of range: %s", d.RetryAfter)
	}
}

func TestHourWindowReopensAfterOldestExpires(t *testing.T) {
	l, now := testClock(Policy{})

	for i := 0; i < 20; i++ {
		if d := l.CheckAndRecord("alice"); d != nil {
			t.Fatalf("request %d denied: %+v", i, d)
		}
		*now = now.Add(61 * time.Second)
	}

	d := l.CheckAndRecord("alice")
	if d == nil {
		t.Fatal("expected denial before oldest entry expired")
	}

	*now = now.Add(d.RetryAfter + time.Second)
	if d := l.CheckAndRecord("alice"); d != nil {
		t.Errorf("expected request allowed after retry period, got %+v", d)
	}
}

func TestIdentitiesAreIndependent(t *testing.T) {
	l, _ := testClock(Policy{})

	if d := l.CheckAndRecord("alice"); d != nil {
		t.Fatalf("alice denied: %+v", d)
	}
	if d := l.CheckAndRecord("bob"); d != nil {
		t.Errorf("bob should not share alice's quota, got %+v", d)
	}
}

func TestPruneDropsExpiredHistory(t *testing.T) {
	l, now := testClock(Policy{})

	if d := l.CheckAndRecord("alice"); d != nil {
		t.Fatalf("first request denied: %+v", d)
	}

	*now = now.Add(2 * time.Hour)
	if d := l.CheckAndRecord("alice"); d != nil {
		t.Fatalf("request denied after history expired: %+v", d)
	}

	l.mu.Lock()
	n := len(l.history["alice"])
	l.mu.Unlock()
	if n != 1 {
		t.Errorf("expected stale entries pruned, history has %d entries", n)
	}
}

func TestSetPolicyAppliesNewWindows(t *testing.T) {
	l, now := testClock(Policy{})

	if d := l.CheckAndRecord("alice"); d != nil {
		t.Fatalf("first request denied: %+v", d)
	}

	// Loosen the burst window to 3 per minute.
	l.SetPolicy(Policy{MinuteMax: 3, HourMax: 20, MinuteSpan: time.Minute, HourSpan: time.Hour})

	*now = now.Add(time.Second)
	if d := l.CheckAndRecord("alice"); d != nil {
		t.Errorf("expected second request allowed under loosened policy, got %+v", d)
	}
}
