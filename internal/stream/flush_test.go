package stream

import (
	"strings"
	"testing"
	"time"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func TestForceFlushAtFifteenChars(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	buf := newFlushBuffer(clock.Now)

	// No word boundary, no elapsed time; size alone must force the flush.
	chunk, ok := buf.Append("abcdefghijklmnopqrst")
	if !ok {
		t.Fatal("expected forced flush at >=15 buffered chars")
	}
	if chunk != "abcdefghijklmnopqrst" {
		t.Fatalf("flushed %q", chunk)
	}
}

func TestNoFlushBelowThresholds(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	buf := newFlushBuffer(clock.Now)

	clock.Advance(time.Second)
	if _, ok := buf.Append("hel"); ok {
		t.Fatal("three chars with no boundary should keep buffering")
	}
	if chunk, ok := buf.Drain(); !ok || chunk != "hel" {
		t.Fatalf("drain returned %q, %v", chunk, ok)
	}
}

func TestThrottleOnSlowSingleCharStream(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	buf := newFlushBuffer(clock.Now)

	// One space-terminated char every 10ms: every append sits on a word
	// boundary, but flushes must still be at least 50ms apart.
	var flushTimes []time.Time
	for i := 0; i < 40; i++ {
		clock.Advance(10 * time.Millisecond)
		if _, ok := buf.Append("a "); ok {
			flushTimes = append(flushTimes, clock.Now())
		}
	}

	if len(flushTimes) == 0 {
		t.Fatal("expected at least one flush")
	}
	for i := 1; i < len(flushTimes); i++ {
		if gap := flushTimes[i].Sub(flushTimes[i-1]); gap < minFlushInterval {
			t.Fatalf("flushes %v apart, want >= %v", gap, minFlushInterval)
		}
	}
	// 400ms at a 50ms floor bounds the count.
	if len(flushTimes) > 8 {
		t.Fatalf("%d flushes in 400ms exceeds the 50ms throttle", len(flushTimes))
	}
}

func TestWordBoundaryFlushAfterInterval(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	buf := newFlushBuffer(clock.Now)

	if _, ok := buf.Append("one "); ok {
		t.Fatal("flush before the interval elapsed")
	}
	clock.Advance(minFlushInterval)
	chunk, ok := buf.Append("two ")
	if !ok {
		t.Fatal("expected flush on boundary after interval")
	}
	if chunk != "one two " {
		t.Fatalf("flushed %q", chunk)
	}
}

func TestDrainKeepsTrailingText(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	buf := newFlushBuffer(clock.Now)

	buf.Append("tail")
	chunk, ok := buf.Drain()
	if !ok || chunk != "tail" {
		t.Fatalf("drain returned %q, %v", chunk, ok)
	}
	if _, ok := buf.Drain(); ok {
		t.Fatal("second drain should be empty")
	}
}

func TestProgressMappingOrdering(t *testing.T) {
	if thinkingProgress(0) != thinkingBaseProgress {
		t.Fatalf("thinkingProgress(0) = %d", thinkingProgress(0))
	}
	if thinkingProgress(100000) != thinkingMaxProgress {
		t.Fatalf("thinking cap broken: %d", thinkingProgress(100000))
	}
	if contentProgress(0) != contentBaseProgress {
		t.Fatalf("contentProgress(0) = %d", contentProgress(0))
	}
	if contentProgress(100000) != contentMaxProgress {
		t.Fatalf("content cap broken: %d", contentProgress(100000))
	}
	// Phase ranges never overlap in the regressive direction.
	if thinkingMaxProgress > contentBaseProgress {
		t.Fatal("thinking range must end at or before the content range")
	}
	if contentMaxProgress >= 100 {
		t.Fatal("only completion may reach 100")
	}
	for _, words := range []int{0, 1, 10, 100, 500} {
		if got := contentProgress(words); got < thinkingProgress(words) {
			t.Fatalf("content progress %d below thinking progress for %d words", got, words)
		}
	}
	if !strings.ContainsAny(".", sentencePunctuation) {
		t.Fatal("period must count as a boundary")
	}
}
