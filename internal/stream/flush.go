package stream

import (
	"strings"
	"time"
)

const (
	// minFlushInterval throttles flushes to a human-perceptible cadence.
	minFlushInterval = 50 * time.Millisecond
	// forceFlushChars bounds worst-case buffering on streams that never
	// hit a word boundary.
	forceFlushChars = 15
	minFlushWords   = 2
)

var sentencePunctuation = ".!?;:,\n"

// flushBuffer accumulates content deltas and decides when the buffered
// text should be forwarded. A flush requires a word boundary (or at least
// two buffered words) plus the minimum interval since the previous flush;
// a buffer of forceFlushChars or more flushes unconditionally.
type flushBuffer struct {
	buf       strings.Builder
	lastFlush time.Time
	now       func() time.Time
}

func newFlushBuffer(now func() time.Time) *flushBuffer {
	if now == nil {
		now = time.Now
	}
	return &flushBuffer{now: now, lastFlush: now()}
}

// Append adds a delta and returns the buffered text when a flush fires.
func (b *flushBuffer) Append(delta string) (string, bool) {
	b.buf.WriteString(delta)
	buffered := b.buf.String()
	trimmed := strings.TrimSpace(buffered)
	if trimmed == "" {
		return "", false
	}

	if len(trimmed) >= forceFlushChars {
		return b.take()
	}

	hasBoundary := strings.HasSuffix(buffered, " ") ||
		strings.ContainsAny(buffered[len(buffered)-1:], sentencePunctuation) ||
		len(strings.Fields(buffered)) >= minFlushWords
	if !hasBoundary {
		return "", false
	}
	if b.now().Sub(b.lastFlush) < minFlushInterval {
		return "", false
	}
	return b.take()
}

// Drain returns whatever is buffered regardless of boundaries. Used at
// phase transitions and stream end so no text is lost.
func (b *flushBuffer) Drain() (string, bool) {
	if strings.TrimSpace(b.buf.String()) == "" {
		b.buf.Reset()
		return "", false
	}
	return b.take()
}

func (b *flushBuffer) take() (string, bool) {
	out := b.buf.String()
	b.buf.Reset()
	b.lastFlush = b.now()
	return out, true
}
