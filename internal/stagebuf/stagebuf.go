// Package stagebuf provides the accumulation policies pipeline stages use to
// decide when they have enough input to invoke their inference step.
//
// None of the buffers are thread-safe: each is owned by exactly one consumer
// loop. When a producer callback on another goroutine feeds a buffer, the
// two sides share a single lock around Add/IsReady/Flush.
package stagebuf

import (
	"strings"
	"time"
)

// SampleBuffer accumulates float32 PCM and reports ready once the buffered
// duration reaches MinLength seconds. Used by the audio-consuming stages.
type SampleBuffer struct {
	samples    []float32
	sampleRate int
	minLength  float64
}

// NewSampleBuffer creates a buffer that is ready at minLength seconds of
// audio at sampleRate Hz.
func NewSampleBuffer(sampleRate int, minLength float64) *SampleBuffer {
	return &SampleBuffer{sampleRate: sampleRate, minLength: minLength}
}

// Add appends a chunk of samples.
func (b *SampleBuffer) Add(chunk []float32) {
	b.samples = append(b.samples, chunk...)
}

// SetSampleRate updates the rate used for duration math; the source payload
// wins over the configured default.
func (b *SampleBuffer) SetSampleRate(rate int) {
	if rate > 0 {
		b.sampleRate = rate
	}
}

// SampleRate reports the rate currently used for duration math.
func (b *SampleBuffer) SampleRate() int { return b.sampleRate }

// MinSeconds reports the ready threshold in seconds.
func (b *SampleBuffer) MinSeconds() float64 { return b.minLength }

// Seconds reports the buffered duration.
func (b *SampleBuffer) Seconds() float64 {
	return float64(len(b.samples)) / float64(b.sampleRate)
}

// IsReady is a pure predicate; it never mutates the buffer.
func (b *SampleBuffer) IsReady() bool {
	return b.Seconds() >= b.minLength
}

// Flush returns the accumulated samples and resets the buffer to empty.
func (b *SampleBuffer) Flush() []float32 {
	out := b.samples
	b.samples = nil
	return out
}

// TextWindow accumulates transcript fragments and reports ready when the
// wall-clock interval since the last flush has elapsed AND the accumulated
// word count meets the minimum. Both must hold: elapsed time with too few
// words does not flush, so inference never fires on a near-empty buffer.
type TextWindow struct {
	fragments []string
	interval  time.Duration
	minWords  int
	lastFlush time.Time

	now func() time.Time
}

// NewTextWindow creates a window that flushes at most once per interval and
// only once minWords words have accumulated.
func NewTextWindow(interval time.Duration, minWords int) *TextWindow {
	w := &TextWindow{interval: interval, minWords: minWords, now: time.Now}
	w.lastFlush = w.now()
	return w
}

// Add appends one fragment.
func (w *TextWindow) Add(text string) {
	w.fragments = append(w.fragments, text)
}

// Interval reports the configured flush interval.
func (w *TextWindow) Interval() time.Duration { return w.interval }

// MinWords reports the configured word-count threshold.
func (w *TextWindow) MinWords() int { return w.minWords }

// WordCount reports the number of words accumulated so far.
func (w *TextWindow) WordCount() int {
	n := 0
	for _, f := range w.fragments {
		n += len(strings.Fields(f))
	}
	return n
}

// IsReady is a pure predicate; it never mutates the window.
func (w *TextWindow) IsReady() bool {
	return w.now().Sub(w.lastFlush) >= w.interval && w.WordCount() >= w.minWords
}

// Flush joins the accumulated fragments with single spaces, resets the
// window to empty, and restarts the interval clock.
func (w *TextWindow) Flush() string {
	combined := strings.TrimSpace(strings.Join(w.fragments, " "))
	w.fragments = nil
	w.lastFlush = w.now()
	return combined
}

// AgingContext keeps a rolling conversational context: entries older than
// maxAge are dropped before every read, and the snapshot is truncated to the
// most recent maxWords words. Recent speech outweighs older speech, so the
// tail is what survives truncation.
type AgingContext struct {
	entries  []contextEntry
	maxAge   time.Duration
	maxWords int

	now func() time.Time
}

type contextEntry struct {
	at   time.Time
	text string
}

// NewAgingContext creates a rolling context window.
func NewAgingContext(maxAge time.Duration, maxWords int) *AgingContext {
	return &AgingContext{maxAge: maxAge, maxWords: maxWords, now: time.Now}
}

// Add appends one utterance stamped with the current time.
func (c *AgingContext) Add(text string) {
	c.entries = append(c.entries, contextEntry{at: c.now(), text: text})
}

// prune drops entries older than maxAge. Entries are appended in time order,
// so a single scan from the front suffices.
func (c *AgingContext) prune() {
	cutoff := c.now().Add(-c.maxAge)
	i := 0
	for i < len(c.entries) && c.entries[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		c.entries = c.entries[i:]
	}
}

// Snapshot returns the current context as one string plus its word count.
func (c *AgingContext) Snapshot() (string, int) {
	c.prune()
	parts := make([]string, len(c.entries))
	for i, e := range c.entries {
		parts[i] = e.text
	}
	words := strings.Fields(strings.Join(parts, " "))
	if len(words) > c.maxWords {
		words = words[len(words)-c.maxWords:]
	}
	return strings.Join(words, " "), len(words)
}
