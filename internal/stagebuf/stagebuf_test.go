package stagebuf

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSampleBufferReadyAtMinLength(t *testing.T) {
	b := NewSampleBuffer(16000, 1.0)

	b.Add(make([]float32, 8000)) // 0.5s
	require.False(t, b.IsReady())
	require.InDelta(t, 0.5, b.Seconds(), 1e-9)

	b.Add(make([]float32, 8000)) // 1.0s
	require.True(t, b.IsReady())

	out := b.Flush()
	require.Len(t, out, 16000)
	require.False(t, b.IsReady())
	require.Zero(t, b.Seconds())
}

func TestSampleBufferIsReadyDoesNotConsume(t *testing.T) {
	b := NewSampleBuffer(16000, 0.5)
	b.Add(make([]float32, 16000))

	for i := 0; i < 3; i++ {
		require.True(t, b.IsReady())
	}
	require.Len(t, b.Flush(), 16000)
}

func TestSampleBufferSampleRateOverride(t *testing.T) {
	b := NewSampleBuffer(16000, 1.0)
	b.SetSampleRate(8000)
	b.Add(make([]float32, 8000))
	require.True(t, b.IsReady())

	// Zero and negative rates are ignored.
	b.SetSampleRate(0)
	require.Equal(t, 8000, b.SampleRate())
}

func TestTextWindowRequiresBothIntervalAndWords(t *testing.T) {
	now := time.Now()
	w := NewTextWindow(5*time.Second, 8)
	w.now = func() time.Time { return now }

	w.Add("one two three four five six seven eight nine")

	// Enough words, interval not elapsed.
	require.False(t, w.IsReady())

	// Interval elapsed, enough words.
	now = now.Add(5 * time.Second)
	require.True(t, w.IsReady())

	combined := w.Flush()
	require.Equal(t, "one two three four five six seven eight nine", combined)

	// Interval elapsed again but the window is empty.
	now = now.Add(10 * time.Second)
	require.False(t, w.IsReady())

	// Refill with too few words.
	w.Add("just three words")
	require.False(t, w.IsReady())
}

func TestTextWindowFlushJoinsFragments(t *testing.T) {
	now := time.Now()
	w := NewTextWindow(time.Second, 2)
	w.now = func() time.Time { return now }

	w.Add("hello there")
	w.Add("general kenobi")
	now = now.Add(time.Second)
	require.True(t, w.IsReady())
	require.Equal(t, "hello there general kenobi", w.Flush())
}

func TestAgingContextDropsOldEntries(t *testing.T) {
	now := time.Now()
	c := NewAgingContext(60*time.Second, 200)
	c.now = func() time.Time { return now }

	c.Add("ancient words here")
	now = now.Add(61 * time.Second)
	c.Add("fresh words")

	snapshot, words := c.Snapshot()
	require.Equal(t, "fresh words", snapshot)
	require.Equal(t, 2, words)
}

func TestAgingContextTruncatesToTail(t *testing.T) {
	now := time.Now()
	c := NewAgingContext(time.Hour, 5)
	c.now = func() time.Time { return now }

	c.Add("a b c d")
	c.Add("e f g h")

	snapshot, words := c.Snapshot()
	require.Equal(t, 5, words)
	// The most recent words survive truncation.
	require.Equal(t, "d e f g h", snapshot)
	require.True(t, strings.HasSuffix(snapshot, "h"))
}
