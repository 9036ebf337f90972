package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// settle gives a freshly created subscriber time to finish its filter
// handshake before messages start flowing.
const settle = 300 * time.Millisecond

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	ctx := NewContext()
	t.Cleanup(ctx.Close)
	return New(ctx)
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	b := newTestBus(t)
	const port = 56101

	pub, err := b.CreatePublisher(port)
	require.NoError(t, err)

	sub, err := b.CreateSubscriber([]int{port}, []string{"transcript"})
	require.NoError(t, err)
	time.Sleep(settle)

	want := TranscriptPayload{Text: "hello there", IsFinal: true}
	require.NoError(t, pub.Publish("transcript", want))

	topic, env, ok := sub.Receive(2 * time.Second)
	require.True(t, ok)
	require.Equal(t, "transcript", topic)
	require.Equal(t, "transcript", env.Topic)
	require.NotEmpty(t, env.Timestamp)

	var got TranscriptPayload
	require.NoError(t, env.Decode(&got))
	require.Equal(t, want.Text, got.Text)
	require.True(t, got.IsFinal)
}

func TestSubscriberPreservesPublishOrder(t *testing.T) {
	b := newTestBus(t)
	const port = 56102

	pub, err := b.CreatePublisher(port)
	require.NoError(t, err)

	sub, err := b.CreateSubscriber([]int{port}, []string{"transcript"})
	require.NoError(t, err)
	time.Sleep(settle)

	texts := []string{"one", "two", "three", "four", "five"}
	for _, text := range texts {
		require.NoError(t, pub.Publish("transcript", TranscriptPayload{Text: text, IsFinal: true}))
	}

	for _, want := range texts {
		_, env, ok := sub.Receive(2 * time.Second)
		require.True(t, ok, "expected message %q", want)
		var got TranscriptPayload
		require.NoError(t, env.Decode(&got))
		require.Equal(t, want, got.Text)
	}
}

func TestReceiveTimeoutIsNotAnError(t *testing.T) {
	b := newTestBus(t)
	const port = 56103

	_, err := b.CreatePublisher(port)
	require.NoError(t, err)

	sub, err := b.CreateSubscriber([]int{port}, []string{"audio"})
	require.NoError(t, err)

	start := time.Now()
	topic, env, ok := sub.Receive(150 * time.Millisecond)
	require.False(t, ok)
	require.Empty(t, topic)
	require.Nil(t, env)
	require.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestTopicFilteringIsPrefixBased(t *testing.T) {
	b := newTestBus(t)
	const port = 56104

	pub, err := b.CreatePublisher(port)
	require.NoError(t, err)

	sub, err := b.CreateSubscriber([]int{port}, []string{"stress"})
	require.NoError(t, err)
	time.Sleep(settle)

	require.NoError(t, pub.Publish("tactics", TacticsPayload{RiskLevel: "high"}))
	require.NoError(t, pub.Publish("stress", StressPayload{StressScore: 0.4}))

	topic, env, ok := sub.Receive(2 * time.Second)
	require.True(t, ok)
	require.Equal(t, "stress", topic)
	var got StressPayload
	require.NoError(t, env.Decode(&got))
	require.InDelta(t, 0.4, got.StressScore, 1e-9)

	// The filtered-out message must not arrive afterwards.
	_, _, ok = sub.Receive(300 * time.Millisecond)
	require.False(t, ok)
}

func TestDoubleBindSamePortFails(t *testing.T) {
	b := newTestBus(t)
	const port = 56105

	_, err := b.CreatePublisher(port)
	require.NoError(t, err)

	_, err = b.CreatePublisher(port)
	require.Error(t, err)
}

func TestSubscriberWaitsForLatePublisher(t *testing.T) {
	b := newTestBus(t)
	const port = 56106

	// Stages start as unordered goroutines, so the subscriber side regularly
	// dials before the stage owning the port has bound it.
	pubCh := make(chan *Publisher, 1)
	go func() {
		time.Sleep(150 * time.Millisecond)
		pub, err := b.CreatePublisher(port)
		if err != nil {
			t.Errorf("late publisher bind: %v", err)
			close(pubCh)
			return
		}
		pubCh <- pub
	}()

	sub, err := b.CreateSubscriber([]int{port}, []string{"transcript"})
	require.NoError(t, err)
	time.Sleep(settle)

	pub, ok := <-pubCh
	require.True(t, ok)
	require.NoError(t, pub.Publish("transcript", TranscriptPayload{Text: "late bind", IsFinal: true}))

	_, env, ok := sub.Receive(2 * time.Second)
	require.True(t, ok)
	var got TranscriptPayload
	require.NoError(t, env.Decode(&got))
	require.Equal(t, "late bind", got.Text)
}

func TestSubscriberConnectToUnboundPortFails(t *testing.T) {
	b := newTestBus(t)

	_, err := b.CreateSubscriber([]int{56199}, []string{"audio"})
	require.Error(t, err)
}

func TestAudioPayloadRoundTrip(t *testing.T) {
	pcm := []int16{0, 1, -1, 32767, -32768, 12345}
	p := NewAudioPayload(pcm, 16000)
	require.Equal(t, 16000, p.SampleRate)

	back, err := p.Int16()
	require.NoError(t, err)
	require.Equal(t, pcm, back)

	f, err := p.Float32()
	require.NoError(t, err)
	require.Len(t, f, len(pcm))
	require.InDelta(t, 0, f[0], 1e-6)
	require.InDelta(t, 32767.0/32768.0, f[3], 1e-6)
	require.InDelta(t, -1.0, f[4], 1e-6)
}
