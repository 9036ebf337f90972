package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/CelesteBean/treehacks-anchor/internal/bus"
)

func newBusAndPublisher(t *testing.T, port int) (*bus.Bus, *bus.Publisher) {
	t.Helper()
	ctx := bus.NewContext()
	t.Cleanup(ctx.Close)
	b := bus.New(ctx)
	pub, err := b.CreatePublisher(port)
	require.NoError(t, err)
	return b, pub
}

func TestOfferDropsWhenQueueFull(t *testing.T) {
	_, pub := newBusAndPublisher(t, 56201)
	br := New(pub, bus.TopicAudio, 2)
	// Not started: nothing drains the queue.

	require.True(t, br.Offer("a"))
	require.True(t, br.Offer("b"))
	require.False(t, br.Offer("c"))
	require.Equal(t, uint64(1), br.Dropped())
}

func TestStartedBridgeDeliversToSubscriber(t *testing.T) {
	b, pub := newBusAndPublisher(t, 56202)
	br := New(pub, bus.TopicAudio, DefaultCapacity)
	br.Start()
	defer br.Stop()

	sub, err := b.CreateSubscriber([]int{56202}, []string{bus.TopicAudio})
	require.NoError(t, err)
	time.Sleep(300 * time.Millisecond)

	payload := bus.NewAudioPayload([]int16{1, 2, 3}, 16000)
	require.True(t, br.Offer(payload))

	topic, env, ok := sub.Receive(2 * time.Second)
	require.True(t, ok)
	require.Equal(t, bus.TopicAudio, topic)

	var got bus.AudioPayload
	require.NoError(t, env.Decode(&got))
	pcm, err := got.Int16()
	require.NoError(t, err)
	require.Equal(t, []int16{1, 2, 3}, pcm)
}

func TestStopDrainsQueuedItems(t *testing.T) {
	b, pub := newBusAndPublisher(t, 56203)
	br := New(pub, bus.TopicAudio, DefaultCapacity)

	sub, err := b.CreateSubscriber([]int{56203}, []string{bus.TopicAudio})
	require.NoError(t, err)
	time.Sleep(300 * time.Millisecond)

	// Queue before starting, then start and stop immediately: everything
	// accepted must still go out.
	for i := 0; i < 5; i++ {
		require.True(t, br.Offer(bus.NewAudioPayload([]int16{int16(i)}, 16000)))
	}
	br.Start()
	br.Stop()
	require.Equal(t, uint64(5), br.Published())

	for i := 0; i < 5; i++ {
		_, env, ok := sub.Receive(2 * time.Second)
		require.True(t, ok, "expected item %d", i)
		var got bus.AudioPayload
		require.NoError(t, env.Decode(&got))
		pcm, err := got.Int16()
		require.NoError(t, err)
		require.Equal(t, []int16{int16(i)}, pcm)
	}
}

func TestStopBeforeStartIsSafe(t *testing.T) {
	_, pub := newBusAndPublisher(t, 56204)
	br := New(pub, bus.TopicAudio, 4)
	br.Stop()
	br.Stop()
}
