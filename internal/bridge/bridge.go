// Package bridge hands items from a callback-driven producer (for example a
// hardware audio callback) to the bus. The callback context must never block
// on network I/O, so the callback side only attempts a non-blocking enqueue
// onto a bounded queue; a dedicated loop drains the queue and publishes.
package bridge

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/CelesteBean/treehacks-anchor/internal/bus"
	"github.com/CelesteBean/treehacks-anchor/internal/metrics"
)

// DefaultCapacity bounds the queue between the callback and the publish loop.
const DefaultCapacity = 256

const dequeueTimeout = 100 * time.Millisecond

// Bridge forwards queued items to one publisher under one topic.
type Bridge struct {
	pub      *bus.Publisher
	topic    string
	queue    chan any
	stopFlag atomic.Bool

	dropped   atomic.Uint64
	published atomic.Uint64

	wg      sync.WaitGroup
	started atomic.Bool
}

// New creates a bridge publishing on pub under topic. capacity <= 0 selects
// DefaultCapacity.
func New(pub *bus.Publisher, topic string, capacity int) *Bridge {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bridge{
		pub:   pub,
		topic: topic,
		queue: make(chan any, capacity),
	}
}

// Offer attempts a non-blocking enqueue. On a full queue the new item is
// dropped and the drop counter increments; queued work is preferred over
// newest-data freshness because slightly stale audio is still useful.
// Safe to call from a realtime callback.
func (b *Bridge) Offer(item any) bool {
	select {
	case b.queue <- item:
		return true
	default:
		n := b.dropped.Add(1)
		metrics.BridgeDropped.WithLabelValues(b.topic).Inc()
		if n%50 == 1 {
			log.Printf("bridge[%s]: queue full, dropped %d items so far", b.topic, n)
		}
		return false
	}
}

// Start launches the publish loop. Calling Start twice is a no-op.
func (b *Bridge) Start() {
	if !b.started.CompareAndSwap(false, true) {
		return
	}
	b.wg.Add(1)
	go b.publishLoop()
}

func (b *Bridge) publishLoop() {
	defer b.wg.Done()
	timer := time.NewTimer(dequeueTimeout)
	defer timer.Stop()

	for !b.stopFlag.Load() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(dequeueTimeout)
		select {
		case item := <-b.queue:
			b.publish(item)
		case <-timer.C:
			// re-check the stop flag
		}
	}

	// Bounded drain: publish what was queued at stop time, nothing newer.
	// This goroutine is the only consumer, so len() items are guaranteed.
	remaining := len(b.queue)
	for i := 0; i < remaining; i++ {
		b.publish(<-b.queue)
	}
	log.Printf("bridge[%s]: exiting, published=%d (drained %d after stop), dropped=%d",
		b.topic, b.published.Load(), remaining, b.dropped.Load())
}

func (b *Bridge) publish(item any) {
	if err := b.pub.Publish(b.topic, item); err != nil {
		log.Printf("bridge[%s]: publish failed: %v", b.topic, err)
		return
	}
	b.published.Add(1)
	metrics.BusPublished.WithLabelValues(b.topic).Inc()
}

// Stop signals the publish loop to drain and exit, then waits for it.
// Thread-safe, idempotent, and a no-op before Start.
func (b *Bridge) Stop() {
	b.stopFlag.Store(true)
	if b.started.Load() {
		b.wg.Wait()
	}
}

// Dropped reports how many items were shed on queue-full.
func (b *Bridge) Dropped() uint64 { return b.dropped.Load() }

// Published reports how many items reached the bus.
func (b *Bridge) Published() uint64 { return b.published.Load() }
