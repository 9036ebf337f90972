package transcribe

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/CelesteBean/treehacks-anchor/internal/bus"
	"github.com/CelesteBean/treehacks-anchor/internal/metrics"
	"github.com/CelesteBean/treehacks-anchor/internal/stagebuf"
)

// Service subscribes to raw audio, accumulates at least MinAudio of samples,
// and publishes finished transcripts.
type Service struct {
	bus         *bus.Bus
	transcriber Transcriber
	buffer      *stagebuf.SampleBuffer
	language    string
	stop        atomic.Bool
	done        chan struct{}
}

func NewService(b *bus.Bus, t Transcriber, sampleRate int, minAudio time.Duration, language string) *Service {
	return &Service{
		bus:         b,
		transcriber: t,
		buffer:      stagebuf.NewSampleBuffer(sampleRate, minAudio.Seconds()),
		language:    language,
		done:        make(chan struct{}),
	}
}

// Run blocks until Stop is called or the subscription cannot be set up.
func (s *Service) Run(ctx context.Context) error {
	defer close(s.done)

	sub, err := s.bus.CreateSubscriber([]int{bus.AudioPort}, []string{bus.TopicAudio})
	if err != nil {
		return err
	}
	defer sub.Close()

	pub, err := s.bus.CreatePublisher(bus.TranscriptPort)
	if err != nil {
		return err
	}

	log.Printf("transcribe: running, minimum window %.1fs", s.buffer.MinSeconds())
	for !s.stop.Load() {
		_, env, ok := sub.Receive(200 * time.Millisecond)
		if !ok {
			continue
		}
		var ap bus.AudioPayload
		if err := env.Decode(&ap); err != nil {
			log.Printf("transcribe: bad audio payload: %v", err)
			continue
		}
		if ap.SampleRate > 0 {
			s.buffer.SetSampleRate(ap.SampleRate)
		}
		samples, err := ap.Float32()
		if err != nil {
			log.Printf("transcribe: bad audio samples: %v", err)
			continue
		}
		s.buffer.Add(samples)
		if !s.buffer.IsReady() {
			continue
		}
		s.flush(ctx, pub)
	}
	return nil
}

func (s *Service) flush(ctx context.Context, pub *bus.Publisher) {
	samples := s.buffer.Flush()
	res, err := s.transcriber.Transcribe(ctx, samples, s.buffer.SampleRate(), s.language)
	if err != nil {
		log.Printf("transcribe: window dropped: %v", err)
		metrics.CollaboratorFailures.WithLabelValues("transcriber").Inc()
		return
	}

	text := res.Text
	if text == "" {
		text = "(silence)"
	}
	segments := make([]bus.Segment, 0, len(res.Segments))
	for _, seg := range res.Segments {
		segments = append(segments, bus.Segment{Text: seg.Text, Start: seg.Start, End: seg.End})
	}
	payload := bus.TranscriptPayload{
		Text:      text,
		Segments:  segments,
		Language:  res.Language,
		IsFinal:   true,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := pub.Publish(bus.TopicTranscript, payload); err != nil {
		log.Printf("transcribe: publish transcript: %v", err)
	}
}

// Stop requests the run loop to exit.
func (s *Service) Stop() { s.stop.Store(true) }

// Done is closed when the run loop has exited.
func (s *Service) Done() <-chan struct{} { return s.done }
