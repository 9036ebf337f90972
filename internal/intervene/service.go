package intervene

import (
	"context"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/CelesteBean/treehacks-anchor/internal/bus"
	"github.com/CelesteBean/treehacks-anchor/internal/metrics"
	"github.com/CelesteBean/treehacks-anchor/internal/tts"
	"github.com/CelesteBean/treehacks-anchor/internal/warn"
)

// Speaker plays synthesized audio; the oto-backed player implements it and
// tests substitute their own.
type Speaker interface {
	PlayStream(ctx context.Context, pcmCh <-chan []byte, errCh <-chan error) error
	PlayClip(ctx context.Context, pcm []byte) error
}

// Service watches risk assessments and speaks a warning when the gate
// allows it.
type Service struct {
	bus       *bus.Bus
	gate      *Gate
	generator *warn.Generator
	synth     tts.Synthesizer
	speaker   Speaker
	stop      atomic.Bool
	done      chan struct{}
}

func NewService(b *bus.Bus, gate *Gate, generator *warn.Generator, synth tts.Synthesizer, speaker Speaker) *Service {
	return &Service{
		bus:       b,
		gate:      gate,
		generator: generator,
		synth:     synth,
		speaker:   speaker,
		done:      make(chan struct{}),
	}
}

// Run blocks until Stop is called or the subscription cannot be set up.
func (s *Service) Run(ctx context.Context) error {
	defer close(s.done)

	sub, err := s.bus.CreateSubscriber([]int{bus.TacticPort}, []string{bus.TopicTactics})
	if err != nil {
		return err
	}
	defer sub.Close()

	log.Printf("intervene: running, cooldown %s", s.gate.Cooldown())
	for !s.stop.Load() {
		_, env, ok := sub.Receive(200 * time.Millisecond)
		if !ok {
			continue
		}
		var tp bus.TacticsPayload
		if err := env.Decode(&tp); err != nil {
			log.Printf("intervene: bad tactics payload: %v", err)
			continue
		}
		if !s.gate.ShouldIntervene(tp.RiskLevel) {
			continue
		}
		s.intervene(ctx, tp)
	}
	return nil
}

// classificationText combines the transcript with the risk factors. The
// factors quote the matched phrase and scenario, which keeps classification
// working when context truncation has already dropped the trigger words from
// the transcript itself.
func classificationText(tp bus.TacticsPayload) string {
	if len(tp.RiskFactors) == 0 {
		return tp.Transcript
	}
	return tp.Transcript + " " + strings.Join(tp.RiskFactors, " ")
}

func (s *Service) intervene(ctx context.Context, tp bus.TacticsPayload) {
	// The cooldown advances no matter how the attempt ends.
	defer s.gate.MarkIntervened()

	signal := classificationText(tp)
	scamType := ClassifyScamType(signal)
	entities := ExtractEntities(signal)
	metrics.InterventionsFired.WithLabelValues(scamType).Inc()
	log.Printf("intervene: %s risk, scam type %s", tp.RiskLevel, scamType)

	text := s.generator.Warning(ctx, warn.Request{
		ScamType:   scamType,
		RiskLevel:  tp.RiskLevel,
		Factors:    tp.RiskFactors,
		Transcript: tp.Transcript,
		Entities:   entities,
	})
	log.Printf("intervene: speaking: %s", text)

	if s.speaker == nil {
		return
	}
	if s.synth != nil {
		pcmCh, errCh := s.synth.StreamPCM(ctx, text)
		err := s.speaker.PlayStream(ctx, pcmCh, errCh)
		if err == nil {
			return
		}
		log.Printf("intervene: speech playback failed, falling back to tone: %v", err)
		metrics.CollaboratorFailures.WithLabelValues("tts").Inc()
	}
	if err := s.speaker.PlayClip(ctx, tts.AlertTone()); err != nil {
		log.Printf("intervene: alert tone failed: %v", err)
	}
}

// Stop requests the run loop to exit.
func (s *Service) Stop() { s.stop.Store(true) }

// Done is closed when the run loop has exited.
func (s *Service) Done() <-chan struct{} { return s.done }
