package detect

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/CelesteBean/treehacks-anchor/internal/bus"
	"github.com/CelesteBean/treehacks-anchor/internal/stagebuf"
)

// AnalyzerOptions tunes the analyzer's windowing and context aging.
type AnalyzerOptions struct {
	Interval        time.Duration
	MinWords        int
	ContextMaxAge   time.Duration
	ContextMaxWords int

	// PublishStress enables the prosodic stress fallback signal. Only one
	// publisher in the process may own the stress port, so this is set
	// only when no audio-based stress stage is running.
	PublishStress bool
}

// AnalyzerService subscribes to final transcripts, windows them, and
// publishes the tactic/risk assessment. Scoring runs over the rolling
// conversation context, not just the newest window, so tactics spread
// across several sentences still register.
type AnalyzerService struct {
	bus           *bus.Bus
	engine        *Engine
	window        *stagebuf.TextWindow
	context       *stagebuf.AgingContext
	publishStress bool
	stop          atomic.Bool
	done          chan struct{}
}

func NewAnalyzerService(b *bus.Bus, engine *Engine, opts AnalyzerOptions) *AnalyzerService {
	return &AnalyzerService{
		bus:           b,
		engine:        engine,
		window:        stagebuf.NewTextWindow(opts.Interval, opts.MinWords),
		context:       stagebuf.NewAgingContext(opts.ContextMaxAge, opts.ContextMaxWords),
		publishStress: opts.PublishStress,
		done:          make(chan struct{}),
	}
}

// Run blocks until Stop is called or the subscription cannot be set up.
func (s *AnalyzerService) Run(ctx context.Context) error {
	defer close(s.done)

	sub, err := s.bus.CreateSubscriber([]int{bus.TranscriptPort}, []string{bus.TopicTranscript})
	if err != nil {
		return err
	}
	defer sub.Close()

	var stressPub *bus.Publisher
	if s.publishStress {
		stressPub, err = s.bus.CreatePublisher(bus.StressPort)
		if err != nil {
			return err
		}
	}
	tacticPub, err := s.bus.CreatePublisher(bus.TacticPort)
	if err != nil {
		return err
	}

	log.Printf("analyzer: running, window %s / %d words minimum", s.window.Interval(), s.window.MinWords())
	for !s.stop.Load() {
		_, env, ok := sub.Receive(200 * time.Millisecond)
		if ok {
			var tp bus.TranscriptPayload
			if err := env.Decode(&tp); err != nil {
				log.Printf("analyzer: bad transcript payload: %v", err)
				continue
			}
			if tp.IsFinal && tp.Text != "" && tp.Text != "(silence)" {
				s.window.Add(tp.Text)
				s.context.Add(tp.Text)
			}
		}
		s.maybeAnalyze(ctx, stressPub, tacticPub)
	}
	return nil
}

func (s *AnalyzerService) maybeAnalyze(ctx context.Context, stressPub, tacticPub *bus.Publisher) {
	if !s.window.IsReady() {
		return
	}
	s.window.Flush()
	combined, _ := s.context.Snapshot()
	if combined == "" {
		return
	}
	res := s.engine.Analyze(ctx, combined)
	log.Printf("analyzer: %s risk %.2f (%d words, %.1fms)",
		res.RiskLevel, res.RiskScore, res.WordCount, res.InferenceTimeMs)

	if stressPub != nil {
		stress := bus.StressPayload{
			StressScore: res.Prosodics.ConfusionScore,
			Emotions: bus.Emotions{
				Arousal:   res.Prosodics.ConfusionScore,
				Valence:   clamp01((res.Sentiment.Compound + 1) / 2),
				Dominance: 1 - res.Prosodics.ConfusionScore,
			},
			Confidence: res.Confidence,
			Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		}
		if err := stressPub.Publish(bus.TopicStress, stress); err != nil {
			log.Printf("analyzer: publish stress: %v", err)
		}
	}

	tactics := bus.TacticsPayload{
		Tactics:         res.Tactics,
		RiskLevel:       res.RiskLevel,
		RiskScore:       res.RiskScore,
		RiskFactors:     res.RiskFactors,
		Transcript:      combined,
		WordCount:       res.WordCount,
		InferenceTimeMs: res.InferenceTimeMs,
		Timestamp:       time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := tacticPub.Publish(bus.TopicTactics, tactics); err != nil {
		log.Printf("analyzer: publish tactics: %v", err)
	}
}

// Stop requests the run loop to exit. Safe to call more than once and
// before Run.
func (s *AnalyzerService) Stop() {
	s.stop.Store(true)
}

// Done is closed when the run loop has exited.
func (s *AnalyzerService) Done() <-chan struct{} {
	return s.done
}
