package stress

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/CelesteBean/treehacks-anchor/internal/bus"
	"github.com/CelesteBean/treehacks-anchor/internal/metrics"
	"github.com/CelesteBean/treehacks-anchor/internal/stagebuf"
)

// Emotions are valence/arousal/dominance estimates in [0,1].
type Emotions struct {
	Arousal   float64 `json:"arousal"`
	Valence   float64 `json:"valence"`
	Dominance float64 `json:"dominance"`
}

// EmotionScorer estimates vocal emotion dimensions from PCM audio.
type EmotionScorer interface {
	Score(ctx context.Context, samples []float32, sampleRate int) (Emotions, float64, error)
}

// HTTPScorer posts base64 PCM to an emotion-recognition endpoint.
type HTTPScorer struct {
	url    string
	apiKey string
	client *http.Client
}

func NewHTTPScorer(url, apiKey string) *HTTPScorer {
	return &HTTPScorer{url: url, apiKey: apiKey, client: &http.Client{Timeout: 20 * time.Second}}
}

type scoreRequest struct {
	Audio      string `json:"audio"`
	SampleRate int    `json:"sample_rate"`
}

type scoreResponse struct {
	Emotions   Emotions `json:"emotions"`
	Confidence float64  `json:"confidence"`
}

func (s *HTTPScorer) Score(ctx context.Context, samples []float32, sampleRate int) (Emotions, float64, error) {
	pcm := make([]byte, len(samples)*2)
	for i, v := range samples {
		f := math.Round(float64(v) * 32767)
		if f > 32767 {
			f = 32767
		} else if f < -32768 {
			f = -32768
		}
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(f)))
	}
	body, err := json.Marshal(scoreRequest{Audio: base64.StdEncoding.EncodeToString(pcm), SampleRate: sampleRate})
	if err != nil {
		return Emotions{}, 0, fmt.Errorf("marshal emotion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return Emotions{}, 0, fmt.Errorf("create emotion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Emotions{}, 0, fmt.Errorf("emotion request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return Emotions{}, 0, fmt.Errorf("emotion API returned status %d: %s", resp.StatusCode, string(b))
	}
	var out scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Emotions{}, 0, fmt.Errorf("decode emotion response: %w", err)
	}
	return out.Emotions, out.Confidence, nil
}

// StressScore combines the emotion dimensions into a single stress estimate.
// High arousal with low valence and low dominance reads as distress.
func StressScore(e Emotions) float64 {
	v := 0.5*e.Arousal + 0.3*(1-e.Valence) + 0.2*(1-e.Dominance)
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Service subscribes to raw audio, accumulates a longer window than the
// transcriber needs, and publishes stress estimates.
type Service struct {
	bus    *bus.Bus
	scorer EmotionScorer
	buffer *stagebuf.SampleBuffer
	stop   atomic.Bool
	done   chan struct{}
}

func NewService(b *bus.Bus, scorer EmotionScorer, sampleRate int, minAudio time.Duration) *Service {
	return &Service{
		bus:    b,
		scorer: scorer,
		buffer: stagebuf.NewSampleBuffer(sampleRate, minAudio.Seconds()),
		done:   make(chan struct{}),
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

	pub, err := s.bus.CreatePublisher(bus.StressPort)
	if err != nil {
		return err
	}

	log.Printf("stress: running, minimum window %.1fs", s.buffer.MinSeconds())
	for !s.stop.Load() {
		_, env, ok := sub.Receive(200 * time.Millisecond)
		if !ok {
			continue
		}
		var ap bus.AudioPayload
		if err := env.Decode(&ap); err != nil {
			log.Printf("stress: bad audio payload: %v", err)
			continue
		}
		if ap.SampleRate > 0 {
			s.buffer.SetSampleRate(ap.SampleRate)
		}
		samples, err := ap.Float32()
		if err != nil {
			log.Printf("stress: bad audio samples: %v", err)
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
	emotions, confidence, err := s.scorer.Score(ctx, samples, s.buffer.SampleRate())
	if err != nil {
		log.Printf("stress: window dropped: %v", err)
		metrics.CollaboratorFailures.WithLabelValues("emotion").Inc()
		return
	}

	payload := bus.StressPayload{
		StressScore: StressScore(emotions),
		Emotions: bus.Emotions{
			Arousal:   emotions.Arousal,
			Valence:   emotions.Valence,
			Dominance: emotions.Dominance,
		},
		Confidence: confidence,
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := pub.Publish(bus.TopicStress, payload); err != nil {
		log.Printf("stress: publish: %v", err)
	}
}

// Stop requests the run loop to exit.
func (s *Service) Stop() { s.stop.Store(true) }

// Done is closed when the run loop has exited.
func (s *Service) Done() <-chan struct{} { return s.done }
