package bus

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"
)

// Envelope is the wire wrapper around every published message. Each envelope
// is independently deserializable; Topic is set once at publish time.
type Envelope struct {
	Timestamp string          `json:"timestamp"`
	Topic     string          `json:"topic"`
	Data      json.RawMessage `json:"data"`
}

// Decode unmarshals the envelope payload into a topic-specific struct.
func (e *Envelope) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

// AudioPayload carries one chunk of captured audio: base64-encoded
// little-endian int16 PCM at SampleRate Hz.
type AudioPayload struct {
	Samples    string `json:"samples"`
	Timestamp  string `json:"timestamp"`
	SampleRate int    `json:"sample_rate"`
}

// NewAudioPayload encodes int16 PCM samples into a publishable payload.
func NewAudioPayload(pcm []int16, sampleRate int) AudioPayload {
	raw := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(raw[i*2:i*2+2], uint16(s))
	}
	return AudioPayload{
		Samples:    base64.StdEncoding.EncodeToString(raw),
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		SampleRate: sampleRate,
	}
}

// Int16 decodes the base64 samples back to int16 PCM.
func (p AudioPayload) Int16() ([]int16, error) {
	raw, err := base64.StdEncoding.DecodeString(p.Samples)
	if err != nil {
		return nil, fmt.Errorf("decode audio samples: %w", err)
	}
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("odd-length pcm payload (%d bytes)", len(raw))
	}
	out := make([]int16, len(raw)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(raw[i*2 : i*2+2]))
	}
	return out, nil
}

// Float32 decodes the samples and normalizes to [-1, 1] for model input.
func (p AudioPayload) Float32() ([]float32, error) {
	ints, err := p.Int16()
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(ints))
	for i, s := range ints {
		out[i] = float32(s) / 32768.0
	}
	return out, nil
}

// Segment is one time-aligned span of transcribed speech.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// TranscriptPayload is published by the transcription stage.
type TranscriptPayload struct {
	Text      string    `json:"text"`
	Segments  []Segment `json:"segments"`
	Language  string    `json:"language"`
	IsFinal   bool      `json:"is_final"`
	Timestamp string    `json:"timestamp"`
}

// Emotions are the three dimensional-emotion scores from the stress stage.
type Emotions struct {
	Arousal   float64 `json:"arousal"`
	Valence   float64 `json:"valence"`
	Dominance float64 `json:"dominance"`
}

// StressPayload is published by the stress stage and by the analyzer's
// prosodic fallback signal.
type StressPayload struct {
	StressScore float64  `json:"stress_score"`
	Emotions    Emotions `json:"emotions"`
	Confidence  float64  `json:"confidence"`
	Timestamp   string   `json:"timestamp"`
}

// TacticsPayload is the detection engine's output consumed by the
// intervention gate and the dashboard.
type TacticsPayload struct {
	Tactics         map[string]float64 `json:"tactics"`
	RiskLevel       string             `json:"risk_level"`
	RiskScore       float64            `json:"risk_score"`
	RiskFactors     []string           `json:"risk_factors"`
	Transcript      string             `json:"transcript"`
	WordCount       int                `json:"word_count"`
	InferenceTimeMs float64            `json:"inference_time_ms"`
	Timestamp       string             `json:"timestamp"`
}
