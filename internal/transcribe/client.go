package transcribe

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"time"
)

// Segment is one recognized span within a transcription.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Result is one finished transcription of an audio span.
type Result struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
	Language string    `json:"language"`
}

// Transcriber turns PCM audio into text. Implementations must be safe for
// concurrent use.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int, language string) (Result, error)
}

// HTTPTranscriber posts WAV audio to an OpenAI-compatible
// /v1/audio/transcriptions endpoint.
type HTTPTranscriber struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func NewHTTPTranscriber(baseURL, apiKey, model string) *HTTPTranscriber {
	return &HTTPTranscriber{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (t *HTTPTranscriber) Transcribe(ctx context.Context, samples []float32, sampleRate int, language string) (Result, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "audio.wav")
	if err != nil {
		return Result{}, fmt.Errorf("create form file: %w", err)
	}
	if err := writeWAV(part, samples, sampleRate); err != nil {
		return Result{}, fmt.Errorf("encode wav: %w", err)
	}
	if t.model != "" {
		w.WriteField("model", t.model)
	}
	if language != "" {
		w.WriteField("language", language)
	}
	w.WriteField("response_format", "verbose_json")
	if err := w.Close(); err != nil {
		return Result{}, fmt.Errorf("finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/v1/audio/transcriptions", &body)
	if err != nil {
		return Result{}, fmt.Errorf("create transcription request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("transcription request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return Result{}, fmt.Errorf("transcription API returned status %d: %s", resp.StatusCode, string(b))
	}

	var out Result
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, fmt.Errorf("decode transcription response: %w", err)
	}
	return out, nil
}

// writeWAV emits a minimal 16-bit mono PCM RIFF container.
func writeWAV(w io.Writer, samples []float32, sampleRate int) error {
	dataLen := len(samples) * 2
	header := make([]byte, 0, 44)
	le := binary.LittleEndian

	u32 := func(v uint32) []byte { b := make([]byte, 4); le.PutUint32(b, v); return b }
	u16 := func(v uint16) []byte { b := make([]byte, 2); le.PutUint16(b, v); return b }

	header = append(header, []byte("RIFF")...)
	header = append(header, u32(uint32(36+dataLen))...)
	header = append(header, []byte("WAVEfmt ")...)
	header = append(header, u32(16)...)
	header = append(header, u16(1)...) // PCM
	header = append(header, u16(1)...) // mono
	header = append(header, u32(uint32(sampleRate))...)
	header = append(header, u32(uint32(sampleRate*2))...)
	header = append(header, u16(2)...)
	header = append(header, u16(16)...)
	header = append(header, []byte("data")...)
	header = append(header, u32(uint32(dataLen))...)
	if _, err := w.Write(header); err != nil {
		return err
	}

	pcm := make([]byte, dataLen)
	for i, s := range samples {
		f := math.Round(float64(s) * 32767)
		if f > 32767 {
			f = 32767
		} else if f < -32768 {
			f = -32768
		}
		le.PutUint16(pcm[i*2:], uint16(int16(f)))
	}
	_, err := w.Write(pcm)
	return err
}
