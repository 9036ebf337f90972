package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Synthesizer streams 16-bit PCM speech for a piece of text.
type Synthesizer interface {
	StreamPCM(ctx context.Context, text string) (<-chan []byte, <-chan error)
}

// StreamClient speaks through an ElevenLabs-style HTTP streaming endpoint.
type StreamClient struct {
	BaseURL string
	APIKey  string
	VoiceID string
}

func NewStreamClient(baseURL, apiKey, voiceID string) *StreamClient {
	return &StreamClient{BaseURL: baseURL, APIKey: apiKey, VoiceID: voiceID}
}

// PlaybackRate is the PCM rate requested from the synthesis endpoint and
// expected by the player.
const PlaybackRate = 24000

// StreamPCM starts synthesis and returns channels carrying raw PCM chunks
// and at most one error. Both close when the stream ends.
func (c *StreamClient) StreamPCM(ctx context.Context, text string) (<-chan []byte, <-chan error) {
	pcmCh := make(chan []byte, 256)
	errCh := make(chan error, 1)
	go func() {
		defer close(pcmCh)
		defer close(errCh)
		if c.APIKey == "" || c.VoiceID == "" {
			errCh <- fmt.Errorf("tts: api key or voice id missing")
			return
		}
		if err := c.httpStream(ctx, text, pcmCh); err != nil {
			errCh <- err
		}
	}()
	return pcmCh, errCh
}

func (c *StreamClient) httpStream(ctx context.Context, text string, pcmCh chan<- []byte) error {
	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("tts: bad base url: %w", err)
	}
	u := *base
	u.Path = "/v1/text-to-speech/" + c.VoiceID + "/stream"
	q := u.Query()
	q.Set("model_id", "eleven_flash_v2_5")
	q.Set("output_format", fmt.Sprintf("pcm_%d", PlaybackRate))
	q.Set("optimize_streaming_latency", "2")
	u.RawQuery = q.Encode()

	body := map[string]any{
		"model_id": "eleven_flash_v2_5",
		"text":     text,
		"voice_settings": map[string]any{
			"stability":         0.4,
			"similarity_boost":  0.7,
			"style":             0.0,
			"use_speaker_boost": true,
		},
	}
	buf, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("xi-api-key", c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 0}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("tts stream error: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("tts status=%d body=%s", resp.StatusCode, string(b))
	}

	chunk := make([]byte, 4096)
	for {
		n, rerr := resp.Body.Read(chunk)
		if n > 0 {
			out := make([]byte, n)
			copy(out, chunk[:n])
			select {
			case pcmCh <- out:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				return nil
			}
			return fmt.Errorf("tts read error: %w", rerr)
		}
	}
}
