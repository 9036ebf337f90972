package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SentimentResult holds polarity scores in [0,1] plus a compound score in
// [-1,1].
type SentimentResult struct {
	Positive float64 `json:"positive"`
	Negative float64 `json:"negative"`
	Neutral  float64 `json:"neutral"`
	Compound float64 `json:"compound"`
}

// SentimentScorer rates the emotional polarity of a transcript window.
type SentimentScorer interface {
	Score(ctx context.Context, text string) (SentimentResult, error)
}

// HTTPSentiment calls a sentiment-analysis endpoint that accepts
// {"text": ...} and returns polarity scores.
type HTTPSentiment struct {
	url    string
	apiKey string
	client *http.Client
}

func NewHTTPSentiment(url, apiKey string) *HTTPSentiment {
	return &HTTPSentiment{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *HTTPSentiment) Score(ctx context.Context, text string) (SentimentResult, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return SentimentResult{}, fmt.Errorf("marshal sentiment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return SentimentResult{}, fmt.Errorf("create sentiment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return SentimentResult{}, fmt.Errorf("sentiment request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return SentimentResult{}, fmt.Errorf("sentiment API returned status %d: %s", resp.StatusCode, string(b))
	}

	var out SentimentResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return SentimentResult{}, fmt.Errorf("decode sentiment response: %w", err)
	}
	return out, nil
}
