package stress

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStressScoreFormula(t *testing.T) {
	// Calm voice: low arousal, positive, in control.
	calm := StressScore(Emotions{Arousal: 0.1, Valence: 0.9, Dominance: 0.9})
	// Distressed voice: agitated, negative, overwhelmed.
	distressed := StressScore(Emotions{Arousal: 0.9, Valence: 0.1, Dominance: 0.1})

	require.Less(t, calm, 0.2)
	require.Greater(t, distressed, 0.8)
	require.LessOrEqual(t, distressed, 1.0)
	require.GreaterOrEqual(t, calm, 0.0)
}

func TestStressScoreClamped(t *testing.T) {
	require.Equal(t, 1.0, StressScore(Emotions{Arousal: 2, Valence: -1, Dominance: -1}))
	require.Equal(t, 0.0, StressScore(Emotions{Arousal: -2, Valence: 2, Dominance: 2}))
}

func TestHTTPScorerRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req scoreRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, 16000, req.SampleRate)
		raw, err := base64.StdEncoding.DecodeString(req.Audio)
		require.NoError(t, err)
		require.Len(t, raw, 200) // 100 samples, 2 bytes each

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(scoreResponse{
			Emotions:   Emotions{Arousal: 0.7, Valence: 0.2, Dominance: 0.3},
			Confidence: 0.85,
		})
	}))
	defer srv.Close()

	s := NewHTTPScorer(srv.URL, "test-key")
	emotions, confidence, err := s.Score(context.Background(), make([]float32, 100), 16000)
	require.NoError(t, err)
	require.InDelta(t, 0.7, emotions.Arousal, 1e-9)
	require.InDelta(t, 0.85, confidence, 1e-9)
}
