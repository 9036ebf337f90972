package detect

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeEmbedder returns a fixed vector for texts containing a marker
// substring and an orthogonal vector for everything else, so similarity is
// fully controlled by the test.
type fakeEmbedder struct {
	marker string
	hit    []float32
	miss   []float32
	query  []float32
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.query != nil && !isScenarioText(text) {
		return f.query, nil
	}
	if f.marker != "" && strings.Contains(strings.ToLower(text), f.marker) {
		return f.hit, nil
	}
	return f.miss, nil
}

func isScenarioText(text string) bool {
	for _, sc := range scamScenarios {
		if sc.Text == text {
			return true
		}
	}
	return false
}

type fixedSentiment struct{ res SentimentResult }

func (f fixedSentiment) Score(context.Context, string) (SentimentResult, error) {
	return f.res, nil
}

func newTestEngine(t *testing.T, emb Embedder, sent SentimentScorer) *Engine {
	t.Helper()
	e, err := NewEngine(context.Background(), emb, sent)
	require.NoError(t, err)
	return e
}

func TestExactPhraseForcesHighRisk(t *testing.T) {
	e := newTestEngine(t, nil, nil)

	res := e.Analyze(context.Background(), "okay I will read you the numbers on the back of the card")
	require.Equal(t, "high", res.RiskLevel)
	require.GreaterOrEqual(t, res.RiskScore, 0.7)
	require.NotEmpty(t, res.Tier1Matches)
	require.NotEmpty(t, res.RiskFactors)
	require.Contains(t, res.RiskFactors[0], "Exact phrase match")
}

func TestExactPhraseNeverClassifiesLow(t *testing.T) {
	e := newTestEngine(t, nil, nil)

	// No embedder, so similarity stays 0; Tier 1 alone must carry it.
	res := e.Analyze(context.Background(), "my social security number is 123 45 6789")
	require.Equal(t, "high", res.RiskLevel)
}

func TestBenignContextForcesZeroScore(t *testing.T) {
	e := newTestEngine(t, nil, nil)

	res := e.Analyze(context.Background(), "I am buying a gift card for my grandson's birthday")
	require.True(t, res.Benign)
	require.Equal(t, "low", res.RiskLevel)
	require.Zero(t, res.RiskScore)

	found := false
	for _, f := range res.RiskFactors {
		if strings.HasPrefix(f, "(Benign:") {
			found = true
		}
	}
	require.True(t, found, "expected a benign factor, got %v", res.RiskFactors)
}

func TestBenignOverrideBeatsExactPhrase(t *testing.T) {
	e := newTestEngine(t, nil, nil)

	res := e.Analyze(context.Background(),
		"for his birthday I will read you the numbers on the back so you can load it")
	require.True(t, res.Benign)
	require.Equal(t, "low", res.RiskLevel)
	require.Zero(t, res.RiskScore)
}

func TestShortWindowSkipsSimilarity(t *testing.T) {
	emb := &fakeEmbedder{
		marker: "gift cards and read the redemption codes",
		hit:    []float32{1, 0},
		miss:   []float32{0, 1},
		query:  []float32{1, 0},
	}
	e := newTestEngine(t, emb, nil)

	res := e.Analyze(context.Background(), "buy cards")
	require.Zero(t, res.Similarity)
	require.Empty(t, res.TopScenario)
	require.Equal(t, "low", res.RiskLevel)
}

func TestHighSimilarityScoresHigh(t *testing.T) {
	emb := &fakeEmbedder{
		marker: "purchase gift cards and read the redemption codes",
		hit:    []float32{1, 0},
		miss:   []float32{0, 1},
		query:  []float32{1, 0},
	}
	e := newTestEngine(t, emb, nil)

	res := e.Analyze(context.Background(), "she told me to get the cards and call her back with them")
	require.InDelta(t, 1.0, res.Similarity, 1e-6)
	require.GreaterOrEqual(t, res.RiskScore, 0.6)
	require.Equal(t, "high", res.RiskLevel)
	require.Contains(t, res.TopScenario, "redemption codes")
}

func TestModerateSimilarityScoresMedium(t *testing.T) {
	// cos = 0.5 against the target scenario, 0 against every other.
	emb := &fakeEmbedder{
		marker: "purchase gift cards and read the redemption codes",
		hit:    []float32{1, 0, 0},
		miss:   []float32{0, 0, 1},
		query:  []float32{0.5, 0.8660254, 0},
	}
	e := newTestEngine(t, emb, nil)

	res := e.Analyze(context.Background(), "they want me to go to the store for them right now")
	require.InDelta(t, 0.5, res.Similarity, 1e-4)
	require.InDelta(t, 0.35, res.RiskScore, 1e-9)
	require.Equal(t, "medium", res.RiskLevel)
}

func TestTacticVectorBoundsAndRaises(t *testing.T) {
	e := newTestEngine(t, nil, fixedSentiment{SentimentResult{Negative: 0.5}})

	res := e.Analyze(context.Background(),
		"I will pay the fine to avoid arrest, I won't tell my family, and I am going to the bitcoin atm")

	for _, k := range TacticKeys {
		v, ok := res.Tactics[k]
		require.True(t, ok, "missing tactic %s", k)
		require.GreaterOrEqual(t, v, 0.1)
		require.LessOrEqual(t, v, 1.0)
	}
	require.InDelta(t, 0.8, res.Tactics["fear"], 1e-9)
	require.InDelta(t, 0.7, res.Tactics["authority"], 1e-9)
	require.InDelta(t, 0.85, res.Tactics["isolation"], 1e-9)
	require.InDelta(t, 0.85, res.Tactics["financial"], 1e-9)
	require.InDelta(t, 0.1, res.Tactics["urgency"], 1e-9)
}

func TestTacticRaisesComeFromMatchedPhrasesOnly(t *testing.T) {
	e := newTestEngine(t, nil, nil)

	// "download" in ordinary conversation is not a compliance phrase and
	// must leave the vector at base.
	res := e.Analyze(context.Background(),
		"can you download the photos from the trip when you get a chance")
	require.Empty(t, res.Tier1Matches)
	require.InDelta(t, 0.1, res.Tactics["isolation"], 1e-9)
	require.InDelta(t, 0.1, res.Tactics["financial"], 1e-9)
}

func TestProsodicFeaturesCountSignals(t *testing.T) {
	transcript := "Well... um, what do you mean? I... uh, how does that work?"
	p := prosodicFeatures(strings.Fields(transcript), transcript)

	require.Equal(t, 3, p.HesitationCount)
	require.Equal(t, 4, p.QuestionCount)
	require.InDelta(t, 4.0/12.0, p.PauseRatio, 1e-9)
	require.InDelta(t, 0.95, p.ConfusionScore, 1e-9)
	require.InDelta(t, 12.0/nominalWindowSeconds, p.WordsPerSecond, 1e-9)
}

func TestNegativeSentimentRaisesFear(t *testing.T) {
	e := newTestEngine(t, nil, fixedSentiment{SentimentResult{Negative: 0.4}})

	res := e.Analyze(context.Background(), "I am really not sure about any of this at all")
	require.GreaterOrEqual(t, res.Tactics["fear"], 0.6)
}

func TestConfidenceTracksFactors(t *testing.T) {
	e := newTestEngine(t, nil, nil)

	quiet := e.Analyze(context.Background(), "we talked about the weather for a while today")
	require.InDelta(t, 0.1, quiet.Confidence, 1e-9)

	risky := e.Analyze(context.Background(), "I promise not to tell anyone about this call")
	require.InDelta(t, min(risky.RiskScore+0.1, 1.0), risky.Confidence, 1e-9)
}

func TestClassificationLowWithoutSignals(t *testing.T) {
	e := newTestEngine(t, nil, nil)

	res := e.Analyze(context.Background(), "the garden is doing well and the tomatoes are ripe")
	require.Equal(t, "low", res.RiskLevel)
	require.Zero(t, res.RiskScore)
}
