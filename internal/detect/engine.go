package detect

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/CelesteBean/treehacks-anchor/internal/metrics"
)

// Prosodics are lightweight text-derived delivery features used as a cheap
// stress proxy when no audio-based analysis is available.
type Prosodics struct {
	WordsPerSecond  float64 `json:"words_per_second"`
	HesitationCount int     `json:"hesitation_count"`
	QuestionCount   int     `json:"question_count"`
	PauseRatio      float64 `json:"pause_ratio"`
	ConfusionScore  float64 `json:"confusion_score"`
}

// Result is the full risk assessment for one transcript window.
type Result struct {
	RiskLevel       string             `json:"risk_level"`
	RiskScore       float64            `json:"risk_score"`
	Confidence      float64            `json:"confidence"`
	RiskFactors     []string           `json:"risk_factors"`
	Tactics         map[string]float64 `json:"tactics"`
	Similarity      float64            `json:"similarity"`
	TopScenario     string             `json:"top_scenario,omitempty"`
	Tier1Matches    []string           `json:"tier1_matches,omitempty"`
	Benign          bool               `json:"benign"`
	Sentiment       SentimentResult    `json:"sentiment"`
	Prosodics       Prosodics          `json:"prosodics"`
	WordCount       int                `json:"word_count"`
	InferenceTimeMs float64            `json:"inference_time_ms"`
}

// Engine scores transcript windows for scam risk. Tier 1 is exact phrase
// matching, Tier 2 is embedding similarity against known scam scenarios.
// A benign-context match zeroes the score and wins over both tiers.
type Engine struct {
	embedder     Embedder
	sentiment    SentimentScorer
	scenarioVecs [][]float32
}

// NewEngine precomputes scenario embeddings. A nil embedder disables Tier 2,
// a nil sentiment scorer yields neutral sentiment.
func NewEngine(ctx context.Context, embedder Embedder, sentiment SentimentScorer) (*Engine, error) {
	e := &Engine{embedder: embedder, sentiment: sentiment}
	if embedder != nil {
		e.scenarioVecs = make([][]float32, len(scamScenarios))
		for i, sc := range scamScenarios {
			vec, err := embedder.Embed(ctx, sc.Text)
			if err != nil {
				return nil, fmt.Errorf("embed scenario %d: %w", i, err)
			}
			e.scenarioVecs[i] = vec
		}
		log.Printf("detect: precomputed %d scenario embeddings", len(e.scenarioVecs))
	}
	return e, nil
}

var (
	hesitationMarkers = []string{"um", "uh", "er", "ah", "hmm", "well", "like"}
	questionWords     = []string{"what", "why", "how", "when", "where", "who", "huh"}
)

// Analyze scores one combined transcript window. It never returns an error:
// collaborator failures degrade the affected signal and are logged.
func (e *Engine) Analyze(ctx context.Context, transcript string) Result {
	start := time.Now()
	metrics.AnalysesRun.Inc()

	words := strings.Fields(transcript)
	lower := strings.ToLower(transcript)

	res := Result{
		RiskLevel: "low",
		Tactics:   baseTactics(),
		WordCount: len(words),
		Prosodics: prosodicFeatures(words, transcript),
	}

	// Tier 1
	for _, phrase := range tier1Phrases {
		if strings.Contains(lower, phrase) {
			res.Tier1Matches = append(res.Tier1Matches, phrase)
		}
	}
	tier1 := len(res.Tier1Matches) > 0
	if tier1 {
		res.RiskScore = max(res.RiskScore, 0.7)
		for i, p := range res.Tier1Matches {
			if i >= 2 {
				break
			}
			res.RiskFactors = append(res.RiskFactors, fmt.Sprintf("Exact phrase match: %q", p))
		}
	}

	// Tier 2: skipped for windows under three words, too little signal for
	// a meaningful similarity.
	var bestCategory string
	if e.embedder != nil && len(words) >= 3 {
		vec, err := e.embedder.Embed(ctx, transcript)
		if err != nil {
			log.Printf("detect: transcript embedding failed, skipping similarity: %v", err)
			metrics.CollaboratorFailures.WithLabelValues("embedder").Inc()
		} else {
			for i, sv := range e.scenarioVecs {
				if sim := cosine(vec, sv); sim > res.Similarity {
					res.Similarity = sim
					res.TopScenario = scamScenarios[i].Text
					bestCategory = scamScenarios[i].Category
				}
			}
		}
	}
	switch {
	case res.Similarity > 0.65:
		res.RiskScore = max(res.RiskScore, 0.6)
		res.RiskFactors = append(res.RiskFactors,
			fmt.Sprintf("Similarity %.2f to scenario: %s", res.Similarity, res.TopScenario))
	case res.Similarity > 0.40:
		res.RiskScore = max(res.RiskScore, 0.35)
		res.RiskFactors = append(res.RiskFactors,
			fmt.Sprintf("Moderate similarity %.2f to scenario: %s", res.Similarity, res.TopScenario))
	}

	// Benign override: zeroes the score and beats Tier 1.
	for _, bp := range benignPatterns {
		if bp.re.MatchString(transcript) {
			res.Benign = true
			res.RiskScore = 0
			res.RiskFactors = append(res.RiskFactors, fmt.Sprintf("(Benign: %s)", bp.Label))
			break
		}
	}

	res.Sentiment = e.scoreSentiment(ctx, transcript)
	e.inferTactics(&res, tier1, bestCategory)

	res.RiskScore = clamp01(res.RiskScore)
	switch {
	case res.Benign:
		res.RiskLevel = "low"
	case res.Similarity < 0.3 && !tier1:
		res.RiskLevel = "low"
	case res.RiskScore >= 0.6 || tier1:
		res.RiskLevel = "high"
	case res.RiskScore >= 0.35:
		res.RiskLevel = "medium"
	default:
		res.RiskLevel = "low"
	}

	if len(res.RiskFactors) > 0 {
		res.Confidence = min(res.RiskScore+0.1, 1.0)
	} else {
		res.Confidence = 0.1
	}

	res.InferenceTimeMs = float64(time.Since(start).Microseconds()) / 1000.0
	return res
}

func (e *Engine) scoreSentiment(ctx context.Context, transcript string) SentimentResult {
	if e.sentiment == nil {
		return SentimentResult{Neutral: 1}
	}
	out, err := e.sentiment.Score(ctx, transcript)
	if err != nil {
		log.Printf("detect: sentiment scoring failed, using neutral: %v", err)
		metrics.CollaboratorFailures.WithLabelValues("sentiment").Inc()
		return SentimentResult{Neutral: 1}
	}
	return out
}

// inferTactics fills the five-key tactic vector. Raises are monotonic: a
// key only ever moves up from its base. The phrase hints look only at the
// matched compliance phrases, so a loose keyword elsewhere in the window
// ("download the photos I sent") does not move the vector.
func (e *Engine) inferTactics(res *Result, tier1 bool, bestCategory string) {
	t := res.Tactics
	if bestCategory != "" && (tier1 || res.Similarity > 0.45) {
		raise(t, bestCategory, 0.85)
	}
	hints := strings.Join(res.Tier1Matches, " ")
	if containsAny(hints, "arrest", "warrant", "jail") {
		raise(t, "fear", 0.8)
		raise(t, "authority", 0.7)
	}
	if containsAny(hints, "don't tell", "dont tell", "won't tell", "wont tell", "secret") {
		raise(t, "isolation", 0.85)
	}
	if containsAny(hints, "social security", "ssn") {
		raise(t, "authority", 0.75)
	}
	if containsAny(hints, "gift card", "bitcoin", "wire") {
		raise(t, "financial", 0.85)
	}
	if containsAny(hints, "remote access", "download", "teamviewer") {
		raise(t, "isolation", 0.8)
	}
	if res.Sentiment.Negative > 0.3 {
		raise(t, "fear", 0.6)
	}
}

func baseTactics() map[string]float64 {
	t := make(map[string]float64, len(TacticKeys))
	for _, k := range TacticKeys {
		t[k] = 0.1
	}
	return t
}

func raise(t map[string]float64, key string, v float64) {
	if v > t[key] {
		t[key] = v
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// nominalWindowSeconds approximates how much speech one analysis window
// covers when estimating speaking rate.
const nominalWindowSeconds = 5.0

// prosodicFeatures derives delivery features from the text alone. Both "..."
// and ".." count as pause indicators, so one ellipsis contributes twice.
func prosodicFeatures(words []string, transcript string) Prosodics {
	var p Prosodics
	for _, w := range words {
		trimmed := strings.Trim(strings.ToLower(w), ".,!?")
		if wordIn(trimmed, hesitationMarkers) {
			p.HesitationCount++
		}
		if wordIn(trimmed, questionWords) {
			p.QuestionCount++
		}
	}
	p.QuestionCount += strings.Count(transcript, "?")

	pauses := strings.Count(transcript, "...") + strings.Count(transcript, "..")
	denom := len(words)
	if denom < 1 {
		denom = 1
	}
	p.PauseRatio = min(float64(pauses)/float64(denom), 1.0)

	p.WordsPerSecond = float64(len(words)) / nominalWindowSeconds
	p.ConfusionScore = clamp01(0.15*float64(p.HesitationCount) +
		0.1*float64(p.QuestionCount) + 0.3*p.PauseRatio)
	return p
}

func wordIn(w string, set []string) bool {
	for _, s := range set {
		if w == s {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
