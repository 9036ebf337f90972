package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration.
type Config struct {
	DashboardAddress string
	CaptureDevice    string

	EmbeddingURL   string
	EmbeddingKey   string
	EmbeddingModel string
	SentimentURL   string
	SentimentKey   string
	TranscribeURL  string
	TranscribeKey  string
	StressURL      string
	StressKey      string
	LLMURL         string
	LLMKey         string
	LLMModel       string
	TTSURL         string
	TTSKey         string
	TTSVoiceID     string

	Pipeline Pipeline
}

// Pipeline tunes the buffering and gating stages. Loaded from an optional
// YAML file, with defaults tuned for live-call latency.
type Pipeline struct {
	SampleRate           int
	ChunkMs              int
	TranscribeMinAudio   time.Duration
	StressMinAudio       time.Duration
	AnalysisInterval     time.Duration
	AnalysisMinWords     int
	ContextMaxAge        time.Duration
	ContextMaxWords      int
	InterventionCooldown time.Duration
	SettleDelay          time.Duration
}

func defaultPipeline() Pipeline {
	return Pipeline{
		SampleRate:           16000,
		ChunkMs:              100,
		TranscribeMinAudio:   1 * time.Second,
		StressMinAudio:       2500 * time.Millisecond,
		AnalysisInterval:     5 * time.Second,
		AnalysisMinWords:     8,
		ContextMaxAge:        60 * time.Second,
		ContextMaxWords:      200,
		InterventionCooldown: 30 * time.Second,
		SettleDelay:          500 * time.Millisecond,
	}
}

// Load reads environment variables plus an optional pipeline YAML file and
// returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg := Config{
		DashboardAddress: getEnv("DASHBOARD_ADDRESS", ":8090"),
		CaptureDevice:    os.Getenv("CAPTURE_DEVICE"),
		EmbeddingURL:     getEnv("EMBEDDING_API_URL", "https://api.openai.com"),
		EmbeddingKey:     os.Getenv("EMBEDDING_API_KEY"),
		EmbeddingModel:   getEnv("EMBEDDING_MODEL_ID", "text-embedding-3-small"),
		SentimentURL:     os.Getenv("SENTIMENT_API_URL"),
		SentimentKey:     os.Getenv("SENTIMENT_API_KEY"),
		TranscribeURL:    os.Getenv("TRANSCRIBE_API_URL"),
		TranscribeKey:    os.Getenv("TRANSCRIBE_API_KEY"),
		StressURL:        os.Getenv("STRESS_API_URL"),
		StressKey:        os.Getenv("STRESS_API_KEY"),
		LLMURL:           getEnv("LLM_API_URL", "https://api.cerebras.ai"),
		LLMKey:           os.Getenv("LLM_API_KEY"),
		LLMModel:         getEnv("LLM_MODEL_ID", "gpt-oss-120b"),
		TTSURL:           getEnv("TTS_API_URL", "https://api.elevenlabs.io"),
		TTSKey:           os.Getenv("TTS_API_KEY"),
		TTSVoiceID:       os.Getenv("TTS_VOICE_ID"),
		Pipeline:         defaultPipeline(),
	}

	if cfg.EmbeddingKey == "" {
		log.Println("Warning: EMBEDDING_API_KEY not set - scenario similarity will be disabled")
	}
	if cfg.TranscribeURL == "" {
		log.Println("Warning: TRANSCRIBE_API_URL not set - transcription will not work")
	}
	if cfg.LLMKey == "" {
		log.Println("Warning: LLM_API_KEY not set - warnings fall back to templates")
	}
	if cfg.TTSKey == "" {
		log.Println("Warning: TTS_API_KEY not set - spoken warnings will be disabled")
	}

	if path := os.Getenv("PIPELINE_CONFIG"); path != "" {
		if err := loadPipelineFile(path, &cfg.Pipeline); err != nil {
			log.Printf("Warning: pipeline config %s ignored: %v", path, err)
		} else {
			log.Printf("config: pipeline overrides loaded from %s", path)
		}
	}
	if v := os.Getenv("INTERVENTION_COOLDOWN_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.Pipeline.InterventionCooldown = time.Duration(secs) * time.Second
		}
	}

	log.Printf("config: DASHBOARD_ADDRESS=%s cooldown=%s", cfg.DashboardAddress, cfg.Pipeline.InterventionCooldown)
	return cfg
}

// pipelineFile mirrors Pipeline for YAML: durations are strings in Go
// duration syntax ("2.5s"), and absent keys leave the default in place.
type pipelineFile struct {
	SampleRate           *int   `yaml:"sample_rate"`
	ChunkMs              *int   `yaml:"chunk_ms"`
	TranscribeMinAudio   string `yaml:"transcribe_min_audio"`
	StressMinAudio       string `yaml:"stress_min_audio"`
	AnalysisInterval     string `yaml:"analysis_interval"`
	AnalysisMinWords     *int   `yaml:"analysis_min_words"`
	ContextMaxAge        string `yaml:"context_max_age"`
	ContextMaxWords      *int   `yaml:"context_max_words"`
	InterventionCooldown string `yaml:"intervention_cooldown"`
	SettleDelay          string `yaml:"settle_delay"`
}

func loadPipelineFile(path string, p *Pipeline) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read pipeline config: %w", err)
	}
	var f pipelineFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse pipeline config: %w", err)
	}

	setInt := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}
	setDur := func(dst *time.Duration, src string) error {
		if src == "" {
			return nil
		}
		d, err := time.ParseDuration(src)
		if err != nil {
			return fmt.Errorf("bad duration %q: %w", src, err)
		}
		*dst = d
		return nil
	}

	setInt(&p.SampleRate, f.SampleRate)
	setInt(&p.ChunkMs, f.ChunkMs)
	setInt(&p.AnalysisMinWords, f.AnalysisMinWords)
	setInt(&p.ContextMaxWords, f.ContextMaxWords)
	for _, pair := range []struct {
		dst *time.Duration
		src string
	}{
		{&p.TranscribeMinAudio, f.TranscribeMinAudio},
		{&p.StressMinAudio, f.StressMinAudio},
		{&p.AnalysisInterval, f.AnalysisInterval},
		{&p.ContextMaxAge, f.ContextMaxAge},
		{&p.InterventionCooldown, f.InterventionCooldown},
		{&p.SettleDelay, f.SettleDelay},
	} {
		if err := setDur(pair.dst, pair.src); err != nil {
			return err
		}
	}

	if p.SampleRate <= 0 || p.AnalysisMinWords < 0 || p.InterventionCooldown < 0 {
		return fmt.Errorf("pipeline config has invalid values")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
