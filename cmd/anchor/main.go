package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CelesteBean/treehacks-anchor/internal/bridge"
	"github.com/CelesteBean/treehacks-anchor/internal/bus"
	"github.com/CelesteBean/treehacks-anchor/internal/capture"
	"github.com/CelesteBean/treehacks-anchor/internal/config"
	"github.com/CelesteBean/treehacks-anchor/internal/dashboard"
	"github.com/CelesteBean/treehacks-anchor/internal/detect"
	"github.com/CelesteBean/treehacks-anchor/internal/intervene"
	"github.com/CelesteBean/treehacks-anchor/internal/stress"
	"github.com/CelesteBean/treehacks-anchor/internal/transcribe"
	"github.com/CelesteBean/treehacks-anchor/internal/tts"
	"github.com/CelesteBean/treehacks-anchor/internal/warn"
)

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	listDevices := flag.Bool("list-devices", false, "list capture devices and exit")
	flag.Parse()

	if *listDevices {
		names, err := capture.ListDevices()
		if err != nil {
			log.Fatalf("list devices: %v", err)
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return
	}

	cfg := config.Load()
	pipe := cfg.Pipeline

	busCtx := bus.NewContext()
	defer busCtx.Close()
	b := bus.New(busCtx)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Collaborators. Missing configuration disables a stage rather than
	// aborting the pipeline.
	var embedder detect.Embedder
	if cfg.EmbeddingKey != "" {
		embedder = detect.NewHTTPEmbedder(cfg.EmbeddingURL, cfg.EmbeddingKey, cfg.EmbeddingModel)
	}
	var sentiment detect.SentimentScorer
	if cfg.SentimentURL != "" {
		sentiment = detect.NewHTTPSentiment(cfg.SentimentURL, cfg.SentimentKey)
	}
	engine, err := detect.NewEngine(ctx, embedder, sentiment)
	if err != nil {
		log.Fatalf("detection engine: %v", err)
	}

	var llm warn.TextGenerator
	if cfg.LLMKey != "" {
		llm = warn.NewChatClient(cfg.LLMURL, cfg.LLMKey, cfg.LLMModel)
	}
	generator := warn.NewGenerator(llm)

	var synth tts.Synthesizer
	if cfg.TTSKey != "" && cfg.TTSVoiceID != "" {
		synth = tts.NewStreamClient(cfg.TTSURL, cfg.TTSKey, cfg.TTSVoiceID)
	}
	var speaker intervene.Speaker
	if player, err := tts.NewPlayer(); err != nil {
		log.Printf("speaker unavailable, warnings will be log-only: %v", err)
	} else {
		speaker = player
	}

	// Publisher side first: the audio publisher must be listening before
	// any consumer dials it.
	audioPub, err := b.CreatePublisher(bus.AudioPort)
	if err != nil {
		log.Fatalf("audio publisher: %v", err)
	}
	audioBridge := bridge.New(audioPub, bus.TopicAudio, bridge.DefaultCapacity)
	audioBridge.Start()

	capStage := capture.NewStage(audioBridge, pipe.SampleRate, pipe.ChunkMs, cfg.CaptureDevice)

	var transcriber transcribe.Transcriber
	if cfg.TranscribeURL != "" {
		transcriber = transcribe.NewHTTPTranscriber(cfg.TranscribeURL, cfg.TranscribeKey, "whisper-1")
	} else {
		log.Fatalf("TRANSCRIBE_API_URL is required")
	}
	transcribeSvc := transcribe.NewService(b, transcriber, pipe.SampleRate, pipe.TranscribeMinAudio, "en")

	var stressSvc *stress.Service
	if cfg.StressURL != "" {
		scorer := stress.NewHTTPScorer(cfg.StressURL, cfg.StressKey)
		stressSvc = stress.NewService(b, scorer, pipe.SampleRate, pipe.StressMinAudio)
	}

	analyzerSvc := detect.NewAnalyzerService(b, engine, detect.AnalyzerOptions{
		Interval:        pipe.AnalysisInterval,
		MinWords:        pipe.AnalysisMinWords,
		ContextMaxAge:   pipe.ContextMaxAge,
		ContextMaxWords: pipe.ContextMaxWords,
		PublishStress:   stressSvc == nil,
	})

	gate := intervene.NewGate(pipe.InterventionCooldown)
	interveneSvc := intervene.NewService(b, gate, generator, synth, speaker)

	dash := dashboard.New(b)

	runErrors := make(chan error, 8)
	run := func(name string, fn func(context.Context) error) {
		go func() {
			if err := fn(ctx); err != nil {
				runErrors <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}

	run("transcribe", transcribeSvc.Run)
	if stressSvc != nil {
		run("stress", stressSvc.Run)
	}
	run("analyzer", analyzerSvc.Run)
	run("intervene", interveneSvc.Run)
	run("dashboard", func(ctx context.Context) error {
		return dash.Start(ctx, cfg.DashboardAddress)
	})

	// Give every subscriber time to finish its handshake before audio
	// starts flowing; messages published before that are never delivered.
	time.Sleep(pipe.SettleDelay)

	if err := capStage.Start(); err != nil {
		log.Fatalf("capture: %v", err)
	}
	log.Printf("anchor: pipeline running")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-runErrors:
		log.Printf("stage failed: %v", err)
	case sig := <-sigChan:
		log.Printf("shutdown signal received: %v", sig)
	}

	// Producers stop first so consumers can drain what is in flight.
	capStage.Stop()
	audioBridge.Stop()

	transcribeSvc.Stop()
	if stressSvc != nil {
		stressSvc.Stop()
	}
	analyzerSvc.Stop()
	interveneSvc.Stop()
	cancel()

	wait := func(name string, done <-chan struct{}) {
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			log.Printf("%s: did not stop in time", name)
		}
	}
	wait("transcribe", transcribeSvc.Done())
	if stressSvc != nil {
		wait("stress", stressSvc.Done())
	}
	wait("analyzer", analyzerSvc.Done())
	wait("intervene", interveneSvc.Done())

	log.Printf("anchor: stopped (%d audio chunks dropped)", audioBridge.Dropped())
}
