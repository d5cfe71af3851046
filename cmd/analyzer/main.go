package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/analyzer/acoustic"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/analyzer/neural"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/analyzer/text"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/audio"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/clinical"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/config"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/diarize"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/events"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/fusion"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/models"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/observability"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/observability/logging"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/pipeline"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/store"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/transcribe"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/transcribe/google"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/transcribe/mock"
)

func main() {
	var (
		audioPath = flag.String("audio", "", "path to a call recording to analyze")
		userID    = flag.String("user", "unknown", "subject user id")
		age       = flag.Int("age", 0, "subject age")
		gender    = flag.String("gender", "", "subject gender")
		validate  = flag.Bool("validate", false, "run offline clinical validation instead of analysis")
	)
	flag.Parse()

	cfg := config.Load()
	logging.Init(logging.Config{
		Level:      cfg.Observability.LogLevel,
		Format:     cfg.Observability.LogFormat,
		TimeFormat: time.RFC3339,
	})
	logger := logging.WithComponent("main")

	if *validate {
		if err := runValidation(cfg); err != nil {
			logger.Fatal().Err(err).Msg("clinical validation failed")
		}
		return
	}
	if *audioPath == "" {
		fmt.Fprintln(os.Stderr, "usage: analyzer -audio <file> [-user id] [-age n] [-gender g] | analyzer -validate")
		os.Exit(2)
	}

	ctx := context.Background()

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Store.Path).Msg("open report store")
	}
	defer st.Close()

	publisher := events.New(&cfg.Kafka)
	defer publisher.Close()

	orch := pipeline.New(cfg, pipeline.Deps{
		Decoder: audio.NewDecoder(audio.DecoderConfig{
			TargetSampleRate: cfg.Audio.SampleRateHz,
			FFmpegPath:       cfg.Audio.FFmpegPath,
		}),
		Diarizer:    buildDiarizer(cfg),
		Extractor:   acoustic.NewExtractor(cfg),
		Classifier:  neural.NewClassifier(cfg, nil),
		Transcriber: buildTranscriber(ctx, cfg),
		Text:        text.New(ctx, cfg.Text),
		Fusion:      fusion.NewEngine(cfg.Fusion),
		Store:       st,
		Publisher:   publisher,
	})

	obs := observability.NewServer(cfg.Service.MetricsAddr, orch.Health)
	obs.Start()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		obs.Shutdown(shutdownCtx)
	}()

	report, err := orch.Analyze(ctx, *audioPath, pipeline.UserMeta{
		UserID: *userID,
		Age:    *age,
		Gender: *gender,
	})
	if err != nil {
		logger.Fatal().Err(err).Str("audio", *audioPath).Msg("analysis failed")
	}
	printJSON(report)
}

// runValidation loads every labeled report from the store and prints the
// agreement metrics. Validation errors are reported but never touch
// stored data.
func runValidation(cfg *config.Configuration) error {
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open report store: %w", err)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var (
		reports []models.AnalysisReport
		records []models.ClinicalRecord
		seen    = map[string]bool{}
	)
	for _, pairing := range clinical.DefaultPairings {
		labeled, err := st.ListLabeled(ctx, pairing.Scale)
		if err != nil {
			return fmt.Errorf("load %s records: %w", pairing.Scale, err)
		}
		for _, lr := range labeled {
			if !seen[lr.Report.SessionID] {
				seen[lr.Report.SessionID] = true
				reports = append(reports, lr.Report)
			}
			records = append(records, lr.Record)
		}
	}

	metrics, err := clinical.Validate(reports, records)
	if err != nil {
		return err
	}
	printJSON(metrics)
	return nil
}

func buildDiarizer(cfg *config.Configuration) diarize.Diarizer {
	if cfg.Diarize.UseMock || cfg.Diarize.URL == "" {
		return diarize.NewMock()
	}
	return diarize.NewHTTPDiarizer(cfg.Diarize.URL)
}

func buildTranscriber(ctx context.Context, cfg *config.Configuration) transcribe.Transcriber {
	if cfg.Transcribe.Provider == "google" {
		t, err := google.New(ctx, cfg.Transcribe.LanguageCode)
		if err == nil {
			return t
		}
		logger := logging.WithComponent("main")
		logger.Warn().Err(err).
			Msg("speech-to-text client unavailable, using mock transcriber")
	}
	return mock.New()
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		logger := logging.WithComponent("main")
		logger.Error().Err(err).Msg("encode output")
	}
}
