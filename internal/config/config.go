// Package config loads the typed pipeline configuration from environment
// variables, falling back to defaults on missing or unparseable values.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/models"
)

// Service holds process-wide identity settings.
type Service struct {
	Principal string
	// MetricsAddr is the listen address of the observability HTTP server.
	MetricsAddr string
}

// Audio holds decoding and segmentation settings.
type Audio struct {
	SampleRateHz int
	// MinSegmentDuration is the minimum diarized-segment length the
	// acoustic extractor accepts.
	MinSegmentDuration time.Duration
	FFmpegPath         string
}

// Acoustic holds feature-extraction settings, including the population
// baseline the features are normalized against.
type Acoustic struct {
	FrameSize int // samples per analysis frame
	HopSize   int // samples between frame starts
	// Normalization selects "zscore" or "minmax".
	Normalization string
	Baseline      Baseline
}

// Baseline is the reference-population normalization parameters.
// For zscore the pairs are (mean, std); for minmax they are (min, max).
type Baseline struct {
	SpeechRate [2]float64
	PauseRatio [2]float64
	PitchMean  [2]float64
	PitchStd   [2]float64
	Energy     [2]float64
}

// Neural holds classifier model settings.
type Neural struct {
	CacheDir  string
	RemoteURL string
	// WindowMs is the inference window length; WindowOverlap the fraction
	// of a window shared with its successor.
	WindowMs      int
	WindowOverlap float64
	Aggregation   models.AggregationMethod
	// Workers bounds the CPU pool shared by inference and extraction.
	Workers int
}

// Text holds the external language-model settings.
type Text struct {
	BaseURL string
	APIKey  string
	Model   string
	// RequestsPerMinute feeds the client-side rate limiter.
	RequestsPerMinute int
	// Stub forces the neutral fallback without calling the external model.
	Stub bool
}

// Transcribe selects the speech-to-text collaborator.
type Transcribe struct {
	Provider     string // "google" or "mock"
	LanguageCode string
}

// Diarize points at the diarization collaborator.
type Diarize struct {
	URL     string
	UseMock bool
}

// Timeouts are per-stage deadlines. Exceeding one resolves that stage to
// its fallback rather than failing the session.
type Timeouts struct {
	Diarization time.Duration
	Acoustic    time.Duration
	Neural      time.Duration
	Transcribe  time.Duration
	Text        time.Duration
}

// Weights are one indicator's modality weights. The fusion engine
// renormalizes each row over whichever modalities actually resolved.
type Weights struct {
	Acoustic float64
	Text     float64
	Neural   float64
}

// Fusion holds indicator weighting and degradation thresholds.
type Fusion struct {
	Indicator map[models.IndicatorKind]Weights
	// DegradedWeightThreshold marks an indicator degraded when at least
	// this fraction of its weight had to be removed.
	DegradedWeightThreshold float64
	// ReviewConfidenceThreshold triggers expert review when any indicator
	// confidence falls below it.
	ReviewConfidenceThreshold float64
}

// Kafka holds report-publishing settings.
type Kafka struct {
	Enabled     bool
	Brokers     []string
	TopicReport string
	TopicAlert  string
	Principal   string
}

// Store holds the sqlite report-store settings.
type Store struct {
	Path string
}

// Observability holds logging settings.
type Observability struct {
	LogLevel  string
	LogFormat string
}

// Configuration is the full recognized option surface. It is constructed
// once at startup and passed read-only into the orchestrator.
type Configuration struct {
	Service       Service
	Audio         Audio
	Acoustic      Acoustic
	Neural        Neural
	Text          Text
	Transcribe    Transcribe
	Diarize       Diarize
	Timeouts      Timeouts
	Fusion        Fusion
	Kafka         Kafka
	Store         Store
	Observability Observability
}

// DefaultWeights returns the calibratable per-indicator defaults. The
// depression row follows the documented 30/40/30 voice/text/neural split;
// the remaining rows are calibration starting points, not clinical claims.
func DefaultWeights() map[models.IndicatorKind]Weights {
	return map[models.IndicatorKind]Weights{
		models.DRI: {Acoustic: 0.30, Text: 0.40, Neural: 0.30},
		models.SDI: {Acoustic: 0.30, Text: 0.30, Neural: 0.40},
		models.CFL: {Acoustic: 0.40, Text: 0.60, Neural: 0},
		models.ES:  {Acoustic: 0.35, Text: 0.65, Neural: 0},
		models.OV:  {Acoustic: 0.50, Text: 0.50, Neural: 0},
	}
}

// Load reads the configuration from the environment.
func Load() *Configuration {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-voice-analysis")

	cfg := &Configuration{
		Service: Service{
			Principal:   principal,
			MetricsAddr: envOrDefault("METRICS_ADDR", ":9090"),
		},
		Audio: Audio{
			SampleRateHz:       envOrDefaultInt("AUDIO_SAMPLE_RATE_HZ", 16000),
			MinSegmentDuration: envOrDefaultDuration("AUDIO_MIN_SEGMENT_DURATION", 3*time.Second),
			FFmpegPath:         envOrDefault("FFMPEG_PATH", "ffmpeg"),
		},
		Acoustic: Acoustic{
			FrameSize:     envOrDefaultInt("ACOUSTIC_FRAME_SIZE", 400), // 25ms at 16kHz
			HopSize:       envOrDefaultInt("ACOUSTIC_HOP_SIZE", 160),   // 10ms at 16kHz
			Normalization: envOrDefault("ACOUSTIC_NORMALIZATION", "zscore"),
			Baseline:      defaultBaseline(),
		},
		Neural: Neural{
			CacheDir:      envOrDefault("MODEL_CACHE_DIR", "models"),
			RemoteURL:     envOrDefault("MODEL_REMOTE_URL", ""),
			WindowMs:      envOrDefaultInt("NEURAL_WINDOW_MS", 200),
			WindowOverlap: envOrDefaultFloat("NEURAL_WINDOW_OVERLAP", 0.5),
			Aggregation:   models.AggregationMethod(envOrDefault("NEURAL_AGGREGATION", string(models.AggregationMean))),
			Workers:       envOrDefaultInt("NEURAL_WORKERS", 4),
		},
		Text: Text{
			BaseURL:           envOrDefault("LLM_BASE_URL", ""),
			APIKey:            envOrDefault("LLM_API_KEY", ""),
			Model:             envOrDefault("LLM_MODEL", "gpt-4o-mini"),
			RequestsPerMinute: envOrDefaultInt("LLM_RPM", 60),
			Stub:              envOrDefaultBool("LLM_STUB", false),
		},
		Transcribe: Transcribe{
			Provider:     envOrDefault("STT_PROVIDER", "mock"),
			LanguageCode: envOrDefault("STT_LANGUAGE_CODE", "ko-KR"),
		},
		Diarize: Diarize{
			URL:     envOrDefault("DIARIZATION_URL", ""),
			UseMock: envOrDefaultBool("DIARIZATION_MOCK", true),
		},
		Timeouts: Timeouts{
			Diarization: envOrDefaultDuration("TIMEOUT_DIARIZATION", 60*time.Second),
			Acoustic:    envOrDefaultDuration("TIMEOUT_ACOUSTIC", 30*time.Second),
			Neural:      envOrDefaultDuration("TIMEOUT_NEURAL", 45*time.Second),
			Transcribe:  envOrDefaultDuration("TIMEOUT_TRANSCRIBE", 60*time.Second),
			Text:        envOrDefaultDuration("TIMEOUT_TEXT", 30*time.Second),
		},
		Fusion: Fusion{
			Indicator:                 DefaultWeights(),
			DegradedWeightThreshold:   envOrDefaultFloat("FUSION_DEGRADED_WEIGHT_THRESHOLD", 1.0),
			ReviewConfidenceThreshold: envOrDefaultFloat("FUSION_REVIEW_CONFIDENCE_THRESHOLD", 0.5),
		},
		Kafka: Kafka{
			Enabled:     envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:     envOrDefaultSlice("KAFKA_BROKERS", nil),
			TopicReport: envOrDefault("KAFKA_TOPIC_REPORT", "mhealth.reports"),
			TopicAlert:  envOrDefault("KAFKA_TOPIC_ALERT", "mhealth.alerts"),
			Principal:   envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Store: Store{
			Path: envOrDefault("STORE_PATH", "reports.db"),
		},
		Observability: Observability{
			LogLevel:  envOrDefault("LOG_LEVEL", "info"),
			LogFormat: envOrDefault("LOG_FORMAT", "json"),
		},
	}

	// Per-indicator weight overrides, e.g. FUSION_WEIGHTS_DRI=0.3,0.4,0.3
	// ordered acoustic,text,neural.
	for _, kind := range models.AllIndicators {
		if w, ok := parseWeights(os.Getenv("FUSION_WEIGHTS_" + string(kind))); ok {
			cfg.Fusion.Indicator[kind] = w
		}
	}

	return cfg
}

func defaultBaseline() Baseline {
	// Reference values for elderly conversational speech. Overridable so
	// deployments can ship recalibrated baselines without a rebuild.
	return Baseline{
		SpeechRate: envPair("BASELINE_SPEECH_RATE", 2.0, 0.8),
		PauseRatio: envPair("BASELINE_PAUSE_RATIO", 0.35, 0.15),
		PitchMean:  envPair("BASELINE_PITCH_MEAN", 165, 45),
		PitchStd:   envPair("BASELINE_PITCH_STD", 28, 12),
		Energy:     envPair("BASELINE_ENERGY", 0.04, 0.02),
	}
}

func parseWeights(s string) (Weights, bool) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return Weights{}, false
	}
	var vals [3]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || v < 0 {
			return Weights{}, false
		}
		vals[i] = v
	}
	sum := vals[0] + vals[1] + vals[2]
	if sum == 0 {
		return Weights{}, false
	}
	// Overrides are accepted as relative weights and normalized so every
	// row sums to 1, which the fusion penalty arithmetic relies on.
	return Weights{Acoustic: vals[0] / sum, Text: vals[1] / sum, Neural: vals[2] / sum}, true
}

func envPair(key string, a, b float64) [2]float64 {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		if len(parts) == 2 {
			x, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
			y, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
			if err1 == nil && err2 == nil {
				return [2]float64{x, y}
			}
		}
	}
	return [2]float64{a, b}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.ToLower(v)); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envOrDefaultSlice(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				out = append(out, t)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return def
}
