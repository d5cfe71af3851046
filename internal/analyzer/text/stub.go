package text

import (
	"context"

	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/analyzer"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/config"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/models"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/observability/logging"
)

// StubAnalyzer returns neutral midpoints without calling any external
// service. It is the configured variant when no API key is available and
// the fallback when the real variant fails.
type StubAnalyzer struct{}

// NewStubAnalyzer creates the neutral-output variant.
func NewStubAnalyzer() *StubAnalyzer { return &StubAnalyzer{} }

// Health reports the stub state so downstream consumers can flag outputs.
func (s *StubAnalyzer) Health() analyzer.State { return analyzer.StateStub }

// Analyze returns the neutral result for any transcript.
func (s *StubAnalyzer) Analyze(ctx context.Context, transcript string) (models.TextAnalysisResult, error) {
	if err := ctx.Err(); err != nil {
		return models.TextAnalysisResult{}, err
	}
	return Neutral(transcript), nil
}

// Neutral is the midpoint result substituted when no language-model
// assessment is available. Confidence handling lives in the fusion layer;
// here every signal sits at its uninformative center.
func Neutral(transcript string) models.TextAnalysisResult {
	return models.TextAnalysisResult{
		Transcript:       transcript,
		Sentiment:        0,
		DepressionSignal: 0.5,
		FatigueSignal:    0.5,
		Emotions:         map[string]float64{"neutral": 1},
		CognitiveMarkers: models.CognitiveMarkers{
			VocabularyRichness: 0.5,
			Coherence:          0.5,
			ResponseLatency:    0.5,
		},
		IsStub: true,
	}
}

// New selects the analyzer variant from configuration. Missing credentials
// degrade to the stub instead of failing startup.
func New(ctx context.Context, cfg config.Text) Analyzer {
	logger := logging.WithComponent("text_analyzer")

	if cfg.Stub || cfg.APIKey == "" {
		logger.Info().Bool("forced", cfg.Stub).Msg("using stub text analyzer")
		return NewStubAnalyzer()
	}

	real, err := NewLLMAnalyzer(ctx, cfg)
	if err != nil {
		logger.Warn().Err(err).Msg("chat model init failed, using stub text analyzer")
		return NewStubAnalyzer()
	}
	return real
}
