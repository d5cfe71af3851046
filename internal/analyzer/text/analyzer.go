// Package text analyzes call transcripts with an external language model,
// extracting sentiment, risk signals and linguistic cognitive markers. A
// stub variant returns neutral midpoints so the pipeline can keep running
// without the external dependency.
package text

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/time/rate"

	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/analyzer"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/config"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/models"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/observability/logging"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/observability/metrics"
)

// Analyzer scores one speaker's transcript.
type Analyzer interface {
	Analyze(ctx context.Context, transcript string) (models.TextAnalysisResult, error)
	Health() analyzer.State
}

const systemPrompt = "You are a JSON generator assessing short phone-call transcripts " +
	"from elderly Korean speakers for mental-health screening. Output only a JSON " +
	"object, no prose, no markdown fences."

const userPromptTemplate = `Assess the transcript below and respond with exactly this JSON shape:
{
  "sentiment": <float, -1.0 very negative to 1.0 very positive>,
  "depression_signal": <float 0.0-1.0, language suggesting depressed mood>,
  "fatigue_signal": <float 0.0-1.0, language suggesting exhaustion or poor sleep>,
  "emotions": {"<emotion name>": <float 0.0-1.0>, ...},
  "vocabulary_richness": <float 0.0-1.0, lexical diversity for conversational speech>,
  "coherence": <float 0.0-1.0, topical and syntactic coherence>,
  "response_latency": <float 0.0-1.0, hesitation markers and fillers, higher means slower>
}

Transcript:
%s`

// llmPayload mirrors the JSON contract given to the model.
type llmPayload struct {
	Sentiment          float64            `json:"sentiment"`
	DepressionSignal   float64            `json:"depression_signal"`
	FatigueSignal      float64            `json:"fatigue_signal"`
	Emotions           map[string]float64 `json:"emotions"`
	VocabularyRichness float64            `json:"vocabulary_richness"`
	Coherence          float64            `json:"coherence"`
	ResponseLatency    float64            `json:"response_latency"`
}

// LLMAnalyzer calls an OpenAI-compatible chat endpoint through eino.
type LLMAnalyzer struct {
	cm        model.BaseChatModel
	modelName string
	limiter   *rate.Limiter
}

// NewLLMAnalyzer dials the configured endpoint. The rate limiter spreads
// the configured requests-per-minute budget across concurrent sessions.
func NewLLMAnalyzer(ctx context.Context, cfg config.Text) (*LLMAnalyzer, error) {
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("init chat model: %w", err)
	}

	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 60
	}
	return &LLMAnalyzer{
		cm:        cm,
		modelName: cfg.Model,
		limiter:   rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
	}, nil
}

// Health reports the real variant as serving. Per-call failures surface
// from Analyze and the caller falls back to neutral output.
func (a *LLMAnalyzer) Health() analyzer.State { return analyzer.StateReady }

// Analyze sends the transcript through the chat model and parses the
// strict-JSON reply. Rate-limit rejections retry with exponential backoff;
// a malformed reply retries once before failing.
func (a *LLMAnalyzer) Analyze(ctx context.Context, transcript string) (models.TextAnalysisResult, error) {
	logger := logging.WithComponent("text_analyzer")

	messages := []*schema.Message{
		{Role: schema.System, Content: systemPrompt},
		{Role: schema.User, Content: fmt.Sprintf(userPromptTemplate, transcript)},
	}

	const maxRetries = 2
	baseDelay := 2 * time.Second

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := a.limiter.Wait(ctx); err != nil {
			return models.TextAnalysisResult{}, err
		}

		start := time.Now()
		resp, err := a.cm.Generate(ctx, messages)
		if err != nil {
			metrics.DefaultMetrics.RecordLLMCall(a.modelName, err, time.Since(start).Seconds(), classifyError(err))
			lastErr = err
			if isRateLimited(err) && attempt < maxRetries {
				delay := baseDelay * time.Duration(1<<attempt)
				logger.Warn().Dur("delay", delay).Int("attempt", attempt+1).Msg("chat endpoint throttled, backing off")
				select {
				case <-ctx.Done():
					return models.TextAnalysisResult{}, ctx.Err()
				case <-time.After(delay):
					continue
				}
			}
			return models.TextAnalysisResult{}, &analyzer.ExternalAPIError{Service: "llm", Err: err}
		}
		metrics.DefaultMetrics.RecordLLMCall(a.modelName, nil, time.Since(start).Seconds(), "")

		payload, perr := parseReply(resp.Content)
		if perr != nil {
			lastErr = perr
			if attempt < maxRetries {
				logger.Warn().Err(perr).Int("attempt", attempt+1).Msg("unparseable model reply, retrying")
				continue
			}
			break
		}

		return resultFromPayload(transcript, payload), nil
	}

	return models.TextAnalysisResult{}, &analyzer.ExternalAPIError{Service: "llm", Err: lastErr}
}

// parseReply strips markdown fences some models insist on and decodes the
// JSON body.
func parseReply(content string) (llmPayload, error) {
	clean := strings.TrimSpace(content)
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")
	clean = strings.TrimSpace(clean)

	var payload llmPayload
	if err := json.Unmarshal([]byte(clean), &payload); err != nil {
		return llmPayload{}, fmt.Errorf("decode model reply: %w", err)
	}
	return payload, nil
}

func resultFromPayload(transcript string, p llmPayload) models.TextAnalysisResult {
	emotions := make(map[string]float64, len(p.Emotions))
	for name, v := range p.Emotions {
		emotions[name] = clamp01(v)
	}
	return models.TextAnalysisResult{
		Transcript:       transcript,
		Sentiment:        clamp(p.Sentiment, -1, 1),
		DepressionSignal: clamp01(p.DepressionSignal),
		FatigueSignal:    clamp01(p.FatigueSignal),
		Emotions:         emotions,
		CognitiveMarkers: models.CognitiveMarkers{
			VocabularyRichness: clamp01(p.VocabularyRichness),
			Coherence:          clamp01(p.Coherence),
			ResponseLatency:    clamp01(p.ResponseLatency),
		},
	}
}

func isRateLimited(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "too many requests")
}

func classifyError(err error) string {
	switch {
	case isRateLimited(err):
		return "rate_limited"
	case strings.Contains(strings.ToLower(err.Error()), "timeout"),
		strings.Contains(strings.ToLower(err.Error()), "deadline"):
		return "timeout"
	default:
		return "request"
	}
}

func clamp01(v float64) float64 { return clamp(v, 0, 1) }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
