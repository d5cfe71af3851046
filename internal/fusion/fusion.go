// Package fusion combines the analyzers' normalized sub-scores into the
// five report indicators. Each indicator has its own modality weighting;
// unavailable or stubbed modalities drop out with their weight renormalized
// over the remainder and the lost weight charged against confidence.
package fusion

import (
	"errors"
	"time"

	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/config"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/models"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/observability/logging"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/observability/metrics"
)

// ErrInputMissing aborts the session. It is raised only when every
// modality for every indicator is unavailable simultaneously.
var ErrInputMissing = errors.New("no fusion input: all modalities unavailable")

// Modality base confidences. The neural modality earns confidence with
// window coverage; one 200ms window says much less than a full minute.
const (
	acousticConfidence = 0.9
	textConfidence     = 0.9
	neuralBaseConf     = 0.6
	neuralMaxConf      = 0.9
)

// Inputs carries everything the engine needs for one session. A nil
// pointer means the stage did not resolve; a stubbed text result is
// present but excluded from the weighted sums.
type Inputs struct {
	SessionID string
	UserID    string

	Acoustic   *models.AcousticFeatureVector
	Depression *models.ClassifierScore
	Insomnia   *models.ClassifierScore
	Text       *models.TextAnalysisResult

	StageStatuses map[string]models.StageStatus
}

// subScore is one modality's contribution to one indicator.
type subScore struct {
	value      float64
	confidence float64
	available  bool
}

// Engine fuses per-modality sub-scores into indicators.
type Engine struct {
	weights           map[models.IndicatorKind]config.Weights
	degradedThreshold float64
	reviewThreshold   float64
}

// NewEngine creates the engine from fusion configuration. Weight rows are
// normalized to sum 1; the removed-weight penalty in fuseOne is computed
// against that total.
func NewEngine(cfg config.Fusion) *Engine {
	weights := make(map[models.IndicatorKind]config.Weights, len(cfg.Indicator))
	for kind, w := range cfg.Indicator {
		if sum := w.Acoustic + w.Text + w.Neural; sum > 0 {
			w.Acoustic /= sum
			w.Text /= sum
			w.Neural /= sum
		}
		weights[kind] = w
	}
	return &Engine{
		weights:           weights,
		degradedThreshold: cfg.DegradedWeightThreshold,
		reviewThreshold:   cfg.ReviewConfidenceThreshold,
	}
}

// Fuse assembles the complete report or fails the session. The report is
// built whole; callers never observe a partially fused result. Fusion
// aborts only when no modality resolved at all.
func (e *Engine) Fuse(in Inputs) (*models.AnalysisReport, error) {
	if in.Acoustic == nil && in.Depression == nil && in.Insomnia == nil && (in.Text == nil || in.Text.IsStub) {
		return nil, ErrInputMissing
	}

	logger := logging.WithSession(in.SessionID, in.UserID)

	indicators := make(map[models.IndicatorKind]models.Indicator, len(models.AllIndicators))
	degradedCount := 0
	review := false

	for _, kind := range models.AllIndicators {
		ind := e.fuseOne(kind, in)
		indicators[kind] = ind
		if ind.Degraded {
			degradedCount++
			metrics.DefaultMetrics.RecordIndicatorDegraded(string(kind))
		}
		if ind.Confidence < e.reviewThreshold {
			review = true
		}
	}
	if degradedCount > 1 {
		review = true
	}
	if review {
		metrics.DefaultMetrics.RecordExpertReview()
	}

	report := &models.AnalysisReport{
		SessionID:            in.SessionID,
		UserID:               in.UserID,
		GeneratedAt:          time.Now().UTC(),
		Status:               sessionStatus(in.StageStatuses),
		Indicators:           indicators,
		StageStatuses:        in.StageStatuses,
		RequiresExpertReview: review,
	}

	logger.Info().
		Str("status", string(report.Status)).
		Int("degraded_indicators", degradedCount).
		Bool("requires_expert_review", review).
		Msg("report fused")
	return report, nil
}

// fuseOne computes a single indicator from whichever of its modalities
// resolved. Weights renormalize over the available set; the confidence
// penalty equals the retained-weight fraction, so dropping a modality can
// never raise confidence.
func (e *Engine) fuseOne(kind models.IndicatorKind, in Inputs) models.Indicator {
	w := e.weights[kind]
	scores := map[models.Modality]subScore{
		models.ModalityAcoustic: acousticSubScore(kind, in.Acoustic),
		models.ModalityText:     textSubScore(kind, in.Text),
		models.ModalityNeural:   neuralSubScore(kind, in.Depression, in.Insomnia),
	}
	weightOf := map[models.Modality]float64{
		models.ModalityAcoustic: w.Acoustic,
		models.ModalityText:     w.Text,
		models.ModalityNeural:   w.Neural,
	}

	retained := 0.0
	var contributing []models.Modality
	for _, m := range []models.Modality{models.ModalityAcoustic, models.ModalityText, models.ModalityNeural} {
		if weightOf[m] > 0 && scores[m].available {
			retained += weightOf[m]
			contributing = append(contributing, m)
		}
	}
	removed := 1.0 - retained

	if retained <= 0 {
		// Nothing to fuse for this indicator. Emit the uninformative
		// midpoint so the report stays structurally complete.
		return models.Indicator{
			Kind:       kind,
			Value:      0.5,
			Confidence: 0,
			Status:     models.StatusMedium,
			Degraded:   true,
		}
	}

	value, conf := 0.0, 0.0
	for _, m := range contributing {
		renorm := weightOf[m] / retained
		value += renorm * scores[m].value
		conf += renorm * scores[m].confidence
	}
	conf *= retained

	return models.Indicator{
		Kind:       kind,
		Value:      clamp01(value),
		Confidence: clamp01(conf),
		Status:     statusBand(kind, value),
		Modalities: contributing,
		Degraded:   removed >= e.degradedThreshold,
	}
}

// acousticSubScore picks the proxy matching the indicator's orientation.
func acousticSubScore(kind models.IndicatorKind, v *models.AcousticFeatureVector) subScore {
	if v == nil {
		return subScore{}
	}
	var value float64
	switch kind {
	case models.DRI:
		value = v.DepressionProxy
	case models.SDI:
		value = v.FatigueProxy
	case models.CFL:
		value = v.CognitiveProxy
	case models.ES:
		value = v.StabilityProxy
	case models.OV:
		value = v.VitalityProxy
	}
	return subScore{value: value, confidence: acousticConfidence, available: true}
}

// textSubScore maps language-model output onto the indicator scale. A
// stubbed result is excluded entirely rather than diluting the average
// with neutral midpoints.
func textSubScore(kind models.IndicatorKind, t *models.TextAnalysisResult) subScore {
	if t == nil || t.IsStub {
		return subScore{}
	}
	positivity := (t.Sentiment + 1) / 2

	var value float64
	switch kind {
	case models.DRI:
		value = t.DepressionSignal
	case models.SDI:
		value = t.FatigueSignal
	case models.CFL:
		m := t.CognitiveMarkers
		value = (m.VocabularyRichness + m.Coherence + (1 - m.ResponseLatency)) / 3
	case models.ES:
		value = 0.6*positivity + 0.4*(1-negativeEmotionMass(t.Emotions))
	case models.OV:
		value = 0.5*positivity + 0.5*(1-t.FatigueSignal)
	}
	return subScore{value: clamp01(value), confidence: textConfidence, available: true}
}

// neuralSubScore applies only to the two classifier-backed indicators.
func neuralSubScore(kind models.IndicatorKind, depression, insomnia *models.ClassifierScore) subScore {
	var score *models.ClassifierScore
	switch kind {
	case models.DRI:
		score = depression
	case models.SDI:
		score = insomnia
	default:
		return subScore{}
	}
	if score == nil {
		return subScore{}
	}
	conf := neuralBaseConf + float64(score.WindowCount)/100
	if conf > neuralMaxConf {
		conf = neuralMaxConf
	}
	return subScore{value: score.RawScore, confidence: conf, available: true}
}

// negativeEmotionMass sums the distressed share of the emotion
// distribution, capped at 1.
func negativeEmotionMass(emotions map[string]float64) float64 {
	mass := 0.0
	for _, name := range []string{"sadness", "anger", "fear", "anxiety", "disgust"} {
		mass += emotions[name]
	}
	if mass > 1 {
		mass = 1
	}
	return mass
}

// statusBand maps the indicator value to a coarse risk band. DRI and SDI
// rise with risk; the function-oriented indicators fall with risk.
func statusBand(kind models.IndicatorKind, value float64) models.IndicatorStatus {
	risk := value
	switch kind {
	case models.CFL, models.ES, models.OV:
		risk = 1 - value
	}
	switch {
	case risk < 0.33:
		return models.StatusLow
	case risk < 0.66:
		return models.StatusMedium
	default:
		return models.StatusHigh
	}
}

// sessionStatus derives the terminal state from how the stages resolved.
func sessionStatus(stages map[string]models.StageStatus) models.SessionStatus {
	for _, st := range stages {
		if st != models.StageOK {
			return models.StatusCompleteDegraded
		}
	}
	return models.StatusComplete
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
