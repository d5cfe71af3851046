package fusion

import (
	"errors"
	"math"
	"testing"

	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/config"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/models"
)

func testEngine() *Engine {
	return NewEngine(config.Fusion{
		Indicator:                 config.DefaultWeights(),
		DegradedWeightThreshold:   1.0,
		ReviewConfidenceThreshold: 0.5,
	})
}

func fullInputs() Inputs {
	return Inputs{
		SessionID: "s-1",
		UserID:    "u-1",
		Acoustic: &models.AcousticFeatureVector{
			DepressionProxy: 0.6,
			FatigueProxy:    0.55,
			CognitiveProxy:  0.7,
			StabilityProxy:  0.65,
			VitalityProxy:   0.6,
		},
		Depression: &models.ClassifierScore{Task: models.TaskDepression, RawScore: 0.7, WindowCount: 60},
		Insomnia:   &models.ClassifierScore{Task: models.TaskInsomnia, RawScore: 0.5, WindowCount: 60},
		Text: &models.TextAnalysisResult{
			Transcript:       "t",
			Sentiment:        -0.2,
			DepressionSignal: 0.65,
			FatigueSignal:    0.5,
			Emotions:         map[string]float64{"sadness": 0.4, "calm": 0.6},
			CognitiveMarkers: models.CognitiveMarkers{VocabularyRichness: 0.6, Coherence: 0.7, ResponseLatency: 0.3},
		},
		StageStatuses: map[string]models.StageStatus{
			"diarize": models.StageOK, "acoustic": models.StageOK,
			"neural": models.StageOK, "text": models.StageOK,
		},
	}
}

func TestFuse_NormalizesOverweightRow(t *testing.T) {
	cfg := config.Fusion{
		Indicator:                 config.DefaultWeights(),
		DegradedWeightThreshold:   1.0,
		ReviewConfidenceThreshold: 0.5,
	}
	cfg.Indicator[models.DRI] = config.Weights{Acoustic: 1, Text: 1, Neural: 1}
	e := NewEngine(cfg)

	full, err := e.Fuse(fullInputs())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dropped := fullInputs()
	dropped.Text = nil
	partial, err := e.Fuse(dropped)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fullDRI := full.Indicators[models.DRI]
	partDRI := partial.Indicators[models.DRI]

	// The 1/1/1 row normalizes to thirds; dropping text retains 2/3 of
	// the weight and the confidence penalty must follow.
	if partDRI.Confidence >= fullDRI.Confidence {
		t.Errorf("dropping the text modality applied no confidence penalty: %v >= %v",
			partDRI.Confidence, fullDRI.Confidence)
	}
	if math.Abs(fullDRI.Confidence-0.9) > 1e-9 {
		t.Errorf("full DRI confidence: got %v, want 0.9", fullDRI.Confidence)
	}
	if math.Abs(partDRI.Confidence-0.6) > 1e-9 {
		t.Errorf("text-dropped DRI confidence: got %v, want 0.6", partDRI.Confidence)
	}
}

func TestFuse_AllModalitiesPresent(t *testing.T) {
	report, err := testEngine().Fuse(fullInputs())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Status != models.StatusComplete {
		t.Errorf("status: got %s, want COMPLETE", report.Status)
	}
	if report.RequiresExpertReview {
		t.Error("clean session must not require expert review")
	}
	if len(report.Indicators) != 5 {
		t.Fatalf("expected 5 indicators, got %d", len(report.Indicators))
	}

	for kind, ind := range report.Indicators {
		if ind.Value < 0 || ind.Value > 1 {
			t.Errorf("%s value out of [0,1]: %v", kind, ind.Value)
		}
		if ind.Confidence <= 0.8 {
			t.Errorf("%s confidence with all modalities: got %v, want > 0.8", kind, ind.Confidence)
		}
		if ind.Degraded {
			t.Errorf("%s degraded with all modalities present", kind)
		}
	}

	// DRI at 30/40/30 over acoustic 0.6, text 0.65, neural 0.7.
	want := 0.30*0.6 + 0.40*0.65 + 0.30*0.7
	if got := report.Indicators[models.DRI].Value; math.Abs(got-want) > 1e-9 {
		t.Errorf("DRI value: got %v, want %v", got, want)
	}

	dri := report.Indicators[models.DRI]
	if len(dri.Modalities) != 3 {
		t.Errorf("DRI modalities: got %v", dri.Modalities)
	}
}

func TestFuse_StubTextRenormalizesAndDegrades(t *testing.T) {
	in := fullInputs()
	in.Text.IsStub = true
	in.StageStatuses["text"] = models.StageStub

	report, err := testEngine().Fuse(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Status != models.StatusCompleteDegraded {
		t.Errorf("status: got %s, want COMPLETE_DEGRADED", report.Status)
	}

	// DRI renormalizes 0.30/0.30 over acoustic and neural.
	want := 0.5*0.6 + 0.5*0.7
	dri := report.Indicators[models.DRI]
	if math.Abs(dri.Value-want) > 1e-9 {
		t.Errorf("DRI value: got %v, want %v", dri.Value, want)
	}
	if len(dri.Modalities) != 2 {
		t.Errorf("DRI modalities: got %v", dri.Modalities)
	}
	// Retained weight 0.6 caps the confidence.
	if dri.Confidence > 0.6 {
		t.Errorf("DRI confidence after losing text: got %v, want <= 0.6", dri.Confidence)
	}
}

func TestFuse_RemovingModalityNeverRaisesConfidence(t *testing.T) {
	full, err := testEngine().Fuse(fullInputs())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	in := fullInputs()
	in.Depression = nil
	in.Insomnia = nil
	partial, err := testEngine().Fuse(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, kind := range models.AllIndicators {
		if partial.Indicators[kind].Confidence > full.Indicators[kind].Confidence {
			t.Errorf("%s confidence rose after removing neural: %v > %v",
				kind, partial.Indicators[kind].Confidence, full.Indicators[kind].Confidence)
		}
	}
}

func TestFuse_NeuralUnavailableStillServesDRI(t *testing.T) {
	in := fullInputs()
	in.Depression = nil
	in.Insomnia = nil
	in.StageStatuses["neural"] = models.StageNotReady

	report, err := testEngine().Fuse(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// DRI from acoustic 0.30 and text 0.40 renormalized to 3/7 and 4/7.
	want := (0.30*0.6 + 0.40*0.65) / 0.70
	dri := report.Indicators[models.DRI]
	if math.Abs(dri.Value-want) > 1e-9 {
		t.Errorf("DRI value: got %v, want %v", dri.Value, want)
	}
	if dri.Degraded {
		t.Error("DRI should not be degraded while two modalities remain")
	}

	// CFL has no neural weight, so it is untouched.
	full, err := testEngine().Fuse(fullInputs())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Indicators[models.CFL].Value != full.Indicators[models.CFL].Value {
		t.Errorf("CFL changed when only neural dropped")
	}
}

func TestFuse_AllInputsMissing(t *testing.T) {
	_, err := testEngine().Fuse(Inputs{
		SessionID: "s-1",
		Text:      &models.TextAnalysisResult{IsStub: true},
	})
	if !errors.Is(err, ErrInputMissing) {
		t.Fatalf("expected ErrFusionInputMissing, got %v", err)
	}
}

func TestFuse_IndicatorWithNoModalitiesGetsNeutralMidpoint(t *testing.T) {
	// Acoustic failed and text stubbed: CFL, ES and OV have nothing left
	// while DRI and SDI still fuse from the classifiers.
	in := fullInputs()
	in.Acoustic = nil
	in.Text.IsStub = true
	in.StageStatuses["acoustic"] = models.StageFailed
	in.StageStatuses["text"] = models.StageStub

	report, err := testEngine().Fuse(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, kind := range []models.IndicatorKind{models.CFL, models.ES, models.OV} {
		ind := report.Indicators[kind]
		if !ind.Degraded {
			t.Errorf("%s should be degraded with no modalities", kind)
		}
		if ind.Value != 0.5 || ind.Confidence != 0 {
			t.Errorf("%s neutral midpoint: got value=%v conf=%v", kind, ind.Value, ind.Confidence)
		}
	}

	if !report.RequiresExpertReview {
		t.Error("more than one degraded indicator must require expert review")
	}
	if report.Indicators[models.DRI].Degraded {
		t.Error("DRI still has its neural modality and must not be degraded at threshold 1.0")
	}
}

func TestFuse_LowConfidenceTriggersReview(t *testing.T) {
	// Only acoustic resolves: every indicator keeps at most half its
	// weight, pushing confidence under the 0.5 review threshold.
	in := fullInputs()
	in.Depression = nil
	in.Insomnia = nil
	in.Text.IsStub = true
	in.StageStatuses["neural"] = models.StageNotReady
	in.StageStatuses["text"] = models.StageStub

	report, err := testEngine().Fuse(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.RequiresExpertReview {
		t.Error("expected expert review when confidence collapses")
	}
	// DRI keeps only its 0.30 acoustic weight.
	if got := report.Indicators[models.DRI].Confidence; math.Abs(got-0.3*acousticConfidence) > 1e-9 {
		t.Errorf("DRI confidence: got %v, want %v", got, 0.3*acousticConfidence)
	}
}

func TestStatusBand(t *testing.T) {
	tests := []struct {
		kind  models.IndicatorKind
		value float64
		want  models.IndicatorStatus
	}{
		{models.DRI, 0.1, models.StatusLow},
		{models.DRI, 0.5, models.StatusMedium},
		{models.DRI, 0.9, models.StatusHigh},
		{models.CFL, 0.9, models.StatusLow},
		{models.CFL, 0.5, models.StatusMedium},
		{models.CFL, 0.1, models.StatusHigh},
		{models.OV, 0.2, models.StatusHigh},
	}

	for _, tt := range tests {
		if got := statusBand(tt.kind, tt.value); got != tt.want {
			t.Errorf("statusBand(%s, %v): got %s, want %s", tt.kind, tt.value, got, tt.want)
		}
	}
}

func TestNegativeEmotionMass(t *testing.T) {
	tests := []struct {
		name     string
		emotions map[string]float64
		want     float64
	}{
		{"empty", nil, 0},
		{"mixed", map[string]float64{"sadness": 0.3, "calm": 0.7}, 0.3},
		{"capped", map[string]float64{"sadness": 0.8, "anger": 0.8}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := negativeEmotionMass(tt.emotions); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
