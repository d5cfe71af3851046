package clinical

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/models"
)

func report(sessionID string, status models.SessionStatus, indicators map[models.IndicatorKind]models.Indicator) models.AnalysisReport {
	return models.AnalysisReport{
		SessionID:   sessionID,
		UserID:      "user-1",
		GeneratedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		Status:      status,
		Indicators:  indicators,
	}
}

func driOnly(value, confidence float64, degraded bool) map[models.IndicatorKind]models.Indicator {
	return map[models.IndicatorKind]models.Indicator{
		models.DRI: {Kind: models.DRI, Value: value, Confidence: confidence, Degraded: degraded},
	}
}

func phq9(sessionID string, score float64) models.ClinicalRecord {
	return models.ClinicalRecord{
		SessionID: sessionID,
		Scale:     models.ScalePHQ9,
		Score:     score,
		MaxScore:  27,
		RatedAt:   time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC),
	}
}

func TestValidatePerfectAgreement(t *testing.T) {
	reports := []models.AnalysisReport{
		report("s-1", models.StatusComplete, driOnly(27.0/27, 0.9, false)),
		report("s-2", models.StatusComplete, driOnly(0, 0.9, false)),
		report("s-3", models.StatusComplete, driOnly(13.5/27, 0.9, false)),
	}
	records := []models.ClinicalRecord{phq9("s-1", 27), phq9("s-2", 0), phq9("s-3", 13.5)}

	got, err := Validate(reports, records)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(got.Pairs) != 1 {
		t.Fatalf("got %d pair metrics, want 1", len(got.Pairs))
	}
	pm := got.Pairs[0]
	if pm.Indicator != models.DRI || pm.Scale != models.ScalePHQ9 || pm.Bucket != BucketClean {
		t.Errorf("pair identity = %+v", pm)
	}
	if pm.N != 3 {
		t.Errorf("N = %d, want 3", pm.N)
	}
	if math.Abs(pm.Correlation-1.0) > 1e-9 {
		t.Errorf("correlation = %v, want 1", pm.Correlation)
	}
	if pm.MAE > 1e-9 {
		t.Errorf("MAE = %v, want 0", pm.MAE)
	}
	if pm.Accuracy != 1.0 {
		t.Errorf("accuracy = %v, want 1", pm.Accuracy)
	}
	if got.SuggestedReviewThreshold != riskCutoff {
		t.Errorf("threshold = %v, want unchanged %v", got.SuggestedReviewThreshold, riskCutoff)
	}
}

func TestValidateBucketsByDegradation(t *testing.T) {
	reports := []models.AnalysisReport{
		report("s-1", models.StatusComplete, driOnly(0.8, 0.9, false)),
		report("s-2", models.StatusComplete, driOnly(0.2, 0.9, false)),
		report("s-3", models.StatusCompleteDegraded, driOnly(0.7, 0.4, false)),
		report("s-4", models.StatusCompleteDegraded, driOnly(0.1, 0.4, false)),
	}
	records := []models.ClinicalRecord{
		phq9("s-1", 22), phq9("s-2", 5), phq9("s-3", 20), phq9("s-4", 3),
	}

	got, err := Validate(reports, records)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(got.Pairs) != 2 {
		t.Fatalf("got %d pair metrics, want clean + degraded", len(got.Pairs))
	}
	byBucket := map[Bucket]PairMetrics{}
	for _, pm := range got.Pairs {
		byBucket[pm.Bucket] = pm
	}
	if byBucket[BucketClean].N != 2 || byBucket[BucketDegraded].N != 2 {
		t.Errorf("bucket sizes = clean %d, degraded %d", byBucket[BucketClean].N, byBucket[BucketDegraded].N)
	}
}

func TestValidateInvertsCFLForMMSE(t *testing.T) {
	// Low CFL means impaired function; a low MMSE score must agree.
	reports := []models.AnalysisReport{
		report("s-1", models.StatusComplete, map[models.IndicatorKind]models.Indicator{
			models.CFL: {Kind: models.CFL, Value: 0.2, Confidence: 0.9},
		}),
	}
	records := []models.ClinicalRecord{{
		SessionID: "s-1", Scale: models.ScaleMMSE, Score: 6, MaxScore: 30,
		RatedAt: time.Now().UTC(),
	}}

	got, err := Validate(reports, records)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	pm := got.Pairs[0]
	if pm.Accuracy != 1.0 {
		t.Errorf("accuracy = %v, want 1 (both map to high risk)", pm.Accuracy)
	}
	if math.Abs(pm.MAE-0.0) > 1e-9 {
		t.Errorf("MAE = %v, want 0 (risk 0.8 both sides)", pm.MAE)
	}
}

func TestValidateSuggestsThresholdFromMisses(t *testing.T) {
	// One confident miss: predicted high risk, ground truth low.
	reports := []models.AnalysisReport{
		report("s-1", models.StatusComplete, driOnly(0.9, 0.85, false)),
		report("s-2", models.StatusComplete, driOnly(0.1, 0.85, false)),
	}
	records := []models.ClinicalRecord{phq9("s-1", 2), phq9("s-2", 2)}

	got, err := Validate(reports, records)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got.SuggestedReviewThreshold != 0.85 {
		t.Errorf("threshold = %v, want 0.85", got.SuggestedReviewThreshold)
	}
	if got.Pairs[0].Accuracy != 0.5 {
		t.Errorf("accuracy = %v, want 0.5", got.Pairs[0].Accuracy)
	}
}

func TestValidateNoLabeledReports(t *testing.T) {
	reports := []models.AnalysisReport{
		report("s-1", models.StatusComplete, driOnly(0.5, 0.8, false)),
	}
	records := []models.ClinicalRecord{phq9("s-other", 10)}

	_, err := Validate(reports, records)
	if !errors.Is(err, ErrNoLabeledReports) {
		t.Fatalf("err = %v, want ErrNoLabeledReports", err)
	}
}

func TestValidateSingleSampleSkipsCorrelation(t *testing.T) {
	reports := []models.AnalysisReport{
		report("s-1", models.StatusComplete, driOnly(0.6, 0.8, false)),
	}
	records := []models.ClinicalRecord{phq9("s-1", 16)}

	got, err := Validate(reports, records)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got.Pairs[0].Correlation != 0 {
		t.Errorf("correlation = %v, want 0 for single sample", got.Pairs[0].Correlation)
	}
	if got.Pairs[0].N != 1 {
		t.Errorf("N = %d", got.Pairs[0].N)
	}
}
