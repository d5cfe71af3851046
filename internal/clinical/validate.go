// Package clinical computes offline agreement metrics between fused
// indicators and standardized clinical scales. It never runs on the
// request-serving path; its output feeds weight and threshold
// recalibration.
package clinical

import (
	"errors"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/models"
)

// ErrNoLabeledReports is returned when no report could be matched to a
// ground-truth record for any configured pairing.
var ErrNoLabeledReports = errors.New("clinical: no labeled reports")

// Pairing maps a fused indicator to the clinical scale it is validated
// against.
type Pairing struct {
	Indicator models.IndicatorKind
	Scale     models.ClinicalScale
}

// DefaultPairings covers the three indicators with an established
// screening instrument. ES and OV have no standalone scale and are
// validated only indirectly.
var DefaultPairings = []Pairing{
	{Indicator: models.DRI, Scale: models.ScalePHQ9},
	{Indicator: models.SDI, Scale: models.ScaleISI},
	{Indicator: models.CFL, Scale: models.ScaleMMSE},
}

// Bucket splits metrics by whether the source report ran fully or with
// at least one fallback stage.
type Bucket string

const (
	BucketClean    Bucket = "clean"
	BucketDegraded Bucket = "degraded"
)

// riskCutoff is the normalized risk level above which a sample counts
// as a positive screen, for both prediction and ground truth. It is a
// calibration starting point, not a clinical claim.
const riskCutoff = 0.5

// PairMetrics holds agreement metrics for one indicator/scale pairing
// within one bucket.
type PairMetrics struct {
	Indicator models.IndicatorKind `json:"indicator"`
	Scale     models.ClinicalScale `json:"scale"`
	Bucket    Bucket               `json:"bucket"`
	N         int                  `json:"n"`
	// Correlation is the Pearson coefficient between predicted risk and
	// normalized ground truth. Zero when N < 2.
	Correlation float64 `json:"correlation"`
	MAE         float64 `json:"mae"`
	// Accuracy is the fraction of samples where prediction and ground
	// truth fall on the same side of the risk cutoff.
	Accuracy float64 `json:"accuracy"`
}

// ValidationMetrics is the full offline validation result.
type ValidationMetrics struct {
	GeneratedAt time.Time     `json:"generatedAt"`
	Pairs       []PairMetrics `json:"pairs"`
	// SuggestedReviewThreshold is a confidence cutoff under which
	// misclassified samples would have been routed to expert review.
	SuggestedReviewThreshold float64 `json:"suggestedReviewThreshold"`
}

type sample struct {
	predicted  float64
	truth      float64
	confidence float64
}

// Validate matches reports to ground-truth records by session ID and
// computes per-pairing, per-bucket metrics. Reports without a matching
// record, and records without a report, are skipped.
func Validate(reports []models.AnalysisReport, records []models.ClinicalRecord) (ValidationMetrics, error) {
	byScale := make(map[models.ClinicalScale]map[string]models.ClinicalRecord)
	for _, rec := range records {
		if byScale[rec.Scale] == nil {
			byScale[rec.Scale] = make(map[string]models.ClinicalRecord)
		}
		byScale[rec.Scale][rec.SessionID] = rec
	}

	out := ValidationMetrics{
		GeneratedAt:              time.Now().UTC(),
		SuggestedReviewThreshold: riskCutoff,
	}
	var misclassified []float64
	total := 0

	for _, pairing := range DefaultPairings {
		truth := byScale[pairing.Scale]
		if len(truth) == 0 {
			continue
		}
		buckets := map[Bucket][]sample{}
		for _, report := range reports {
			rec, ok := truth[report.SessionID]
			if !ok {
				continue
			}
			ind, ok := report.Indicators[pairing.Indicator]
			if !ok {
				continue
			}
			s := sample{
				predicted:  riskValue(pairing.Indicator, ind.Value),
				truth:      rec.Normalized(),
				confidence: ind.Confidence,
			}
			bucket := BucketClean
			if report.Status == models.StatusCompleteDegraded || ind.Degraded {
				bucket = BucketDegraded
			}
			buckets[bucket] = append(buckets[bucket], s)
			total++
			if (s.predicted >= riskCutoff) != (s.truth >= riskCutoff) {
				misclassified = append(misclassified, s.confidence)
			}
		}
		for _, bucket := range []Bucket{BucketClean, BucketDegraded} {
			samples := buckets[bucket]
			if len(samples) == 0 {
				continue
			}
			out.Pairs = append(out.Pairs, pairMetrics(pairing, bucket, samples))
		}
	}

	if total == 0 {
		return ValidationMetrics{}, ErrNoLabeledReports
	}
	out.SuggestedReviewThreshold = suggestThreshold(misclassified)
	return out, nil
}

func pairMetrics(pairing Pairing, bucket Bucket, samples []sample) PairMetrics {
	pm := PairMetrics{
		Indicator: pairing.Indicator,
		Scale:     pairing.Scale,
		Bucket:    bucket,
		N:         len(samples),
	}
	predicted := make([]float64, len(samples))
	truth := make([]float64, len(samples))
	agree := 0
	sumAbs := 0.0
	for i, s := range samples {
		predicted[i] = s.predicted
		truth[i] = s.truth
		diff := s.predicted - s.truth
		if diff < 0 {
			diff = -diff
		}
		sumAbs += diff
		if (s.predicted >= riskCutoff) == (s.truth >= riskCutoff) {
			agree++
		}
	}
	pm.MAE = sumAbs / float64(len(samples))
	pm.Accuracy = float64(agree) / float64(len(samples))
	if len(samples) >= 2 {
		if c := stat.Correlation(predicted, truth, nil); !math.IsNaN(c) {
			pm.Correlation = c
		}
	}
	return pm
}

// riskValue orients an indicator value so higher always means worse,
// matching ClinicalRecord.Normalized. DRI and SDI already measure risk;
// CFL, ES and OV measure function and are inverted.
func riskValue(kind models.IndicatorKind, value float64) float64 {
	switch kind {
	case models.DRI, models.SDI:
		return value
	default:
		return 1 - value
	}
}

// suggestThreshold picks the confidence level that would have routed
// nine out of ten misclassified samples to expert review. Without
// misclassifications the current cutoff stands.
func suggestThreshold(misclassified []float64) float64 {
	if len(misclassified) == 0 {
		return riskCutoff
	}
	sorted := append([]float64(nil), misclassified...)
	sort.Float64s(sorted)
	t := stat.Quantile(0.9, stat.Empirical, sorted, nil)
	if t < 0.3 {
		t = 0.3
	} else if t > 0.9 {
		t = 0.9
	}
	return t
}
