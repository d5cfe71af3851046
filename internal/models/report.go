// Package models defines the data structures flowing through the analysis pipeline.
package models

import "time"

// AudioSession is the immutable input unit for one analysis run.
type AudioSession struct {
	SessionID  string `json:"sessionId"`
	AudioRef   string `json:"audioRef"`
	SampleRate int    `json:"sampleRate"`
	DurationMs int64  `json:"durationMs"`
	UserID     string `json:"userId"`
	Age        int    `json:"age,omitempty"`
	Gender     string `json:"gender,omitempty"`
	CreatedAt  int64  `json:"createdAt"`
}

// SpeakerSegment is a time-bounded slice of the session attributed to the
// senior speaker, produced by the diarization collaborator.
type SpeakerSegment struct {
	SessionID  string    `json:"sessionId"`
	Speaker    string    `json:"speaker"`
	StartSec   float64   `json:"startSec"`
	EndSec     float64   `json:"endSec"`
	SampleRate int       `json:"sampleRate"`
	PCM        []float64 `json:"-"`
}

// Duration returns the segment length in seconds.
func (s SpeakerSegment) Duration() float64 {
	return s.EndSec - s.StartSec
}

// AcousticFeatureVector holds utterance-level prosodic statistics for one
// segment, normalized against the configured population baseline.
// Immutable once computed.
type AcousticFeatureVector struct {
	SpeechRate       float64 `json:"speechRate"`       // voiced onsets per second
	PauseRatio       float64 `json:"pauseRatio"`       // silence frames / total frames
	EnergyMean       float64 `json:"energyMean"`
	EnergyStd        float64 `json:"energyStd"`
	PitchMean        float64 `json:"pitchMean"`        // Hz
	PitchStd         float64 `json:"pitchStd"`
	SpectralCentroid float64 `json:"spectralCentroid"` // Hz
	SpectralRolloff  float64 `json:"spectralRolloff"`  // Hz
	ZeroCrossingRate float64 `json:"zeroCrossingRate"`

	// Derived proxies in [0,1] consumed by fusion.
	DepressionProxy float64 `json:"depressionProxy"`
	FatigueProxy    float64 `json:"fatigueProxy"`
	CognitiveProxy  float64 `json:"cognitiveProxy"`
	StabilityProxy  float64 `json:"stabilityProxy"`
	VitalityProxy   float64 `json:"vitalityProxy"`

	VoicedFrames int `json:"voicedFrames"`
	TotalFrames  int `json:"totalFrames"`
}

// ClassifierTask selects which trained model instance the neural
// classifier runs.
type ClassifierTask string

const (
	TaskDepression ClassifierTask = "depression"
	TaskInsomnia   ClassifierTask = "insomnia"
)

// AggregationMethod describes how per-window classifier scores were pooled.
type AggregationMethod string

const (
	AggregationMean AggregationMethod = "mean"
	AggregationMax  AggregationMethod = "max"
)

// ClassifierScore is the pooled output of one neural classifier task.
type ClassifierScore struct {
	Task        ClassifierTask    `json:"task"`
	RawScore    float64           `json:"rawScore"` // in [0,1]
	WindowCount int               `json:"windowCount"`
	Aggregation AggregationMethod `json:"aggregation"`
}

// TextAnalysisResult holds the language-model scoring of the transcript.
// IsStub marks the neutral fallback substituted when the external call was
// skipped or failed; fusion treats stubs as an absent modality.
type TextAnalysisResult struct {
	Transcript       string             `json:"transcript"`
	Sentiment        float64            `json:"sentiment"` // [-1,1]
	DepressionSignal float64            `json:"depressionSignal"`
	FatigueSignal    float64            `json:"fatigueSignal"`
	Emotions         map[string]float64 `json:"emotions"`
	CognitiveMarkers CognitiveMarkers   `json:"cognitiveMarkers"`
	IsStub           bool               `json:"isStub"`
}

// CognitiveMarkers are linguistic proxies for cognitive function, each in [0,1].
type CognitiveMarkers struct {
	VocabularyRichness float64 `json:"vocabularyRichness"`
	Coherence          float64 `json:"coherence"`
	ResponseLatency    float64 `json:"responseLatency"`
}

// IndicatorKind identifies one of the five fused output indicators.
type IndicatorKind string

const (
	DRI IndicatorKind = "DRI" // Depression Risk Index
	SDI IndicatorKind = "SDI" // Sleep Disorder Index
	CFL IndicatorKind = "CFL" // Cognitive Function Level
	ES  IndicatorKind = "ES"  // Emotional Stability
	OV  IndicatorKind = "OV"  // Overall Vitality
)

// AllIndicators lists the five indicators in report order.
var AllIndicators = []IndicatorKind{DRI, SDI, CFL, ES, OV}

// IndicatorStatus is the coarse risk band derived from an indicator value.
type IndicatorStatus string

const (
	StatusLow    IndicatorStatus = "low"
	StatusMedium IndicatorStatus = "medium"
	StatusHigh   IndicatorStatus = "high"
)

// Modality names one contributing analyzer.
type Modality string

const (
	ModalityAcoustic Modality = "acoustic"
	ModalityText     Modality = "text"
	ModalityNeural   Modality = "neural"
)

// Indicator is one fused mental-health indicator with propagated confidence.
type Indicator struct {
	Kind       IndicatorKind   `json:"kind"`
	Value      float64         `json:"value"`      // [0,1]
	Confidence float64         `json:"confidence"` // [0,1]
	Status     IndicatorStatus `json:"status"`
	Modalities []Modality      `json:"contributingModalities"`
	Degraded   bool            `json:"degraded"`
}

// SessionStatus is the terminal pipeline state recorded on the report.
type SessionStatus string

const (
	StatusComplete         SessionStatus = "COMPLETE"
	StatusCompleteDegraded SessionStatus = "COMPLETE_DEGRADED"
	StatusFailed           SessionStatus = "FAILED"
)

// StageStatus records how one pipeline stage resolved.
type StageStatus string

const (
	StageOK       StageStatus = "ok"
	StageStub     StageStatus = "stub"
	StageNotReady StageStatus = "not_ready"
	StageSkipped  StageStatus = "skipped"
	StageFailed   StageStatus = "failed"
)

// AnalysisReport is the finalized output of one session. It is assembled
// whole by the fusion engine and never mutated afterwards.
type AnalysisReport struct {
	SessionID            string                      `json:"sessionId"`
	UserID               string                      `json:"userId"`
	GeneratedAt          time.Time                   `json:"generatedAt"`
	Status               SessionStatus               `json:"status"`
	Indicators           map[IndicatorKind]Indicator `json:"indicators"`
	StageStatuses        map[string]StageStatus      `json:"stageStatuses"`
	RequiresExpertReview bool                        `json:"requiresExpertReview"`
	FailureReason        string                      `json:"failureReason,omitempty"`
}

// ClinicalScale identifies a standardized screening instrument used for
// offline validation only.
type ClinicalScale string

const (
	ScalePHQ9 ClinicalScale = "PHQ-9"
	ScaleISI  ClinicalScale = "ISI"
	ScaleMMSE ClinicalScale = "MMSE"
)

// ClinicalRecord links a historical report to a ground-truth clinical score.
type ClinicalRecord struct {
	SessionID string        `json:"sessionId"`
	Scale     ClinicalScale `json:"scale"`
	Score     float64       `json:"score"`
	MaxScore  float64       `json:"maxScore"`
	RatedAt   time.Time     `json:"ratedAt"`
}

// Normalized returns the ground-truth score scaled to [0,1] in risk
// orientation: higher always means worse. MMSE measures function, so it
// is inverted.
func (r ClinicalRecord) Normalized() float64 {
	if r.MaxScore <= 0 {
		return 0
	}
	v := r.Score / r.MaxScore
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	if r.Scale == ScaleMMSE {
		return 1 - v
	}
	return v
}
