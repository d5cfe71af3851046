package acoustic

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/analyzer"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/config"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/models"
)

const sampleRate = 16000

func testConfig() *config.Configuration {
	cfg := config.Load()
	cfg.Audio.MinSegmentDuration = time.Second
	return cfg
}

// sineSegment synthesizes speech-like audio: bursts of a sine tone
// separated by silence.
func sineSegment(freq float64, burstSec, gapSec float64, bursts int) models.SpeakerSegment {
	var pcm []float64
	for b := 0; b < bursts; b++ {
		n := int(burstSec * sampleRate)
		for i := 0; i < n; i++ {
			pcm = append(pcm, 0.5*math.Sin(2*math.Pi*freq*float64(i)/sampleRate))
		}
		g := int(gapSec * sampleRate)
		pcm = append(pcm, make([]float64, g)...)
	}
	return models.SpeakerSegment{
		SessionID:  "s-1",
		StartSec:   0,
		EndSec:     float64(len(pcm)) / sampleRate,
		SampleRate: sampleRate,
		PCM:        pcm,
	}
}

func TestExtract_ShortSegmentRejected(t *testing.T) {
	e := NewExtractor(testConfig())
	seg := sineSegment(150, 0.2, 0.1, 1)

	_, err := e.Extract(seg)
	if err == nil {
		t.Fatal("expected error for short segment")
	}
	var insufficient *analyzer.InsufficientAudioError
	if !errors.As(err, &insufficient) {
		t.Errorf("expected InsufficientAudioError, got %T", err)
	}
}

func TestExtract_PitchAndPauses(t *testing.T) {
	e := NewExtractor(testConfig())
	seg := sineSegment(150, 0.5, 0.5, 4)

	v, err := e.Extract(seg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if math.Abs(v.PitchMean-150) > 15 {
		t.Errorf("expected pitch near 150Hz, got %f", v.PitchMean)
	}
	if v.PauseRatio < 0.3 || v.PauseRatio > 0.7 {
		t.Errorf("expected pause ratio near 0.5, got %f", v.PauseRatio)
	}
	if v.VoicedFrames == 0 || v.VoicedFrames >= v.TotalFrames {
		t.Errorf("expected partial voicing, got %d/%d", v.VoicedFrames, v.TotalFrames)
	}
	if v.SpeechRate <= 0 {
		t.Errorf("expected positive speech rate, got %f", v.SpeechRate)
	}
	if v.SpectralCentroid <= 0 {
		t.Errorf("expected positive spectral centroid, got %f", v.SpectralCentroid)
	}
}

func TestExtract_ProxiesInRange(t *testing.T) {
	e := NewExtractor(testConfig())
	seg := sineSegment(180, 0.4, 0.3, 5)

	v, err := e.Extract(seg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	proxies := map[string]float64{
		"depression": v.DepressionProxy,
		"fatigue":    v.FatigueProxy,
		"cognitive":  v.CognitiveProxy,
		"stability":  v.StabilityProxy,
		"vitality":   v.VitalityProxy,
	}
	for name, p := range proxies {
		if p < 0 || p > 1 {
			t.Errorf("%s proxy out of [0,1]: %f", name, p)
		}
	}
}

func TestExtract_Deterministic(t *testing.T) {
	e := NewExtractor(testConfig())
	seg := sineSegment(150, 0.5, 0.5, 3)

	a, err := e.Extract(seg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := e.Extract(seg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if a != b {
		t.Errorf("extraction not deterministic:\n%+v\n%+v", a, b)
	}
}

func TestNormalize_MinMax(t *testing.T) {
	cfg := testConfig()
	cfg.Acoustic.Normalization = "minmax"
	e := NewExtractor(cfg)

	tests := []struct {
		name   string
		value  float64
		params [2]float64
		want   float64
	}{
		{"midpoint", 5, [2]float64{0, 10}, 0},
		{"minimum", 0, [2]float64{0, 10}, -1},
		{"maximum", 10, [2]float64{0, 10}, 1},
		{"below range clamps", -5, [2]float64{0, 10}, -1},
		{"degenerate range", 5, [2]float64{10, 10}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.normalize(tt.value, tt.params)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("normalize(%f, %v) = %f, want %f", tt.value, tt.params, got, tt.want)
			}
		})
	}
}

func TestVoicedOnsets(t *testing.T) {
	tests := []struct {
		name   string
		voiced []bool
		want   int
	}{
		{"empty", nil, 0},
		{"all silent", []bool{false, false}, 0},
		{"single burst", []bool{false, true, true, false}, 1},
		{"two bursts", []bool{true, false, true}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := voicedOnsets(tt.voiced); got != tt.want {
				t.Errorf("voicedOnsets(%v) = %d, want %d", tt.voiced, got, tt.want)
			}
		})
	}
}
