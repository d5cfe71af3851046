// Package acoustic derives utterance-level prosodic statistics from a
// diarized speaker segment. Extraction is a pure function of the segment
// and the configured population baseline.
package acoustic

import (
	"math"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/stat"

	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/analyzer"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/config"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/models"
)

// Pitch search band for elderly conversational speech.
const (
	minPitchHz = 70.0
	maxPitchHz = 350.0

	rolloffFraction = 0.85
)

// Extractor computes the acoustic feature vector for a speaker segment.
type Extractor struct {
	frameSize      int
	hopSize        int
	minDurationSec float64
	normalization  string
	baseline       config.Baseline
}

// NewExtractor creates an extractor from configuration.
func NewExtractor(cfg *config.Configuration) *Extractor {
	return &Extractor{
		frameSize:      cfg.Acoustic.FrameSize,
		hopSize:        cfg.Acoustic.HopSize,
		minDurationSec: cfg.Audio.MinSegmentDuration.Seconds(),
		normalization:  cfg.Acoustic.Normalization,
		baseline:       cfg.Acoustic.Baseline,
	}
}

// Health reports the extractor as always ready; it has no external
// dependencies to fail.
func (e *Extractor) Health() analyzer.State {
	return analyzer.StateReady
}

// Extract computes frame-level statistics with voice-activity gating and
// aggregates them to utterance-level scalars normalized against the
// population baseline.
func (e *Extractor) Extract(segment models.SpeakerSegment) (models.AcousticFeatureVector, error) {
	if segment.Duration() < e.minDurationSec {
		return models.AcousticFeatureVector{}, &analyzer.InsufficientAudioError{
			DurationSec: segment.Duration(),
			MinSec:      e.minDurationSec,
		}
	}

	energies := shortTimeEnergy(segment.PCM, e.frameSize, e.hopSize)
	if len(energies) == 0 {
		return models.AcousticFeatureVector{}, &analyzer.InsufficientAudioError{
			DurationSec: segment.Duration(),
			MinSec:      e.minDurationSec,
		}
	}

	threshold := adaptiveSilenceThreshold(energies)
	voiced := make([]bool, len(energies))
	voicedCount := 0
	for i, en := range energies {
		if en > threshold {
			voiced[i] = true
			voicedCount++
		}
	}

	framesPerSec := float64(segment.SampleRate) / float64(e.hopSize)
	durationSec := float64(len(energies)) / framesPerSec

	v := models.AcousticFeatureVector{
		TotalFrames:  len(energies),
		VoicedFrames: voicedCount,
		PauseRatio:   float64(len(energies)-voicedCount) / float64(len(energies)),
		SpeechRate:   float64(voicedOnsets(voiced)) / durationSec,
	}

	// Energy statistics over voiced frames only.
	voicedEnergies := make([]float64, 0, voicedCount)
	for i, en := range energies {
		if voiced[i] {
			voicedEnergies = append(voicedEnergies, en)
		}
	}
	v.EnergyMean, v.EnergyStd = meanStd(voicedEnergies)

	// Per-frame pitch over voiced frames via autocorrelation.
	pitches := e.trackPitch(segment.PCM, voiced, segment.SampleRate)
	v.PitchMean, v.PitchStd = meanStd(pitches)

	// Spectral descriptors averaged over voiced frames.
	v.SpectralCentroid, v.SpectralRolloff = e.spectralDescriptors(segment.PCM, voiced, segment.SampleRate)
	v.ZeroCrossingRate = zeroCrossingRate(segment.PCM)

	e.deriveProxies(&v)
	return v, nil
}

// trackPitch estimates per-frame fundamental frequency with autocorrelation
// over the configured pitch band, skipping unvoiced frames.
func (e *Extractor) trackPitch(pcm []float64, voiced []bool, sampleRate int) []float64 {
	minLag := int(float64(sampleRate) / maxPitchHz)
	maxLag := int(float64(sampleRate) / minPitchHz)
	if maxLag >= e.frameSize {
		maxLag = e.frameSize - 1
	}

	var pitches []float64
	for i := range voiced {
		if !voiced[i] {
			continue
		}
		start := i * e.hopSize
		end := start + e.frameSize
		if end > len(pcm) {
			break
		}
		frame := pcm[start:end]

		bestLag, bestCorr := 0, 0.0
		for lag := minLag; lag <= maxLag; lag++ {
			corr := 0.0
			for j := 0; j+lag < len(frame); j++ {
				corr += frame[j] * frame[j+lag]
			}
			if corr > bestCorr {
				bestCorr = corr
				bestLag = lag
			}
		}
		if bestLag == 0 {
			continue
		}
		// Reject weakly periodic frames.
		power := 0.0
		for _, s := range frame {
			power += s * s
		}
		if power == 0 || bestCorr/power < 0.3 {
			continue
		}
		pitches = append(pitches, float64(sampleRate)/float64(bestLag))
	}
	return pitches
}

// spectralDescriptors returns the mean spectral centroid and rolloff over
// voiced frames, both in Hz.
func (e *Extractor) spectralDescriptors(pcm []float64, voiced []bool, sampleRate int) (centroid, rolloff float64) {
	window := hammingWindow(e.frameSize)
	binHz := float64(sampleRate) / float64(e.frameSize)

	count := 0
	for i := range voiced {
		if !voiced[i] {
			continue
		}
		start := i * e.hopSize
		end := start + e.frameSize
		if end > len(pcm) {
			break
		}

		frame := make([]float64, e.frameSize)
		for j := range frame {
			frame[j] = pcm[start+j] * window[j]
		}

		spectrum := fft.FFTReal(frame)
		half := len(spectrum) / 2
		mags := make([]float64, half)
		total := 0.0
		weighted := 0.0
		for k := 0; k < half; k++ {
			m := cmplxAbs(spectrum[k])
			mags[k] = m
			total += m
			weighted += m * float64(k) * binHz
		}
		if total == 0 {
			continue
		}

		centroid += weighted / total

		cum := 0.0
		for k := 0; k < half; k++ {
			cum += mags[k]
			if cum >= rolloffFraction*total {
				rolloff += float64(k) * binHz
				break
			}
		}
		count++
	}

	if count > 0 {
		centroid /= float64(count)
		rolloff /= float64(count)
	}
	return centroid, rolloff
}

// deriveProxies maps normalized features onto the [0,1] sub-scores fusion
// consumes. Risk proxies rise as prosody flattens and slows; function
// proxies fall.
func (e *Extractor) deriveProxies(v *models.AcousticFeatureVector) {
	rate := e.normalize(v.SpeechRate, e.baseline.SpeechRate)
	pause := e.normalize(v.PauseRatio, e.baseline.PauseRatio)
	pitchVar := e.normalize(v.PitchStd, e.baseline.PitchStd)
	energy := e.normalize(v.EnergyMean, e.baseline.Energy)

	// Depressed speech presents as low energy, low pitch variability,
	// slow rate and long pauses.
	v.DepressionProxy = squash(0.3*pause - 0.3*rate - 0.2*pitchVar - 0.2*energy)

	// Fatigue shares the slow/low profile but weighs energy heavier.
	v.FatigueProxy = squash(0.25*pause - 0.2*rate - 0.15*pitchVar - 0.4*energy)

	// Fluent pacing with short pauses reads as intact cognition.
	v.CognitiveProxy = squash(0.5*rate - 0.5*pause)

	// Stable prosody: moderate pitch variability, steady energy.
	v.StabilityProxy = squash(0.4*pitchVar + 0.3*energy - 0.3*pause)

	// Vitality tracks energy and engagement.
	v.VitalityProxy = squash(0.4*energy + 0.3*rate + 0.3*pitchVar)
}

// normalize applies the configured normalization: z-score maps through the
// (mean, std) pair, min-max through (min, max) recentred to [-1,1].
func (e *Extractor) normalize(value float64, params [2]float64) float64 {
	if e.normalization == "minmax" {
		lo, hi := params[0], params[1]
		if hi <= lo {
			return 0
		}
		scaled := (value - lo) / (hi - lo)
		return 2*clamp01(scaled) - 1
	}
	mean, std := params[0], params[1]
	if std <= 0 {
		return 0
	}
	return (value - mean) / std
}

// squash maps a weighted z-score combination into [0,1].
func squash(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
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

// shortTimeEnergy calculates RMS energy for overlapping frames.
func shortTimeEnergy(signal []float64, frameSize, hopSize int) []float64 {
	if len(signal) < frameSize || hopSize <= 0 || frameSize <= 0 {
		return nil
	}
	numFrames := (len(signal)-frameSize)/hopSize + 1
	energies := make([]float64, numFrames)
	for i := 0; i < numFrames; i++ {
		start := i * hopSize
		sumSquares := 0.0
		for j := start; j < start+frameSize; j++ {
			sumSquares += signal[j] * signal[j]
		}
		energies[i] = math.Sqrt(sumSquares / float64(frameSize))
	}
	return energies
}

// adaptiveSilenceThreshold places the voicing gate between the noise floor
// and the median speech energy.
func adaptiveSilenceThreshold(energies []float64) float64 {
	mean, std := meanStd(energies)
	threshold := mean - 0.5*std
	if threshold < 0 {
		threshold = mean * 0.1
	}
	return threshold
}

// voicedOnsets counts silence-to-speech transitions, a proxy for syllable
// onsets feeding the speech-rate estimate.
func voicedOnsets(voiced []bool) int {
	onsets := 0
	prev := false
	for _, v := range voiced {
		if v && !prev {
			onsets++
		}
		prev = v
	}
	return onsets
}

func zeroCrossingRate(pcm []float64) float64 {
	if len(pcm) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(pcm); i++ {
		if (pcm[i-1] >= 0) != (pcm[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(pcm)-1)
}

func hammingWindow(size int) []float64 {
	w := make([]float64, size)
	for i := range w {
		w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(size-1))
	}
	return w
}

func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	mean, std := stat.MeanStdDev(values, nil)
	if math.IsNaN(std) {
		std = 0
	}
	return mean, std
}

func cmplxAbs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}
