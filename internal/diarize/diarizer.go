// Package diarize defines the speaker-diarization collaborator interface.
// The pipeline consumes segment boundaries only; how speakers are separated
// is the collaborator's concern.
package diarize

import (
	"context"

	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/audio"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/models"
)

// Diarizer isolates the senior speaker's segments from a call recording.
type Diarizer interface {
	// Diarize returns the senior-attributed segments of the decoded audio,
	// with PCM slices populated from the session recording.
	Diarize(ctx context.Context, session models.AudioSession, a *audio.Audio) ([]models.SpeakerSegment, error)
}

// slicePCM fills a segment's PCM from the decoded recording, clamping
// boundaries to the available samples.
func slicePCM(a *audio.Audio, startSec, endSec float64) []float64 {
	start := int(startSec * float64(a.SampleRate))
	end := int(endSec * float64(a.SampleRate))
	if start < 0 {
		start = 0
	}
	if end > len(a.PCM) {
		end = len(a.PCM)
	}
	if start >= end {
		return nil
	}
	return a.PCM[start:end]
}
