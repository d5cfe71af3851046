package diarize

import (
	"context"
	"errors"

	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/audio"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/models"
)

// MockDiarizer attributes the whole recording to the senior speaker.
// Used for single-speaker recordings and tests.
type MockDiarizer struct{}

// NewMock creates a mock diarizer.
func NewMock() *MockDiarizer {
	return &MockDiarizer{}
}

// Diarize returns one segment spanning the full recording.
func (m *MockDiarizer) Diarize(ctx context.Context, session models.AudioSession, a *audio.Audio) ([]models.SpeakerSegment, error) {
	if a == nil || len(a.PCM) == 0 {
		return nil, errors.New("no audio samples")
	}
	end := float64(len(a.PCM)) / float64(a.SampleRate)
	return []models.SpeakerSegment{{
		SessionID:  session.SessionID,
		Speaker:    "SPEAKER_0",
		StartSec:   0,
		EndSec:     end,
		SampleRate: a.SampleRate,
		PCM:        a.PCM,
	}}, nil
}
