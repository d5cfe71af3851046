// Package transcribe defines the interface for speech-to-text collaborators.
package transcribe

import (
	"context"

	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/models"
)

// Result is one transcription of a diarized segment.
type Result struct {
	Text       string
	Confidence float64
}

// Transcriber defines the interface for STT providers (Google, mock, ...).
type Transcriber interface {
	// Transcribe converts a diarized speaker segment to text.
	Transcribe(ctx context.Context, segment models.SpeakerSegment) (Result, error)

	// Close releases provider resources.
	Close() error
}
