// Package google provides a Google Cloud Speech-to-Text transcriber.
package google

import (
	"context"
	"encoding/binary"
	"errors"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "google.golang.org/genproto/googleapis/cloud/speech/v1"

	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/models"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/transcribe"
)

// Adapter implements transcribe.Transcriber using Google Cloud
// Speech-to-Text synchronous recognition.
type Adapter struct {
	client       *speech.Client
	languageCode string
}

// New creates a new Google STT adapter.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context, languageCode string) (*Adapter, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &Adapter{client: c, languageCode: languageCode}, nil
}

// Transcribe sends the segment PCM as LINEAR16 and returns the top
// alternative joined across results.
func (a *Adapter) Transcribe(ctx context.Context, segment models.SpeakerSegment) (transcribe.Result, error) {
	resp, err := a.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:        speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz: int32(segment.SampleRate),
			LanguageCode:    a.languageCode,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{
				Content: pcmToLinear16(segment.PCM),
			},
		},
	})
	if err != nil {
		return transcribe.Result{}, err
	}

	var (
		text  string
		conf  float64
		count int
	)
	for _, r := range resp.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		alt := r.Alternatives[0]
		if text != "" {
			text += " "
		}
		text += alt.Transcript
		conf += float64(alt.Confidence)
		count++
	}
	if count == 0 {
		return transcribe.Result{}, errors.New("no transcription alternatives returned")
	}
	return transcribe.Result{Text: text, Confidence: conf / float64(count)}, nil
}

// Close releases the underlying client.
func (a *Adapter) Close() error {
	return a.client.Close()
}

// pcmToLinear16 converts [-1,1] samples to 16-bit little-endian bytes.
func pcmToLinear16(pcm []float64) []byte {
	out := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(int16(s*32767)))
	}
	return out
}
