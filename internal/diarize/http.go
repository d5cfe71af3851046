package diarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/audio"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/models"
)

type segmentResp struct {
	Speaker  string  `json:"speaker"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	IsSenior bool    `json:"is_senior"`
}

type diarizeResp struct {
	Segments []segmentResp `json:"segments"`
}

// HTTPDiarizer calls an external diarization service over HTTP.
type HTTPDiarizer struct {
	url string
	c   *http.Client
}

// NewHTTPDiarizer creates a client for the diarization service at url.
func NewHTTPDiarizer(url string) *HTTPDiarizer {
	return &HTTPDiarizer{url: url, c: &http.Client{Timeout: 120 * time.Second}}
}

// Diarize uploads the recording and maps the senior-attributed segments
// onto the decoded PCM.
func (d *HTTPDiarizer) Diarize(ctx context.Context, session models.AudioSession, a *audio.Audio) ([]models.SpeakerSegment, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	fw, err := w.CreateFormFile("file", filepath.Base(session.AudioRef))
	if err != nil {
		return nil, err
	}
	fd, err := os.Open(session.AudioRef)
	if err != nil {
		return nil, err
	}
	defer fd.Close()

	if _, err = io.Copy(fw, fd); err != nil {
		return nil, err
	}
	if err = w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url+"/diarize", &b)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := d.c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("diarize %s: %s", resp.Status, string(body))
	}

	var out diarizeResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("diarize decode: %w", err)
	}

	segs := make([]models.SpeakerSegment, 0, len(out.Segments))
	for _, s := range out.Segments {
		if !s.IsSenior {
			continue
		}
		segs = append(segs, models.SpeakerSegment{
			SessionID:  session.SessionID,
			Speaker:    s.Speaker,
			StartSec:   s.Start,
			EndSec:     s.End,
			SampleRate: a.SampleRate,
			PCM:        slicePCM(a, s.Start, s.End),
		})
	}
	return segs, nil
}
