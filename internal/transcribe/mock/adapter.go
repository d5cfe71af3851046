// Package mock provides a mock transcriber for running the pipeline
// without cloud credentials.
package mock

import (
	"context"
	"sync"

	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/models"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/transcribe"
)

// SimulatedTranscript is a canned transcript with a confidence score.
type SimulatedTranscript struct {
	Text       string
	Confidence float64
}

// DefaultTranscripts provides sample elderly-call transcripts for simulation.
var DefaultTranscripts = []SimulatedTranscript{
	{
		Text:       "요즘은 잠을 잘 못 자요 새벽에 자꾸 깨고 다시 잠들기가 힘들어요",
		Confidence: 0.93,
	},
	{
		Text:       "어제 경로당에 다녀왔어요 친구들을 만나니까 기분이 좋더라고요",
		Confidence: 0.96,
	},
	{
		Text:       "입맛이 없어서 밥을 잘 안 먹게 돼요 혼자 먹으니까 더 그래요",
		Confidence: 0.91,
	},
	{
		Text:       "무릎이 아파서 밖에 잘 안 나가요 집에만 있으니 심심하지요",
		Confidence: 0.89,
	},
}

// Adapter implements transcribe.Transcriber with canned transcripts,
// cycling through the defaults across calls.
type Adapter struct {
	mu         sync.Mutex
	transcript []SimulatedTranscript
	next       int
}

// New creates a new mock transcriber.
func New() *Adapter {
	return &Adapter{transcript: DefaultTranscripts}
}

// Transcribe returns the next canned transcript.
func (a *Adapter) Transcribe(ctx context.Context, segment models.SpeakerSegment) (transcribe.Result, error) {
	if err := ctx.Err(); err != nil {
		return transcribe.Result{}, err
	}

	a.mu.Lock()
	t := a.transcript[a.next%len(a.transcript)]
	a.next++
	a.mu.Unlock()

	return transcribe.Result{Text: t.Text, Confidence: t.Confidence}, nil
}

// Close is a no-op for the mock.
func (a *Adapter) Close() error {
	return nil
}
