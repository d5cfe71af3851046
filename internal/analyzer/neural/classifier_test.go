package neural

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/analyzer"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/config"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/models"
)

// buildWeights assembles a small but valid weight blob.
func buildWeights(numFilters, kernelLen, poolSize, hidden int) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, [6]uint32{
		weightsMagic, weightsVersion,
		uint32(numFilters), uint32(kernelLen), uint32(poolSize), uint32(hidden),
	})

	writeF := func(vals []float32) { binary.Write(&buf, binary.LittleEndian, vals) }

	low := make([]float32, numFilters)
	band := make([]float32, numFilters)
	for i := range low {
		low[i] = float32(100 + 200*i)
		band[i] = 300
	}
	writeF(low)
	writeF(band)

	fc1 := make([]float32, hidden*numFilters)
	for i := range fc1 {
		fc1[i] = float32(0.1 * float64(i%5))
	}
	writeF(fc1)
	writeF(make([]float32, hidden))

	fc2 := make([]float32, hidden)
	for i := range fc2 {
		fc2[i] = 0.2
	}
	writeF(fc2)
	writeF([]float32{-0.5})

	return buf.Bytes()
}

func writeCachedWeights(t *testing.T, dir string, task models.ClassifierTask) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, string(task)+".sincnet"), buildWeights(4, 33, 8, 6), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testClassifier(t *testing.T, fetcher WeightFetcher) (*Classifier, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Load()
	cfg.Neural.CacheDir = dir
	cfg.Neural.RemoteURL = ""
	return NewClassifier(cfg, fetcher), dir
}

func testSegment(durationSec float64) models.SpeakerSegment {
	sr := 16000
	pcm := make([]float64, int(durationSec*float64(sr)))
	for i := range pcm {
		pcm[i] = 0.4 * math.Sin(2*math.Pi*140*float64(i)/float64(sr))
	}
	return models.SpeakerSegment{SessionID: "s-1", SampleRate: sr, EndSec: durationSec, PCM: pcm}
}

type fakeFetcher struct {
	blob  []byte
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(ctx context.Context, task models.ClassifierTask) ([]byte, error) {
	f.calls++
	return f.blob, f.err
}

func TestLoadModel_RejectsCorruptBlobs(t *testing.T) {
	tests := []struct {
		name string
		blob []byte
	}{
		{"empty", nil},
		{"bad magic", make([]byte, 64)},
		{"truncated", buildWeights(4, 33, 8, 6)[:40]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadModel(bytes.NewReader(tt.blob), 16000); err == nil {
				t.Error("expected error for corrupt blob")
			}
		})
	}
}

func TestClassify_FromLocalCache(t *testing.T) {
	c, dir := testClassifier(t, nil)
	writeCachedWeights(t, dir, models.TaskDepression)

	score, err := c.Classify(context.Background(), testSegment(1.0), models.TaskDepression)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if score.RawScore < 0 || score.RawScore > 1 {
		t.Errorf("raw score out of [0,1]: %f", score.RawScore)
	}
	// 1s at 16kHz, 200ms windows, 50% overlap: 9 windows.
	if score.WindowCount != 9 {
		t.Errorf("expected 9 windows, got %d", score.WindowCount)
	}
	if score.Aggregation != models.AggregationMean {
		t.Errorf("expected mean aggregation, got %s", score.Aggregation)
	}
}

func TestClassify_Deterministic(t *testing.T) {
	c, dir := testClassifier(t, nil)
	writeCachedWeights(t, dir, models.TaskDepression)
	seg := testSegment(0.6)

	a, err := c.Classify(context.Background(), seg, models.TaskDepression)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := c.Classify(context.Background(), seg, models.TaskDepression)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if a.RawScore != b.RawScore {
		t.Errorf("inference not bit-reproducible: %v vs %v", a.RawScore, b.RawScore)
	}
}

func TestClassify_ShortSegmentZeroPads(t *testing.T) {
	c, dir := testClassifier(t, nil)
	writeCachedWeights(t, dir, models.TaskInsomnia)

	score, err := c.Classify(context.Background(), testSegment(0.05), models.TaskInsomnia)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score.WindowCount != 1 {
		t.Errorf("expected single zero-padded window, got %d", score.WindowCount)
	}
}

func TestClassify_MaxAggregation(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Load()
	cfg.Neural.CacheDir = dir
	cfg.Neural.RemoteURL = ""
	cfg.Neural.Aggregation = models.AggregationMax
	c := NewClassifier(cfg, nil)
	writeCachedWeights(t, dir, models.TaskDepression)

	score, err := c.Classify(context.Background(), testSegment(1.0), models.TaskDepression)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score.Aggregation != models.AggregationMax {
		t.Errorf("expected max aggregation, got %s", score.Aggregation)
	}
}

func TestClassify_RemoteFetchPopulatesCache(t *testing.T) {
	fetcher := &fakeFetcher{blob: buildWeights(4, 33, 8, 6)}
	c, dir := testClassifier(t, fetcher)

	if _, err := c.Classify(context.Background(), testSegment(0.5), models.TaskDepression); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fetcher.calls != 1 {
		t.Errorf("expected one fetch, got %d", fetcher.calls)
	}

	if _, err := os.Stat(filepath.Join(dir, "depression.sincnet")); err != nil {
		t.Errorf("expected fetched weights cached: %v", err)
	}

	// Second call must reuse the loaded model, not refetch.
	if _, err := c.Classify(context.Background(), testSegment(0.5), models.TaskDepression); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fetcher.calls != 1 {
		t.Errorf("expected no refetch, got %d calls", fetcher.calls)
	}
}

func TestClassify_LoadFailurePinsNotReady(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("remote unavailable")}
	c, _ := testClassifier(t, fetcher)

	_, err := c.Classify(context.Background(), testSegment(0.5), models.TaskDepression)
	var loadErr *ModelLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected ModelLoadError, got %v", err)
	}

	if c.TaskHealth(models.TaskDepression) != analyzer.StateNotReady {
		t.Error("expected task pinned NotReady after load failure")
	}

	// Not retried per request.
	_, err = c.Classify(context.Background(), testSegment(0.5), models.TaskDepression)
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected ModelLoadError on second call, got %v", err)
	}
	if fetcher.calls != 1 {
		t.Errorf("expected single load attempt, got %d", fetcher.calls)
	}

	// The untouched task stays loadable state-wise.
	if c.TaskHealth(models.TaskInsomnia) != analyzer.StateReady {
		t.Error("expected insomnia task unaffected")
	}
}
