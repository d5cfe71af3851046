package neural

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/analyzer"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/config"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/models"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/observability/logging"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/observability/metrics"
)

// WeightFetcher retrieves model weights from remote storage when the local
// cache misses.
type WeightFetcher interface {
	Fetch(ctx context.Context, task models.ClassifierTask) ([]byte, error)
}

// HTTPWeightFetcher fetches weight blobs from a remote base URL.
type HTTPWeightFetcher struct {
	baseURL string
	c       *http.Client
}

// NewHTTPWeightFetcher creates a fetcher for {baseURL}/{task}.sincnet.
func NewHTTPWeightFetcher(baseURL string) *HTTPWeightFetcher {
	return &HTTPWeightFetcher{baseURL: baseURL, c: &http.Client{Timeout: 60 * time.Second}}
}

// Fetch downloads the weight blob for a task.
func (f *HTTPWeightFetcher) Fetch(ctx context.Context, task models.ClassifierTask) ([]byte, error) {
	url := fmt.Sprintf("%s/%s.sincnet", f.baseURL, task)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: %s", url, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// taskState holds the load-once slot for one classifier task.
type taskState struct {
	once    sync.Once
	model   *Model
	loadErr error
	failed  atomic.Bool
}

// Classifier runs windowed inference with lazily loaded per-task models.
// Models load once per process; concurrent callers during a load wait on
// the same sync.Once and then share the weights read-only. A load failure
// pins the task NotReady for the process lifetime.
type Classifier struct {
	cacheDir      string
	fetcher       WeightFetcher
	sampleRate    int
	windowMs      int
	windowOverlap float64
	aggregation   models.AggregationMethod

	tasks map[models.ClassifierTask]*taskState
}

// NewClassifier creates a classifier from configuration. fetcher may be
// nil when no remote weight storage is configured.
func NewClassifier(cfg *config.Configuration, fetcher WeightFetcher) *Classifier {
	if fetcher == nil && cfg.Neural.RemoteURL != "" {
		fetcher = NewHTTPWeightFetcher(cfg.Neural.RemoteURL)
	}
	return &Classifier{
		cacheDir:      cfg.Neural.CacheDir,
		fetcher:       fetcher,
		sampleRate:    cfg.Audio.SampleRateHz,
		windowMs:      cfg.Neural.WindowMs,
		windowOverlap: cfg.Neural.WindowOverlap,
		aggregation:   cfg.Neural.Aggregation,
		tasks: map[models.ClassifierTask]*taskState{
			models.TaskDepression: {},
			models.TaskInsomnia:   {},
		},
	}
}

// Health reports ready only when every task's model is loadable or already
// loaded; a single NotReady task degrades the whole modality state.
func (c *Classifier) Health() analyzer.State {
	for _, st := range c.tasks {
		if st.failed.Load() {
			return analyzer.StateNotReady
		}
	}
	return analyzer.StateReady
}

// TaskHealth reports one task's state without triggering a load.
func (c *Classifier) TaskHealth(task models.ClassifierTask) analyzer.State {
	st, ok := c.tasks[task]
	if !ok {
		return analyzer.StateNotReady
	}
	if st.failed.Load() {
		return analyzer.StateNotReady
	}
	return analyzer.StateReady
}

// Classify splits the segment into fixed-length overlapping windows, scores
// each with the task's model and pools the scores.
func (c *Classifier) Classify(ctx context.Context, segment models.SpeakerSegment, task models.ClassifierTask) (models.ClassifierScore, error) {
	model, err := c.model(ctx, task)
	if err != nil {
		return models.ClassifierScore{}, err
	}
	if err := ctx.Err(); err != nil {
		return models.ClassifierScore{}, err
	}

	windowLen := c.windowMs * segment.SampleRate / 1000
	if windowLen <= 0 {
		return models.ClassifierScore{}, fmt.Errorf("invalid window length for sample rate %d", segment.SampleRate)
	}
	step := int(float64(windowLen) * (1 - c.windowOverlap))
	if step <= 0 {
		step = 1
	}

	var scores []float64
	for start := 0; start+windowLen <= len(segment.PCM); start += step {
		scores = append(scores, model.Forward(segment.PCM[start:start+windowLen]))
	}
	if len(scores) == 0 {
		// Segment shorter than one window: zero-pad a single window.
		window := make([]float64, windowLen)
		copy(window, segment.PCM)
		scores = append(scores, model.Forward(window))
	}

	metrics.DefaultMetrics.RecordInferenceWindows(string(task), len(scores))

	raw := 0.0
	switch c.aggregation {
	case models.AggregationMax:
		// Max pooling preserves peak-risk windows that mean pooling
		// would wash out.
		for _, s := range scores {
			if s > raw {
				raw = s
			}
		}
	default:
		for _, s := range scores {
			raw += s
		}
		raw /= float64(len(scores))
	}

	return models.ClassifierScore{
		Task:        task,
		RawScore:    raw,
		WindowCount: len(scores),
		Aggregation: c.aggregation,
	}, nil
}

// model returns the lazily loaded model for a task. The first caller
// populates the slot; concurrent callers block on the same load.
func (c *Classifier) model(ctx context.Context, task models.ClassifierTask) (*Model, error) {
	st, ok := c.tasks[task]
	if !ok {
		return nil, &ModelLoadError{Task: string(task), Err: fmt.Errorf("unknown task")}
	}

	st.once.Do(func() {
		st.model, st.loadErr = c.loadModel(ctx, task)
		if st.loadErr != nil {
			st.failed.Store(true)
			metrics.DefaultMetrics.RecordModelLoadFailure(string(task))
		}
	})

	if st.loadErr != nil {
		return nil, &ModelLoadError{Task: string(task), Err: st.loadErr}
	}
	return st.model, nil
}

// loadModel tries the local cache first, then the remote fetcher, caching
// a successful fetch for later processes.
func (c *Classifier) loadModel(ctx context.Context, task models.ClassifierTask) (*Model, error) {
	logger := logging.WithComponent("neural_classifier")
	path := filepath.Join(c.cacheDir, string(task)+".sincnet")

	if blob, err := os.ReadFile(path); err == nil {
		m, perr := LoadModel(bytes.NewReader(blob), c.sampleRate)
		if perr == nil {
			logger.Info().Str("task", string(task)).Str("path", path).Msg("model loaded from cache")
			metrics.DefaultMetrics.RecordModelLoad(string(task), "cache")
			return m, nil
		}
		logger.Warn().Str("task", string(task)).Err(perr).Msg("cached model unreadable, trying remote")
	}

	if c.fetcher == nil {
		return nil, fmt.Errorf("no cached weights at %s and no remote configured", path)
	}

	blob, err := c.fetcher.Fetch(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("remote fetch: %w", err)
	}
	m, err := LoadModel(bytes.NewReader(blob), c.sampleRate)
	if err != nil {
		return nil, fmt.Errorf("parse fetched weights: %w", err)
	}

	if err := os.MkdirAll(c.cacheDir, 0o755); err == nil {
		if werr := os.WriteFile(path, blob, 0o644); werr != nil {
			logger.Warn().Str("path", path).Err(werr).Msg("could not cache fetched weights")
		}
	}

	logger.Info().Str("task", string(task)).Msg("model loaded from remote")
	metrics.DefaultMetrics.RecordModelLoad(string(task), "remote")
	return m, nil
}
