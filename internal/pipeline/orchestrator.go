// Package pipeline sequences one analysis session from raw audio to a
// finalized report: decode, diarize, fan out the three analyzers, fuse.
// Degradable stages resolve to fallbacks on failure or timeout; only
// diarization failure and total fusion failure abort a session.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/analyzer"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/analyzer/neural"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/analyzer/text"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/audio"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/config"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/diarize"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/fusion"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/models"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/observability/logging"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/observability/metrics"
	"github.com/LeeSeogMin/senior-mhealth-analysis/internal/transcribe"
)

// UserMeta identifies the caller-side subject of a session.
type UserMeta struct {
	UserID string
	Age    int
	Gender string
}

// FeatureExtractor is the acoustic modality as the orchestrator sees it.
type FeatureExtractor interface {
	Extract(segment models.SpeakerSegment) (models.AcousticFeatureVector, error)
	Health() analyzer.State
}

// VoiceClassifier is the neural modality as the orchestrator sees it.
type VoiceClassifier interface {
	Classify(ctx context.Context, segment models.SpeakerSegment, task models.ClassifierTask) (models.ClassifierScore, error)
	TaskHealth(task models.ClassifierTask) analyzer.State
	Health() analyzer.State
}

// Fuser assembles the final report from resolved stage outputs.
type Fuser interface {
	Fuse(in fusion.Inputs) (*models.AnalysisReport, error)
}

// ReportSink persists a finalized report. Persistence failures are logged,
// never propagated; the caller already holds the report.
type ReportSink interface {
	Save(ctx context.Context, report *models.AnalysisReport) error
}

// ReportPublisher hands a finalized report to downstream consumers.
type ReportPublisher interface {
	PublishReport(ctx context.Context, report *models.AnalysisReport) error
}

// Deps are the orchestrator's collaborators. Store and Publisher may be
// nil; everything else is required.
type Deps struct {
	Decoder     *audio.Decoder
	Diarizer    diarize.Diarizer
	Extractor   FeatureExtractor
	Classifier  VoiceClassifier
	Transcriber transcribe.Transcriber
	Text        text.Analyzer
	Fusion      Fuser
	Store       ReportSink
	Publisher   ReportPublisher
}

// Orchestrator runs one session at a time per Analyze call; concurrent
// Analyze calls share only the worker pool and the loaded model weights.
type Orchestrator struct {
	cfg  *config.Configuration
	deps Deps
	pool *WorkerPool

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New wires the orchestrator. The worker pool bounds CPU-bound stages
// across all concurrent sessions.
func New(cfg *config.Configuration, deps Deps) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		deps:    deps,
		pool:    NewWorkerPool(cfg.Neural.Workers),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Health reports the per-analyzer readiness surface.
func (o *Orchestrator) Health() map[string]string {
	return map[string]string{
		"acoustic":          string(o.deps.Extractor.Health()),
		"neural":            string(o.deps.Classifier.Health()),
		"neural_depression": string(o.deps.Classifier.TaskHealth(models.TaskDepression)),
		"neural_insomnia":   string(o.deps.Classifier.TaskHealth(models.TaskInsomnia)),
		"text":              string(o.deps.Text.Health()),
	}
}

// Cancel aborts one in-flight session. It propagates to that session's
// stage contexts only; other sessions and the shared model cache are
// untouched. Returns false when the session is not in flight.
func (o *Orchestrator) Cancel(sessionID string) bool {
	o.mu.Lock()
	cancel, ok := o.cancels[sessionID]
	o.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (o *Orchestrator) register(sessionID string, cancel context.CancelFunc) {
	o.mu.Lock()
	o.cancels[sessionID] = cancel
	o.mu.Unlock()
}

func (o *Orchestrator) unregister(sessionID string) {
	o.mu.Lock()
	delete(o.cancels, sessionID)
	o.mu.Unlock()
}

// stageOutputs collects what the fan-out resolved. Each field is written
// by exactly one goroutine before the join.
type stageOutputs struct {
	features   *models.AcousticFeatureVector
	depression *models.ClassifierScore
	insomnia   *models.ClassifierScore
	text       *models.TextAnalysisResult

	acousticStatus models.StageStatus
	neuralStatus   models.StageStatus
	textStatus     models.StageStatus
}

// Analyze runs the full pipeline for one audio reference and returns the
// finalized report. The call is synchronous; internally the analyzers run
// concurrently over the same diarized speech.
func (o *Orchestrator) Analyze(ctx context.Context, audioRef string, meta UserMeta) (*models.AnalysisReport, error) {
	sessionID := uuid.NewString()
	logger := logging.WithSession(sessionID, meta.UserID)
	lifecycle := NewLifecycle(sessionID)
	start := time.Now()
	metrics.DefaultMetrics.RecordSessionStart()

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.register(sessionID, cancel)
	defer o.unregister(sessionID)

	fail := func(reason string, err error) (*models.AnalysisReport, error) {
		lifecycle.Fail(reason)
		metrics.DefaultMetrics.RecordSessionFailure(reason)
		metrics.DefaultMetrics.RecordSessionEnd(StateFailed.String(), time.Since(start).Seconds())
		logger.Error().Err(err).Str("reason", reason).Msg("session failed")
		return nil, err
	}

	decoded, err := o.deps.Decoder.DecodeFile(sessionCtx, audioRef)
	if err != nil {
		if sessionCtx.Err() != nil {
			return fail("cancelled", fmt.Errorf("%w: %v", ErrSessionCancelled, err))
		}
		return fail("decode", &audio.DecodeError{Ref: audioRef, Err: err})
	}

	session := models.AudioSession{
		SessionID:  sessionID,
		AudioRef:   audioRef,
		SampleRate: decoded.SampleRate,
		DurationMs: int64(decoded.Duration * 1000),
		UserID:     meta.UserID,
		Age:        meta.Age,
		Gender:     meta.Gender,
		CreatedAt:  start.Unix(),
	}

	segment, err := o.diarizeSenior(sessionCtx, session, decoded)
	if err != nil {
		if sessionCtx.Err() != nil {
			return fail("cancelled", fmt.Errorf("%w: %v", ErrSessionCancelled, err))
		}
		return fail("diarization", fmt.Errorf("%w: %v", ErrDiarizationFailed, err))
	}
	if err := lifecycle.Advance(StateDiarized); err != nil {
		return fail("lifecycle", err)
	}

	// Extraction runs inside the fan-out, so FEATURES_EXTRACTED is skipped.
	if err := lifecycle.Advance(StateAnalyzersRunning); err != nil {
		return fail("lifecycle", err)
	}
	out := o.runAnalyzers(sessionCtx, logger, segment)

	if sessionCtx.Err() != nil {
		return fail("cancelled", fmt.Errorf("%w during analysis", ErrSessionCancelled))
	}

	report, err := o.deps.Fusion.Fuse(fusion.Inputs{
		SessionID:  sessionID,
		UserID:     meta.UserID,
		Acoustic:   out.features,
		Depression: out.depression,
		Insomnia:   out.insomnia,
		Text:       out.text,
		StageStatuses: map[string]models.StageStatus{
			"diarize":  models.StageOK,
			"acoustic": out.acousticStatus,
			"neural":   out.neuralStatus,
			"text":     out.textStatus,
		},
	})
	if err != nil {
		return fail("fusion", err)
	}

	if err := lifecycle.Advance(StateFused); err != nil {
		return fail("lifecycle", err)
	}
	degraded := report.Status == models.StatusCompleteDegraded
	if err := lifecycle.Complete(degraded); err != nil {
		return fail("lifecycle", err)
	}

	o.deliver(report, logger)

	metrics.DefaultMetrics.RecordSessionEnd(string(report.Status), time.Since(start).Seconds())
	logger.Info().
		Str("status", string(report.Status)).
		Dur("elapsed", time.Since(start)).
		Msg("session complete")
	return report, nil
}

// diarizeSenior isolates the senior's speech and merges it into a single
// segment the analyzers share.
func (o *Orchestrator) diarizeSenior(ctx context.Context, session models.AudioSession, decoded *audio.Audio) (models.SpeakerSegment, error) {
	dctx, cancel := context.WithTimeout(ctx, o.cfg.Timeouts.Diarization)
	defer cancel()

	stageStart := time.Now()
	segments, err := o.deps.Diarizer.Diarize(dctx, session, decoded)
	metrics.DefaultMetrics.RecordStage("diarize", time.Since(stageStart).Seconds())
	if err != nil {
		return models.SpeakerSegment{}, err
	}
	if len(segments) == 0 {
		return models.SpeakerSegment{}, errors.New("no senior speech isolated")
	}
	return mergeSegments(session.SessionID, segments), nil
}

// mergeSegments concatenates the senior's diarized slices so every
// analyzer scores the same speech.
func mergeSegments(sessionID string, segments []models.SpeakerSegment) models.SpeakerSegment {
	merged := models.SpeakerSegment{
		SessionID:  sessionID,
		Speaker:    segments[0].Speaker,
		StartSec:   segments[0].StartSec,
		SampleRate: segments[0].SampleRate,
	}
	total := 0.0
	for _, s := range segments {
		merged.PCM = append(merged.PCM, s.PCM...)
		total += s.Duration()
	}
	merged.EndSec = merged.StartSec + total
	return merged
}

// runAnalyzers fans the three modalities out over the merged segment and
// joins them. Every branch resolves to a value or its fallback; none can
// abort the session.
func (o *Orchestrator) runAnalyzers(ctx context.Context, logger zerolog.Logger, segment models.SpeakerSegment) *stageOutputs {
	out := &stageOutputs{}
	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		o.runAcoustic(ctx, logger, segment, out)
	}()
	go func() {
		defer wg.Done()
		o.runNeural(ctx, logger, segment, out)
	}()
	go func() {
		defer wg.Done()
		o.runText(ctx, logger, segment, out)
	}()

	wg.Wait()
	return out
}

func (o *Orchestrator) runAcoustic(ctx context.Context, logger zerolog.Logger, segment models.SpeakerSegment, out *stageOutputs) {
	actx, cancel := context.WithTimeout(ctx, o.cfg.Timeouts.Acoustic)
	defer cancel()

	stageStart := time.Now()
	var (
		features models.AcousticFeatureVector
		extErr   error
	)
	poolErr := o.pool.Do(actx, func() {
		features, extErr = o.deps.Extractor.Extract(segment)
	})
	metrics.DefaultMetrics.RecordStage("acoustic", time.Since(stageStart).Seconds())

	switch {
	case poolErr != nil:
		out.acousticStatus = models.StageFailed
		metrics.DefaultMetrics.RecordStageTimeout("acoustic")
		logger.Warn().Err(poolErr).Msg("acoustic stage timed out, modality excluded")
	case extErr != nil:
		var insufficient *analyzer.InsufficientAudioError
		if errors.As(extErr, &insufficient) {
			out.acousticStatus = models.StageSkipped
		} else {
			out.acousticStatus = models.StageFailed
		}
		metrics.DefaultMetrics.RecordStageFallback("acoustic", "extract_failed")
		logger.Warn().Err(extErr).Msg("acoustic extraction excluded")
	default:
		out.features = &features
		out.acousticStatus = models.StageOK
	}
}

func (o *Orchestrator) runNeural(ctx context.Context, logger zerolog.Logger, segment models.SpeakerSegment, out *stageOutputs) {
	nctx, cancel := context.WithTimeout(ctx, o.cfg.Timeouts.Neural)
	defer cancel()

	stageStart := time.Now()
	var depression, insomnia models.ClassifierScore
	var depErr, insErr error
	poolErr := o.pool.Do(nctx, func() {
		depression, depErr = o.deps.Classifier.Classify(nctx, segment, models.TaskDepression)
		insomnia, insErr = o.deps.Classifier.Classify(nctx, segment, models.TaskInsomnia)
	})
	metrics.DefaultMetrics.RecordStage("neural", time.Since(stageStart).Seconds())

	if poolErr != nil {
		out.neuralStatus = models.StageFailed
		metrics.DefaultMetrics.RecordStageTimeout("neural")
		logger.Warn().Err(poolErr).Msg("neural stage timed out, modality excluded")
		return
	}

	if depErr == nil {
		out.depression = &depression
	}
	if insErr == nil {
		out.insomnia = &insomnia
	}

	switch {
	case depErr == nil && insErr == nil:
		out.neuralStatus = models.StageOK
	case isModelLoad(depErr) || isModelLoad(insErr):
		out.neuralStatus = models.StageNotReady
		metrics.DefaultMetrics.RecordStageFallback("neural", "model_not_ready")
		logger.Warn().AnErr("depression", depErr).AnErr("insomnia", insErr).Msg("classifier not ready")
	default:
		out.neuralStatus = models.StageFailed
		metrics.DefaultMetrics.RecordStageFallback("neural", "inference_failed")
		logger.Warn().AnErr("depression", depErr).AnErr("insomnia", insErr).Msg("neural inference excluded")
	}
}

func (o *Orchestrator) runText(ctx context.Context, logger zerolog.Logger, segment models.SpeakerSegment, out *stageOutputs) {
	tctx, cancel := context.WithTimeout(ctx, o.cfg.Timeouts.Transcribe)
	stageStart := time.Now()
	transcript, err := o.deps.Transcriber.Transcribe(tctx, segment)
	cancel()
	if err != nil {
		metrics.DefaultMetrics.RecordStageFallback("text", "transcribe_failed")
		logger.Warn().Err(err).Msg("transcription failed, substituting stub text result")
		stub := text.Neutral("")
		out.text = &stub
		out.textStatus = models.StageStub
		metrics.DefaultMetrics.RecordStage("text", time.Since(stageStart).Seconds())
		return
	}

	actx, cancel := context.WithTimeout(ctx, o.cfg.Timeouts.Text)
	defer cancel()
	result, err := o.deps.Text.Analyze(actx, transcript.Text)
	metrics.DefaultMetrics.RecordStage("text", time.Since(stageStart).Seconds())
	if err != nil {
		metrics.DefaultMetrics.RecordStageFallback("text", "llm_failed")
		logger.Warn().Err(err).Msg("language-model scoring failed, substituting stub text result")
		stub := text.Neutral(transcript.Text)
		out.text = &stub
		out.textStatus = models.StageStub
		return
	}

	out.text = &result
	if result.IsStub {
		out.textStatus = models.StageStub
	} else {
		out.textStatus = models.StageOK
	}
}

// deliver hands the finalized report to persistence and messaging. Both
// are best-effort; the caller already holds the report.
func (o *Orchestrator) deliver(report *models.AnalysisReport, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if o.deps.Store != nil {
		if err := o.deps.Store.Save(ctx, report); err != nil {
			logger.Error().Err(err).Msg("report persistence failed")
		}
	}
	if o.deps.Publisher != nil {
		if err := o.deps.Publisher.PublishReport(ctx, report); err != nil {
			logger.Error().Err(err).Msg("report publish failed")
		}
	}
}

func isModelLoad(err error) bool {
	var loadErr *neural.ModelLoadError
	return errors.As(err, &loadErr)
}
