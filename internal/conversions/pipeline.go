package conversions

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"narrate-backend/internal/documents"
	"narrate-backend/internal/shared/metrics"
	"narrate-backend/internal/shared/telemetry"
	"narrate-backend/internal/tokens"
	"narrate-backend/internal/voice"
)

// DocumentProcessor extracts text and derives word count and duration.
type DocumentProcessor interface {
	Process(ctx context.Context, f documents.File) (documents.ProcessedDocument, error)
}

// TokenLedger is the slice of tokens.Ledger the pipeline needs.
type TokenLedger interface {
	CheckAvailable(ctx context.Context, userID string, n int) (bool, error)
	Debit(ctx context.Context, userID, jobID string, tokens, words int) (tokens.Account, error)
}

// AudioGenerator synthesizes speech for text.
type AudioGenerator interface {
	Generate(ctx context.Context, text string, ct voice.ContentType, onProgress func(float64)) (voice.Audio, error)
}

// Deps are the collaborators of one pipeline run.
type Deps struct {
	Processor DocumentProcessor
	Ledger    TokenLedger
	Generator AudioGenerator
	Observer  Observer
	Now       func() time.Time
}

// Result is what a run produced. Audio is set whenever generation finished,
// including when the debit afterwards failed.
type Result struct {
	Job      Job
	Document documents.ProcessedDocument
	Audio    voice.Audio
	Account  tokens.Account
}

// Pipeline drives one document through extraction, token check, synthesis
// and debit. It is single use.
type Pipeline struct {
	deps Deps

	mu   sync.Mutex
	used bool
	job  Job
}

// New returns a pipeline for jobID in the idle stage.
func New(jobID string, deps Deps) *Pipeline {
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Pipeline{
		deps: deps,
		job:  Job{ID: jobID, Stage: StageIdle, UpdatedAt: deps.Now()},
	}
}

// Snapshot returns the latest job state.
func (p *Pipeline) Snapshot() Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.job
}

// Run executes the conversion. The returned error is nil only when the job
// reached the complete stage. A panicking collaborator fails the active stage.
func (p *Pipeline) Run(ctx context.Context, file documents.File, ct voice.ContentType, userID string) (res Result, err error) {
	p.mu.Lock()
	if p.used {
		p.mu.Unlock()
		return Result{}, ErrPipelineUsed
	}
	p.used = true
	p.job.UserID = userID
	p.job.ContentType = string(ct)
	p.mu.Unlock()
	defer p.recoverStep(ctx, &res, &err)

	if p.deps.Processor == nil || p.deps.Ledger == nil || p.deps.Generator == nil {
		return p.fail(StageIdle, errors.New("pipeline dependencies missing"), Result{})
	}

	startedAt := p.deps.Now()
	metrics.IncConversionStarted()
	p.logStatus(StageProcessingText, "idle->processing-text", 0)

	p.transition(StageProcessingText, progressExtracting, MessageExtracting)
	if err := ctx.Err(); err != nil {
		return p.fail(StageProcessingText, err, Result{})
	}
	doc, err := p.deps.Processor.Process(ctx, file)
	if err != nil {
		return p.fail(StageProcessingText, err, Result{})
	}
	res = Result{Document: doc}

	p.update(func(j *Job) {
		j.Title = doc.Title
		j.WordCount = doc.WordCount
		j.Progress = progressExtracted
		j.Message = fmt.Sprintf("Extracted %d words. Estimated duration: %s",
			doc.WordCount, documents.FormatDuration(doc.EstimatedDurationMinutes))
	})

	needed := tokens.TokensNeeded(doc.WordCount)
	ok, err := p.deps.Ledger.CheckAvailable(ctx, userID, needed)
	if err != nil {
		return p.fail(StageProcessingText, err, res)
	}
	if !ok {
		return p.failWithMessage(StageProcessingText, tokens.ErrInsufficientTokens, MessageInsufficientTokens, res)
	}

	p.transition(StageGeneratingAudio, progressGenerating, MessageGenerating)
	p.logStatus(StageGeneratingAudio, "processing-text->generating-audio", 0)
	if err := ctx.Err(); err != nil {
		return p.fail(StageGeneratingAudio, err, res)
	}
	audio, err := p.deps.Generator.Generate(ctx, doc.Text, ct, p.onGenerateProgress)
	if err != nil {
		return p.fail(StageGeneratingAudio, err, res)
	}
	res.Audio = audio

	account, err := p.deps.Ledger.Debit(ctx, userID, p.job.ID, needed, doc.WordCount)
	if err != nil {
		metrics.IncDebitInconsistency()
		telemetry.Error("conversion.debit_inconsistency", map[string]any{
			"request_id":  RequestIDFromContext(ctx),
			"job_id":      p.job.ID,
			"user_id":     userID,
			"tokens":      needed,
			"word_count":  doc.WordCount,
			"audio_bytes": len(audio.Data),
			"error":       err.Error(),
		})
		return p.fail(StageGeneratingAudio, fmt.Errorf("%w: %w", ErrDebitInconsistency, err), res)
	}
	res.Account = account
	metrics.AddTokensDebited(needed)

	p.update(func(j *Job) {
		j.Stage = StageComplete
		j.Progress = progressComplete
		j.Message = MessageComplete
		j.TokensUsed = needed
	})
	duration := durationMs(startedAt, p.deps.Now())
	metrics.IncConversionCompleted()
	metrics.ObserveConversionDurationMs(duration)
	p.logStatus(StageComplete, "generating-audio->complete", duration)

	res.Job = p.Snapshot()
	return res, nil
}

// onGenerateProgress maps provider progress 0..100 into the 40..90 band and
// never moves backwards.
func (p *Pipeline) onGenerateProgress(pct float64) {
	if math.IsNaN(pct) {
		return
	}
	next := int(progressGenerating + pct*0.5)
	if next < progressGenerating {
		next = progressGenerating
	}
	if next > progressGenerateMax {
		next = progressGenerateMax
	}
	shown := int(math.Round(math.Max(0, math.Min(pct, 100))))

	p.mu.Lock()
	if p.job.Stage != StageGeneratingAudio || next < p.job.Progress {
		p.mu.Unlock()
		return
	}
	p.job.Progress = next
	p.job.Message = fmt.Sprintf("Generating audio... %d%%", shown)
	p.job.UpdatedAt = p.deps.Now()
	snap := p.job
	p.mu.Unlock()
	p.notify(snap)
}

func (p *Pipeline) transition(stage Stage, progress int, message string) {
	p.update(func(j *Job) {
		j.Stage = stage
		j.Progress = progress
		j.Message = message
	})
}

func (p *Pipeline) update(fn func(*Job)) {
	p.mu.Lock()
	fn(&p.job)
	p.job.UpdatedAt = p.deps.Now()
	snap := p.job
	p.mu.Unlock()
	p.notify(snap)
}

func (p *Pipeline) notify(j Job) {
	if p.deps.Observer != nil {
		p.deps.Observer.OnUpdate(j)
	}
}

func (p *Pipeline) fail(stage Stage, cause error, res Result) (Result, error) {
	return p.failWithMessage(stage, cause, "Error: "+errorMessage(cause), res)
}

func (p *Pipeline) failWithMessage(stage Stage, cause error, message string, res Result) (Result, error) {
	p.update(func(j *Job) {
		j.Stage = StageError
		j.FailedStage = stage
		j.Progress = 0
		j.Message = message
	})
	metrics.IncConversionFailed(string(stage))
	p.logStatus(StageError, string(stage)+"->error", 0)

	res.Job = p.Snapshot()
	return res, &StageFailure{Stage: stage, Err: cause}
}

func (p *Pipeline) recoverStep(ctx context.Context, res *Result, err *error) {
	r := recover()
	if r == nil {
		return
	}
	snap := p.Snapshot()
	stage := snap.Stage
	switch stage {
	case StageComplete:
		res.Job = snap
		*err = nil
		return
	case StageError:
		stage = snap.FailedStage
	}
	telemetry.Error("conversion.panic", map[string]any{
		"request_id": RequestIDFromContext(ctx),
		"job_id":     snap.ID,
		"stage":      string(stage),
		"error":      fmt.Sprint(r),
	})
	*res, *err = p.fail(stage, fmt.Errorf("%w: %v", ErrStepPanicked, r), *res)
}

func (p *Pipeline) logStatus(stage Stage, transition string, duration float64) {
	snap := p.Snapshot()
	fields := map[string]any{
		"job_id":            snap.ID,
		"user_id":           snap.UserID,
		"content_type":      snap.ContentType,
		"stage":             string(stage),
		"status_transition": transition,
	}
	if snap.WordCount > 0 {
		fields["word_count"] = snap.WordCount
	}
	if duration > 0 {
		fields["duration_ms"] = duration
	}
	if stage == StageError {
		fields["failed_stage"] = string(snap.FailedStage)
		fields["message"] = snap.Message
	}
	telemetry.Info("conversion.status", fields)
}

func errorMessage(err error) string {
	if err == nil {
		return "Unknown error occurred"
	}
	return sanitizeError(err)
}

func durationMs(startedAt, completedAt time.Time) float64 {
	return float64(completedAt.Sub(startedAt).Microseconds()) / 1000.0
}
