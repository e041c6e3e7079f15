package conversions

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"narrate-backend/internal/documents"
	"narrate-backend/internal/queue"
	"narrate-backend/internal/shared/storage/object"
	"narrate-backend/internal/shared/telemetry"
	"narrate-backend/internal/shared/util"
	"narrate-backend/internal/tokens"
	"narrate-backend/internal/voice"
)

// Upload is a document submitted for conversion.
type Upload struct {
	FileName    string
	MimeType    string
	Data        []byte
	ContentType voice.ContentType
	Title       string
}

// Estimate is the charge and length a document would produce.
type Estimate struct {
	Title           string `json:"title"`
	WordCount       int    `json:"wordCount"`
	TokensNeeded    int    `json:"tokensNeeded"`
	DurationMinutes int    `json:"estimatedDurationMinutes"`
	Duration        string `json:"estimatedDuration"`
}

// Service accepts uploads, runs pipelines and serves their results.
type Service struct {
	Store     object.ObjectStore
	Jobs      StatusStore
	Queue     queue.Client
	Processor DocumentProcessor
	Ledger    TokenLedger
	Generator AudioGenerator
	Now       func() time.Time
	// StaleAfter is how long a running job may go without an update before a
	// redelivery marks it interrupted. Zero uses DefaultStaleAfter.
	StaleAfter time.Duration
}

// DefaultStaleAfter outlasts the worker's visibility timeout.
const DefaultStaleAfter = 20 * time.Minute

func (s *Service) staleAfter() time.Duration {
	if s.StaleAfter > 0 {
		return s.StaleAfter
	}
	return DefaultStaleAfter
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Submit stores the source document, records an idle job and hands it to the
// queue, or to a goroutine when no queue is configured.
func (s *Service) Submit(ctx context.Context, userID string, up Upload) (Job, error) {
	if strings.TrimSpace(userID) == "" {
		return Job{}, fmt.Errorf("%w: user is required", ErrInvalidInput)
	}
	if len(up.Data) == 0 {
		return Job{}, fmt.Errorf("%w: file is empty", ErrInvalidInput)
	}
	if _, err := voice.ProfileFor(up.ContentType); err != nil {
		return Job{}, err
	}
	if s.Store == nil || s.Jobs == nil {
		return Job{}, errors.New("conversion storage not configured")
	}
	name, err := util.SanitizeFileName(up.FileName)
	if err != nil {
		return Job{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	sourceKey, _, sniffed, err := s.Store.Save(ctx, userID, name, bytes.NewReader(up.Data))
	if err != nil {
		return Job{}, fmt.Errorf("store source document: %w", err)
	}
	mimeType := strings.TrimSpace(up.MimeType)
	if mimeType == "" {
		mimeType = sniffed
	}

	job := Job{
		ID:          uuid.NewString(),
		UserID:      userID,
		Stage:       StageIdle,
		Message:     MessageQueued,
		ContentType: string(up.ContentType),
		Title:       documents.Title(documents.File{Name: name, Title: up.Title}),
		UpdatedAt:   s.now(),
	}
	if err := s.Jobs.Put(ctx, job); err != nil {
		return Job{}, fmt.Errorf("record job: %w", err)
	}

	msg := queue.Message{
		JobID:       job.ID,
		UserID:      userID,
		SourceKey:   sourceKey,
		FileName:    name,
		MimeType:    mimeType,
		ContentType: string(up.ContentType),
		Title:       strings.TrimSpace(up.Title),
		RequestID:   RequestIDFromContext(ctx),
		EnqueuedAt:  s.now().Format(time.RFC3339),
		Version:     queue.MessageVersion,
	}

	telemetry.Info("conversion.submitted", map[string]any{
		"request_id":   msg.RequestID,
		"job_id":       job.ID,
		"user_id":      userID,
		"content_type": msg.ContentType,
		"mime_type":    mimeType,
		"bytes":        len(up.Data),
		"queued":       s.Queue != nil,
	})

	if s.Queue != nil {
		if err := s.Queue.Send(ctx, msg); err != nil {
			failed := job
			failed.Stage = StageError
			failed.FailedStage = StageIdle
			failed.Message = "Error: " + sanitizeError(err)
			failed.UpdatedAt = s.now()
			_ = s.Jobs.Put(ctx, failed)
			return Job{}, fmt.Errorf("enqueue conversion: %w", err)
		}
		return job, nil
	}

	go func() {
		bg := backgroundWithRequestID(ctx)
		defer func() {
			if r := recover(); r != nil {
				telemetry.Error("conversion.panic", map[string]any{
					"job_id": msg.JobID,
					"error":  fmt.Sprint(r),
				})
			}
		}()
		if err := s.Process(bg, msg); err != nil {
			telemetry.Warn("conversion.process_failed", map[string]any{
				"request_id": msg.RequestID,
				"job_id":     msg.JobID,
				"error":      err.Error(),
			})
		}
	}()
	return job, nil
}

// Process runs the pipeline for a queued job. Failures the pipeline records
// on the job return nil; only infrastructure errors are returned so a queue
// consumer can retry them. Jobs already past idle are skipped, which keeps a
// redelivered message from charging twice. A running job that has not been
// updated within StaleAfter is marked interrupted instead.
func (s *Service) Process(ctx context.Context, msg queue.Message) (err error) {
	if strings.TrimSpace(msg.JobID) == "" || strings.TrimSpace(msg.UserID) == "" {
		return fmt.Errorf("%w: job and user are required", ErrInvalidInput)
	}
	if s.Store == nil || s.Jobs == nil {
		return errors.New("conversion storage not configured")
	}
	ctx = WithRequestID(ctx, msg.RequestID)
	defer func() {
		if r := recover(); r != nil {
			telemetry.Error("conversion.panic", map[string]any{
				"request_id": msg.RequestID,
				"job_id":     msg.JobID,
				"error":      fmt.Sprint(r),
			})
			cause := fmt.Errorf("%w: %v", ErrStepPanicked, r)
			if markErr := s.abandon(ctx, msg.JobID, cause); markErr != nil {
				err = errors.Join(cause, markErr)
				return
			}
			err = cause
		}
	}()

	current, err := s.Jobs.Get(ctx, msg.JobID)
	switch {
	case err == nil && current.Stage != StageIdle:
		if !current.Stage.Terminal() && s.now().Sub(current.UpdatedAt) > s.staleAfter() {
			telemetry.Warn("conversion.stale", map[string]any{
				"request_id": msg.RequestID,
				"job_id":     msg.JobID,
				"stage":      string(current.Stage),
				"updated_at": current.UpdatedAt.Format(time.RFC3339),
			})
			return s.abandon(ctx, msg.JobID, ErrInterrupted)
		}
		telemetry.Info("conversion.skip", map[string]any{
			"request_id": msg.RequestID,
			"job_id":     msg.JobID,
			"stage":      string(current.Stage),
		})
		return nil
	case err != nil && !errors.Is(err, ErrJobNotFound):
		return fmt.Errorf("load job: %w", err)
	}

	data, err := s.loadSource(ctx, msg.SourceKey)
	if err != nil {
		return err
	}

	title := msg.Title
	if title == "" {
		title = current.Title
	}
	var putErr error
	p := New(msg.JobID, Deps{
		Processor: s.Processor,
		Ledger:    s.Ledger,
		Generator: s.Generator,
		Now:       s.Now,
		Observer: ObserverFunc(func(j Job) {
			if j.Stage == StageComplete {
				return
			}
			if err := s.Jobs.Put(ctx, j); err != nil && putErr == nil {
				putErr = err
			}
		}),
	})

	res, runErr := p.Run(ctx, documents.File{
		Name:     msg.FileName,
		MimeType: msg.MimeType,
		Data:     data,
		Title:    title,
	}, voice.ContentType(msg.ContentType), msg.UserID)

	if len(res.Audio.Data) > 0 || res.Job.Stage == StageComplete {
		final := res.Job
		key := audioKey(msg.UserID, msg.JobID)
		if _, err := s.Store.SaveWithKey(ctx, key, res.Audio.ContentType, bytes.NewReader(res.Audio.Data)); err != nil {
			telemetry.Error("conversion.audio_store_failed", map[string]any{
				"request_id": msg.RequestID,
				"job_id":     msg.JobID,
				"user_id":    msg.UserID,
				"error":      err.Error(),
			})
			if final.Stage == StageComplete {
				final.Stage = StageError
				final.FailedStage = StageGeneratingAudio
				final.Progress = 0
				final.Message = "Error: " + sanitizeError(err)
			}
		} else {
			final.AudioKey = key
		}
		final.UpdatedAt = s.now()
		if err := s.Jobs.Put(ctx, final); err != nil {
			return fmt.Errorf("record job: %w", err)
		}
	}

	if putErr != nil {
		return fmt.Errorf("record job: %w", putErr)
	}
	var se *StageFailure
	if runErr != nil && !errors.As(runErr, &se) {
		return runErr
	}
	return nil
}

// abandon moves a job that has not finished into the error stage, keeping the
// stage it was in as the failed stage. Finished jobs are left alone.
func (s *Service) abandon(ctx context.Context, jobID string, cause error) error {
	job, err := s.Jobs.Get(ctx, jobID)
	if errors.Is(err, ErrJobNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if job.Stage.Terminal() {
		return nil
	}
	job.FailedStage = job.Stage
	job.Stage = StageError
	job.Progress = 0
	job.Message = "Error: " + sanitizeError(cause)
	job.UpdatedAt = s.now()
	if err := s.Jobs.Put(ctx, job); err != nil {
		return fmt.Errorf("record job: %w", err)
	}
	return nil
}

// Estimate reports words, tokens and duration without charging anything.
func (s *Service) Estimate(ctx context.Context, up Upload) (Estimate, error) {
	if len(up.Data) == 0 {
		return Estimate{}, fmt.Errorf("%w: file is empty", ErrInvalidInput)
	}
	if s.Processor == nil {
		return Estimate{}, errors.New("document processor not configured")
	}
	doc, err := s.Processor.Process(ctx, documents.File{
		Name:     up.FileName,
		MimeType: up.MimeType,
		Data:     up.Data,
		Title:    up.Title,
	})
	if err != nil {
		return Estimate{}, err
	}
	return Estimate{
		Title:           doc.Title,
		WordCount:       doc.WordCount,
		TokensNeeded:    tokens.TokensNeeded(doc.WordCount),
		DurationMinutes: doc.EstimatedDurationMinutes,
		Duration:        documents.FormatDuration(doc.EstimatedDurationMinutes),
	}, nil
}

// Status returns userID's job. Other users' jobs read as not found.
func (s *Service) Status(ctx context.Context, userID, jobID string) (Job, error) {
	if s.Jobs == nil {
		return Job{}, errors.New("conversion storage not configured")
	}
	job, err := s.Jobs.Get(ctx, jobID)
	if err != nil {
		return Job{}, err
	}
	if job.UserID != userID {
		return Job{}, ErrJobNotFound
	}
	return job, nil
}

// OpenAudio streams the generated audio of a job.
func (s *Service) OpenAudio(ctx context.Context, userID, jobID string) (io.ReadCloser, Job, error) {
	job, err := s.Status(ctx, userID, jobID)
	if err != nil {
		return nil, Job{}, err
	}
	if job.AudioKey == "" {
		return nil, job, ErrAudioNotReady
	}
	rc, err := s.Store.Open(ctx, job.AudioKey)
	if errors.Is(err, object.ErrNotFound) {
		// Status outlived the stored audio.
		return nil, job, ErrJobNotFound
	}
	if err != nil {
		return nil, job, fmt.Errorf("open audio: %w", err)
	}
	return rc, job, nil
}

func (s *Service) loadSource(ctx context.Context, key string) ([]byte, error) {
	body, err := s.Store.Open(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("open source document: %w", err)
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read source document: %w", err)
	}
	return data, nil
}

func audioKey(userID, jobID string) string {
	return util.ObjectKey("audio", userID, jobID+".mp3")
}
