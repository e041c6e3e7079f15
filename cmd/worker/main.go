package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"narrate-backend/internal/bootstrap"
	"narrate-backend/internal/shared/config"
	"narrate-backend/internal/shared/metrics"
	"narrate-backend/internal/shared/telemetry"
	"narrate-backend/internal/workerproc"
)

const (
	defaultRegion             = "us-east-1"
	defaultVisibilitySeconds  = 900
	defaultWorkerConcurrency  = 4
	defaultShutdownTimeoutSec = 30
)

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// worker long-polls one queue and hands each message to the conversion service.
type worker struct {
	client     sqsAPI
	queueURL   string
	processor  workerproc.JobProcessor
	visibility int32
}

func main() {
	cfg := config.Load()

	queueURL := strings.TrimSpace(cfg.QueueURL)
	if queueURL == "" {
		log.Fatal("NB_SQS_QUEUE_URL is required")
	}
	region := strings.TrimSpace(cfg.AWSRegion)
	if region == "" {
		region = defaultRegion
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}

	app, err := bootstrap.Build(cfg)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}

	w := &worker{
		client:     sqs.NewFromConfig(awsCfg),
		queueURL:   queueURL,
		processor:  app.ConversionProcessor,
		visibility: int32(envInt("NB_SQS_VISIBILITY_TIMEOUT_SECONDS", defaultVisibilitySeconds)),
	}
	concurrency := max(1, envInt("NB_WORKER_CONCURRENCY", defaultWorkerConcurrency))
	shutdownTimeout := time.Duration(envInt("NB_SHUTDOWN_TIMEOUT_SECONDS", defaultShutdownTimeoutSec)) * time.Second

	log.Printf("worker started queue=%s concurrency=%d visibility=%ds", queueURL, concurrency, w.visibility)
	inFlight := w.run(ctx, concurrency)

	log.Printf("shutdown requested, waiting up to %s for in-flight conversions", shutdownTimeout)
	done := make(chan struct{})
	go func() {
		inFlight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		log.Printf("shutdown timeout reached; exiting with conversions in flight")
	}
}

// run polls until ctx is cancelled and returns the group of in-flight handlers.
// Handlers run on a context detached from ctx so a signal stops polling without
// failing conversions that are already generating audio.
func (w *worker) run(ctx context.Context, concurrency int) *sync.WaitGroup {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	jobCtx := context.WithoutCancel(ctx)

	for ctx.Err() == nil {
		resp, err := w.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(w.queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
			VisibilityTimeout:   w.visibility,
			AttributeNames:      []sqstypes.QueueAttributeName{sqstypes.QueueAttributeName("ApproximateReceiveCount")},
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				break
			}
			log.Printf("receive message: %v", err)
			continue
		}

		for _, msg := range resp.Messages {
			select {
			case <-ctx.Done():
				return &wg
			case sem <- struct{}{}:
			}
			metrics.IncWorkerJobsReceived()
			wg.Add(1)
			go func(m sqstypes.Message) {
				defer wg.Done()
				defer func() { <-sem }()
				w.handle(jobCtx, m)
			}(msg)
		}
	}
	return &wg
}

// handle processes one delivery. Malformed bodies are deleted since no retry
// can fix them; processing failures are left for SQS to redeliver.
func (w *worker) handle(ctx context.Context, msg sqstypes.Message) {
	body := aws.ToString(msg.Body)
	decoded, meta, err := workerproc.ParseMessage(body)
	if err != nil {
		w.discard(ctx, msg, meta, err)
		return
	}

	telemetry.Info("worker.conversion.received", baseFields(msg, decoded.JobID, decoded.RequestID))

	err = workerproc.HandleMessage(workerproc.WithParsedMessage(ctx, decoded), w.processor, body)
	if err != nil {
		fields := baseFields(msg, decoded.JobID, decoded.RequestID)
		var procErr workerproc.ErrProcess
		if errors.As(err, &procErr) && procErr.Err != nil {
			fields["error"] = procErr.Err.Error()
		} else {
			fields["error"] = err.Error()
		}
		telemetry.Error("worker.conversion.failed", fields)
		metrics.IncWorkerJobsFailed()
		return
	}

	if w.delete(ctx, msg, decoded.JobID, decoded.RequestID) {
		telemetry.Info("worker.conversion.completed", baseFields(msg, decoded.JobID, decoded.RequestID))
		metrics.IncWorkerJobsCompleted()
	}
}

func (w *worker) discard(ctx context.Context, msg sqstypes.Message, meta workerproc.MessageMeta, err error) {
	event := "worker.conversion.decode_failed"
	requestID := ""
	var missing workerproc.ErrMissingJobID
	var empty workerproc.ErrEmptyBody
	switch {
	case errors.As(err, &empty):
		event = "worker.conversion.empty_body"
	case errors.As(err, &missing):
		event = "worker.conversion.missing_id"
		requestID = missing.RequestID
	}

	fields := baseFields(msg, "", requestID)
	fields["body_len"] = meta.BodyLen
	if meta.BodySHA != "" {
		fields["body_sha256"] = meta.BodySHA
	}
	if event == "worker.conversion.decode_failed" {
		fields["error"] = err.Error()
	}
	telemetry.Error(event, fields)

	if w.delete(ctx, msg, "", requestID) {
		metrics.IncWorkerJobsDeletedUnrecoverable()
	}
}

func (w *worker) delete(ctx context.Context, msg sqstypes.Message, jobID, requestID string) bool {
	receipt := aws.ToString(msg.ReceiptHandle)
	fields := baseFields(msg, jobID, requestID)
	if receipt == "" {
		fields["error"] = "missing receipt handle"
		telemetry.Error("worker.conversion.delete_failed", fields)
		return false
	}
	if _, err := w.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(w.queueURL),
		ReceiptHandle: aws.String(receipt),
	}); err != nil {
		fields["error"] = err.Error()
		telemetry.Error("worker.conversion.delete_failed", fields)
		return false
	}
	return true
}

func baseFields(msg sqstypes.Message, jobID, requestID string) map[string]any {
	fields := map[string]any{
		"job_id":         jobID,
		"sqs_message_id": aws.ToString(msg.MessageId),
		"receive_count":  receiveCount(msg),
	}
	if strings.TrimSpace(requestID) != "" {
		fields["request_id"] = requestID
	}
	return fields
}

func receiveCount(msg sqstypes.Message) int {
	parsed, err := strconv.Atoi(msg.Attributes["ApproximateReceiveCount"])
	if err != nil {
		return 0
	}
	return parsed
}

func envInt(key string, def int) int {
	val, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return val
}
