package main

// Build the Lambda handler binary:
//   GOOS=linux GOARCH=amd64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-worker

import (
	"context"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"narrate-backend/internal/bootstrap"
	"narrate-backend/internal/shared/config"
	"narrate-backend/internal/shared/metrics"
	"narrate-backend/internal/shared/telemetry"
	"narrate-backend/internal/workerproc"
)

type sqsHandler func(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error)

// newHandler reports only retryable records as batch failures; malformed
// bodies are acknowledged so they do not cycle until the DLQ.
func newHandler(processor workerproc.JobProcessor) sqsHandler {
	return func(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
		var failures []events.SQSBatchItemFailure
		for _, record := range event.Records {
			metrics.IncWorkerJobsReceived()
			fields := map[string]any{"sqs_message_id": record.MessageId}

			err := workerproc.HandleMessage(ctx, processor, record.Body)
			switch {
			case err == nil:
				metrics.IncWorkerJobsCompleted()
			case workerproc.Retryable(err):
				fields["error"] = err.Error()
				telemetry.Error("worker.conversion.failed", fields)
				metrics.IncWorkerJobsFailed()
				failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
			default:
				fields["error"] = err.Error()
				telemetry.Error("worker.conversion.dropped", fields)
				metrics.IncWorkerJobsDeletedUnrecoverable()
			}
		}
		return events.SQSEventResponse{BatchItemFailures: failures}, nil
	}
}

func failAll(event events.SQSEvent) events.SQSEventResponse {
	failures := make([]events.SQSBatchItemFailure, 0, len(event.Records))
	for _, record := range event.Records {
		failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
	}
	return events.SQSEventResponse{BatchItemFailures: failures}
}

var (
	initOnce sync.Once
	initErr  error
	handle   sqsHandler
)

func initApp() {
	app, err := bootstrap.Build(config.Load())
	if err != nil {
		initErr = err
		return
	}
	handle = newHandler(app.ConversionProcessor)
}

func handler(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	initOnce.Do(initApp)
	if initErr != nil {
		telemetry.Error("worker.bootstrap_failed", map[string]any{"error": initErr.Error(), "records": len(event.Records)})
		return failAll(event), initErr
	}
	return handle(ctx, event)
}

func main() {
	lambda.Start(handler)
}
