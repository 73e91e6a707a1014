package main

// Build the Lambda handler binary:
//   GOOS=linux GOARCH=amd64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-worker
// Enable ReportBatchItemFailures on the SQS event source mapping.

import (
	"context"
	"errors"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"disc-report/internal/bootstrap"
	"disc-report/internal/shared/config"
	"disc-report/internal/shared/metrics"
	"disc-report/internal/shared/telemetry"
	"disc-report/internal/workerproc"
)

var (
	appMu sync.Mutex
	app   *bootstrap.App
)

// loadApp builds the app on first use and retries after a failed build.
func loadApp(ctx context.Context) (*bootstrap.App, error) {
	appMu.Lock()
	defer appMu.Unlock()
	if app != nil {
		return app, nil
	}
	built, err := bootstrap.BuildContext(ctx, config.Load())
	if err != nil {
		return nil, err
	}
	app = built
	return app, nil
}

func handler(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	a, err := loadApp(ctx)
	if err != nil {
		telemetry.Error("lambda.bootstrap_failed", map[string]any{"error": err})
		failures := make([]events.SQSBatchItemFailure, 0, len(event.Records))
		for _, record := range event.Records {
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
		return events.SQSEventResponse{BatchItemFailures: failures}, nil
	}
	return processBatch(ctx, a.Generation, event), nil
}

// processBatch reports retryable records as batch item failures. Records
// that can never succeed are logged and acknowledged.
func processBatch(ctx context.Context, processor workerproc.Processor, event events.SQSEvent) events.SQSEventResponse {
	failures := make([]events.SQSBatchItemFailure, 0)
	for _, record := range event.Records {
		metrics.IncJobsReceived()
		err := workerproc.HandleMessage(ctx, processor, record.Body)
		if err == nil {
			metrics.IncJobsCompleted()
			continue
		}
		fields := map[string]any{"sqs_message_id": record.MessageId, "error": err.Error()}
		var busy workerproc.ErrBusy
		switch {
		case errors.As(err, &busy):
			metrics.IncJobsDeferred()
			telemetry.Info("worker.generation.deferred", fields)
		case workerproc.Permanent(err):
			metrics.IncJobsDropped()
			telemetry.Error("worker.generation.unrecoverable", fields)
			continue
		default:
			metrics.IncJobsFailed()
			telemetry.Error("worker.generation.failed", fields)
		}
		failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
	}
	return events.SQSEventResponse{BatchItemFailures: failures}
}

func main() {
	lambda.Start(handler)
}
