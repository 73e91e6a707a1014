package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"disc-report/internal/bootstrap"
	"disc-report/internal/queue"
	"disc-report/internal/shared/config"
	"disc-report/internal/shared/metrics"
	"disc-report/internal/shared/telemetry"
	"disc-report/internal/workerproc"
)

const (
	defaultRegion = "us-east-1"
	// SQS caps a message's visibility timeout at 12 hours.
	maxVisibility = 12 * time.Hour
	receiveBatch  = 10
	longPoll      = 20
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config.Load()); err != nil {
		telemetry.Error("worker.exit", map[string]any{"error": err})
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	if cfg.QueueURL == "" {
		return errors.New("REPORT_SQS_QUEUE_URL is required")
	}
	region := cfg.AWSRegion
	if region == "" {
		region = defaultRegion
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}

	app, err := bootstrap.BuildContext(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			telemetry.Warn("worker.close_failed", map[string]any{"error": err})
		}
	}()

	p := &poller{
		client:      sqs.NewFromConfig(awsCfg),
		queueURL:    cfg.QueueURL,
		processor:   app.Generation,
		visibility:  cfg.QueueVisibility,
		concurrency: max(1, cfg.WorkerConcurrency),
	}

	var bg sync.WaitGroup
	if cfg.CleanupInterval > 0 {
		bg.Add(1)
		go func() {
			defer bg.Done()
			runCleanup(ctx, app.Generation, cfg.CleanupInterval, cfg.CleanupBatch)
		}()
	}

	telemetry.Info("worker.started", map[string]any{
		"queue":       cfg.QueueURL,
		"concurrency": p.concurrency,
		"visibility":  p.visibility.String(),
		"renderer":    app.Renderer.Name(),
	})
	p.run(ctx)

	telemetry.Info("worker.shutdown", map[string]any{"timeout": cfg.ShutdownTimeout.String()})
	if !waitTimeout(p.drain, cfg.ShutdownTimeout) {
		telemetry.Warn("worker.shutdown_timeout", map[string]any{"timeout": cfg.ShutdownTimeout.String()})
	}
	bg.Wait()
	return nil
}

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

// poller long-polls the queue and hands each message to the processor,
// holding at most concurrency messages in flight.
type poller struct {
	client      sqsAPI
	queueURL    string
	processor   workerproc.Processor
	visibility  time.Duration
	concurrency int

	inflight sync.WaitGroup
}

func (p *poller) run(ctx context.Context) {
	sem := make(chan struct{}, max(1, p.concurrency))
	for ctx.Err() == nil {
		resp, err := p.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:                    aws.String(p.queueURL),
			MaxNumberOfMessages:         receiveBatch,
			WaitTimeSeconds:             longPoll,
			VisibilityTimeout:           int32(p.visibility / time.Second),
			MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{sqstypes.MessageSystemAttributeNameApproximateReceiveCount},
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			telemetry.Error("worker.receive_failed", map[string]any{"error": err})
			continue
		}
		for _, msg := range resp.Messages {
			select {
			case <-ctx.Done():
				return
			case sem <- struct{}{}:
			}
			metrics.IncJobsReceived()
			p.inflight.Add(1)
			go func() {
				defer p.inflight.Done()
				defer func() { <-sem }()
				p.handle(ctx, msg)
			}()
		}
	}
}

func (p *poller) drain() { p.inflight.Wait() }

// handle processes one message. Success and permanent failures delete it, a
// busy attempt pushes its visibility out, anything else is left for redrive.
func (p *poller) handle(ctx context.Context, msg sqstypes.Message) {
	body := aws.ToString(msg.Body)
	decoded, meta, err := workerproc.ParseMessage(body)
	if err != nil {
		fields := messageFields(msg, queue.Message{})
		fields["body_len"] = meta.BodyLen
		if meta.BodySHA != "" {
			fields["body_sha256"] = meta.BodySHA
		}
		fields["error"] = err.Error()
		var missing workerproc.ErrMissingAttemptID
		if errors.As(err, &missing) {
			fields["request_id"] = missing.RequestID
			telemetry.Error("worker.generation.missing_id", fields)
		} else {
			telemetry.Error("worker.generation.decode_failed", fields)
		}
		if p.ack(ctx, msg, fields) {
			metrics.IncJobsDropped()
		}
		return
	}

	fields := messageFields(msg, decoded)
	telemetry.Info("worker.generation.received", fields)

	err = workerproc.HandleMessage(workerproc.WithParsedMessage(ctx, decoded), p.processor, body)
	var busy workerproc.ErrBusy
	switch {
	case err == nil:
		if p.ack(ctx, msg, fields) {
			telemetry.Info("worker.generation.completed", fields)
			metrics.IncJobsCompleted()
		}
	case errors.As(err, &busy):
		fields["retry_after_seconds"] = int(busy.RetryAfter / time.Second)
		telemetry.Info("worker.generation.deferred", fields)
		p.postpone(ctx, msg, busy.RetryAfter, fields)
		metrics.IncJobsDeferred()
	case workerproc.Permanent(err):
		fields["error"] = err.Error()
		telemetry.Error("worker.generation.unrecoverable", fields)
		if p.ack(ctx, msg, fields) {
			metrics.IncJobsDropped()
		}
	default:
		fields["error"] = err.Error()
		telemetry.Error("worker.generation.failed", fields)
		metrics.IncJobsFailed()
	}
}

func (p *poller) ack(ctx context.Context, msg sqstypes.Message, fields map[string]any) bool {
	receipt := aws.ToString(msg.ReceiptHandle)
	if receipt == "" {
		telemetry.Error("worker.generation.delete_failed", with(fields, "error", "missing receipt handle"))
		return false
	}
	if _, err := p.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(p.queueURL),
		ReceiptHandle: aws.String(receipt),
	}); err != nil {
		telemetry.Error("worker.generation.delete_failed", with(fields, "error", err.Error()))
		return false
	}
	return true
}

func (p *poller) postpone(ctx context.Context, msg sqstypes.Message, after time.Duration, fields map[string]any) {
	receipt := aws.ToString(msg.ReceiptHandle)
	if receipt == "" {
		return
	}
	after = min(max(after, time.Second), maxVisibility)
	if _, err := p.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(p.queueURL),
		ReceiptHandle:     aws.String(receipt),
		VisibilityTimeout: int32(after / time.Second),
	}); err != nil {
		telemetry.Warn("worker.generation.defer_failed", with(fields, "error", err.Error()))
	}
}

// cleaner is the retention sweep run alongside polling.
type cleaner interface {
	CleanupExpired(ctx context.Context, limit int) (int, error)
}

func runCleanup(ctx context.Context, c cleaner, every time.Duration, batch int) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep(ctx, c, batch)
		}
	}
}

func sweep(ctx context.Context, c cleaner, batch int) {
	if batch <= 0 {
		batch = 200
	}
	n, err := c.CleanupExpired(ctx, batch)
	if err != nil {
		telemetry.Error("worker.cleanup_failed", map[string]any{"error": err, "removed": n})
		return
	}
	if n > 0 {
		telemetry.Info("worker.cleanup", map[string]any{"removed": n})
	}
}

func waitTimeout(wait func(), timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	if timeout <= 0 {
		<-done
		return true
	}
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func messageFields(msg sqstypes.Message, parsed queue.Message) map[string]any {
	fields := map[string]any{
		"attempt_id":     parsed.AttemptID,
		"sqs_message_id": aws.ToString(msg.MessageId),
		"receive_count":  receiveCount(msg),
	}
	if parsed.RequestID != "" {
		fields["request_id"] = parsed.RequestID
	}
	return fields
}

func with(fields map[string]any, key string, val any) map[string]any {
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out[key] = val
	return out
}

func receiveCount(msg sqstypes.Message) int {
	n, _ := strconv.Atoi(msg.Attributes[string(sqstypes.MessageSystemAttributeNameApproximateReceiveCount)])
	return n
}
