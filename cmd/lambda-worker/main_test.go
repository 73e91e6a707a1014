package main

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"disc-report/internal/attempts"
	"disc-report/internal/generation"
)

type scriptedProcessor map[string]struct {
	res generation.Result
	err error
}

func (s scriptedProcessor) Process(ctx context.Context, attemptID string) (generation.Result, error) {
	out := s[attemptID]
	return out.res, out.err
}

func TestProcessBatchReportsOnlyRetryableFailures(t *testing.T) {
	proc := scriptedProcessor{
		"ok":      {res: generation.Result{Status: attempts.StatusDone}},
		"busy":    {res: generation.Result{Status: attempts.StatusProcessing}},
		"broken":  {err: errors.New("render service down")},
		"missing": {err: generation.ErrNotFound},
	}
	event := events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "1", Body: `{"attemptId":"ok"}`},
		{MessageId: "2", Body: `{"attemptId":"busy"}`},
		{MessageId: "3", Body: `{"attemptId":"broken"}`},
		{MessageId: "4", Body: `{"attemptId":"missing"}`},
		{MessageId: "5", Body: `not json`},
	}}

	resp := processBatch(context.Background(), proc, event)

	got := map[string]bool{}
	for _, f := range resp.BatchItemFailures {
		got[f.ItemIdentifier] = true
	}
	if len(got) != 2 || !got["2"] || !got["3"] {
		t.Fatalf("expected failures for 2 and 3, got %v", resp.BatchItemFailures)
	}
}
