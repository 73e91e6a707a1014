package main

// Build the Lambda handler binary:
//   GOOS=linux GOARCH=arm64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-http
// The local renderer needs a Chromium layer; set RENDERER=remote otherwise.

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"

	"disc-report/internal/bootstrap"
	"disc-report/internal/shared/config"
	"disc-report/internal/shared/server/respond"
	"disc-report/internal/shared/telemetry"
)

// proxy builds the router on first use. A failed build is retried on the
// next invocation rather than poisoning the warm container.
type proxy struct {
	build func(ctx context.Context) (*gin.Engine, error)

	mu      sync.Mutex
	adapter *ginadapter.GinLambdaV2
}

func (p *proxy) get(ctx context.Context) (*ginadapter.GinLambdaV2, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.adapter != nil {
		return p.adapter, nil
	}
	router, err := p.build(ctx)
	if err != nil {
		return nil, err
	}
	p.adapter = ginadapter.NewV2(router)
	return p.adapter, nil
}

func (p *proxy) handle(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	adapter, err := p.get(ctx)
	if err != nil {
		telemetry.Error("lambda.bootstrap_failed", map[string]any{"error": err})
		body, _ := json.Marshal(respond.ErrorResponse{Error: respond.ErrorBody{Code: "internal", Message: "service unavailable"}})
		return events.APIGatewayV2HTTPResponse{
			StatusCode: http.StatusServiceUnavailable,
			Body:       string(body),
			Headers:    map[string]string{"Content-Type": "application/json", "Retry-After": "5"},
		}, nil
	}
	return adapter.ProxyWithContext(ctx, req)
}

func main() {
	p := &proxy{build: func(ctx context.Context) (*gin.Engine, error) {
		app, err := bootstrap.BuildContext(ctx, config.Load())
		if err != nil {
			return nil, err
		}
		return app.Router, nil
	}}
	lambda.Start(p.handle)
}
