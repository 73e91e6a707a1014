package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"disc-report/internal/shared/metrics"
	"disc-report/internal/shared/storage/object"
	"disc-report/internal/shared/telemetry"
)

const (
	htmlPath = "/chrome/pdf/html"
	urlPath  = "/chrome/pdf/url"

	tempPrefix = "render-tmp/"
	maxErrBody = 2048
)

// RemoteConfig configures the HTTP rendering service client.
type RemoteConfig struct {
	BaseURL     string
	APIKey      string
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	HTTPTimeout time.Duration
	// Delay asks the service to wait before printing so web fonts settle.
	Delay time.Duration
	// InlineLimitBytes switches to URL mode for larger documents.
	InlineLimitBytes int
	SignedURLTTL     time.Duration
}

// RemoteStore is the storage used for URL mode uploads.
type RemoteStore interface {
	object.ObjectStore
	object.Signer
}

// RemoteRenderer posts pages to an external rendering service.
type RemoteRenderer struct {
	cfg        RemoteConfig
	httpClient *http.Client
	store      RemoteStore
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewRemote constructs a RemoteRenderer. store may be nil, in which case
// every page is posted inline.
func NewRemote(cfg RemoteConfig, store RemoteStore) (*RemoteRenderer, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("RENDER_API_URL is required for the remote renderer")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("RENDER_API_KEY is required for the remote renderer")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 8 * time.Second
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 120 * time.Second
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = 5 * time.Minute
	}
	return &RemoteRenderer{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		store:      store,
		sleep:      sleepCtx,
	}, nil
}

// Name identifies the backend in logs.
func (r *RemoteRenderer) Name() string { return "remote" }

type printOptions struct {
	PaperWidth        float64 `json:"paperWidth"`
	PaperHeight       float64 `json:"paperHeight"`
	MarginTop         float64 `json:"marginTop"`
	MarginBottom      float64 `json:"marginBottom"`
	MarginLeft        float64 `json:"marginLeft"`
	MarginRight       float64 `json:"marginRight"`
	Scale             float64 `json:"scale"`
	PrintBackground   bool    `json:"printBackground"`
	PreferCSSPageSize bool    `json:"preferCSSPageSize"`
	Delay             int64   `json:"delay,omitempty"`
}

type renderRequest struct {
	HTML    string       `json:"html,omitempty"`
	URL     string       `json:"url,omitempty"`
	Options printOptions `json:"options"`
}

type renderResponse struct {
	FileURL      string `json:"FileUrl"`
	FileURLLower string `json:"fileUrl"`
	Success      *bool  `json:"Success,omitempty"`
	Error        string `json:"Error,omitempty"`
}

func (r *RemoteRenderer) options() printOptions {
	return printOptions{
		PaperWidth:        PageSize.WidthIn,
		PaperHeight:       PageSize.HeightIn,
		MarginTop:         PageSize.Margin,
		MarginBottom:      PageSize.Margin,
		MarginLeft:        PageSize.Margin,
		MarginRight:       PageSize.Margin,
		Scale:             1,
		PrintBackground:   PageSize.PrintBackground,
		PreferCSSPageSize: PageSize.PreferCSSPageSize,
		Delay:             r.cfg.Delay.Milliseconds(),
	}
}

// RenderPage posts html (or a signed URL to it) and downloads the result.
func (r *RemoteRenderer) RenderPage(ctx context.Context, html string) ([]byte, error) {
	req := renderRequest{HTML: html, Options: r.options()}
	endpoint := r.cfg.BaseURL + htmlPath

	if r.useURLMode(html) {
		key := tempPrefix + uuid.NewString() + ".html"
		if _, err := r.store.Save(ctx, key, strings.NewReader(html), object.SaveOptions{ContentType: "text/html; charset=utf-8"}); err != nil {
			return nil, fmt.Errorf("%w: upload html: %v", ErrRenderFailed, err)
		}
		defer func() {
			// The request context may already be done; cleanup must still run.
			if err := r.store.Delete(context.WithoutCancel(ctx), key); err != nil {
				telemetry.Warn("render.temp_cleanup_failed", map[string]any{"key": key, "error": err})
			}
		}()
		signed, err := r.store.SignedURL(ctx, key, r.cfg.SignedURLTTL)
		if err != nil {
			return nil, fmt.Errorf("%w: sign html url: %v", ErrRenderFailed, err)
		}
		req = renderRequest{URL: signed, Options: r.options()}
		endpoint = r.cfg.BaseURL + urlPath
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	var fileURL string
	err = r.withRetry(ctx, "render", func() error {
		var callErr error
		fileURL, callErr = r.postRender(ctx, endpoint, payload)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	var pdf []byte
	err = r.withRetry(ctx, "download", func() error {
		var callErr error
		pdf, callErr = r.download(ctx, fileURL)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return pdf, nil
}

func (r *RemoteRenderer) useURLMode(html string) bool {
	return r.store != nil && r.cfg.InlineLimitBytes > 0 && len(html) > r.cfg.InlineLimitBytes
}

// withRetry runs fn until it succeeds, fails with a non-retryable error or
// the attempt budget is spent. Delays double from BackoffBase up to
// BackoffMax.
func (r *RemoteRenderer) withRetry(ctx context.Context, stage string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !IsRetryable(err) || attempt == r.cfg.MaxAttempts {
			return err
		}
		delay := r.backoff(attempt)
		metrics.IncRenderRetry()
		telemetry.Warn("render.retry", map[string]any{
			"stage":   stage,
			"attempt": attempt,
			"delayMs": delay.Milliseconds(),
			"error":   err,
		})
		if sleepErr := r.sleep(ctx, delay); sleepErr != nil {
			return fmt.Errorf("%w: %v (last error: %v)", ErrRenderFailed, sleepErr, err)
		}
	}
	return err
}

func (r *RemoteRenderer) backoff(attempt int) time.Duration {
	delay := r.cfg.BackoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= r.cfg.BackoffMax {
			return r.cfg.BackoffMax
		}
	}
	if delay > r.cfg.BackoffMax {
		return r.cfg.BackoffMax
	}
	return delay
}

func (r *RemoteRenderer) postRender(ctx context.Context, endpoint string, payload []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", r.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return "", transportError(ctx, "request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrRenderFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{Code: resp.StatusCode, Body: truncate(string(body), maxErrBody)}
	}

	var parsed renderResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: response parse: %v", ErrRenderFailed, err)
	}
	fileURL := parsed.FileURL
	if fileURL == "" {
		fileURL = parsed.FileURLLower
	}
	if fileURL == "" {
		return "", fmt.Errorf("%w: response missing FileUrl (%s)", ErrRenderFailed, parsed.Error)
	}
	return fileURL, nil
}

func (r *RemoteRenderer) download(ctx context.Context, fileURL string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError(ctx, "download", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	pdf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read pdf: %v", ErrRenderFailed, err)
	}
	if len(pdf) == 0 {
		return nil, ErrEmptyPDF
	}
	return pdf, nil
}

// transportError classifies a failed HTTP call. Only a client timeout is
// retryable; cancellation or the deadline of ctx itself ends the render.
func transportError(ctx context.Context, stage string, err error) error {
	var ne net.Error
	if ctx.Err() == nil && errors.As(err, &ne) && ne.Timeout() {
		return &TimeoutError{Stage: stage, Err: err}
	}
	return fmt.Errorf("%w: %s: %v", ErrRenderFailed, stage, err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
