package render

import (
	"context"
	"errors"
	"fmt"
)

// Renderer turns one self-contained HTML page into a single-page PDF.
type Renderer interface {
	RenderPage(ctx context.Context, html string) ([]byte, error)
	Name() string
}

type pageSize struct {
	WidthMM           float64
	HeightMM          float64
	WidthIn           float64
	HeightIn          float64
	Margin            float64
	PrintBackground   bool
	PreferCSSPageSize bool
	ViewportWidthPx   int
	ViewportHeightPx  int
}

// PageSize is the physical page every renderer prints to. Both backends use
// it so merged output lines up.
var PageSize = pageSize{
	WidthMM:           210,
	HeightMM:          297,
	WidthIn:           8.268,
	HeightIn:          11.693,
	Margin:            0,
	PrintBackground:   true,
	PreferCSSPageSize: true,
	ViewportWidthPx:   794,
	ViewportHeightPx:  1123,
}

var (
	// ErrRenderFailed wraps every renderer failure.
	ErrRenderFailed = errors.New("render failed")

	// ErrEmptyPDF indicates the backend returned no bytes.
	ErrEmptyPDF = errors.New("renderer returned an empty pdf")
)

// ErrorCodeRender is the API error code for rendering failures.
const ErrorCodeRender = "render_error"

// StatusError is a non-2xx answer from the remote rendering service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("render service status %d", e.Code)
	}
	return fmt.Sprintf("render service status %d: %s", e.Code, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrRenderFailed }

// Retryable reports whether the status warrants another attempt.
func (e *StatusError) Retryable() bool {
	return e.Code >= 500 && e.Code != 501
}

// TimeoutError is a single remote call that ran past the HTTP client
// timeout while the caller's context was still live.
type TimeoutError struct {
	Stage string
	Err   error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("render %s timeout: %v", e.Stage, e.Err)
}

func (e *TimeoutError) Unwrap() error { return ErrRenderFailed }

// IsRetryable reports whether err is a 5xx status (501 excluded) or a client
// timeout.
func IsRetryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	var te *TimeoutError
	return errors.As(err, &te)
}
