package render

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"disc-report/internal/shared/storage/object/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

const fakePDF = "%PDF-1.4\nfake\n%%EOF"

type fakeService struct {
	srv          *httptest.Server
	renderCalls  atomic.Int32
	statuses     []int
	lastRequest  renderRequest
	lastEndpoint string
}

// newFakeService answers render calls with statuses in order, then 200.
func newFakeService(t *testing.T, statuses ...int) *fakeService {
	t.Helper()
	fs := &fakeService{statuses: statuses}
	mux := http.NewServeMux()
	handler := func(w http.ResponseWriter, r *http.Request) {
		n := int(fs.renderCalls.Add(1))
		if r.Header.Get("Authorization") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fs.lastEndpoint = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&fs.lastRequest)
		if n <= len(fs.statuses) {
			w.WriteHeader(fs.statuses[n-1])
			_, _ = w.Write([]byte(`{"Success":false,"Error":"busy"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"Success": true, "FileUrl": fs.srv.URL + "/files/out.pdf"})
	}
	mux.HandleFunc(htmlPath, handler)
	mux.HandleFunc(urlPath, handler)
	mux.HandleFunc("/files/out.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte(fakePDF))
	})
	fs.srv = httptest.NewServer(mux)
	t.Cleanup(fs.srv.Close)
	return fs
}

func newTestRemote(t *testing.T, baseURL string, store RemoteStore, delays *[]time.Duration) *RemoteRenderer {
	t.Helper()
	r, err := NewRemote(RemoteConfig{
		BaseURL:          baseURL + "/",
		APIKey:           "test-key",
		MaxAttempts:      3,
		BackoffBase:      100 * time.Millisecond,
		BackoffMax:       250 * time.Millisecond,
		InlineLimitBytes: 64,
	}, store)
	require.NoError(t, err)
	r.httpClient = &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	r.sleep = func(ctx context.Context, d time.Duration) error {
		if delays != nil {
			*delays = append(*delays, d)
		}
		return ctx.Err()
	}
	return r
}

func TestRemoteRenderInline(t *testing.T) {
	svc := newFakeService(t)
	r := newTestRemote(t, svc.srv.URL, nil, nil)

	pdf, err := r.RenderPage(context.Background(), "<p>hi</p>")
	require.NoError(t, err)
	assert.Equal(t, fakePDF, string(pdf))
	assert.Equal(t, htmlPath, svc.lastEndpoint)
	assert.Equal(t, "<p>hi</p>", svc.lastRequest.HTML)
	assert.Equal(t, 8.268, svc.lastRequest.Options.PaperWidth)
	assert.Equal(t, 11.693, svc.lastRequest.Options.PaperHeight)
	assert.Zero(t, svc.lastRequest.Options.MarginTop)
	assert.True(t, svc.lastRequest.Options.PrintBackground)
}

func TestRemoteRetriesServerErrors(t *testing.T) {
	svc := newFakeService(t, http.StatusServiceUnavailable, http.StatusBadGateway)
	var delays []time.Duration
	r := newTestRemote(t, svc.srv.URL, nil, &delays)

	pdf, err := r.RenderPage(context.Background(), "<p>hi</p>")
	require.NoError(t, err)
	assert.Equal(t, fakePDF, string(pdf))
	assert.EqualValues(t, 3, svc.renderCalls.Load())
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, delays)
}

func TestRemoteGivesUpAfterMaxAttempts(t *testing.T) {
	svc := newFakeService(t, 500, 500, 500, 500)
	r := newTestRemote(t, svc.srv.URL, nil, nil)

	_, err := r.RenderPage(context.Background(), "<p>hi</p>")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 500, se.Code)
	assert.ErrorIs(t, err, ErrRenderFailed)
	assert.EqualValues(t, 3, svc.renderCalls.Load())
}

func TestRemoteDoesNotRetryClientErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{name: "bad request", status: http.StatusBadRequest},
		{name: "payload too large", status: http.StatusRequestEntityTooLarge},
		{name: "not implemented", status: http.StatusNotImplemented},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			svc := newFakeService(t, tt.status)
			r := newTestRemote(t, svc.srv.URL, nil, nil)

			_, err := r.RenderPage(context.Background(), "<p>hi</p>")
			var se *StatusError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.status, se.Code)
			assert.EqualValues(t, 1, svc.renderCalls.Load())
		})
	}
}

func TestRemoteRetriesClientTimeout(t *testing.T) {
	var calls atomic.Int32
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc(htmlPath, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			select {
			case <-time.After(300 * time.Millisecond):
			case <-r.Context().Done():
			}
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"Success": true, "FileUrl": srv.URL + "/files/out.pdf"})
	})
	mux.HandleFunc("/files/out.pdf", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(fakePDF))
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	var delays []time.Duration
	r := newTestRemote(t, srv.URL, nil, &delays)
	r.httpClient.Timeout = 100 * time.Millisecond

	pdf, err := r.RenderPage(context.Background(), "<p>hi</p>")
	require.NoError(t, err)
	assert.Equal(t, fakePDF, string(pdf))
	assert.EqualValues(t, 2, calls.Load())
	assert.Equal(t, []time.Duration{100 * time.Millisecond}, delays)
}

func TestRemoteDoesNotRetryCancelledContext(t *testing.T) {
	svc := newFakeService(t)
	r := newTestRemote(t, svc.srv.URL, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.RenderPage(ctx, "<p>hi</p>")
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
	assert.Zero(t, svc.renderCalls.Load())
}

func TestRemoteURLModeForLargeHTML(t *testing.T) {
	svc := newFakeService(t)
	store := memory.New()
	r := newTestRemote(t, svc.srv.URL, store, nil)

	html := "<p>" + strings.Repeat("x", 200) + "</p>"
	pdf, err := r.RenderPage(context.Background(), html)
	require.NoError(t, err)
	assert.Equal(t, fakePDF, string(pdf))
	assert.Equal(t, urlPath, svc.lastEndpoint)
	assert.Empty(t, svc.lastRequest.HTML)
	assert.True(t, strings.HasPrefix(svc.lastRequest.URL, "memory://render-tmp/"), svc.lastRequest.URL)
	assert.Equal(t, 1, store.Puts())
	assert.Empty(t, store.Keys(), "temporary html must be removed")
}

func TestBackoffIsCapped(t *testing.T) {
	t.Parallel()

	r := &RemoteRenderer{cfg: RemoteConfig{BackoffBase: time.Second, BackoffMax: 5 * time.Second}}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 1, want: time.Second},
		{attempt: 2, want: 2 * time.Second},
		{attempt: 3, want: 4 * time.Second},
		{attempt: 4, want: 5 * time.Second},
		{attempt: 10, want: 5 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, r.backoff(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestNewRemoteRequiresSettings(t *testing.T) {
	t.Parallel()

	_, err := NewRemote(RemoteConfig{APIKey: "k"}, nil)
	assert.Error(t, err)
	_, err = NewRemote(RemoteConfig{BaseURL: "http://x"}, nil)
	assert.Error(t, err)
}

func TestStatusErrorRetryable(t *testing.T) {
	t.Parallel()

	assert.True(t, IsRetryable(&StatusError{Code: 500}))
	assert.True(t, IsRetryable(fmt.Errorf("page 3: %w", &TimeoutError{Stage: "request", Err: errors.New("Client.Timeout exceeded")})))
	assert.False(t, IsRetryable(errors.New("connection refused")))
	assert.True(t, IsRetryable(&StatusError{Code: 504}))
	assert.False(t, IsRetryable(&StatusError{Code: 501}))
	assert.False(t, IsRetryable(&StatusError{Code: 429}))
	assert.False(t, IsRetryable(errors.New("dial tcp: refused")))
}
