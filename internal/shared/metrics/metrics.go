package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

var (
	generationStartedTotal   atomic.Uint64
	generationCompletedTotal atomic.Uint64
	generationFailedTotal    atomic.Uint64
	generationCachedTotal    atomic.Uint64
	generationContendedTotal atomic.Uint64
	renderRetriesTotal       atomic.Uint64
	emailsSentTotal          atomic.Uint64
	emailsFailedTotal        atomic.Uint64
	documentsExpiredTotal    atomic.Uint64
	jobsReceivedTotal        atomic.Uint64
	jobsCompletedTotal       atomic.Uint64
	jobsFailedTotal          atomic.Uint64
	jobsDeferredTotal        atomic.Uint64
	jobsDroppedTotal         atomic.Uint64
	rateLimitedTotal         atomic.Uint64

	generationDuration = newHistogram([]float64{1000, 2500, 5000, 10000, 20000, 30000, 60000, 90000, 150000})
)

// IncGenerationStarted counts a claimed generation.
func IncGenerationStarted() { generationStartedTotal.Add(1) }

// IncGenerationCompleted counts a stored document.
func IncGenerationCompleted() { generationCompletedTotal.Add(1) }

// IncGenerationFailed counts a generation that ended in failed.
func IncGenerationFailed() { generationFailedTotal.Add(1) }

// IncGenerationCached counts a finish call answered from an existing document.
func IncGenerationCached() { generationCachedTotal.Add(1) }

// IncGenerationContended counts a finish call that lost the claim.
func IncGenerationContended() { generationContendedTotal.Add(1) }

// IncRenderRetry counts a retried render request.
func IncRenderRetry() { renderRetriesTotal.Add(1) }

// IncEmailSent counts one delivered email.
func IncEmailSent() { emailsSentTotal.Add(1) }

// IncEmailFailed counts one failed email.
func IncEmailFailed() { emailsFailedTotal.Add(1) }

// IncDocumentExpired counts a document removed by retention cleanup.
func IncDocumentExpired() { documentsExpiredTotal.Add(1) }

// IncJobsReceived counts a queue message picked up by a worker.
func IncJobsReceived() { jobsReceivedTotal.Add(1) }

// IncJobsCompleted counts a queue message processed and deleted.
func IncJobsCompleted() { jobsCompletedTotal.Add(1) }

// IncJobsFailed counts a queue message left for redelivery after an error.
func IncJobsFailed() { jobsFailedTotal.Add(1) }

// IncJobsDeferred counts a queue message postponed because another holder
// owns the generation.
func IncJobsDeferred() { jobsDeferredTotal.Add(1) }

// IncJobsDropped counts an unprocessable queue message that was deleted.
func IncJobsDropped() { jobsDroppedTotal.Add(1) }

// IncRateLimited counts a request rejected with 429.
func IncRateLimited() { rateLimitedTotal.Add(1) }

// ObserveGenerationDurationMs records a generation duration in milliseconds.
func ObserveGenerationDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	generationDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "report_generation_started_total", "Report generations started", generationStartedTotal.Load())
	writeCounter(&buf, "report_generation_completed_total", "Report generations completed", generationCompletedTotal.Load())
	writeCounter(&buf, "report_generation_failed_total", "Report generations failed", generationFailedTotal.Load())
	writeCounter(&buf, "report_generation_cached_total", "Finish calls served from a stored document", generationCachedTotal.Load())
	writeCounter(&buf, "report_generation_contended_total", "Finish calls that found a generation in progress", generationContendedTotal.Load())
	writeCounter(&buf, "report_render_retries_total", "Remote render retries", renderRetriesTotal.Load())
	writeCounter(&buf, "report_emails_sent_total", "Report emails sent", emailsSentTotal.Load())
	writeCounter(&buf, "report_emails_failed_total", "Report emails failed", emailsFailedTotal.Load())
	writeCounter(&buf, "report_documents_expired_total", "Stored documents removed after retention", documentsExpiredTotal.Load())
	writeCounter(&buf, "report_jobs_received_total", "Generation jobs received by workers", jobsReceivedTotal.Load())
	writeCounter(&buf, "report_jobs_completed_total", "Generation jobs completed by workers", jobsCompletedTotal.Load())
	writeCounter(&buf, "report_jobs_failed_total", "Generation jobs left for redelivery", jobsFailedTotal.Load())
	writeCounter(&buf, "report_jobs_deferred_total", "Generation jobs postponed during contention", jobsDeferredTotal.Load())
	writeCounter(&buf, "report_jobs_dropped_total", "Unprocessable generation jobs deleted", jobsDroppedTotal.Load())
	writeCounter(&buf, "report_http_rate_limited_total", "Requests rejected by the rate limiter", rateLimitedTotal.Load())
	writeHistogram(&buf, "report_generation_duration_ms", "Report generation duration in milliseconds", generationDuration.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

// Observe records value in the first bucket that holds it; counts are
// accumulated when rendering.
func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			break
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// SinceMillis returns the elapsed time since start in milliseconds.
func SinceMillis(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}
