package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var (
	conversionStartedTotal   atomic.Uint64
	conversionCompletedTotal atomic.Uint64
	debitInconsistencyTotal  atomic.Uint64
	tokensDebitedTotal       atomic.Uint64

	workerJobsReceivedTotal      atomic.Uint64
	workerJobsCompletedTotal     atomic.Uint64
	workerJobsFailedTotal        atomic.Uint64
	workerJobsDeletedUnrecovered atomic.Uint64
)

var (
	conversionFailedTotal = newLabeledCounter()
	conversionDuration    = newHistogram([]float64{1000, 5000, 15000, 30000, 60000, 120000, 300000})
	voiceRequestDuration  = newHistogram([]float64{250, 500, 1000, 2500, 5000, 10000, 30000, 60000})
)

// IncConversionStarted counts a pipeline leaving idle.
func IncConversionStarted() {
	conversionStartedTotal.Add(1)
}

// IncConversionCompleted counts a pipeline reaching complete.
func IncConversionCompleted() {
	conversionCompletedTotal.Add(1)
}

// IncConversionFailed counts a pipeline failure at the given stage.
func IncConversionFailed(stage string) {
	conversionFailedTotal.Inc(stage)
}

// IncDebitInconsistency counts audio delivered without a matching debit.
func IncDebitInconsistency() {
	debitInconsistencyTotal.Add(1)
}

// AddTokensDebited adds debited tokens to the running total.
func AddTokensDebited(n int) {
	if n > 0 {
		tokensDebitedTotal.Add(uint64(n))
	}
}

// ObserveConversionDurationMs records an end-to-end conversion duration.
func ObserveConversionDurationMs(value float64) {
	conversionDuration.Observe(max(value, 0))
}

// ObserveVoiceRequestDurationMs records one synthesis request duration.
func ObserveVoiceRequestDurationMs(value float64) {
	voiceRequestDuration.Observe(max(value, 0))
}

// IncWorkerJobsReceived counts queue messages picked up by a worker.
func IncWorkerJobsReceived() {
	workerJobsReceivedTotal.Add(1)
}

// IncWorkerJobsCompleted counts queue messages processed and deleted.
func IncWorkerJobsCompleted() {
	workerJobsCompletedTotal.Add(1)
}

// IncWorkerJobsFailed counts queue messages left for redelivery.
func IncWorkerJobsFailed() {
	workerJobsFailedTotal.Add(1)
}

// IncWorkerJobsDeletedUnrecoverable counts malformed messages dropped.
func IncWorkerJobsDeletedUnrecoverable() {
	workerJobsDeletedUnrecovered.Add(1)
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
	writeCounter(&buf, "conversion_started_total", "Total conversions started", conversionStartedTotal.Load())
	writeCounter(&buf, "conversion_completed_total", "Total conversions completed", conversionCompletedTotal.Load())
	writeLabeledCounter(&buf, "conversion_failed_total", "Total conversions failed by stage", "stage", conversionFailedTotal.Snapshot())
	writeCounter(&buf, "conversion_debit_inconsistency_total", "Audio delivered whose token debit failed", debitInconsistencyTotal.Load())
	writeCounter(&buf, "tokens_debited_total", "Total tokens debited", tokensDebitedTotal.Load())
	writeCounter(&buf, "worker_jobs_received_total", "Total queue messages received", workerJobsReceivedTotal.Load())
	writeCounter(&buf, "worker_jobs_completed_total", "Total queue messages completed", workerJobsCompletedTotal.Load())
	writeCounter(&buf, "worker_jobs_failed_total", "Total queue messages failed", workerJobsFailedTotal.Load())
	writeCounter(&buf, "worker_jobs_deleted_unrecoverable_total", "Total malformed queue messages deleted", workerJobsDeletedUnrecovered.Load())
	writeHistogram(&buf, "conversion_duration_ms", "Conversion duration in milliseconds", conversionDuration.Snapshot())
	writeHistogram(&buf, "voice_request_duration_ms", "Voice synthesis request duration in milliseconds", voiceRequestDuration.Snapshot())
	return buf.String()
}

type labeledCounter struct {
	mu     sync.Mutex
	values map[string]uint64
}

func newLabeledCounter() *labeledCounter {
	return &labeledCounter{values: make(map[string]uint64)}
}

func (l *labeledCounter) Inc(label string) {
	l.mu.Lock()
	l.values[label]++
	l.mu.Unlock()
}

func (l *labeledCounter) Snapshot() map[string]uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]uint64, len(l.values))
	for k, v := range l.values {
		out[k] = v
	}
	return out
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

// Observe records value in the first bucket that holds it; Render accumulates.
func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			return
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

func writeLabeledCounter(buf *bytes.Buffer, name, help, label string, values map[string]uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(buf, "%s{%s=%q} %d\n", name, label, k, values[k])
	}
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
