// Package metrics is a tiny instrumentation facade.
//
// Callers record events through package-level helpers; where the numbers go
// is decided once at startup via SetBackend. The default backend discards
// everything, so library code can instrument unconditionally.
package metrics

import (
	"sync/atomic"
	"time"
)

// Labels are free-form metric dimensions (format, status, job).
type Labels map[string]string

// Backend receives recorded metrics. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Flusher is implemented by backends that buffer before submitting.
type Flusher interface {
	Flush() error
}

// Metric names understood by the shipped backends. Backends ignore names
// they do not know.
const (
	MetricDetectTotal           = "detect_total"
	MetricDetectDurationSeconds = "detect_duration_seconds"
	MetricDetectBytesFetched    = "detect_bytes_fetched"
	MetricHTTPRequestsTotal     = "http_requests_total"
	MetricHTTPErrorsTotal       = "http_errors_total"
	MetricHTTPDurationSeconds   = "http_request_duration_seconds"
	MetricHTTPDownloadBytes     = "http_download_bytes"
)

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}

// backendBox gives atomic.Value a single concrete type to store; storing
// bare Backend values would panic once two different implementations are
// installed over the process lifetime.
type backendBox struct{ b Backend }

var current atomic.Value // backendBox

func init() {
	current.Store(backendBox{nopBackend{}})
}

// SetBackend installs b for the rest of the process. Passing nil restores
// the discarding default.
func SetBackend(b Backend) {
	if b == nil {
		b = nopBackend{}
	}
	current.Store(backendBox{b})
}

func backend() Backend {
	return current.Load().(backendBox).b
}

// Flush forces buffered backends to submit. No-op for the default backend.
func Flush() error {
	if f, ok := backend().(Flusher); ok {
		return f.Flush()
	}
	return nil
}

// IncCounter forwards a counter increment to the installed backend.
func IncCounter(name string, delta float64, labels Labels) {
	backend().IncCounter(name, delta, labels)
}

// ObserveHistogram forwards a histogram observation to the installed backend.
func ObserveHistogram(name string, value float64, labels Labels) {
	backend().ObserveHistogram(name, value, labels)
}

// RecordDetection records one schema-detection attempt. status is "ok" or
// "failed"; format is the dispatched format name.
func RecordDetection(format, status string, dur time.Duration, bytesFetched int64) {
	l := Labels{"format": format, "status": status}
	IncCounter(MetricDetectTotal, 1, l)
	ObserveHistogram(MetricDetectDurationSeconds, dur.Seconds(), l)
	ObserveHistogram(MetricDetectBytesFetched, float64(bytesFetched), l)
}

// RecordHTTP records one outbound request. status is the HTTP status code as
// a string, or "error" when the transport failed before a status existed.
func RecordHTTP(status string, isError bool, dur time.Duration, downloadBytes int64) {
	l := Labels{"status": status}
	IncCounter(MetricHTTPRequestsTotal, 1, l)
	if isError {
		IncCounter(MetricHTTPErrorsTotal, 1, l)
	}
	ObserveHistogram(MetricHTTPDurationSeconds, dur.Seconds(), l)
	if downloadBytes > 0 {
		ObserveHistogram(MetricHTTPDownloadBytes, float64(downloadBytes), l)
	}
}
