// Package metrics records run counters on a private Prometheus registry and
// pushes them to a Pushgateway when the batch finishes.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/Lllllllleong/pdfassetmigrator/internal/models"
)

// Recorder holds the collectors for one run.
type Recorder struct {
	registry       *prometheus.Registry
	recordsScanned prometheus.Counter
	assets         *prometheus.CounterVec
	bytes          *prometheus.CounterVec
	duration       prometheus.Histogram
}

// NewRecorder registers the run collectors on a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		recordsScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pdf_compressor_records_scanned_total",
			Help: "Records read from the record store",
		}),
		assets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pdf_compressor_assets_total",
			Help: "Attempted assets by final status",
		}, []string{"status"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pdf_compressor_bytes_total",
			Help: "Bytes of done assets before and after compression",
		}, []string{"kind"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pdf_compressor_asset_duration_seconds",
			Help:    "End-to-end processing time per attempted asset",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
	}
	r.registry.MustRegister(r.recordsScanned, r.assets, r.bytes, r.duration)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// RecordsScanned adds n scanned records.
func (r *Recorder) RecordsScanned(n int) {
	r.recordsScanned.Add(float64(n))
}

// ObserveOutcome counts one attempted asset.
func (r *Recorder) ObserveOutcome(o models.Outcome, elapsed time.Duration) {
	r.assets.WithLabelValues(string(o.Status)).Inc()
	r.duration.Observe(elapsed.Seconds())
	if o.Status == models.StatusDone {
		r.bytes.WithLabelValues("original").Add(float64(o.OriginalSize))
		r.bytes.WithLabelValues("compressed").Add(float64(o.CompressedSize))
	}
}

// Push sends every collector to the Pushgateway at url, grouped by run.
func (r *Recorder) Push(ctx context.Context, url, runID string) error {
	err := push.New(url, "pdf_compressor").
		Gatherer(r.registry).
		Grouping("run_id", runID).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	return nil
}
