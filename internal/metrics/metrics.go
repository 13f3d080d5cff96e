package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/geo-ambiental/seia-sync/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const jobName = "seia_sync"

// Recorder holds the metrics of one run in its own registry.
type Recorder struct {
	registry *prometheus.Registry

	rangesTotal   *prometheus.CounterVec
	rowsMerged    *prometheus.CounterVec
	rangeDuration *prometheus.HistogramVec
	watermark     prometheus.Gauge
	lastSuccess   prometheus.Gauge
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		rangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seia_sync_ranges_total",
				Help: "Monthly ranges processed by outcome",
			},
			[]string{"status"},
		),
		rowsMerged: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seia_sync_rows_merged_total",
				Help: "Rows written to the destination table",
			},
			[]string{"operation"},
		),
		rangeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "seia_sync_range_duration_seconds",
				Help:    "Time spent on one monthly range",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~8.5min
			},
			[]string{"status"},
		),
		watermark: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "seia_sync_watermark_timestamp_seconds",
			Help: "Watermark the run started from",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "seia_sync_last_success_timestamp_seconds",
			Help: "End of the last run without failed ranges",
		}),
	}

	r.registry.MustRegister(r.rangesTotal, r.rowsMerged, r.rangeDuration, r.watermark, r.lastSuccess)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) ObserveWatermark(t time.Time) {
	r.watermark.Set(float64(t.Unix()))
}

func (r *Recorder) ObserveRange(result models.RangeResult, elapsed time.Duration) {
	status := string(result.Status)
	r.rangesTotal.WithLabelValues(status).Inc()
	r.rangeDuration.WithLabelValues(status).Observe(elapsed.Seconds())
	r.rowsMerged.WithLabelValues("insert").Add(float64(result.Inserted))
	r.rowsMerged.WithLabelValues("update").Add(float64(result.Updated))
}

func (r *Recorder) MarkSuccess(t time.Time) {
	r.lastSuccess.Set(float64(t.Unix()))
}

// Pusher sends a run's metrics to a Pushgateway.
type Pusher struct {
	url      string
	instance string
}

func NewPusher(url, instance string) *Pusher {
	return &Pusher{url: url, instance: instance}
}

// Push is a no-op when no gateway is configured.
func (p *Pusher) Push(ctx context.Context, r *Recorder) error {
	if p == nil || p.url == "" {
		return nil
	}

	err := push.New(p.url, jobName).
		Gatherer(r.registry).
		Grouping("instance", p.instance).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", p.url, err)
	}
	return nil
}
