// Package metrics exposes tracker activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/kiranshivaraju/sitegen/internal/progress"
	"github.com/kiranshivaraju/sitegen/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector implements progress.Observer on top of a private registry.
type Collector struct {
	registry *prometheus.Registry

	jobsCreated     prometheus.Counter
	jobsCompleted   prometheus.Counter
	jobsFailed      prometheus.Counter
	jobDuration     prometheus.Histogram
	jobsActive      prometheus.Gauge
	stageDuration   *prometheus.HistogramVec
	updatesMerged   prometheus.Counter
	broadcasts      prometheus.Counter
	deliveries      prometheus.Counter
	subscribers     prometheus.Gauge
	subscribersGone prometheus.Counter
	messagesDropped *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		jobsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sitegen_jobs_created_total",
			Help: "Total number of jobs created",
		}),
		jobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sitegen_jobs_completed_total",
			Help: "Total number of jobs completed successfully",
		}),
		jobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sitegen_jobs_failed_total",
			Help: "Total number of jobs completed with an error",
		}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sitegen_job_duration_seconds",
			Help:    "Wall-clock time from job creation to completion",
			Buckets: []float64{5, 15, 30, 60, 120, 180, 300, 600, 1200},
		}),
		jobsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sitegen_jobs_active",
			Help: "Job records currently held, including those in their retention window",
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sitegen_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"stage"}),
		updatesMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sitegen_progress_updates_coalesced_total",
			Help: "Progress updates superseded inside a throttle window",
		}),
		broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sitegen_broadcasts_total",
			Help: "Progress broadcasts sent to at least one subscriber set",
		}),
		deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sitegen_broadcast_deliveries_total",
			Help: "Progress frames delivered to individual subscribers",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sitegen_subscribers",
			Help: "Current number of job subscriptions",
		}),
		subscribersGone: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sitegen_subscribers_pruned_total",
			Help: "Subscriptions removed because a send failed",
		}),
		messagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitegen_control_messages_dropped_total",
			Help: "Inbound control messages dropped, by reason",
		}, []string{"reason"}),
	}

	c.registry.MustRegister(
		c.jobsCreated,
		c.jobsCompleted,
		c.jobsFailed,
		c.jobDuration,
		c.jobsActive,
		c.stageDuration,
		c.updatesMerged,
		c.broadcasts,
		c.deliveries,
		c.subscribers,
		c.subscribersGone,
		c.messagesDropped,
	)

	return c
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) JobCreated() {
	c.jobsCreated.Inc()
}

func (c *Collector) JobCompleted(success bool, elapsed time.Duration) {
	if success {
		c.jobsCompleted.Inc()
	} else {
		c.jobsFailed.Inc()
	}
	c.jobDuration.Observe(elapsed.Seconds())
}

func (c *Collector) JobsActive(n int) {
	c.jobsActive.Set(float64(n))
}

func (c *Collector) StageClosed(stage models.Stage, d time.Duration) {
	c.stageDuration.WithLabelValues(string(stage)).Observe(d.Seconds())
}

func (c *Collector) UpdateCoalesced() {
	c.updatesMerged.Inc()
}

func (c *Collector) Broadcast(recipients int) {
	c.broadcasts.Inc()
	c.deliveries.Add(float64(recipients))
}

func (c *Collector) SubscribersActive(n int) {
	c.subscribers.Set(float64(n))
}

func (c *Collector) SubscriberPruned() {
	c.subscribersGone.Inc()
}

func (c *Collector) MessageDropped(reason string) {
	c.messagesDropped.WithLabelValues(reason).Inc()
}

var _ progress.Observer = (*Collector)(nil)
