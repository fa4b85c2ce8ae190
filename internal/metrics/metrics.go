package metrics

import (
	"net/http"
	"time"

	"ku-fleet-api-server/internal/jobs"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	PositionsAccepted prometheus.Counter
	PositionsRejected *prometheus.CounterVec // reason: invalid|unknown_vehicle|enqueue
	CacheErrors       *prometheus.CounterVec // op: set|get|delete|purge
	AlertsRaised      *prometheus.CounterVec // type

	JobsFinished *prometheus.CounterVec // queue, name, state
	JobDuration  *prometheus.HistogramVec
	QueueJobs    *prometheus.GaugeVec // queue, state

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge

	RetentionRemoved *prometheus.CounterVec // sweep
	WSClients        prometheus.Gauge
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		PositionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleet_positions_accepted_total",
			Help: "Position reports accepted for processing.",
		}),
		PositionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_positions_rejected_total",
			Help: "Position reports rejected, by reason.",
		}, []string{"reason"}),
		CacheErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_cache_errors_total",
			Help: "Location cache operations that failed.",
		}, []string{"op"}),
		AlertsRaised: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_alerts_raised_total",
			Help: "Alerts persisted, by type.",
		}, []string{"type"}),
		JobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_jobs_finished_total",
			Help: "Job attempts finished, by outcome.",
		}, []string{"queue", "name", "state"}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fleet_job_duration_seconds",
			Help:    "Duration of a single job attempt.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{"queue"}),
		QueueJobs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleet_queue_jobs",
			Help: "Jobs per queue and state at the last health check.",
		}, []string{"queue", "state"}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleet_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleet_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fleet_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		RetentionRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_retention_removed_total",
			Help: "Records removed or archived by retention sweeps.",
		}, []string{"sweep"}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fleet_ws_clients",
			Help: "Connected dashboard WebSocket clients.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.PositionsAccepted, c.PositionsRejected, c.CacheErrors, c.AlertsRaised,
		c.JobsFinished, c.JobDuration, c.QueueJobs,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected,
		c.RetentionRemoved, c.WSClients,
	)
	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Registry exposes the private registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// --- tracking ---

func (c *Collector) PositionAccepted() { c.PositionsAccepted.Inc() }
func (c *Collector) PositionRejected(reason string) { c.PositionsRejected.WithLabelValues(reason).Inc() }
func (c *Collector) CacheError(op string) { c.CacheErrors.WithLabelValues(op).Inc() }
func (c *Collector) AlertRaised(kind string) { c.AlertsRaised.WithLabelValues(kind).Inc() }

// --- jobs.Observer ---

func (c *Collector) JobFinished(queue, name, state string, took time.Duration) {
	c.JobsFinished.WithLabelValues(queue, name, state).Inc()
	c.JobDuration.WithLabelValues(queue).Observe(took.Seconds())
}

func (c *Collector) QueueCounts(queue string, n jobs.Counts) {
	c.QueueJobs.WithLabelValues(queue, jobs.StateWaiting).Set(float64(n.Waiting))
	c.QueueJobs.WithLabelValues(queue, jobs.StateActive).Set(float64(n.Active))
	c.QueueJobs.WithLabelValues(queue, jobs.StateDelayed).Set(float64(n.Delayed))
	c.QueueJobs.WithLabelValues(queue, jobs.StateCompleted).Set(float64(n.Completed))
	c.QueueJobs.WithLabelValues(queue, jobs.StateFailed).Set(float64(n.Failed))
}

// --- notify.PublisherMetrics ---

func (c *Collector) NATSPublishedInc() { c.NATSPublished.Inc() }
func (c *Collector) NATSPublishErrInc() { c.NATSPublishErrs.Inc() }
func (c *Collector) NATSSetConnected(ok bool) {
	if ok {
		c.NATSConnected.Set(1)
		return
	}
	c.NATSConnected.Set(0)
}

// --- retention ---

func (c *Collector) SweepRemoved(sweep string, n int64) {
	c.RetentionRemoved.WithLabelValues(sweep).Add(float64(n))
}

func (c *Collector) SetWSClients(n int) { c.WSClients.Set(float64(n)) }

var _ jobs.Observer = (*Collector)(nil)
