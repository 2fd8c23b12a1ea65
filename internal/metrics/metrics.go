// Package metrics holds the Prometheus collectors for the job board.
//
// Every method is safe to call on a nil *Metrics, so services built in tests
// without a registry do not need a stub.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "jobboard"

// Publish failure stages, used as the "stage" label.
const (
	StageAccount = "account"
	StagePayment = "payment"
	StageStorage = "storage"
	StageRender  = "render"
	StageSave    = "save"
)

type Metrics struct {
	listingsPublished *prometheus.CounterVec
	publishFailures   *prometheus.CounterVec
	refunds           *prometheus.CounterVec
	applyClicks       prometheus.Counter
	httpDuration      *prometheus.HistogramVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		listingsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listings_published_total",
			Help:      "Listings published, by highlight flag.",
		}, []string{"highlighted"}),
		publishFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_failures_total",
			Help:      "Publication attempts that failed after validation, by stage.",
		}, []string{"stage"}),
		refunds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refunds_total",
			Help:      "Compensating refunds issued after a failed publication, by result.",
		}, []string{"result"}),
		applyClicks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "apply_clicks_total",
			Help:      "Apply link clicks recorded.",
		}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency, by method, route pattern and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

// NewRegistry returns a registry preloaded with the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler exposes the registry in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

func (m *Metrics) ListingPublished(highlighted bool) {
	if m == nil {
		return
	}
	m.listingsPublished.WithLabelValues(strconv.FormatBool(highlighted)).Inc()
}

func (m *Metrics) PublishFailed(stage string) {
	if m == nil {
		return
	}
	m.publishFailures.WithLabelValues(stage).Inc()
}

func (m *Metrics) Refunded(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.refunds.WithLabelValues(result).Inc()
}

func (m *Metrics) ApplyClicked() {
	if m == nil {
		return
	}
	m.applyClicks.Inc()
}

// ObserveRequest records one HTTP request. route should be the router
// pattern (for example "/{slug}"), never the raw path.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}
