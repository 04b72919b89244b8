// Package metrics exposes dispatch counters to Prometheus. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shawbot"

var states = []string{"idle", "running", "paused", "stopped"}

type Metrics struct {
	reg *prometheus.Registry

	published    prometheus.Counter
	failures     *prometheus.CounterVec
	publishTime  prometheus.Histogram
	loaded       prometheus.Counter
	loadFailures *prometheus.CounterVec
	skipped      *prometheus.CounterVec
	state        *prometheus.GaugeVec
	cursorDoc    prometheus.Gauge
	cursorFrag   prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "fragments_published_total",
			Help: "Fragments published successfully.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "publish_failures_total",
			Help: "Failed publish attempts by reason.",
		}, []string{"reason"}),
		publishTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "publish_duration_seconds",
			Help:    "Publish call latency.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		loaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "documents_loaded_total",
			Help: "Documents loaded and segmented.",
		}),
		loadFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "document_load_failures_total",
			Help: "Document load failures by kind.",
		}, []string{"kind"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_skipped_total",
			Help: "Ticks that did not attempt a publish, by reason.",
		}, []string{"reason"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "loop_state",
			Help: "1 for the current dispatch loop state.",
		}, []string{"state"}),
		cursorDoc: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "cursor_document",
			Help: "Current document index.",
		}),
		cursorFrag: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "cursor_fragment",
			Help: "Current fragment index.",
		}),
	}
	m.reg.MustRegister(
		m.published, m.failures, m.publishTime, m.loaded, m.loadFailures,
		m.skipped, m.state, m.cursorDoc, m.cursorFrag,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m.SetState("idle")
	return m
}

// GaugeFunc registers an extra gauge sampled at scrape time.
func (m *Metrics) GaugeFunc(name, help string, fn func() float64) {
	if m == nil {
		return
	}
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Name: name, Help: help,
	}, fn))
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) Published(took time.Duration) {
	if m == nil {
		return
	}
	m.published.Inc()
	m.publishTime.Observe(took.Seconds())
}

func (m *Metrics) PublishFailed(reason string, took time.Duration) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(reason).Inc()
	m.publishTime.Observe(took.Seconds())
}

func (m *Metrics) Loaded() {
	if m == nil {
		return
	}
	m.loaded.Inc()
}

func (m *Metrics) LoadFailed(kind string) {
	if m == nil {
		return
	}
	m.loadFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) Skipped(reason string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(reason).Inc()
}

func (m *Metrics) SetState(state string) {
	if m == nil {
		return
	}
	for _, s := range states {
		v := 0.0
		if s == state {
			v = 1
		}
		m.state.WithLabelValues(s).Set(v)
	}
}

func (m *Metrics) SetCursor(doc, frag int) {
	if m == nil {
		return
	}
	m.cursorDoc.Set(float64(doc))
	m.cursorFrag.Set(float64(frag))
}
