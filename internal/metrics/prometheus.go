package metrics

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "monyt"

// Prometheus maps dotted metric names onto lazily registered collectors:
// "probe.success" becomes monyt_probe_success_total.
type Prometheus struct {
	registry *prometheus.Registry
	factory  promauto.Factory
	node     string

	mu         sync.Mutex
	counters   map[string]prometheus.Counter
	histograms map[string]prometheus.Histogram
	gauges     map[string]prometheus.Gauge
}

func NewPrometheus(nodeName string) *Prometheus {
	reg := prometheus.NewRegistry()
	return &Prometheus{
		registry:   reg,
		factory:    promauto.With(reg),
		node:       nodeName,
		counters:   make(map[string]prometheus.Counter),
		histograms: make(map[string]prometheus.Histogram),
		gauges:     make(map[string]prometheus.Gauge),
	}
}

func metricName(metric string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(metric)
}

func (p *Prometheus) labels() prometheus.Labels {
	return prometheus.Labels{"node": p.node}
}

func (p *Prometheus) Increment(metric string) {
	p.mu.Lock()
	c, ok := p.counters[metric]
	if !ok {
		c = p.factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        metricName(metric) + "_total",
			Help:        "Total number of " + metric + " events",
			ConstLabels: p.labels(),
		})
		p.counters[metric] = c
	}
	p.mu.Unlock()
	c.Inc()
}

func (p *Prometheus) Duration(metric string, duration time.Duration) {
	p.mu.Lock()
	h, ok := p.histograms[metric]
	if !ok {
		h = p.factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        metricName(metric) + "_seconds",
			Help:        "Duration of " + metric + " in seconds",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: p.labels(),
		})
		p.histograms[metric] = h
	}
	p.mu.Unlock()
	h.Observe(duration.Seconds())
}

func (p *Prometheus) Gauge(metric string, value int) {
	p.mu.Lock()
	g, ok := p.gauges[metric]
	if !ok {
		g = p.factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        metricName(metric),
			Help:        "Current " + metric,
			ConstLabels: p.labels(),
		})
		p.gauges[metric] = g
	}
	p.mu.Unlock()
	g.Set(float64(value))
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
