package metrics

import (
	"net/http"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once               sync.Once
	activationDuration prom.Histogram
	activationResults  *prom.CounterVec
	diagrams           prom.Counter
	rendererRuns       *prom.CounterVec
	pageDuration       prom.Histogram
	pageResults        *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.activationDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "docdiagram",
			Name:      "activation_duration_seconds",
			Help:      "Duration of a single activation pass",
			Buckets:   prom.DefBuckets,
		})
		pr.activationResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "docdiagram",
			Name:      "activation_results_total",
			Help:      "Activation passes by outcome",
		}, []string{"result"})
		pr.diagrams = prom.NewCounter(prom.CounterOpts{
			Namespace: "docdiagram",
			Name:      "diagrams_converted_total",
			Help:      "Placeholders replaced by diagram containers",
		})
		pr.rendererRuns = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "docdiagram",
			Name:      "renderer_runs_total",
			Help:      "Renderer runs by renderer and outcome",
		}, []string{"renderer", "result"})
		pr.pageDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "docdiagram",
			Name:      "page_duration_seconds",
			Help:      "Time to parse, activate, wait for and serialize one page",
			Buckets:   prom.DefBuckets,
		})
		pr.pageResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "docdiagram",
			Name:      "page_results_total",
			Help:      "Processed pages by outcome",
		}, []string{"result"})
		reg.MustRegister(pr.activationDuration, pr.activationResults, pr.diagrams, pr.rendererRuns, pr.pageDuration, pr.pageResults)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveActivationDuration(d time.Duration) {
	if p == nil || p.activationDuration == nil {
		return
	}
	p.activationDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncActivationResult(result ResultLabel) {
	if p == nil || p.activationResults == nil {
		return
	}
	p.activationResults.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) AddDiagramsConverted(n int) {
	if p == nil || p.diagrams == nil || n <= 0 {
		return
	}
	p.diagrams.Add(float64(n))
}

func (p *PrometheusRecorder) IncRendererRun(renderer string, result ResultLabel) {
	if p == nil || p.rendererRuns == nil {
		return
	}
	p.rendererRuns.WithLabelValues(renderer, string(result)).Inc()
}

func (p *PrometheusRecorder) ObservePageDuration(d time.Duration) {
	if p == nil || p.pageDuration == nil {
		return
	}
	p.pageDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncPageResult(result ResultLabel) {
	if p == nil || p.pageResults == nil {
		return
	}
	p.pageResults.WithLabelValues(string(result)).Inc()
}

// HTTPHandler returns an http.Handler that serves Prometheus metrics for the provided registry.
func HTTPHandler(reg *prom.Registry) http.Handler {
	if reg == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
