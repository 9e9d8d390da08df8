// Package metrics provides the observability hooks for activation passes,
// renderer runs and processed pages.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so recording never needs a nil check:
//
//	activator, _ := diagram.New(renderer, diagram.Options{
//	    Recorder: metrics.NewPrometheusRecorder(registry),
//	})
//
// PrometheusRecorder is activated by the serve command, which exposes the
// registry on /metrics through HTTPHandler.
package metrics
