package metrics

import "time"

// ResultLabel enumerates outcome categories for counters.
type ResultLabel string

const (
	ResultSuccess   ResultLabel = "success"
	ResultSkipped   ResultLabel = "skipped"
	ResultUnchanged ResultLabel = "unchanged"
	ResultFailed    ResultLabel = "failed"
)

// Recorder defines observability hooks for activation and page processing.
// Implementations may forward to Prometheus, OpenTelemetry, etc.
type Recorder interface {
	ObserveActivationDuration(d time.Duration)
	IncActivationResult(result ResultLabel)
	AddDiagramsConverted(n int)
	IncRendererRun(renderer string, result ResultLabel)
	ObservePageDuration(d time.Duration)
	IncPageResult(result ResultLabel)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveActivationDuration(time.Duration) {}
func (NoopRecorder) IncActivationResult(ResultLabel)         {}
func (NoopRecorder) AddDiagramsConverted(int)                {}
func (NoopRecorder) IncRendererRun(string, ResultLabel)      {}
func (NoopRecorder) ObservePageDuration(time.Duration)       {}
func (NoopRecorder) IncPageResult(ResultLabel)               {}
