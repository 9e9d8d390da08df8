// Package notify publishes per-page activation events.
package notify

import (
	"context"
	"time"
)

// Event describes one activated page.
type Event struct {
	RunID     string    `json:"run_id"`
	Page      string    `json:"page"`
	Diagrams  int       `json:"diagrams"`
	Renderer  string    `json:"renderer"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher delivers activation events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Noop discards events. It is used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }
