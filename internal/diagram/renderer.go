package diagram

import (
	"context"
	"sync"

	"golang.org/x/net/html"
)

// InitOptions configures a renderer before a pass hands it any containers.
type InitOptions struct {
	// DisableAutoStart suppresses the renderer's own scan-and-render on load.
	// Activation always sets it: the activator triggers the run explicitly.
	DisableAutoStart bool
}

// RunOptions scopes a renderer run.
type RunOptions struct {
	// QuerySelector is a CSS selector matching the containers to render.
	QuerySelector string
}

// Renderer is the diagram rendering library as seen by an activation pass.
//
// Run may complete asynchronously. The tree belongs to the renderer until the
// returned Pending resolves; callers that read or serialize the tree wait on
// it first.
type Renderer interface {
	Name() string
	Initialize(opts InitOptions) error
	Run(ctx context.Context, doc *html.Node, opts RunOptions) *Pending
}

// Pending is the completion handle of a renderer run.
type Pending struct {
	done chan struct{}
	once sync.Once
	err  error
}

// NewPending returns an unresolved Pending.
func NewPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

// Resolved returns a Pending that already completed with err.
func Resolved(err error) *Pending {
	p := NewPending()
	p.Resolve(err)
	return p
}

// Resolve completes the run. Only the first call has an effect.
func (p *Pending) Resolve(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// Done is closed once the run completed.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the run completed or ctx is done.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the run error, or nil while the run is still in flight.
func (p *Pending) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}
