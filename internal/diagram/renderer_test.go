package diagram

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPending_ResolveOnce(t *testing.T) {
	p := NewPending()
	assert.NoError(t, p.Err())

	first := stderrors.New("first")
	p.Resolve(first)
	p.Resolve(stderrors.New("second"))

	select {
	case <-p.Done():
	default:
		t.Fatal("Done must be closed after Resolve")
	}
	assert.Same(t, first, p.Err())
	assert.Same(t, first, p.Wait(context.Background()))
}

func TestPending_WaitHonoursContext(t *testing.T) {
	p := NewPending()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := p.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NoError(t, p.Err(), "unresolved run reports no error yet")
}

func TestPending_ResolvedFromGoroutine(t *testing.T) {
	p := NewPending()
	go func() {
		time.Sleep(5 * time.Millisecond)
		p.Resolve(nil)
	}()
	require.NoError(t, p.Wait(context.Background()))
}

func TestResolved(t *testing.T) {
	assert.NoError(t, Resolved(nil).Wait(context.Background()))
	boom := stderrors.New("boom")
	assert.ErrorIs(t, Resolved(boom).Err(), boom)
}
