package watch

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type calls struct {
	mu    sync.Mutex
	paths []string
	ch    chan string
}

func newCalls() *calls { return &calls{ch: make(chan string, 64)} }

func (c *calls) handle(_ context.Context, path string) {
	c.mu.Lock()
	c.paths = append(c.paths, path)
	c.mu.Unlock()
	c.ch <- path
}

func (c *calls) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.paths)
}

func (c *calls) next(t *testing.T) string {
	t.Helper()
	select {
	case p := <-c.ch:
		return p
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for handler")
		return ""
	}
}

func startWatcher(t *testing.T, dir string, c *calls) {
	t.Helper()
	w, err := New(dir, c.handle, Options{
		Debounce: 50 * time.Millisecond,
		Filter:   func(p string) bool { return strings.HasSuffix(p, ".html") },
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
}

func TestWatcher_DebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	c := newCalls()
	startWatcher(t, dir, c)

	page := filepath.Join(dir, "index.html")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(page, []byte(strings.Repeat("x", i+1)), 0o644))
	}

	assert.Equal(t, page, c.next(t))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, c.count())
}

func TestWatcher_FiltersAndIgnores(t *testing.T) {
	dir := t.TempDir()
	c := newCalls()
	startWatcher(t, dir, c)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "style.css"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.html"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "page.html.swp"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "real.html"), []byte("a"), 0o644))

	assert.Equal(t, filepath.Join(dir, "real.html"), c.next(t))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, c.count())
}

func TestWatcher_NewDirectories(t *testing.T) {
	dir := t.TempDir()
	c := newCalls()
	startWatcher(t, dir, c)

	sub := filepath.Join(dir, "guide", "deep")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	page := filepath.Join(sub, "page.html")
	require.NoError(t, os.WriteFile(page, []byte("a"), 0o644))

	assert.Equal(t, page, c.next(t))
}

func TestWatcher_RunReturnsWhenWatcherCloses(t *testing.T) {
	w, err := New(t.TempDir(), newCalls().handle, Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, w.fsw.Close())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the event channels closed")
	}
}

func TestShouldIgnore(t *testing.T) {
	for _, p := range []string{".git", "a/.#b.html", "x.html~", "x.swp", "#x#", "Thumbs.db", "/a/.DS_Store"} {
		assert.True(t, ShouldIgnore(p), p)
	}
	for _, p := range []string{"index.html", "a/b.css", "docs/#section.html"} {
		assert.False(t, ShouldIgnore(p), p)
	}
}

func TestNew_MissingRoot(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"), func(context.Context, string) {}, Options{})
	require.Error(t, err)
}
