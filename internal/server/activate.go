package server

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"git.home.luguber.info/inful/docdiagram/internal/diagram"
	"git.home.luguber.info/inful/docdiagram/internal/foundation/errors"
	"git.home.luguber.info/inful/docdiagram/internal/logfields"
	"git.home.luguber.info/inful/docdiagram/internal/metrics"
	"git.home.luguber.info/inful/docdiagram/internal/observability"
)

// activation runs one activation pass per served HTML page.
type activation struct {
	activator   *diagram.Activator
	adapter     *errors.HTTPErrorAdapter
	logger      *slog.Logger
	recorder    metrics.Recorder
	maxSize     int
	waitTimeout time.Duration
}

func isHTMLPath(path string) bool {
	return path == "/" || path == "" || strings.HasSuffix(path, "/") || strings.HasSuffix(path, ".html") || strings.HasSuffix(path, ".htm")
}

func (a *activation) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isHTMLPath(r.URL.Path) || (r.Method != http.MethodGet && r.Method != http.MethodHead) {
			next.ServeHTTP(w, r)
			return
		}

		// Partial content of a page cannot be activated.
		r.Header.Del("Range")
		r.Header.Del("If-Range")

		buf := newPageBuffer(w, a.maxSize)
		next.ServeHTTP(buf, r)
		if !buf.buffered() {
			buf.finalize(nil)
			return
		}

		ctx := observability.WithPage(r.Context(), r.URL.Path)
		ctx = observability.WithRenderer(ctx, a.activator.RendererName())
		page, err := a.activate(ctx, buf.buffer)
		if err != nil {
			buf.discard()
			a.adapter.WriteErrorResponse(w, r, errors.WrapError(err, errors.GetCategory(err), "failed to activate page").
				WithContext("path", r.URL.Path).
				Build())
			return
		}
		buf.finalize(page)
	})
}

func (a *activation) activate(ctx context.Context, src []byte) ([]byte, error) {
	start := time.Now()
	doc, err := html.Parse(bytes.NewReader(src))
	if err != nil {
		a.recorder.IncPageResult(metrics.ResultFailed)
		return nil, errors.WrapError(err, errors.CategoryValidation, "failed to parse page").Build()
	}

	res, err := a.activator.Activate(ctx, doc)
	if err != nil {
		a.recorder.IncPageResult(metrics.ResultFailed)
		return nil, err
	}
	if res.Skipped {
		a.recorder.IncPageResult(metrics.ResultSkipped)
		return src, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, a.waitTimeout)
	defer cancel()
	if err := res.Pending.Wait(waitCtx); err != nil {
		select {
		case <-res.Pending.Done():
			a.logger.WarnContext(ctx, "Diagram rendering failed, raw text kept", logfields.Error(err))
		default:
			a.recorder.IncPageResult(metrics.ResultFailed)
			return nil, errors.WrapError(err, errors.CategoryRender, "timed out waiting for diagram rendering").Build()
		}
	}

	var out bytes.Buffer
	if err := html.Render(&out, doc); err != nil {
		a.recorder.IncPageResult(metrics.ResultFailed)
		return nil, errors.WrapError(err, errors.CategoryInternal, "failed to render page").Build()
	}
	a.recorder.ObservePageDuration(time.Since(start))
	if res.Converted() == 0 {
		a.recorder.IncPageResult(metrics.ResultUnchanged)
	} else {
		a.recorder.IncPageResult(metrics.ResultSuccess)
	}
	return out.Bytes(), nil
}

// pageBuffer wraps an http.ResponseWriter to hold back a successful HTML
// response until it has been activated. Responses that are not HTML, not
// 200, or larger than maxSize are passed through unchanged.
type pageBuffer struct {
	http.ResponseWriter
	statusCode    int
	buffer        []byte
	headerWritten bool
	passthrough   bool
	maxSize       int
}

func newPageBuffer(w http.ResponseWriter, maxSize int) *pageBuffer {
	return &pageBuffer{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
		maxSize:        maxSize,
	}
}

func (p *pageBuffer) WriteHeader(code int) {
	p.statusCode = code
	if code != http.StatusOK {
		p.passthrough = true
	}
	if p.passthrough && !p.headerWritten {
		p.ResponseWriter.WriteHeader(code)
		p.headerWritten = true
	}
}

func (p *pageBuffer) Write(data []byte) (int, error) {
	if !p.passthrough && p.buffer == nil {
		contentType := p.Header().Get("Content-Type")
		if contentType != "" && !strings.Contains(contentType, "text/html") {
			p.passthrough = true
		} else {
			p.buffer = make([]byte, 0, 64*1024)
		}
	}

	if p.passthrough {
		if !p.headerWritten {
			p.ResponseWriter.WriteHeader(p.statusCode)
			p.headerWritten = true
		}
		return p.ResponseWriter.Write(data)
	}

	if len(p.buffer)+len(data) > p.maxSize {
		// Too large to activate: flush what we have and stream the rest.
		p.passthrough = true
		p.ResponseWriter.WriteHeader(p.statusCode)
		p.headerWritten = true
		if len(p.buffer) > 0 {
			if _, err := p.ResponseWriter.Write(p.buffer); err != nil {
				return 0, err
			}
			p.buffer = nil
		}
		return p.ResponseWriter.Write(data)
	}

	p.buffer = append(p.buffer, data...)
	return len(data), nil
}

// buffered reports whether a complete HTML body is being held back.
func (p *pageBuffer) buffered() bool {
	return !p.passthrough && len(p.buffer) > 0
}

func (p *pageBuffer) discard() {
	p.buffer = nil
	p.Header().Del("Content-Length")
	p.Header().Del("Last-Modified")
}

// finalize writes the activated page, or just the pending header when
// nothing was buffered.
func (p *pageBuffer) finalize(page []byte) {
	if page == nil {
		if !p.headerWritten {
			p.ResponseWriter.WriteHeader(p.statusCode)
		}
		return
	}
	p.Header().Del("Content-Length")
	p.ResponseWriter.WriteHeader(p.statusCode)
	_, _ = p.ResponseWriter.Write(page)
}
