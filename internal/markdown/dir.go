package markdown

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/docdiagram/internal/foundation/errors"
)

// DirStats reports a RenderDir run.
type DirStats struct {
	// Pages lists the written HTML pages, in walk order.
	Pages []string
	// Copied counts non-markdown files copied verbatim.
	Copied int
}

// IsMarkdown reports whether path names a markdown document.
func IsMarkdown(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".md" || ext == ".markdown"
}

// OutputPath maps a markdown source path to its HTML page path.
func OutputPath(rel string) string {
	return strings.TrimSuffix(rel, filepath.Ext(rel)) + ".html"
}

// RenderDir mirrors src into dst: markdown documents become HTML pages and
// every other file is copied. Hidden files and directories are skipped.
func (r *Renderer) RenderDir(ctx context.Context, src, dst string) (DirStats, error) {
	var stats DirStats

	absSrc, err := filepath.Abs(src)
	if err != nil {
		return stats, errors.WrapError(err, errors.CategoryFileSystem, "failed to resolve source").Build()
	}
	absDst, err := filepath.Abs(dst)
	if err != nil {
		return stats, errors.WrapError(err, errors.CategoryFileSystem, "failed to resolve destination").Build()
	}
	if absDst == absSrc || strings.HasPrefix(absDst, absSrc+string(filepath.Separator)) {
		return stats, errors.ValidationError("destination must not be inside the source directory").
			WithContext("src", src).
			WithContext("dst", dst).
			Build()
	}
	if info, err := os.Stat(src); err != nil || !info.IsDir() {
		return stats, errors.NotFoundError("source directory not found").
			WithContext("path", src).
			Build()
	}

	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel != "." && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}

		if !IsMarkdown(path) {
			stats.Copied++
			return copyFile(path, target)
		}

		source, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		title := strings.TrimSuffix(d.Name(), filepath.Ext(d.Name()))
		doc, err := r.Document(source, title)
		if err != nil {
			return errors.WrapError(err, errors.CategoryRender, "failed to render markdown").
				WithContext("path", path).
				Build()
		}
		out := OutputPath(target)
		if err := os.WriteFile(out, doc, 0o644); err != nil {
			return err
		}
		stats.Pages = append(stats.Pages, out)
		return nil
	})
	if err != nil {
		if errors.IsClassified(err) {
			return stats, err
		}
		return stats, errors.WrapError(err, errors.CategoryFileSystem, "failed to render directory").
			WithContext("src", src).
			Build()
	}
	return stats, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
