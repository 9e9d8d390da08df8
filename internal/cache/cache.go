// Package cache stores rendered diagram SVG keyed by a digest of the diagram
// source and theme.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Store is a rendered-SVG cache.
type Store interface {
	Get(ctx context.Context, key string) (svg string, found bool, err error)
	Put(ctx context.Context, key, svg string) error
	Close() error
}

// Key derives the cache key of a diagram rendered with theme.
func Key(theme, text string) string {
	h := sha256.New()
	h.Write([]byte(theme))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}
