package catalog

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/readystackgo/rsgo/internal/manifest"
	"github.com/rs/zerolog"
)

// Watcher keeps a cache in sync with a catalog file. The file is reloaded only
// when its fingerprint changes; edits to referenced stack manifests alone are
// picked up with the next change of the catalog file itself.
type Watcher struct {
	cache       *ProductCache
	path        string
	logger      zerolog.Logger
	fingerprint string
}

// NewWatcher returns a watcher for path. Nothing is loaded until Check runs.
func NewWatcher(cache *ProductCache, path string, logger zerolog.Logger) *Watcher {
	return &Watcher{cache: cache, path: path, logger: logger}
}

// Check reloads the catalog when the file changed since the last successful
// load. A failed reload keeps the previously loaded products.
func (w *Watcher) Check(ctx context.Context) (bool, error) {
	body, err := os.ReadFile(w.path)
	if err != nil {
		return false, fmt.Errorf("read catalog file: %w", err)
	}
	fingerprint, err := manifest.Fingerprint(body)
	if err != nil {
		return false, fmt.Errorf("catalog file %s: %w", w.path, err)
	}
	if fingerprint == w.fingerprint {
		return false, nil
	}

	n, err := w.cache.Reload(ctx, w.path)
	if err != nil {
		return false, err
	}
	w.fingerprint = fingerprint
	w.logger.Info().Str("path", w.path).Int("products", n).Str("fingerprint", fingerprint[:12]).Msg("catalog loaded")
	return true, nil
}

// Run checks the catalog file every interval until ctx is canceled.
func (w *Watcher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Check(ctx); err != nil {
				w.logger.Error().Err(err).Str("path", w.path).Msg("catalog reload failed")
			}
		}
	}
}
