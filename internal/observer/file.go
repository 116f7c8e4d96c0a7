package observer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/readystackgo/rsgo/internal/manifest"
)

// fileObserver treats the existence of a file, or its content, as the flag.
type fileObserver struct {
	base
	cfg manifest.FileObserver
}

func newFileObserver(b base, cfg manifest.FileObserver) *fileObserver {
	return &fileObserver{base: b, cfg: cfg}
}

func (o *fileObserver) Observe(ctx context.Context) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if !o.cfg.ContentMode {
		_, err := os.Stat(o.cfg.Path)
		switch {
		case err == nil:
			return Result{InMaintenance: true, Value: "present", CheckedAt: o.now().UTC()}, nil
		case errors.Is(err, fs.ErrNotExist):
			return Result{Value: "absent", CheckedAt: o.now().UTC()}, nil
		default:
			return Result{}, fmt.Errorf("stat %s: %w", o.cfg.Path, err)
		}
	}

	data, err := os.ReadFile(o.cfg.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return o.result(""), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("read %s: %w", o.cfg.Path, err)
	}
	return o.result(string(data)), nil
}

func (o *fileObserver) Close() error { return nil }
