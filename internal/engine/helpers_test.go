package engine

import (
	"context"
	"testing"
	"time"

	"github.com/readystackgo/rsgo/internal/config"
	"github.com/readystackgo/rsgo/internal/docker"
	"github.com/rs/zerolog"
)

func newTestEngine(t *testing.T, client docker.Client, opts ...Option) (*Engine, *config.FileStore) {
	t.Helper()
	store := config.NewFileStore(t.TempDir(), zerolog.Nop())
	if err := store.SaveSystem(context.Background(), config.SystemConfig{OrganizationID: "org-1", OrganizationName: "Acme"}); err != nil {
		t.Fatalf("save system: %v", err)
	}
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	opts = append([]Option{WithClock(func() time.Time { return fixed })}, opts...)
	return New(client, store, zerolog.Nop(), opts...), store
}
