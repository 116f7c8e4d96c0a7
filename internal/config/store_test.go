package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestFileStore_MissingDocumentsYieldDefaults(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "config"), zerolog.Nop())
	ctx := context.Background()

	system, err := store.System(ctx)
	if err != nil {
		t.Fatalf("system: %v", err)
	}
	if system != (SystemConfig{}) {
		t.Fatalf("expected empty system config, got %+v", system)
	}
	if system.Network() != DefaultNetworkName {
		t.Fatalf("expected default network, got %q", system.Network())
	}

	features, err := store.Features(ctx)
	if err != nil {
		t.Fatalf("features: %v", err)
	}
	if features.Features == nil || len(features.Features) != 0 {
		t.Fatalf("expected empty non-nil feature map, got %v", features.Features)
	}

	contexts, err := store.Contexts(ctx)
	if err != nil {
		t.Fatalf("contexts: %v", err)
	}
	if contexts.Mode != ConnectionModeSimple {
		t.Fatalf("expected simple mode by default, got %q", contexts.Mode)
	}

	release, err := store.Release(ctx)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if release.Installed() {
		t.Fatalf("expected no release, got %+v", release)
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir, zerolog.Nop())
	ctx := context.Background()

	installed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	release := ReleaseConfig{
		InstalledStackVersion: "1.4.0",
		InstalledContexts:     map[string]string{"api": "1.4.0", "gateway": "1.3.2"},
		InstallDate:           installed,
	}
	if err := store.SaveRelease(ctx, release); err != nil {
		t.Fatalf("save release: %v", err)
	}
	if err := store.SaveSystem(ctx, SystemConfig{OrganizationID: "org-1", OrganizationName: "Acme"}); err != nil {
		t.Fatalf("save system: %v", err)
	}
	if err := store.SaveFeatures(ctx, FeaturesConfig{Features: map[string]bool{"audit": true}}); err != nil {
		t.Fatalf("save features: %v", err)
	}

	loaded, err := store.Release(ctx)
	if err != nil {
		t.Fatalf("load release: %v", err)
	}
	if loaded.InstalledStackVersion != "1.4.0" || loaded.InstalledContexts["gateway"] != "1.3.2" {
		t.Fatalf("unexpected release: %+v", loaded)
	}
	if !loaded.InstallDate.Equal(installed) {
		t.Fatalf("unexpected install date: %s", loaded.InstallDate)
	}

	system, err := store.System(ctx)
	if err != nil || system.OrganizationName != "Acme" {
		t.Fatalf("unexpected system: %+v %v", system, err)
	}
	features, err := store.Features(ctx)
	if err != nil || !features.Features["audit"] {
		t.Fatalf("unexpected features: %+v %v", features, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) != ".json" || entry.Name()[0] == '.' {
			t.Fatalf("unexpected leftover file %q", entry.Name())
		}
	}
}

func TestFileStore_ClearRelease(t *testing.T) {
	store := NewFileStore(t.TempDir(), zerolog.Nop())
	ctx := context.Background()

	if err := store.SaveRelease(ctx, ReleaseConfig{InstalledStackVersion: "2.0.0"}); err != nil {
		t.Fatalf("save release: %v", err)
	}
	if err := store.SaveRelease(ctx, ReleaseConfig{}); err != nil {
		t.Fatalf("clear release: %v", err)
	}
	release, err := store.Release(ctx)
	if err != nil {
		t.Fatalf("load release: %v", err)
	}
	if release.Installed() {
		t.Fatalf("expected cleared release, got %+v", release)
	}
}

func TestFileStore_CorruptDocument(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, systemFile), []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	store := NewFileStore(dir, zerolog.Nop())
	if _, err := store.System(context.Background()); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestFileStore_RejectsUnknownConnectionMode(t *testing.T) {
	store := NewFileStore(t.TempDir(), zerolog.Nop())
	if err := store.SaveContexts(context.Background(), ContextsConfig{Mode: "Hybrid"}); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestContextsConfig_For(t *testing.T) {
	global := Connections{Transport: "amqp://bus", Persistence: "Server=db", EventStore: "esdb://es"}
	override := Connections{Persistence: "Server=orders-db"}

	cases := []struct {
		name    string
		cfg     ContextsConfig
		context string
		want    Connections
	}{
		{
			name:    "simple ignores overrides",
			cfg:     ContextsConfig{Mode: ConnectionModeSimple, Global: global, Contexts: map[string]Connections{"orders": override}},
			context: "orders",
			want:    global,
		},
		{
			name:    "advanced uses override",
			cfg:     ContextsConfig{Mode: ConnectionModeAdvanced, Global: global, Contexts: map[string]Connections{"orders": override}},
			context: "orders",
			want:    override,
		},
		{
			name:    "advanced falls back to global",
			cfg:     ContextsConfig{Mode: ConnectionModeAdvanced, Global: global, Contexts: map[string]Connections{"orders": override}},
			context: "billing",
			want:    global,
		},
		{
			name:    "advanced empty override falls back",
			cfg:     ContextsConfig{Mode: ConnectionModeAdvanced, Global: global, Contexts: map[string]Connections{"orders": {}}},
			context: "orders",
			want:    global,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.cfg.For(tc.context); got != tc.want {
				t.Fatalf("For(%q) = %+v, want %+v", tc.context, got, tc.want)
			}
		})
	}
}
