package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// DefaultNetworkName is the stack network used when SystemConfig leaves it empty.
const DefaultNetworkName = "rsgo-net"

// SystemConfig identifies the installation.
type SystemConfig struct {
	OrganizationID       string `json:"organizationId"`
	OrganizationName     string `json:"organizationName"`
	DefaultEnvironmentID string `json:"defaultEnvironmentId"`
	NetworkName          string `json:"networkName,omitempty"`
}

// Network returns the configured stack network or DefaultNetworkName.
func (s SystemConfig) Network() string {
	if s.NetworkName == "" {
		return DefaultNetworkName
	}
	return s.NetworkName
}

// FeaturesConfig holds operator-chosen feature flags. Flags absent here fall
// back to manifest defaults.
type FeaturesConfig struct {
	Features map[string]bool `json:"features"`
}

// ConnectionMode selects how connection strings are assigned to contexts.
type ConnectionMode string

const (
	// ConnectionModeSimple injects one global set of connections everywhere.
	ConnectionModeSimple ConnectionMode = "Simple"
	// ConnectionModeAdvanced allows per-context overrides of the global set.
	ConnectionModeAdvanced ConnectionMode = "Advanced"
)

// Connections are the connection strings injected into a context.
type Connections struct {
	Transport   string `json:"transport,omitempty"`
	Persistence string `json:"persistence,omitempty"`
	EventStore  string `json:"eventStore,omitempty"`
}

// IsZero reports whether no connection is set.
func (c Connections) IsZero() bool {
	return c == Connections{}
}

// ContextsConfig carries connection settings for deployed contexts.
type ContextsConfig struct {
	Mode     ConnectionMode         `json:"mode"`
	Global   Connections            `json:"global"`
	Contexts map[string]Connections `json:"contexts,omitempty"`
}

// For returns the connections for a context. Advanced mode uses a non-empty
// per-context override and otherwise falls back to the global set.
func (c ContextsConfig) For(contextName string) Connections {
	if c.Mode == ConnectionModeAdvanced {
		if override, ok := c.Contexts[contextName]; ok && !override.IsZero() {
			return override
		}
	}
	return c.Global
}

// ReleaseConfig records what is currently installed.
type ReleaseConfig struct {
	InstalledStackVersion string            `json:"installedStackVersion,omitempty"`
	InstalledContexts     map[string]string `json:"installedContexts,omitempty"`
	InstallDate           time.Time         `json:"installDate"`
}

// Installed reports whether a release is recorded.
func (r ReleaseConfig) Installed() bool {
	return r.InstalledStackVersion != "" || len(r.InstalledContexts) > 0
}

// Store reads and writes the configuration documents consumed by the engine.
type Store interface {
	System(ctx context.Context) (SystemConfig, error)
	SaveSystem(ctx context.Context, cfg SystemConfig) error
	Features(ctx context.Context) (FeaturesConfig, error)
	SaveFeatures(ctx context.Context, cfg FeaturesConfig) error
	Contexts(ctx context.Context) (ContextsConfig, error)
	SaveContexts(ctx context.Context, cfg ContextsConfig) error
	Release(ctx context.Context) (ReleaseConfig, error)
	SaveRelease(ctx context.Context, cfg ReleaseConfig) error
}

const (
	systemFile   = "system.json"
	featuresFile = "features.json"
	contextsFile = "contexts.json"
	releaseFile  = "release.json"
)

// FileStore persists configuration documents as JSON files in one directory.
type FileStore struct {
	dir    string
	logger zerolog.Logger
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a JSON-backed config store rooted at dir.
func NewFileStore(dir string, logger zerolog.Logger) *FileStore {
	return &FileStore{
		dir:    dir,
		logger: logger,
	}
}

// System returns the system document.
func (s *FileStore) System(ctx context.Context) (SystemConfig, error) {
	var cfg SystemConfig
	err := s.load(ctx, systemFile, &cfg)
	return cfg, err
}

// SaveSystem replaces the system document.
func (s *FileStore) SaveSystem(ctx context.Context, cfg SystemConfig) error {
	return s.save(ctx, systemFile, cfg)
}

// Features returns the feature flag document.
func (s *FileStore) Features(ctx context.Context) (FeaturesConfig, error) {
	var cfg FeaturesConfig
	if err := s.load(ctx, featuresFile, &cfg); err != nil {
		return FeaturesConfig{}, err
	}
	if cfg.Features == nil {
		cfg.Features = map[string]bool{}
	}
	return cfg, nil
}

// SaveFeatures replaces the feature flag document.
func (s *FileStore) SaveFeatures(ctx context.Context, cfg FeaturesConfig) error {
	return s.save(ctx, featuresFile, cfg)
}

// Contexts returns the connection settings document. Mode defaults to Simple.
func (s *FileStore) Contexts(ctx context.Context) (ContextsConfig, error) {
	var cfg ContextsConfig
	if err := s.load(ctx, contextsFile, &cfg); err != nil {
		return ContextsConfig{}, err
	}
	if cfg.Mode == "" {
		cfg.Mode = ConnectionModeSimple
	}
	return cfg, nil
}

// SaveContexts replaces the connection settings document.
func (s *FileStore) SaveContexts(ctx context.Context, cfg ContextsConfig) error {
	switch cfg.Mode {
	case "", ConnectionModeSimple, ConnectionModeAdvanced:
	default:
		return fmt.Errorf("unknown connection mode %q", cfg.Mode)
	}
	return s.save(ctx, contextsFile, cfg)
}

// Release returns the release document.
func (s *FileStore) Release(ctx context.Context) (ReleaseConfig, error) {
	var cfg ReleaseConfig
	err := s.load(ctx, releaseFile, &cfg)
	return cfg, err
}

// SaveRelease replaces the release document. A zero value clears it.
func (s *FileStore) SaveRelease(ctx context.Context, cfg ReleaseConfig) error {
	return s.save(ctx, releaseFile, cfg)
}

// load decodes a document. Missing files leave out untouched.
func (s *FileStore) load(ctx context.Context, name string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Debug().Str("path", path).Msg("config document missing, using defaults")
			return nil
		}
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

// save writes a document atomically.
func (s *FileStore) save(ctx context.Context, name string, doc any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(s.dir, "."+name+"-*")
	if err != nil {
		return err
	}

	cleanup := func() {
		_ = os.Remove(tempFile.Name())
	}

	encoder := json.NewEncoder(tempFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		_ = tempFile.Close()
		cleanup()
		return err
	}
	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		cleanup()
		return err
	}
	if err := tempFile.Close(); err != nil {
		cleanup()
		return err
	}

	if err := os.Rename(tempFile.Name(), filepath.Join(s.dir, name)); err != nil {
		cleanup()
		return err
	}

	if dirHandle, err := os.Open(s.dir); err == nil {
		_ = dirHandle.Sync()
		_ = dirHandle.Close()
	}

	return nil
}
