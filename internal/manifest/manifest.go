package manifest

import (
	"fmt"
	"strings"
)

// ReleaseManifest describes the contexts of a stack release.
type ReleaseManifest struct {
	ManifestVersion     string             `yaml:"manifestVersion" json:"manifestVersion"`
	ProductVersion      string             `yaml:"productVersion,omitempty" json:"productVersion,omitempty"`
	StackVersion        string             `yaml:"stackVersion" json:"stackVersion"`
	Gateway             *Gateway           `yaml:"gateway,omitempty" json:"gateway,omitempty"`
	Contexts            Contexts           `yaml:"contexts" json:"contexts"`
	Features            map[string]Feature `yaml:"features,omitempty" json:"features,omitempty"`
	Networks            map[string]Network `yaml:"networks,omitempty" json:"networks,omitempty"`
	MaintenanceObserver *ObserverSettings  `yaml:"maintenanceObserver,omitempty" json:"maintenanceObserver,omitempty"`
}

// Gateway designates the context that is always deployed last.
type Gateway struct {
	Context          string `yaml:"context" json:"context"`
	PublicPort       int    `yaml:"publicPort,omitempty" json:"publicPort,omitempty"`
	InternalHTTPPort int    `yaml:"internalHttpPort,omitempty" json:"internalHttpPort,omitempty"`
}

// Context is a named service definition.
type Context struct {
	Name          string            `yaml:"-" json:"name"`
	Image         string            `yaml:"image" json:"image"`
	Version       string            `yaml:"version,omitempty" json:"version,omitempty"`
	ContainerName string            `yaml:"containerName,omitempty" json:"containerName,omitempty"`
	Internal      bool              `yaml:"internal,omitempty" json:"internal,omitempty"`
	DependsOn     []string          `yaml:"dependsOn,omitempty" json:"dependsOn,omitempty"`
	Env           map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	Ports         []string          `yaml:"ports,omitempty" json:"ports,omitempty"`
	Volumes       []string          `yaml:"volumes,omitempty" json:"volumes,omitempty"`
	Networks      []string          `yaml:"networks,omitempty" json:"networks,omitempty"`
}

// Feature is a toggle injected as RSGO_FEATURE_<name>.
type Feature struct {
	Default     bool   `yaml:"default" json:"default"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Network is a network referenced by contexts.
type Network struct {
	External bool `yaml:"external,omitempty" json:"external,omitempty"`
}

// Context returns the named context.
func (m *ReleaseManifest) Context(name string) (Context, bool) {
	for _, c := range m.Contexts {
		if c.Name == name {
			return c, true
		}
	}
	return Context{}, false
}

// GatewayContext returns the gateway context name, or "" when none.
func (m *ReleaseManifest) GatewayContext() string {
	if m.Gateway == nil {
		return ""
	}
	return m.Gateway.Context
}

// Validate checks the structural rules of a manifest.
func (m *ReleaseManifest) Validate() error {
	if len(m.Contexts) == 0 {
		return fmt.Errorf("manifest has no contexts")
	}
	seen := make(map[string]struct{}, len(m.Contexts))
	for _, c := range m.Contexts {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("context missing name")
		}
		if _, ok := seen[c.Name]; ok {
			return fmt.Errorf("duplicate context %q", c.Name)
		}
		seen[c.Name] = struct{}{}
		if strings.TrimSpace(c.Image) == "" {
			return fmt.Errorf("context %q missing image", c.Name)
		}
	}
	if gw := m.GatewayContext(); gw != "" {
		if _, ok := seen[gw]; !ok {
			return fmt.Errorf("gateway context %q is not defined", gw)
		}
	}
	if m.MaintenanceObserver != nil {
		if err := m.MaintenanceObserver.Validate(); err != nil {
			return fmt.Errorf("maintenance observer: %w", err)
		}
	}
	return nil
}
