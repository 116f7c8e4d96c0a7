package catalog

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/readystackgo/rsgo/internal/manifest"
	"gopkg.in/yaml.v3"
)

// Stack manifest formats.
const (
	FormatManifest = "manifest"
	FormatCompose  = "compose"
)

// File is the YAML catalog layout:
// products: [{groupId, name, version, stacks: [{name, manifest, format}]}]
type File struct {
	Products []FileProduct `yaml:"products"`
}

// FileProduct is one product entry of a catalog file.
type FileProduct struct {
	GroupID     string      `yaml:"groupId"`
	Name        string      `yaml:"name"`
	Description string      `yaml:"description,omitempty"`
	Version     string      `yaml:"version"`
	Stacks      []FileStack `yaml:"stacks"`
}

// FileStack points at a stack manifest relative to the catalog file.
type FileStack struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Manifest    string `yaml:"manifest"`
	Format      string `yaml:"format,omitempty"`
}

// LoadFile parses a catalog file and the manifests it references. Every
// returned product carries the catalog path as its Source.
func LoadFile(ctx context.Context, path string) ([]ProductDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}

	var file File
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse catalog file: %w", err)
	}
	if len(file.Products) == 0 {
		return nil, fmt.Errorf("catalog file contains no products")
	}

	baseDir := filepath.Dir(path)
	products := make([]ProductDefinition, 0, len(file.Products))
	seen := make(map[string]bool, len(file.Products))
	for i, fp := range file.Products {
		if fp.GroupID == "" {
			return nil, fmt.Errorf("product %d: groupId is required", i)
		}
		id := ProductID(fp.GroupID, fp.Version)
		if seen[id] {
			return nil, fmt.Errorf("product %q: duplicate version %q", fp.GroupID, fp.Version)
		}
		seen[id] = true

		product := ProductDefinition{
			ID:             id,
			GroupID:        fp.GroupID,
			Name:           fp.Name,
			Description:    fp.Description,
			ProductVersion: fp.Version,
			Source:         path,
		}
		if product.Name == "" {
			product.Name = fp.GroupID
		}
		for _, fs := range fp.Stacks {
			m, err := loadStackManifest(ctx, baseDir, fs, fp.Version)
			if err != nil {
				return nil, fmt.Errorf("product %q stack %q: %w", fp.GroupID, fs.Name, err)
			}
			product.Stacks = append(product.Stacks, StackDefinition{
				ID:          StackID(id, fs.Name),
				Name:        fs.Name,
				Description: fs.Description,
				Manifest:    m,
			})
		}
		if err := product.Validate(); err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, nil
}

// Reload replaces every product from the catalog file in the cache.
func (c *ProductCache) Reload(ctx context.Context, path string) (int, error) {
	products, err := LoadFile(ctx, path)
	if err != nil {
		return 0, err
	}
	c.RemoveBySource(path)
	for _, p := range products {
		if err := c.Set(p); err != nil {
			return 0, err
		}
	}
	return len(products), nil
}

func loadStackManifest(ctx context.Context, baseDir string, fs FileStack, productVersion string) (*manifest.ReleaseManifest, error) {
	if fs.Manifest == "" {
		return nil, fmt.Errorf("manifest path is required")
	}
	path := fs.Manifest
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	format := fs.Format
	if format == "" {
		format = FormatManifest
		if strings.Contains(strings.ToLower(filepath.Base(path)), "compose") {
			format = FormatCompose
		}
	}

	var m *manifest.ReleaseManifest
	switch format {
	case FormatManifest:
		m, err = manifest.Parse(body)
	case FormatCompose:
		m, err = manifest.LoadCompose(ctx, body, fs.Name, productVersion)
	default:
		return nil, fmt.Errorf("unknown manifest format %q", format)
	}
	if err != nil {
		return nil, err
	}
	if m.StackVersion == "" {
		m.StackVersion = productVersion
	}
	if m.ProductVersion == "" {
		m.ProductVersion = productVersion
	}
	return m, nil
}
