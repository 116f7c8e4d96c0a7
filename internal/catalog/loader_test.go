package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogYAML = `
products:
  - groupId: shop
    name: Shop
    version: 1.0.0
    stacks:
      - name: backend
        manifest: stacks/backend.yaml
      - name: storefront
        manifest: stacks/docker-compose.yml
  - groupId: shop
    name: Shop
    version: 1.1.0
    stacks:
      - name: backend
        manifest: stacks/backend.yaml
`

const backendManifest = `
manifestVersion: "1"
stackVersion: 1.0.0
contexts:
  api:
    image: shop/api
  db:
    image: postgres:16
`

const storefrontCompose = `
services:
  web:
    image: nginx:1.27
    depends_on:
      - cache
  cache:
    image: redis:7
`

func writeCatalog(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "stacks"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "catalog.yaml"), []byte(catalogYAML), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stacks", "backend.yaml"), []byte(backendManifest), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stacks", "docker-compose.yml"), []byte(storefrontCompose), 0o600))
	return filepath.Join(dir, "catalog.yaml")
}

func TestLoadFile(t *testing.T) {
	path := writeCatalog(t)

	products, err := LoadFile(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, products, 2)

	first := products[0]
	assert.Equal(t, "shop@1.0.0", first.ID)
	assert.Equal(t, path, first.Source)
	require.Len(t, first.Stacks, 2)
	assert.Equal(t, "shop@1.0.0/backend", first.Stacks[0].ID)
	assert.Len(t, first.Stacks[0].Manifest.Contexts, 2)

	storefront := first.Stacks[1].Manifest
	web, ok := storefront.Context("web")
	require.True(t, ok)
	assert.Equal(t, []string{"cache"}, web.DependsOn)
	assert.Equal(t, "1.0.0", storefront.StackVersion)
}

func TestProductCache_Reload(t *testing.T) {
	path := writeCatalog(t)
	cache := NewProductCache()
	require.NoError(t, cache.Set(ProductDefinition{GroupID: "legacy", ProductVersion: "0.1.0", Source: path}))

	n, err := cache.Reload(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, cache.Count())
	_, ok := cache.GetLatest("legacy")
	assert.False(t, ok)

	latest, ok := cache.GetLatest("shop")
	require.True(t, ok)
	assert.Equal(t, "1.1.0", latest.ProductVersion)
}

func TestLoadFile_Errors(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"empty":            "products: []\n",
		"unknown field":    "products:\n  - groupId: a\n    version: 1.0.0\n    stackz: []\n",
		"missing group":    "products:\n  - version: 1.0.0\n",
		"missing manifest": "products:\n  - groupId: a\n    version: 1.0.0\n    stacks:\n      - name: web\n        manifest: nope.yaml\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
			_, err := LoadFile(context.Background(), path)
			assert.Error(t, err)
		})
	}
}
