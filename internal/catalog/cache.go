// Package catalog holds the product catalog: versioned product and stack
// definitions kept in memory for deployment selection.
package catalog

import (
	"sort"
	"sync"
)

// ProductCache is a concurrency-safe registry of product versions keyed by
// group id and version. Several versions of a product coexist.
type ProductCache struct {
	mu     sync.RWMutex
	groups map[string]map[string]ProductDefinition
	byID   map[string]productKey
}

type productKey struct {
	group   string
	version string
}

// NewProductCache returns an empty cache.
func NewProductCache() *ProductCache {
	return &ProductCache{
		groups: map[string]map[string]ProductDefinition{},
		byID:   map[string]productKey{},
	}
}

// Set adds or replaces a product version.
func (c *ProductCache) Set(product ProductDefinition) error {
	if err := product.Validate(); err != nil {
		return err
	}
	if product.ID == "" {
		product.ID = ProductID(product.GroupID, product.ProductVersion)
	}
	product = cloneProduct(product)

	c.mu.Lock()
	defer c.mu.Unlock()

	if previous, ok := c.byID[product.ID]; ok {
		c.deleteLocked(product.ID, previous)
	}
	versions, ok := c.groups[product.GroupID]
	if !ok {
		versions = map[string]ProductDefinition{}
		c.groups[product.GroupID] = versions
	}
	if replaced, ok := versions[product.ProductVersion]; ok {
		delete(c.byID, replaced.ID)
	}
	versions[product.ProductVersion] = product
	c.byID[product.ID] = productKey{group: product.GroupID, version: product.ProductVersion}
	return nil
}

// GetProduct returns a product version by id.
func (c *ProductCache) GetProduct(id string) (ProductDefinition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	key, ok := c.byID[id]
	if !ok {
		return ProductDefinition{}, false
	}
	return cloneProduct(c.groups[key.group][key.version]), true
}

// GetLatest returns the highest version of a group.
func (c *ProductCache) GetLatest(groupID string) (ProductDefinition, bool) {
	versions := c.GetProductVersions(groupID)
	if len(versions) == 0 {
		return ProductDefinition{}, false
	}
	return versions[0], true
}

// GetProductVersion returns a specific version of a group. An exact match
// wins; otherwise versions are compared after normalization.
func (c *ProductCache) GetProductVersion(groupID, version string) (ProductDefinition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	versions := c.groups[groupID]
	if p, ok := versions[version]; ok {
		return cloneProduct(p), true
	}
	for v, p := range versions {
		if CompareVersions(v, version) == 0 {
			return cloneProduct(p), true
		}
	}
	return ProductDefinition{}, false
}

// GetProductVersions returns all versions of a group, newest first.
func (c *ProductCache) GetProductVersions(groupID string) []ProductDefinition {
	c.mu.RLock()
	versions := make([]ProductDefinition, 0, len(c.groups[groupID]))
	for _, p := range c.groups[groupID] {
		versions = append(versions, cloneProduct(p))
	}
	c.mu.RUnlock()

	sortDescending(versions)
	return versions
}

// GetAvailableUpgrades returns versions strictly newer than current, newest first.
func (c *ProductCache) GetAvailableUpgrades(groupID, current string) []ProductDefinition {
	var upgrades []ProductDefinition
	for _, p := range c.GetProductVersions(groupID) {
		if CompareVersions(p.ProductVersion, current) > 0 {
			upgrades = append(upgrades, p)
		}
	}
	return upgrades
}

// GetAllProducts returns the latest version of every group, sorted by name.
func (c *ProductCache) GetAllProducts() []ProductDefinition {
	c.mu.RLock()
	groups := make([]string, 0, len(c.groups))
	for group := range c.groups {
		groups = append(groups, group)
	}
	c.mu.RUnlock()

	products := make([]ProductDefinition, 0, len(groups))
	for _, group := range groups {
		if latest, ok := c.GetLatest(group); ok {
			products = append(products, latest)
		}
	}
	sort.Slice(products, func(i, j int) bool {
		if products[i].Name != products[j].Name {
			return products[i].Name < products[j].Name
		}
		return products[i].GroupID < products[j].GroupID
	})
	return products
}

// GetStack finds a stack definition by id across all products.
func (c *ProductCache) GetStack(stackID string) (StackDefinition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, versions := range c.groups {
		for _, p := range versions {
			for _, s := range p.Stacks {
				if s.ID == stackID {
					return s, true
				}
			}
		}
	}
	return StackDefinition{}, false
}

// Remove deletes a product version. Removing the last version of a group
// removes the group.
func (c *ProductCache) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	key, ok := c.byID[id]
	if !ok {
		return false
	}
	c.deleteLocked(id, key)
	return true
}

// RemoveBySource deletes every product loaded from source and returns the count.
func (c *ProductCache) RemoveBySource(source string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var ids []string
	for id, key := range c.byID {
		if c.groups[key.group][key.version].Source == source {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		c.deleteLocked(id, c.byID[id])
	}
	return len(ids)
}

// Clear removes everything.
func (c *ProductCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.groups = map[string]map[string]ProductDefinition{}
	c.byID = map[string]productKey{}
}

// Count returns the number of cached product versions.
func (c *ProductCache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}

func (c *ProductCache) deleteLocked(id string, key productKey) {
	delete(c.byID, id)
	versions := c.groups[key.group]
	delete(versions, key.version)
	if len(versions) == 0 {
		delete(c.groups, key.group)
	}
}

func sortDescending(products []ProductDefinition) {
	sort.SliceStable(products, func(i, j int) bool {
		return CompareVersions(products[i].ProductVersion, products[j].ProductVersion) > 0
	})
}

func cloneProduct(p ProductDefinition) ProductDefinition {
	p.Stacks = append([]StackDefinition(nil), p.Stacks...)
	return p
}
