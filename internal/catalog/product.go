package catalog

import (
	"fmt"
	"strings"

	"github.com/readystackgo/rsgo/internal/manifest"
)

// StackDefinition is one stack of a catalog product.
type StackDefinition struct {
	ID          string
	Name        string
	Description string
	Manifest    *manifest.ReleaseManifest
}

// ProductDefinition is one version of a catalog product. Versions of the same
// product share a GroupID.
type ProductDefinition struct {
	ID             string
	GroupID        string
	Name           string
	Description    string
	ProductVersion string
	Source         string
	Stacks         []StackDefinition
}

// ProductID builds the identifier of a product version.
func ProductID(groupID, version string) string {
	return groupID + "@" + NormalizeVersion(version)
}

// StackID builds the identifier of a stack within a product version.
func StackID(productID, stackName string) string {
	return productID + "/" + stackName
}

// Validate checks required fields.
func (p ProductDefinition) Validate() error {
	if strings.TrimSpace(p.GroupID) == "" {
		return fmt.Errorf("product group id is required")
	}
	if strings.TrimSpace(p.ProductVersion) == "" {
		return fmt.Errorf("product %q: version is required", p.GroupID)
	}
	seen := make(map[string]bool, len(p.Stacks))
	for _, s := range p.Stacks {
		if s.Name == "" {
			return fmt.Errorf("product %q: stack name is required", p.GroupID)
		}
		if seen[s.Name] {
			return fmt.Errorf("product %q: duplicate stack %q", p.GroupID, s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

// Stack returns the named stack.
func (p ProductDefinition) Stack(name string) (StackDefinition, bool) {
	for _, s := range p.Stacks {
		if s.Name == name {
			return s, true
		}
	}
	return StackDefinition{}, false
}
