package manifest

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Contexts keeps contexts in manifest order. In YAML it is a mapping keyed by
// context name; in JSON it is an array.
type Contexts []Context

// UnmarshalYAML decodes the mapping node pairwise so declaration order survives.
func (c *Contexts) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: contexts must be a mapping", node.Line)
	}
	out := make(Contexts, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var name string
		if err := node.Content[i].Decode(&name); err != nil {
			return fmt.Errorf("line %d: context name: %w", node.Content[i].Line, err)
		}
		var ctx Context
		if err := node.Content[i+1].Decode(&ctx); err != nil {
			return fmt.Errorf("context %q: %w", name, err)
		}
		ctx.Name = name
		out = append(out, ctx)
	}
	*c = out
	return nil
}

// MarshalYAML encodes contexts back into an ordered mapping.
func (c Contexts) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, ctx := range c {
		var value yaml.Node
		if err := value.Encode(ctx); err != nil {
			return nil, err
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: ctx.Name},
			&value,
		)
	}
	return node, nil
}

// UnmarshalJSON accepts the array form.
func (c *Contexts) UnmarshalJSON(data []byte) error {
	var list []Context
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*c = list
	return nil
}
