// internal/config/document.go
//
// Loading and validation of task documents. A task document is one YAML
// file describing a simulated RL task: env shape, sim timestep parameters,
// and the task.randomization_params schedule. Decoding goes through
// yaml.Node so mappings keep their declaration order and duplicate keys are
// rejected instead of silently overwritten.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document pairs a parsed parameter tree with its on-disk source.
type Document struct {
	Root *Node
	Path string
}

// TaskDocument is a validated view over the well-known sections of a task
// document. Sections the engine never interprets (reward scales, physx
// solver knobs) stay behind the generic tree.
type TaskDocument struct {
	Name          string
	PhysicsEngine *Node
	Env           *Node
	Sim           *Node
	Task          *Node

	Root *Node
}

// Parse decodes a YAML payload into a parameter tree.
func Parse(data []byte) (*Node, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, fmt.Errorf("config: document payload is empty: %w", ErrMalformedDocument)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: decode document: %v: %w", err, ErrMalformedDocument)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 {
		return nil, fmt.Errorf("config: expected a single YAML document: %w", ErrMalformedDocument)
	}
	return fromYAML(doc.Content[0])
}

// Load reads and parses a task document from disk.
func Load(path string) (*Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config: stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config: %s is a directory: %w", path, ErrMalformedDocument)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	root, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &Document{Root: root, Path: filepath.Clean(path)}, nil
}

// Task validates the document's top-level shape and returns the typed view.
// The root must be a mapping; env, sim, and task must be mappings when
// present. Call this on the resolved tree when name may be an expression.
func (d *Document) Task() (TaskDocument, error) {
	return TaskView(d.Root)
}

// TaskView builds the TaskDocument view over an arbitrary tree root.
func TaskView(root *Node) (TaskDocument, error) {
	if root == nil || root.Kind != KindMapping {
		return TaskDocument{}, fmt.Errorf("config: document root must be a mapping: %w", ErrMalformedDocument)
	}
	view := TaskDocument{Root: root}
	if node, ok := root.Child("name"); ok {
		name, err := node.StringValue()
		if err != nil {
			return TaskDocument{}, fmt.Errorf("config: name: %w", err)
		}
		view.Name = name
	}
	view.PhysicsEngine, _ = root.Child("physics_engine")
	for _, section := range []struct {
		key  string
		dest **Node
	}{
		{"env", &view.Env},
		{"sim", &view.Sim},
		{"task", &view.Task},
	} {
		node, ok := root.Child(section.key)
		if !ok {
			continue
		}
		if node.Kind != KindMapping {
			return TaskDocument{}, fmt.Errorf("config: %s must be a mapping, have %s: %w", section.key, node.Kind, ErrMalformedDocument)
		}
		*section.dest = node
	}
	return view, nil
}

// Randomize reports whether the document opts into domain randomization.
func (t TaskDocument) Randomize() bool {
	if t.Task == nil {
		return false
	}
	node, ok := t.Task.Child("randomize")
	if !ok {
		return false
	}
	v, err := node.Bool()
	return err == nil && v
}

// RandomizationParams returns the task.randomization_params subtree.
func (t TaskDocument) RandomizationParams() (*Node, bool) {
	if t.Task == nil {
		return nil, false
	}
	return t.Task.Child("randomization_params")
}

func fromYAML(n *yaml.Node) (*Node, error) {
	switch n.Kind {
	case yaml.AliasNode:
		return fromYAML(n.Alias)
	case yaml.ScalarNode:
		return scalarFromYAML(n)
	case yaml.SequenceNode:
		items := make([]*Node, 0, len(n.Content))
		for _, item := range n.Content {
			child, err := fromYAML(item)
			if err != nil {
				return nil, err
			}
			items = append(items, child)
		}
		return Sequence(items...), nil
	case yaml.MappingNode:
		node := Mapping()
		for i := 0; i+1 < len(n.Content); i += 2 {
			keyNode := n.Content[i]
			if keyNode.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("config: line %d: mapping keys must be scalars: %w", keyNode.Line, ErrMalformedDocument)
			}
			key := keyNode.Value
			if _, exists := node.Child(key); exists {
				return nil, fmt.Errorf("config: line %d: duplicate key %q: %w", keyNode.Line, key, ErrMalformedDocument)
			}
			child, err := fromYAML(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			if err := node.Set(key, child); err != nil {
				return nil, err
			}
		}
		return node, nil
	default:
		return nil, fmt.Errorf("config: line %d: unsupported YAML node: %w", n.Line, ErrMalformedDocument)
	}
}

func scalarFromYAML(n *yaml.Node) (*Node, error) {
	switch n.Tag {
	case "!!null":
		return Scalar(nil), nil
	case "!!bool":
		v, err := strconv.ParseBool(strings.ToLower(n.Value))
		if err != nil {
			return nil, fmt.Errorf("config: line %d: bad bool %q: %w", n.Line, n.Value, ErrMalformedDocument)
		}
		return Scalar(v), nil
	case "!!int":
		v, err := strconv.ParseInt(n.Value, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("config: line %d: bad int %q: %w", n.Line, n.Value, ErrMalformedDocument)
		}
		return Scalar(v), nil
	case "!!float":
		v, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("config: line %d: bad float %q: %w", n.Line, n.Value, ErrMalformedDocument)
		}
		return Scalar(v), nil
	default:
		if isExprString(n.Value) {
			return Expression(strings.TrimSpace(n.Value)), nil
		}
		return Scalar(n.Value), nil
	}
}
