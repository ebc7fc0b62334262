// internal/config/node.go
//
// This package holds the typed parameter tree that task documents decode
// into. Every leaf is classified once at load time, so downstream code never
// sees an untyped map[string]any.

package config

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind tags the variants a Node can take.
type Kind int

const (
	// KindScalar holds a single bool, int64, float64, or string value.
	KindScalar Kind = iota
	// KindSequence holds an ordered list of child nodes.
	KindSequence
	// KindMapping holds string-keyed children in declaration order.
	KindMapping
	// KindExpr is a deferred ${...} leaf awaiting resolution.
	KindExpr
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	case KindExpr:
		return "expression"
	default:
		return "unknown"
	}
}

// ErrMalformedDocument reports a document rejected at load time.
var ErrMalformedDocument = errors.New("malformed document")

// ErrTypeMismatch reports a leaf whose type does not fit the requested use.
var ErrTypeMismatch = errors.New("type mismatch")

// Node is one vertex of a parameter tree. Exactly one of the variant fields
// is populated, selected by Kind. Keys within a mapping are unique and the
// tree is acyclic by construction.
type Node struct {
	Kind Kind

	// Value holds the scalar payload for KindScalar: bool, int64, float64,
	// or string. A nil Value is the null scalar.
	Value any

	// Items holds KindSequence children in order.
	Items []*Node

	// Keys preserves KindMapping declaration order; children is keyed lookup.
	Keys     []string
	children map[string]*Node

	// Expr holds the raw ${...} text for KindExpr.
	Expr string
}

// Scalar builds a scalar leaf. Integer and float inputs are normalized to
// int64/float64 so comparisons behave uniformly.
func Scalar(value any) *Node {
	return &Node{Kind: KindScalar, Value: normalizeScalar(value)}
}

// Sequence builds a sequence node over the given items.
func Sequence(items ...*Node) *Node {
	return &Node{Kind: KindSequence, Items: items}
}

// Mapping builds an empty mapping node.
func Mapping() *Node {
	return &Node{Kind: KindMapping, children: map[string]*Node{}}
}

// Expression builds a deferred-expression leaf from its raw ${...} text.
func Expression(raw string) *Node {
	return &Node{Kind: KindExpr, Expr: raw}
}

// Set inserts or replaces a mapping child, preserving first-seen key order.
func (n *Node) Set(key string, child *Node) error {
	if n == nil || n.Kind != KindMapping {
		return fmt.Errorf("config: set %q on %s node: %w", key, n.Kind, ErrTypeMismatch)
	}
	if n.children == nil {
		n.children = map[string]*Node{}
	}
	if _, exists := n.children[key]; !exists {
		n.Keys = append(n.Keys, key)
	}
	n.children[key] = child
	return nil
}

// Child returns the mapping child for key.
func (n *Node) Child(key string) (*Node, bool) {
	if n == nil || n.Kind != KindMapping {
		return nil, false
	}
	child, ok := n.children[key]
	return child, ok
}

// Len reports the number of direct children for sequences and mappings.
func (n *Node) Len() int {
	if n == nil {
		return 0
	}
	switch n.Kind {
	case KindSequence:
		return len(n.Items)
	case KindMapping:
		return len(n.Keys)
	default:
		return 0
	}
}

// Lookup walks a dot-separated path from this node. Sequence segments are
// decimal indices. The boolean reports whether every segment existed.
func (n *Node) Lookup(path string) (*Node, bool) {
	current := n
	if strings.TrimSpace(path) == "" {
		return current, current != nil
	}
	for _, segment := range strings.Split(path, ".") {
		if current == nil {
			return nil, false
		}
		switch current.Kind {
		case KindMapping:
			child, ok := current.Child(segment)
			if !ok {
				return nil, false
			}
			current = child
		case KindSequence:
			idx, ok := sequenceIndex(segment, len(current.Items))
			if !ok {
				return nil, false
			}
			current = current.Items[idx]
		default:
			return nil, false
		}
	}
	return current, current != nil
}

// Bool returns the scalar as a bool.
func (n *Node) Bool() (bool, error) {
	if n == nil || n.Kind != KindScalar {
		return false, typeErr(n, "bool")
	}
	v, ok := n.Value.(bool)
	if !ok {
		return false, typeErr(n, "bool")
	}
	return v, nil
}

// Int returns the scalar as an int64. Floats with integral values convert.
func (n *Node) Int() (int64, error) {
	if n == nil || n.Kind != KindScalar {
		return 0, typeErr(n, "int")
	}
	switch v := n.Value.(type) {
	case int64:
		return v, nil
	case float64:
		if v == math.Trunc(v) {
			return int64(v), nil
		}
	}
	return 0, typeErr(n, "int")
}

// Float returns the scalar as a float64. Integers widen.
func (n *Node) Float() (float64, error) {
	if n == nil || n.Kind != KindScalar {
		return 0, typeErr(n, "float")
	}
	switch v := n.Value.(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	}
	return 0, typeErr(n, "float")
}

// StringValue returns the scalar as a string.
func (n *Node) StringValue() (string, error) {
	if n == nil || n.Kind != KindScalar {
		return "", typeErr(n, "string")
	}
	v, ok := n.Value.(string)
	if !ok {
		return "", typeErr(n, "string")
	}
	return v, nil
}

// Floats returns a sequence of numeric scalars as a float slice.
func (n *Node) Floats() ([]float64, error) {
	if n == nil || n.Kind != KindSequence {
		return nil, typeErr(n, "float sequence")
	}
	out := make([]float64, 0, len(n.Items))
	for _, item := range n.Items {
		v, err := item.Float()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// IsNull reports whether the node is the null scalar.
func (n *Node) IsNull() bool {
	return n != nil && n.Kind == KindScalar && n.Value == nil
}

// Clone returns a deep copy of the subtree.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := &Node{Kind: n.Kind, Value: n.Value, Expr: n.Expr}
	if n.Items != nil {
		out.Items = make([]*Node, len(n.Items))
		for i, item := range n.Items {
			out.Items[i] = item.Clone()
		}
	}
	if n.Kind == KindMapping {
		out.Keys = append([]string(nil), n.Keys...)
		out.children = make(map[string]*Node, len(n.children))
		for key, child := range n.children {
			out.children[key] = child.Clone()
		}
	}
	return out
}

// Equal reports deep equality of two subtrees, including key order.
func (n *Node) Equal(other *Node) bool {
	if n == nil || other == nil {
		return n == other
	}
	if n.Kind != other.Kind {
		return false
	}
	switch n.Kind {
	case KindScalar:
		return n.Value == other.Value
	case KindExpr:
		return n.Expr == other.Expr
	case KindSequence:
		if len(n.Items) != len(other.Items) {
			return false
		}
		for i := range n.Items {
			if !n.Items[i].Equal(other.Items[i]) {
				return false
			}
		}
		return true
	case KindMapping:
		if len(n.Keys) != len(other.Keys) {
			return false
		}
		for i, key := range n.Keys {
			if other.Keys[i] != key {
				return false
			}
			if !n.children[key].Equal(other.children[key]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// HasExpressions reports whether any leaf in the subtree is unresolved.
func (n *Node) HasExpressions() bool {
	if n == nil {
		return false
	}
	switch n.Kind {
	case KindExpr:
		return true
	case KindSequence:
		for _, item := range n.Items {
			if item.HasExpressions() {
				return true
			}
		}
	case KindMapping:
		for _, key := range n.Keys {
			if n.children[key].HasExpressions() {
				return true
			}
		}
	}
	return false
}

// FromGo converts a plain Go value (as produced by yaml.Unmarshal or flag
// parsing) into a Node. Map keys are sorted for a stable order.
func FromGo(value any) *Node {
	switch v := value.(type) {
	case *Node:
		return v
	case []any:
		items := make([]*Node, len(v))
		for i, item := range v {
			items[i] = FromGo(item)
		}
		return Sequence(items...)
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		node := Mapping()
		for _, key := range keys {
			_ = node.Set(key, FromGo(v[key]))
		}
		return node
	case string:
		if isExprString(v) {
			return Expression(v)
		}
		return Scalar(v)
	default:
		return Scalar(v)
	}
}

// MarshalYAML renders the node back into YAML-encodable form so resolved
// trees can be printed with yaml.Marshal.
func (n *Node) MarshalYAML() (any, error) {
	if n == nil {
		return nil, nil
	}
	switch n.Kind {
	case KindScalar:
		return n.Value, nil
	case KindExpr:
		return n.Expr, nil
	case KindSequence:
		out := make([]any, len(n.Items))
		for i, item := range n.Items {
			v, err := item.MarshalYAML()
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case KindMapping:
		doc := &yaml.Node{Kind: yaml.MappingNode}
		for _, key := range n.Keys {
			keyNode := &yaml.Node{Kind: yaml.ScalarNode, Value: key}
			valueNode := &yaml.Node{}
			v, err := n.children[key].MarshalYAML()
			if err != nil {
				return nil, err
			}
			if err := valueNode.Encode(v); err != nil {
				return nil, fmt.Errorf("config: encode %s: %w", key, err)
			}
			doc.Content = append(doc.Content, keyNode, valueNode)
		}
		return doc, nil
	default:
		return nil, fmt.Errorf("config: marshal %s node: %w", n.Kind, ErrTypeMismatch)
	}
}

func normalizeScalar(value any) any {
	switch v := value.(type) {
	case nil, bool, int64, float64, string:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case uint:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		return int64(v)
	case float32:
		return float64(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func isExprString(s string) bool {
	trimmed := strings.TrimSpace(s)
	return strings.HasPrefix(trimmed, "${") && strings.HasSuffix(trimmed, "}")
}

func sequenceIndex(segment string, length int) (int, bool) {
	idx := 0
	if segment == "" {
		return 0, false
	}
	for _, r := range segment {
		if r < '0' || r > '9' {
			return 0, false
		}
		idx = idx*10 + int(r-'0')
	}
	if idx >= length {
		return 0, false
	}
	return idx, true
}

func typeErr(n *Node, want string) error {
	if n == nil {
		return fmt.Errorf("config: want %s, node is missing: %w", want, ErrTypeMismatch)
	}
	if n.Kind == KindScalar {
		return fmt.Errorf("config: want %s, have %T: %w", want, n.Value, ErrTypeMismatch)
	}
	return fmt.Errorf("config: want %s, have %s node: %w", want, n.Kind, ErrTypeMismatch)
}
