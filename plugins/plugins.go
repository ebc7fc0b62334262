// Package plugins loads user-supplied resolver extensions from a directory:
// YAML files declaring constant tables, and Go files (interpreted with
// yaegi) exporting expression functions. The loaded bundle plugs into
// resolve.Options before a task document is resolved.
package plugins

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dokkev/gymconf/internal/resolve"
)

// builtinFuncs are resolver builtins a plugin may never shadow.
var builtinFuncs = map[string]bool{
	"resolve_default": true,
	"eq":              true,
	"contains":        true,
}

// Bundle collects everything loaded from a plugin directory.
type Bundle struct {
	// Funcs are extra expression functions, keyed by call name.
	Funcs map[string]resolve.Func
	// Constants are extra top-level values visible to path references,
	// merged into resolve.Options.Overrides by the caller.
	Constants map[string]any
}

// Merge folds other into the bundle, rejecting duplicate names.
func (b *Bundle) Merge(other Bundle) error {
	for name, fn := range other.Funcs {
		if err := b.addFunc(name, fn); err != nil {
			return err
		}
	}
	for name, value := range other.Constants {
		if b.Constants == nil {
			b.Constants = map[string]any{}
		}
		if _, exists := b.Constants[name]; exists {
			return fmt.Errorf("plugin: constant %q declared twice", name)
		}
		b.Constants[name] = value
	}
	return nil
}

// FuncNames returns the registered function names in sorted order.
func (b Bundle) FuncNames() []string {
	names := make([]string, 0, len(b.Funcs))
	for name := range b.Funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (b *Bundle) addFunc(name string, fn resolve.Func) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("plugin: function name is empty")
	}
	if builtinFuncs[trimmed] {
		return fmt.Errorf("plugin: function %q shadows a builtin", trimmed)
	}
	if fn == nil {
		return fmt.Errorf("plugin: function %q is nil", trimmed)
	}
	if b.Funcs == nil {
		b.Funcs = map[string]resolve.Func{}
	}
	if _, exists := b.Funcs[trimmed]; exists {
		return fmt.Errorf("plugin: function %q declared twice", trimmed)
	}
	b.Funcs[trimmed] = fn
	return nil
}

// LoadDir scans a directory for *.yaml constant tables and *.go expression
// functions and returns the merged bundle. A missing directory is treated
// as "no plugins".
func LoadDir(dir string) (Bundle, error) {
	var bundle Bundle
	constants, err := LoadConstantsDir(dir)
	if err != nil {
		return Bundle{}, err
	}
	if err := bundle.Merge(Bundle{Constants: constants}); err != nil {
		return Bundle{}, err
	}
	funcs, err := LoadFuncDir(dir)
	if err != nil {
		return Bundle{}, err
	}
	if err := bundle.Merge(Bundle{Funcs: funcs}); err != nil {
		return Bundle{}, err
	}
	return bundle, nil
}
