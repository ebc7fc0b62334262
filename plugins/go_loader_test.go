package plugins

import (
	"os"
	"path/filepath"
	"testing"
)

const doublePlugin = `package plugin

import "fmt"

func ExprFunctions() (map[string]func([]interface{}) (interface{}, error), error) {
	return map[string]func([]interface{}) (interface{}, error){
		"double": func(args []interface{}) (interface{}, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("double expects one argument, got %d", len(args))
			}
			v, ok := args[0].(int64)
			if !ok {
				return nil, fmt.Errorf("double expects an int, got %T", args[0])
			}
			return v * 2, nil
		},
	}, nil
}
`

func writePlugin(t *testing.T, dir, name, code string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(code), 0644); err != nil {
		t.Fatalf("write plugin %s: %v", name, err)
	}
}

func TestLoadFuncDir(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "double.go", doublePlugin)

	funcs, err := LoadFuncDir(dir)
	if err != nil {
		t.Fatalf("load funcs: %v", err)
	}
	double, ok := funcs["double"]
	if !ok {
		t.Fatalf("missing double function, have %v", funcs)
	}
	result, err := double([]any{int64(21)})
	if err != nil {
		t.Fatalf("call double: %v", err)
	}
	if result != int64(42) {
		t.Fatalf("expected 42, got %v", result)
	}
	if _, err := double([]any{"nope"}); err == nil {
		t.Fatalf("expected plugin-side type error")
	}
}

func TestLoadFuncDirRejectsMissingEntrypoint(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "bad.go", "package plugin\n\nfunc Other() {}\n")
	if _, err := LoadFuncDir(dir); err == nil {
		t.Fatalf("expected error for plugin without ExprFunctions")
	}
}

func TestLoadFuncDirRejectsDuplicateNames(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "a.go", doublePlugin)
	writePlugin(t, dir, "b.go", doublePlugin)
	if _, err := LoadFuncDir(dir); err == nil {
		t.Fatalf("expected duplicate function rejection across files")
	}
}

func TestLoadFuncDirMissingIsEmpty(t *testing.T) {
	funcs, err := LoadFuncDir(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("missing dir should not error: %v", err)
	}
	if funcs != nil {
		t.Fatalf("expected no functions, got %v", funcs)
	}
}

func TestLoadDirMergesKinds(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "double.go", doublePlugin)
	if err := os.WriteFile(filepath.Join(dir, "constants.yaml"), []byte("constants:\n  num_envs: 128\n"), 0644); err != nil {
		t.Fatalf("write constants: %v", err)
	}
	bundle, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("load dir: %v", err)
	}
	if _, ok := bundle.Funcs["double"]; !ok {
		t.Fatalf("bundle missing double function")
	}
	if bundle.Constants["num_envs"] != 128 {
		t.Fatalf("bundle missing constants: %v", bundle.Constants)
	}
}
