package plugins

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseConstantsYAML(t *testing.T) {
	constants, err := ParseConstantsYAML([]byte("constants:\n  num_envs: 512\n  sim_device: cuda:0\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if constants["num_envs"] != 512 {
		t.Fatalf("unexpected num_envs: %v", constants["num_envs"])
	}
	if constants["sim_device"] != "cuda:0" {
		t.Fatalf("unexpected sim_device: %v", constants["sim_device"])
	}
}

func TestParseConstantsYAMLRejectsEmptyTables(t *testing.T) {
	if _, err := ParseConstantsYAML([]byte("")); err == nil {
		t.Fatalf("expected error for empty payload")
	}
	if _, err := ParseConstantsYAML([]byte("other: 1\n")); err == nil {
		t.Fatalf("expected error when no constants are declared")
	}
}

func TestLoadConstantsDir(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"a.yaml":      "constants:\n  num_envs: 256\n",
		"b.yml":       "constants:\n  pipeline: cpu\n",
		"ignored.txt": "not a plugin",
	}
	for name, payload := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(payload), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	constants, err := LoadConstantsDir(dir)
	if err != nil {
		t.Fatalf("load dir: %v", err)
	}
	if len(constants) != 2 {
		t.Fatalf("expected 2 constants, got %v", constants)
	}
	if constants["pipeline"] != "cpu" {
		t.Fatalf("unexpected pipeline: %v", constants["pipeline"])
	}
}

func TestLoadConstantsDirRejectsDuplicates(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.yaml", "b.yaml"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("constants:\n  num_envs: 1\n"), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if _, err := LoadConstantsDir(dir); err == nil {
		t.Fatalf("expected duplicate constant rejection across files")
	}
}

func TestLoadConstantsDirMissingIsEmpty(t *testing.T) {
	constants, err := LoadConstantsDir(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("missing dir should not error: %v", err)
	}
	if constants != nil {
		t.Fatalf("expected no constants, got %v", constants)
	}
}
