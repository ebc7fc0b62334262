package plugins

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// constantsFile models one YAML plugin document. Constants become extra
// top-level values visible to path references during resolution, the way
// an outer training config feeds num_threads or sim_device into a task
// document.
type constantsFile struct {
	Constants map[string]any `yaml:"constants"`
}

// ParseConstantsYAML decodes and validates a single constants payload.
func ParseConstantsYAML(data []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("plugin: constants payload is empty")
	}
	var parsed constantsFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("plugin: decode constants: %w", err)
	}
	if len(parsed.Constants) == 0 {
		return nil, fmt.Errorf("plugin: constants document declares no constants")
	}
	for name := range parsed.Constants {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("plugin: constant with empty name")
		}
	}
	return parsed.Constants, nil
}

// LoadConstantsFile reads a YAML file from disk and returns its constants.
func LoadConstantsFile(path string) (map[string]any, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("plugin: stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("plugin: %s is a directory", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("plugin: read %s: %w", path, err)
	}
	constants, err := ParseConstantsYAML(data)
	if err != nil {
		return nil, fmt.Errorf("plugin: %s: %w", path, err)
	}
	return constants, nil
}

// LoadConstantsDir scans a directory for *.yaml constant tables. Missing
// directories are treated as "no plugins" to simplify startup. Duplicate
// constant names across files are rejected.
func LoadConstantsDir(dir string) (map[string]any, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(trimmed)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("plugin: read %s: %w", trimmed, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !isYAMLFile(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	var merged map[string]any
	for _, name := range names {
		path := filepath.Join(trimmed, name)
		constants, err := LoadConstantsFile(path)
		if err != nil {
			return nil, err
		}
		if merged == nil {
			merged = map[string]any{}
		}
		for key, value := range constants {
			if _, exists := merged[key]; exists {
				return nil, fmt.Errorf("plugin: %s: constant %q declared twice", path, key)
			}
			merged[key] = value
		}
	}
	return merged, nil
}

func isYAMLFile(name string) bool {
	lower := strings.ToLower(strings.TrimSpace(name))
	return strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml")
}
