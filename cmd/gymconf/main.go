// cmd/gymconf/main.go
//
// Entry point for the gymconf inspector. It loads a task document, resolves
// it, and opens the TUI for browsing the tree and previewing the
// randomization schedule.

package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"gopkg.in/yaml.v3"

	"github.com/dokkev/gymconf/internal/tui"
	"github.com/dokkev/gymconf/plugins"
)

func main() {
	configPath := flag.String("config", "configs/FrankaCubePush.yaml", "path to the task document")
	pluginDir := flag.String("plugins", "", "directory with YAML constant tables and Go expression functions")
	seed := flag.Int64("seed", 1, "RNG seed for the randomization preview")
	instances := flag.Int("instances", 4, "simulated instance count for the preview")
	sets := keyValueFlag{}
	flag.Var(&sets, "set", "top-level override (key=value, repeatable)")
	flag.Parse()

	opts := []tui.AppOption{tui.WithSeed(*seed), tui.WithInstances(*instances)}
	overrides := map[string]any{}
	if dir := strings.TrimSpace(*pluginDir); dir != "" {
		bundle, err := plugins.LoadDir(dir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading plugins: %v\n", err)
			os.Exit(1)
		}
		opts = append(opts, tui.WithFuncs(bundle.Funcs))
		for key, value := range bundle.Constants {
			overrides[key] = value
		}
	}
	for key, raw := range sets {
		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		overrides[key] = value
	}
	if len(overrides) > 0 {
		opts = append(opts, tui.WithOverrides(overrides))
	}

	app, err := tui.NewApp(*configPath, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	p := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
		os.Exit(1)
	}
}

type keyValueFlag map[string]string

func (kv *keyValueFlag) String() string {
	if kv == nil || len(*kv) == 0 {
		return ""
	}
	var pairs []string
	for key, value := range *kv {
		pairs = append(pairs, fmt.Sprintf("%s=%s", key, value))
	}
	return strings.Join(pairs, ", ")
}

func (kv *keyValueFlag) Set(value string) error {
	parts := strings.SplitN(value, "=", 2)
	if len(parts) != 2 {
		return fmt.Errorf("expected key=value, got %q", value)
	}
	key := strings.TrimSpace(parts[0])
	if key == "" {
		return fmt.Errorf("override key is empty in %q", value)
	}
	if *kv == nil {
		*kv = keyValueFlag{}
	}
	(*kv)[key] = parts[1]
	return nil
}
