package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dokkev/gymconf/internal/config"
	"github.com/dokkev/gymconf/internal/logging"
	"github.com/dokkev/gymconf/internal/randomize"
	"github.com/dokkev/gymconf/internal/resolve"
	"github.com/dokkev/gymconf/plugins"
)

func main() {
	configPath := flag.String("config", "configs/FrankaCubePush.yaml", "path to the task document")
	pluginDir := flag.String("plugins", "", "directory with YAML constant tables and Go expression functions")
	logPath := flag.String("log", "", "append a run log to this file")
	preview := flag.Bool("preview", false, "print a randomization preview after the resolved document")
	steps := flag.Int("steps", 1500, "number of simulated steps to preview")
	every := flag.Int("every", 250, "preview sampling interval in steps")
	instances := flag.Int("instances", 4, "simulated instance count for the preview")
	seed := flag.Int64("seed", 0, "RNG seed for the preview (0 picks a random seed)")
	sets := keyValueFlag{}
	flag.Var(&sets, "set", "top-level override (key=value, repeatable)")
	flag.Parse()

	var logger *logging.Logger
	if strings.TrimSpace(*logPath) != "" {
		var err error
		logger, err = logging.New(*logPath)
		if err != nil {
			die("open log: %v", err)
		}
		defer logger.Close()
	}

	doc, err := config.Load(*configPath)
	if err != nil {
		die("load document: %v", err)
	}

	opts := resolve.Options{Overrides: map[string]any{}}
	if dir := strings.TrimSpace(*pluginDir); dir != "" {
		bundle, err := plugins.LoadDir(dir)
		if err != nil {
			die("load plugins: %v", err)
		}
		opts.Funcs = bundle.Funcs
		for key, value := range bundle.Constants {
			opts.Overrides[key] = value
		}
	}
	for key, raw := range sets {
		opts.Overrides[key] = parseOverrideValue(raw)
	}

	resolved, err := resolve.Resolve(doc.Root, opts)
	if err != nil {
		die("resolve %s: %v", doc.Path, err)
	}
	logger.Printf("resolved %s with %d overrides", doc.Path, len(opts.Overrides))

	out, err := yaml.Marshal(resolved)
	if err != nil {
		die("encode resolved document: %v", err)
	}
	os.Stdout.Write(out)

	if !*preview {
		return
	}
	if err := printPreview(resolved, *steps, *every, *instances, *seed, logger); err != nil {
		die("preview: %v", err)
	}
}

func printPreview(resolved *config.Node, steps, every, instances int, seed int64, logger *logging.Logger) error {
	task, err := config.TaskView(resolved)
	if err != nil {
		return err
	}
	paramsNode, ok := task.RandomizationParams()
	if !ok {
		fmt.Println("---\n# no randomization_params in document")
		return nil
	}
	params, err := randomize.ParseParams(paramsNode)
	if err != nil {
		return err
	}
	schedOpts := []randomize.Option{randomize.WithInstances(instances)}
	if seed != 0 {
		schedOpts = append(schedOpts, randomize.WithSeed(seed))
	}
	sched, err := randomize.New(params, schedOpts...)
	if err != nil {
		return err
	}
	logger.Printf("scheduler %s: %d rules, %d instances", sched.ID(), len(sched.Rules()), instances)
	if every < 1 {
		every = 1
	}
	fmt.Printf("---\n# randomization preview (scheduler %s)\n", sched.ID())
	for step := 0; step <= steps; step += every {
		overrides, err := sched.Advance(step)
		if err != nil {
			return err
		}
		paths := make([]string, 0, len(overrides))
		for path := range overrides {
			paths = append(paths, path)
		}
		sort.Strings(paths)
		for _, path := range paths {
			o := overrides[path]
			fmt.Printf("# step %6d  %-55s sampled@%-6d instance0=%v\n", step, path, o.SampledAt, o.ValueFor(0))
		}
	}
	return nil
}

func parseOverrideValue(raw string) any {
	var value any
	if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
		return raw
	}
	return value
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
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
