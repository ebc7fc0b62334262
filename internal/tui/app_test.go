package tui

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

const sampleTask = `name: FrankaCubePush
physics_engine: physx
pipeline: gpu
env:
  numEnvs: ${resolve_default:${num_envs},64}
sim:
  dt: 0.01667
  use_gpu_pipeline: ${eq:${pipeline},gpu}
task:
  randomize: true
  randomization_params:
    frequency: 720
    observations:
      range: [0, .002]
      operation: "additive"
      distribution: "gaussian"
    actor_params:
      cube:
        rigid_body_properties:
          mass:
            range: [0.8, 1.2]
            operation: "scaling"
            distribution: "uniform"
            setup_only: true
`

func newTestApp(t *testing.T, opts ...AppOption) *App {
	t.Helper()
	path := filepath.Join(t.TempDir(), "task.yaml")
	if err := os.WriteFile(path, []byte(sampleTask), 0644); err != nil {
		t.Fatalf("write task: %v", err)
	}
	app, err := NewApp(path, opts...)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return app
}

func TestNewAppLoadsAndResolves(t *testing.T) {
	app := newTestApp(t, WithSeed(5), WithInstances(8))
	if app.resolved.HasExpressions() {
		t.Fatalf("resolved tree still carries expressions")
	}
	if !app.hasParams {
		t.Fatalf("app should detect randomization_params")
	}
	if app.params.Frequency != 720 {
		t.Fatalf("unexpected frequency %d", app.params.Frequency)
	}
}

func TestMenuViewListsScreens(t *testing.T) {
	app := newTestApp(t)
	model, _ := app.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	view := model.View()
	for _, want := range []string{"Document", "Resolved", "Randomization"} {
		if !strings.Contains(view, want) {
			t.Fatalf("menu missing %q:\n%s", want, view)
		}
	}
}

func TestRandomizationPreviewRenders(t *testing.T) {
	app := newTestApp(t, WithSeed(5), WithInstances(4))
	content, err := renderPreview(app.params, 0, 4, 5)
	if err != nil {
		t.Fatalf("render preview: %v", err)
	}
	for _, want := range []string{"observations", "mass", "setup-only", "sampled@0"} {
		if !strings.Contains(content, want) {
			t.Fatalf("preview missing %q:\n%s", want, content)
		}
	}
}

func TestScrubReplaysDeterministically(t *testing.T) {
	app := newTestApp(t, WithSeed(9), WithInstances(4))
	atZero, err := renderPreview(app.params, 0, 4, 9)
	if err != nil {
		t.Fatalf("render step 0: %v", err)
	}
	forward, err := renderPreview(app.params, 1440, 4, 9)
	if err != nil {
		t.Fatalf("render step 1440: %v", err)
	}
	if atZero == forward {
		t.Fatalf("forward scrub should resample non-frozen rules")
	}
	back, err := renderPreview(app.params, 0, 4, 9)
	if err != nil {
		t.Fatalf("render step 0 again: %v", err)
	}
	if atZero != back {
		t.Fatalf("scrubbing back must replay the same draws")
	}
}

func TestQuitFromMenu(t *testing.T) {
	app := newTestApp(t)
	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
}
