// internal/tui/app.go
//
// Interactive inspector for task documents. It uses bubbletea, which
// follows The Elm Architecture:
//
// 1. Model: Your application state
// 2. Update: A function that updates state based on messages
// 3. View: A function that renders state to a string
//
// The inspector shows the raw document, the resolved tree, and a preview of
// the randomization schedule at any simulated step.

package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/dokkev/gymconf/internal/config"
	"github.com/dokkev/gymconf/internal/randomize"
	"github.com/dokkev/gymconf/internal/resolve"
)

// appState represents which "screen" we're on.
type appState int

const (
	stateMenu          appState = iota // Main menu
	stateDocument                      // Raw document view
	stateResolved                      // Resolved tree view
	stateRandomization                 // Randomization schedule preview
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("170")).Padding(0, 1)
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	paneStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// menuItem implements list.Item for the main menu.
type menuItem struct {
	title string
	desc  string
}

func (i menuItem) Title() string       { return i.title }
func (i menuItem) Description() string { return i.desc }
func (i menuItem) FilterValue() string { return i.title }

// App is the inspector model. It holds the loaded document, its resolved
// form, and the randomization preview state.
type App struct {
	state appState

	docPath   string
	doc       *config.Document
	resolved  *config.Node
	overrides map[string]any
	funcs     map[string]resolve.Func
	seed      int64

	params    randomize.Params
	hasParams bool

	// previewStep is the simulated step the randomization pane renders.
	previewStep int
	instances   int

	menu     list.Model
	viewport viewport.Model

	err    error
	width  int
	height int
}

// AppOption customizes App construction.
type AppOption func(*App)

// WithOverrides supplies top-level override values for resolution.
func WithOverrides(overrides map[string]any) AppOption {
	return func(a *App) {
		a.overrides = overrides
	}
}

// WithFuncs registers extra expression functions (from plugins).
func WithFuncs(funcs map[string]resolve.Func) AppOption {
	return func(a *App) {
		a.funcs = funcs
	}
}

// WithSeed fixes the preview RNG seed.
func WithSeed(seed int64) AppOption {
	return func(a *App) {
		a.seed = seed
	}
}

// WithInstances sets the preview instance count.
func WithInstances(n int) AppOption {
	return func(a *App) {
		if n > 0 {
			a.instances = n
		}
	}
}

// NewApp loads and resolves a task document and builds the inspector.
func NewApp(docPath string, opts ...AppOption) (*App, error) {
	app := &App{
		state:     stateMenu,
		docPath:   docPath,
		seed:      1,
		instances: 4,
	}
	for _, opt := range opts {
		opt(app)
	}

	doc, err := config.Load(docPath)
	if err != nil {
		return nil, err
	}
	app.doc = doc
	resolved, err := resolve.Resolve(doc.Root, resolve.Options{Overrides: app.overrides, Funcs: app.funcs})
	if err != nil {
		return nil, err
	}
	app.resolved = resolved

	task, err := config.TaskView(resolved)
	if err != nil {
		return nil, err
	}
	if paramsNode, ok := task.RandomizationParams(); ok {
		params, err := randomize.ParseParams(paramsNode)
		if err != nil {
			return nil, err
		}
		app.params = params
		app.hasParams = true
		app.previewStep = 0
	}

	items := []list.Item{
		menuItem{title: "Document", desc: "Raw task document as written"},
		menuItem{title: "Resolved", desc: "Tree with every expression replaced"},
		menuItem{title: "Randomization", desc: "Schedule preview across simulated steps"},
	}
	menu := list.New(items, list.NewDefaultDelegate(), 0, 0)
	menu.Title = taskTitle(task, docPath)
	menu.SetShowStatusBar(false)
	menu.SetFilteringEnabled(false)
	app.menu = menu
	app.viewport = viewport.New(0, 0)
	return app, nil
}

func taskTitle(task config.TaskDocument, fallback string) string {
	if strings.TrimSpace(task.Name) != "" {
		return task.Name
	}
	return fallback
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.menu.SetSize(msg.Width-2, msg.Height-4)
		a.viewport.Width = msg.Width - 4
		a.viewport.Height = msg.Height - 6
		return a, nil
	case tea.KeyMsg:
		return a.handleKey(msg)
	}
	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch a.state {
	case stateMenu:
		switch msg.String() {
		case "q", "ctrl+c":
			return a, tea.Quit
		case "enter":
			return a.openSelection()
		}
		var cmd tea.Cmd
		a.menu, cmd = a.menu.Update(msg)
		return a, cmd
	default:
		switch msg.String() {
		case "q", "esc":
			a.state = stateMenu
			a.err = nil
			return a, nil
		case "ctrl+c":
			return a, tea.Quit
		}
		if a.state == stateRandomization {
			switch msg.String() {
			case "left", "-":
				a.scrubPreview(-1)
				return a, nil
			case "right", "+", "=":
				a.scrubPreview(1)
				return a, nil
			}
		}
		var cmd tea.Cmd
		a.viewport, cmd = a.viewport.Update(msg)
		return a, cmd
	}
}

func (a *App) openSelection() (tea.Model, tea.Cmd) {
	item, ok := a.menu.SelectedItem().(menuItem)
	if !ok {
		return a, nil
	}
	switch item.title {
	case "Document":
		a.state = stateDocument
		a.setViewportYAML(a.doc.Root)
	case "Resolved":
		a.state = stateResolved
		a.setViewportYAML(a.resolved)
	case "Randomization":
		a.state = stateRandomization
		a.refreshPreview()
	}
	return a, nil
}

func (a *App) setViewportYAML(node *config.Node) {
	out, err := yaml.Marshal(node)
	if err != nil {
		a.err = err
		return
	}
	a.viewport.SetContent(string(out))
	a.viewport.GotoTop()
}

// scrubPreview moves the preview step by one document-level cadence.
func (a *App) scrubPreview(direction int) {
	if !a.hasParams {
		return
	}
	stride := a.params.Frequency
	if stride < 1 {
		stride = 1
	}
	a.previewStep += direction * stride
	if a.previewStep < 0 {
		a.previewStep = 0
	}
	a.refreshPreview()
}

// refreshPreview rebuilds the scheduler from the fixed seed and advances it
// to the preview step, so scrubbing backwards replays the same draws.
func (a *App) refreshPreview() {
	if !a.hasParams {
		a.viewport.SetContent("document has no randomization_params")
		return
	}
	content, err := renderPreview(a.params, a.previewStep, a.instances, a.seed)
	if err != nil {
		a.err = err
		return
	}
	a.err = nil
	a.viewport.SetContent(content)
	a.viewport.GotoTop()
}

// renderPreview produces the randomization pane text for one step.
func renderPreview(params randomize.Params, step, instances int, seed int64) (string, error) {
	sched, err := randomize.New(params, randomize.WithSeed(seed), randomize.WithInstances(instances))
	if err != nil {
		return "", err
	}
	stride := params.Frequency
	if stride < 1 {
		stride = 1
	}
	var overrides map[string]randomize.Override
	for s := 0; s <= step; s += stride {
		overrides, err = sched.Advance(s)
		if err != nil {
			return "", err
		}
	}
	if overrides == nil {
		overrides, err = sched.Advance(0)
		if err != nil {
			return "", err
		}
	}
	paths := make([]string, 0, len(overrides))
	for path := range overrides {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	var b strings.Builder
	fmt.Fprintf(&b, "step %d  (frequency %d, %d instances, seed %d)\n\n", step, params.Frequency, instances, seed)
	for _, path := range paths {
		o := overrides[path]
		fmt.Fprintf(&b, "%s\n", path)
		fmt.Fprintf(&b, "  %s %s", o.Rule.Distribution, o.Rule.Operation)
		if o.Rule.SetupOnly {
			b.WriteString("  setup-only")
		}
		if o.Rule.NumBuckets > 0 {
			fmt.Fprintf(&b, "  buckets=%d", o.Rule.NumBuckets)
		}
		if o.Rule.Schedule == randomize.ScheduleLinear {
			fmt.Fprintf(&b, "  ramp=%.2f", randomize.RampFactor(step, o.Rule.ScheduleSteps))
		}
		fmt.Fprintf(&b, "\n  sampled@%d  instance0=%s\n\n", o.SampledAt, formatValues(o.ValueFor(0)))
	}
	return b.String(), nil
}

func formatValues(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%.5f", v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// View implements tea.Model.
func (a *App) View() string {
	if a.err != nil {
		return errorStyle.Render(fmt.Sprintf("error: %v", a.err)) + "\n" + statusStyle.Render("press q to go back")
	}
	switch a.state {
	case stateMenu:
		return a.menu.View() + "\n" + statusStyle.Render("enter: open · q: quit")
	case stateDocument:
		return a.pane("Document", "q: back · arrows: scroll")
	case stateResolved:
		return a.pane("Resolved", "q: back · arrows: scroll")
	case stateRandomization:
		return a.pane("Randomization", "q: back · left/right: scrub step · arrows: scroll")
	default:
		return ""
	}
}

func (a *App) pane(title, help string) string {
	header := titleStyle.Render(title)
	body := paneStyle.Width(max(a.width-2, 20)).Render(a.viewport.View())
	return header + "\n" + body + "\n" + statusStyle.Render(help)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
