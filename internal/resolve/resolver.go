package resolve

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dokkev/gymconf/internal/config"
)

// Resolution failures. All are fatal for the whole tree: Resolve never
// returns a partially-resolved result.
var (
	ErrCyclicReference     = errors.New("cyclic reference")
	ErrUnresolvedReference = errors.New("unresolved reference")
	ErrUnknownExpression   = errors.New("unknown expression")
)

// ErrTypeMismatch is shared with the config package so callers can test one
// sentinel regardless of where the mismatch surfaced.
var ErrTypeMismatch = config.ErrTypeMismatch

// Func is a resolver expression function. Arguments arrive as plain Go
// values: nil, bool, int64, float64, string, []any, or map[string]any.
type Func func(args []any) (any, error)

// Options adjusts a Resolve call.
type Options struct {
	// Overrides supplies caller-provided top-level values (num_envs,
	// pipeline, sim_device, ...). References consult overrides before the
	// document, so an override shadows a document value of the same name.
	Overrides map[string]any

	// Funcs registers extra expression functions. Builtin names
	// (resolve_default, eq, contains) cannot be replaced.
	Funcs map[string]Func
}

// Resolve walks the tree depth-first and replaces every deferred expression
// with its concrete value. The input tree is never mutated; resolving an
// already-concrete tree returns an equal tree.
func Resolve(root *config.Node, opts Options) (*config.Node, error) {
	if root == nil {
		return nil, fmt.Errorf("resolve: root is nil: %w", ErrUnresolvedReference)
	}
	r := &resolver{
		root:   root,
		funcs:  opts.Funcs,
		memo:   map[*config.Node]*config.Node{},
		active: map[*config.Node]bool{},
	}
	if len(opts.Overrides) > 0 {
		r.overrides = config.FromGo(normalizeOverrides(opts.Overrides))
	}
	return r.node(root, nil)
}

type resolver struct {
	root      *config.Node
	overrides *config.Node
	funcs     map[string]Func

	memo   map[*config.Node]*config.Node
	active map[*config.Node]bool
}

// node resolves one subtree. path is the node's location from the root,
// used for relative references and error context.
func (r *resolver) node(n *config.Node, path []string) (*config.Node, error) {
	if n == nil {
		return nil, fmt.Errorf("resolve: %s: missing node: %w", joinPath(path), ErrUnresolvedReference)
	}
	if done, ok := r.memo[n]; ok {
		return done.Clone(), nil
	}
	if r.active[n] {
		return nil, fmt.Errorf("resolve: %s: %w", joinPath(path), ErrCyclicReference)
	}
	switch n.Kind {
	case config.KindScalar:
		out := config.Scalar(n.Value)
		r.memo[n] = out
		return out.Clone(), nil
	case config.KindSequence:
		items := make([]*config.Node, len(n.Items))
		for i, item := range n.Items {
			resolved, err := r.node(item, childPath(path, fmt.Sprintf("%d", i)))
			if err != nil {
				return nil, err
			}
			items[i] = resolved
		}
		out := config.Sequence(items...)
		r.memo[n] = out
		return out.Clone(), nil
	case config.KindMapping:
		out := config.Mapping()
		for _, key := range n.Keys {
			child, _ := n.Child(key)
			resolved, err := r.node(child, childPath(path, key))
			if err != nil {
				return nil, err
			}
			if err := out.Set(key, resolved); err != nil {
				return nil, err
			}
		}
		r.memo[n] = out
		return out.Clone(), nil
	case config.KindExpr:
		r.active[n] = true
		parsed, err := parseExpr(n.Expr)
		if err != nil {
			return nil, fmt.Errorf("resolve: %s: %w", joinPath(path), err)
		}
		value, _, err := r.eval(parsed, path, false)
		delete(r.active, n)
		if err != nil {
			return nil, err
		}
		out := toNode(value)
		r.memo[n] = out
		return out.Clone(), nil
	default:
		return nil, fmt.Errorf("resolve: %s: unknown node kind: %w", joinPath(path), ErrUnknownExpression)
	}
}

// eval computes an expression's value. When allowMissing is set a dangling
// reference reports found=false instead of failing; only resolve_default's
// primary argument uses that mode.
func (r *resolver) eval(e *expr, path []string, allowMissing bool) (any, bool, error) {
	switch e.kind {
	case exprLiteral:
		return e.value, true, nil
	case exprRef:
		return r.ref(e, path, allowMissing)
	case exprCall:
		value, err := r.call(e, path)
		if err != nil {
			return nil, false, err
		}
		return value, true, nil
	default:
		return nil, false, fmt.Errorf("resolve: %s: unknown expression form: %w", joinPath(path), ErrUnknownExpression)
	}
}

func (r *resolver) ref(e *expr, path []string, allowMissing bool) (any, bool, error) {
	target, err := r.targetPath(e, path)
	if err != nil {
		return nil, false, err
	}
	joined := strings.Join(target, ".")
	if r.overrides != nil {
		if node, ok := r.overrides.Lookup(joined); ok {
			resolved, err := r.node(node, target)
			if err != nil {
				return nil, false, err
			}
			return resolved, true, nil
		}
	}
	node, ok := r.root.Lookup(joined)
	if !ok {
		if allowMissing {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("resolve: %s: reference %q not found: %w", joinPath(path), joined, ErrUnresolvedReference)
	}
	resolved, err := r.node(node, target)
	if err != nil {
		return nil, false, err
	}
	return resolved, true, nil
}

// targetPath turns a reference into an absolute path. One leading dot
// anchors at the mapping containing the expression; each additional dot
// climbs one more ancestor.
func (r *resolver) targetPath(e *expr, path []string) ([]string, error) {
	segments := strings.Split(e.path, ".")
	if e.dots == 0 {
		return segments, nil
	}
	depth := len(path) - 1 // mapping containing the expression leaf
	base := depth - (e.dots - 1)
	if base < 0 {
		return nil, fmt.Errorf("resolve: %s: reference climbs past the document root: %w", joinPath(path), ErrUnresolvedReference)
	}
	return append(append([]string{}, path[:base]...), segments...), nil
}

func (r *resolver) call(e *expr, path []string) (any, error) {
	switch e.fn {
	case "resolve_default":
		return r.callResolveDefault(e, path)
	case "eq":
		return r.callEq(e, path)
	case "contains":
		return r.callContains(e, path)
	}
	if fn, ok := r.funcs[e.fn]; ok {
		args := make([]any, len(e.args))
		for i, arg := range e.args {
			value, _, err := r.eval(arg, path, false)
			if err != nil {
				return nil, err
			}
			args[i] = goValue(value)
		}
		out, err := fn(args)
		if err != nil {
			return nil, fmt.Errorf("resolve: %s: %s: %w", joinPath(path), e.fn, err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("resolve: %s: unknown function %q: %w", joinPath(path), e.fn, ErrUnknownExpression)
}

// callResolveDefault returns the primary value when it is present and
// non-null, the fallback otherwise. A dangling reference in the primary
// argument counts as absent; that is the function's override channel.
func (r *resolver) callResolveDefault(e *expr, path []string) (any, error) {
	if len(e.args) != 2 {
		return nil, arityErr(e, path, 2)
	}
	primary, found, err := r.eval(e.args[0], path, true)
	if err != nil {
		return nil, err
	}
	if found && !isNull(primary) {
		return primary, nil
	}
	fallback, _, err := r.eval(e.args[1], path, false)
	if err != nil {
		return nil, err
	}
	return fallback, nil
}

func (r *resolver) callEq(e *expr, path []string) (any, error) {
	if len(e.args) != 2 {
		return nil, arityErr(e, path, 2)
	}
	a, _, err := r.eval(e.args[0], path, false)
	if err != nil {
		return nil, err
	}
	b, _, err := r.eval(e.args[1], path, false)
	if err != nil {
		return nil, err
	}
	return equalValues(a, b), nil
}

func (r *resolver) callContains(e *expr, path []string) (any, error) {
	if len(e.args) != 2 {
		return nil, arityErr(e, path, 2)
	}
	needleValue, _, err := r.eval(e.args[0], path, false)
	if err != nil {
		return nil, err
	}
	haystackValue, _, err := r.eval(e.args[1], path, false)
	if err != nil {
		return nil, err
	}
	needle, ok := scalarOf(needleValue).(string)
	if !ok {
		return nil, fmt.Errorf("resolve: %s: contains needle must be a string: %w", joinPath(path), ErrTypeMismatch)
	}
	switch haystack := goValue(haystackValue).(type) {
	case string:
		return strings.Contains(haystack, needle), nil
	case []any:
		for _, item := range haystack {
			if equalValues(item, needle) {
				return true, nil
			}
		}
		return false, nil
	default:
		return nil, fmt.Errorf("resolve: %s: contains haystack must be a string or sequence: %w", joinPath(path), ErrTypeMismatch)
	}
}

func arityErr(e *expr, path []string, want int) error {
	return fmt.Errorf("resolve: %s: %s expects %d arguments, have %d: %w", joinPath(path), e.fn, want, len(e.args), ErrTypeMismatch)
}

// toNode converts an evaluated value back into a tree node. Strings stay
// plain scalars here: a resolved value is concrete by definition.
func toNode(value any) *config.Node {
	switch v := value.(type) {
	case *config.Node:
		return v.Clone()
	case []any:
		items := make([]*config.Node, len(v))
		for i, item := range v {
			items[i] = toNode(item)
		}
		return config.Sequence(items...)
	case map[string]any:
		return config.FromGo(v)
	default:
		return config.Scalar(v)
	}
}

// goValue flattens nodes into plain Go values for comparisons and user
// functions.
func goValue(value any) any {
	node, ok := value.(*config.Node)
	if !ok {
		return value
	}
	switch node.Kind {
	case config.KindScalar:
		return node.Value
	case config.KindSequence:
		out := make([]any, len(node.Items))
		for i, item := range node.Items {
			out[i] = goValue(item)
		}
		return out
	case config.KindMapping:
		out := make(map[string]any, node.Len())
		for _, key := range node.Keys {
			child, _ := node.Child(key)
			out[key] = goValue(child)
		}
		return out
	default:
		return node.Expr
	}
}

func scalarOf(value any) any {
	return goValue(value)
}

func isNull(value any) bool {
	if value == nil {
		return true
	}
	if node, ok := value.(*config.Node); ok {
		return node.IsNull()
	}
	return false
}

// equalValues compares two evaluated values, coercing ints and floats so
// `${eq:${..substeps},2}` holds whether the document said 2 or 2.0.
func equalValues(a, b any) bool {
	av := goValue(a)
	bv := goValue(b)
	if af, aok := asFloat(av); aok {
		if bf, bok := asFloat(bv); bok {
			return af == bf
		}
		return false
	}
	switch avt := av.(type) {
	case []any:
		bvt, ok := bv.([]any)
		if !ok || len(avt) != len(bvt) {
			return false
		}
		for i := range avt {
			if !equalValues(avt[i], bvt[i]) {
				return false
			}
		}
		return true
	default:
		return av == bv
	}
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

// childPath copies on append so sibling recursions never share a backing
// array.
func childPath(path []string, segment string) []string {
	out := make([]string, len(path)+1)
	copy(out, path)
	out[len(path)] = segment
	return out
}

func joinPath(path []string) string {
	if len(path) == 0 {
		return "(root)"
	}
	return strings.Join(path, ".")
}

func normalizeOverrides(overrides map[string]any) map[string]any {
	out := make(map[string]any, len(overrides))
	for key, value := range overrides {
		out[strings.TrimSpace(key)] = value
	}
	return out
}
