package resolve

import (
	"errors"
	"testing"

	"github.com/dokkev/gymconf/internal/config"
)

func mustParse(t *testing.T, payload string) *config.Node {
	t.Helper()
	root, err := config.Parse([]byte(payload))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return root
}

func TestResolveIdentity(t *testing.T) {
	root := mustParse(t, `
env:
  numEnvs: 4096
  spacing: 1.5
  gravity: [0.0, 0.0, -9.81]
  name: franka
`)
	resolved, err := Resolve(root, Options{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !resolved.Equal(root) {
		t.Fatalf("resolving a concrete tree must return an equal tree")
	}
}

func TestResolveIdempotent(t *testing.T) {
	root := mustParse(t, `
pipeline: gpu
sim:
  use_gpu_pipeline: ${eq:${pipeline},gpu}
`)
	once, err := Resolve(root, Options{})
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	twice, err := Resolve(once, Options{})
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if !once.Equal(twice) {
		t.Fatalf("resolution must be idempotent")
	}
	node, ok := twice.Lookup("sim.use_gpu_pipeline")
	if !ok {
		t.Fatalf("missing resolved leaf")
	}
	v, err := node.Bool()
	if err != nil || !v {
		t.Fatalf("expected true, got %v (err %v)", v, err)
	}
}

func TestResolveDefaultPrefersPresentValue(t *testing.T) {
	root := mustParse(t, `
env:
  numEnvs: ${resolve_default:${num_envs},8192}
`)
	resolved, err := Resolve(root, Options{Overrides: map[string]any{"num_envs": 512}})
	if err != nil {
		t.Fatalf("resolve with override: %v", err)
	}
	node, _ := resolved.Lookup("env.numEnvs")
	v, err := node.Int()
	if err != nil || v != 512 {
		t.Fatalf("expected override 512, got %v (err %v)", v, err)
	}
}

func TestResolveDefaultFallsBackWhenAbsent(t *testing.T) {
	root := mustParse(t, `
env:
  numEnvs: ${resolve_default:${num_envs},8192}
`)
	resolved, err := Resolve(root, Options{})
	if err != nil {
		t.Fatalf("resolve without override: %v", err)
	}
	node, _ := resolved.Lookup("env.numEnvs")
	v, err := node.Int()
	if err != nil || v != 8192 {
		t.Fatalf("expected fallback 8192, got %v (err %v)", v, err)
	}
}

func TestResolveDefaultFallsBackOnNull(t *testing.T) {
	root := mustParse(t, `
num_envs: null
env:
  numEnvs: ${resolve_default:${num_envs},2048}
`)
	resolved, err := Resolve(root, Options{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	node, _ := resolved.Lookup("env.numEnvs")
	v, err := node.Int()
	if err != nil || v != 2048 {
		t.Fatalf("expected fallback for null primary, got %v (err %v)", v, err)
	}
}

func TestResolveDefaultLiteralPairs(t *testing.T) {
	cases := []struct {
		expr string
		want any
	}{
		{"${resolve_default:7,3}", int64(7)},
		{"${resolve_default:null,3}", int64(3)},
		{"${resolve_default:false,true}", false},
		{"${resolve_default:gpu,cpu}", "gpu"},
	}
	for _, tc := range cases {
		root := config.Mapping()
		if err := root.Set("value", config.Expression(tc.expr)); err != nil {
			t.Fatalf("set: %v", err)
		}
		resolved, err := Resolve(root, Options{})
		if err != nil {
			t.Fatalf("%s: resolve: %v", tc.expr, err)
		}
		node, _ := resolved.Lookup("value")
		if node.Value != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.expr, tc.want, node.Value)
		}
	}
}

func TestEqCoercesNumbers(t *testing.T) {
	root := mustParse(t, `
substeps: 2
check: ${eq:${substeps},2.0}
other: ${eq:${substeps},3}
`)
	resolved, err := Resolve(root, Options{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	check, _ := resolved.Lookup("check")
	if v, _ := check.Bool(); !v {
		t.Fatalf("expected 2 == 2.0")
	}
	other, _ := resolved.Lookup("other")
	if v, _ := other.Bool(); v {
		t.Fatalf("expected 2 != 3")
	}
}

func TestContainsSubstringAndSequence(t *testing.T) {
	root := mustParse(t, `
sim_device: cuda:0
devices: [cpu, cuda:0]
use_gpu: ${contains:cuda,${sim_device}}
listed: ${contains:cuda:0,${devices}}
missing: ${contains:rocm,${sim_device}}
`)
	resolved, err := Resolve(root, Options{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	for name, want := range map[string]bool{"use_gpu": true, "listed": true, "missing": false} {
		node, _ := resolved.Lookup(name)
		v, err := node.Bool()
		if err != nil || v != want {
			t.Fatalf("%s: expected %v, got %v (err %v)", name, want, v, err)
		}
	}
}

func TestContainsTypeMismatch(t *testing.T) {
	root := mustParse(t, `
a: 1
b: 2
bad: ${contains:${a},${b}}
`)
	if _, err := Resolve(root, Options{}); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected type mismatch for numeric contains, got %v", err)
	}
}

func TestRelativeSiblingReference(t *testing.T) {
	root := mustParse(t, `
env:
  cubeInitPosNoise: 0.15
  cubeGoalPosNoise: ${.cubeInitPosNoise}
`)
	resolved, err := Resolve(root, Options{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	node, _ := resolved.Lookup("env.cubeGoalPosNoise")
	v, err := node.Float()
	if err != nil || v != 0.15 {
		t.Fatalf("expected sibling value 0.15, got %v (err %v)", v, err)
	}
}

func TestRelativeAncestorReference(t *testing.T) {
	root := mustParse(t, `
physics_engine: physx
sim:
  physx:
    engine: ${...physics_engine}
`)
	resolved, err := Resolve(root, Options{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	node, _ := resolved.Lookup("sim.physx.engine")
	v, err := node.StringValue()
	if err != nil || v != "physx" {
		t.Fatalf("expected physx, got %q (err %v)", v, err)
	}
}

func TestRelativeReferencePastRootFails(t *testing.T) {
	root := mustParse(t, `
value: ${.....missing}
`)
	if _, err := Resolve(root, Options{}); !errors.Is(err, ErrUnresolvedReference) {
		t.Fatalf("expected unresolved reference, got %v", err)
	}
}

func TestUnresolvedReference(t *testing.T) {
	root := mustParse(t, `
value: ${no.such.path}
`)
	if _, err := Resolve(root, Options{}); !errors.Is(err, ErrUnresolvedReference) {
		t.Fatalf("expected unresolved reference, got %v", err)
	}
}

func TestCyclicReferenceFails(t *testing.T) {
	root := mustParse(t, `
a: ${b}
b: ${a}
`)
	if _, err := Resolve(root, Options{}); !errors.Is(err, ErrCyclicReference) {
		t.Fatalf("expected cyclic reference, got %v", err)
	}
}

func TestSelfReferenceFails(t *testing.T) {
	root := mustParse(t, `
a: ${a}
`)
	if _, err := Resolve(root, Options{}); !errors.Is(err, ErrCyclicReference) {
		t.Fatalf("expected cyclic reference for self-reference, got %v", err)
	}
}

func TestUnknownFunctionFails(t *testing.T) {
	root := mustParse(t, `
value: ${frobnicate:1,2}
`)
	if _, err := Resolve(root, Options{}); !errors.Is(err, ErrUnknownExpression) {
		t.Fatalf("expected unknown expression, got %v", err)
	}
}

func TestNoPartialResultOnFailure(t *testing.T) {
	root := mustParse(t, `
good: 1
bad: ${missing}
`)
	resolved, err := Resolve(root, Options{})
	if err == nil {
		t.Fatalf("expected failure")
	}
	if resolved != nil {
		t.Fatalf("failed resolution must not return a partial tree")
	}
}

func TestSharedReferenceResolvedOnce(t *testing.T) {
	root := mustParse(t, `
base: 42
a: ${base}
b: ${base}
`)
	resolved, err := Resolve(root, Options{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	for _, key := range []string{"a", "b"} {
		node, _ := resolved.Lookup(key)
		v, err := node.Int()
		if err != nil || v != 42 {
			t.Fatalf("%s: expected 42, got %v (err %v)", key, v, err)
		}
	}
}

func TestUserFunction(t *testing.T) {
	root := mustParse(t, `
value: ${double:21}
`)
	funcs := map[string]Func{
		"double": func(args []any) (any, error) {
			if len(args) != 1 {
				return nil, errors.New("double expects one argument")
			}
			v, ok := args[0].(int64)
			if !ok {
				return nil, errors.New("double expects an int")
			}
			return v * 2, nil
		},
	}
	resolved, err := Resolve(root, Options{Funcs: funcs})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	node, _ := resolved.Lookup("value")
	v, err := node.Int()
	if err != nil || v != 42 {
		t.Fatalf("expected 42, got %v (err %v)", v, err)
	}
}

func TestChainedReferences(t *testing.T) {
	root := mustParse(t, `
a: ${b}
b: ${c}
c: done
`)
	resolved, err := Resolve(root, Options{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	node, _ := resolved.Lookup("a")
	v, err := node.StringValue()
	if err != nil || v != "done" {
		t.Fatalf("expected chained value, got %q (err %v)", v, err)
	}
}

func TestOverrideShadowsDocument(t *testing.T) {
	root := mustParse(t, `
pipeline: gpu
use_gpu_pipeline: ${eq:${pipeline},gpu}
`)
	resolved, err := Resolve(root, Options{Overrides: map[string]any{"pipeline": "cpu"}})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	node, _ := resolved.Lookup("use_gpu_pipeline")
	if v, _ := node.Bool(); v {
		t.Fatalf("override should shadow the document value")
	}
}
