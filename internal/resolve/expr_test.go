package resolve

import (
	"errors"
	"testing"
)

func TestParseExprFunctionCall(t *testing.T) {
	e, err := parseExpr("${resolve_default:${num_envs},8192}")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if e.kind != exprCall || e.fn != "resolve_default" {
		t.Fatalf("unexpected expression: %+v", e)
	}
	if len(e.args) != 2 {
		t.Fatalf("expected 2 args, got %d", len(e.args))
	}
	if e.args[0].kind != exprRef || e.args[0].path != "num_envs" {
		t.Fatalf("unexpected first arg: %+v", e.args[0])
	}
	if e.args[1].kind != exprLiteral || e.args[1].value != int64(8192) {
		t.Fatalf("unexpected second arg: %+v", e.args[1])
	}
}

func TestParseExprRelativeReference(t *testing.T) {
	e, err := parseExpr("${...physics_engine}")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if e.kind != exprRef || e.dots != 3 || e.path != "physics_engine" {
		t.Fatalf("unexpected reference: %+v", e)
	}
}

func TestParseExprNestedCall(t *testing.T) {
	e, err := parseExpr("${contains:cuda,${resolve_default:${sim_device},cpu}}")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if e.fn != "contains" || len(e.args) != 2 {
		t.Fatalf("unexpected call: %+v", e)
	}
	inner := e.args[1]
	if inner.kind != exprCall || inner.fn != "resolve_default" {
		t.Fatalf("expected nested call, got %+v", inner)
	}
}

func TestParseExprQuotedLiteralKeepsComma(t *testing.T) {
	e, err := parseExpr(`${eq:"a",b}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if e.args[0].value != "a" {
		t.Fatalf("quoted literal should drop quotes, got %v", e.args[0].value)
	}
}

func TestParseExprRejectsUnbalancedBraces(t *testing.T) {
	if _, err := parseExpr("${eq:${a,b}"); !errors.Is(err, ErrUnknownExpression) {
		t.Fatalf("expected unknown expression for unbalanced braces, got %v", err)
	}
}

func TestParseExprRejectsEmpty(t *testing.T) {
	if _, err := parseExpr("${}"); !errors.Is(err, ErrUnknownExpression) {
		t.Fatalf("expected error for empty expression, got %v", err)
	}
}
