// internal/resolve/expr.go
//
// Parsing of deferred-expression text. Two forms exist in task documents:
//
//	${function:arg1,arg2}    function call; args are literals or nested ${...}
//	${path.to.value}         absolute reference from the document root
//	${..path}                relative reference; one leading dot anchors at
//	                         the mapping containing the expression, each
//	                         additional dot climbs one ancestor
package resolve

import (
	"fmt"
	"strconv"
	"strings"
)

type exprKind int

const (
	exprRef exprKind = iota
	exprCall
	exprLiteral
)

// expr is one parsed expression argument or top-level expression.
type expr struct {
	kind exprKind

	// exprRef
	dots int // leading-dot count; 0 means absolute
	path string

	// exprCall
	fn   string
	args []*expr

	// exprLiteral
	value any
}

// parseExpr parses the raw ${...} text of an expression leaf.
func parseExpr(raw string) (*expr, error) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "${") || !strings.HasSuffix(trimmed, "}") {
		return nil, fmt.Errorf("resolve: %q is not an expression: %w", raw, ErrUnknownExpression)
	}
	return parseBody(trimmed[2 : len(trimmed)-1])
}

func parseBody(body string) (*expr, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("resolve: empty expression: %w", ErrUnknownExpression)
	}
	if name, rest, ok := splitCall(body); ok {
		args, err := parseArgs(rest)
		if err != nil {
			return nil, err
		}
		return &expr{kind: exprCall, fn: name, args: args}, nil
	}
	dots := 0
	for dots < len(body) && body[dots] == '.' {
		dots++
	}
	path := body[dots:]
	if path == "" {
		return nil, fmt.Errorf("resolve: reference %q has no path: %w", body, ErrUnknownExpression)
	}
	return &expr{kind: exprRef, dots: dots, path: path}, nil
}

// splitCall detects the function-call form name:args. The colon must come
// before any dot or brace so path references are never misread as calls.
func splitCall(body string) (name string, rest string, ok bool) {
	idx := strings.IndexByte(body, ':')
	if idx <= 0 {
		return "", "", false
	}
	name = body[:idx]
	for _, r := range name {
		if r == '.' || r == '$' || r == '{' || r == '}' || r == ',' {
			return "", "", false
		}
	}
	return name, body[idx+1:], true
}

// parseArgs splits a comma-separated argument list, honoring ${...} nesting.
func parseArgs(list string) ([]*expr, error) {
	var args []*expr
	depth := 0
	start := 0
	flush := func(end int) error {
		arg, err := parseArg(list[start:end])
		if err != nil {
			return err
		}
		args = append(args, arg)
		return nil
	}
	for i := 0; i < len(list); i++ {
		switch list[i] {
		case '{':
			depth++
		case '}':
			depth--
		case ',':
			if depth == 0 {
				if err := flush(i); err != nil {
					return nil, err
				}
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("resolve: unbalanced braces in %q: %w", list, ErrUnknownExpression)
	}
	if err := flush(len(list)); err != nil {
		return nil, err
	}
	return args, nil
}

func parseArg(raw string) (*expr, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "${") && strings.HasSuffix(trimmed, "}") {
		return parseBody(trimmed[2 : len(trimmed)-1])
	}
	return &expr{kind: exprLiteral, value: parseLiteral(trimmed)}, nil
}

// parseLiteral applies YAML-like scalar typing to a bare argument.
func parseLiteral(raw string) any {
	switch raw {
	case "", "null", "~":
		return nil
	case "true", "True":
		return true
	case "false", "False":
		return false
	}
	if len(raw) >= 2 {
		if (raw[0] == '"' && raw[len(raw)-1] == '"') || (raw[0] == '\'' && raw[len(raw)-1] == '\'') {
			return raw[1 : len(raw)-1]
		}
	}
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return v
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		return v
	}
	return raw
}
