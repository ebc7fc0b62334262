package plugins

import (
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/dokkev/gymconf/internal/resolve"
)

const goFuncsFuncName = "ExprFunctions"

// LoadFuncDir evaluates every .go file in dir and collects the expression
// functions each declares via ExprFunctions(). The returned map merges all
// files; duplicate function names are rejected.
func LoadFuncDir(dir string) (map[string]resolve.Func, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(trimmed)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("plugin: read %s: %w", trimmed, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".go" {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	var merged map[string]resolve.Func
	for _, name := range names {
		path := filepath.Join(trimmed, name)
		funcs, err := loadGoFuncFile(path)
		if err != nil {
			return nil, err
		}
		if merged == nil {
			merged = map[string]resolve.Func{}
		}
		for fnName, fn := range funcs {
			if _, exists := merged[fnName]; exists {
				return nil, fmt.Errorf("plugin: %s: function %q declared twice", path, fnName)
			}
			merged[fnName] = fn
		}
	}
	return merged, nil
}

// packageClause returns the package name declared by a Go source file.
func packageClause(code []byte) (string, error) {
	f, err := parser.ParseFile(token.NewFileSet(), "", code, parser.PackageClauseOnly)
	if err != nil {
		return "", err
	}
	return f.Name.Name, nil
}

func loadGoFuncFile(path string) (map[string]resolve.Func, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("plugin: read %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(code))) == 0 {
		return nil, fmt.Errorf("plugin: %s is empty", path)
	}
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("plugin: init interpreter for %s: %w", path, err)
	}
	if _, err := i.EvalPath(path); err != nil {
		return nil, fmt.Errorf("plugin: interpret %s: %w", path, err)
	}
	// yaegi namespaces file symbols under their package clause, so the
	// lookup must be qualified (e.g. plugin.ExprFunctions).
	symbol := goFuncsFuncName
	if pkg, pkgErr := packageClause(code); pkgErr == nil && pkg != "" {
		symbol = pkg + "." + goFuncsFuncName
	}
	fnValue, err := i.Eval(symbol)
	if err != nil {
		return nil, fmt.Errorf("plugin: %s must define %s() (map[string]func([]any) (any, error), error): %w", path, goFuncsFuncName, err)
	}
	funcs, callErr := invokeFuncsFunc(fnValue)
	if callErr != nil {
		return nil, fmt.Errorf("plugin: %s: %w", path, callErr)
	}
	return funcs, nil
}

// invokeFuncsFunc calls ExprFunctions and adapts every returned function
// through reflection, so the interpreted code does not have to name this
// module's resolve.Func type.
func invokeFuncsFunc(value reflect.Value) (map[string]resolve.Func, error) {
	if !value.IsValid() {
		return nil, fmt.Errorf("missing %s function", goFuncsFuncName)
	}
	if value.Kind() != reflect.Func {
		return nil, fmt.Errorf("%s is not a function", goFuncsFuncName)
	}
	results := value.Call(nil)
	if len(results) == 0 || len(results) > 2 {
		return nil, fmt.Errorf("%s must return (map[string]func([]any) (any, error)[, error])", goFuncsFuncName)
	}
	if len(results) == 2 {
		if !results[1].IsNil() {
			if e, ok := results[1].Interface().(error); ok && e != nil {
				return nil, e
			}
			return nil, fmt.Errorf("%s returned non-error second value", goFuncsFuncName)
		}
	}
	mapVal := results[0]
	if mapVal.Kind() != reflect.Map {
		return nil, fmt.Errorf("%s must return a map of functions", goFuncsFuncName)
	}
	out := make(map[string]resolve.Func, mapVal.Len())
	iter := mapVal.MapRange()
	for iter.Next() {
		name, ok := iter.Key().Interface().(string)
		if !ok {
			return nil, fmt.Errorf("%s keys must be strings", goFuncsFuncName)
		}
		fn, err := adaptFunc(name, iter.Value())
		if err != nil {
			return nil, err
		}
		out[name] = fn
	}
	return out, nil
}

func adaptFunc(name string, value reflect.Value) (resolve.Func, error) {
	if value.Kind() == reflect.Interface {
		value = value.Elem()
	}
	if !value.IsValid() || value.Kind() != reflect.Func {
		return nil, fmt.Errorf("function %q is not a func", name)
	}
	fn := value
	return func(args []any) (any, error) {
		if args == nil {
			args = []any{}
		}
		results := fn.Call([]reflect.Value{reflect.ValueOf(args)})
		if len(results) != 2 {
			return nil, fmt.Errorf("function %q must return (any, error)", name)
		}
		var callErr error
		if !results[1].IsNil() {
			e, ok := results[1].Interface().(error)
			if !ok {
				return nil, fmt.Errorf("function %q returned non-error second value", name)
			}
			callErr = e
		}
		return results[0].Interface(), callErr
	}, nil
}
