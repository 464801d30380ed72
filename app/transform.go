package app

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// HeaderTransformContext is the expr evaluation environment for an
// upstream's computed_set request header rules (§4.3 stage 7).
type HeaderTransformContext struct {
	Method   string              `expr:"method"`
	Path     string              `expr:"path"`
	Query    map[string][]string `expr:"query"`
	Headers  map[string][]string `expr:"headers"`
	TenantID string              `expr:"tenantID"`
	Alias    string              `expr:"alias"`
}

// TransformService compiles and evaluates the expr-lang expressions used by
// computed_set header rules, caching compiled programs by expression text.
type TransformService struct {
	cacheMu sync.RWMutex
	cache   map[string]*vm.Program

	envOptions []expr.Option
}

// NewTransformService constructs a TransformService with the built-in
// string/encoding helper functions available to every computed_set expression.
func NewTransformService() *TransformService {
	return &TransformService{
		cache: make(map[string]*vm.Program),
		envOptions: []expr.Option{
			expr.Function("lower", func(params ...any) (any, error) {
				return strings.ToLower(toString(params[0])), nil
			}),
			expr.Function("upper", func(params ...any) (any, error) {
				return strings.ToUpper(toString(params[0])), nil
			}),
			expr.Function("trim", func(params ...any) (any, error) {
				return strings.TrimSpace(toString(params[0])), nil
			}),
			expr.Function("trimPrefix", func(params ...any) (any, error) {
				return strings.TrimPrefix(toString(params[0]), toString(params[1])), nil
			}),
			expr.Function("trimSuffix", func(params ...any) (any, error) {
				return strings.TrimSuffix(toString(params[0]), toString(params[1])), nil
			}),
			expr.Function("replace", func(params ...any) (any, error) {
				return strings.ReplaceAll(toString(params[0]), toString(params[1]), toString(params[2])), nil
			}),
			expr.Function("join", func(params ...any) (any, error) {
				arr, ok := params[0].([]string)
				if !ok {
					return nil, fmt.Errorf("join: first argument must be a string array")
				}
				return strings.Join(arr, toString(params[1])), nil
			}),
			expr.Function("first", func(params ...any) (any, error) {
				arr, ok := params[0].([]string)
				if !ok || len(arr) == 0 {
					return "", nil
				}
				return arr[0], nil
			}),
			expr.Function("base64Encode", func(params ...any) (any, error) {
				return base64.StdEncoding.EncodeToString([]byte(toString(params[0]))), nil
			}),
		},
	}
}

// EvalHeaderValue evaluates expression against tctx and returns its string
// result, for use as a computed_set header value.
func (s *TransformService) EvalHeaderValue(expression string, tctx HeaderTransformContext) (string, error) {
	program, err := s.getOrCompile(expression, tctx)
	if err != nil {
		return "", fmt.Errorf("compile header expression: %w", err)
	}
	result, err := expr.Run(program, tctx)
	if err != nil {
		return "", fmt.Errorf("run header expression: %w", err)
	}
	return toString(result), nil
}

func (s *TransformService) getOrCompile(expression string, env any) (*vm.Program, error) {
	s.cacheMu.RLock()
	program, ok := s.cache[expression]
	s.cacheMu.RUnlock()
	if ok {
		return program, nil
	}

	opts := append([]expr.Option{expr.Env(env)}, s.envOptions...)
	program, err := expr.Compile(expression, opts...)
	if err != nil {
		return nil, err
	}

	s.cacheMu.Lock()
	s.cache[expression] = program
	s.cacheMu.Unlock()
	return program, nil
}

// HeaderContextFrom builds a HeaderTransformContext from an inbound request
// header set and proxy request fields.
func HeaderContextFrom(method, path, tenantID, alias string, query map[string][]string, headers http.Header) HeaderTransformContext {
	return HeaderTransformContext{
		Method:   method,
		Path:     path,
		Query:    query,
		Headers:  map[string][]string(headers),
		TenantID: tenantID,
		Alias:    alias,
	}
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []string:
		return strings.Join(t, ",")
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}
