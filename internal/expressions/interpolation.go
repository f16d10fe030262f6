package expressions

import (
	"context"
	"fmt"
	"strings"

	"github.com/bert-systems/canvasgraph/pkg/schema"
)

// Scope holds the data available to ${{...}} references in node parameters.
type Scope struct {
	Inputs map[string]any // resolved input port values, keyed by port ID
	Params map[string]any // the node's raw parameters
	Node   map[string]any // node metadata (id, type, category)
}

func (s *Scope) data() map[string]any {
	if s == nil {
		s = &Scope{}
	}
	return map[string]any{
		"inputs": orEmpty(s.Inputs),
		"params": orEmpty(s.Params),
		"node":   orEmpty(s.Node),
	}
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// Interpolator resolves ${{...}} references in node parameter values before
// a job is dispatched. Expressions inside the markers are full expr-lang
// expressions over the scope, e.g. ${{inputs.prompt}} or
// ${{params.width * 2}}.
type Interpolator struct {
	engine *ExprEngine
}

// NewInterpolator creates a new Interpolator.
func NewInterpolator() *Interpolator {
	return &Interpolator{engine: NewExprEngine()}
}

// Resolve walks the parameter map and interpolates every string value,
// descending into nested maps and slices. Non-string values pass through
// untouched. The input map is not mutated.
func (ip *Interpolator) Resolve(ctx context.Context, params map[string]any, scope *Scope) (map[string]any, error) {
	if params == nil {
		return nil, nil
	}
	data := scope.data()
	out := make(map[string]any, len(params))
	for k, v := range params {
		resolved, err := ip.resolveValue(ctx, v, data)
		if err != nil {
			return nil, err
		}
		out[k] = resolved
	}
	return out, nil
}

func (ip *Interpolator) resolveValue(ctx context.Context, v any, data map[string]any) (any, error) {
	switch val := v.(type) {
	case string:
		return ip.resolveString(ctx, val, data)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			resolved, err := ip.resolveValue(ctx, inner, data)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			resolved, err := ip.resolveValue(ctx, inner, data)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

// resolveString scans for ${{...}} tokens. A string that is exactly one
// token resolves to the expression's typed value; embedded tokens are
// stringified in place.
func (ip *Interpolator) resolveString(ctx context.Context, input string, data map[string]any) (any, error) {
	idx := strings.Index(input, "${{")
	if idx == -1 {
		return input, nil
	}

	var result strings.Builder
	result.Grow(len(input))

	i := 0
	for i < len(input) {
		idx = strings.Index(input[i:], "${{")
		if idx == -1 {
			result.WriteString(input[i:])
			break
		}

		result.WriteString(input[i : i+idx])
		start := i + idx + 3

		end := strings.Index(input[start:], "}}")
		if end == -1 {
			return nil, schema.NewError(schema.ErrCodeInterpolation, "unclosed ${{ expression")
		}
		end += start

		expression := strings.TrimSpace(input[start:end])
		if expression == "" {
			return nil, schema.NewError(schema.ErrCodeInterpolation, "empty ${{ }} expression")
		}
		if strings.Contains(expression, "${{") {
			return nil, schema.NewError(schema.ErrCodeInterpolation,
				"nested interpolation not allowed: ${{...}} cannot contain ${{")
		}

		value, err := ip.engine.Evaluate(ctx, expression, data)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
				"resolve %q: %s", expression, err.Error()).WithCause(err)
		}

		// A string that is exactly one token keeps the typed value.
		if i+idx == 0 && end+2 == len(input) {
			return value, nil
		}

		result.WriteString(stringify(value))
		i = end + 2
	}

	return result.String(), nil
}

func stringify(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
