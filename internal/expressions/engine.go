// Package expressions hosts the expression engines used around the graph:
// expr-lang for parameter interpolation, CEL for guided-step conditions,
// and gojq for edge result selectors. All engines cache compiled programs
// and are safe for concurrent use.
package expressions

import "context"

// Engine evaluates an expression against a data environment.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
