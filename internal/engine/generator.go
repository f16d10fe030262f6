package engine

import (
	"context"
	"sync"

	"github.com/bert-systems/canvasgraph/internal/graph"
	"github.com/bert-systems/canvasgraph/pkg/schema"
)

// Request carries everything a generation collaborator needs for one job.
// Parameters are already interpolated; Inputs hold the resolved upstream
// values. OnProgress may be called any number of times with 0–100.
type Request struct {
	NodeID     string
	NodeType   string
	Parameters map[string]any
	Inputs     map[string]graph.InputValue
	OnProgress func(percent int)
}

// Generator is the boundary to an external generation service. Submit a
// job, receive a result or an error; transport is the implementation's
// business.
type Generator interface {
	Generate(ctx context.Context, req Request) (schema.Result, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req Request) (schema.Result, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (schema.Result, error) {
	return f(ctx, req)
}

// GeneratorRegistry maps node types to their generation collaborators.
// Safe for concurrent use.
type GeneratorRegistry struct {
	mu     sync.RWMutex
	byType map[string]Generator
}

// NewGeneratorRegistry creates an empty registry.
func NewGeneratorRegistry() *GeneratorRegistry {
	return &GeneratorRegistry{byType: make(map[string]Generator)}
}

// Register binds a generator to a node type, replacing any previous binding.
func (r *GeneratorRegistry) Register(nodeType string, g Generator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType[nodeType] = g
}

// Lookup returns the generator for a node type.
func (r *GeneratorRegistry) Lookup(nodeType string) (Generator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.byType[nodeType]
	return g, ok
}
