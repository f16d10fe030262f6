package schema

// WorkflowTemplate is a named bundle of initial nodes, edges, and ordered
// guided steps. It seeds a graph once and is never mutated by the core.
type WorkflowTemplate struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Nodes       []TemplateNode `json:"nodes"`
	Edges       []TemplateEdge `json:"edges,omitempty"`
	GuidedSteps []GuidedStep   `json:"guided_steps,omitempty"`
}

// TemplateNode describes one node in a template. IDs are optional; the
// loader mints them when absent.
type TemplateNode struct {
	ID          string         `json:"id,omitempty"`
	Type        string         `json:"type"`
	Category    string         `json:"category,omitempty"`
	Position    Position       `json:"position"`
	DisplayMode DisplayMode    `json:"display_mode,omitempty"`
	Inputs      []Port         `json:"inputs,omitempty"`
	Outputs     []Port         `json:"outputs,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// TemplateEdge references template nodes by ID and ports by port ID.
type TemplateEdge struct {
	SourceNode string `json:"source_node"`
	SourcePort string `json:"source_port"`
	TargetNode string `json:"target_node"`
	TargetPort string `json:"target_port"`
	Selector   string `json:"selector,omitempty"`
}

// GuidedStep is one entry of a template's onboarding sequence. Condition is
// a CEL expression over the graph state (variable `nodes`: node ID to
// {status, progress, has_result}) that decides when the step is complete.
type GuidedStep struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	TargetNode  string `json:"target_node,omitempty"`
	Condition   string `json:"condition,omitempty"`
}
