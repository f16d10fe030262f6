// Package schema defines the public data model of the canvas graph:
// nodes, ports, edges, execution results, templates, and structured errors.
package schema

import "encoding/json"

// Direction tells whether a port consumes or produces data.
type Direction string

const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

// DisplayMode is the density setting that determines a node's default
// footprint when no measured or explicit size is available.
type DisplayMode string

const (
	DisplayModeCompact  DisplayMode = "compact"
	DisplayModeStandard DisplayMode = "standard"
	DisplayModeExpanded DisplayMode = "expanded"
)

// Position is a top-left coordinate in canvas units.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is a width/height pair in canvas units.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Port is a typed named connection point on a node.
type Port struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      PortType  `json:"type"`
	Required  bool      `json:"required,omitempty"`
	Direction Direction `json:"direction"`
}

// NodeStatus is the execution lifecycle state of a node.
type NodeStatus string

const (
	StatusIdle      NodeStatus = "idle"
	StatusRunning   NodeStatus = "running"
	StatusCompleted NodeStatus = "completed"
	StatusError     NodeStatus = "error"
)

// Node is a unit of work or data in the graph.
//
// Size is an explicit user resize; Measured is the rendered size reported
// back by the UI after layout. Either may be nil, in which case the layout
// engine derives a footprint from DisplayMode.
type Node struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Category    string         `json:"category,omitempty"`
	Position    Position       `json:"position"`
	Size        *Size          `json:"size,omitempty"`
	Measured    *Size          `json:"measured,omitempty"`
	DisplayMode DisplayMode    `json:"display_mode,omitempty"`
	Inputs      []Port         `json:"inputs,omitempty"`
	Outputs     []Port         `json:"outputs,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`

	Status   NodeStatus `json:"status"`
	Progress *int       `json:"progress,omitempty"`
	Error    string     `json:"error,omitempty"`
	Result   Result     `json:"-"`
}

// nodeAlias sidesteps the custom marshalers for the plain fields.
type nodeAlias Node

// MarshalJSON encodes the node with its result as a tagged envelope under
// "result", so persisted snapshots of completed nodes round-trip losslessly.
func (n Node) MarshalJSON() ([]byte, error) {
	wire := struct {
		nodeAlias
		Result json.RawMessage `json:"result,omitempty"`
	}{nodeAlias: nodeAlias(n)}
	if n.Result != nil {
		raw, err := MarshalResult(n.Result)
		if err != nil {
			return nil, err
		}
		wire.Result = raw
	}
	return json.Marshal(wire)
}

// UnmarshalJSON decodes the node, restoring the result variant from its
// envelope when present. A missing or null "result" leaves Result nil.
func (n *Node) UnmarshalJSON(data []byte) error {
	var wire struct {
		nodeAlias
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*n = Node(wire.nodeAlias)
	if len(wire.Result) > 0 && string(wire.Result) != "null" {
		r, err := UnmarshalResult(wire.Result)
		if err != nil {
			return err
		}
		n.Result = r
	}
	return nil
}

// Input returns the input port with the given ID, or nil.
func (n *Node) Input(portID string) *Port {
	for i := range n.Inputs {
		if n.Inputs[i].ID == portID {
			return &n.Inputs[i]
		}
	}
	return nil
}

// Output returns the output port with the given ID, or nil.
func (n *Node) Output(portID string) *Port {
	for i := range n.Outputs {
		if n.Outputs[i].ID == portID {
			return &n.Outputs[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the node. Result payloads are immutable and
// shared by reference.
func (n *Node) Clone() *Node {
	cp := *n
	if n.Size != nil {
		s := *n.Size
		cp.Size = &s
	}
	if n.Measured != nil {
		s := *n.Measured
		cp.Measured = &s
	}
	if n.Progress != nil {
		p := *n.Progress
		cp.Progress = &p
	}
	cp.Inputs = append([]Port(nil), n.Inputs...)
	cp.Outputs = append([]Port(nil), n.Outputs...)
	if n.Parameters != nil {
		cp.Parameters = make(map[string]any, len(n.Parameters))
		for k, v := range n.Parameters {
			cp.Parameters[k] = v
		}
	}
	return &cp
}

// Endpoint identifies one side of an edge.
type Endpoint struct {
	NodeID string `json:"node_id"`
	PortID string `json:"port_id"`
}

// Edge is a directed, type-checked connection from a source node's output
// port to a target node's input port. Selector is an optional jq expression
// applied to the upstream result payload before it reaches the target input.
type Edge struct {
	ID       string   `json:"id"`
	Source   Endpoint `json:"source"`
	Target   Endpoint `json:"target"`
	Selector string   `json:"selector,omitempty"`
}

// Board is a point-in-time snapshot of a graph, used for persistence and
// autosave. Never aliased with live graph state.
type Board struct {
	ID    string  `json:"id"`
	Name  string  `json:"name,omitempty"`
	Nodes []*Node `json:"nodes"`
	Edges []*Edge `json:"edges"`
}
