package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bert-systems/canvasgraph/internal/streaming"
	"github.com/bert-systems/canvasgraph/pkg/schema"
)

func imageSource(id string) *schema.Node {
	return &schema.Node{
		ID:   id,
		Type: "image-gen",
		Outputs: []schema.Port{
			{ID: "out", Name: "Image", Type: schema.PortTypeImage, Direction: schema.DirectionOutput},
		},
	}
}

func imageSink(id string) *schema.Node {
	return &schema.Node{
		ID:   id,
		Type: "upscale",
		Inputs: []schema.Port{
			{ID: "in", Name: "Image", Type: schema.PortTypeImage, Required: true, Direction: schema.DirectionInput},
		},
		Outputs: []schema.Port{
			{ID: "out", Name: "Image", Type: schema.PortTypeImage, Direction: schema.DirectionOutput},
		},
	}
}

func ep(nodeID, portID string) schema.Endpoint {
	return schema.Endpoint{NodeID: nodeID, PortID: portID}
}

// --- Structural mutations ---

func TestAddNode_MintsIDAndForcesIdle(t *testing.T) {
	g := New()
	ctx := context.Background()

	p := 50
	n := &schema.Node{
		Type:     "image-gen",
		Status:   schema.StatusRunning,
		Progress: &p,
		Error:    "stale",
		Result:   schema.ImageResult{URL: "http://x/1.png"},
	}
	stored, err := g.AddNode(ctx, n)
	require.NoError(t, err)

	assert.NotEmpty(t, stored.ID)
	assert.Equal(t, schema.StatusIdle, stored.Status)
	assert.Nil(t, stored.Progress)
	assert.Empty(t, stored.Error)
	assert.Nil(t, stored.Result)
}

func TestAddNode_ResolvesCollisionOnInsert(t *testing.T) {
	g := New()
	ctx := context.Background()

	a := imageSource("a")
	a.Position = schema.Position{X: 100, Y: 100}
	_, err := g.AddNode(ctx, a)
	require.NoError(t, err)

	b := imageSource("b")
	b.Position = schema.Position{X: 100, Y: 100}
	stored, err := g.AddNode(ctx, b)
	require.NoError(t, err)

	assert.NotEqual(t, schema.Position{X: 100, Y: 100}, stored.Position)
}

func TestAddNode_DuplicateID(t *testing.T) {
	g := New()
	ctx := context.Background()

	_, err := g.AddNode(ctx, imageSource("a"))
	require.NoError(t, err)

	_, err = g.AddNode(ctx, imageSource("a"))
	require.Error(t, err)
	cErr, ok := err.(*schema.CanvasError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeConflict, cErr.Code)
}

func TestRemoveNode_CascadesEdges(t *testing.T) {
	g := New()
	ctx := context.Background()

	_, err := g.AddNode(ctx, imageSource("src"))
	require.NoError(t, err)
	sink := imageSink("dst")
	sink.Position = schema.Position{X: 600, Y: 0}
	_, err = g.AddNode(ctx, sink)
	require.NoError(t, err)

	_, err = g.Connect(ctx, ep("src", "out"), ep("dst", "in"), "")
	require.NoError(t, err)
	require.Len(t, g.Edges(), 1)

	require.NoError(t, g.RemoveNode(ctx, "src"))
	assert.Empty(t, g.Edges())
	_, err = g.Node("src")
	require.Error(t, err)

	// The surviving node's input is free again.
	_, err = g.AddNode(ctx, imageSource("src2"))
	require.NoError(t, err)
	_, err = g.Connect(ctx, ep("src2", "out"), ep("dst", "in"), "")
	assert.NoError(t, err)
}

func TestRemoveNode_NotFound(t *testing.T) {
	g := New()
	err := g.RemoveNode(context.Background(), "ghost")
	require.Error(t, err)
	cErr, ok := err.(*schema.CanvasError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeNotFound, cErr.Code)
}

func TestMoveNode_AdjustsOnCollision(t *testing.T) {
	g := New()
	ctx := context.Background()

	a := imageSource("a")
	a.Position = schema.Position{X: 0, Y: 0}
	_, err := g.AddNode(ctx, a)
	require.NoError(t, err)
	b := imageSource("b")
	b.Position = schema.Position{X: 1000, Y: 0}
	_, err = g.AddNode(ctx, b)
	require.NoError(t, err)

	// Free spot: taken verbatim (snapped).
	pos, adjusted, err := g.MoveNode(ctx, "b", schema.Position{X: 1500, Y: 500})
	require.NoError(t, err)
	assert.False(t, adjusted)
	assert.Equal(t, schema.Position{X: 1500, Y: 500}, pos)

	// Dropping b onto a: nudged somewhere clear.
	pos, adjusted, err = g.MoveNode(ctx, "b", schema.Position{X: 0, Y: 0})
	require.NoError(t, err)
	assert.True(t, adjusted)
	assert.NotEqual(t, schema.Position{X: 0, Y: 0}, pos)
}

func TestResizeNode_RejectsNonPositive(t *testing.T) {
	g := New()
	ctx := context.Background()
	_, err := g.AddNode(ctx, imageSource("a"))
	require.NoError(t, err)

	require.Error(t, g.ResizeNode(ctx, "a", schema.Size{Width: 0, Height: 100}))
	require.Error(t, g.ResizeNode(ctx, "a", schema.Size{Width: 100, Height: -1}))
	require.NoError(t, g.ResizeNode(ctx, "a", schema.Size{Width: 400, Height: 300}))

	n, err := g.Node("a")
	require.NoError(t, err)
	require.NotNil(t, n.Size)
	assert.Equal(t, 400.0, n.Size.Width)
}

func TestSetDisplayMode_DropsMeasuredSize(t *testing.T) {
	g := New()
	ctx := context.Background()
	_, err := g.AddNode(ctx, imageSource("a"))
	require.NoError(t, err)

	require.NoError(t, g.SetMeasured(ctx, "a", schema.Size{Width: 300, Height: 200}))
	n, _ := g.Node("a")
	require.NotNil(t, n.Measured)

	require.NoError(t, g.SetDisplayMode(ctx, "a", schema.DisplayModeExpanded))
	n, _ = g.Node("a")
	assert.Nil(t, n.Measured)
	assert.Equal(t, schema.DisplayModeExpanded, n.DisplayMode)
}

// --- Edge validation ---

func TestConnect_Valid(t *testing.T) {
	g := New()
	ctx := context.Background()
	_, err := g.AddNode(ctx, imageSource("src"))
	require.NoError(t, err)
	sink := imageSink("dst")
	sink.Position = schema.Position{X: 600, Y: 0}
	_, err = g.AddNode(ctx, sink)
	require.NoError(t, err)

	edge, err := g.Connect(ctx, ep("src", "out"), ep("dst", "in"), ".url")
	require.NoError(t, err)
	assert.NotEmpty(t, edge.ID)
	assert.Equal(t, ".url", edge.Selector)

	got, ok := g.EdgeInto("dst", "in")
	require.True(t, ok)
	assert.Equal(t, edge.ID, got.ID)
}

func TestConnect_IncompatibleTypes(t *testing.T) {
	g := New()
	ctx := context.Background()
	_, err := g.AddNode(ctx, imageSource("src"))
	require.NoError(t, err)

	sink := &schema.Node{
		ID:       "dst",
		Type:     "tts",
		Position: schema.Position{X: 600, Y: 0},
		Inputs: []schema.Port{
			{ID: "in", Name: "Text", Type: schema.PortTypeText, Required: true, Direction: schema.DirectionInput},
		},
	}
	_, err = g.AddNode(ctx, sink)
	require.NoError(t, err)

	_, err = g.Connect(ctx, ep("src", "out"), ep("dst", "in"), "")
	require.Error(t, err)
	cErr, ok := err.(*schema.CanvasError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeIncompatiblePorts, cErr.Code)
	assert.Empty(t, g.Edges())
}

func TestConnect_AnyAcceptsEverything(t *testing.T) {
	g := New()
	ctx := context.Background()
	_, err := g.AddNode(ctx, imageSource("src"))
	require.NoError(t, err)

	sink := &schema.Node{
		ID:       "dst",
		Type:     "preview",
		Position: schema.Position{X: 600, Y: 0},
		Inputs: []schema.Port{
			{ID: "in", Name: "Anything", Type: schema.PortTypeAny, Direction: schema.DirectionInput},
		},
	}
	_, err = g.AddNode(ctx, sink)
	require.NoError(t, err)

	_, err = g.Connect(ctx, ep("src", "out"), ep("dst", "in"), "")
	assert.NoError(t, err)
}

func TestConnect_OccupiedInput(t *testing.T) {
	g := New()
	ctx := context.Background()
	_, err := g.AddNode(ctx, imageSource("a"))
	require.NoError(t, err)
	b := imageSource("b")
	b.Position = schema.Position{X: 0, Y: 600}
	_, err = g.AddNode(ctx, b)
	require.NoError(t, err)
	sink := imageSink("dst")
	sink.Position = schema.Position{X: 600, Y: 0}
	_, err = g.AddNode(ctx, sink)
	require.NoError(t, err)

	_, err = g.Connect(ctx, ep("a", "out"), ep("dst", "in"), "")
	require.NoError(t, err)

	_, err = g.Connect(ctx, ep("b", "out"), ep("dst", "in"), "")
	require.Error(t, err)
	cErr, ok := err.(*schema.CanvasError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeConflict, cErr.Code)
	assert.Len(t, g.Edges(), 1)
}

func TestConnect_WrongDirection(t *testing.T) {
	g := New()
	ctx := context.Background()
	_, err := g.AddNode(ctx, imageSource("src"))
	require.NoError(t, err)
	sink := imageSink("dst")
	sink.Position = schema.Position{X: 600, Y: 0}
	_, err = g.AddNode(ctx, sink)
	require.NoError(t, err)

	// Input used as source.
	_, err = g.Connect(ctx, ep("dst", "in"), ep("dst", "in"), "")
	require.Error(t, err)

	// Output used as target.
	_, err = g.Connect(ctx, ep("src", "out"), ep("dst", "out"), "")
	require.Error(t, err)
}

func TestDisconnect(t *testing.T) {
	g := New()
	ctx := context.Background()
	_, err := g.AddNode(ctx, imageSource("src"))
	require.NoError(t, err)
	sink := imageSink("dst")
	sink.Position = schema.Position{X: 600, Y: 0}
	_, err = g.AddNode(ctx, sink)
	require.NoError(t, err)

	edge, err := g.Connect(ctx, ep("src", "out"), ep("dst", "in"), "")
	require.NoError(t, err)

	require.NoError(t, g.Disconnect(ctx, edge.ID))
	assert.Empty(t, g.Edges())
	require.Error(t, g.Disconnect(ctx, edge.ID))
}

// --- Execution state invariants ---

func TestExecutionStateInvariants(t *testing.T) {
	g := New()
	ctx := context.Background()
	_, err := g.AddNode(ctx, imageSource("a"))
	require.NoError(t, err)

	require.NoError(t, g.SetRunning(ctx, "a"))
	n, _ := g.Node("a")
	assert.Equal(t, schema.StatusRunning, n.Status)
	assert.Empty(t, n.Error)
	require.NotNil(t, n.Progress)
	assert.Equal(t, 0, *n.Progress)

	require.NoError(t, g.SetProgress(ctx, "a", 250))
	n, _ = g.Node("a")
	assert.Equal(t, 100, *n.Progress) // clamped

	require.NoError(t, g.SetCompleted(ctx, "a", schema.ImageResult{URL: "http://x/1.png"}))
	n, _ = g.Node("a")
	assert.Equal(t, schema.StatusCompleted, n.Status)
	assert.Nil(t, n.Progress)
	assert.NotNil(t, n.Result)

	// Re-running clears the previous result.
	require.NoError(t, g.SetRunning(ctx, "a"))
	n, _ = g.Node("a")
	assert.Nil(t, n.Result)

	require.NoError(t, g.SetFailed(ctx, "a", ""))
	n, _ = g.Node("a")
	assert.Equal(t, schema.StatusError, n.Status)
	assert.Equal(t, "generation failed", n.Error)
	assert.Nil(t, n.Result)
	assert.Nil(t, n.Progress)

	require.NoError(t, g.ClearExecution(ctx, "a"))
	n, _ = g.Node("a")
	assert.Equal(t, schema.StatusIdle, n.Status)
	assert.Empty(t, n.Error)
}

func TestExecutionStateGuards(t *testing.T) {
	g := New()
	ctx := context.Background()
	_, err := g.AddNode(ctx, imageSource("a"))
	require.NoError(t, err)

	// All of these require running.
	require.Error(t, g.SetProgress(ctx, "a", 50))
	require.Error(t, g.SetCompleted(ctx, "a", schema.ImageResult{URL: "u"}))
	require.Error(t, g.SetFailed(ctx, "a", "boom"))

	// Completion without a result is rejected.
	require.NoError(t, g.SetRunning(ctx, "a"))
	require.Error(t, g.SetCompleted(ctx, "a", nil))
}

// --- Input resolution ---

func TestResolveInputs_ReadinessSemantics(t *testing.T) {
	g := New()
	ctx := context.Background()
	_, err := g.AddNode(ctx, imageSource("src"))
	require.NoError(t, err)
	sink := imageSink("dst")
	sink.Position = schema.Position{X: 600, Y: 0}
	_, err = g.AddNode(ctx, sink)
	require.NoError(t, err)

	// No edge: not ready.
	inputs, err := g.ResolveInputs(ctx, "dst")
	require.NoError(t, err)
	require.Contains(t, inputs, "in")
	assert.False(t, inputs["in"].Ready)

	_, err = g.Connect(ctx, ep("src", "out"), ep("dst", "in"), "")
	require.NoError(t, err)

	// Upstream idle: still not ready.
	inputs, err = g.ResolveInputs(ctx, "dst")
	require.NoError(t, err)
	assert.False(t, inputs["in"].Ready)

	// Upstream running: not ready.
	require.NoError(t, g.SetRunning(ctx, "src"))
	inputs, err = g.ResolveInputs(ctx, "dst")
	require.NoError(t, err)
	assert.False(t, inputs["in"].Ready)

	// Upstream completed: ready, value is the result map.
	require.NoError(t, g.SetCompleted(ctx, "src", schema.ImageResult{URL: "http://x/1.png"}))
	inputs, err = g.ResolveInputs(ctx, "dst")
	require.NoError(t, err)
	require.True(t, inputs["in"].Ready)
	value, ok := inputs["in"].Value.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "http://x/1.png", value["url"])

	// Upstream failed: readiness is revoked.
	require.NoError(t, g.SetRunning(ctx, "src"))
	require.NoError(t, g.SetFailed(ctx, "src", "boom"))
	inputs, err = g.ResolveInputs(ctx, "dst")
	require.NoError(t, err)
	assert.False(t, inputs["in"].Ready)
}

func TestResolveInputs_SelectorExtractsValue(t *testing.T) {
	g := New()
	ctx := context.Background()
	_, err := g.AddNode(ctx, imageSource("src"))
	require.NoError(t, err)
	sink := imageSink("dst")
	sink.Position = schema.Position{X: 600, Y: 0}
	_, err = g.AddNode(ctx, sink)
	require.NoError(t, err)

	_, err = g.Connect(ctx, ep("src", "out"), ep("dst", "in"), ".urls[0]")
	require.NoError(t, err)

	require.NoError(t, g.SetRunning(ctx, "src"))
	require.NoError(t, g.SetCompleted(ctx, "src", schema.ImageResult{URLs: []string{"http://x/1.png", "http://x/2.png"}}))

	inputs, err := g.ResolveInputs(ctx, "dst")
	require.NoError(t, err)
	require.True(t, inputs["in"].Ready)
	assert.Equal(t, "http://x/1.png", inputs["in"].Value)
}

func TestResolveInputs_BrokenSelectorDegradesToNotReady(t *testing.T) {
	g := New()
	ctx := context.Background()
	_, err := g.AddNode(ctx, imageSource("src"))
	require.NoError(t, err)
	sink := imageSink("dst")
	sink.Position = schema.Position{X: 600, Y: 0}
	_, err = g.AddNode(ctx, sink)
	require.NoError(t, err)

	_, err = g.Connect(ctx, ep("src", "out"), ep("dst", "in"), ".((broken")
	require.NoError(t, err)

	require.NoError(t, g.SetRunning(ctx, "src"))
	require.NoError(t, g.SetCompleted(ctx, "src", schema.ImageResult{URL: "http://x/1.png"}))

	inputs, err := g.ResolveInputs(ctx, "dst")
	require.NoError(t, err)
	assert.False(t, inputs["in"].Ready)
}

func TestMissingRequired(t *testing.T) {
	g := New()
	ctx := context.Background()
	_, err := g.AddNode(ctx, imageSource("src"))
	require.NoError(t, err)
	sink := imageSink("dst")
	sink.Position = schema.Position{X: 600, Y: 0}
	_, err = g.AddNode(ctx, sink)
	require.NoError(t, err)

	missing, err := g.MissingRequired(ctx, "dst")
	require.NoError(t, err)
	assert.Equal(t, []string{"in"}, missing)

	_, err = g.Connect(ctx, ep("src", "out"), ep("dst", "in"), "")
	require.NoError(t, err)
	require.NoError(t, g.SetRunning(ctx, "src"))
	require.NoError(t, g.SetCompleted(ctx, "src", schema.ImageResult{URL: "u"}))

	missing, err = g.MissingRequired(ctx, "dst")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

// --- Events and layout pass ---

func TestMutationsPublishEvents(t *testing.T) {
	hub := streaming.NewMemoryHub()
	g := New(WithHub(hub))
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, streaming.EventFilter{BoardID: g.BoardID()})
	require.NoError(t, err)
	defer cancel()

	_, err = g.AddNode(ctx, imageSource("a"))
	require.NoError(t, err)

	ev := <-ch
	assert.Equal(t, schema.EventNodeAdded, ev.EventType)
	assert.Equal(t, "a", ev.NodeID)
	assert.Equal(t, g.BoardID(), ev.BoardID)
}

func TestExecutionStateChangesPublishEvents(t *testing.T) {
	hub := streaming.NewMemoryHub()
	g := New(WithHub(hub))
	ctx := context.Background()

	_, err := g.AddNode(ctx, imageSource("a"))
	require.NoError(t, err)

	ch, cancel, err := hub.Subscribe(ctx, streaming.EventFilter{
		BoardID: g.BoardID(),
		EventTypes: []string{
			schema.EventNodeExecutionStarted,
			schema.EventNodeProgress,
			schema.EventNodeCompleted,
			schema.EventNodeFailed,
			schema.EventNodeCleared,
		},
	})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, g.SetRunning(ctx, "a"))
	require.NoError(t, g.SetProgress(ctx, "a", 50))
	require.NoError(t, g.SetCompleted(ctx, "a", schema.ImageResult{URL: "http://img/1.png"}))

	want := []string{
		schema.EventNodeExecutionStarted,
		schema.EventNodeProgress,
		schema.EventNodeCompleted,
	}
	for _, typ := range want {
		ev := <-ch
		assert.Equal(t, typ, ev.EventType)
		assert.Equal(t, "a", ev.NodeID)
		assert.Equal(t, g.BoardID(), ev.BoardID)
	}

	require.NoError(t, g.ClearExecution(ctx, "a"))
	ev := <-ch
	assert.Equal(t, schema.EventNodeCleared, ev.EventType)

	require.NoError(t, g.SetRunning(ctx, "a"))
	require.NoError(t, g.SetFailed(ctx, "a", "upstream timeout"))
	assert.Equal(t, schema.EventNodeExecutionStarted, (<-ch).EventType)
	failed := <-ch
	assert.Equal(t, schema.EventNodeFailed, failed.EventType)
	payload, ok := failed.Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "upstream timeout", payload["error"])
}

func TestExecutionPublishCarriesProgressPayload(t *testing.T) {
	hub := streaming.NewMemoryHub()
	g := New(WithHub(hub))
	ctx := context.Background()

	_, err := g.AddNode(ctx, imageSource("a"))
	require.NoError(t, err)

	ch, cancel, err := hub.Subscribe(ctx, streaming.EventFilter{
		BoardID:    g.BoardID(),
		EventTypes: []string{schema.EventNodeProgress},
	})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, g.SetRunning(ctx, "a"))
	require.NoError(t, g.SetProgress(ctx, "a", 130))

	ev := <-ch
	payload, ok := ev.Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 100, payload["progress"])
}

func TestRejectedExecutionChangePublishesNothing(t *testing.T) {
	hub := streaming.NewMemoryHub()
	g := New(WithHub(hub))
	ctx := context.Background()

	_, err := g.AddNode(ctx, imageSource("a"))
	require.NoError(t, err)

	ch, cancel, err := hub.Subscribe(ctx, streaming.EventFilter{
		BoardID: g.BoardID(),
		EventTypes: []string{
			schema.EventNodeProgress,
			schema.EventNodeCompleted,
			schema.EventNodeFailed,
		},
	})
	require.NoError(t, err)
	defer cancel()

	// Node is idle: progress, completion, and failure are all invalid.
	require.Error(t, g.SetProgress(ctx, "a", 10))
	require.Error(t, g.SetCompleted(ctx, "a", schema.ImageResult{URL: "u"}))
	require.Error(t, g.SetFailed(ctx, "a", "boom"))
	assert.Empty(t, ch)
}

func TestResolveLayout_RepairsBulkInsertedOverlaps(t *testing.T) {
	g := New()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		n := imageSource(id)
		n.Position = schema.Position{X: 100, Y: 100}
		_, err := g.InsertNode(ctx, n)
		require.NoError(t, err)
	}

	adjusted := g.ResolveLayout(ctx)
	assert.Equal(t, 2, adjusted)

	nodes := g.Nodes()
	for i := 0; i < len(nodes); i++ {
		for j := i + 1; j < len(nodes); j++ {
			assert.NotEqual(t, nodes[i].Position, nodes[j].Position)
		}
	}

	// A second pass is a no-op.
	assert.Zero(t, g.ResolveLayout(ctx))
}

func TestSnapshot(t *testing.T) {
	g := New(WithName("storyboard"))
	ctx := context.Background()
	_, err := g.AddNode(ctx, imageSource("src"))
	require.NoError(t, err)
	sink := imageSink("dst")
	sink.Position = schema.Position{X: 600, Y: 0}
	_, err = g.AddNode(ctx, sink)
	require.NoError(t, err)
	_, err = g.Connect(ctx, ep("src", "out"), ep("dst", "in"), "")
	require.NoError(t, err)

	b := g.Snapshot()
	assert.Equal(t, g.BoardID(), b.ID)
	assert.Equal(t, "storyboard", b.Name)
	assert.Len(t, b.Nodes, 2)
	assert.Len(t, b.Edges, 1)

	// The snapshot is detached from live state.
	b.Nodes[0].Position = schema.Position{X: -1, Y: -1}
	n, err := g.Node(b.Nodes[0].ID)
	require.NoError(t, err)
	assert.NotEqual(t, schema.Position{X: -1, Y: -1}, n.Position)
}
