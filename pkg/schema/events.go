package schema

// Event type constants for the node event log and the streaming hub.
const (
	EventNodeAdded   = "node_added"
	EventNodeRemoved = "node_removed"
	EventNodeMoved   = "node_moved"
	EventNodeResized = "node_resized"

	EventEdgeConnected    = "edge_connected"
	EventEdgeDisconnected = "edge_disconnected"

	EventNodeExecutionStarted = "node_execution_started"
	EventNodeProgress         = "node_progress"
	EventNodeCompleted        = "node_completed"
	EventNodeFailed           = "node_failed"
	EventNodeCleared          = "node_cleared"
	EventResultDiscarded      = "node_result_discarded"

	EventBoardLoaded = "board_loaded"
	EventBoardSaved  = "board_saved"
)
