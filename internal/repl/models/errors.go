package models

import "errors"

// Node validation errors.
var (
	ErrNodeIDRequired   = errors.New("node_id is required")
	ErrNodeNameRequired = errors.New("node_name is required")
	ErrDSNRequired      = errors.New("dsn is required")
	ErrInvalidRole      = errors.New("invalid node role")
	ErrInvalidStatus    = errors.New("invalid node status")
)

// Edge validation errors.
var (
	ErrEdgeIncomplete    = errors.New("edge requires both origin and target nodes")
	ErrNoReplicationSets = errors.New("at least one replication set is required")
)

// State machine errors.
var (
	// ErrStatusWentBackward is returned when a status update would move a node
	// backward or sideways through the initialization order.
	ErrStatusWentBackward = errors.New("node status may only advance")

	// ErrNonRecoverable is returned when a node's persisted status does not
	// permit resuming initialization; the operator must discard the node and
	// redo setup from scratch.
	ErrNonRecoverable = errors.New("node initialization failed during nonrecoverable step, please try the setup again")

	// ErrNotSubscriber is returned when the initialization target has a role
	// other than subscriber.
	ErrNotSubscriber = errors.New("only subscriber node can be replication target")
)
