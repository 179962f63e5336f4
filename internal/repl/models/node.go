// Package models defines data structures for the replication mesh.
package models

// NodeRole identifies what part a node plays in the replication mesh.
type NodeRole string

const (
	// RolePublisher publishes changes to other nodes. Placeholder, not yet a
	// supported initialization target.
	RolePublisher NodeRole = "publisher"
	// RoleSubscriber receives changes from an origin node. The only role
	// currently supported as an initialization target.
	RoleSubscriber NodeRole = "subscriber"
	// RoleForwarder relays changes between nodes. Placeholder.
	RoleForwarder NodeRole = "forwarder"
)

// AllNodeRoles returns all valid node roles.
func AllNodeRoles() []NodeRole {
	return []NodeRole{
		RolePublisher,
		RoleSubscriber,
		RoleForwarder,
	}
}

// IsValid returns true if the role is a recognized value.
func (r NodeRole) IsValid() bool {
	for _, valid := range AllNodeRoles() {
		if r == valid {
			return true
		}
	}
	return false
}

// String returns the string representation of the role.
func (r NodeRole) String() string {
	return string(r)
}

// InitialStatus returns the status a freshly registered node of this role
// starts in. Subscribers await initialization, so they start at StatusInit
// where an initialization run can pick them up. Other roles have nothing to
// initialize and are ready on registration.
func (r NodeRole) InitialStatus() Status {
	if r == RoleSubscriber {
		return StatusInit
	}
	return StatusReady
}

// Node represents a PostgreSQL database instance participating in logical
// replication, as recorded in the pgmesh.nodes catalog.
type Node struct {
	ID     string   `db:"node_id" json:"node_id"`
	Name   string   `db:"node_name" json:"node_name"`
	DSN    string   `db:"dsn" json:"dsn"`
	Role   NodeRole `db:"role" json:"role"`
	Status Status   `db:"status" json:"status"`
}

// Validate checks that the node has valid field values.
func (n *Node) Validate() error {
	if n.ID == "" {
		return ErrNodeIDRequired
	}
	if n.Name == "" {
		return ErrNodeNameRequired
	}
	if n.DSN == "" {
		return ErrDSNRequired
	}
	if !n.Role.IsValid() {
		return ErrInvalidRole
	}
	if !n.Status.IsValid() {
		return ErrInvalidStatus
	}
	return nil
}

// Edge groups an origin node, a target node, and the replication sets selected
// for one initialization run. Immutable for the duration of the run.
type Edge struct {
	Origin          *Node
	Target          *Node
	ReplicationSets []string
}

// Validate checks that the edge has both endpoints and at least one set.
func (e *Edge) Validate() error {
	if e.Origin == nil || e.Target == nil {
		return ErrEdgeIncomplete
	}
	if err := e.Origin.Validate(); err != nil {
		return err
	}
	if err := e.Target.Validate(); err != nil {
		return err
	}
	if len(e.ReplicationSets) == 0 {
		return ErrNoReplicationSets
	}
	return nil
}
