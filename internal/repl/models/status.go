package models

import "fmt"

// Status is the persisted initialization status of a node. Values form a
// strict total order; a node only ever moves forward through them. The
// persisted status is what makes initialization resumable: after a crash the
// state machine re-reads the last written status and re-executes that step.
type Status string

const (
	// StatusNone means the node is registered but initialization has not begun.
	StatusNone Status = "none"
	// StatusInit means slot/origin provisioning and the schema+data sync are
	// in progress or pending.
	StatusInit Status = "init"
	// StatusSyncSchema is the schema-sync sub-phase of init. It participates
	// in the status order but is never persisted by the state machine; a node
	// found in this status cannot be safely resumed.
	StatusSyncSchema Status = "sync_schema"
	// StatusSlots means schema and data are synced and slots on additional
	// publishing nodes are pending.
	StatusSlots Status = "slots"
	// StatusCatchup means slot provisioning finished and the node is replaying
	// changes accumulated during the copy.
	StatusCatchup Status = "catchup"
	// StatusConnectBack means the node is caught up and must announce itself
	// to the origin.
	StatusConnectBack Status = "connect_back"
	// StatusReady means the node is fully initialized and replicating.
	StatusReady Status = "ready"
)

// AllStatuses returns all valid statuses in their strict forward order.
func AllStatuses() []Status {
	return []Status{
		StatusNone,
		StatusInit,
		StatusSyncSchema,
		StatusSlots,
		StatusCatchup,
		StatusConnectBack,
		StatusReady,
	}
}

// Rank returns the position of the status in the total order, or -1 for an
// unknown status.
func (s Status) Rank() int {
	for i, valid := range AllStatuses() {
		if s == valid {
			return i
		}
	}
	return -1
}

// IsValid returns true if the status is a recognized value.
func (s Status) IsValid() bool {
	return s.Rank() >= 0
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Resumable reports whether initialization may be safely re-entered at this
// status after a crash. Any other status requires discarding the node and
// redoing setup from scratch.
func (s Status) Resumable() bool {
	switch s {
	case StatusInit, StatusSlots, StatusCatchup, StatusConnectBack:
		return true
	}
	return false
}

// ValidateTransition checks that moving to the new status only ever advances
// through the total order. Backward and sideways moves are rejected.
func (s Status) ValidateTransition(to Status) error {
	from, next := s.Rank(), to.Rank()
	if from < 0 {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	if next < 0 {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}
	if next <= from {
		return fmt.Errorf("%w: %s -> %s", ErrStatusWentBackward, s, to)
	}
	return nil
}
