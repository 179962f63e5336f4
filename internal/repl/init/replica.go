// Package init brings a new replication target node from uninitialized to
// actively replicating: consistent schema dump/restore plus snapshot-bound
// bulk data copy, sequenced by a crash-recoverable persisted state machine.
package init

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/willibrandon/pgmesh/internal/repl/models"
)

// NodeStore is the node metadata repository this core drives. It only reads
// and advances node status; node lifecycle belongs to node management.
type NodeStore interface {
	CurrentDatabase(ctx context.Context) (string, error)
	NodeStatus(ctx context.Context, nodeID string) (models.Status, error)
	SetNodeStatus(ctx context.Context, nodeID string, status models.Status) error
	SetRemoteNodeStatus(ctx context.Context, originDSN, nodeName string, status models.Status) error
}

// SchemaTransfer moves schema structure from origin to target through an
// intermediate archive. Implementations may shell out, link a library, or
// call a service; the state machine only depends on this capability.
type SchemaTransfer interface {
	Verify(ctx context.Context, originDSN, targetDSN string) error
	Dump(ctx context.Context, snapshot, originDSN string) error
	Restore(ctx context.Context, section, targetDSN string) error
}

// SlotProvisioner creates the logical slot on the origin and the matching
// local replication origin, advanced to the slot's start position.
type SlotProvisioner interface {
	Provision(ctx context.Context, edge models.Edge, slotName string) (SlotInfo, error)
}

// DataCopier copies all replicated tables' data from origin to target under
// one exported snapshot.
type DataCopier interface {
	CopyNodeData(ctx context.Context, edge models.Edge, snapshot string) error
}

// Replicator is the initialization state machine. One Run drives a single
// origin->target edge through INIT -> SLOTS -> CATCHUP -> CONNECT_BACK ->
// READY, persisting each completed transition before the next state's work
// begins, so a killed run resumes from the last persisted status.
type Replicator struct {
	store  NodeStore
	tools  SchemaTransfer
	slots  SlotProvisioner
	data   DataCopier
	logger *Logger
}

// NewReplicator wires a Replicator with the production components: pg_dump/
// pg_restore schema transfer, pglogrepl slot provisioning against the origin,
// and COPY-protocol bulk transfer. The pool points at the local (target-side)
// database.
func NewReplicator(pool *pgxpool.Pool, nodes NodeStore, archivePath string, slogger *slog.Logger) (*Replicator, error) {
	logger := NewLogger(slogger)
	tools, err := newPGTools(archivePath, logger)
	if err != nil {
		return nil, err
	}
	return &Replicator{
		store:  nodes,
		tools:  tools,
		slots:  NewSlotProvisioner(pool, logger),
		data:   NewDataCopier(logger),
		logger: logger,
	}, nil
}

// Run initializes the edge's target node, resuming from its persisted status.
func (r *Replicator) Run(ctx context.Context, edge models.Edge) error {
	if err := edge.Validate(); err != nil {
		return err
	}

	status, err := r.store.NodeStatus(ctx, edge.Target.ID)
	if err != nil {
		return err
	}

	// Resuming into any other status cannot safely re-attempt forward
	// progress; the operator must discard and redo setup.
	if !status.Resumable() {
		return fmt.Errorf("%w (status %s)", models.ErrNonRecoverable, status)
	}

	r.logger.LogInitStarted(edge.Target.ID, edge.Origin.ID, edge.ReplicationSets)
	start := time.Now()

	if status == models.StatusInit {
		if err := r.stepInit(ctx, edge); err != nil {
			r.logger.LogInitFailed(edge.Target.ID, err)
			return err
		}
		status = models.StatusSlots
	}

	if status == models.StatusSlots {
		if err := r.stepSlots(ctx, edge); err != nil {
			r.logger.LogInitFailed(edge.Target.ID, err)
			return err
		}
		status = models.StatusCatchup
	}

	if status == models.StatusCatchup {
		if err := r.stepCatchup(ctx, edge); err != nil {
			r.logger.LogInitFailed(edge.Target.ID, err)
			return err
		}
		status = models.StatusConnectBack
	}

	if status == models.StatusConnectBack {
		if err := r.stepConnectBack(ctx, edge); err != nil {
			r.logger.LogInitFailed(edge.Target.ID, err)
			return err
		}
	}

	r.logger.LogInitCompleted(edge.Target.ID, time.Since(start).Milliseconds())
	return nil
}

// stepInit provisions the slot and replication origin, then synchronizes
// schema and data under the slot's exported snapshot. Schema sync is a
// sub-phase of this step: nothing is persisted until the whole step
// succeeds, when status advances to SLOTS.
func (r *Replicator) stepInit(ctx context.Context, edge models.Edge) error {
	// Tool/server version compatibility on both ends is checked before any
	// slot or data work so a bad installation aborts with nothing to clean up.
	if err := r.tools.Verify(ctx, edge.Origin.DSN, edge.Target.DSN); err != nil {
		return err
	}

	dbName, err := r.store.CurrentDatabase(ctx)
	if err != nil {
		return err
	}
	slotName := GenSlotName(dbName, edge.Origin, edge.Target)

	slot, err := r.slots.Provision(ctx, edge, slotName)
	if err != nil {
		return err
	}
	// The exported snapshot is only usable while the slot's creating
	// connection is alive; hold it until schema and data are copied.
	defer slot.Release(ctx)

	if err := r.tools.Dump(ctx, slot.Snapshot, edge.Origin.DSN); err != nil {
		return err
	}
	if err := r.tools.Restore(ctx, SectionPreData, edge.Target.DSN); err != nil {
		return err
	}
	if err := r.data.CopyNodeData(ctx, edge, slot.Snapshot); err != nil {
		return err
	}
	if err := r.tools.Restore(ctx, SectionPostData, edge.Target.DSN); err != nil {
		return err
	}

	return r.advance(ctx, edge.Target.ID, models.StatusInit, models.StatusSlots)
}

// stepSlots provisions slots on any additional publishing nodes.
func (r *Replicator) stepSlots(ctx context.Context, edge models.Edge) error {
	makeOtherSlots(edge.Target)
	return r.advance(ctx, edge.Target.ID, models.StatusSlots, models.StatusCatchup)
}

// makeOtherSlots creates slots on publishing nodes beyond the immediate
// origin.
//
// TODO: multi-origin topologies are not yet supported.
func makeOtherSlots(target *models.Node) int {
	return 0
}

// stepCatchup validates the target can act as a replication target. No
// replay-catchup wait is implemented yet.
func (r *Replicator) stepCatchup(ctx context.Context, edge models.Edge) error {
	if err := requireSubscriber(edge.Target); err != nil {
		return err
	}
	return r.advance(ctx, edge.Target.ID, models.StatusCatchup, models.StatusConnectBack)
}

// stepConnectBack marks the node READY locally, then pushes READY into the
// origin's view of this node so the origin recognizes it as live.
func (r *Replicator) stepConnectBack(ctx context.Context, edge models.Edge) error {
	if err := requireSubscriber(edge.Target); err != nil {
		return err
	}

	if err := r.advance(ctx, edge.Target.ID, models.StatusConnectBack, models.StatusReady); err != nil {
		return err
	}

	return r.store.SetRemoteNodeStatus(ctx, edge.Origin.DSN, edge.Target.Name, models.StatusReady)
}

// advance durably persists the next status. It must complete before any of
// the next state's side effects begin.
func (r *Replicator) advance(ctx context.Context, nodeID string, from, to models.Status) error {
	if err := r.store.SetNodeStatus(ctx, nodeID, to); err != nil {
		return err
	}
	r.logger.LogStateChange(nodeID, from, to)
	return nil
}

func requireSubscriber(target *models.Node) error {
	if target.Role != models.RoleSubscriber {
		return fmt.Errorf("%w (node %s has role %s)", models.ErrNotSubscriber, target.Name, target.Role)
	}
	return nil
}
