package init

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pglogrepl"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/willibrandon/pgmesh/internal/repl/db"
	"github.com/willibrandon/pgmesh/internal/repl/models"
)

// outputPlugin is the logical decoding plugin the mesh decodes with.
const outputPlugin = "pgoutput"

// maxSlotNameLen matches the server-side NAMEDATALEN-1 limit.
const maxSlotNameLen = 63

// SlotInfo describes a freshly created logical replication slot. The start
// LSN and the exported snapshot come from the same response row, so they name
// the exact same transactional cut.
//
// The exported snapshot is only valid while the creating connection stays
// open. Release closes that connection; callers must not use Snapshot
// afterwards.
type SlotInfo struct {
	Name     string
	LSN      pglogrepl.LSN
	Snapshot string

	release func(context.Context)
}

// Release invalidates the exported snapshot by closing the connection that
// holds it open. Safe to call on a zero SlotInfo.
func (s SlotInfo) Release(ctx context.Context) {
	if s.release != nil {
		s.release(ctx)
	}
}

// GenSlotName derives the deterministic slot name for an origin->target edge
// within one database. The same edge always yields the same name, which is
// what ties the slot, the replication origin, and any later resume together.
func GenSlotName(dbName string, origin, target *models.Node) string {
	name := fmt.Sprintf("pgmesh_%s_%s_%s",
		sanitizeSlotName(dbName),
		sanitizeSlotName(origin.Name),
		sanitizeSlotName(target.Name))
	if len(name) > maxSlotNameLen {
		name = name[:maxSlotNameLen]
	}
	return name
}

// sanitizeSlotName lowercases and strips characters a replication slot name
// cannot contain.
func sanitizeSlotName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// pgSlotProvisioner implements SlotProvisioner against a real origin server
// and the local pool.
type pgSlotProvisioner struct {
	pool   *pgxpool.Pool
	logger *Logger
}

// NewSlotProvisioner returns a SlotProvisioner backed by a replication
// connection to the origin and the local pool for origin bookkeeping.
func NewSlotProvisioner(pool *pgxpool.Pool, logger *Logger) SlotProvisioner {
	return &pgSlotProvisioner{pool: pool, logger: logger}
}

// Provision creates the logical slot on the origin, capturing its exported
// snapshot and start LSN atomically, then records the local replication
// origin advanced to that LSN in a single local transaction.
func (p *pgSlotProvisioner) Provision(ctx context.Context, edge models.Edge, slotName string) (SlotInfo, error) {
	conn, err := db.ConnectReplication(ctx, edge.Origin.DSN, db.AppNameSnapshot)
	if err != nil {
		return SlotInfo{}, err
	}

	// TODO: check and handle already existing slot. A retry after a crash
	// between slot creation and status persistence currently fails here.
	res, err := pglogrepl.CreateReplicationSlot(ctx, conn, slotName, outputPlugin,
		pglogrepl.CreateReplicationSlotOptions{
			Mode:           pglogrepl.LogicalReplication,
			SnapshotAction: "EXPORT_SNAPSHOT",
		})
	if err != nil {
		conn.Close(ctx)
		return SlotInfo{}, fmt.Errorf("could not create replication slot %q: %w", slotName, err)
	}

	lsn, err := pglogrepl.ParseLSN(res.ConsistentPoint)
	if err != nil {
		conn.Close(ctx)
		return SlotInfo{}, fmt.Errorf("could not parse slot start LSN %q: %w", res.ConsistentPoint, err)
	}

	info := SlotInfo{
		Name:     res.SlotName,
		LSN:      lsn,
		Snapshot: res.SnapshotName,
		// The snapshot dies with this connection, so it stays open until the
		// caller is done copying.
		release: func(ctx context.Context) { conn.Close(ctx) },
	}

	if err := p.ensureOriginAdvanced(ctx, info); err != nil {
		conn.Close(ctx)
		return SlotInfo{}, err
	}

	p.logger.Log(InitEvent{
		Event:  EventSlotCreated,
		NodeID: edge.Target.ID,
		Details: map[string]any{
			"slot_name": info.Name,
			"lsn":       info.LSN.String(),
			"snapshot":  info.Snapshot,
		},
	})
	return info, nil
}

// ensureOriginAdvanced gets or creates the local replication origin named
// after the slot and marks the slot's start position as already applied, so
// steady-state replay resumes exactly after the copied snapshot. All of it
// commits in one transaction.
func (p *pgSlotProvisioner) ensureOriginAdvanced(ctx context.Context, slot SlotInfo) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("could not begin local transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var originID uint32
	err = tx.QueryRow(ctx, `
		SELECT roident FROM pg_replication_origin WHERE roname = $1
	`, slot.Name).Scan(&originID)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, err := tx.Exec(ctx, `SELECT pg_replication_origin_create($1)`, slot.Name); err != nil {
			return fmt.Errorf("could not create replication origin %q: %w", slot.Name, err)
		}
	} else if err != nil {
		return fmt.Errorf("could not look up replication origin %q: %w", slot.Name, err)
	}

	if _, err := tx.Exec(ctx, `
		SELECT pg_replication_origin_advance($1, $2::pg_lsn)
	`, slot.Name, slot.LSN.String()); err != nil {
		return fmt.Errorf("could not advance replication origin %q to %s: %w",
			slot.Name, slot.LSN, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("could not commit replication origin bookkeeping: %w", err)
	}

	p.logger.Log(InitEvent{
		Event: EventOriginAdvanced,
		Details: map[string]any{
			"origin": slot.Name,
			"lsn":    slot.LSN.String(),
		},
	})
	return nil
}
