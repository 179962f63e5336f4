package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// originTxSetup binds the origin-side transaction to the exported snapshot so
// the copy sees exactly the slot-creation-time view, with deterministic
// formatting settings and timeouts disabled so a long copy never aborts
// mid-stream.
const originTxSetup = `BEGIN TRANSACTION ISOLATION LEVEL REPEATABLE READ, READ ONLY;
SET TRANSACTION SNAPSHOT '%s';
SET DATESTYLE = ISO;
SET INTERVALSTYLE = POSTGRES;
SET extra_float_digits TO 3;
SET statement_timeout = 0;
SET lock_timeout = 0;
`

// targetTxSetup is the write-side variant: plain READ COMMITTED, no snapshot
// binding, same deterministic settings.
const targetTxSetup = `BEGIN TRANSACTION ISOLATION LEVEL READ COMMITTED;
SET DATESTYLE = ISO;
SET INTERVALSTYLE = POSTGRES;
SET extra_float_digits TO 3;
SET statement_timeout = 0;
SET lock_timeout = 0;
`

// OriginTxScript renders the origin-side setup script for the given exported
// snapshot identifier.
func OriginTxScript(snapshot string) string {
	return fmt.Sprintf(originTxSetup, escapeLiteral(snapshot))
}

// BeginSnapshotRead starts the origin-side copy transaction bound to the
// exported snapshot.
func BeginSnapshotRead(ctx context.Context, conn *pgx.Conn, snapshot string) error {
	if _, err := conn.Exec(ctx, OriginTxScript(snapshot)); err != nil {
		return fmt.Errorf("BEGIN on origin node failed: %w", err)
	}
	return nil
}

// BeginWrite starts the target-side copy transaction.
func BeginWrite(ctx context.Context, conn *pgx.Conn) error {
	if _, err := conn.Exec(ctx, targetTxSetup); err != nil {
		return fmt.Errorf("BEGIN on target node failed: %w", err)
	}
	return nil
}

// escapeLiteral doubles single quotes for embedding in a SQL string literal.
// SET TRANSACTION SNAPSHOT does not accept bind parameters.
func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
