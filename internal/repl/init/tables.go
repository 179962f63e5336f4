package init

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/willibrandon/pgmesh/internal/repl/models"
)

// copyTables resolves the ordered set of tables that must be copied for the
// given replication sets, by querying the origin's membership catalog. All set
// names go into a single array-membership predicate so resolution is one
// round trip. Order is catalog scan order and carries no meaning.
func copyTables(ctx context.Context, originConn *pgx.Conn, sets []string) ([]models.TableRef, error) {
	rows, err := originConn.Query(ctx, `
		SELECT nspname, relname FROM pgmesh.tables WHERE set_name = ANY($1)
	`, sets)
	if err != nil {
		return nil, fmt.Errorf("could not get table list for replication sets %v: %w", sets, err)
	}
	defer rows.Close()

	var tables []models.TableRef
	for rows.Next() {
		var t models.TableRef
		if err := rows.Scan(&t.Schema, &t.Name); err != nil {
			return nil, fmt.Errorf("failed to scan table reference: %w", err)
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("could not get table list for replication sets %v: %w", sets, err)
	}
	return tables, nil
}
