// Package store persists node and replication-set metadata in the pgmesh
// catalog schema.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/willibrandon/pgmesh/internal/repl/db"
	"github.com/willibrandon/pgmesh/internal/repl/models"
)

// ErrNodeNotFound is returned when a node lookup matches nothing.
var ErrNodeNotFound = errors.New("node not found")

// Store is the pgx-backed node metadata repository. The pool it wraps points
// at the local (target-side) database.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a store backed by the given pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the pgmesh catalog tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ddl := []string{
		`CREATE SCHEMA IF NOT EXISTS pgmesh`,
		`CREATE TABLE IF NOT EXISTS pgmesh.nodes (
			node_id   text PRIMARY KEY,
			node_name text NOT NULL UNIQUE,
			dsn       text NOT NULL,
			role      text NOT NULL,
			status    text NOT NULL DEFAULT 'none'
		)`,
		`CREATE TABLE IF NOT EXISTS pgmesh.replication_sets (
			set_name text PRIMARY KEY
		)`,
		`CREATE TABLE IF NOT EXISTS pgmesh.tables (
			set_name text NOT NULL REFERENCES pgmesh.replication_sets (set_name) ON DELETE CASCADE,
			nspname  text NOT NULL,
			relname  text NOT NULL,
			PRIMARY KEY (set_name, nspname, relname)
		)`,
	}
	for _, stmt := range ddl {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create pgmesh catalog: %w", err)
		}
	}
	return nil
}

// CreateNode registers a node in the local catalog.
func (s *Store) CreateNode(ctx context.Context, node *models.Node) error {
	if err := node.Validate(); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pgmesh.nodes (node_id, node_name, dsn, role, status)
		VALUES ($1, $2, $3, $4, $5)
	`, node.ID, node.Name, node.DSN, string(node.Role), string(node.Status))
	if err != nil {
		return fmt.Errorf("failed to create node %s: %w", node.Name, err)
	}
	return nil
}

// DropNode removes a node from the local catalog.
func (s *Store) DropNode(ctx context.Context, nodeID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM pgmesh.nodes WHERE node_id = $1`, nodeID)
	if err != nil {
		return fmt.Errorf("failed to drop node %s: %w", nodeID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}
	return nil
}

// GetNode returns a node by id.
func (s *Store) GetNode(ctx context.Context, nodeID string) (*models.Node, error) {
	return s.scanNode(s.pool.QueryRow(ctx, `
		SELECT node_id, node_name, dsn, role, status
		FROM pgmesh.nodes WHERE node_id = $1
	`, nodeID), nodeID)
}

// GetNodeByName returns a node by its unique name.
func (s *Store) GetNodeByName(ctx context.Context, name string) (*models.Node, error) {
	return s.scanNode(s.pool.QueryRow(ctx, `
		SELECT node_id, node_name, dsn, role, status
		FROM pgmesh.nodes WHERE node_name = $1
	`, name), name)
}

// ListNodes returns all registered nodes ordered by name.
func (s *Store) ListNodes(ctx context.Context) ([]*models.Node, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT node_id, node_name, dsn, role, status
		FROM pgmesh.nodes ORDER BY node_name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	defer rows.Close()

	var nodes []*models.Node
	for rows.Next() {
		var n models.Node
		var role, status string
		if err := rows.Scan(&n.ID, &n.Name, &n.DSN, &role, &status); err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		n.Role = models.NodeRole(role)
		n.Status = models.Status(status)
		nodes = append(nodes, &n)
	}
	return nodes, rows.Err()
}

// CurrentDatabase returns the name of the local database the store points at.
func (s *Store) CurrentDatabase(ctx context.Context) (string, error) {
	var name string
	if err := s.pool.QueryRow(ctx, `SELECT current_database()`).Scan(&name); err != nil {
		return "", fmt.Errorf("failed to get current database name: %w", err)
	}
	return name, nil
}

// NodeStatus returns the persisted initialization status of a node.
func (s *Store) NodeStatus(ctx context.Context, nodeID string) (models.Status, error) {
	var status string
	err := s.pool.QueryRow(ctx, `
		SELECT status FROM pgmesh.nodes WHERE node_id = $1
	`, nodeID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get status for node %s: %w", nodeID, err)
	}
	return models.Status(status), nil
}

// SetNodeStatus advances the persisted status of a node. The transition is
// validated against the current status so status never moves backward.
func (s *Store) SetNodeStatus(ctx context.Context, nodeID string, status models.Status) error {
	current, err := s.NodeStatus(ctx, nodeID)
	if err != nil {
		return err
	}
	if err := current.ValidateTransition(status); err != nil {
		return err
	}
	// The update only lands if the row still holds the status the transition
	// was validated against, so a concurrent writer cannot make it regress.
	tag, err := s.pool.Exec(ctx, `
		UPDATE pgmesh.nodes SET status = $1 WHERE node_id = $2 AND status = $3
	`, string(status), nodeID, string(current))
	if err != nil {
		return fmt.Errorf("failed to set status %s for node %s: %w", status, nodeID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: node %s moved past %s concurrently", models.ErrStatusWentBackward, nodeID, current)
	}
	return nil
}

// SetRemoteNodeStatus pushes a node's status into the origin's copy of the
// catalog, so the origin can recognize the target as live. The origin is
// addressed by DSN; the node by its mesh-wide unique name.
func (s *Store) SetRemoteNodeStatus(ctx context.Context, originDSN, nodeName string, status models.Status) error {
	conn, err := db.Connect(ctx, originDSN, db.AppNameInit)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	tag, err := conn.Exec(ctx, `
		UPDATE pgmesh.nodes SET status = $1 WHERE node_name = $2
	`, string(status), nodeName)
	if err != nil {
		return fmt.Errorf("failed to set remote status for node %s: %w", nodeName, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w on origin: %s", ErrNodeNotFound, nodeName)
	}
	return nil
}

// CreateReplicationSet registers a named replication set.
func (s *Store) CreateReplicationSet(ctx context.Context, name string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pgmesh.replication_sets (set_name) VALUES ($1)
		ON CONFLICT (set_name) DO NOTHING
	`, name)
	if err != nil {
		return fmt.Errorf("failed to create replication set %s: %w", name, err)
	}
	return nil
}

// AddSetTable adds a table to a replication set's membership.
func (s *Store) AddSetTable(ctx context.Context, setName string, table models.TableRef) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pgmesh.tables (set_name, nspname, relname) VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, setName, table.Schema, table.Name)
	if err != nil {
		return fmt.Errorf("failed to add table %s to set %s: %w", table, setName, err)
	}
	return nil
}

func (s *Store) scanNode(row pgx.Row, key string) (*models.Node, error) {
	var n models.Node
	var role, status string
	err := row.Scan(&n.ID, &n.Name, &n.DSN, &role, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan node %s: %w", key, err)
	}
	n.Role = models.NodeRole(role)
	n.Status = models.Status(status)
	return &n, nil
}
