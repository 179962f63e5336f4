// Package db provides connection setup for initialization runs.
package db

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Application names injected into every connection so the server side can
// attribute initialization traffic.
const (
	AppNameInit     = "pgmesh_init"
	AppNameSnapshot = "pgmesh_snapshot"
)

// Connect opens a standard connection to the given DSN with the identifying
// application name applied. There is no retry: initialization is meant to be
// re-invoked externally, so a connection failure aborts the run.
func Connect(ctx context.Context, dsn, appName string) (*pgx.Conn, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid connection string %q: %w", RedactDSN(dsn), err)
	}
	cfg.RuntimeParams["application_name"] = appName

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("could not connect to the postgresql server (dsn was %q): %w",
			RedactDSN(dsn), err)
	}
	return conn, nil
}

// ConnectReplication opens a connection negotiated for the logical replication
// protocol. Replication commands such as CREATE_REPLICATION_SLOT are only
// accepted on this kind of connection.
func ConnectReplication(ctx context.Context, dsn, appName string) (*pgconn.PgConn, error) {
	cfg, err := pgconn.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid connection string %q: %w", RedactDSN(dsn), err)
	}
	cfg.RuntimeParams["application_name"] = appName
	cfg.RuntimeParams["replication"] = "database"

	conn, err := pgconn.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("could not connect to the postgresql server in replication mode (dsn was %q): %w",
			RedactDSN(dsn), err)
	}
	return conn, nil
}

// RedactDSN returns the non-secret portion of a connection string, suitable
// for error messages and logs.
func RedactDSN(dsn string) string {
	cfg, err := pgconn.ParseConfig(dsn)
	if err != nil {
		return "(unparseable dsn)"
	}
	return "host=" + cfg.Host +
		" port=" + strconv.Itoa(int(cfg.Port)) +
		" dbname=" + cfg.Database +
		" user=" + cfg.User
}

// ServerVersionMajor returns the major version of the server behind the
// given connection, e.g. 18 for PostgreSQL 18.1.
func ServerVersionMajor(ctx context.Context, conn *pgx.Conn) (int, error) {
	var versionNumStr string
	if err := conn.QueryRow(ctx, "SHOW server_version_num").Scan(&versionNumStr); err != nil {
		return 0, fmt.Errorf("failed to get PostgreSQL version: %w", err)
	}
	versionNum, err := strconv.Atoi(versionNumStr)
	if err != nil {
		return 0, fmt.Errorf("failed to parse PostgreSQL version number %q: %w", versionNumStr, err)
	}
	return versionNum / 10000, nil
}

// CurrentDatabase returns the name of the database the connection is bound to.
func CurrentDatabase(ctx context.Context, conn *pgx.Conn) (string, error) {
	var name string
	if err := conn.QueryRow(ctx, "SELECT current_database()").Scan(&name); err != nil {
		return "", fmt.Errorf("failed to get current database name: %w", err)
	}
	return name, nil
}
