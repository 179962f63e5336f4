package repl_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	replinit "github.com/willibrandon/pgmesh/internal/repl/init"
	"github.com/willibrandon/pgmesh/internal/repl/models"
	"github.com/willibrandon/pgmesh/internal/repl/store"
)

// =============================================================================
// Init Test Suite
// =============================================================================

// InitTestSuite exercises slot provisioning and snapshot-bound data copy
// against a real server. The origin is the container's testdb; the target is
// a second database in the same instance.
type InitTestSuite struct {
	suite.Suite
	ctx       context.Context
	cancel    context.CancelFunc
	container testcontainers.Container
	pool      *pgxpool.Pool
	originDSN string
	targetDSN string
	logger    *replinit.Logger
}

func TestInitSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	suite.Run(t, new(InitTestSuite))
}

func (s *InitTestSuite) SetupSuite() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 5*time.Minute)

	s.container, s.originDSN = startPostgres(s.ctx, &s.Suite)
	s.logger = replinit.NewLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	pool, err := pgxpool.New(s.ctx, s.originDSN)
	s.Require().NoError(err)
	s.pool = pool

	st := store.New(pool)
	s.Require().NoError(st.EnsureSchema(s.ctx))
	s.Require().NoError(st.CreateReplicationSet(s.ctx, "default"))
	s.Require().NoError(st.AddSetTable(s.ctx, "default", models.TableRef{Schema: "public", Name: "accounts"}))

	_, err = pool.Exec(s.ctx, `CREATE TABLE public.accounts (id int PRIMARY KEY, name text NOT NULL)`)
	s.Require().NoError(err)
	_, err = pool.Exec(s.ctx, `INSERT INTO public.accounts VALUES (1, 'alice'), (2, 'bob'), (3, 'carol')`)
	s.Require().NoError(err)

	// Second database in the same instance acts as the copy target.
	_, err = pool.Exec(s.ctx, `CREATE DATABASE targetdb`)
	s.Require().NoError(err)

	host, err := s.container.Host(s.ctx)
	s.Require().NoError(err)
	port, err := s.container.MappedPort(s.ctx, "5432")
	s.Require().NoError(err)
	s.targetDSN = fmt.Sprintf("postgres://test:test@%s:%s/targetdb?sslmode=disable", host, port.Port())

	targetConn, err := pgx.Connect(s.ctx, s.targetDSN)
	s.Require().NoError(err)
	defer targetConn.Close(s.ctx)
	_, err = targetConn.Exec(s.ctx, `CREATE TABLE public.accounts (id int PRIMARY KEY, name text NOT NULL)`)
	s.Require().NoError(err)
}

func (s *InitTestSuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(context.Background())
	}
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *InitTestSuite) edge() models.Edge {
	return models.Edge{
		Origin: &models.Node{
			ID:     "origin-1",
			Name:   "origin",
			DSN:    s.originDSN,
			Role:   models.RolePublisher,
			Status: models.StatusReady,
		},
		Target: &models.Node{
			ID:     "target-1",
			Name:   "target",
			DSN:    s.targetDSN,
			Role:   models.RoleSubscriber,
			Status: models.StatusInit,
		},
		ReplicationSets: []string{"default"},
	}
}

// =============================================================================
// Slot Provisioning and Data Copy
// =============================================================================

func (s *InitTestSuite) TestProvisionAndCopy() {
	ctx := s.ctx
	edge := s.edge()
	slotName := replinit.GenSlotName("testdb", edge.Origin, edge.Target)

	slots := replinit.NewSlotProvisioner(s.pool, s.logger)
	slot, err := slots.Provision(ctx, edge, slotName)
	s.Require().NoError(err, "Should create the replication slot")
	defer slot.Release(ctx)

	s.Equal(slotName, slot.Name)
	s.NotEmpty(slot.Snapshot, "Slot creation must export a snapshot")
	s.NotZero(slot.LSN, "Slot creation must report a start LSN")

	// The local replication origin exists and sits at the slot's start LSN.
	var count int
	err = s.pool.QueryRow(ctx, `
		SELECT count(*) FROM pg_replication_origin WHERE roname = $1
	`, slot.Name).Scan(&count)
	s.Require().NoError(err)
	s.Equal(1, count, "Replication origin should exist")

	var progress string
	err = s.pool.QueryRow(ctx, `
		SELECT pg_replication_origin_progress($1, false)::text
	`, slot.Name).Scan(&progress)
	s.Require().NoError(err)
	s.Equal(slot.LSN.String(), progress, "Origin should be advanced to the slot LSN")

	// Rows committed after slot creation are outside the exported snapshot
	// and must not be copied.
	_, err = s.pool.Exec(ctx, `INSERT INTO public.accounts VALUES (4, 'dave')`)
	s.Require().NoError(err)

	copier := replinit.NewDataCopier(s.logger)
	s.Require().NoError(copier.CopyNodeData(ctx, edge, slot.Snapshot))

	targetConn, err := pgx.Connect(ctx, s.targetDSN)
	s.Require().NoError(err)
	defer targetConn.Close(ctx)

	var rows int
	err = targetConn.QueryRow(ctx, `SELECT count(*) FROM public.accounts`).Scan(&rows)
	s.Require().NoError(err)
	s.Equal(3, rows, "Only snapshot-visible rows should be copied")

	var name string
	err = targetConn.QueryRow(ctx, `SELECT name FROM public.accounts WHERE id = 2`).Scan(&name)
	s.Require().NoError(err)
	s.Equal("bob", name)
}

func (s *InitTestSuite) TestCopyInvalidSnapshotFails() {
	edge := s.edge()

	copier := replinit.NewDataCopier(s.logger)
	err := copier.CopyNodeData(s.ctx, edge, "00000000-00000000-1")
	s.Require().Error(err, "Copy bound to a dead snapshot must fail")
}
