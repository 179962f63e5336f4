package init

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/willibrandon/pgmesh/internal/repl/db"
	"github.com/willibrandon/pgmesh/internal/repl/models"
)

// copyChunkSize is the unit the relay loop moves between streams. Cancellation
// is only observed between chunks, so the size bounds cancel latency as well
// as memory use.
const copyChunkSize = 64 * 1024

// StreamSource opens a streaming export of one table's rows.
type StreamSource interface {
	OpenRead(ctx context.Context, table models.TableRef) (io.ReadCloser, error)
}

// StreamSink opens a streaming import into one table. Closing the returned
// writer signals copy completion and reports whether the import succeeded.
type StreamSink interface {
	OpenWrite(ctx context.Context, table models.TableRef) (io.WriteCloser, error)
}

// copier implements DataCopier over the COPY wire protocol.
type copier struct {
	logger *Logger
}

// NewDataCopier returns a DataCopier that moves rows over the COPY wire
// protocol.
func NewDataCopier(logger *Logger) DataCopier {
	return &copier{logger: logger}
}

// CopyNodeData copies all replicated tables' data from origin to target under
// the given exported snapshot. The origin transaction is read-only repeatable
// read bound to the snapshot; the target transaction is read committed. Both
// stay open for the full copy.
func (c *copier) CopyNodeData(ctx context.Context, edge models.Edge, snapshot string) error {
	originConn, err := db.Connect(ctx, edge.Origin.DSN, db.AppNameInit)
	if err != nil {
		return err
	}
	defer originConn.Close(ctx)

	if err := db.BeginSnapshotRead(ctx, originConn, snapshot); err != nil {
		return err
	}

	tables, err := copyTables(ctx, originConn, edge.ReplicationSets)
	if err != nil {
		return err
	}

	targetConn, err := db.Connect(ctx, edge.Target.DSN, db.AppNameInit)
	if err != nil {
		return err
	}
	defer targetConn.Close(ctx)

	if err := db.BeginWrite(ctx, targetConn); err != nil {
		return err
	}

	src := &pgCopySource{conn: originConn.PgConn()}
	dst := &pgCopySink{conn: targetConn.PgConn()}

	for _, table := range tables {
		start := time.Now()
		bytes, err := copyTableData(ctx, src, dst, table)
		if err != nil {
			return err
		}
		c.logger.LogTableCopied(edge.Target.ID, table.String(), bytes, time.Since(start).Milliseconds())
	}

	// The origin transaction only held the snapshot open; a failed rollback
	// has no data-integrity consequence.
	if _, err := originConn.Exec(ctx, "ROLLBACK"); err != nil {
		c.logger.Log(InitEvent{
			Level:  "warn",
			Event:  EventRollbackWarning,
			NodeID: edge.Target.ID,
			Error:  fmt.Sprintf("ROLLBACK on origin node failed: %v", err),
		})
	}

	if _, err := targetConn.Exec(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("COMMIT on target node failed: %w", err)
	}
	return nil
}

// copyTableData relays one table through the stream pair in fixed-size chunks
// without materializing the table, honoring cancellation between chunks.
func copyTableData(ctx context.Context, src StreamSource, dst StreamSink, table models.TableRef) (int64, error) {
	r, err := src.OpenRead(ctx, table)
	if err != nil {
		return 0, fmt.Errorf("table copy failed for %s: %w", table, err)
	}
	defer r.Close()

	w, err := dst.OpenWrite(ctx, table)
	if err != nil {
		return 0, fmt.Errorf("table copy failed for %s: %w", table, err)
	}

	written, err := relay(ctx, r, w)
	if err != nil {
		w.Close()
		return written, fmt.Errorf("table copy failed for %s: %w", table, err)
	}

	// Close signals copy completion to the target stream.
	if err := w.Close(); err != nil {
		return written, fmt.Errorf("sending copy-completion for %s failed: %w", table, err)
	}
	return written, nil
}

// relay moves chunks from r to w until EOF, checking for cancellation between
// chunks so a user-requested abort takes effect promptly mid-table.
func relay(ctx context.Context, r io.Reader, w io.Writer) (int64, error) {
	buf := make([]byte, copyChunkSize)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, rerr := r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return written, fmt.Errorf("writing to target table failed: %w", werr)
			}
			written += int64(n)
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, fmt.Errorf("reading from origin table failed: %w", rerr)
		}
	}
}

// pgCopySource streams rows out of the origin with COPY TO STDOUT.
type pgCopySource struct {
	conn *pgconn.PgConn
}

func (s *pgCopySource) OpenRead(ctx context.Context, table models.TableRef) (io.ReadCloser, error) {
	sql := fmt.Sprintf("COPY %s TO STDOUT", pgx.Identifier{table.Schema, table.Name}.Sanitize())

	pr, pw := io.Pipe()
	go func() {
		_, err := s.conn.CopyTo(ctx, pw, sql)
		pw.CloseWithError(err)
	}()
	return pr, nil
}

// pgCopySink streams rows into the target with COPY FROM STDIN.
type pgCopySink struct {
	conn *pgconn.PgConn
}

func (s *pgCopySink) OpenWrite(ctx context.Context, table models.TableRef) (io.WriteCloser, error) {
	sql := fmt.Sprintf("COPY %s FROM STDIN", pgx.Identifier{table.Schema, table.Name}.Sanitize())

	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		_, err := s.conn.CopyFrom(ctx, pr, sql)
		// Unblock any writer still pending if the import died early.
		pr.CloseWithError(err)
		done <- err
	}()
	return &copyInWriter{pw: pw, done: done}, nil
}

// copyInWriter couples the pipe's write side to the COPY FROM result so that
// Close reports the import outcome.
type copyInWriter struct {
	pw   *io.PipeWriter
	done chan error
}

func (w *copyInWriter) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

func (w *copyInWriter) Close() error {
	w.pw.Close()
	return <-w.done
}
