package init

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/willibrandon/pgmesh/internal/repl/models"
)

// =============================================================================
// Stream Fakes
// =============================================================================

// memSource serves a fixed byte payload per table.
type memSource struct {
	data    []byte
	openErr error
}

func (s *memSource) OpenRead(ctx context.Context, table models.TableRef) (io.ReadCloser, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	return io.NopCloser(bytes.NewReader(s.data)), nil
}

// memSink records written bytes and can fail on write or on the completion
// close.
type memSink struct {
	buf      bytes.Buffer
	writeErr error
	closeErr error
	closed   bool
}

func (s *memSink) OpenWrite(ctx context.Context, table models.TableRef) (io.WriteCloser, error) {
	return &memSinkWriter{sink: s}, nil
}

type memSinkWriter struct {
	sink *memSink
}

func (w *memSinkWriter) Write(p []byte) (int, error) {
	if w.sink.writeErr != nil {
		return 0, w.sink.writeErr
	}
	return w.sink.buf.Write(p)
}

func (w *memSinkWriter) Close() error {
	w.sink.closed = true
	return w.sink.closeErr
}

var testTable = models.TableRef{Schema: "public", Name: "users"}

// =============================================================================
// copyTableData Tests
// =============================================================================

func TestCopyTableData_RelaysAllBytes(t *testing.T) {
	payload := []byte("1\talice\n2\tbob\n")
	src := &memSource{data: payload}
	dst := &memSink{}

	written, err := copyTableData(context.Background(), src, dst, testTable)
	if err != nil {
		t.Fatalf("copyTableData() error = %v", err)
	}
	if written != int64(len(payload)) {
		t.Errorf("written = %d; want %d", written, len(payload))
	}
	if !bytes.Equal(dst.buf.Bytes(), payload) {
		t.Errorf("sink received %q; want %q", dst.buf.Bytes(), payload)
	}
	if !dst.closed {
		t.Error("sink writer was not closed")
	}
}

func TestCopyTableData_LargerThanChunk(t *testing.T) {
	payload := bytes.Repeat([]byte("row data\n"), 3*copyChunkSize/8)
	src := &memSource{data: payload}
	dst := &memSink{}

	written, err := copyTableData(context.Background(), src, dst, testTable)
	if err != nil {
		t.Fatalf("copyTableData() error = %v", err)
	}
	if written != int64(len(payload)) {
		t.Errorf("written = %d; want %d", written, len(payload))
	}
	if !bytes.Equal(dst.buf.Bytes(), payload) {
		t.Error("sink content differs from source payload")
	}
}

func TestCopyTableData_MultipleTablesOneEmpty(t *testing.T) {
	tables := []struct {
		table   models.TableRef
		payload []byte
	}{
		{models.TableRef{Schema: "public", Name: "accounts"}, []byte("1\talice\n2\tbob\n")},
		{models.TableRef{Schema: "public", Name: "audit_log"}, nil},
		{models.TableRef{Schema: "sales", Name: "orders"}, []byte("10\t1\t99.95\n")},
	}

	for _, tt := range tables {
		src := &memSource{data: tt.payload}
		dst := &memSink{}

		written, err := copyTableData(context.Background(), src, dst, tt.table)
		if err != nil {
			t.Fatalf("copyTableData(%s) error = %v", tt.table, err)
		}
		if written != int64(len(tt.payload)) {
			t.Errorf("%s: written = %d; want %d", tt.table, written, len(tt.payload))
		}
		if !bytes.Equal(dst.buf.Bytes(), tt.payload) {
			t.Errorf("%s: sink received %q; want %q", tt.table, dst.buf.Bytes(), tt.payload)
		}
		// The empty table still completes its copy so it exists on the
		// target with zero rows.
		if !dst.closed {
			t.Errorf("%s: sink writer was not closed", tt.table)
		}
	}
}

func TestCopyTableData_OpenReadError(t *testing.T) {
	src := &memSource{openErr: errors.New("no such table")}
	dst := &memSink{}

	_, err := copyTableData(context.Background(), src, dst, testTable)
	if err == nil {
		t.Fatal("copyTableData() error = nil; want error")
	}
	if !strings.Contains(err.Error(), "public.users") {
		t.Errorf("error %q does not name the table", err)
	}
}

func TestCopyTableData_WriteError(t *testing.T) {
	src := &memSource{data: []byte("some rows")}
	dst := &memSink{writeErr: errors.New("disk full")}

	_, err := copyTableData(context.Background(), src, dst, testTable)
	if err == nil {
		t.Fatal("copyTableData() error = nil; want error")
	}
	if !strings.Contains(err.Error(), "disk full") {
		t.Errorf("error %q does not carry the write failure", err)
	}
	if !dst.closed {
		t.Error("sink writer was not closed after write failure")
	}
}

func TestCopyTableData_CompletionError(t *testing.T) {
	// The COPY outcome is only known at close time; a clean relay followed by
	// a failed close must still fail the table.
	src := &memSource{data: []byte("some rows")}
	dst := &memSink{closeErr: errors.New("constraint violation")}

	_, err := copyTableData(context.Background(), src, dst, testTable)
	if err == nil {
		t.Fatal("copyTableData() error = nil; want error")
	}
	if !strings.Contains(err.Error(), "copy-completion") {
		t.Errorf("error %q does not indicate completion failure", err)
	}
}

// =============================================================================
// relay Cancellation Tests
// =============================================================================

// endlessReader yields data forever, cancelling the context after a fixed
// number of reads.
type endlessReader struct {
	reads  int
	cancel context.CancelFunc
}

func (r *endlessReader) Read(p []byte) (int, error) {
	r.reads++
	if r.reads == 3 {
		r.cancel()
	}
	for i := range p {
		p[i] = 'x'
	}
	return len(p), nil
}

func TestRelay_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	written, err := relay(ctx, bytes.NewReader([]byte("data")), io.Discard)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("relay() error = %v; want context.Canceled", err)
	}
	if written != 0 {
		t.Errorf("written = %d; want 0", written)
	}
}

func TestRelay_CancelledMidStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &endlessReader{cancel: cancel}
	_, err := relay(ctx, r, io.Discard)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("relay() error = %v; want context.Canceled", err)
	}
	// One more chunk may land after cancellation, but the relay must not
	// keep draining an endless source.
	if r.reads > 4 {
		t.Errorf("reader was read %d times after cancellation", r.reads)
	}
}

func TestRelay_ReadError(t *testing.T) {
	r := io.MultiReader(bytes.NewReader([]byte("partial")), &failingReader{})

	written, err := relay(context.Background(), r, io.Discard)
	if err == nil {
		t.Fatal("relay() error = nil; want error")
	}
	if written != int64(len("partial")) {
		t.Errorf("written = %d; want %d", written, len("partial"))
	}
}

type failingReader struct{}

func (failingReader) Read(p []byte) (int, error) {
	return 0, errors.New("connection reset")
}
