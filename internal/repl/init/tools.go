package init

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/willibrandon/pgmesh/internal/repl/db"
)

// Dump/restore sections. Pre-data carries bare structure (types, tables);
// post-data carries indexes and constraints, restored after the data load.
const (
	SectionPreData  = "pre-data"
	SectionPostData = "post-data"
)

// DefaultArchivePath is the shared intermediate archive the dump writes and
// both restore passes read. It is fixed per host, not per run: concurrent
// initializations on the same machine must not overlap.
func DefaultArchivePath() string {
	return filepath.Join(os.TempDir(), "pgmesh.dump")
}

// pgTools implements SchemaTransfer by shelling out to pg_dump/pg_restore
// found next to our own binary.
type pgTools struct {
	dumpPath     string
	restorePath  string
	dumpMajor    int
	restoreMajor int
	archivePath  string
	logger       *Logger
}

// newPGTools locates pg_dump and pg_restore relative to the running binary
// and records the major version each reports.
func newPGTools(archivePath string, logger *Logger) (*pgTools, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to locate own binary: %w", err)
	}
	dir := filepath.Dir(exe)

	if archivePath == "" {
		archivePath = DefaultArchivePath()
	}

	t := &pgTools{
		dumpPath:    filepath.Join(dir, exeName("pg_dump")),
		restorePath: filepath.Join(dir, exeName("pg_restore")),
		archivePath: archivePath,
		logger:      logger,
	}

	if t.dumpMajor, _, err = toolVersion(t.dumpPath); err != nil {
		return nil, fmt.Errorf("node init failed to find pg_dump relative to binary %s: %w", exe, err)
	}
	if t.restoreMajor, _, err = toolVersion(t.restorePath); err != nil {
		return nil, fmt.Errorf("node init failed to find pg_restore relative to binary %s: %w", exe, err)
	}
	return t, nil
}

// Verify checks each located tool against the major version of the server it
// will run against: pg_dump produces the archive from the origin, pg_restore
// applies it to the target. An archive made or applied by mismatched tools
// would be silently incompatible, so a mismatch is fatal and not retryable.
func (t *pgTools) Verify(ctx context.Context, originDSN, targetDSN string) error {
	originMajor, err := serverMajor(ctx, originDSN)
	if err != nil {
		return err
	}
	targetMajor, err := serverMajor(ctx, targetDSN)
	if err != nil {
		return err
	}
	return t.verifyMajors(originMajor, targetMajor)
}

func (t *pgTools) verifyMajors(originMajor, targetMajor int) error {
	if t.dumpMajor != originMajor {
		return fmt.Errorf("node init found pg_dump with wrong major version %d, expected %d",
			t.dumpMajor, originMajor)
	}
	if t.restoreMajor != targetMajor {
		return fmt.Errorf("node init found pg_restore with wrong major version %d, expected %d",
			t.restoreMajor, targetMajor)
	}
	return nil
}

func serverMajor(ctx context.Context, dsn string) (int, error) {
	conn, err := db.Connect(ctx, dsn, db.AppNameInit)
	if err != nil {
		return 0, err
	}
	defer conn.Close(ctx)
	return db.ServerVersionMajor(ctx, conn)
}

// toolVersion invokes a tool with -V and parses the reported major.minor pair
// from output like "pg_dump (PostgreSQL) 18.1".
func toolVersion(path string) (major, minor int, err error) {
	out, err := exec.Command(path, "-V").Output()
	if err != nil {
		return 0, 0, err
	}
	return parseToolVersion(string(out))
}

func parseToolVersion(out string) (major, minor int, err error) {
	fields := strings.Fields(out)
	if len(fields) < 3 {
		return 0, 0, fmt.Errorf("unrecognized version output %q", strings.TrimSpace(out))
	}
	if n, _ := fmt.Sscanf(fields[2], "%d.%d", &major, &minor); n < 1 {
		return 0, 0, fmt.Errorf("unrecognized version output %q", strings.TrimSpace(out))
	}
	return major, minor, nil
}

// Dump writes the origin's complete structure to the shared archive, bound to
// the exported snapshot so the dumped schema matches the copied data.
func (t *pgTools) Dump(ctx context.Context, snapshot, originDSN string) error {
	err := t.run(ctx, t.dumpPath,
		"--snapshot="+snapshot,
		"-F", "c",
		"-f", t.archivePath,
		originDSN,
	)
	if err != nil {
		return fmt.Errorf("schema dump failed: %w", err)
	}
	t.logger.Log(InitEvent{
		Event:   EventSchemaDumped,
		Details: map[string]any{"archive": t.archivePath},
	})
	return nil
}

// Restore applies one section of the archive to the target, stopping on the
// first error inside a single transaction.
func (t *pgTools) Restore(ctx context.Context, section, targetDSN string) error {
	err := t.run(ctx, t.restorePath,
		"--section="+section,
		"--exit-on-error",
		"-1",
		"-d", targetDSN,
		t.archivePath,
	)
	if err != nil {
		return fmt.Errorf("schema restore (%s) failed: %w", section, err)
	}
	t.logger.Log(InitEvent{
		Event:   EventSchemaRestored,
		Details: map[string]any{"section": section},
	})
	return nil
}

func (t *pgTools) run(ctx context.Context, path string, args ...string) error {
	cmd := exec.CommandContext(ctx, path, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("could not execute %s: %w (stderr: %s)",
			filepath.Base(path), err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func exeName(base string) string {
	if runtime.GOOS == "windows" {
		return base + ".exe"
	}
	return base
}
