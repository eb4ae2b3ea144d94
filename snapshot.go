package browserjar

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver (pure Go).
)

// snapshotStore copies a live cookie database (plus WAL/journal sidecars)
// into a private temp directory so the owning browser is never blocked and
// its files are never opened for writing. cleanup removes the copy on every
// exit path and must always be called.
//
// Failures are classified for the diagnostics layer: a missing store maps to
// DiagProfileNotFound, a permission error to DiagAccessDenied.
func snapshotStore(srcPath string) (snapshotPath string, cleanup func(), kind DiagnosticKind, err error) {
	if _, err := os.Stat(srcPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", func() {}, DiagProfileNotFound, err
		}
		if errors.Is(err, fs.ErrPermission) {
			return "", func() {}, DiagAccessDenied, err
		}
		return "", func() {}, DiagAccessDenied, err
	}

	dir, err := os.MkdirTemp("", "browserjar-")
	if err != nil {
		return "", func() {}, DiagAccessDenied, err
	}
	cleanup = func() { _ = os.RemoveAll(dir) }

	target := filepath.Join(dir, filepath.Base(srcPath))
	if err := copyFile(srcPath, target); err != nil {
		cleanup()
		if errors.Is(err, fs.ErrPermission) {
			return "", func() {}, DiagAccessDenied, err
		}
		return "", func() {}, DiagAccessDenied, err
	}

	// Recent writes may live in WAL-mode sidecars.
	_ = copyFileIfExists(srcPath+"-wal", target+"-wal")
	_ = copyFileIfExists(srcPath+"-shm", target+"-shm")
	_ = copyFileIfExists(srcPath+"-journal", target+"-journal")

	return target, cleanup, "", nil
}

// openSnapshotDB opens a snapshot copy read-only and verifies it is a valid
// SQLite database. A failure here means the store copy is corrupt.
func openSnapshotDB(ctx context.Context, snapshotPath string) (*sql.DB, error) {
	dsn := "file:" + filepath.ToSlash(snapshotPath) + "?mode=ro"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	// Ping alone succeeds on arbitrary files; force a real page read.
	var n int
	if err := db.QueryRowContext(ctx, `SELECT count(*) FROM sqlite_master`).Scan(&n); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("not a valid database: %w", err)
	}
	return db, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

func copyFileIfExists(src, dst string) error {
	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return copyFile(src, dst)
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}
