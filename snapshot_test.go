package browserjar

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSnapshotStore_SucceedsWhileWriterHoldsFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "Cookies")
	db := openTestSQLite(t, dbPath)
	mustExec(t, db, `CREATE TABLE meta(key TEXT PRIMARY KEY, value TEXT)`)
	mustExec(t, db, `INSERT INTO meta(key,value) VALUES('version','18')`)

	// Keep a writer handle open on the original, as a running browser would.
	writer, err := os.OpenFile(dbPath, os.O_RDWR, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = writer.Close() }()

	snap, cleanup, kind, err := snapshotStore(dbPath)
	if err != nil {
		t.Fatalf("snapshot failed (%s): %v", kind, err)
	}
	if snap == dbPath {
		t.Fatal("snapshot must not be the original file")
	}

	snapDB, err := openSnapshotDB(context.Background(), snap)
	if err != nil {
		t.Fatal(err)
	}
	_ = snapDB.Close()

	snapDir := filepath.Dir(snap)
	cleanup()
	if _, err := os.Stat(snapDir); !os.IsNotExist(err) {
		t.Fatalf("temporary copy not removed: %v", err)
	}
}

func TestSnapshotStore_CopiesWALSidecar(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "cookies.sqlite")
	if err := os.WriteFile(dbPath, []byte("main"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dbPath+"-wal", []byte("wal"), 0o644); err != nil {
		t.Fatal(err)
	}

	snap, cleanup, _, err := snapshotStore(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer cleanup()

	if _, err := os.Stat(snap + "-wal"); err != nil {
		t.Fatalf("WAL sidecar not copied: %v", err)
	}
}

func TestSnapshotStore_MissingFileClassifiedAsProfileNotFound(t *testing.T) {
	_, cleanup, kind, err := snapshotStore(filepath.Join(t.TempDir(), "no-such-db"))
	cleanup()
	if err == nil {
		t.Fatal("expected error")
	}
	if kind != DiagProfileNotFound {
		t.Fatalf("want %s got %s", DiagProfileNotFound, kind)
	}
}

func TestOpenSnapshotDB_RejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage")
	if err := os.WriteFile(path, []byte("this is not a sqlite database at all"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := openSnapshotDB(ctx, path); err == nil {
		t.Fatal("expected corrupt store to be rejected")
	}
}

func TestLoad_CorruptStoreReported(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "Cookies")
	if err := os.WriteFile(dbPath, []byte("not a database"), 0o644); err != nil {
		t.Fatal(err)
	}

	jar, diags, err := LoadBrowser(context.Background(), BrowserChrome, Options{
		AllowAllHosts: true,
		Profiles:      map[Browser]string{BrowserChrome: dbPath},
		KeyProviders:  map[Browser]KeyProvider{BrowserChrome: fakeKeyProvider{}},
	})
	if !errors.Is(err, ErrNoCookies) {
		t.Fatalf("want ErrNoCookies got %v", err)
	}
	if jar.Len() != 0 {
		t.Fatalf("want empty jar got %d", jar.Len())
	}
	if diagKinds(diags)[DiagCorruptStore] == 0 {
		t.Fatalf("want corrupt_store diagnostic, got %v", diags)
	}
}
