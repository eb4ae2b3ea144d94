package browserjar

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func openTestSQLite(t *testing.T, path string) *sql.DB {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	db, err := sql.Open("sqlite", "file:"+filepath.ToSlash(path)+"?mode=rwc")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func pkcs7Pad(t *testing.T, b []byte) []byte {
	t.Helper()
	paddingLen := aes.BlockSize - (len(b) % aes.BlockSize)
	if paddingLen == 0 {
		paddingLen = aes.BlockSize
	}
	out := make([]byte, 0, len(b)+paddingLen)
	out = append(out, b...)
	for i := 0; i < paddingLen; i++ {
		out = append(out, byte(paddingLen))
	}
	return out
}

func encryptCBCForTest(t *testing.T, prefix string, key []byte, plaintext []byte) []byte {
	t.Helper()
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatal(err)
	}
	padded := pkcs7Pad(t, plaintext)
	ciphertext := make([]byte, len(padded))
	cbc := cipher.NewCBCEncrypter(block, []byte(chromiumCBCIV))
	cbc.CryptBlocks(ciphertext, padded)
	return append([]byte(prefix), ciphertext...)
}

func encryptGCMForTest(t *testing.T, prefix string, key []byte, nonce []byte, plaintext []byte) []byte {
	t.Helper()
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatal(err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		t.Fatal(err)
	}
	ciphertextAndTag := aesgcm.Seal(nil, nonce, plaintext, nil)
	out := make([]byte, 0, len(prefix)+len(nonce)+len(ciphertextAndTag))
	out = append(out, []byte(prefix)...)
	out = append(out, nonce...)
	out = append(out, ciphertextAndTag...)
	return out
}

func chromiumExpiresFromTime(t time.Time) int64 {
	return chromiumEpochDiffMicros + t.UnixMicro()
}

// makeChromiumFixture builds a Cookies DB with the modern schema and
// returns its path.
func makeChromiumFixture(t *testing.T, metaVersion string) (string, *sql.DB) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "Cookies")
	db := openTestSQLite(t, dbPath)
	mustExec(t, db, `CREATE TABLE meta(key TEXT PRIMARY KEY, value TEXT)`)
	mustExec(t, db, `INSERT INTO meta(key,value) VALUES('version',?)`, metaVersion)
	mustExec(t, db, `CREATE TABLE cookies(host_key TEXT, name TEXT, path TEXT, value TEXT, encrypted_value BLOB, expires_utc INTEGER, is_secure INTEGER, is_httponly INTEGER, samesite INTEGER)`)
	return dbPath, db
}

func insertChromiumCookie(t *testing.T, db *sql.DB, host, name, value string, encrypted []byte, expiresUTC int64) {
	t.Helper()
	mustExec(t, db,
		`INSERT INTO cookies(host_key,name,path,value,encrypted_value,expires_utc,is_secure,is_httponly,samesite) VALUES(?,?,?,?,?,?,?,?,?)`,
		host, name, "/", value, encrypted, expiresUTC, 1, 1, 1,
	)
}

// makeFirefoxFixture builds a profiles.ini + cookies.sqlite layout under
// root and returns the profile directory.
func makeFirefoxFixture(t *testing.T, root string) (string, *sql.DB) {
	t.Helper()
	profileDir := filepath.Join(root, "Profiles", "abcd.default-release")
	if err := os.MkdirAll(profileDir, 0o755); err != nil {
		t.Fatal(err)
	}
	ini := []byte("[Profile0]\nName=default\nIsRelative=1\nPath=Profiles/abcd.default-release\n\n")
	if err := os.WriteFile(filepath.Join(root, "profiles.ini"), ini, 0o644); err != nil {
		t.Fatal(err)
	}

	db := openTestSQLite(t, filepath.Join(profileDir, "cookies.sqlite"))
	mustExec(t, db, `CREATE TABLE moz_cookies(host TEXT, name TEXT, value TEXT, path TEXT, expiry INTEGER, isSecure INTEGER, isHttpOnly INTEGER, sameSite INTEGER)`)
	return profileDir, db
}

func mustExec(t *testing.T, db *sql.DB, query string, args ...any) {
	t.Helper()
	if _, err := db.Exec(query, args...); err != nil {
		t.Fatalf("%s: %v", query, err)
	}
}

type fakeKeyProvider struct {
	material KeyMaterial
	err      error
}

func (p fakeKeyProvider) Fetch(_ context.Context, _ Browser) (KeyMaterial, error) {
	if p.err != nil {
		return KeyMaterial{}, p.err
	}
	return p.material, nil
}

var errFakeKeyring = errors.New("keyring locked")

func diagKinds(diags []Diagnostic) map[DiagnosticKind]int {
	out := make(map[DiagnosticKind]int)
	for _, d := range diags {
		out[d.Kind]++
	}
	return out
}
