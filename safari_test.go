package browserjar

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type safariFixtureCookie struct {
	domain, name, path, value string
	flags                     int32
	expires                   time.Time
}

func buildBinaryCookies(t *testing.T, cookies []safariFixtureCookie) []byte {
	t.Helper()

	var page bytes.Buffer
	page.Write([]byte{0x00, 0x00, 0x01, 0x00})
	if err := binary.Write(&page, binary.LittleEndian, int32(len(cookies))); err != nil {
		t.Fatal(err)
	}

	// cookie offsets table + trailing zero word precede the records
	headerSize := 4 + 4 + 4*len(cookies) + 4
	records := make([][]byte, len(cookies))
	offsets := make([]int32, len(cookies))
	next := headerSize
	for i, c := range cookies {
		records[i] = buildBinaryCookieRecord(t, c)
		offsets[i] = int32(next)
		next += len(records[i])
	}
	if err := binary.Write(&page, binary.LittleEndian, offsets); err != nil {
		t.Fatal(err)
	}
	page.Write([]byte{0, 0, 0, 0})
	for _, r := range records {
		page.Write(r)
	}

	var file bytes.Buffer
	file.WriteString("cook")
	if err := binary.Write(&file, binary.BigEndian, int32(1)); err != nil {
		t.Fatal(err)
	}
	if err := binary.Write(&file, binary.BigEndian, int32(page.Len())); err != nil {
		t.Fatal(err)
	}
	file.Write(page.Bytes())
	file.Write(make([]byte, 8)) // checksum, unread
	return file.Bytes()
}

func buildBinaryCookieRecord(t *testing.T, c safariFixtureCookie) []byte {
	t.Helper()
	const headerLen = 56 // fixed-size record header before the strings

	domainOff := int32(headerLen)
	nameOff := domainOff + int32(len(c.domain)) + 1
	pathOff := nameOff + int32(len(c.name)) + 1
	valueOff := pathOff + int32(len(c.path)) + 1
	size := valueOff + int32(len(c.value)) + 1

	var expires float64
	if !c.expires.IsZero() {
		expires = float64(c.expires.Unix() - 978307200)
	}

	h := binaryCookieRecord{
		Size:           size,
		Flags:          c.flags,
		DomainOffset:   domainOff,
		NameOffset:     nameOff,
		PathOffset:     pathOff,
		ValueOffset:    valueOff,
		ExpirationDate: expires,
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, h); err != nil {
		t.Fatal(err)
	}
	for _, s := range []string{c.domain, c.name, c.path, c.value} {
		buf.WriteString(s)
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

func TestReadBinaryCookiesFile(t *testing.T) {
	expires := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Second)
	data := buildBinaryCookies(t, []safariFixtureCookie{
		{domain: ".example.com", name: "sid", path: "/", value: "safari-value", flags: 5, expires: expires},
		{domain: "other.test", name: "plain", path: "/a", value: "v", flags: 0},
	})

	path := filepath.Join(t.TempDir(), "Cookies.binarycookies")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cookies, err := readBinaryCookiesFile(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cookies) != 2 {
		t.Fatalf("want 2 cookies got %d", len(cookies))
	}

	c := cookies[0]
	if c.Domain != "example.com" || c.Name != "sid" || c.Value != "safari-value" {
		t.Fatalf("unexpected cookie %+v", c)
	}
	if !c.Secure || !c.HTTPOnly {
		t.Fatalf("flags 5 should mean Secure+HTTPOnly, got %+v", c)
	}
	if c.Expires == nil || !c.Expires.Equal(expires) {
		t.Fatalf("want expiry %v got %v", expires, c.Expires)
	}

	if cookies[1].Secure || cookies[1].HTTPOnly {
		t.Fatalf("flags 0 should mean neither, got %+v", cookies[1])
	}
}

func TestReadBinaryCookiesFile_BadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Cookies.binarycookies")
	if err := os.WriteFile(path, []byte("nope....."), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := readBinaryCookiesFile(context.Background(), path); err == nil {
		t.Fatal("expected error")
	}
}

func TestReadBinaryCookiesFile_ImplausibleCounts(t *testing.T) {
	dir := t.TempDir()

	// Page count not backed by the file size must be rejected, not allocated.
	for name, count := range map[string]int32{"negative": -1, "huge": 1 << 30} {
		var file bytes.Buffer
		file.WriteString("cook")
		if err := binary.Write(&file, binary.BigEndian, count); err != nil {
			t.Fatal(err)
		}
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, file.Bytes(), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := readBinaryCookiesFile(context.Background(), path); err == nil {
			t.Fatalf("%s page count: expected error", name)
		}
	}

	// Same for the per-page cookie count.
	var page bytes.Buffer
	page.Write([]byte{0x00, 0x00, 0x01, 0x00})
	if err := binary.Write(&page, binary.LittleEndian, int32(-1)); err != nil {
		t.Fatal(err)
	}
	var file bytes.Buffer
	file.WriteString("cook")
	if err := binary.Write(&file, binary.BigEndian, int32(1)); err != nil {
		t.Fatal(err)
	}
	if err := binary.Write(&file, binary.BigEndian, int32(page.Len())); err != nil {
		t.Fatal(err)
	}
	file.Write(page.Bytes())
	path := filepath.Join(dir, "badpage")
	if err := os.WriteFile(path, file.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := readBinaryCookiesFile(context.Background(), path); err == nil {
		t.Fatal("negative cookie count: expected error")
	}
}

func TestLoad_Safari_CorruptStoreIsDiagnosticNotPanic(t *testing.T) {
	var file bytes.Buffer
	file.WriteString("cook")
	if err := binary.Write(&file, binary.BigEndian, int32(-1)); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "Cookies.binarycookies")
	if err := os.WriteFile(path, file.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	jar, diags, err := LoadBrowser(context.Background(), BrowserSafari, Options{
		AllowAllHosts: true,
		Profiles:      map[Browser]string{BrowserSafari: path},
	})
	if !errors.Is(err, ErrNoCookies) {
		t.Fatalf("want ErrNoCookies got %v", err)
	}
	if jar.Len() != 0 {
		t.Fatalf("want empty jar got %d", jar.Len())
	}
	if diagKinds(diags)[DiagCorruptStore] == 0 {
		t.Fatalf("want CorruptStore diagnostic, got %v", diags)
	}
}

func TestLoad_Safari_ExplicitStoreOverride(t *testing.T) {
	data := buildBinaryCookies(t, []safariFixtureCookie{
		{domain: "example.com", name: "sid", path: "/", value: "v", expires: time.Now().Add(time.Hour)},
	})
	path := filepath.Join(t.TempDir(), "Cookies.binarycookies")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	jar, diags, err := LoadBrowser(context.Background(), BrowserSafari, Options{
		AllowAllHosts: true,
		Profiles:      map[Browser]string{BrowserSafari: path},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v (diags=%v)", err, diags)
	}
	if jar.Len() != 1 {
		t.Fatalf("want 1 cookie got %d", jar.Len())
	}
	if jar.All()[0].Source.Browser != BrowserSafari {
		t.Fatalf("unexpected source %+v", jar.All()[0].Source)
	}
}
