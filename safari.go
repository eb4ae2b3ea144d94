package browserjar

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Safari persists cookies in a proprietary binary file rather than SQLite:
// a big-endian page table followed by little-endian pages of NUL-terminated
// records. Values are not encrypted.

func loadSafariCookies(ctx context.Context, _ Browser, _ []requestOrigin, opts Options) ([]Cookie, []Diagnostic, error) {
	files, diags := safariCookieFiles(opts.profileOverride(BrowserSafari))
	if len(files) == 0 {
		diags = append(diags, diag(DiagProfileNotFound, BrowserSafari, "", "", "Safari cookie store not found"))
		return nil, diags, nil
	}

	log := opts.logger()
	var out []Cookie
	for _, p := range files {
		cookies, err := readBinaryCookiesFile(ctx, p)
		if err != nil {
			diags = append(diags, diag(DiagCorruptStore, BrowserSafari, "Default", p, err.Error()))
			continue
		}
		log.Debug().
			Str("browser", string(BrowserSafari)).
			Str("store", p).
			Int("cookies", len(cookies)).
			Msg("read safari store")
		out = append(out, cookies...)
	}
	return out, diags, nil
}

type binaryCookiesFileHeader struct {
	Magic    [4]byte
	NumPages int32
}

type binaryCookiesPageHeader struct {
	Header     [4]byte
	NumCookies int32
}

type binaryCookieRecord struct {
	Size           int32
	Unknown1       int32
	Flags          int32
	Unknown2       int32
	DomainOffset   int32
	NameOffset     int32
	PathOffset     int32
	ValueOffset    int32
	End            [8]byte
	ExpirationDate float64
	CreationDate   float64
}

func readBinaryCookiesFile(ctx context.Context, filename string) ([]Cookie, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var header binaryCookiesFileHeader
	if err := binary.Read(f, binary.BigEndian, &header); err != nil {
		return nil, err
	}
	if string(header.Magic[:]) != "cook" {
		return nil, fmt.Errorf("unexpected magic %q", string(header.Magic[:]))
	}

	// The page count comes from the file; bound it by what the file can
	// actually hold so a corrupt header cannot drive an absurd allocation.
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if header.NumPages < 0 || int64(header.NumPages) > (fi.Size()-8)/4 {
		return nil, fmt.Errorf("implausible page count %d for %d-byte file", header.NumPages, fi.Size())
	}

	pageSizes := make([]int32, header.NumPages)
	if err := binary.Read(f, binary.BigEndian, &pageSizes); err != nil {
		return nil, err
	}

	var out []Cookie
	for i, size := range pageSizes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cookies, err := readBinaryCookiesPage(f, i, size, filename)
		if err != nil {
			return nil, err
		}
		out = append(out, cookies...)
	}

	// trailing checksum, ignored
	var checksum [8]byte
	_ = binary.Read(f, binary.BigEndian, &checksum)

	return out, nil
}

func readBinaryCookiesPage(r io.Reader, page int, pageSize int32, storePath string) ([]Cookie, error) {
	if pageSize < 0 {
		return nil, fmt.Errorf("page %d: negative size", page)
	}
	b := make([]byte, pageSize)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("page %d: %w", page, err)
	}
	br := bytes.NewReader(b)

	var header binaryCookiesPageHeader
	if err := binary.Read(br, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("page %d: %w", page, err)
	}

	want := [4]byte{0x00, 0x00, 0x01, 0x00}
	if header.Header != want {
		return nil, fmt.Errorf("page %d: unexpected header %v", page, header.Header)
	}

	if header.NumCookies < 0 || int64(header.NumCookies) > (int64(pageSize)-8)/4 {
		return nil, fmt.Errorf("page %d: implausible cookie count %d", page, header.NumCookies)
	}

	offsets := make([]int32, header.NumCookies)
	if err := binary.Read(br, binary.LittleEndian, &offsets); err != nil {
		return nil, fmt.Errorf("page %d: %w", page, err)
	}

	out := make([]Cookie, 0, len(offsets))
	for i, off := range offsets {
		if _, err := br.Seek(int64(off), io.SeekStart); err != nil {
			return nil, fmt.Errorf("page %d cookie %d: %w", page, i, err)
		}
		c, err := readBinaryCookieRecord(br, storePath)
		if err != nil {
			return nil, fmt.Errorf("page %d cookie %d: %w", page, i, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func readBinaryCookieRecord(r io.ReadSeeker, storePath string) (Cookie, error) {
	start, _ := r.Seek(0, io.SeekCurrent)

	var h binaryCookieRecord
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return Cookie{}, err
	}

	domain, err := readBinaryCookieString(r, "domain", start, h.DomainOffset)
	if err != nil {
		return Cookie{}, err
	}
	name, err := readBinaryCookieString(r, "name", start, h.NameOffset)
	if err != nil {
		return Cookie{}, err
	}
	path, err := readBinaryCookieString(r, "path", start, h.PathOffset)
	if err != nil {
		return Cookie{}, err
	}
	value, err := readBinaryCookieString(r, "value", start, h.ValueOffset)
	if err != nil {
		return Cookie{}, err
	}

	var expires *time.Time
	if h.ExpirationDate != 0 {
		t := safariTime(h.ExpirationDate)
		expires = &t
	}

	c := Cookie{
		Name:     name,
		Value:    value,
		Domain:   normalizeHost(domain),
		HostOnly: !strings.HasPrefix(domain, "."),
		Path:     path,
		Secure:   (h.Flags & 1) != 0,
		HTTPOnly: (h.Flags & 4) != 0,
		Expires:  expires,
		Source: Source{
			Browser:   BrowserSafari,
			Profile:   "Default",
			StorePath: storePath,
		},
	}
	if c.Path == "" {
		c.Path = "/"
	}
	return c, nil
}

func readBinaryCookieString(r io.ReadSeeker, field string, start int64, offset int32) (string, error) {
	if offset <= 0 {
		return "", errors.New("invalid offset")
	}
	if _, err := r.Seek(start+int64(offset), io.SeekStart); err != nil {
		return "", fmt.Errorf("seek %q: %w", field, err)
	}
	br := bufio.NewReader(r)
	s, err := br.ReadString(0)
	if err != nil {
		return "", fmt.Errorf("read %q: %w", field, err)
	}
	return strings.TrimSuffix(s, "\x00"), nil
}

// Safari timestamps are seconds since 2001-01-01 00:00:00 UTC.
func safariTime(secsSince2001 float64) time.Time {
	const macEpoch = int64(978307200)
	sec := int64(secsSince2001)
	nsec := int64((secsSince2001 - float64(sec)) * 1e9)
	return time.Unix(macEpoch+sec, nsec).UTC()
}
