package browserjar

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pierrec/lz4/v4"
)

// Firefox keeps live session cookies in sessionstore recovery files rather
// than cookies.sqlite until the session ends. Newer builds compress them
// with mozLz4 (an 8-byte magic plus a raw LZ4 block).

var mozLz4Magic = []byte("mozLz40\x00")

func firefoxSessionFiles(profileDir string) []string {
	candidates := []string{
		filepath.Join(profileDir, "sessionstore-backups", "recovery.jsonlz4"),
		filepath.Join(profileDir, "sessionstore-backups", "recovery.json"),
		filepath.Join(profileDir, "sessionstore-backups", "recovery.js"),
		filepath.Join(profileDir, "sessionstore.jsonlz4"),
		filepath.Join(profileDir, "sessionstore.json"),
		filepath.Join(profileDir, "sessionstore.js"),
	}
	var out []string
	for _, p := range candidates {
		if fileExists(p) {
			out = append(out, p)
		}
	}
	return out
}

func readFirefoxSessionCookies(prof firefoxProfile) ([]Cookie, []Diagnostic) {
	var out []Cookie
	var diags []Diagnostic
	for _, p := range firefoxSessionFiles(prof.dir) {
		cookies, err := readSessionStoreFile(p, prof)
		if err != nil {
			diags = append(diags, diag(DiagCorruptStore, BrowserFirefox, prof.profile, p, err.Error()))
			continue
		}
		out = append(out, cookies...)
	}
	return out, diags
}

func readSessionStoreFile(path string, prof firefoxProfile) ([]Cookie, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if strings.HasSuffix(path, "lz4") {
		raw, err = mozLz4Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("decompress %s: %w", filepath.Base(path), err)
		}
	}

	var state struct {
		Windows []struct {
			Cookies []sessionCookie `json:"cookies"`
		} `json:"windows"`
		Cookies []sessionCookie `json:"cookies"`
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}

	var out []Cookie
	for _, w := range state.Windows {
		for _, sc := range w.Cookies {
			if c, ok := sc.toCookie(prof, path); ok {
				out = append(out, c)
			}
		}
	}
	for _, sc := range state.Cookies {
		if c, ok := sc.toCookie(prof, path); ok {
			out = append(out, c)
		}
	}
	return out, nil
}

type sessionCookie struct {
	Host     string `json:"host"`
	Path     string `json:"path"`
	Name     string `json:"name"`
	Value    string `json:"value"`
	Secure   bool   `json:"secure"`
	HTTPOnly bool   `json:"httponly"`
}

// Session cookies carry no expiry; Expires stays nil.
func (sc sessionCookie) toCookie(prof firefoxProfile, storePath string) (Cookie, bool) {
	if sc.Host == "" {
		return Cookie{}, false
	}
	path := sc.Path
	if path == "" {
		path = "/"
	}
	return Cookie{
		Name:     sc.Name,
		Value:    sc.Value,
		Domain:   strings.TrimPrefix(sc.Host, "."),
		HostOnly: !strings.HasPrefix(sc.Host, "."),
		Path:     path,
		Secure:   sc.Secure,
		HTTPOnly: sc.HTTPOnly,
		Source: Source{
			Browser:   BrowserFirefox,
			Profile:   prof.profile,
			StorePath: storePath,
		},
	}, true
}

// mozLz4Decode unpacks Mozilla's LZ4 framing: "mozLz40\0", a little-endian
// uint32 decompressed size, then one raw LZ4 block.
func mozLz4Decode(raw []byte) ([]byte, error) {
	if len(raw) < len(mozLz4Magic)+4 {
		return nil, fmt.Errorf("input too short (%d bytes)", len(raw))
	}
	if !bytes.HasPrefix(raw, mozLz4Magic) {
		return nil, fmt.Errorf("missing mozLz4 magic")
	}
	body := raw[len(mozLz4Magic):]
	size := binary.LittleEndian.Uint32(body[:4])
	const maxSessionStore = 512 << 20
	if size > maxSessionStore {
		return nil, fmt.Errorf("declared size %d too large", size)
	}

	dst := make([]byte, size)
	n, err := lz4.UncompressBlock(body[4:], dst)
	if err != nil {
		return nil, err
	}
	return dst[:n], nil
}
