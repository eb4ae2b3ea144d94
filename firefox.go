package browserjar

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-ini/ini"
)

// Firefox stores cookie values in cleartext; the decryption stage is a
// passthrough for this family.

type firefoxProfile struct {
	dir     string
	dbPath  string
	profile string
}

func loadFirefoxCookies(ctx context.Context, _ Browser, origins []requestOrigin, opts Options) ([]Cookie, []Diagnostic, error) {
	profiles, diags := firefoxLocateProfiles(opts.profileOverride(BrowserFirefox))
	if len(profiles) == 0 {
		diags = append(diags, diag(DiagProfileNotFound, BrowserFirefox, "", "", "Firefox cookie store not found"))
		return nil, diags, nil
	}

	log := opts.logger()
	hosts := originsToHosts(origins)

	var out []Cookie
	for _, prof := range profiles {
		cookies, profDiags := readFirefoxProfile(ctx, prof, hosts)
		diags = append(diags, profDiags...)

		if opts.IncludeSession {
			session, sessDiags := readFirefoxSessionCookies(prof)
			diags = append(diags, sessDiags...)
			cookies = append(cookies, session...)
		}

		log.Debug().
			Str("browser", string(BrowserFirefox)).
			Str("profile", prof.profile).
			Int("cookies", len(cookies)).
			Msg("read firefox profile")
		out = append(out, cookies...)
	}
	return out, diags, nil
}

func readFirefoxProfile(ctx context.Context, prof firefoxProfile, hosts []string) ([]Cookie, []Diagnostic) {
	snap, cleanup, kind, err := snapshotStore(prof.dbPath)
	if err != nil {
		return nil, []Diagnostic{diag(kind, BrowserFirefox, prof.profile, prof.dbPath, err.Error())}
	}
	defer cleanup()

	db, err := openSnapshotDB(ctx, snap)
	if err != nil {
		return nil, []Diagnostic{diag(DiagCorruptStore, BrowserFirefox, prof.profile, prof.dbPath, err.Error())}
	}
	defer func() { _ = db.Close() }()

	rows, err := firefoxQueryRows(ctx, db, hosts)
	if err != nil {
		return nil, []Diagnostic{diag(DiagCorruptStore, BrowserFirefox, prof.profile, prof.dbPath, err.Error())}
	}

	var out []Cookie
	var diags []Diagnostic
	for _, r := range rows {
		c, d, ok := firefoxRowToCookie(prof, r)
		if d != nil {
			diags = append(diags, *d)
		}
		if ok {
			out = append(out, c)
		}
	}
	return out, diags
}

// firefoxLocateProfiles resolves profiles from profiles.ini across the
// per-OS roots. An override may be a profile name, a profile directory, or
// an explicit cookies.sqlite path.
func firefoxLocateProfiles(override string) ([]firefoxProfile, []Diagnostic) {
	override = strings.TrimSpace(override)
	if override != "" {
		if fi, err := os.Stat(override); err == nil {
			if fi.IsDir() {
				dbPath := filepath.Join(override, "cookies.sqlite")
				if fileExists(dbPath) {
					return []firefoxProfile{{dir: override, dbPath: dbPath, profile: filepath.Base(override)}}, nil
				}
				return nil, []Diagnostic{diag(DiagProfileNotFound, BrowserFirefox, "", override, "no cookies.sqlite in override directory")}
			}
			return []firefoxProfile{{dir: filepath.Dir(override), dbPath: override, profile: filepath.Base(filepath.Dir(override))}}, nil
		}
	}

	var out []firefoxProfile
	for _, root := range firefoxRoots() {
		cfg, err := ini.Load(filepath.Join(root, "profiles.ini"))
		if err != nil {
			continue
		}

		for _, secName := range cfg.SectionStrings() {
			if !strings.HasPrefix(secName, "Profile") {
				continue
			}
			sec := cfg.Section(secName)
			pathStr := filepath.FromSlash(sec.Key("Path").String())
			if pathStr == "" {
				continue
			}
			if sec.Key("IsRelative").String() == "1" {
				pathStr = filepath.Join(root, pathStr)
			}
			dbPath := filepath.Join(pathStr, "cookies.sqlite")
			if !fileExists(dbPath) {
				continue
			}

			prof := sec.Key("Name").String()
			if prof == "" {
				prof = filepath.Base(pathStr)
			}
			if override != "" && prof != override && filepath.Base(pathStr) != override {
				continue
			}
			out = append(out, firefoxProfile{dir: pathStr, dbPath: dbPath, profile: prof})
		}
	}

	if override != "" && len(out) == 0 {
		return nil, []Diagnostic{diag(DiagProfileNotFound, BrowserFirefox, override, "", "profile override not found")}
	}
	return out, nil
}

type firefoxRow struct {
	host     string
	name     string
	value    string
	path     string
	expiry   int64
	isSecure bool
	httpOnly bool
	sameSite int64
}

// firefoxQueryRows reads moz_cookies, falling back to the minimal column
// set older schema versions carry.
func firefoxQueryRows(ctx context.Context, db *sql.DB, hosts []string) ([]firefoxRow, error) {
	where, args := hostWhereClause("host", hosts)

	full := `SELECT host, name, value, path, expiry, isSecure, isHttpOnly, sameSite FROM moz_cookies WHERE (` + where + `) ORDER BY expiry DESC`
	rows, err := db.QueryContext(ctx, full, args...)
	if err == nil {
		return scanFirefoxRows(rows, false)
	}

	minimal := `SELECT host, name, value, path, expiry FROM moz_cookies WHERE (` + where + `)`
	rows, err = db.QueryContext(ctx, minimal, args...)
	if err != nil {
		return nil, err
	}
	return scanFirefoxRows(rows, true)
}

func scanFirefoxRows(rows *sql.Rows, minimal bool) ([]firefoxRow, error) {
	defer func() { _ = rows.Close() }()

	var out []firefoxRow
	for rows.Next() {
		var r firefoxRow
		var expiry sql.NullInt64

		if minimal {
			if err := rows.Scan(&r.host, &r.name, &r.value, &r.path, &expiry); err != nil {
				return nil, err
			}
		} else {
			var secure, httpOnly, sameSite sql.NullInt64
			if err := rows.Scan(&r.host, &r.name, &r.value, &r.path, &expiry, &secure, &httpOnly, &sameSite); err != nil {
				return nil, err
			}
			r.isSecure = secure.Valid && secure.Int64 == 1
			r.httpOnly = httpOnly.Valid && httpOnly.Int64 == 1
			if sameSite.Valid {
				r.sameSite = sameSite.Int64
			}
		}

		if expiry.Valid {
			r.expiry = expiry.Int64
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func firefoxRowToCookie(prof firefoxProfile, r firefoxRow) (Cookie, *Diagnostic, bool) {
	if r.host == "" {
		d := diag(DiagCorruptStore, BrowserFirefox, prof.profile, prof.dbPath,
			fmt.Sprintf("cookie %q: row has empty host, skipped", r.name))
		return Cookie{}, &d, false
	}
	if r.path == "" {
		r.path = "/"
	}

	// Firefox expiry is plain Unix seconds.
	var expires *time.Time
	if r.expiry > 0 {
		t := time.Unix(r.expiry, 0).UTC()
		expires = &t
	}

	return Cookie{
		Name:     r.name,
		Value:    r.value,
		Domain:   strings.TrimPrefix(r.host, "."),
		HostOnly: !strings.HasPrefix(r.host, "."),
		Path:     r.path,
		Secure:   r.isSecure,
		HTTPOnly: r.httpOnly,
		SameSite: sameSiteFromInt(r.sameSite),
		Expires:  expires,
		Source: Source{
			Browser:   BrowserFirefox,
			Profile:   prof.profile,
			StorePath: prof.dbPath,
		},
	}, nil, true
}
