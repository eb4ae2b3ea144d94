package browserjar

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// chromiumDecryptFunc converts one encrypted cookie value to plaintext.
type chromiumDecryptFunc func(encrypted []byte, metaVersion int64) ([]byte, error)

// chromiumDecryptor resolves the decryption provider for a vendor. An
// Options-supplied KeyProvider wins over the OS provider; a retrieval
// failure means no record in the profile can be decrypted, so the error
// wraps ErrKeyUnavailable and the caller skips the whole browser.
func chromiumDecryptor(ctx context.Context, vendor chromiumVendor, stores []chromiumStore, opts Options) (chromiumDecryptFunc, []Diagnostic, error) {
	if kp := opts.keyProvider(vendor.browser); kp != nil {
		km, err := kp.Fetch(ctx, vendor.browser)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
		}
		return decryptorFromKeyMaterial(km), nil, nil
	}
	return osChromiumDecryptor(ctx, vendor, stores, opts)
}

func decryptorFromKeyMaterial(km KeyMaterial) chromiumDecryptFunc {
	if len(km.Key) > 0 {
		key := bytes.Clone(km.Key)
		return func(encrypted []byte, metaVersion int64) ([]byte, error) {
			return chromiumDecryptGCM(encrypted, key, metaVersion)
		}
	}
	iterations := km.Iterations
	if iterations == 0 {
		iterations = chromiumKDFItersLinux
	}
	key := chromiumDeriveCBCKey(km.Secret, iterations)
	return func(encrypted []byte, metaVersion int64) ([]byte, error) {
		return chromiumDecryptCBC(encrypted, key, metaVersion, true)
	}
}

func loadChromiumCookies(ctx context.Context, b Browser, origins []requestOrigin, opts Options) ([]Cookie, []Diagnostic, error) {
	vendor := chromiumVendorForBrowser(b)
	log := opts.logger()

	stores, diags := chromiumLocateStores(b, opts.profileOverride(b))
	if len(stores) == 0 {
		diags = append(diags, diag(DiagProfileNotFound, b, "", "", vendor.label+" cookie store not found"))
		return nil, diags, nil
	}

	decrypt, keyDiags, err := chromiumDecryptor(ctx, vendor, stores, opts)
	diags = append(diags, keyDiags...)
	if err != nil {
		diags = append(diags, diag(DiagKeyUnavailable, b, "", "", err.Error()))
		return nil, diags, nil
	}

	hosts := originsToHosts(origins)
	var out []Cookie
	for _, st := range stores {
		cookies, storeDiags := readChromiumStore(ctx, vendor, st, hosts, decrypt)
		diags = append(diags, storeDiags...)
		log.Debug().
			Str("browser", string(b)).
			Str("profile", st.profile).
			Int("cookies", len(cookies)).
			Msg("read chromium store")
		out = append(out, cookies...)
	}
	return out, diags, nil
}

func readChromiumStore(ctx context.Context, vendor chromiumVendor, st chromiumStore, hosts []string, decrypt chromiumDecryptFunc) ([]Cookie, []Diagnostic) {
	b := vendor.browser

	snap, cleanup, kind, err := snapshotStore(st.cookiesDB)
	if err != nil {
		return nil, []Diagnostic{diag(kind, b, st.profile, st.cookiesDB, err.Error())}
	}
	defer cleanup()

	db, err := openSnapshotDB(ctx, snap)
	if err != nil {
		return nil, []Diagnostic{diag(DiagCorruptStore, b, st.profile, st.cookiesDB, err.Error())}
	}
	defer func() { _ = db.Close() }()

	metaVersion := chromiumMetaVersion(ctx, db)

	rows, err := chromiumQueryRows(ctx, db, metaVersion, hosts)
	if err != nil {
		return nil, []Diagnostic{diag(DiagCorruptStore, b, st.profile, st.cookiesDB, err.Error())}
	}

	var out []Cookie
	var diags []Diagnostic
	for _, row := range rows {
		c, d, ok := chromiumRowToCookie(vendor, st, row, metaVersion, decrypt)
		if d != nil {
			diags = append(diags, *d)
		}
		if ok {
			out = append(out, c)
		}
	}
	return out, diags
}

type chromiumRow struct {
	hostKey        string
	name           string
	path           string
	value          string
	encryptedValue []byte
	expiresUTC     int64
	isSecure       bool
	isHTTPOnly     bool
	sameSite       int64
}

func chromiumMetaVersion(ctx context.Context, db *sql.DB) int64 {
	var value string
	if err := db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'version'`).Scan(&value); err != nil {
		return 0
	}
	v, err := parseInt64(value)
	if err != nil {
		return 0
	}
	return v
}

// chromiumQueryRows reads the cookies table. Schema version < 10 named the
// flag columns without the is_ prefix; if the full column set still fails
// (schema drift), a minimal field set is read rather than losing the
// profile.
func chromiumQueryRows(ctx context.Context, db *sql.DB, metaVersion int64, hosts []string) ([]chromiumRow, error) {
	where, args := hostWhereClause("host_key", hosts)

	secureCol, httpOnlyCol := "is_secure", "is_httponly"
	if metaVersion > 0 && metaVersion < 10 {
		secureCol, httpOnlyCol = "secure", "httponly"
	}

	full := fmt.Sprintf(
		`SELECT host_key, name, path, value, encrypted_value, expires_utc, %s, %s, samesite FROM cookies WHERE (%s) ORDER BY expires_utc DESC`,
		secureCol, httpOnlyCol, where,
	)
	rows, err := db.QueryContext(ctx, full, args...)
	if err == nil {
		return scanChromiumRows(rows, false)
	}

	minimal := `SELECT host_key, name, path, value, encrypted_value, expires_utc FROM cookies WHERE (` + where + `)`
	rows, err = db.QueryContext(ctx, minimal, args...)
	if err != nil {
		return nil, err
	}
	return scanChromiumRows(rows, true)
}

func scanChromiumRows(rows *sql.Rows, minimal bool) ([]chromiumRow, error) {
	defer func() { _ = rows.Close() }()

	var out []chromiumRow
	for rows.Next() {
		var r chromiumRow
		var encrypted []byte
		var expires sql.NullInt64

		if minimal {
			if err := rows.Scan(&r.hostKey, &r.name, &r.path, &r.value, &encrypted, &expires); err != nil {
				return nil, err
			}
		} else {
			var secure, httpOnly, sameSite sql.NullInt64
			if err := rows.Scan(&r.hostKey, &r.name, &r.path, &r.value, &encrypted, &expires, &secure, &httpOnly, &sameSite); err != nil {
				return nil, err
			}
			r.isSecure = secure.Valid && secure.Int64 == 1
			r.isHTTPOnly = httpOnly.Valid && httpOnly.Int64 == 1
			if sameSite.Valid {
				r.sameSite = sameSite.Int64
			}
		}

		r.encryptedValue = encrypted
		if expires.Valid {
			r.expiresUTC = expires.Int64
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// hostWhereClause narrows the query to the request hosts and their parent
// domains. Hosts travel as bind args, never spliced into the SQL.
func hostWhereClause(column string, hosts []string) (string, []any) {
	if len(hosts) == 0 {
		return "1=1", nil
	}

	var clauses []string
	var args []any
	for _, host := range hosts {
		host = normalizeHost(host)
		if host == "" {
			continue
		}
		for _, candidate := range expandHostCandidates(host) {
			clauses = append(clauses, column+" = ?", column+" = ?", column+" LIKE ?")
			args = append(args, candidate, "."+candidate, "%."+candidate)
		}
	}
	if len(clauses) == 0 {
		return "1=0", nil
	}
	return strings.Join(clauses, " OR "), args
}

// chromiumRowToCookie maps one raw row to a Cookie. Every row either
// becomes a record or is reported via a diagnostic; rows are never dropped
// silently. Nameless cookies (Set-Cookie: =value) are kept as stored.
func chromiumRowToCookie(vendor chromiumVendor, st chromiumStore, row chromiumRow, metaVersion int64, decrypt chromiumDecryptFunc) (Cookie, *Diagnostic, bool) {
	if row.hostKey == "" {
		d := diag(DiagCorruptStore, vendor.browser, st.profile, st.cookiesDB,
			fmt.Sprintf("cookie %q: row has empty host, skipped", row.name))
		return Cookie{}, &d, false
	}

	value := row.value
	if value == "" && len(row.encryptedValue) > 0 {
		if decrypt == nil {
			d := diag(DiagDecryptionFailed, vendor.browser, st.profile, st.cookiesDB,
				fmt.Sprintf("cookie %q for %s: no decryptor available", row.name, row.hostKey))
			return Cookie{}, &d, false
		}
		plain, err := decrypt(row.encryptedValue, metaVersion)
		if err != nil {
			d := diag(DiagDecryptionFailed, vendor.browser, st.profile, st.cookiesDB,
				fmt.Sprintf("cookie %q for %s: %v", row.name, row.hostKey, err))
			return Cookie{}, &d, false
		}
		decoded, ok := decodeCookieValue(plain)
		if !ok {
			d := diag(DiagDecryptionFailed, vendor.browser, st.profile, st.cookiesDB,
				fmt.Sprintf("cookie %q for %s: plaintext is not valid UTF-8", row.name, row.hostKey))
			return Cookie{}, &d, false
		}
		value = decoded
	}

	var expires *time.Time
	if row.expiresUTC != 0 {
		if t, ok := chromiumExpiresToTime(row.expiresUTC); ok {
			expires = &t
		}
	}

	path := row.path
	if path == "" {
		path = "/"
	}

	return Cookie{
		Name:     row.name,
		Value:    value,
		Domain:   strings.TrimPrefix(row.hostKey, "."),
		HostOnly: !strings.HasPrefix(row.hostKey, "."),
		Path:     path,
		Secure:   row.isSecure,
		HTTPOnly: row.isHTTPOnly,
		SameSite: sameSiteFromInt(row.sameSite),
		Expires:  expires,
		Source: Source{
			Browser:   vendor.browser,
			Profile:   st.profile,
			StorePath: st.cookiesDB,
		},
	}, nil, true
}

func sameSiteFromInt(v int64) SameSite {
	switch v {
	case 2:
		return SameSiteStrict
	case 1:
		return SameSiteLax
	case 0:
		return SameSiteNone
	default:
		return ""
	}
}

// Chromium stores times as microseconds since 1601-01-01 UTC.
const chromiumEpochDiffMicros = int64(11644473600000000)

func chromiumExpiresToTime(expiresUTC int64) (time.Time, bool) {
	unixMicros := expiresUTC - chromiumEpochDiffMicros
	if unixMicros <= 0 {
		return time.Time{}, false
	}
	// Split seconds from the sub-second remainder: year-9999 expiries are
	// common in older stores and unixMicros*1000 would overflow int64.
	return time.Unix(unixMicros/1e6, (unixMicros%1e6)*1000).UTC(), true
}
