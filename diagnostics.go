package browserjar

import (
	"errors"
	"fmt"
)

// ErrNoCookies is returned when the whole requested scope produced zero
// cookies. It lets callers tell "not logged in anywhere" apart from a
// silently empty jar; the diagnostics list says why each source was skipped.
var ErrNoCookies = errors.New("browserjar: no cookies found in any requested browser")

// ErrNoOrigin is returned when neither URL nor Origins is set and
// AllowAllHosts is false.
var ErrNoOrigin = errors.New("browserjar: URL or Origins required (or AllowAllHosts)")

// ErrKeyUnavailable wraps key-material retrieval failures. A profile whose
// key cannot be obtained is skipped entirely, since none of its encrypted
// values can be recovered.
var ErrKeyUnavailable = errors.New("browserjar: decryption key unavailable")

// DiagnosticKind classifies a recovered per-source failure.
type DiagnosticKind string

const (
	// DiagProfileNotFound means the browser or profile is not installed.
	DiagProfileNotFound DiagnosticKind = "profile_not_found"
	// DiagAccessDenied means the store exists but could not be copied.
	DiagAccessDenied DiagnosticKind = "access_denied"
	// DiagCorruptStore means the copied store is not a readable database.
	DiagCorruptStore DiagnosticKind = "corrupt_store"
	// DiagKeyUnavailable means OS key material could not be obtained; the
	// whole profile is skipped.
	DiagKeyUnavailable DiagnosticKind = "key_unavailable"
	// DiagDecryptionFailed means one record's ciphertext did not decrypt;
	// the rest of the batch proceeds.
	DiagDecryptionFailed DiagnosticKind = "decryption_failed"
)

// Diagnostic is a non-fatal skip or failure event collected during a load.
type Diagnostic struct {
	Kind    DiagnosticKind
	Browser Browser
	Profile string
	Store   string
	Detail  string
}

func (d Diagnostic) String() string {
	s := fmt.Sprintf("%s: %s", d.Browser, d.Kind)
	if d.Profile != "" {
		s += " profile=" + d.Profile
	}
	if d.Detail != "" {
		s += ": " + d.Detail
	}
	return s
}

func diag(kind DiagnosticKind, b Browser, profile, store, detail string) Diagnostic {
	return Diagnostic{Kind: kind, Browser: b, Profile: profile, Store: store, Detail: detail}
}
