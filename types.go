package browserjar

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Browser identifies a cookie store family.
type Browser string

const (
	// BrowserChrome is Google Chrome.
	BrowserChrome Browser = "chrome"
	// BrowserChromium is Chromium.
	BrowserChromium Browser = "chromium"
	// BrowserEdge is Microsoft Edge.
	BrowserEdge Browser = "edge"
	// BrowserBrave is Brave Browser.
	BrowserBrave Browser = "brave"
	// BrowserVivaldi is Vivaldi.
	BrowserVivaldi Browser = "vivaldi"
	// BrowserOpera is Opera.
	BrowserOpera Browser = "opera"

	// BrowserFirefox is Mozilla Firefox.
	BrowserFirefox Browser = "firefox"

	// BrowserSafari is Apple Safari (macOS only).
	BrowserSafari Browser = "safari"
)

// SameSite is the cookie SameSite attribute.
type SameSite string

const (
	// SameSiteNone is SameSite=None.
	SameSiteNone SameSite = "None"
	// SameSiteLax is SameSite=Lax.
	SameSiteLax SameSite = "Lax"
	// SameSiteStrict is SameSite=Strict.
	SameSiteStrict SameSite = "Strict"
)

// Source records which profile a cookie was read from.
type Source struct {
	Browser   Browser
	Profile   string
	StorePath string
}

// Cookie is one decrypted browser cookie. Value is always plaintext;
// ciphertext never leaves the decryption layer.
type Cookie struct {
	Name   string
	Value  string
	Domain string
	Path   string
	// HostOnly marks a cookie whose stored host carries no leading dot:
	// it applies to that exact host only, never to subdomains.
	HostOnly bool
	Secure   bool
	HTTPOnly bool
	SameSite SameSite

	Expires *time.Time
	Source  Source
}

// KeyMaterial is an OS-derived secret used to decrypt cookie values.
// It is held only while one profile's cookies are being decrypted and is
// never logged or written to disk.
type KeyMaterial struct {
	// Secret is a safe-storage passphrase fed through the KDF
	// (Linux keyring / macOS keychain schemes).
	Secret string
	// Iterations is the PBKDF2 iteration count for Secret.
	// Zero means the platform default.
	Iterations int
	// Key is a raw symmetric key used directly (Windows master-key scheme).
	Key []byte
}

// KeyProvider fetches decryption key material for a browser family.
// The zero-dependency OS providers are used by default; tests substitute
// fakes via Options.KeyProviders.
type KeyProvider interface {
	Fetch(ctx context.Context, b Browser) (KeyMaterial, error)
}

// Options configures cookie loading and filtering.
type Options struct {
	// URL is used to filter cookies by (scheme, host, path).
	// If empty, Origins must be set, or AllowAllHosts must be true.
	URL string

	// Origins are additional origins to consider (e.g. OAuth redirects).
	Origins []string

	// Names is an allowlist of cookie names (empty means "all names").
	Names []string

	// Browsers is a source priority list. If empty, DefaultBrowsers() is
	// used. Earlier browsers win when the same cookie exists in several.
	Browsers []Browser

	// Profiles overrides per-browser store selection. A value may be a
	// profile name (e.g. "Default"), a profile directory, or an explicit
	// path to the cookie store file. Overrides beat auto-discovery.
	Profiles map[Browser]string

	// KeyProviders overrides OS key-material retrieval per browser.
	KeyProviders map[Browser]KeyProvider

	// IncludeExpired keeps cookies whose expiry is in the past.
	IncludeExpired bool

	// AllowAllHosts disables origin filtering entirely.
	AllowAllHosts bool

	// IncludeSession also reads Firefox session-store recovery files,
	// which hold session cookies not yet flushed to the database.
	IncludeSession bool

	// Timeout bounds OS helper calls (keychain/keyring). Defaults to 3s.
	Timeout time.Duration

	// Logger receives debug events per pipeline stage. Cookie values and
	// key material are never logged. Nil disables logging.
	Logger *zerolog.Logger
}

func (o Options) logger() zerolog.Logger {
	if o.Logger != nil {
		return *o.Logger
	}
	return zerolog.Nop()
}

func (o Options) profileOverride(b Browser) string {
	if o.Profiles == nil {
		return ""
	}
	return o.Profiles[b]
}

func (o Options) keyProvider(b Browser) KeyProvider {
	if o.KeyProviders == nil {
		return nil
	}
	return o.KeyProviders[b]
}

// DefaultBrowsers returns the default source priority order.
func DefaultBrowsers() []Browser {
	return []Browser{
		BrowserChrome,
		BrowserEdge,
		BrowserBrave,
		BrowserChromium,
		BrowserVivaldi,
		BrowserOpera,
		BrowserFirefox,
		BrowserSafari,
	}
}
