package browserjar

import (
	"context"
	"strings"
	"time"
)

// browserLoader reads all cookies one browser family can provide.
// Every loader is independently fallible: recoverable conditions come back
// as Diagnostics, and only context cancellation propagates as an error.
type browserLoader func(ctx context.Context, b Browser, origins []requestOrigin, opts Options) ([]Cookie, []Diagnostic, error)

func loaderFor(b Browser) browserLoader {
	switch b {
	case BrowserChrome, BrowserChromium, BrowserEdge, BrowserBrave, BrowserVivaldi, BrowserOpera:
		return loadChromiumCookies
	case BrowserFirefox:
		return loadFirefoxCookies
	case BrowserSafari:
		return loadSafariCookies
	default:
		return nil
	}
}

// Load reads cookies from all requested browsers (DefaultBrowsers when
// unset) and merges them into a Jar. Sources that are missing, locked or
// undecryptable are skipped and reported in the diagnostics list. When the
// entire scope yields nothing, the jar comes back empty alongside
// ErrNoCookies so callers can tell "not logged in" from a broken setup.
func Load(ctx context.Context, opts Options) (*Jar, []Diagnostic, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}

	origins, err := normalizeOrigins(opts.URL, opts.Origins, opts.AllowAllHosts)
	if err != nil {
		return nil, nil, err
	}
	allowlist := nameAllowlist(opts.Names)

	browsers := opts.Browsers
	if len(browsers) == 0 {
		browsers = DefaultBrowsers()
	}

	log := opts.logger()
	jar := NewJar()
	var diags []Diagnostic
	seen := make(map[Browser]struct{}, len(browsers))
	for _, b := range browsers {
		if _, dup := seen[b]; dup {
			continue
		}
		seen[b] = struct{}{}

		if err := ctx.Err(); err != nil {
			return nil, diags, err
		}

		loader := loaderFor(b)
		if loader == nil {
			diags = append(diags, diag(DiagProfileNotFound, b, "", "", "unsupported browser"))
			continue
		}

		cookies, browserDiags, err := loader(ctx, b, origins, opts)
		diags = append(diags, browserDiags...)
		if err != nil {
			return nil, diags, err
		}

		cookies = filterCookies(origins, allowlist, opts.IncludeExpired, cookies)
		log.Debug().
			Str("browser", string(b)).
			Int("cookies", len(cookies)).
			Int("diagnostics", len(browserDiags)).
			Msg("merged browser")
		jar.mergeBatch(cookies)
	}

	if jar.Len() == 0 {
		return jar, diags, ErrNoCookies
	}
	return jar, diags, nil
}

// LoadBrowser reads cookies from a single browser family.
func LoadBrowser(ctx context.Context, b Browser, opts Options) (*Jar, []Diagnostic, error) {
	opts.Browsers = []Browser{b}
	return Load(ctx, opts)
}

func nameAllowlist(names []string) map[string]struct{} {
	if len(names) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		out[name] = struct{}{}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
