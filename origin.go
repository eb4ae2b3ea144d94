package browserjar

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

type requestOrigin struct {
	scheme string
	host   string
	path   string
}

func normalizeOrigins(urlStr string, originStrs []string, allowAllHosts bool) ([]requestOrigin, error) {
	origins := make([]requestOrigin, 0, 1+len(originStrs))
	add := func(raw string) error {
		u, err := url.Parse(raw)
		if err != nil {
			return err
		}
		if u.Scheme == "" || u.Hostname() == "" {
			return errors.New("browserjar: origin must include scheme and host")
		}
		origins = append(origins, requestOrigin{
			scheme: strings.ToLower(u.Scheme),
			host:   normalizeHost(u.Hostname()),
			path:   normalizePath(u.EscapedPath()),
		})
		return nil
	}

	if urlStr != "" {
		if err := add(urlStr); err != nil {
			return nil, err
		}
	}
	for _, o := range originStrs {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if err := add(o); err != nil {
			return nil, err
		}
	}
	if len(origins) == 0 && !allowAllHosts {
		return nil, ErrNoOrigin
	}
	return origins, nil
}

func originsToHosts(origins []requestOrigin) []string {
	if len(origins) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(origins))
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o.host == "" {
			continue
		}
		if _, ok := seen[o.host]; ok {
			continue
		}
		seen[o.host] = struct{}{}
		out = append(out, o.host)
	}
	return out
}

func filterCookies(origins []requestOrigin, allowlistNames map[string]struct{}, includeExpired bool, cookies []Cookie) []Cookie {
	if len(cookies) == 0 {
		return nil
	}

	now := time.Now()
	out := make([]Cookie, 0, len(cookies))
	for _, c := range cookies {
		if allowlistNames != nil {
			if _, ok := allowlistNames[c.Name]; !ok {
				continue
			}
		}
		if !includeExpired && c.Expires != nil && c.Expires.Before(now) {
			continue
		}

		if len(origins) > 0 {
			ok := false
			for _, o := range origins {
				if cookieMatchesOrigin(c, o) {
					ok = true
					break
				}
			}
			if !ok {
				continue
			}
		}

		if c.Path == "" {
			c.Path = "/"
		}
		if c.Domain != "" {
			c.Domain = normalizeHost(c.Domain)
		}
		out = append(out, c)
	}
	return out
}

func cookieMatchesOrigin(c Cookie, o requestOrigin) bool {
	if c.Domain == "" || o.host == "" {
		return false
	}
	if c.HostOnly {
		if o.host != normalizeHost(c.Domain) {
			return false
		}
	} else if !hostMatchesCookieDomain(o.host, c.Domain) {
		return false
	}
	if c.Secure && o.scheme != "https" && o.scheme != "wss" {
		return false
	}
	return pathMatchesCookiePath(o.path, c.Path)
}

func hostMatchesCookieDomain(host, cookieDomain string) bool {
	host = normalizeHost(host)
	cookieDomain = normalizeHost(cookieDomain)
	if host == "" || cookieDomain == "" {
		return false
	}
	if host == cookieDomain {
		return true
	}
	return strings.HasSuffix(host, "."+cookieDomain)
}

func pathMatchesCookiePath(requestPath, cookiePath string) bool {
	requestPath = normalizePath(requestPath)
	cookiePath = normalizePath(cookiePath)
	if cookiePath == "/" {
		return true
	}
	if requestPath == cookiePath {
		return true
	}
	if !strings.HasPrefix(requestPath, cookiePath) {
		return false
	}
	if cookiePath[len(cookiePath)-1] == '/' {
		return true
	}
	return len(requestPath) > len(cookiePath) && requestPath[len(cookiePath)] == '/'
}

// expandHostCandidates returns host plus its registrable parent domains, so
// a request host like app.example.com also matches ".example.com" cookies.
func expandHostCandidates(host string) []string {
	parts := strings.Split(host, ".")
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		cleaned = append(cleaned, p)
	}
	if len(cleaned) <= 1 {
		return []string{host}
	}

	seen := make(map[string]struct{}, len(cleaned))
	var out []string
	add := func(h string) {
		if h == "" {
			return
		}
		if _, ok := seen[h]; ok {
			return
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}

	add(host)
	for i := 1; i <= len(cleaned)-2; i++ {
		add(strings.Join(cleaned[i:], "."))
	}
	return out
}

func normalizeHost(host string) string {
	host = strings.TrimSpace(host)
	host = strings.TrimPrefix(host, ".")
	return strings.ToLower(host)
}

func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" || path[0] != '/' {
		return "/"
	}
	return path
}
