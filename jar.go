package browserjar

import (
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Jar is an insertion-ordered cookie collection deduplicated by
// (domain, path, name). It satisfies net/http's CookieJar interface so it
// can be attached to an http.Client directly.
//
// Merge rules: within one source batch a later record overrides an earlier
// one for the same key; across batches the first browser in the priority
// order wins. Jar is not safe for concurrent mutation.
type Jar struct {
	index   map[string]int
	cookies []Cookie
	now     func() time.Time
}

// NewJar returns an empty Jar.
func NewJar() *Jar {
	return &Jar{index: make(map[string]int), now: time.Now}
}

func jarKey(c Cookie) string {
	return normalizeHost(c.Domain) + "\x00" + c.Path + "\x00" + c.Name
}

// Len reports the number of distinct cookies.
func (j *Jar) Len() int { return len(j.cookies) }

// All returns the cookies in insertion order.
func (j *Jar) All() []Cookie {
	out := make([]Cookie, len(j.cookies))
	copy(out, j.cookies)
	return out
}

// mergeBatch folds one source's records into the jar. Keys already present
// from earlier batches are kept; duplicate keys inside the batch are
// overridden in place, preserving insertion order.
func (j *Jar) mergeBatch(cookies []Cookie) {
	batch := make(map[string]struct{}, len(cookies))
	for _, c := range cookies {
		if c.Path == "" {
			c.Path = "/"
		}
		k := jarKey(c)
		if i, ok := j.index[k]; ok {
			if _, sameBatch := batch[k]; sameBatch {
				j.cookies[i] = c
			}
			continue
		}
		batch[k] = struct{}{}
		j.index[k] = len(j.cookies)
		j.cookies = append(j.cookies, c)
	}
}

// Cookies returns the cookies applicable to a request URL, per the
// http.CookieJar read contract: domain suffix match, path prefix match,
// Secure only over https/wss, expired cookies omitted.
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	if u == nil || u.Hostname() == "" {
		return nil
	}
	origin := requestOrigin{
		scheme: strings.ToLower(u.Scheme),
		host:   normalizeHost(u.Hostname()),
		path:   normalizePath(u.EscapedPath()),
	}

	now := j.now()
	var out []*http.Cookie
	for _, c := range j.cookies {
		if c.Expires != nil && c.Expires.Before(now) {
			continue
		}
		if !cookieMatchesOrigin(c, origin) {
			continue
		}
		out = append(out, &http.Cookie{Name: c.Name, Value: c.Value})
	}
	return out
}

// SetCookies accepts server-set cookies for http.CookieJar compatibility.
// They participate in the same dedupe and override existing entries; the
// underlying browser stores are never written.
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	if u == nil {
		return
	}
	for _, hc := range cookies {
		if hc == nil || hc.Name == "" {
			continue
		}
		domain := hc.Domain
		if domain == "" {
			domain = u.Hostname()
		}
		path := hc.Path
		if path == "" {
			path = "/"
		}
		c := Cookie{
			Name:     hc.Name,
			Value:    hc.Value,
			Domain:   normalizeHost(domain),
			HostOnly: hc.Domain == "",
			Path:     path,
			Secure:   hc.Secure,
			HTTPOnly: hc.HttpOnly,
		}
		if !hc.Expires.IsZero() {
			t := hc.Expires.UTC()
			c.Expires = &t
		}

		k := jarKey(c)
		if i, ok := j.index[k]; ok {
			j.cookies[i] = c
			continue
		}
		j.index[k] = len(j.cookies)
		j.cookies = append(j.cookies, c)
	}
}
