package stealth

import (
	"net/http"
	"strings"
	"sync"
	"time"
)

type storedCookie struct {
	name      string
	value     string
	expiresAt *time.Time
}

// CookieJar keeps the Set-Cookie state of one engine across requests.
// Cookies are stored per response domain and matched back to request domains
// by suffix containment, so a cookie set on google.com is sent to
// www.google.com as well.
type CookieJar struct {
	mu      sync.Mutex
	cookies map[string]map[string]storedCookie // domain -> name -> cookie
}

func NewCookieJar() *CookieJar {
	return &CookieJar{cookies: make(map[string]map[string]storedCookie)}
}

// Store parses the Set-Cookie headers of a response for the given domain.
// Max-Age takes precedence over Expires when both are present.
func (j *CookieJar) Store(domain string, headers []string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	domain = normalizeDomainKey(domain)
	if j.cookies[domain] == nil {
		j.cookies[domain] = make(map[string]storedCookie)
	}

	for _, header := range headers {
		cookie := parseSetCookie(header)
		if cookie == nil {
			continue
		}
		j.cookies[domain][cookie.name] = *cookie
	}
}

// Header returns the Cookie header value for a request domain, pruning
// expired entries. Empty string when nothing matches.
func (j *CookieJar) Header(domain string) string {
	j.mu.Lock()
	defer j.mu.Unlock()

	domain = normalizeDomainKey(domain)
	now := time.Now()
	var pairs []string

	for storedDomain, byName := range j.cookies {
		if !domainMatches(domain, storedDomain) {
			continue
		}
		for name, cookie := range byName {
			if cookie.expiresAt != nil && now.After(*cookie.expiresAt) {
				delete(byName, name)
				continue
			}
			pairs = append(pairs, cookie.name+"="+cookie.value)
		}
	}
	return strings.Join(pairs, "; ")
}

// Clear drops all stored cookies.
func (j *CookieJar) Clear() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cookies = make(map[string]map[string]storedCookie)
}

// Size returns the number of stored cookies, expired ones included.
func (j *CookieJar) Size() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	total := 0
	for _, byName := range j.cookies {
		total += len(byName)
	}
	return total
}

// StoreFromResponse stores the response's Set-Cookie headers under its
// request host.
func (j *CookieJar) StoreFromResponse(resp *http.Response) {
	if resp == nil || resp.Request == nil || resp.Request.URL == nil {
		return
	}
	j.Store(resp.Request.URL.Hostname(), resp.Header.Values("Set-Cookie"))
}

func parseSetCookie(header string) *storedCookie {
	parts := strings.Split(header, ";")
	if len(parts) == 0 {
		return nil
	}
	nameValue := strings.SplitN(strings.TrimSpace(parts[0]), "=", 2)
	if len(nameValue) != 2 || nameValue[0] == "" {
		return nil
	}
	cookie := storedCookie{name: nameValue[0], value: nameValue[1]}

	for _, attr := range parts[1:] {
		attr = strings.TrimSpace(attr)
		kv := strings.SplitN(attr, "=", 2)
		key := strings.ToLower(kv[0])
		switch key {
		case "max-age":
			if len(kv) == 2 {
				if seconds, err := time.ParseDuration(kv[1] + "s"); err == nil {
					expires := time.Now().Add(seconds)
					cookie.expiresAt = &expires
				}
			}
		case "expires":
			// Max-Age wins when both are present
			if cookie.expiresAt == nil && len(kv) == 2 {
				if expires, err := http.ParseTime(kv[1]); err == nil {
					cookie.expiresAt = &expires
				}
			}
		}
	}
	return &cookie
}

func normalizeDomainKey(domain string) string {
	return strings.TrimPrefix(strings.ToLower(domain), ".")
}

// domainMatches reports whether a cookie stored for storedDomain applies to
// requestDomain: exact match or subdomain suffix.
func domainMatches(requestDomain, storedDomain string) bool {
	return requestDomain == storedDomain || strings.HasSuffix(requestDomain, "."+storedDomain)
}
