// Package stealth holds the request-fingerprint helpers shared by the search
// engines: browser profile rotation, cookie persistence, proxy rotation,
// human-like delays and UULE location encoding.
package stealth

import (
	"math/rand"
	"sync"
)

// BrowserProfile is one internally consistent browser fingerprint. The
// client-hint headers must always match the user agent; Firefox profiles
// leave them empty because Firefox does not send client hints.
type BrowserProfile struct {
	UserAgent       string
	SecCHUA         string
	SecCHUAPlatform string
	SecCHUAMobile   string
	AcceptLanguage  string
}

// HasClientHints reports whether this profile sends Sec-CH-UA headers.
func (p BrowserProfile) HasClientHints() bool {
	return p.SecCHUA != ""
}

var profiles = []BrowserProfile{
	{
		UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
		SecCHUA:         `"Not/A)Brand";v="8", "Chromium";v="126", "Google Chrome";v="126"`,
		SecCHUAPlatform: `"Windows"`,
		SecCHUAMobile:   "?0",
		AcceptLanguage:  "en-US,en;q=0.9",
	},
	{
		UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
		SecCHUA:         `"Google Chrome";v="125", "Chromium";v="125", "Not.A/Brand";v="24"`,
		SecCHUAPlatform: `"Windows"`,
		SecCHUAMobile:   "?0",
		AcceptLanguage:  "en-US,en;q=0.9",
	},
	{
		UserAgent:       "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
		SecCHUA:         `"Not/A)Brand";v="8", "Chromium";v="126", "Google Chrome";v="126"`,
		SecCHUAPlatform: `"macOS"`,
		SecCHUAMobile:   "?0",
		AcceptLanguage:  "en-US,en;q=0.9",
	},
	{
		UserAgent:       "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
		SecCHUA:         `"Google Chrome";v="125", "Chromium";v="125", "Not.A/Brand";v="24"`,
		SecCHUAPlatform: `"Linux"`,
		SecCHUAMobile:   "?0",
		AcceptLanguage:  "en-US,en;q=0.8",
	},
	{
		UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36 Edg/126.0.0.0",
		SecCHUA:         `"Not/A)Brand";v="8", "Chromium";v="126", "Microsoft Edge";v="126"`,
		SecCHUAPlatform: `"Windows"`,
		SecCHUAMobile:   "?0",
		AcceptLanguage:  "en-US,en;q=0.9",
	},
	{
		UserAgent:       "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.0.0",
		SecCHUA:         `"Chromium";v="124", "Microsoft Edge";v="124", "Not-A.Brand";v="99"`,
		SecCHUAPlatform: `"macOS"`,
		SecCHUAMobile:   "?0",
		AcceptLanguage:  "en-US,en;q=0.9",
	},
	// Firefox sends no client hints
	{
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0",
		AcceptLanguage: "en-US,en;q=0.5",
	},
	{
		UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:126.0) Gecko/20100101 Firefox/126.0",
		AcceptLanguage: "en-US,en;q=0.5",
	},
	{
		UserAgent:      "Mozilla/5.0 (X11; Linux x86_64; rv:127.0) Gecko/20100101 Firefox/127.0",
		AcceptLanguage: "en-US,en;q=0.5",
	},
	{
		UserAgent:       "Mozilla/5.0 (X11; Ubuntu; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
		SecCHUA:         `"Not/A)Brand";v="8", "Chromium";v="126", "Google Chrome";v="126"`,
		SecCHUAPlatform: `"Linux"`,
		SecCHUAMobile:   "?0",
		AcceptLanguage:  "en-GB,en;q=0.9",
	},
}

// ProfilePool hands out browser profiles with uniform random selection and
// guarantees rotation never returns the profile currently in use.
type ProfilePool struct {
	mu      sync.Mutex
	current int
}

// NewProfilePool picks a random starting profile.
func NewProfilePool() *ProfilePool {
	return &ProfilePool{current: rand.Intn(len(profiles))}
}

// Current returns the profile in use.
func (p *ProfilePool) Current() BrowserProfile {
	p.mu.Lock()
	defer p.mu.Unlock()
	return profiles[p.current]
}

// Rotate switches to a different profile and returns it.
func (p *ProfilePool) Rotate() BrowserProfile {
	p.mu.Lock()
	defer p.mu.Unlock()
	next := rand.Intn(len(profiles) - 1)
	if next >= p.current {
		next++
	}
	p.current = next
	return profiles[p.current]
}

// ProfileCount returns the size of the profile pool.
func ProfileCount() int {
	return len(profiles)
}
