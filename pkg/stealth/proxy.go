package stealth

import (
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gridrank/gridrank/lib"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// ProxyRotator hands out proxies round-robin across all engines. A proxy that
// fails a request enters a cooldown and is skipped until it expires.
// SOCKS proxies are not supported; entries must be http:// or https://.
type ProxyRotator struct {
	mu       sync.Mutex
	proxies  []string
	next     int
	cooldown map[string]time.Time

	failureCooldown time.Duration
}

// NewProxyRotator loads proxies from the PROXY_LIST env var (comma separated)
// or, failing that, from the PROXY_FILE path (one per line, '#' comments).
// An empty rotator is valid: Next returns "" and engines connect directly.
func NewProxyRotator() *ProxyRotator {
	r := &ProxyRotator{
		cooldown:        make(map[string]time.Time),
		failureCooldown: viper.GetDuration("proxy.failure_cooldown"),
	}
	if r.failureCooldown == 0 {
		r.failureCooldown = 30 * time.Minute
	}

	if list := viper.GetString("PROXY_LIST"); list != "" {
		for _, entry := range strings.Split(list, ",") {
			r.add(strings.TrimSpace(entry))
		}
	} else if file := viper.GetString("PROXY_FILE"); file != "" {
		lines, err := lib.ReadFileByLines(file)
		if err != nil {
			log.Error().Err(err).Str("file", file).Msg("Unable to read proxy file")
		}
		for _, line := range lines {
			r.add(line)
		}
	}

	if len(r.proxies) > 0 {
		log.Info().Int("count", len(r.proxies)).Msg("Loaded proxies")
	}
	return r
}

func (r *ProxyRotator) add(entry string) {
	if entry == "" {
		return
	}
	parsed, err := url.Parse(entry)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		log.Warn().Str("proxy", entry).Msg("Skipping unsupported proxy entry")
		return
	}
	r.proxies = append(r.proxies, entry)
}

// Next returns the next usable proxy URL, skipping entries in cooldown.
// Returns "" when no proxy is configured or all are cooling down.
func (r *ProxyRotator) Next() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.proxies) == 0 {
		return ""
	}
	now := time.Now()
	for i := 0; i < len(r.proxies); i++ {
		candidate := r.proxies[r.next]
		r.next = (r.next + 1) % len(r.proxies)
		if until, cooling := r.cooldown[candidate]; cooling {
			if now.Before(until) {
				continue
			}
			delete(r.cooldown, candidate)
		}
		return candidate
	}
	return ""
}

// MarkFailed puts a proxy in cooldown after a failed request.
func (r *ProxyRotator) MarkFailed(proxy string) {
	if proxy == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cooldown[proxy] = time.Now().Add(r.failureCooldown)
	log.Warn().Str("proxy", proxy).Dur("cooldown", r.failureCooldown).Msg("Proxy entered failure cooldown")
}

// Count returns the number of configured proxies.
func (r *ProxyRotator) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.proxies)
}
