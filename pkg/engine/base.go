package engine

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gridrank/gridrank/pkg/stealth"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// captchaIndicators are matched case-insensitively against response bodies.
var captchaIndicators = []string{
	"unusual traffic",
	"captcha",
	"our systems have detected",
	"sorry/index",
	"recaptcha",
}

const (
	maxBodyBytes      = 2 << 20
	maxBackoffDelay   = 5 * time.Minute
	defaultReqTimeout = 15 * time.Second
)

// BaseEngine carries the throttle counters, block state, fingerprint pool and
// cookie jar of one engine. All mutation happens under its own worker, but
// introspection can come from any goroutine, so state is mutex-protected.
type BaseEngine struct {
	config Config

	mu              sync.Mutex
	requestsHour    int
	requestsToday   int
	hourWindowStart time.Time
	dayWindowStart  time.Time
	lastRequestAt   *time.Time
	blockedUntil    *time.Time
	errorStreak     int
	captchaEvents   []time.Time
	sessionRequests int
	disabled        bool

	profiles *stealth.ProfilePool
	jar      *stealth.CookieJar
	proxies  *stealth.ProxyRotator

	timeout time.Duration
	// sleep is swappable so tests can skip real throttle delays
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewBaseEngine builds the shared engine state. The proxy rotator is shared
// across all engines and may be nil.
func NewBaseEngine(config Config, proxies *stealth.ProxyRotator) *BaseEngine {
	timeout := viper.GetDuration("engines.request_timeout")
	if timeout == 0 {
		timeout = defaultReqTimeout
	}
	now := time.Now()
	return &BaseEngine{
		config:          config,
		hourWindowStart: now,
		dayWindowStart:  utcMidnight(now),
		profiles:        stealth.NewProfilePool(),
		jar:             stealth.NewCookieJar(),
		proxies:         proxies,
		timeout:         timeout,
		sleep:           sleepContext,
		now:             time.Now,
	}
}

func (e *BaseEngine) ID() string     { return e.config.EngineID }
func (e *BaseEngine) Config() Config { return e.config }

// Status derives the engine state. Reading past the block deadline silently
// transitions back to healthy.
func (e *BaseEngine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statusLocked()
}

func (e *BaseEngine) statusLocked() Status {
	if e.disabled {
		return StatusDisabled
	}
	now := e.now()
	if e.blockedUntil != nil {
		if now.Before(*e.blockedUntil) {
			return StatusBlocked
		}
		e.blockedUntil = nil
	}
	e.refreshWindowsLocked(now)
	if (e.config.Throttle.MaxPerHour > 0 && e.requestsHour >= e.config.Throttle.MaxPerHour) ||
		(e.config.Throttle.MaxPerDay > 0 && e.requestsToday >= e.config.Throttle.MaxPerDay) {
		return StatusThrottled
	}
	return StatusHealthy
}

// CanMakeRequest is true only for healthy engines.
func (e *BaseEngine) CanMakeRequest() bool {
	return e.Status() == StatusHealthy
}

// RequestsToday returns the day counter after window refresh.
func (e *BaseEngine) RequestsToday() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.refreshWindowsLocked(e.now())
	return e.requestsToday
}

// StatusReport returns an introspection snapshot.
func (e *BaseEngine) StatusReport() StatusReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	status := e.statusLocked()
	report := StatusReport{
		EngineID:      e.config.EngineID,
		Status:        status,
		RequestsHour:  e.requestsHour,
		RequestsToday: e.requestsToday,
		ErrorStreak:   e.errorStreak,
		CaptchaCount:  len(e.captchaWindowLocked(e.now())),
	}
	if e.blockedUntil != nil {
		until := *e.blockedUntil
		report.BlockedUntil = &until
	}
	if e.lastRequestAt != nil {
		last := *e.lastRequestAt
		report.LastRequestAt = &last
	}
	return report
}

// ClearBlock manually resets block state, error streak and the CAPTCHA window.
func (e *BaseEngine) ClearBlock() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.blockedUntil = nil
	e.errorStreak = 0
	e.captchaEvents = nil
	log.Info().Str("engine", e.config.EngineID).Msg("Engine block state cleared")
}

// SetDisabled flips the engine's administrative disable flag.
func (e *BaseEngine) SetDisabled(disabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.disabled = disabled
}

// refreshWindowsLocked resets the hourly counter each elapsed hour and the
// daily counter at UTC midnight.
func (e *BaseEngine) refreshWindowsLocked(now time.Time) {
	if now.Sub(e.hourWindowStart) >= time.Hour {
		e.requestsHour = 0
		e.hourWindowStart = now
	}
	if utcMidnight(now).After(e.dayWindowStart) {
		e.requestsToday = 0
		e.dayWindowStart = utcMidnight(now)
	}
}

// throttleDelay computes the pre-request sleep: uniform base in
// [minDelay, maxDelay], triangular jitter, exponential error backoff clamped
// to five minutes, then a ±30% factor to defeat periodicity detection.
func (e *BaseEngine) throttleDelay() time.Duration {
	e.mu.Lock()
	streak := e.errorStreak
	backoff := e.config.Throttle.BackoffOnError
	e.mu.Unlock()

	t := e.config.Throttle
	delay := stealth.HumanDelay(t.MinDelayMs, t.MaxDelayMs, t.JitterMs)
	if backoff && streak > 0 {
		delay *= time.Duration(1 << uint(streak))
		if delay > maxBackoffDelay {
			delay = maxBackoffDelay
		}
	}
	factor := 0.7 + randomFloat()*0.6
	return time.Duration(float64(delay) * factor)
}

// waitForThrottle sleeps the computed delay, aborting on context cancel.
func (e *BaseEngine) waitForThrottle(ctx context.Context) error {
	return e.sleep(ctx, e.throttleDelay())
}

type fetchResult struct {
	body            []byte
	statusCode      int
	responseTimeMs  int64
	captchaDetected bool
	proxyUsed       bool
}

// fetch runs the full request discipline: throttle wait, fingerprinted
// request, cookie persistence, CAPTCHA/429 block handling, counters.
// A CAPTCHA is not an error: the caller gets captchaDetected=true and must
// return an empty result.
func (e *BaseEngine) fetch(ctx context.Context, targetURL, referer string) (*fetchResult, error) {
	if err := e.waitForThrottle(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	e.applyHeaders(req, referer)

	proxyURL := ""
	if e.proxies != nil {
		proxyURL = e.proxies.Next()
	}
	client := &http.Client{
		Transport: newTransport(proxyURL),
		Timeout:   e.timeout,
	}

	started := e.now()
	resp, err := client.Do(req)
	elapsed := e.now().Sub(started).Milliseconds()
	if err != nil {
		if proxyURL != "" {
			e.proxies.MarkFailed(proxyURL)
		}
		e.recordError()
		return nil, fmt.Errorf("request to %s failed: %w", e.config.EngineID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		e.recordError()
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	e.jar.StoreFromResponse(resp)

	result := &fetchResult{
		body:           body,
		statusCode:     resp.StatusCode,
		responseTimeMs: elapsed,
		proxyUsed:      proxyURL != "",
	}

	if DetectCaptcha(body) || (resp.StatusCode == http.StatusTooManyRequests && e.config.ReputationGroup == "google") {
		e.recordCaptchaEvent()
		result.captchaDetected = true
		return result, nil
	}

	if resp.StatusCode >= 400 {
		e.recordError()
		return nil, fmt.Errorf("%s returned status %d", e.config.EngineID, resp.StatusCode)
	}

	e.recordSuccess()
	return result, nil
}

// applyHeaders sets the fingerprint headers for the current browser profile.
// Sec-Fetch-Site flips to same-origin when a Referer is present.
func (e *BaseEngine) applyHeaders(req *http.Request, referer string) {
	profile := e.profiles.Current()
	req.Header.Set("User-Agent", profile.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", profile.AcceptLanguage)
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Dest", "document")

	if profile.HasClientHints() {
		req.Header.Set("Sec-CH-UA", profile.SecCHUA)
		req.Header.Set("Sec-CH-UA-Platform", profile.SecCHUAPlatform)
		req.Header.Set("Sec-CH-UA-Mobile", profile.SecCHUAMobile)
	}

	if referer != "" {
		req.Header.Set("Referer", "https://www."+referer+"/")
		req.Header.Set("Sec-Fetch-Site", "same-origin")
	} else {
		req.Header.Set("Sec-Fetch-Site", "none")
	}

	if cookies := e.jar.Header(req.URL.Hostname()); cookies != "" {
		req.Header.Set("Cookie", cookies)
	}
}

func (e *BaseEngine) recordSuccess() {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	e.refreshWindowsLocked(now)
	e.requestsHour++
	e.requestsToday++
	e.lastRequestAt = &now
	e.errorStreak = 0
	e.sessionRequests++

	rotateAfter := viper.GetInt("engines.session_rotation_requests")
	if rotateAfter <= 0 {
		rotateAfter = 20
	}
	if e.sessionRequests >= rotateAfter {
		e.sessionRequests = 0
		e.profiles.Rotate()
		log.Debug().Str("engine", e.config.EngineID).Msg("Rotated browser profile after session quota")
	}
}

func (e *BaseEngine) recordError() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errorStreak++
}

// recordCaptchaEvent applies the graduated block response: 15 minutes for the
// first event in the 24h window, 2 hours for the second, 24 hours from the
// third on. The configured pauseOnCaptchaHours caps the duration. The
// fingerprint profile rotates on every event.
func (e *BaseEngine) recordCaptchaEvent() {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	e.captchaEvents = append(e.captchaWindowLocked(now), now)

	var duration time.Duration
	switch len(e.captchaEvents) {
	case 1:
		duration = 15 * time.Minute
	case 2:
		duration = 2 * time.Hour
	default:
		duration = 24 * time.Hour
	}
	if ceiling := time.Duration(e.config.Throttle.PauseOnCaptchaHours) * time.Hour; ceiling > 0 && duration > ceiling {
		duration = ceiling
	}

	until := now.Add(duration)
	e.blockedUntil = &until
	e.profiles.Rotate()

	log.Warn().
		Str("engine", e.config.EngineID).
		Int("captcha_events_24h", len(e.captchaEvents)).
		Time("blocked_until", until).
		Msg("CAPTCHA detected, engine blocked")
}

// captchaWindowLocked returns the events still inside the 24h sliding window.
func (e *BaseEngine) captchaWindowLocked(now time.Time) []time.Time {
	cutoff := now.Add(-24 * time.Hour)
	recent := e.captchaEvents[:0:0]
	for _, event := range e.captchaEvents {
		if event.After(cutoff) {
			recent = append(recent, event)
		}
	}
	return recent
}

// DetectCaptcha reports whether a response body carries a CAPTCHA indicator.
func DetectCaptcha(body []byte) bool {
	lower := strings.ToLower(string(body))
	for _, indicator := range captchaIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}

// newTransport builds an HTTP transport, optionally pinned to a proxy.
func newTransport(proxyURL string) *http.Transport {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if proxyURL != "" {
		if parsed, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(parsed)
		}
	}
	return transport
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func randomFloat() float64 {
	return rand.Float64()
}

func utcMidnight(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
