package engine

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/gridrank/gridrank/pkg/geo"
	"github.com/gridrank/gridrank/pkg/stealth"
	"github.com/spf13/viper"
)

const (
	EngineGoogleSearch      = "google_search"
	EngineGoogleLocalFinder = "google_local_finder"
	EngineGoogleMaps        = "google_maps"

	googleReputationGroup = "google"
	googleReferer         = "google.com"
)

func googleThrottle() ThrottleConfig {
	return ThrottleConfig{
		MinDelayMs:          viper.GetInt("engines.google.min_delay_ms"),
		MaxDelayMs:          viper.GetInt("engines.google.max_delay_ms"),
		MaxPerHour:          viper.GetInt("engines.google.max_per_hour"),
		MaxPerDay:           viper.GetInt("engines.google.max_per_day"),
		JitterMs:            viper.GetInt("engines.google.jitter_ms"),
		BackoffOnError:      true,
		PauseOnCaptchaHours: viper.GetInt("engines.google.pause_on_captcha_hours"),
	}
}

// googleSearchURL builds a SERP URL with UULE location simulation when a
// city or state is known.
func googleSearchURL(path, query, city, state string, extra url.Values) string {
	params := url.Values{}
	params.Set("q", query)
	params.Set("hl", "en")
	params.Set("gl", "us")
	params.Set("num", "20")
	if city != "" || state != "" {
		params.Set("uule", stealth.EncodeUULE(stealth.BuildCanonicalName(city, state)))
	}
	for key, values := range extra {
		for _, v := range values {
			params.Add(key, v)
		}
	}
	return "https://www.google.com/" + path + "?" + params.Encode()
}

// GoogleSearchEngine scrapes the standard Google SERP: local pack plus
// organic results.
type GoogleSearchEngine struct {
	*BaseEngine
}

func NewGoogleSearchEngine(proxies *stealth.ProxyRotator) *GoogleSearchEngine {
	return &GoogleSearchEngine{
		BaseEngine: NewBaseEngine(Config{
			EngineID:        EngineGoogleSearch,
			ReputationGroup: googleReputationGroup,
			Throttle:        googleThrottle(),
		}, proxies),
	}
}

func (g *GoogleSearchEngine) Search(ctx context.Context, query string, point geo.GridPoint, city, state string) (*SearchResult, error) {
	target := googleSearchURL("search", query, city, state, nil)
	res, err := g.fetch(ctx, target, googleReferer)
	if err != nil {
		return nil, err
	}

	result := newSearchResult(g.ID(), query, point, res, googleParserVersion)
	if res.captchaDetected {
		return result, nil
	}

	businesses, organic, err := parseGoogleSERP(res.body)
	if err != nil {
		return nil, fmt.Errorf("parsing google serp: %w", err)
	}
	result.Businesses = businesses
	result.OrganicResults = organic
	return result, nil
}

// GoogleLocalFinderEngine scrapes the expanded local results view
// (tbm=lcl), which lists 20+ map-anchored businesses.
type GoogleLocalFinderEngine struct {
	*BaseEngine
}

func NewGoogleLocalFinderEngine(proxies *stealth.ProxyRotator) *GoogleLocalFinderEngine {
	return &GoogleLocalFinderEngine{
		BaseEngine: NewBaseEngine(Config{
			EngineID:        EngineGoogleLocalFinder,
			ReputationGroup: googleReputationGroup,
			Throttle:        googleThrottle(),
		}, proxies),
	}
}

func (g *GoogleLocalFinderEngine) Search(ctx context.Context, query string, point geo.GridPoint, city, state string) (*SearchResult, error) {
	extra := url.Values{}
	extra.Set("tbm", "lcl")
	target := googleSearchURL("search", query, city, state, extra)
	res, err := g.fetch(ctx, target, googleReferer)
	if err != nil {
		return nil, err
	}

	result := newSearchResult(g.ID(), query, point, res, googleParserVersion)
	if res.captchaDetected {
		return result, nil
	}

	businesses, err := parseGoogleLocalFinder(res.body)
	if err != nil {
		return nil, fmt.Errorf("parsing google local finder: %w", err)
	}
	result.Businesses = businesses
	return result, nil
}

// GoogleMapsEngine targets the Maps search page. Maps serves an SPA shell
// over plain HTTP, so extraction without a browser is unreliable; this engine
// returns whatever little the shell exposes, usually nothing, and scans over
// it terminate cleanly with zero rankings.
type GoogleMapsEngine struct {
	*BaseEngine
}

func NewGoogleMapsEngine(proxies *stealth.ProxyRotator) *GoogleMapsEngine {
	return &GoogleMapsEngine{
		BaseEngine: NewBaseEngine(Config{
			EngineID:        EngineGoogleMaps,
			ReputationGroup: googleReputationGroup,
			Throttle:        googleThrottle(),
		}, proxies),
	}
}

func (g *GoogleMapsEngine) Search(ctx context.Context, query string, point geo.GridPoint, city, state string) (*SearchResult, error) {
	target := fmt.Sprintf("https://www.google.com/maps/search/%s/@%f,%f,14z",
		url.PathEscape(query), point.Lat, point.Lng)
	res, err := g.fetch(ctx, target, googleReferer)
	if err != nil {
		return nil, err
	}

	result := newSearchResult(g.ID(), query, point, res, googleParserVersion)
	if res.captchaDetected {
		return result, nil
	}

	businesses, err := parseGoogleMapsShell(res.body)
	if err != nil {
		return nil, fmt.Errorf("parsing google maps shell: %w", err)
	}
	result.Businesses = businesses
	return result, nil
}

func newSearchResult(engineID, query string, point geo.GridPoint, res *fetchResult, parserVersion string) *SearchResult {
	return &SearchResult{
		EngineID:  engineID,
		Query:     query,
		Location:  point,
		Timestamp: time.Now(),
		Metadata: ResultMetadata{
			CaptchaDetected: res.captchaDetected,
			ResponseTimeMs:  res.responseTimeMs,
			ParserVersion:   parserVersion,
			ProxyUsed:       res.proxyUsed,
		},
	}
}
