package engine

import (
	"context"
	"fmt"
	"net/url"

	"github.com/gridrank/gridrank/pkg/geo"
	"github.com/gridrank/gridrank/pkg/stealth"
	"github.com/spf13/viper"
)

const EngineDuckDuckGo = "duckduckgo"

func duckduckgoThrottle() ThrottleConfig {
	return ThrottleConfig{
		MinDelayMs:          viper.GetInt("engines.duckduckgo.min_delay_ms"),
		MaxDelayMs:          viper.GetInt("engines.duckduckgo.max_delay_ms"),
		MaxPerHour:          viper.GetInt("engines.duckduckgo.max_per_hour"),
		MaxPerDay:           viper.GetInt("engines.duckduckgo.max_per_day"),
		JitterMs:            viper.GetInt("engines.duckduckgo.jitter_ms"),
		BackoffOnError:      true,
		PauseOnCaptchaHours: viper.GetInt("engines.duckduckgo.pause_on_captcha_hours"),
	}
}

// DuckDuckGoEngine scrapes the HTML-only endpoint, which serves plain
// organic results without JavaScript. There is no local pack, so listings
// only ever surface through organic matches.
type DuckDuckGoEngine struct {
	*BaseEngine
}

func NewDuckDuckGoEngine(proxies *stealth.ProxyRotator) *DuckDuckGoEngine {
	return &DuckDuckGoEngine{
		BaseEngine: NewBaseEngine(Config{
			EngineID: EngineDuckDuckGo,
			Throttle: duckduckgoThrottle(),
		}, proxies),
	}
}

func (d *DuckDuckGoEngine) Search(ctx context.Context, query string, point geo.GridPoint, city, state string) (*SearchResult, error) {
	searchQuery := query
	if city != "" && state != "" {
		searchQuery = fmt.Sprintf("%s %s %s", query, city, state)
	} else if city != "" {
		searchQuery = query + " " + city
	}

	params := url.Values{}
	params.Set("q", searchQuery)
	params.Set("kl", "us-en")
	target := "https://html.duckduckgo.com/html/?" + params.Encode()

	// DuckDuckGo flags cross-site referers; the request goes out bare.
	res, err := d.fetch(ctx, target, "")
	if err != nil {
		return nil, err
	}

	result := newSearchResult(d.ID(), query, point, res, duckduckgoParserVersion)
	if res.captchaDetected {
		return result, nil
	}

	organic, err := parseDuckDuckGoResults(res.body)
	if err != nil {
		return nil, fmt.Errorf("parsing duckduckgo results: %w", err)
	}
	result.OrganicResults = organic
	return result, nil
}
