package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/gridrank/gridrank/pkg/geo"
	"github.com/gridrank/gridrank/pkg/stealth"
	"github.com/spf13/viper"
)

const (
	EngineBingSearch = "bing_search"
	EngineBingAPI    = "bing_api"

	bingReferer = "bing.com"
)

func bingThrottle() ThrottleConfig {
	return ThrottleConfig{
		MinDelayMs:          viper.GetInt("engines.bing.min_delay_ms"),
		MaxDelayMs:          viper.GetInt("engines.bing.max_delay_ms"),
		MaxPerHour:          viper.GetInt("engines.bing.max_per_hour"),
		MaxPerDay:           viper.GetInt("engines.bing.max_per_day"),
		JitterMs:            viper.GetInt("engines.bing.jitter_ms"),
		BackoffOnError:      true,
		PauseOnCaptchaHours: viper.GetInt("engines.bing.pause_on_captcha_hours"),
	}
}

// BingSearchEngine scrapes the Bing SERP.
type BingSearchEngine struct {
	*BaseEngine
}

func NewBingSearchEngine(proxies *stealth.ProxyRotator) *BingSearchEngine {
	return &BingSearchEngine{
		BaseEngine: NewBaseEngine(Config{
			EngineID: EngineBingSearch,
			Throttle: bingThrottle(),
		}, proxies),
	}
}

func (b *BingSearchEngine) Search(ctx context.Context, query string, point geo.GridPoint, city, state string) (*SearchResult, error) {
	params := url.Values{}
	searchQuery := query
	if city != "" {
		searchQuery = query + " " + city
	}
	params.Set("q", searchQuery)
	params.Set("count", "20")
	target := "https://www.bing.com/search?" + params.Encode()

	res, err := b.fetch(ctx, target, bingReferer)
	if err != nil {
		return nil, err
	}

	result := newSearchResult(b.ID(), query, point, res, bingParserVersion)
	if res.captchaDetected {
		return result, nil
	}

	businesses, organic, err := parseBingSERP(res.body)
	if err != nil {
		return nil, fmt.Errorf("parsing bing serp: %w", err)
	}
	result.Businesses = businesses
	result.OrganicResults = organic
	return result, nil
}

// BingAPIEngine consumes the Bing Web Search API. It is a legitimate API
// engine: no fingerprint rotation or CAPTCHA concerns, only rate counters.
type BingAPIEngine struct {
	*BaseEngine
	apiKey string
}

func NewBingAPIEngine(proxies *stealth.ProxyRotator) *BingAPIEngine {
	return &BingAPIEngine{
		BaseEngine: NewBaseEngine(Config{
			EngineID:        EngineBingAPI,
			Throttle:        bingThrottle(),
			IsLegitimateAPI: true,
			RequiresAPIKey:  true,
		}, proxies),
		apiKey: viper.GetString("BING_SEARCH_API_KEY"),
	}
}

// HasAPIKey reports whether the engine is usable.
func (b *BingAPIEngine) HasAPIKey() bool {
	return b.apiKey != ""
}

// bingAPIResponse is the slice of the Bing Web Search answer we consume.
type bingAPIResponse struct {
	WebPages struct {
		Value []struct {
			Name    string `json:"name"`
			URL     string `json:"url"`
			Snippet string `json:"snippet"`
		} `json:"value"`
	} `json:"webPages"`
	Places struct {
		Value []struct {
			Name      string `json:"name"`
			URL       string `json:"url"`
			Telephone string `json:"telephone"`
			Address   struct {
				AddressLocality string `json:"addressLocality"`
				AddressRegion   string `json:"addressRegion"`
				StreetAddress   string `json:"streetAddress"`
			} `json:"address"`
		} `json:"value"`
	} `json:"places"`
}

func (b *BingAPIEngine) Search(ctx context.Context, query string, point geo.GridPoint, city, state string) (*SearchResult, error) {
	if b.apiKey == "" {
		return nil, fmt.Errorf("bing_api requires BING_SEARCH_API_KEY")
	}

	params := url.Values{}
	searchQuery := query
	if city != "" && state != "" {
		searchQuery = fmt.Sprintf("%s %s, %s", query, city, state)
	}
	params.Set("q", searchQuery)
	params.Set("count", "20")
	params.Set("mkt", "en-US")
	target := "https://api.bing.microsoft.com/v7.0/search?" + params.Encode()

	res, err := b.fetchAPI(ctx, target, map[string]string{
		"Ocp-Apim-Subscription-Key": b.apiKey,
	})
	if err != nil {
		return nil, err
	}

	result := newSearchResult(b.ID(), query, point, res, bingAPIParserVersion)

	var parsed bingAPIResponse
	if err := json.Unmarshal(res.body, &parsed); err != nil {
		return nil, fmt.Errorf("decoding bing api response: %w", err)
	}

	for i, place := range parsed.Places.Value {
		business := ParsedBusiness{
			Name:         place.Name,
			ResultType:   ResultTypeLocalPack,
			RankPosition: i + 1,
		}
		if place.Telephone != "" {
			phone := place.Telephone
			business.Phone = &phone
		}
		if place.URL != "" {
			website := place.URL
			business.Website = &website
		}
		if place.Address.StreetAddress != "" {
			address := place.Address.StreetAddress
			business.Address = &address
		}
		if place.Address.AddressLocality != "" {
			placeCity := place.Address.AddressLocality
			business.City = &placeCity
		}
		if place.Address.AddressRegion != "" {
			placeState := place.Address.AddressRegion
			business.State = &placeState
		}
		result.Businesses = append(result.Businesses, business)
	}

	for i, page := range parsed.WebPages.Value {
		result.OrganicResults = append(result.OrganicResults, OrganicResult{
			Title:    page.Name,
			URL:      page.URL,
			Snippet:  page.Snippet,
			Position: i + 1,
		})
	}
	return result, nil
}

// fetchAPI runs a keyed API request under the engine's rate counters,
// skipping the browser fingerprint and cookie discipline.
func (e *BaseEngine) fetchAPI(ctx context.Context, targetURL string, headers map[string]string) (*fetchResult, error) {
	if err := e.waitForThrottle(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	client := &http.Client{Transport: newTransport(""), Timeout: e.timeout}

	started := e.now()
	resp, err := client.Do(req)
	elapsed := e.now().Sub(started).Milliseconds()
	if err != nil {
		e.recordError()
		return nil, fmt.Errorf("request to %s failed: %w", e.config.EngineID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		e.recordError()
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		e.recordError()
		return nil, fmt.Errorf("%s returned status %d", e.config.EngineID, resp.StatusCode)
	}

	e.recordSuccess()
	return &fetchResult{
		body:           body,
		statusCode:     resp.StatusCode,
		responseTimeMs: elapsed,
	}, nil
}
