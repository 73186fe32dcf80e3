// Package engine defines the search engine contract and the shared request
// discipline (throttling, fingerprint rotation, CAPTCHA handling) every
// concrete engine inherits.
package engine

import (
	"context"
	"time"

	"github.com/gridrank/gridrank/pkg/geo"
)

// Status is the derived health state of an engine.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusThrottled Status = "throttled"
	StatusBlocked   Status = "blocked"
	StatusDisabled  Status = "disabled"
)

// ResultType tags where in the results page a listing was found.
type ResultType string

const (
	ResultTypeLocalPack       ResultType = "local_pack"
	ResultTypeOrganic         ResultType = "organic"
	ResultTypeMaps            ResultType = "maps"
	ResultTypeLocalFinder     ResultType = "local_finder"
	ResultTypeKnowledgePanel  ResultType = "knowledge_panel"
	ResultTypePeopleAlsoAsk   ResultType = "people_also_ask"
	ResultTypeRelatedSearches ResultType = "related_searches"
	ResultTypeAds             ResultType = "ads"
)

// ParsedBusiness is one listing extracted from a results page. RankPosition
// is 1-based within the listing's own result type.
type ParsedBusiness struct {
	Name          string     `json:"name"`
	Address       *string    `json:"address,omitempty"`
	City          *string    `json:"city,omitempty"`
	State         *string    `json:"state,omitempty"`
	Phone         *string    `json:"phone,omitempty"`
	Website       *string    `json:"website,omitempty"`
	Latitude      *float64   `json:"latitude,omitempty"`
	Longitude     *float64   `json:"longitude,omitempty"`
	Rating        *float64   `json:"rating,omitempty"`
	ReviewCount   *int       `json:"review_count,omitempty"`
	GooglePlaceID *string    `json:"google_place_id,omitempty"`
	BingEntityID  *string    `json:"bing_entity_id,omitempty"`
	ResultType    ResultType `json:"result_type"`
	RankPosition  int        `json:"rank_position"`
	Snippet       *string    `json:"snippet,omitempty"`
}

// OrganicResult is a plain web result, kept for competitive signals.
type OrganicResult struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Snippet  string `json:"snippet,omitempty"`
	Position int    `json:"position"`
}

// ResultMetadata carries per-request diagnostics.
type ResultMetadata struct {
	CaptchaDetected bool   `json:"captcha_detected"`
	ResponseTimeMs  int64  `json:"response_time_ms"`
	ParserVersion   string `json:"parser_version,omitempty"`
	ProxyUsed       bool   `json:"proxy_used,omitempty"`
}

// SearchResult is the common output contract of every engine.
type SearchResult struct {
	EngineID       string           `json:"engine_id"`
	Query          string           `json:"query"`
	Location       geo.GridPoint    `json:"location"`
	Timestamp      time.Time        `json:"timestamp"`
	Businesses     []ParsedBusiness `json:"businesses"`
	OrganicResults []OrganicResult  `json:"organic_results,omitempty"`
	Metadata       ResultMetadata   `json:"metadata"`
}

// ThrottleConfig bounds an engine's request rate.
type ThrottleConfig struct {
	MinDelayMs          int
	MaxDelayMs          int
	MaxPerHour          int
	MaxPerDay           int
	JitterMs            int
	BackoffOnError      bool
	PauseOnCaptchaHours int
}

// Config is the immutable configuration of an engine.
type Config struct {
	EngineID        string
	ReputationGroup string
	Throttle        ThrottleConfig
	IsLegitimateAPI bool
	RequiresAPIKey  bool
}

// StatusReport is an introspection snapshot for the CLI and monitors.
type StatusReport struct {
	EngineID      string     `json:"engine_id"`
	Status        Status     `json:"status"`
	RequestsHour  int        `json:"requests_hour"`
	RequestsToday int        `json:"requests_today"`
	ErrorStreak   int        `json:"error_streak"`
	CaptchaCount  int        `json:"captcha_count_24h"`
	BlockedUntil  *time.Time `json:"blocked_until,omitempty"`
	LastRequestAt *time.Time `json:"last_request_at,omitempty"`
}

// Engine is the contract every concrete search engine satisfies.
type Engine interface {
	ID() string
	Config() Config
	// Search runs one query at one grid point. city and state feed location
	// simulation (UULE for Google engines) and may be empty.
	Search(ctx context.Context, query string, point geo.GridPoint, city, state string) (*SearchResult, error)
	Status() Status
	CanMakeRequest() bool
	StatusReport() StatusReport
	// RequestsToday feeds the shared reputation-group accounting.
	RequestsToday() int
	// ClearBlock manually resets block state, error streak and CAPTCHA window.
	ClearBlock()
}
