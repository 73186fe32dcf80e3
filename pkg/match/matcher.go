// Package match resolves parsed listings against the canonical business
// table through a tiered identity cascade, so the same physical business
// seen by different engines lands on one record.
package match

import (
	"fmt"
	"strings"
	"time"

	"github.com/gridrank/gridrank/db"
	"github.com/gridrank/gridrank/pkg/engine"
	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
	"github.com/rs/zerolog/log"
)

// Match tiers in cascade order. Confidence is reported per resolution so
// callers can audit ambiguous merges. Phone equality outranks coincident
// names: a shared phone across different coordinates is a stronger
// duplicate signal than matching names without one.
const (
	ConfidencePlaceID    = 100
	ConfidencePhone      = 90
	ConfidenceNameCoords = 95
	ConfidencePhoneFuzzy = 85
	ConfidenceDomainCity = 80
	ConfidenceNew        = 0

	MatchTypePlaceID    = "google_place_id"
	MatchTypePhone      = "phone"
	MatchTypeNameCoords = "name_coords"
	MatchTypePhoneFuzzy = "phone_fuzzy"
	MatchTypeDomainCity = "domain_city"
	MatchTypeNew        = "new"

	// Coordinates closer than this are treated as the same storefront.
	sameLocationMeters = 50.0

	// Name edit distance tolerated when the phone already agrees.
	fuzzyNameDistance = 3
)

// Store is the persistence surface the matcher needs. *db.DatabaseConnection
// satisfies it.
type Store interface {
	GetBusinessByGooglePlaceID(placeID string) (*db.Business, error)
	GetBusinessByPhone(phone string) (*db.Business, error)
	FindBusinessesByNormalizedName(normalizedName string) ([]*db.Business, error)
	FindBusinessesByPhone(phone string) ([]*db.Business, error)
	FindBusinessesByDomain(domain string) ([]*db.Business, error)
	CreateBusiness(business *db.Business) (*db.Business, error)
	UpdateBusiness(business *db.Business) (*db.Business, error)
}

// Resolution reports which business a listing resolved to and how.
type Resolution struct {
	Business   *db.Business
	Confidence int
	MatchType  string
	Created    bool
}

// Matcher runs the identity cascade.
type Matcher struct {
	store Store
}

func NewMatcher(store Store) *Matcher {
	return &Matcher{store: store}
}

// Resolve matches one parsed listing to a business record, creating one
// when every tier misses. engineID decides which per-engine columns the
// merge refreshes; categoryID classifies a newly created business.
func (m *Matcher) Resolve(parsed engine.ParsedBusiness, engineID string, categoryID *uint) (*Resolution, error) {
	normalizedName := NormalizeName(parsed.Name)
	if normalizedName == "" {
		return nil, fmt.Errorf("listing has no usable name")
	}

	// Tier 1: Google place ID is authoritative.
	if parsed.GooglePlaceID != nil && *parsed.GooglePlaceID != "" {
		existing, err := m.store.GetBusinessByGooglePlaceID(*parsed.GooglePlaceID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return m.merge(existing, parsed, engineID, ConfidencePlaceID, MatchTypePlaceID)
		}
	}

	normalizedPhone := ""
	if parsed.Phone != nil {
		normalizedPhone = NormalizePhone(*parsed.Phone)
	}

	// Tier 2: phone equality.
	if normalizedPhone != "" {
		existing, err := m.store.GetBusinessByPhone(normalizedPhone)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return m.merge(existing, parsed, engineID, ConfidencePhone, MatchTypePhone)
		}
	}

	// Tier 3: exact name plus coordinates within 50 meters.
	if parsed.Latitude != nil && parsed.Longitude != nil {
		candidates, err := m.store.FindBusinessesByNormalizedName(normalizedName)
		if err != nil {
			return nil, err
		}
		parsedPoint := orb.Point{*parsed.Longitude, *parsed.Latitude}
		for _, candidate := range candidates {
			if candidate.Latitude == nil || candidate.Longitude == nil {
				continue
			}
			candidatePoint := orb.Point{*candidate.Longitude, *candidate.Latitude}
			if orbgeo.Distance(parsedPoint, candidatePoint) < sameLocationMeters {
				return m.merge(candidate, parsed, engineID, ConfidenceNameCoords, MatchTypeNameCoords)
			}
		}
	}

	// Tier 3.5: same phone, near-identical name. Covers listings where one
	// engine truncates or slightly rewords the name.
	if normalizedPhone != "" {
		candidates, err := m.store.FindBusinessesByPhone(normalizedPhone)
		if err != nil {
			return nil, err
		}
		for _, candidate := range candidates {
			if Levenshtein(candidate.NormalizedName, normalizedName) <= fuzzyNameDistance {
				return m.merge(candidate, parsed, engineID, ConfidencePhoneFuzzy, MatchTypePhoneFuzzy)
			}
		}
	}

	// Tier 4: same website domain in the same city.
	if parsed.Website != nil {
		domain := NormalizeDomain(*parsed.Website)
		if domain != "" && parsed.City != nil && *parsed.City != "" {
			candidates, err := m.store.FindBusinessesByDomain(domain)
			if err != nil {
				return nil, err
			}
			for _, candidate := range candidates {
				if candidate.City != nil && strings.EqualFold(*candidate.City, *parsed.City) {
					return m.merge(candidate, parsed, engineID, ConfidenceDomainCity, MatchTypeDomainCity)
				}
			}
		}
	}

	created, err := m.create(parsed, engineID, normalizedName, normalizedPhone, categoryID)
	if err != nil {
		return nil, err
	}
	return &Resolution{Business: created, Confidence: ConfidenceNew, MatchType: MatchTypeNew, Created: true}, nil
}

// merge folds a fresh sighting into an existing record. Null columns fill
// in from the listing; per-engine ratings always refresh; identifiers never
// overwrite a conflicting existing value.
func (m *Matcher) merge(existing *db.Business, parsed engine.ParsedBusiness, engineID string, confidence int, matchType string) (*Resolution, error) {
	if existing.GooglePlaceID == nil && parsed.GooglePlaceID != nil && *parsed.GooglePlaceID != "" {
		existing.GooglePlaceID = parsed.GooglePlaceID
	}
	if existing.BingEntityID == nil && parsed.BingEntityID != nil && *parsed.BingEntityID != "" {
		existing.BingEntityID = parsed.BingEntityID
	}

	// Bing phone fields are frequently tracking numbers, so phones only
	// merge in from non-Bing engines.
	if existing.Phone == nil && parsed.Phone != nil && !strings.HasPrefix(engineID, "bing") {
		if phone := NormalizePhone(*parsed.Phone); phone != "" {
			existing.Phone = &phone
		}
	}

	if existing.Website == nil && parsed.Website != nil && *parsed.Website != "" {
		existing.Website = parsed.Website
		if domain := NormalizeDomain(*parsed.Website); domain != "" {
			existing.Domain = &domain
		}
	}
	if existing.Address == nil && parsed.Address != nil {
		existing.Address = parsed.Address
	}
	if existing.City == nil && parsed.City != nil {
		existing.City = parsed.City
	}
	if existing.State == nil && parsed.State != nil {
		existing.State = parsed.State
	}
	if existing.Latitude == nil && parsed.Latitude != nil {
		existing.Latitude = parsed.Latitude
		existing.Longitude = parsed.Longitude
	}

	applyEngineRatings(existing, parsed, engineID)
	existing.LastSeenAt = time.Now()

	updated, err := m.store.UpdateBusiness(existing)
	if err != nil {
		return nil, err
	}
	log.Debug().
		Uint("business_id", updated.ID).
		Str("engine", engineID).
		Str("match_type", matchType).
		Int("confidence", confidence).
		Msg("Listing matched to existing business")
	return &Resolution{Business: updated, Confidence: confidence, MatchType: matchType}, nil
}

func (m *Matcher) create(parsed engine.ParsedBusiness, engineID, normalizedName, normalizedPhone string, categoryID *uint) (*db.Business, error) {
	business := &db.Business{
		Name:           parsed.Name,
		NormalizedName: normalizedName,
		Address:        parsed.Address,
		City:           parsed.City,
		State:          parsed.State,
		Latitude:       parsed.Latitude,
		Longitude:      parsed.Longitude,
		GooglePlaceID:  parsed.GooglePlaceID,
		BingEntityID:   parsed.BingEntityID,
		CategoryID:     categoryID,
	}
	if normalizedPhone != "" {
		business.Phone = &normalizedPhone
	}
	if parsed.Website != nil && *parsed.Website != "" {
		business.Website = parsed.Website
		if domain := NormalizeDomain(*parsed.Website); domain != "" {
			business.Domain = &domain
		}
	}
	applyEngineRatings(business, parsed, engineID)

	created, err := m.store.CreateBusiness(business)
	if err != nil {
		return nil, err
	}
	log.Debug().
		Uint("business_id", created.ID).
		Str("engine", engineID).
		Str("name", created.Name).
		Msg("New business created from listing")
	return created, nil
}

// applyEngineRatings refreshes the rating columns owned by the sighting
// engine. bing* engines write the Bing columns, everything else Google's.
func applyEngineRatings(business *db.Business, parsed engine.ParsedBusiness, engineID string) {
	if parsed.Rating == nil && parsed.ReviewCount == nil {
		return
	}
	if strings.HasPrefix(engineID, "bing") {
		if parsed.Rating != nil {
			business.BingRating = parsed.Rating
		}
		if parsed.ReviewCount != nil {
			business.BingReviewCount = parsed.ReviewCount
		}
		return
	}
	if parsed.Rating != nil {
		business.GoogleRating = parsed.Rating
	}
	if parsed.ReviewCount != nil {
		business.GoogleReviewCount = parsed.ReviewCount
	}
}
