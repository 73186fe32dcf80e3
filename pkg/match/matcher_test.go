package match

import (
	"testing"

	"github.com/gridrank/gridrank/db"
	"github.com/gridrank/gridrank/pkg/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryStore is an in-memory Store for cascade tests.
type memoryStore struct {
	businesses []*db.Business
	nextID     uint
}

func newMemoryStore() *memoryStore {
	return &memoryStore{nextID: 1}
}

func (s *memoryStore) GetBusinessByGooglePlaceID(placeID string) (*db.Business, error) {
	for _, b := range s.businesses {
		if b.GooglePlaceID != nil && *b.GooglePlaceID == placeID {
			return b, nil
		}
	}
	return nil, nil
}

func (s *memoryStore) GetBusinessByPhone(phone string) (*db.Business, error) {
	for _, b := range s.businesses {
		if b.Phone != nil && *b.Phone == phone {
			return b, nil
		}
	}
	return nil, nil
}

func (s *memoryStore) FindBusinessesByNormalizedName(name string) ([]*db.Business, error) {
	var out []*db.Business
	for _, b := range s.businesses {
		if b.NormalizedName == name {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *memoryStore) FindBusinessesByPhone(phone string) ([]*db.Business, error) {
	var out []*db.Business
	for _, b := range s.businesses {
		if b.Phone != nil && *b.Phone == phone {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *memoryStore) FindBusinessesByDomain(domain string) ([]*db.Business, error) {
	var out []*db.Business
	for _, b := range s.businesses {
		if b.Domain != nil && *b.Domain == domain {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *memoryStore) CreateBusiness(b *db.Business) (*db.Business, error) {
	b.ID = s.nextID
	s.nextID++
	s.businesses = append(s.businesses, b)
	return b, nil
}

func (s *memoryStore) UpdateBusiness(b *db.Business) (*db.Business, error) {
	return b, nil
}

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

func TestResolveCreatesNewBusiness(t *testing.T) {
	store := newMemoryStore()
	matcher := NewMatcher(store)

	res, err := matcher.Resolve(engine.ParsedBusiness{
		Name:    "Ace Plumbing LLC",
		Phone:   strPtr("(512) 555-0134"),
		Website: strPtr("https://www.aceplumbing.com/"),
		City:    strPtr("Austin"),
	}, "google_search", nil)
	require.NoError(t, err)

	assert.True(t, res.Created)
	assert.Equal(t, ConfidenceNew, res.Confidence)
	assert.Equal(t, "ace plumbing", res.Business.NormalizedName)
	require.NotNil(t, res.Business.Phone)
	assert.Equal(t, "+15125550134", *res.Business.Phone)
	require.NotNil(t, res.Business.Domain)
	assert.Equal(t, "aceplumbing.com", *res.Business.Domain)
}

func TestResolvePlaceIDWinsOverEverything(t *testing.T) {
	store := newMemoryStore()
	existing, _ := store.CreateBusiness(&db.Business{
		Name:           "Ace Plumbing",
		NormalizedName: "ace plumbing",
		GooglePlaceID:  strPtr("place-123"),
	})
	matcher := NewMatcher(store)

	res, err := matcher.Resolve(engine.ParsedBusiness{
		Name:          "Totally Different Name",
		GooglePlaceID: strPtr("place-123"),
	}, "google_search", nil)
	require.NoError(t, err)

	assert.False(t, res.Created)
	assert.Equal(t, ConfidencePlaceID, res.Confidence)
	assert.Equal(t, existing.ID, res.Business.ID)
}

func TestResolveNameAndCoords(t *testing.T) {
	store := newMemoryStore()
	existing, _ := store.CreateBusiness(&db.Business{
		Name:           "Ace Plumbing",
		NormalizedName: "ace plumbing",
		Latitude:       floatPtr(30.26720),
		Longitude:      floatPtr(-97.74310),
	})
	matcher := NewMatcher(store)

	// ~22 meters north of the stored point.
	res, err := matcher.Resolve(engine.ParsedBusiness{
		Name:      "Ace Plumbing Inc",
		Latitude:  floatPtr(30.26740),
		Longitude: floatPtr(-97.74310),
	}, "google_maps", nil)
	require.NoError(t, err)
	assert.Equal(t, ConfidenceNameCoords, res.Confidence)
	assert.Equal(t, existing.ID, res.Business.ID)

	// Half a mile away is a different storefront.
	res, err = matcher.Resolve(engine.ParsedBusiness{
		Name:      "Ace Plumbing Inc",
		Latitude:  floatPtr(30.27500),
		Longitude: floatPtr(-97.74310),
	}, "google_maps", nil)
	require.NoError(t, err)
	assert.True(t, res.Created)
}

func TestResolvePhoneEquality(t *testing.T) {
	store := newMemoryStore()
	existing, _ := store.CreateBusiness(&db.Business{
		Name:           "Ace Plumbing",
		NormalizedName: "ace plumbing",
		Phone:          strPtr("+15125550134"),
	})
	matcher := NewMatcher(store)

	res, err := matcher.Resolve(engine.ParsedBusiness{
		Name:  "Ace Plumbing LLC",
		Phone: strPtr("512-555-0134"),
	}, "google_search", nil)
	require.NoError(t, err)
	assert.Equal(t, ConfidencePhone, res.Confidence)
	assert.Equal(t, MatchTypePhone, res.MatchType)
	assert.Equal(t, existing.ID, res.Business.ID)

	// Phone equality matches even when the names have drifted apart.
	res, err = matcher.Resolve(engine.ParsedBusiness{
		Name:  "Austin Rooter Experts",
		Phone: strPtr("(512) 555-0134"),
	}, "duckduckgo", nil)
	require.NoError(t, err)
	assert.Equal(t, ConfidencePhone, res.Confidence)
	assert.Equal(t, existing.ID, res.Business.ID)
}

func TestPlaceIDOutranksPhone(t *testing.T) {
	store := newMemoryStore()
	byPlace, _ := store.CreateBusiness(&db.Business{
		Name:           "Ace Plumbing",
		NormalizedName: "ace plumbing",
		GooglePlaceID:  strPtr("place-123"),
	})
	store.CreateBusiness(&db.Business{
		Name:           "Budget Rooter",
		NormalizedName: "budget rooter",
		Phone:          strPtr("+15125550134"),
	})
	matcher := NewMatcher(store)

	// Both the place ID and the phone match existing records; the place ID
	// tier decides.
	res, err := matcher.Resolve(engine.ParsedBusiness{
		Name:          "Ace Plumbing",
		GooglePlaceID: strPtr("place-123"),
		Phone:         strPtr("(512) 555-0134"),
	}, "google_search", nil)
	require.NoError(t, err)
	assert.Equal(t, ConfidencePlaceID, res.Confidence)
	assert.Equal(t, byPlace.ID, res.Business.ID)
}

func TestResolveDomainCity(t *testing.T) {
	store := newMemoryStore()
	existing, _ := store.CreateBusiness(&db.Business{
		Name:           "Ace Plumbing",
		NormalizedName: "ace plumbing",
		Domain:         strPtr("aceplumbing.com"),
		City:           strPtr("Austin"),
	})
	matcher := NewMatcher(store)

	res, err := matcher.Resolve(engine.ParsedBusiness{
		Name:    "Ace Plumbing of Austin",
		Website: strPtr("https://www.aceplumbing.com/services"),
		City:    strPtr("austin"),
	}, "bing_search", nil)
	require.NoError(t, err)
	assert.Equal(t, ConfidenceDomainCity, res.Confidence)
	assert.Equal(t, existing.ID, res.Business.ID)

	// Same domain in another city is a separate franchise location.
	res, err = matcher.Resolve(engine.ParsedBusiness{
		Name:    "Ace Plumbing of Dallas",
		Website: strPtr("https://aceplumbing.com/"),
		City:    strPtr("Dallas"),
	}, "bing_search", nil)
	require.NoError(t, err)
	assert.True(t, res.Created)
}

func TestCreateStoresPhoneFromBing(t *testing.T) {
	store := newMemoryStore()
	matcher := NewMatcher(store)

	// The Bing phone guard applies to merges only; a brand-new record keeps
	// the normalized phone so later grid points re-match through it.
	listing := engine.ParsedBusiness{
		Name:  "Joe's Pizza",
		Phone: strPtr("(561) 555-1234"),
	}
	first, err := matcher.Resolve(listing, "bing_api", nil)
	require.NoError(t, err)
	require.True(t, first.Created)
	require.NotNil(t, first.Business.Phone)
	assert.Equal(t, "+15615551234", *first.Business.Phone)

	for i := 0; i < 8; i++ {
		again, err := matcher.Resolve(listing, "bing_api", nil)
		require.NoError(t, err)
		assert.False(t, again.Created)
		assert.Equal(t, first.Business.ID, again.Business.ID)
	}
	assert.Len(t, store.businesses, 1)
}

func TestMergeSkipsBingPhone(t *testing.T) {
	store := newMemoryStore()
	store.CreateBusiness(&db.Business{
		Name:           "Ace Plumbing",
		NormalizedName: "ace plumbing",
		GooglePlaceID:  strPtr("place-123"),
	})
	matcher := NewMatcher(store)

	res, err := matcher.Resolve(engine.ParsedBusiness{
		Name:          "Ace Plumbing",
		GooglePlaceID: strPtr("place-123"),
		Phone:         strPtr("(800) 555-9999"),
	}, "bing_search", nil)
	require.NoError(t, err)
	assert.Nil(t, res.Business.Phone)

	res, err = matcher.Resolve(engine.ParsedBusiness{
		Name:          "Ace Plumbing",
		GooglePlaceID: strPtr("place-123"),
		Phone:         strPtr("(512) 555-0134"),
	}, "google_search", nil)
	require.NoError(t, err)
	require.NotNil(t, res.Business.Phone)
	assert.Equal(t, "+15125550134", *res.Business.Phone)
}

func TestMergeRoutesRatingsByEngine(t *testing.T) {
	store := newMemoryStore()
	store.CreateBusiness(&db.Business{
		Name:           "Ace Plumbing",
		NormalizedName: "ace plumbing",
		GooglePlaceID:  strPtr("place-123"),
	})
	matcher := NewMatcher(store)

	res, err := matcher.Resolve(engine.ParsedBusiness{
		Name:          "Ace Plumbing",
		GooglePlaceID: strPtr("place-123"),
		Rating:        floatPtr(4.8),
		ReviewCount:   intPtr(213),
	}, "google_search", nil)
	require.NoError(t, err)
	require.NotNil(t, res.Business.GoogleRating)
	assert.InDelta(t, 4.8, *res.Business.GoogleRating, 0.001)
	assert.Nil(t, res.Business.BingRating)

	res, err = matcher.Resolve(engine.ParsedBusiness{
		Name:          "Ace Plumbing",
		GooglePlaceID: strPtr("place-123"),
		Rating:        floatPtr(4.2),
		ReviewCount:   intPtr(88),
	}, "bing_search", nil)
	require.NoError(t, err)
	require.NotNil(t, res.Business.BingRating)
	assert.InDelta(t, 4.2, *res.Business.BingRating, 0.001)
	assert.InDelta(t, 4.8, *res.Business.GoogleRating, 0.001)
}

func TestResolveStableAcrossRepeats(t *testing.T) {
	store := newMemoryStore()
	matcher := NewMatcher(store)

	listing := engine.ParsedBusiness{
		Name:  "Ace Plumbing LLC",
		Phone: strPtr("(512) 555-0134"),
	}
	first, err := matcher.Resolve(listing, "google_search", nil)
	require.NoError(t, err)
	require.True(t, first.Created)

	for i := 0; i < 3; i++ {
		again, err := matcher.Resolve(listing, "google_search", nil)
		require.NoError(t, err)
		assert.False(t, again.Created)
		assert.Equal(t, first.Business.ID, again.Business.ID)
	}
	assert.Len(t, store.businesses, 1)
}

func TestResolveRejectsEmptyName(t *testing.T) {
	matcher := NewMatcher(newMemoryStore())
	_, err := matcher.Resolve(engine.ParsedBusiness{Name: "  ...  "}, "google_search", nil)
	assert.Error(t, err)
}
