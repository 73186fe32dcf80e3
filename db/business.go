package db

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Business is a deduplicated local business record. Matching happens on the
// normalized fields; the raw name is kept for display.
type Business struct {
	BaseModel

	Name           string  `json:"name" gorm:"size:512;not null"`
	NormalizedName string  `json:"normalized_name" gorm:"size:512;index"`
	Address        *string `json:"address,omitempty" gorm:"size:512"`
	City           *string `json:"city,omitempty" gorm:"size:255;index"`
	State          *string `json:"state,omitempty" gorm:"size:50"`
	// Digits-only with country prefix, e.g. +15551234567
	Phone   *string `json:"phone,omitempty" gorm:"size:20;index"`
	Website *string `json:"website,omitempty" gorm:"size:1024"`
	// Normalized website host, lowercased with www. stripped
	Domain *string `json:"domain,omitempty" gorm:"size:255;index"`

	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`

	GooglePlaceID *string `json:"google_place_id,omitempty" gorm:"size:255;uniqueIndex"`
	BingEntityID  *string `json:"bing_entity_id,omitempty" gorm:"size:255;index"`

	CategoryID *uint     `json:"category_id,omitempty" gorm:"index"`
	Category   *Category `json:"-" gorm:"foreignKey:CategoryID"`

	GoogleRating      *float64 `json:"google_rating,omitempty"`
	GoogleReviewCount *int     `json:"google_review_count,omitempty"`
	BingRating        *float64 `json:"bing_rating,omitempty"`
	BingReviewCount   *int     `json:"bing_review_count,omitempty"`

	IsClaimed bool `json:"is_claimed" gorm:"default:false"`
	IsClient  bool `json:"is_client" gorm:"default:false;index"`

	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// BeforeCreate stamps the sighting timestamps. FirstSeenAt never changes afterwards.
func (b *Business) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if b.FirstSeenAt.IsZero() {
		b.FirstSeenAt = now
	}
	if b.LastSeenAt.IsZero() {
		b.LastSeenAt = now
	}
	return nil
}

// TableHeaders returns table headers for CLI output
func (b Business) TableHeaders() []string {
	return []string{"ID", "Name", "City", "Phone", "Google Rating", "Bing Rating"}
}

// TableRow returns table row for CLI output
func (b Business) TableRow() []string {
	city, phone := "-", "-"
	if b.City != nil {
		city = *b.City
	}
	if b.Phone != nil {
		phone = *b.Phone
	}
	gRating, bRating := "-", "-"
	if b.GoogleRating != nil {
		gRating = fmt.Sprintf("%.2f", *b.GoogleRating)
	}
	if b.BingRating != nil {
		bRating = fmt.Sprintf("%.2f", *b.BingRating)
	}
	return []string{
		fmt.Sprintf("%d", b.ID),
		b.Name,
		city,
		phone,
		gRating,
		bRating,
	}
}

// CreateBusiness saves a new business
func (conn *DatabaseConnection) CreateBusiness(business *Business) (*Business, error) {
	if err := conn.db.Create(business).Error; err != nil {
		log.Error().Err(err).Str("name", business.Name).Msg("Business creation failed")
		return nil, err
	}
	return business, nil
}

// GetBusinessByID retrieves a business by ID
func (conn *DatabaseConnection) GetBusinessByID(id uint) (*Business, error) {
	var business Business
	if err := conn.db.First(&business, id).Error; err != nil {
		return nil, err
	}
	return &business, nil
}

// GetBusinessByGooglePlaceID returns the business with the given place ID, or nil
func (conn *DatabaseConnection) GetBusinessByGooglePlaceID(placeID string) (*Business, error) {
	var business Business
	err := conn.db.Where("google_place_id = ?", placeID).First(&business).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		log.Error().Err(err).Str("place_id", placeID).Msg("Unable to fetch business by place ID")
		return nil, err
	}
	return &business, nil
}

// GetBusinessByPhone returns the first business with the given normalized phone, or nil
func (conn *DatabaseConnection) GetBusinessByPhone(phone string) (*Business, error) {
	var business Business
	err := conn.db.Where("phone = ?", phone).Order("id asc").First(&business).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		log.Error().Err(err).Msg("Unable to fetch business by phone")
		return nil, err
	}
	return &business, nil
}

// FindBusinessesByNormalizedName returns all businesses sharing a normalized name
func (conn *DatabaseConnection) FindBusinessesByNormalizedName(normalizedName string) ([]*Business, error) {
	var businesses []*Business
	if err := conn.db.Where("normalized_name = ?", normalizedName).Find(&businesses).Error; err != nil {
		return nil, err
	}
	return businesses, nil
}

// FindBusinessesByPhone returns all businesses sharing a normalized phone
func (conn *DatabaseConnection) FindBusinessesByPhone(phone string) ([]*Business, error) {
	var businesses []*Business
	if err := conn.db.Where("phone = ?", phone).Find(&businesses).Error; err != nil {
		return nil, err
	}
	return businesses, nil
}

// FindBusinessesByDomain returns all businesses sharing a normalized website domain
func (conn *DatabaseConnection) FindBusinessesByDomain(domain string) ([]*Business, error) {
	var businesses []*Business
	if err := conn.db.Where("domain = ?", domain).Find(&businesses).Error; err != nil {
		return nil, err
	}
	return businesses, nil
}

// UpdateBusiness saves changes to a business
func (conn *DatabaseConnection) UpdateBusiness(business *Business) (*Business, error) {
	if err := conn.db.Save(business).Error; err != nil {
		log.Error().Err(err).Uint("id", business.ID).Msg("Unable to update business")
		return nil, err
	}
	return business, nil
}
