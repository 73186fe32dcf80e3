package db

import (
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// ReviewSnapshot is an append-only record of a business's rating and review
// count as seen on one source at one moment.
type ReviewSnapshot struct {
	BaseModel

	BusinessID  uint      `json:"business_id" gorm:"index;not null"`
	Business    Business  `json:"-" gorm:"foreignKey:BusinessID"`
	Source      string    `json:"source" gorm:"size:20;not null;index"`
	Rating      float64   `json:"rating" gorm:"not null"`
	ReviewCount int       `json:"review_count" gorm:"not null"`
	CapturedAt  time.Time `json:"captured_at" gorm:"index"`
}

func (r *ReviewSnapshot) BeforeCreate(tx *gorm.DB) error {
	if r.CapturedAt.IsZero() {
		r.CapturedAt = time.Now()
	}
	return nil
}

// CreateReviewSnapshot appends a snapshot
func (conn *DatabaseConnection) CreateReviewSnapshot(snapshot *ReviewSnapshot) (*ReviewSnapshot, error) {
	if err := conn.db.Create(snapshot).Error; err != nil {
		log.Error().Err(err).Uint("business_id", snapshot.BusinessID).Msg("ReviewSnapshot creation failed")
		return nil, err
	}
	return snapshot, nil
}

// ListReviewSnapshotsForBusiness returns a business's snapshots newest first
func (conn *DatabaseConnection) ListReviewSnapshotsForBusiness(businessID uint) ([]*ReviewSnapshot, error) {
	var snapshots []*ReviewSnapshot
	err := conn.db.Where("business_id = ?", businessID).
		Order("captured_at desc").
		Find(&snapshots).Error
	if err != nil {
		return nil, err
	}
	return snapshots, nil
}
