package db

import (
	"github.com/rs/zerolog/log"
)

// ScanRanking records one business's rank position at one grid point.
type ScanRanking struct {
	BaseModel

	ScanPointID  uint     `json:"scan_point_id" gorm:"index;not null"`
	BusinessID   uint     `json:"business_id" gorm:"index;not null"`
	Business     Business `json:"-" gorm:"foreignKey:BusinessID"`
	RankPosition int      `json:"rank_position" gorm:"not null"`
	ResultType   string   `json:"result_type" gorm:"size:50;not null"`
	Snippet      *string  `json:"snippet,omitempty" gorm:"type:text"`
}

// CreateScanRanking saves a ranking row
func (conn *DatabaseConnection) CreateScanRanking(ranking *ScanRanking) (*ScanRanking, error) {
	if err := conn.db.Create(ranking).Error; err != nil {
		log.Error().Err(err).Uint("scan_point_id", ranking.ScanPointID).Msg("ScanRanking creation failed")
		return nil, err
	}
	return ranking, nil
}

// ListScanRankingsForPoint returns a point's rankings ordered by position
func (conn *DatabaseConnection) ListScanRankingsForPoint(scanPointID uint) ([]*ScanRanking, error) {
	var rankings []*ScanRanking
	err := conn.db.Where("scan_point_id = ?", scanPointID).
		Order("rank_position asc").
		Find(&rankings).Error
	if err != nil {
		return nil, err
	}
	return rankings, nil
}
