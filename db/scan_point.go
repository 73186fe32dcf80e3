package db

import (
	"github.com/rs/zerolog/log"
)

// ScanPointStatus represents the status of a single grid point
type ScanPointStatus string

const (
	ScanPointStatusPending   ScanPointStatus = "pending"
	ScanPointStatusRunning   ScanPointStatus = "running"
	ScanPointStatusCompleted ScanPointStatus = "completed"
	ScanPointStatusFailed    ScanPointStatus = "failed"
)

// ScanPoint is one coordinate of a scan's grid. Row 0 is the north edge,
// col 0 the west edge.
type ScanPoint struct {
	BaseModel

	ScanID  uint            `json:"scan_id" gorm:"not null;uniqueIndex:idx_scan_point_cell"`
	GridRow int             `json:"grid_row" gorm:"not null;uniqueIndex:idx_scan_point_cell"`
	GridCol int             `json:"grid_col" gorm:"not null;uniqueIndex:idx_scan_point_cell"`
	Lat     float64         `json:"lat" gorm:"not null"`
	Lng     float64         `json:"lng" gorm:"not null"`
	Status  ScanPointStatus `json:"status" gorm:"index;size:50;not null;default:'pending'"`

	Rankings []ScanRanking `json:"-" gorm:"foreignKey:ScanPointID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// CreateScanPoints batch inserts the grid points of a scan
func (conn *DatabaseConnection) CreateScanPoints(points []*ScanPoint) error {
	if len(points) == 0 {
		return nil
	}
	if err := conn.db.Create(points).Error; err != nil {
		log.Error().Err(err).Uint("scan_id", points[0].ScanID).Msg("ScanPoint batch creation failed")
		return err
	}
	return nil
}

// SetScanPointStatus updates the status of one grid point
func (conn *DatabaseConnection) SetScanPointStatus(id uint, status ScanPointStatus) error {
	err := conn.db.Model(&ScanPoint{}).Where("id = ?", id).Update("status", status).Error
	if err != nil {
		log.Error().Err(err).Uint("scan_point_id", id).Str("status", string(status)).Msg("Unable to set scan point status")
	}
	return err
}

// GetPendingScanPoints returns a scan's points that still need work
func (conn *DatabaseConnection) GetPendingScanPoints(scanID uint) ([]*ScanPoint, error) {
	var points []*ScanPoint
	err := conn.db.Where("scan_id = ? AND status IN ?", scanID, []ScanPointStatus{ScanPointStatusPending, ScanPointStatusRunning}).
		Order("grid_row asc, grid_col asc").
		Find(&points).Error
	if err != nil {
		return nil, err
	}
	return points, nil
}

// CountScanPointsByStatus returns per-status point counts for a scan
func (conn *DatabaseConnection) CountScanPointsByStatus(scanID uint) (map[ScanPointStatus]int64, error) {
	var rows []struct {
		Status ScanPointStatus
		Count  int64
	}
	err := conn.db.Model(&ScanPoint{}).
		Select("status, count(*) as count").
		Where("scan_id = ?", scanID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[ScanPointStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
