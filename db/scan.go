package db

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// ScanStatus represents the status of a scan
type ScanStatus string

const (
	ScanStatusPending   ScanStatus = "pending"
	ScanStatusQueued    ScanStatus = "queued"
	ScanStatusRunning   ScanStatus = "running"
	ScanStatusCompleted ScanStatus = "completed"
	ScanStatusFailed    ScanStatus = "failed"
	ScanStatusCancelled ScanStatus = "cancelled"
)

// IsTerminal returns true for completed, failed and cancelled scans
func (s ScanStatus) IsTerminal() bool {
	return s == ScanStatusCompleted || s == ScanStatusFailed || s == ScanStatusCancelled
}

// Scan is one geo-grid rank sampling run: a single (area, category, keyword,
// engine) combination expanded over a gridSize² grid of points.
type Scan struct {
	BaseModel

	ServiceAreaID uint        `json:"service_area_id" gorm:"index;not null"`
	ServiceArea   ServiceArea `json:"-" gorm:"foreignKey:ServiceAreaID"`
	CategoryID    uint        `json:"category_id" gorm:"index;not null"`
	Category      Category    `json:"-" gorm:"foreignKey:CategoryID"`
	Keyword       string      `json:"keyword" gorm:"size:255;not null"`
	EngineID      string      `json:"engine_id" gorm:"size:50;index;not null"`

	GridSize    int     `json:"grid_size" gorm:"not null"`
	RadiusMiles float64 `json:"radius_miles" gorm:"not null"`

	Status          ScanStatus `json:"status" gorm:"index;size:50;not null;default:'pending'"`
	PointsTotal     int        `json:"points_total" gorm:"default:0"`
	PointsCompleted int        `json:"points_completed" gorm:"default:0"`
	ErrorMessage    *string    `json:"error_message,omitempty" gorm:"type:text"`

	// BatchID groups scans created by one full-scan expansion so a single
	// monitor can poll the whole group.
	BatchID *uuid.UUID `json:"batch_id,omitempty" gorm:"type:uuid;index"`

	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Points []ScanPoint `json:"-" gorm:"foreignKey:ScanID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableHeaders returns table headers for CLI output
func (s Scan) TableHeaders() []string {
	return []string{"ID", "Area", "Keyword", "Engine", "Grid", "Status", "Progress"}
}

// TableRow returns table row for CLI output
func (s Scan) TableRow() []string {
	return []string{
		fmt.Sprintf("%d", s.ID),
		fmt.Sprintf("%d", s.ServiceAreaID),
		s.Keyword,
		s.EngineID,
		fmt.Sprintf("%dx%d", s.GridSize, s.GridSize),
		string(s.Status),
		fmt.Sprintf("%d/%d", s.PointsCompleted, s.PointsTotal),
	}
}

// CreateScan saves a new scan
func (conn *DatabaseConnection) CreateScan(scan *Scan) (*Scan, error) {
	if err := conn.db.Create(scan).Error; err != nil {
		log.Error().Err(err).Msg("Scan creation failed")
		return nil, err
	}
	return scan, nil
}

// GetScanByID retrieves a scan by ID
func (conn *DatabaseConnection) GetScanByID(id uint) (*Scan, error) {
	var scan Scan
	if err := conn.db.First(&scan, id).Error; err != nil {
		return nil, err
	}
	return &scan, nil
}

// UpdateScan saves changes to a scan
func (conn *DatabaseConnection) UpdateScan(scan *Scan) (*Scan, error) {
	if err := conn.db.Save(scan).Error; err != nil {
		log.Error().Err(err).Uint("id", scan.ID).Msg("Unable to update scan")
		return nil, err
	}
	return scan, nil
}

// SetScanStatus transitions a scan to the given status. Running stamps
// started_at once, terminal states stamp completed_at. The guard on current
// status keeps terminal states final.
func (conn *DatabaseConnection) SetScanStatus(id uint, status ScanStatus, errorMessage *string) error {
	updates := map[string]interface{}{"status": status}
	if errorMessage != nil {
		updates["error_message"] = *errorMessage
	}
	if status == ScanStatusRunning {
		updates["started_at"] = gorm.Expr("COALESCE(started_at, ?)", time.Now())
	}
	if status.IsTerminal() {
		updates["completed_at"] = time.Now()
	}
	result := conn.db.Model(&Scan{}).
		Where("id = ? AND status IN ?", id, []ScanStatus{ScanStatusPending, ScanStatusQueued, ScanStatusRunning}).
		Updates(updates)
	if result.Error != nil {
		log.Error().Err(result.Error).Uint("scan_id", id).Str("status", string(status)).Msg("Unable to set scan status")
		return result.Error
	}
	return nil
}

// IncrementScanPointsCompleted atomically bumps points_completed by one.
// Must be a database-side increment so concurrent workers never lose updates.
func (conn *DatabaseConnection) IncrementScanPointsCompleted(id uint) error {
	err := conn.db.Model(&Scan{}).
		Where("id = ?", id).
		UpdateColumn("points_completed", gorm.Expr("points_completed + ?", 1)).Error
	if err != nil {
		log.Error().Err(err).Uint("scan_id", id).Msg("Unable to increment scan point counter")
	}
	return err
}

// FinalizeScans applies a terminal status to every listed scan that is still
// queued or running, in one batched update.
func (conn *DatabaseConnection) FinalizeScans(ids []uint, status ScanStatus, errorMessage *string) error {
	if len(ids) == 0 {
		return nil
	}
	updates := map[string]interface{}{
		"status":       status,
		"completed_at": time.Now(),
	}
	if errorMessage != nil {
		updates["error_message"] = *errorMessage
	}
	err := conn.db.Model(&Scan{}).
		Where("id IN ? AND status IN ?", ids, []ScanStatus{ScanStatusQueued, ScanStatusRunning}).
		Updates(updates).Error
	if err != nil {
		log.Error().Err(err).Ints("scan_ids", uintsToInts(ids)).Msg("Unable to finalize scans")
	}
	return err
}

// GetNonTerminalScansByBatch returns the scans of a batch that are still queued or running
func (conn *DatabaseConnection) GetNonTerminalScansByBatch(batchID uuid.UUID) ([]*Scan, error) {
	var scans []*Scan
	err := conn.db.Where("batch_id = ? AND status IN ?", batchID, []ScanStatus{ScanStatusQueued, ScanStatusRunning}).
		Find(&scans).Error
	if err != nil {
		return nil, err
	}
	return scans, nil
}

// GetOrphanedScans returns scans left queued or running, e.g. after a restart
func (conn *DatabaseConnection) GetOrphanedScans() ([]*Scan, error) {
	var scans []*Scan
	err := conn.db.Where("status IN ?", []ScanStatus{ScanStatusQueued, ScanStatusRunning}).
		Find(&scans).Error
	if err != nil {
		return nil, err
	}
	return scans, nil
}

// CancelScan marks a scan cancelled. In-flight tasks are allowed to finish;
// the orchestrator just stops feeding new ones.
func (conn *DatabaseConnection) CancelScan(id uint) error {
	return conn.SetScanStatus(id, ScanStatusCancelled, nil)
}

func uintsToInts(in []uint) []int {
	out := make([]int, len(in))
	for i, v := range in {
		out[i] = int(v)
	}
	return out
}
