package db

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// ScanSchedule describes a recurring full scan. The cron expression uses the
// standard five-field format.
type ScanSchedule struct {
	BaseModel

	Name           string   `json:"name" gorm:"size:255;not null"`
	CronExpression string   `json:"cron_expression" gorm:"size:100;not null"`
	ServiceAreaIDs []uint   `json:"service_area_ids" gorm:"serializer:json"`
	CategoryIDs    []uint   `json:"category_ids" gorm:"serializer:json"`
	EngineIDs      []string `json:"engine_ids" gorm:"serializer:json"`
	GridSize       int      `json:"grid_size" gorm:"default:7"`
	IsActive       bool     `json:"is_active" gorm:"default:true;index"`

	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	NextRunAt *time.Time `json:"next_run_at,omitempty"`
}

// TableHeaders returns table headers for CLI output
func (s ScanSchedule) TableHeaders() []string {
	return []string{"ID", "Name", "Cron", "Grid", "Active", "Last Run", "Next Run"}
}

// TableRow returns table row for CLI output
func (s ScanSchedule) TableRow() []string {
	lastRun, nextRun := "-", "-"
	if s.LastRunAt != nil {
		lastRun = s.LastRunAt.Format(time.RFC3339)
	}
	if s.NextRunAt != nil {
		nextRun = s.NextRunAt.Format(time.RFC3339)
	}
	return []string{
		fmt.Sprintf("%d", s.ID),
		s.Name,
		s.CronExpression,
		fmt.Sprintf("%dx%d", s.GridSize, s.GridSize),
		fmt.Sprintf("%t", s.IsActive),
		lastRun,
		nextRun,
	}
}

// CreateScanSchedule saves a new schedule
func (conn *DatabaseConnection) CreateScanSchedule(schedule *ScanSchedule) (*ScanSchedule, error) {
	if err := conn.db.Create(schedule).Error; err != nil {
		log.Error().Err(err).Str("name", schedule.Name).Msg("ScanSchedule creation failed")
		return nil, err
	}
	return schedule, nil
}

// GetScanScheduleByID retrieves a schedule by ID
func (conn *DatabaseConnection) GetScanScheduleByID(id uint) (*ScanSchedule, error) {
	var schedule ScanSchedule
	if err := conn.db.First(&schedule, id).Error; err != nil {
		return nil, err
	}
	return &schedule, nil
}

// ListActiveScanSchedules lists all active schedules
func (conn *DatabaseConnection) ListActiveScanSchedules() ([]*ScanSchedule, error) {
	var schedules []*ScanSchedule
	if err := conn.db.Where("is_active = ?", true).Find(&schedules).Error; err != nil {
		log.Error().Err(err).Msg("Unable to list active scan schedules")
		return nil, err
	}
	return schedules, nil
}

// ListScanSchedules lists all schedules
func (conn *DatabaseConnection) ListScanSchedules() ([]*ScanSchedule, error) {
	var schedules []*ScanSchedule
	if err := conn.db.Order("name asc").Find(&schedules).Error; err != nil {
		return nil, err
	}
	return schedules, nil
}

// UpdateScanScheduleRunTimes stamps last/next run after a firing
func (conn *DatabaseConnection) UpdateScanScheduleRunTimes(id uint, lastRunAt, nextRunAt *time.Time) error {
	updates := map[string]interface{}{}
	if lastRunAt != nil {
		updates["last_run_at"] = *lastRunAt
	}
	if nextRunAt != nil {
		updates["next_run_at"] = *nextRunAt
	}
	if len(updates) == 0 {
		return nil
	}
	err := conn.db.Model(&ScanSchedule{}).Where("id = ?", id).Updates(updates).Error
	if err != nil {
		log.Error().Err(err).Uint("schedule_id", id).Msg("Unable to update schedule run times")
	}
	return err
}

// UpdateScanSchedule saves changes to a schedule
func (conn *DatabaseConnection) UpdateScanSchedule(schedule *ScanSchedule) (*ScanSchedule, error) {
	if err := conn.db.Save(schedule).Error; err != nil {
		log.Error().Err(err).Uint("id", schedule.ID).Msg("Unable to update scan schedule")
		return nil, err
	}
	return schedule, nil
}
