// Package scheduler fires full scans on cron expressions stored in the
// database.
package scheduler

import (
	"sync"
	"time"

	"github.com/gridrank/gridrank/db"
	"github.com/gridrank/gridrank/pkg/scan/orchestrator"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Store is the persistence surface the scheduler needs.
// *db.DatabaseConnection satisfies it.
type Store interface {
	ListActiveScanSchedules() ([]*db.ScanSchedule, error)
	GetScanScheduleByID(id uint) (*db.ScanSchedule, error)
	UpdateScanScheduleRunTimes(id uint, lastRunAt, nextRunAt *time.Time) error
}

// Runner launches full scan batches. *orchestrator.Orchestrator satisfies it.
type Runner interface {
	CreateFullScan(req orchestrator.FullScanRequest) ([]*db.Scan, error)
}

// Scheduler keeps one cron entry per active schedule.
type Scheduler struct {
	store  Store
	runner Runner

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[uint]cron.EntryID
	started bool
}

func NewScheduler(store Store, runner Runner) *Scheduler {
	return &Scheduler{
		store:   store,
		runner:  runner,
		cron:    cron.New(),
		entries: make(map[uint]cron.EntryID),
	}
}

// Start registers all active schedules and starts the cron loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	schedules, err := s.store.ListActiveScanSchedules()
	if err != nil {
		return err
	}
	for _, schedule := range schedules {
		s.registerLocked(schedule)
	}

	s.cron.Start()
	s.started = true
	log.Info().Int("schedules", len(s.entries)).Msg("Scan scheduler started")
	return nil
}

// registerLocked adds one schedule's cron entry. An invalid expression is
// logged and skipped so one bad row never takes the scheduler down.
func (s *Scheduler) registerLocked(schedule *db.ScanSchedule) {
	spec, err := cron.ParseStandard(schedule.CronExpression)
	if err != nil {
		log.Error().Err(err).
			Uint("schedule_id", schedule.ID).
			Str("cron", schedule.CronExpression).
			Msg("Invalid cron expression, schedule skipped")
		return
	}

	id := schedule.ID
	entryID := s.cron.Schedule(spec, cron.FuncJob(func() { s.fire(id) }))
	s.entries[id] = entryID

	next := spec.Next(time.Now())
	if err := s.store.UpdateScanScheduleRunTimes(id, nil, &next); err == nil {
		log.Debug().
			Uint("schedule_id", id).
			Time("next_run_at", next).
			Msg("Schedule registered")
	}
}

// fire launches the schedule's full scan and advances its run timestamps.
func (s *Scheduler) fire(scheduleID uint) {
	schedule, err := s.store.GetScanScheduleByID(scheduleID)
	if err != nil {
		log.Error().Err(err).Uint("schedule_id", scheduleID).Msg("Schedule lookup failed at fire time")
		return
	}
	if !schedule.IsActive {
		log.Debug().Uint("schedule_id", scheduleID).Msg("Schedule deactivated, skipping fire")
		return
	}

	log.Info().
		Uint("schedule_id", scheduleID).
		Str("name", schedule.Name).
		Msg("Schedule firing")

	scans, err := s.runner.CreateFullScan(orchestrator.FullScanRequest{
		ServiceAreaIDs: schedule.ServiceAreaIDs,
		CategoryIDs:    schedule.CategoryIDs,
		EngineIDs:      schedule.EngineIDs,
		GridSize:       schedule.GridSize,
	})
	if err != nil {
		log.Error().Err(err).Uint("schedule_id", scheduleID).Msg("Scheduled full scan failed to launch")
	} else {
		log.Info().Uint("schedule_id", scheduleID).Int("scans", len(scans)).Msg("Scheduled full scan launched")
	}

	now := time.Now()
	var next *time.Time
	if spec, err := cron.ParseStandard(schedule.CronExpression); err == nil {
		n := spec.Next(now)
		next = &n
	}
	if err := s.store.UpdateScanScheduleRunTimes(scheduleID, &now, next); err != nil {
		log.Error().Err(err).Uint("schedule_id", scheduleID).Msg("Unable to record schedule run times")
	}
}

// ReloadSchedule re-reads one schedule, replacing its cron entry. Stopping
// the old entry first prevents duplicate firing.
func (s *Scheduler) ReloadSchedule(scheduleID uint) error {
	schedule, err := s.store.GetScanScheduleByID(scheduleID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, ok := s.entries[scheduleID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, scheduleID)
	}
	if schedule.IsActive {
		s.registerLocked(schedule)
	}
	return nil
}

// ReloadAll drops every entry and re-registers from the database.
func (s *Scheduler) ReloadAll() error {
	schedules, err := s.store.ListActiveScanSchedules()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entryID := range s.entries {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}
	for _, schedule := range schedules {
		s.registerLocked(schedule)
	}
	return nil
}

// EntryCount returns the number of registered cron entries.
func (s *Scheduler) EntryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stop halts the cron loop and waits for an in-flight fire to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	started := s.started
	s.started = false
	s.mu.Unlock()
	if started {
		<-s.cron.Stop().Done()
		log.Info().Msg("Scan scheduler stopped")
	}
}
