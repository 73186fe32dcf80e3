package scheduler

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gridrank/gridrank/db"
	"github.com/gridrank/gridrank/pkg/scan/orchestrator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScheduleStore struct {
	mu        sync.Mutex
	schedules map[uint]*db.ScanSchedule
	runTimes  map[uint][2]*time.Time
}

func newFakeScheduleStore(schedules ...*db.ScanSchedule) *fakeScheduleStore {
	s := &fakeScheduleStore{
		schedules: make(map[uint]*db.ScanSchedule),
		runTimes:  make(map[uint][2]*time.Time),
	}
	for _, schedule := range schedules {
		s.schedules[schedule.ID] = schedule
	}
	return s
}

func (s *fakeScheduleStore) ListActiveScanSchedules() ([]*db.ScanSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*db.ScanSchedule
	for _, schedule := range s.schedules {
		if schedule.IsActive {
			out = append(out, schedule)
		}
	}
	return out, nil
}

func (s *fakeScheduleStore) GetScanScheduleByID(id uint) (*db.ScanSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	schedule, ok := s.schedules[id]
	if !ok {
		return nil, fmt.Errorf("schedule %d not found", id)
	}
	return schedule, nil
}

func (s *fakeScheduleStore) UpdateScanScheduleRunTimes(id uint, lastRunAt, nextRunAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runTimes[id] = [2]*time.Time{lastRunAt, nextRunAt}
	return nil
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []orchestrator.FullScanRequest
}

func (r *fakeRunner) CreateFullScan(req orchestrator.FullScanRequest) ([]*db.Scan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, req)
	return []*db.Scan{{}}, nil
}

func (r *fakeRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func schedule(id uint, cronExpr string, active bool) *db.ScanSchedule {
	s := &db.ScanSchedule{
		Name:           fmt.Sprintf("schedule-%d", id),
		CronExpression: cronExpr,
		EngineIDs:      []string{"google_search"},
		GridSize:       7,
		IsActive:       active,
	}
	s.ID = id
	return s
}

func TestStartRegistersActiveSchedules(t *testing.T) {
	store := newFakeScheduleStore(
		schedule(1, "0 6 * * *", true),
		schedule(2, "30 18 * * 1", true),
		schedule(3, "0 0 * * *", false),
	)
	s := NewScheduler(store, &fakeRunner{})
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Equal(t, 2, s.EntryCount())

	// Registration stamps next_run_at for each active schedule.
	store.mu.Lock()
	defer store.mu.Unlock()
	require.Contains(t, store.runTimes, uint(1))
	assert.NotNil(t, store.runTimes[1][1])
	assert.NotContains(t, store.runTimes, uint(3))
}

func TestInvalidCronIsSkipped(t *testing.T) {
	store := newFakeScheduleStore(
		schedule(1, "not a cron", true),
		schedule(2, "0 6 * * *", true),
	)
	s := NewScheduler(store, &fakeRunner{})
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Equal(t, 1, s.EntryCount())
}

func TestFireLaunchesFullScanAndStampsRunTimes(t *testing.T) {
	store := newFakeScheduleStore(schedule(1, "0 6 * * *", true))
	store.schedules[1].ServiceAreaIDs = []uint{4}
	store.schedules[1].CategoryIDs = []uint{7}
	runner := &fakeRunner{}
	s := NewScheduler(store, runner)

	s.fire(1)

	require.Equal(t, 1, runner.callCount())
	req := runner.calls[0]
	assert.Equal(t, []uint{4}, req.ServiceAreaIDs)
	assert.Equal(t, []uint{7}, req.CategoryIDs)
	assert.Equal(t, []string{"google_search"}, req.EngineIDs)
	assert.Equal(t, 7, req.GridSize)

	store.mu.Lock()
	defer store.mu.Unlock()
	times := store.runTimes[1]
	require.NotNil(t, times[0])
	require.NotNil(t, times[1])
	assert.True(t, times[1].After(*times[0]))
}

func TestFireSkipsDeactivatedSchedule(t *testing.T) {
	store := newFakeScheduleStore(schedule(1, "0 6 * * *", false))
	runner := &fakeRunner{}
	s := NewScheduler(store, runner)

	s.fire(1)
	assert.Equal(t, 0, runner.callCount())
}

func TestReloadScheduleReplacesEntry(t *testing.T) {
	store := newFakeScheduleStore(schedule(1, "0 6 * * *", true))
	s := NewScheduler(store, &fakeRunner{})
	require.NoError(t, s.Start())
	defer s.Stop()
	require.Equal(t, 1, s.EntryCount())

	// Same schedule reloaded keeps exactly one entry.
	require.NoError(t, s.ReloadSchedule(1))
	assert.Equal(t, 1, s.EntryCount())

	// Deactivation removes the entry.
	store.mu.Lock()
	store.schedules[1].IsActive = false
	store.mu.Unlock()
	require.NoError(t, s.ReloadSchedule(1))
	assert.Equal(t, 0, s.EntryCount())
}

func TestReloadAll(t *testing.T) {
	store := newFakeScheduleStore(schedule(1, "0 6 * * *", true))
	s := NewScheduler(store, &fakeRunner{})
	require.NoError(t, s.Start())
	defer s.Stop()

	store.mu.Lock()
	store.schedules[2] = schedule(2, "15 7 * * *", true)
	store.mu.Unlock()

	require.NoError(t, s.ReloadAll())
	assert.Equal(t, 2, s.EntryCount())
}
