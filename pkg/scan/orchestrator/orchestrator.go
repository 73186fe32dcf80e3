// Package orchestrator drives scans end to end: it expands scan requests
// into grid point tasks, feeds the per-engine queue, resolves results into
// businesses and rankings, and watches running scans to completion.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gridrank/gridrank/db"
	"github.com/gridrank/gridrank/lib"
	"github.com/gridrank/gridrank/pkg/engine"
	"github.com/gridrank/gridrank/pkg/geo"
	"github.com/gridrank/gridrank/pkg/match"
	"github.com/gridrank/gridrank/pkg/scan/queue"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Store is the persistence surface the orchestrator needs.
// *db.DatabaseConnection satisfies it.
type Store interface {
	GetServiceAreaByID(id uint) (*db.ServiceArea, error)
	ListActiveServiceAreas() ([]*db.ServiceArea, error)
	GetCategoryByID(id uint) (*db.Category, error)
	ListActiveCategories() ([]*db.Category, error)
	ListActiveKeywordsForCategory(categoryID uint) ([]*db.Keyword, error)

	CreateScan(scan *db.Scan) (*db.Scan, error)
	GetScanByID(id uint) (*db.Scan, error)
	SetScanStatus(id uint, status db.ScanStatus, errorMessage *string) error
	IncrementScanPointsCompleted(id uint) error
	FinalizeScans(ids []uint, status db.ScanStatus, errorMessage *string) error
	GetNonTerminalScansByBatch(batchID uuid.UUID) ([]*db.Scan, error)
	GetOrphanedScans() ([]*db.Scan, error)
	CancelScan(id uint) error

	CreateScanPoints(points []*db.ScanPoint) error
	SetScanPointStatus(id uint, status db.ScanPointStatus) error
	GetPendingScanPoints(scanID uint) ([]*db.ScanPoint, error)

	CreateScanRanking(ranking *db.ScanRanking) (*db.ScanRanking, error)
	CreateReviewSnapshot(snapshot *db.ReviewSnapshot) (*db.ReviewSnapshot, error)
}

// Resolver matches parsed listings to business records.
type Resolver interface {
	Resolve(parsed engine.ParsedBusiness, engineID string, categoryID *uint) (*match.Resolution, error)
}

// ScanRequest describes one scan to run.
type ScanRequest struct {
	ServiceAreaID uint
	CategoryID    uint
	Keyword       string
	EngineID      string
	GridSize      int
	Priority      int
}

// FullScanRequest expands to the cross product of areas, categories (with
// all their active keywords) and engines. Empty slices mean "all active".
type FullScanRequest struct {
	ServiceAreaIDs []uint
	CategoryIDs    []uint
	EngineIDs      []string
	GridSize       int
}

// Orchestrator owns scan lifecycle management.
type Orchestrator struct {
	store    Store
	registry *engine.Registry
	matcher  Resolver
	queue    *queue.Queue

	pollInterval      time.Duration
	scanTimeout       time.Duration
	batchPollInterval time.Duration
	batchTimeout      time.Duration
	defaultGridSize   int
	googleDailyCap    int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewOrchestrator(store Store, registry *engine.Registry, matcher Resolver) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		store:             store,
		registry:          registry,
		matcher:           matcher,
		pollInterval:      durationConfig("scan.monitor.poll_interval", 5*time.Second),
		scanTimeout:       durationConfig("scan.monitor.timeout", 30*time.Minute),
		batchPollInterval: durationConfig("scan.monitor.batch_poll_interval", 15*time.Second),
		batchTimeout:      durationConfig("scan.monitor.batch_timeout", 6*time.Hour),
		defaultGridSize:   intConfig("scan.default_grid_size", 7),
		googleDailyCap:    intConfig("queue.google_daily_cap", 200),
		ctx:               ctx,
		cancel:            cancel,
	}
	o.queue = queue.NewQueue(o.handleTask, o.pauseReason)
	return o
}

func durationConfig(key string, fallback time.Duration) time.Duration {
	if d := viper.GetDuration(key); d > 0 {
		return d
	}
	return fallback
}

func intConfig(key string, fallback int) int {
	if n := viper.GetInt(key); n > 0 {
		return n
	}
	return fallback
}

// Queue exposes the task queue for introspection.
func (o *Orchestrator) Queue() *queue.Queue {
	return o.queue
}

// pauseReason gates queue workers on engine health and the shared Google
// reputation-group daily cap.
func (o *Orchestrator) pauseReason(engineID string) string {
	e, err := o.registry.Get(engineID)
	if err != nil {
		return "unknown_engine"
	}
	if status := e.Status(); status != engine.StatusHealthy {
		return string(status)
	}
	if group := e.Config().ReputationGroup; group != "" {
		if o.registry.GroupRequestsToday(group) >= o.googleDailyCap {
			return "daily_group_cap"
		}
	}
	return ""
}

// CreateScan validates, persists and enqueues one scan, then monitors it
// to completion in the background.
func (o *Orchestrator) CreateScan(req ScanRequest) (*db.Scan, error) {
	scan, points, area, err := o.prepareScan(req, nil)
	if err != nil {
		return nil, err
	}
	o.enqueueScan(scan, points, area, req.Priority)
	o.wg.Add(1)
	go o.monitorScan(scan.ID)
	return scan, nil
}

// prepareScan validates a request and persists the scan with its grid.
func (o *Orchestrator) prepareScan(req ScanRequest, batchID *uuid.UUID) (*db.Scan, []*db.ScanPoint, *db.ServiceArea, error) {
	gridSize := req.GridSize
	if gridSize == 0 {
		gridSize = o.defaultGridSize
	}
	if !geo.IsValidGridSize(gridSize) {
		return nil, nil, nil, fmt.Errorf("invalid grid size %d", gridSize)
	}
	if !o.registry.Has(req.EngineID) {
		return nil, nil, nil, fmt.Errorf("unknown engine: %s", req.EngineID)
	}
	if strings.TrimSpace(req.Keyword) == "" {
		return nil, nil, nil, fmt.Errorf("keyword is required")
	}

	area, err := o.store.GetServiceAreaByID(req.ServiceAreaID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading service area: %w", err)
	}
	if !area.IsActive {
		return nil, nil, nil, fmt.Errorf("service area %d is inactive", area.ID)
	}
	category, err := o.store.GetCategoryByID(req.CategoryID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading category: %w", err)
	}
	if !category.IsActive {
		return nil, nil, nil, fmt.Errorf("category %d is inactive", category.ID)
	}

	gridPoints, err := geo.Generate(area.CenterLat, area.CenterLng, area.RadiusMiles, gridSize)
	if err != nil {
		return nil, nil, nil, err
	}

	now := time.Now()
	scan := &db.Scan{
		ServiceAreaID: area.ID,
		CategoryID:    category.ID,
		Keyword:       req.Keyword,
		EngineID:      req.EngineID,
		GridSize:      gridSize,
		RadiusMiles:   area.RadiusMiles,
		Status:        db.ScanStatusQueued,
		PointsTotal:   len(gridPoints),
		BatchID:       batchID,
		ScheduledAt:   &now,
	}
	scan, err = o.store.CreateScan(scan)
	if err != nil {
		return nil, nil, nil, err
	}

	points := make([]*db.ScanPoint, len(gridPoints))
	for i, gp := range gridPoints {
		points[i] = &db.ScanPoint{
			ScanID:  scan.ID,
			GridRow: gp.Row,
			GridCol: gp.Col,
			Lat:     gp.Lat,
			Lng:     gp.Lng,
			Status:  db.ScanPointStatusPending,
		}
	}
	if err := o.store.CreateScanPoints(points); err != nil {
		msg := "grid point creation failed"
		_ = o.store.SetScanStatus(scan.ID, db.ScanStatusFailed, &msg)
		return nil, nil, nil, err
	}

	log.Info().
		Uint("scan_id", scan.ID).
		Str("keyword", scan.Keyword).
		Str("engine", scan.EngineID).
		Int("grid_size", gridSize).
		Msg("Scan created")
	return scan, points, area, nil
}

// enqueueScan marks the scan running and pushes its point tasks.
func (o *Orchestrator) enqueueScan(scan *db.Scan, points []*db.ScanPoint, area *db.ServiceArea, priority int) {
	_ = o.store.SetScanStatus(scan.ID, db.ScanStatusRunning, nil)

	tasks := make([]queue.Task, len(points))
	for i, p := range points {
		tasks[i] = queue.Task{
			ScanID:      scan.ID,
			ScanPointID: p.ID,
			EngineID:    scan.EngineID,
			Query:       scan.Keyword,
			Priority:    priority,
			GridRow:     p.GridRow,
			GridCol:     p.GridCol,
			Lat:         p.Lat,
			Lng:         p.Lng,
			City:        area.Name,
			State:       area.State,
		}
	}
	o.queue.EnqueueBatch(tasks)
}

// CreateFullScan expands the request across areas, categories, keywords and
// engines under one batch ID, monitored by a single batch watcher.
func (o *Orchestrator) CreateFullScan(req FullScanRequest) ([]*db.Scan, error) {
	areas, err := o.resolveAreas(req.ServiceAreaIDs)
	if err != nil {
		return nil, err
	}
	categories, err := o.resolveCategories(req.CategoryIDs)
	if err != nil {
		return nil, err
	}
	engineIDs := lib.GetUniqueItems(req.EngineIDs)
	if len(engineIDs) == 0 {
		engineIDs = o.registry.IDs()
	}

	batchID := uuid.New()
	var scans []*db.Scan
	for _, area := range areas {
		for _, category := range categories {
			keywords, err := o.categoryKeywords(category)
			if err != nil {
				return nil, err
			}
			for _, keyword := range keywords {
				for _, engineID := range engineIDs {
					scan, points, scanArea, err := o.prepareScan(ScanRequest{
						ServiceAreaID: area.ID,
						CategoryID:    category.ID,
						Keyword:       keyword,
						EngineID:      engineID,
						GridSize:      req.GridSize,
					}, &batchID)
					if err != nil {
						log.Error().Err(err).
							Uint("area_id", area.ID).
							Uint("category_id", category.ID).
							Str("engine", engineID).
							Msg("Skipping scan in full scan expansion")
						continue
					}
					o.enqueueScan(scan, points, scanArea, 0)
					scans = append(scans, scan)
				}
			}
		}
	}
	if len(scans) == 0 {
		return nil, fmt.Errorf("full scan expanded to zero scans")
	}

	log.Info().
		Str("batch_id", batchID.String()).
		Int("scans", len(scans)).
		Msg("Full scan batch created")
	o.wg.Add(1)
	go o.monitorBatch(batchID)
	return scans, nil
}

func (o *Orchestrator) resolveAreas(ids []uint) ([]*db.ServiceArea, error) {
	if len(ids) == 0 {
		areas, err := o.store.ListActiveServiceAreas()
		if err != nil {
			return nil, err
		}
		if len(areas) == 0 {
			return nil, fmt.Errorf("no active service areas")
		}
		return areas, nil
	}
	areas := make([]*db.ServiceArea, 0, len(ids))
	var seen []uint
	for _, id := range ids {
		if lib.SliceContainsUint(seen, id) {
			continue
		}
		seen = append(seen, id)
		area, err := o.store.GetServiceAreaByID(id)
		if err != nil {
			return nil, fmt.Errorf("loading service area %d: %w", id, err)
		}
		areas = append(areas, area)
	}
	return areas, nil
}

func (o *Orchestrator) resolveCategories(ids []uint) ([]*db.Category, error) {
	if len(ids) == 0 {
		categories, err := o.store.ListActiveCategories()
		if err != nil {
			return nil, err
		}
		if len(categories) == 0 {
			return nil, fmt.Errorf("no active categories")
		}
		return categories, nil
	}
	categories := make([]*db.Category, 0, len(ids))
	var seen []uint
	for _, id := range ids {
		if lib.SliceContainsUint(seen, id) {
			continue
		}
		seen = append(seen, id)
		category, err := o.store.GetCategoryByID(id)
		if err != nil {
			return nil, fmt.Errorf("loading category %d: %w", id, err)
		}
		categories = append(categories, category)
	}
	return categories, nil
}

// categoryKeywords returns the category's active keywords, falling back to
// the category name itself when none are defined.
func (o *Orchestrator) categoryKeywords(category *db.Category) ([]string, error) {
	keywords, err := o.store.ListActiveKeywordsForCategory(category.ID)
	if err != nil {
		return nil, err
	}
	if len(keywords) == 0 {
		return []string{category.Name}, nil
	}
	out := make([]string, len(keywords))
	for i, kw := range keywords {
		out[i] = kw.Text
	}
	return out, nil
}

// handleTask processes one grid point: run the search, resolve listings to
// businesses, persist rankings and review snapshots. A failed point still
// counts towards scan completion so the scan terminates.
func (o *Orchestrator) handleTask(ctx context.Context, task queue.Task) error {
	scan, err := o.store.GetScanByID(task.ScanID)
	if err != nil {
		return fmt.Errorf("loading scan %d: %w", task.ScanID, err)
	}
	if scan.Status.IsTerminal() {
		log.Debug().Uint("scan_id", task.ScanID).Msg("Dropping task for terminal scan")
		return nil
	}

	if err := o.store.SetScanPointStatus(task.ScanPointID, db.ScanPointStatusRunning); err != nil {
		return err
	}

	eng, err := o.registry.Get(task.EngineID)
	if err != nil {
		return o.failPoint(task, err)
	}

	point := geo.GridPoint{Row: task.GridRow, Col: task.GridCol, Lat: task.Lat, Lng: task.Lng}
	result, err := eng.Search(ctx, task.Query, point, task.City, task.State)
	if err != nil {
		return o.failPoint(task, err)
	}

	if result.Metadata.CaptchaDetected {
		// The engine already blocked itself. The point is spent for this
		// cycle: it fails and counts toward completion so the scan can
		// still terminate.
		log.Warn().
			Uint("scan_id", task.ScanID).
			Uint("scan_point_id", task.ScanPointID).
			Str("engine", task.EngineID).
			Msg("CAPTCHA detected, failing scan point")
		if err := o.store.SetScanPointStatus(task.ScanPointID, db.ScanPointStatusFailed); err != nil {
			return err
		}
		return o.store.IncrementScanPointsCompleted(task.ScanID)
	}

	categoryID := scan.CategoryID
	for _, parsed := range result.Businesses {
		resolution, err := o.matcher.Resolve(parsed, task.EngineID, &categoryID)
		if err != nil {
			log.Error().Err(err).
				Str("name", parsed.Name).
				Uint("scan_point_id", task.ScanPointID).
				Msg("Listing resolution failed")
			continue
		}

		ranking := &db.ScanRanking{
			ScanPointID:  task.ScanPointID,
			BusinessID:   resolution.Business.ID,
			RankPosition: parsed.RankPosition,
			ResultType:   string(parsed.ResultType),
			Snippet:      parsed.Snippet,
		}
		if _, err := o.store.CreateScanRanking(ranking); err != nil {
			continue
		}

		if parsed.Rating != nil && parsed.ReviewCount != nil {
			if source := reviewSource(task.EngineID); source != "" {
				_, _ = o.store.CreateReviewSnapshot(&db.ReviewSnapshot{
					BusinessID:  resolution.Business.ID,
					Source:      source,
					Rating:      *parsed.Rating,
					ReviewCount: *parsed.ReviewCount,
				})
			}
		}
	}

	if err := o.store.SetScanPointStatus(task.ScanPointID, db.ScanPointStatusCompleted); err != nil {
		return err
	}
	return o.store.IncrementScanPointsCompleted(task.ScanID)
}

// failPoint marks the point failed but still advances the completion
// counter, otherwise a single dead point would hang the scan forever.
func (o *Orchestrator) failPoint(task queue.Task, cause error) error {
	log.Error().Err(cause).
		Uint("scan_id", task.ScanID).
		Uint("scan_point_id", task.ScanPointID).
		Str("engine", task.EngineID).
		Msg("Scan point failed")
	if err := o.store.SetScanPointStatus(task.ScanPointID, db.ScanPointStatusFailed); err != nil {
		return err
	}
	if err := o.store.IncrementScanPointsCompleted(task.ScanID); err != nil {
		return err
	}
	return cause
}

func reviewSource(engineID string) string {
	switch {
	case strings.HasPrefix(engineID, "google"):
		return "google"
	case strings.HasPrefix(engineID, "bing"):
		return "bing"
	default:
		return ""
	}
}

// monitorScan polls one scan until every point is accounted for or the
// timeout lapses.
func (o *Orchestrator) monitorScan(scanID uint) {
	defer o.wg.Done()
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(o.scanTimeout)
	defer deadline.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-deadline.C:
			msg := "scan timed out"
			_ = o.store.SetScanStatus(scanID, db.ScanStatusFailed, &msg)
			log.Warn().Uint("scan_id", scanID).Msg("Scan monitor timed out")
			return
		case <-ticker.C:
			scan, err := o.store.GetScanByID(scanID)
			if err != nil {
				log.Error().Err(err).Uint("scan_id", scanID).Msg("Scan monitor poll failed")
				continue
			}
			if scan.Status.IsTerminal() {
				return
			}
			if scan.PointsCompleted >= scan.PointsTotal {
				_ = o.store.SetScanStatus(scanID, db.ScanStatusCompleted, nil)
				log.Info().Uint("scan_id", scanID).Msg("Scan completed")
				return
			}
			// The worker stays marked processing until its last increment
			// persists, so an idle queue with an incomplete counter means
			// the scan's work drained without finishing.
			if o.queue.IsIdle(scan.EngineID) {
				refreshed, err := o.store.GetScanByID(scanID)
				if err != nil || refreshed.Status.IsTerminal() {
					continue
				}
				if refreshed.PointsCompleted >= refreshed.PointsTotal {
					_ = o.store.SetScanStatus(scanID, db.ScanStatusCompleted, nil)
					log.Info().Uint("scan_id", scanID).Msg("Scan completed")
					return
				}
				msg := "engine queue empty before all points completed"
				_ = o.store.SetScanStatus(scanID, db.ScanStatusFailed, &msg)
				log.Warn().Uint("scan_id", scanID).Msg("Scan stalled with empty queue")
				return
			}
		}
	}
}

// monitorBatch polls a full-scan batch, completing member scans as their
// counters fill and failing stragglers at the batch timeout.
func (o *Orchestrator) monitorBatch(batchID uuid.UUID) {
	defer o.wg.Done()
	ticker := time.NewTicker(o.batchPollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(o.batchTimeout)
	defer deadline.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-deadline.C:
			remaining, err := o.store.GetNonTerminalScansByBatch(batchID)
			if err == nil && len(remaining) > 0 {
				ids := make([]uint, len(remaining))
				for i, scan := range remaining {
					ids[i] = scan.ID
				}
				msg := "batch timed out"
				_ = o.store.FinalizeScans(ids, db.ScanStatusFailed, &msg)
			}
			log.Warn().Str("batch_id", batchID.String()).Msg("Batch monitor timed out")
			return
		case <-ticker.C:
			remaining, err := o.store.GetNonTerminalScansByBatch(batchID)
			if err != nil {
				log.Error().Err(err).Str("batch_id", batchID.String()).Msg("Batch monitor poll failed")
				continue
			}
			if len(remaining) == 0 {
				log.Info().Str("batch_id", batchID.String()).Msg("Full scan batch completed")
				return
			}
			var done, stalled []uint
			for _, scan := range remaining {
				if scan.PointsCompleted >= scan.PointsTotal {
					done = append(done, scan.ID)
					continue
				}
				if !o.queue.IsIdle(scan.EngineID) {
					continue
				}
				// Counters may have caught up between the batch read and the
				// idle check, so re-read before declaring the scan stalled.
				refreshed, err := o.store.GetScanByID(scan.ID)
				if err != nil || refreshed.Status.IsTerminal() {
					continue
				}
				if refreshed.PointsCompleted >= refreshed.PointsTotal {
					done = append(done, scan.ID)
				} else {
					stalled = append(stalled, scan.ID)
				}
			}
			if len(done) > 0 {
				_ = o.store.FinalizeScans(done, db.ScanStatusCompleted, nil)
			}
			if len(stalled) > 0 {
				msg := "engine queue empty before all points completed"
				_ = o.store.FinalizeScans(stalled, db.ScanStatusFailed, &msg)
				log.Warn().
					Str("batch_id", batchID.String()).
					Int("scans", len(stalled)).
					Msg("Batch scans stalled with empty queues")
			}
		}
	}
}

// RecoverOrphanedScans re-enqueues scans left queued or running by a
// previous process. Scans whose points all finished are just finalized.
func (o *Orchestrator) RecoverOrphanedScans() error {
	orphans, err := o.store.GetOrphanedScans()
	if err != nil {
		return err
	}
	if len(orphans) == 0 {
		return nil
	}

	batches := make(map[uuid.UUID]bool)
	for _, scan := range orphans {
		pending, err := o.store.GetPendingScanPoints(scan.ID)
		if err != nil {
			log.Error().Err(err).Uint("scan_id", scan.ID).Msg("Orphan recovery point lookup failed")
			continue
		}
		if len(pending) == 0 {
			_ = o.store.SetScanStatus(scan.ID, db.ScanStatusCompleted, nil)
			continue
		}

		area, err := o.store.GetServiceAreaByID(scan.ServiceAreaID)
		if err != nil {
			log.Error().Err(err).Uint("scan_id", scan.ID).Msg("Orphan recovery area lookup failed")
			continue
		}
		o.enqueueScan(scan, pending, area, 0)

		if scan.BatchID != nil {
			batches[*scan.BatchID] = true
		} else {
			o.wg.Add(1)
			go o.monitorScan(scan.ID)
		}
		log.Info().
			Uint("scan_id", scan.ID).
			Int("pending_points", len(pending)).
			Msg("Recovered orphaned scan")
	}

	for batchID := range batches {
		o.wg.Add(1)
		go o.monitorBatch(batchID)
	}
	return nil
}

// CancelScan stops feeding a scan's remaining points. In-flight tasks run
// to completion; the task handler drops the rest on seeing the terminal
// status.
func (o *Orchestrator) CancelScan(scanID uint) error {
	return o.store.CancelScan(scanID)
}

// Stop shuts down the queue and waits for monitors to exit.
func (o *Orchestrator) Stop() {
	o.cancel()
	o.queue.Stop()
	o.wg.Wait()
}
