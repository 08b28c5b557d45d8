package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/sathizz7/streetview-capturing-sys/internal/maps"
	"github.com/sathizz7/streetview-capturing-sys/internal/models"
	"github.com/sathizz7/streetview-capturing-sys/internal/oracle"
	"github.com/sathizz7/streetview-capturing-sys/internal/pipeline"
	"github.com/sathizz7/streetview-capturing-sys/internal/repository"
	"github.com/sathizz7/streetview-capturing-sys/internal/spatial"
)

// CaptureService runs capture pipelines and persists their records so
// callers can poll long-running runs.
type CaptureService struct {
	repo     *repository.CaptureRunRepository
	maps     maps.Client
	judge    oracle.Judge
	defaults models.CaptureOptions
}

// NewCaptureService creates a new capture service
func NewCaptureService(repo *repository.CaptureRunRepository, mapsClient maps.Client, judge oracle.Judge, defaults models.CaptureOptions) *CaptureService {
	return &CaptureService{
		repo:     repo,
		maps:     mapsClient,
		judge:    judge,
		defaults: defaults.Normalize(),
	}
}

// CaptureBuilding executes the pipeline synchronously and returns the
// structured run outcome. This is the library entry point; the HTTP layer
// goes through CreateRun instead.
func (s *CaptureService) CaptureBuilding(ctx context.Context, target models.TargetLocation, opts models.CaptureOptions) *models.BuildingCaptureRun {
	p := pipeline.New(s.maps, s.judge, s.merge(opts))
	return p.Run(ctx, target)
}

// CreateRun validates the target, records a pending run and starts the
// pipeline in the background.
func (s *CaptureService) CreateRun(target models.TargetLocation, opts models.CaptureOptions, createdBy string) (*models.CaptureRunRecord, error) {
	pt := spatial.Point{Lat: target.Lat, Lon: target.Lon}
	if err := pt.Validate(); err != nil {
		return nil, err
	}

	rec := &models.CaptureRunRecord{
		ID:        uuid.NewString(),
		TargetLat: target.Lat,
		TargetLon: target.Lon,
		Status:    models.RunStatusPending,
		CreatedBy: createdBy,
	}
	if err := s.repo.Create(rec); err != nil {
		return nil, fmt.Errorf("failed to create run record: %w", err)
	}

	go s.execute(rec.ID, target, s.merge(opts))

	return rec, nil
}

// execute drives one background run to its terminal record state.
func (s *CaptureService) execute(id string, target models.TargetLocation, opts models.CaptureOptions) {
	log.Printf("capture run %s: starting for (%f, %f)", id, target.Lat, target.Lon)

	if err := s.repo.MarkRunning(id); err != nil {
		log.Printf("capture run %s: %v", id, err)
		return
	}

	run := pipeline.New(s.maps, s.judge, opts).Run(context.Background(), target)

	resultJSON, err := json.Marshal(run)
	if err != nil {
		log.Printf("capture run %s: failed to serialize result: %v", id, err)
		if dbErr := s.repo.MarkFailed(id, fmt.Sprintf("serialize result: %v", err)); dbErr != nil {
			log.Printf("capture run %s: %v", id, dbErr)
		}
		return
	}

	if err := s.repo.Complete(id, run.Status, run.FailureKind, string(resultJSON), run.ExecutionTime.Milliseconds()); err != nil {
		log.Printf("capture run %s: %v", id, err)
		return
	}

	log.Printf("capture run %s: finished with status %s in %v", id, run.Status, run.ExecutionTime)
}

// merge overlays per-run options on the service defaults.
func (s *CaptureService) merge(opts models.CaptureOptions) models.CaptureOptions {
	if opts.RoadSearchRadiusM <= 0 {
		opts.RoadSearchRadiusM = s.defaults.RoadSearchRadiusM
	}
	if opts.RoadSampleCount <= 0 {
		opts.RoadSampleCount = s.defaults.RoadSampleCount
	}
	if opts.MaxRefinementIterations <= 0 {
		opts.MaxRefinementIterations = s.defaults.MaxRefinementIterations
	}
	if opts.RefinementQualityThreshold <= 0 {
		opts.RefinementQualityThreshold = s.defaults.RefinementQualityThreshold
	}
	if opts.OverallTimeout <= 0 {
		opts.OverallTimeout = s.defaults.OverallTimeout
	}
	if opts.MaxFanout <= 0 {
		opts.MaxFanout = s.defaults.MaxFanout
	}
	return opts.Normalize()
}

// GetRun retrieves a run record by ID
func (s *CaptureService) GetRun(id string) (*models.CaptureRunRecord, error) {
	return s.repo.GetByID(id)
}

// ListRuns retrieves run records with optional status filter
func (s *CaptureService) ListRuns(status string, limit, offset int) ([]*models.CaptureRunRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(status, limit, offset)
}
