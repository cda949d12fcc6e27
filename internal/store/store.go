package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mustafarshd/corec-tracker/internal/model"
)

var (
	// ErrUnknownFacility indicates an observation for a facility that is not
	// in the registry. This is a configuration bug, surfaced loudly.
	ErrUnknownFacility = errors.New("facility not registered")
	// ErrMissingTimestamp indicates an observation without a collection time.
	ErrMissingTimestamp = errors.New("observation has no collection timestamp")
)

// Store defines the persistence operations for observations and runs.
type Store interface {
	// Append writes one observation. Append-only: no update or delete is
	// exposed to callers.
	Append(ctx context.Context, obs model.Observation) error
	// Query returns observations with collected_at in [from, to), ordered
	// ascending. An empty window yields an empty slice, never an error.
	Query(ctx context.Context, facilityID string, from, to time.Time) ([]model.Observation, error)
	// Latest returns the most recent observation, or nil if the facility has
	// never been observed.
	Latest(ctx context.Context, facilityID string) (*model.Observation, error)
	// RecordRun persists pass metadata. Its failure never affects
	// observations already appended by that pass.
	RecordRun(ctx context.Context, run *model.CollectionRun) error
	// Runs returns the most recent collection runs, newest first.
	Runs(ctx context.Context, limit int) ([]model.CollectionRun, error)
	// Registry exposes the immutable facility registry.
	Registry() *Registry
}

// gormStore implements Store using GORM.
type gormStore struct {
	db       *gorm.DB
	registry *Registry

	// mu guards locks; each per-facility mutex serializes appends for that
	// facility while appends for distinct facilities proceed concurrently.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewGormStore creates a new GORM-backed store over the given registry.
func NewGormStore(db *gorm.DB, registry *Registry) Store {
	return &gormStore{
		db:       db,
		registry: registry,
		locks:    make(map[string]*sync.Mutex),
	}
}

// SeedFacilities upserts the registry into the facilities table so foreign
// references and the listing endpoints always see the configured set.
func SeedFacilities(ctx context.Context, db *gorm.DB, registry *Registry) error {
	facilities := registry.All()
	if err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "capacity", "updated_at"}),
	}).Create(&facilities).Error; err != nil {
		return fmt.Errorf("failed to seed facilities: %w", err)
	}
	return nil
}

func (s *gormStore) Registry() *Registry {
	return s.registry
}

func (s *gormStore) facilityLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *gormStore) Append(ctx context.Context, obs model.Observation) error {
	if _, ok := s.registry.Lookup(obs.FacilityID); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFacility, obs.FacilityID)
	}
	if obs.CollectedAt.IsZero() {
		return fmt.Errorf("%w: facility %q", ErrMissingTimestamp, obs.FacilityID)
	}
	obs.CollectedAt = obs.CollectedAt.UTC()
	if obs.Status == "" {
		obs.Status = model.StatusUnknown
	}

	l := s.facilityLock(obs.FacilityID)
	l.Lock()
	defer l.Unlock()

	// A truly simultaneous write for the same (facility, timestamp) resolves
	// last-writer-wins rather than corrupting or duplicating the row.
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "facility_id"}, {Name: "collected_at"}},
		DoUpdates: clause.AssignmentColumns([]string{"occupancy_count", "occupancy_percent", "status"}),
	}).Create(&obs).Error; err != nil {
		return fmt.Errorf("failed to append observation for facility %q: %w", obs.FacilityID, err)
	}
	return nil
}

func (s *gormStore) Query(ctx context.Context, facilityID string, from, to time.Time) ([]model.Observation, error) {
	var observations []model.Observation
	err := s.db.WithContext(ctx).
		Where("facility_id = ? AND collected_at >= ? AND collected_at < ?", facilityID, from.UTC(), to.UTC()).
		Order("collected_at ASC").
		Find(&observations).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query observations for facility %q: %w", facilityID, err)
	}
	return observations, nil
}

func (s *gormStore) Latest(ctx context.Context, facilityID string) (*model.Observation, error) {
	var obs model.Observation
	err := s.db.WithContext(ctx).
		Where("facility_id = ?", facilityID).
		Order("collected_at DESC").
		First(&obs).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest observation for facility %q: %w", facilityID, err)
	}
	return &obs, nil
}

func (s *gormStore) RecordRun(ctx context.Context, run *model.CollectionRun) error {
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("failed to record collection run: %w", err)
	}
	return nil
}

func (s *gormStore) Runs(ctx context.Context, limit int) ([]model.CollectionRun, error) {
	var runs []model.CollectionRun
	q := s.db.WithContext(ctx).Preload("Outcomes").Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to list collection runs: %w", err)
	}
	return runs, nil
}
