// Package store owns the relational schema and database access for jobs,
// content units, and extracted entities.
//
// Lease acquisition, cursor advancement, and recovery resets are expressed
// as conditional updates (WHERE clauses re-checked at write time with
// RowsAffected inspected), not in-memory locks: workers are stateless and
// may run on different machines.
package store

import (
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config selects the database backend.
type Config struct {
	// Driver is "sqlite" or "postgres".
	Driver string
	// DSN is the driver-specific connection string. For sqlite a file path.
	DSN string
}

// Store wraps the gorm handle. Components hold a *Store and either use the
// model helpers or reach through DB for conditional updates.
type Store struct {
	db *gorm.DB
}

// Open connects to the configured database and migrates the schema.
func Open(cfg Config, log *slog.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite", "":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}

	if err := db.AutoMigrate(
		&Job{},
		&ContentUnit{},
		&Character{},
		&Term{},
		&TimelineEvent{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	if log != nil {
		log.Debug("database ready", "driver", cfg.Driver)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying gorm handle.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Transaction runs fn inside a single database transaction.
func (s *Store) Transaction(fn func(tx *gorm.DB) error) error {
	return s.db.Transaction(fn)
}

// CreateUnits inserts content units for a work.
func (s *Store) CreateUnits(units []*ContentUnit) error {
	if len(units) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for _, u := range units {
		if u.Status == "" {
			u.Status = UnitPending
		}
		if u.CreatedAt.IsZero() {
			u.CreatedAt = now
		}
	}
	if err := s.db.CreateInBatches(units, 100).Error; err != nil {
		return fmt.Errorf("failed to insert content units: %w", err)
	}
	return nil
}

// UnitsByWork returns all units of a work ordered by sequence number.
func (s *Store) UnitsByWork(workID string) ([]ContentUnit, error) {
	var units []ContentUnit
	if err := s.db.Where("work_id = ?", workID).Order("seq_num").Find(&units).Error; err != nil {
		return nil, fmt.Errorf("failed to load units for work %s: %w", workID, err)
	}
	return units, nil
}

// UnitsByIDs returns the named units ordered by sequence number.
func (s *Store) UnitsByIDs(ids []string) ([]ContentUnit, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var units []ContentUnit
	if err := s.db.Where("id IN ?", ids).Order("seq_num").Find(&units).Error; err != nil {
		return nil, fmt.Errorf("failed to load units: %w", err)
	}
	return units, nil
}

// JobByID loads a single job row.
func (s *Store) JobByID(id string) (*Job, error) {
	var job Job
	if err := s.db.First(&job, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}
	return &job, nil
}
