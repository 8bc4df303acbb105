// Package recovery finds content units abandoned mid-processing by a
// crashed worker and exposes operator-triggered resets for them.
package recovery

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lorebind/chronicle/internal/store"
)

// DefaultStuckThreshold is how long a unit may sit in-progress without a
// heartbeat before it is considered abandoned.
const DefaultStuckThreshold = 10 * time.Minute

// ErrNotStuck means the unit no longer matched the staleness predicate at
// write time. Typically it completed between detection and resolution, and
// the reset was correctly refused.
var ErrNotStuck = errors.New("unit is not stuck")

// StuckUnit is one abandoned unit as shown to an operator.
type StuckUnit struct {
	UnitID    string
	WorkID    string
	SeqNum    int
	Title     string
	UpdatedAt time.Time

	// ProgressPercent estimates completed work from the size of the
	// accumulated partial output relative to the unit body.
	ProgressPercent int
	// HasPartialOutput reports whether a mid-unit checkpoint exists, which
	// decides between Reset (keep it) and Clear (discard it).
	HasPartialOutput bool
}

// Detector queries for and resolves stuck units.
type Detector struct {
	store     *store.Store
	threshold time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// New creates a detector. threshold <= 0 selects the default.
func New(st *store.Store, threshold time.Duration, logger *slog.Logger) *Detector {
	if threshold <= 0 {
		threshold = DefaultStuckThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		store:     st,
		threshold: threshold,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger,
	}
}

// WithNow overrides the clock for tests.
func (d *Detector) WithNow(now func() time.Time) *Detector {
	d.now = now
	return d
}

// ListStuck returns units that are in-progress and past the staleness
// threshold, newest work first. workID narrows the scope when non-empty.
func (d *Detector) ListStuck(workID string) ([]StuckUnit, error) {
	cutoff := d.now().Add(-d.threshold)

	q := d.store.DB().
		Where("status = ? AND updated_at < ?", store.UnitInProgress, cutoff)
	if workID != "" {
		q = q.Where("work_id = ?", workID)
	}

	var units []store.ContentUnit
	if err := q.Order("work_id, seq_num").Find(&units).Error; err != nil {
		return nil, fmt.Errorf("failed to query stuck units: %w", err)
	}

	out := make([]StuckUnit, 0, len(units))
	for _, u := range units {
		out = append(out, StuckUnit{
			UnitID:           u.ID,
			WorkID:           u.WorkID,
			SeqNum:           u.SeqNum,
			Title:            u.Title,
			UpdatedAt:        u.UpdatedAt,
			ProgressPercent:  progressPercent(&u),
			HasPartialOutput: u.PartialOutput != "",
		})
	}
	return out, nil
}

// Reset returns a stuck unit to pending, retaining its chunk checkpoint so
// reprocessing resumes mid-unit. The staleness predicate is re-checked in
// the update itself: a unit that finished after detection is left alone.
func (d *Detector) Reset(unitID string) error {
	return d.resolve(unitID, map[string]any{
		"status":      store.UnitPending,
		"fail_reason": "",
	})
}

// Clear returns a stuck unit to pending and discards its checkpoint,
// forcing a full reprocess of the unit.
func (d *Detector) Clear(unitID string) error {
	return d.resolve(unitID, map[string]any{
		"status":         store.UnitPending,
		"fail_reason":    "",
		"chunk_index":    0,
		"partial_output": "",
	})
}

func (d *Detector) resolve(unitID string, updates map[string]any) error {
	cutoff := d.now().Add(-d.threshold)
	updates["updated_at"] = d.now()

	res := d.store.DB().Model(&store.ContentUnit{}).
		Where("id = ? AND status = ? AND updated_at < ?", unitID, store.UnitInProgress, cutoff).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to resolve unit %s: %w", unitID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotStuck, unitID)
	}
	d.logger.Info("stuck unit resolved", "unit_id", unitID)
	return nil
}

// progressPercent estimates completion from accumulated output size. The
// body length is only a proxy for total work, so the estimate is capped
// below 100 until the unit actually finishes.
func progressPercent(u *store.ContentUnit) int {
	if u.Status == store.UnitDone {
		return 100
	}
	if u.PartialOutput == "" || len(u.Body) == 0 {
		return 0
	}
	pct := len(u.PartialOutput) * 100 / len(u.Body)
	if pct > 99 {
		pct = 99
	}
	return pct
}
