// Package ledger owns the persisted job state machine and the lease that
// serializes workers over it.
//
// Every transition is a conditional update: the WHERE clause restates the
// expected prior state and RowsAffected confirms the write landed. Workers
// are stateless, so the row itself is the only coordination point.
package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lorebind/chronicle/internal/store"
)

var (
	// ErrLeaseHeld means another worker holds an unexpired lease on the
	// job. Not a failure: the caller skips the job this cycle.
	ErrLeaseHeld = errors.New("job lease held by another worker")

	// ErrCursorConflict means the batch cursor moved underneath the
	// caller, indicating a competing worker advanced the job.
	ErrCursorConflict = errors.New("batch cursor changed concurrently")

	// ErrBadTransition means the requested status change is not allowed
	// from the job's current state.
	ErrBadTransition = errors.New("invalid job status transition")
)

// DefaultLeaseDuration bounds how long an abandoned lease blocks a job.
const DefaultLeaseDuration = 5 * time.Minute

// Lease is a held claim on a job row.
type Lease struct {
	JobID      string
	Token      string
	AcquiredAt time.Time
}

// Ledger mediates all job-row mutations.
type Ledger struct {
	store         *store.Store
	leaseDuration time.Duration
	now           func() time.Time
	logger        *slog.Logger
}

// New creates a ledger. leaseDuration <= 0 selects the default.
func New(st *store.Store, leaseDuration time.Duration, logger *slog.Logger) *Ledger {
	if leaseDuration <= 0 {
		leaseDuration = DefaultLeaseDuration
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		store:         st,
		leaseDuration: leaseDuration,
		now:           func() time.Time { return time.Now().UTC() },
		logger:        logger,
	}
}

// WithNow overrides the clock. Tests use this to expire leases without
// waiting.
func (l *Ledger) WithNow(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// Create persists a new pending job with its immutable batch plan.
func (l *Ledger) Create(workID, userID string, jobType store.JobType, plan store.BatchPlan, maxRetries int) (*store.Job, error) {
	if len(plan) == 0 {
		return nil, fmt.Errorf("job requires a non-empty batch plan")
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	job := &store.Job{
		ID:         uuid.NewString(),
		WorkID:     workID,
		UserID:     userID,
		Type:       jobType,
		Status:     store.JobPending,
		BatchPlan:  plan,
		MaxRetries: maxRetries,
		CreatedAt:  l.now(),
	}
	if err := l.store.DB().Create(job).Error; err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	l.logger.Info("job created",
		"job_id", job.ID, "work_id", workID, "type", jobType,
		"batches", len(plan), "units", plan.TotalUnits())
	return job, nil
}

// NextEligible returns up to limit jobs a worker may try to claim, oldest
// first: pending or in-progress, unlocked or lease-expired.
func (l *Ledger) NextEligible(limit int) ([]store.Job, error) {
	cutoff := l.now().Add(-l.leaseDuration)
	var jobs []store.Job
	err := l.store.DB().
		Where("status IN ? AND (locked_at IS NULL OR locked_at < ?)",
			[]store.JobStatus{store.JobPending, store.JobInProgress}, cutoff).
		Order("created_at").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query eligible jobs: %w", err)
	}
	return jobs, nil
}

// AcquireLease claims a job with a single compare-and-set update. The
// update succeeds only if the row is still unlocked (or lease-expired) and
// still runnable at write time; zero rows affected means another worker won
// and the caller must skip this job this cycle.
func (l *Ledger) AcquireLease(jobID string) (*Lease, error) {
	now := l.now()
	cutoff := now.Add(-l.leaseDuration)
	token := uuid.NewString()

	res := l.store.DB().Model(&store.Job{}).
		Where("id = ? AND status IN ? AND (locked_at IS NULL OR locked_at < ?)",
			jobID,
			[]store.JobStatus{store.JobPending, store.JobInProgress},
			cutoff).
		Updates(map[string]any{"locked_at": now, "locked_by": token})
	if res.Error != nil {
		return nil, fmt.Errorf("lease acquisition failed for job %s: %w", jobID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrLeaseHeld
	}

	l.logger.Debug("lease acquired", "job_id", jobID, "token", token)
	return &Lease{JobID: jobID, Token: token, AcquiredAt: now}, nil
}

// ReleaseLease clears the lock fields, but only if the caller still holds
// the lease. A lease lost to expiry is released by its new owner instead.
func (l *Ledger) ReleaseLease(lease *Lease) error {
	res := l.store.DB().Model(&store.Job{}).
		Where("id = ? AND locked_by = ?", lease.JobID, lease.Token).
		Updates(map[string]any{"locked_at": nil, "locked_by": ""})
	if res.Error != nil {
		return fmt.Errorf("lease release failed for job %s: %w", lease.JobID, res.Error)
	}
	if res.RowsAffected == 0 {
		l.logger.Warn("lease already reclaimed", "job_id", lease.JobID, "token", lease.Token)
	}
	return nil
}

// MarkStarted moves a pending job to in-progress on its first successful
// lease. A no-op when the job already started.
func (l *Ledger) MarkStarted(jobID string) error {
	now := l.now()
	res := l.store.DB().Model(&store.Job{}).
		Where("id = ? AND status = ?", jobID, store.JobPending).
		Updates(map[string]any{"status": store.JobInProgress, "started_at": now})
	if res.Error != nil {
		return fmt.Errorf("failed to mark job %s started: %w", jobID, res.Error)
	}
	return nil
}

// AdvanceCursor moves the batch cursor forward by one, conditioned on the
// cursor still being where the caller saw it. Reaching the end of the plan
// completes the job in the same write. The cursor never moves backwards.
func (l *Ledger) AdvanceCursor(job *store.Job) error {
	next := job.CurrentBatchIndex + 1
	if next > len(job.BatchPlan) {
		return fmt.Errorf("cursor %d past plan length %d for job %s", next, len(job.BatchPlan), job.ID)
	}

	updates := map[string]any{"current_batch_index": next}
	completed := next == len(job.BatchPlan)
	if completed {
		now := l.now()
		updates["status"] = store.JobCompleted
		updates["completed_at"] = now
		updates["last_error"] = ""
		updates["error_message"] = ""
	}

	res := l.store.DB().Model(&store.Job{}).
		Where("id = ? AND current_batch_index = ?", job.ID, job.CurrentBatchIndex).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to advance cursor for job %s: %w", job.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrCursorConflict
	}

	job.CurrentBatchIndex = next
	if completed {
		job.Status = store.JobCompleted
		l.logger.Info("job completed", "job_id", job.ID, "batches", len(job.BatchPlan))
	} else {
		l.logger.Debug("cursor advanced", "job_id", job.ID, "cursor", next, "of", len(job.BatchPlan))
	}
	return nil
}

// RecordFailure increments the retry count and stores the failure. The job
// flips to failed once the retry count reaches its maximum; otherwise it
// stays runnable and a later worker retries the same batch. Returns whether
// the job permanently failed.
func (l *Ledger) RecordFailure(job *store.Job, kind, message string) (bool, error) {
	newCount := job.RetryCount + 1
	failed := newCount >= job.MaxRetries

	updates := map[string]any{
		"retry_count":   newCount,
		"last_error":    kind,
		"error_message": message,
	}
	if failed {
		updates["status"] = store.JobFailed
		updates["completed_at"] = l.now()
	}

	res := l.store.DB().Model(&store.Job{}).
		Where("id = ?", job.ID).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to record failure for job %s: %w", job.ID, res.Error)
	}

	job.RetryCount = newCount
	job.LastError = kind
	job.ErrorMessage = message
	if failed {
		job.Status = store.JobFailed
		l.logger.Warn("job permanently failed",
			"job_id", job.ID, "retries", newCount, "error", message)
	} else {
		l.logger.Warn("job batch failed, will retry",
			"job_id", job.ID, "retries", newCount, "max_retries", job.MaxRetries, "error", message)
	}
	return failed, nil
}

// Pause requests a cooperative pause. The worker honors it at the next
// between-unit checkpoint; an in-flight upstream call completes first.
func (l *Ledger) Pause(jobID string) error {
	return l.transition(jobID,
		[]store.JobStatus{store.JobPending, store.JobInProgress},
		map[string]any{"status": store.JobPaused})
}

// Resume returns a paused job to in-progress on the same row; progress and
// plan are untouched, so processing continues from the persisted cursor.
func (l *Ledger) Resume(jobID string) error {
	return l.transition(jobID,
		[]store.JobStatus{store.JobPaused},
		map[string]any{"status": store.JobInProgress})
}

// Cancel terminates a job. Terminal and irreversible.
func (l *Ledger) Cancel(jobID string) error {
	return l.transition(jobID,
		[]store.JobStatus{store.JobPending, store.JobInProgress, store.JobPaused},
		map[string]any{"status": store.JobCancelled, "completed_at": l.now()})
}

func (l *Ledger) transition(jobID string, from []store.JobStatus, updates map[string]any) error {
	res := l.store.DB().Model(&store.Job{}).
		Where("id = ? AND status IN ?", jobID, from).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("status transition failed for job %s: %w", jobID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: job %s not in %v", ErrBadTransition, jobID, from)
	}
	return nil
}

// Reload fetches the job's current row. The worker polls this between
// content units to observe pause and cancel requests.
func (l *Ledger) Reload(jobID string) (*store.Job, error) {
	return l.store.JobByID(jobID)
}
