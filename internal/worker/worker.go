// Package worker implements the periodic invocation that advances jobs.
//
// Each invocation is short-lived and stateless: it leases at most one
// eligible job, processes the single batch under the job's cursor, folds
// the results into storage, advances the cursor, and releases the lease.
// Everything it needs to resume after a crash lives in the job row; an
// abandoned lease simply expires and the next invocation reclaims it.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lorebind/chronicle/internal/fallback"
	"github.com/lorebind/chronicle/internal/ledger"
	"github.com/lorebind/chronicle/internal/merge"
	"github.com/lorebind/chronicle/internal/store"
	"github.com/lorebind/chronicle/internal/upstream"
)

// Cooperative interruption sentinels, observed between content units and
// never mid-call: an in-flight upstream request always completes or times
// out first.
var (
	errJobPaused    = errors.New("job paused")
	errJobCancelled = errors.New("job cancelled")
)

// Config tunes a worker invocation.
type Config struct {
	// Budget is the hard wall-clock limit for one invocation.
	Budget time.Duration
	// Fanout bounds in-batch parallelism.
	Fanout int
	// AnalyzeBatchChars is the size budget one analysis batch was planned
	// against; a lone unit larger than this is analyzed in sub-chunks.
	AnalyzeBatchChars int
	// TranslateOutputTokens is the smallest feasible completion budget a
	// translation chunk is sized against.
	TranslateOutputTokens int
	// CandidateLimit is how many eligible jobs one invocation will attempt
	// to lease before giving up the cycle.
	CandidateLimit int
}

func (c *Config) applyDefaults() {
	if c.Budget <= 0 {
		c.Budget = 300 * time.Second
	}
	if c.Fanout <= 0 {
		c.Fanout = 4
	}
	if c.AnalyzeBatchChars <= 0 {
		c.AnalyzeBatchChars = 24000
	}
	if c.TranslateOutputTokens <= 0 {
		c.TranslateOutputTokens = 4096
	}
	if c.CandidateLimit <= 0 {
		c.CandidateLimit = 10
	}
}

// TickResult reports what one invocation did.
type TickResult struct {
	Idle         bool   // no eligible job could be leased
	JobID        string
	BatchIndex   int
	Advanced     bool // the batch succeeded and the cursor moved
	JobCompleted bool
	JobFailed    bool // retry budget exhausted, job permanently failed
	Interrupted  bool // pause or cancel honored mid-job
}

// Runner executes worker invocations.
type Runner struct {
	store      *store.Store
	ledger     *ledger.Ledger
	strategist *fallback.Strategist
	merger     *merge.Engine
	cfg        Config
	logger     *slog.Logger
}

// New creates a runner.
func New(st *store.Store, led *ledger.Ledger, strat *fallback.Strategist, merger *merge.Engine, cfg Config, logger *slog.Logger) *Runner {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		store:      st,
		ledger:     led,
		strategist: strat,
		merger:     merger,
		cfg:        cfg,
		logger:     logger.With("component", "worker"),
	}
}

// Tick runs one worker invocation: lease one eligible job, process one
// batch, release. Jobs whose lease another worker holds are skipped, not
// treated as errors.
func (r *Runner) Tick(ctx context.Context) (*TickResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Budget)
	defer cancel()

	candidates, err := r.ledger.NextEligible(r.cfg.CandidateLimit)
	if err != nil {
		return nil, err
	}

	for _, candidate := range candidates {
		lease, err := r.ledger.AcquireLease(candidate.ID)
		if errors.Is(err, ledger.ErrLeaseHeld) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return r.processLeased(ctx, lease)
	}

	r.logger.Debug("no eligible jobs this cycle")
	return &TickResult{Idle: true}, nil
}

// Run emulates the periodic external trigger for environments without one,
// invoking Tick on a fixed interval until the context ends.
func (r *Runner) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("worker loop started", "interval", interval)
	for {
		if _, err := r.Tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error("tick failed", "error", err)
		}
		select {
		case <-ctx.Done():
			r.logger.Info("worker loop stopping")
			return nil
		case <-ticker.C:
		}
	}
}

func (r *Runner) processLeased(ctx context.Context, lease *ledger.Lease) (*TickResult, error) {
	defer func() {
		if err := r.ledger.ReleaseLease(lease); err != nil {
			r.logger.Error("lease release failed", "job_id", lease.JobID, "error", err)
		}
	}()

	if err := r.ledger.MarkStarted(lease.JobID); err != nil {
		return nil, err
	}
	job, err := r.ledger.Reload(lease.JobID)
	if err != nil {
		return nil, err
	}

	result := &TickResult{JobID: job.ID, BatchIndex: job.CurrentBatchIndex}
	logger := r.logger.With("job_id", job.ID, "type", job.Type, "batch", job.CurrentBatchIndex)

	if job.CurrentBatchIndex >= len(job.BatchPlan) {
		// Nothing left; completion already happened (or the plan is empty,
		// which Create forbids). Leave the row alone.
		return result, nil
	}

	batch := job.BatchPlan[job.CurrentBatchIndex]
	logger.Info("processing batch", "units", len(batch))

	switch job.Type {
	case store.JobTypeTranslate:
		err = r.processTranslateBatch(ctx, job, batch)
	default:
		err = r.processAnalyzeBatch(ctx, job, batch)
	}

	if err != nil {
		if errors.Is(err, errJobPaused) || errors.Is(err, errJobCancelled) {
			logger.Info("job interrupted cooperatively", "reason", err)
			result.Interrupted = true
			return result, nil
		}

		if ctx.Err() != nil {
			// Local termination, budget expiry or shutdown, not an upstream
			// or store failure: the job keeps its retry budget and resumes
			// from its persisted cursor on the next invocation.
			logger.Info("invocation interrupted mid-batch", "reason", ctx.Err())
			result.Interrupted = true
			return result, nil
		}

		failed, recErr := r.ledger.RecordFailure(job, upstream.KindOf(err).String(), err.Error())
		if recErr != nil {
			return nil, recErr
		}
		result.JobFailed = failed
		return result, nil
	}

	if err := r.ledger.AdvanceCursor(job); err != nil {
		return nil, fmt.Errorf("batch processed but cursor not advanced: %w", err)
	}
	result.Advanced = true
	result.JobCompleted = job.Status == store.JobCompleted
	return result, nil
}

// checkInterrupt polls the job row for a cooperative pause or cancel.
func (r *Runner) checkInterrupt(jobID string) error {
	job, err := r.ledger.Reload(jobID)
	if err != nil {
		return err
	}
	switch job.Status {
	case store.JobPaused:
		return errJobPaused
	case store.JobCancelled:
		return errJobCancelled
	}
	return nil
}

// markUnits transitions a set of units, refreshing their heartbeat.
func (r *Runner) markUnits(ids []string, status store.UnitStatus, failReason string) error {
	if len(ids) == 0 {
		return nil
	}
	res := r.store.DB().Model(&store.ContentUnit{}).
		Where("id IN ?", ids).
		Updates(map[string]any{
			"status":      status,
			"fail_reason": failReason,
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to mark units %s: %w", status, res.Error)
	}
	return nil
}
