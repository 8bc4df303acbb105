package worker

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/lorebind/chronicle/internal/fallback"
	"github.com/lorebind/chronicle/internal/store"
	"github.com/lorebind/chronicle/internal/upstream"
)

// processAnalyzeBatch extracts characters, terms, and timeline events from
// one planned batch with a single upstream call, then folds the result into
// the work's accumulated state in one transaction. A lone unit that
// overflowed the planning budget is split and analyzed concurrently.
func (r *Runner) processAnalyzeBatch(ctx context.Context, job *store.Job, unitIDs []string) error {
	if err := r.checkInterrupt(job.ID); err != nil {
		return err
	}

	units, err := r.store.UnitsByIDs(unitIDs)
	if err != nil {
		return err
	}
	if len(units) == 0 {
		// Units were deleted since planning; the batch is trivially done.
		return nil
	}

	if err := r.markUnits(unitIDs, store.UnitInProgress, ""); err != nil {
		return err
	}

	meta := upstream.WorkMeta{WorkID: job.WorkID}
	hint := upstream.RangeHint{
		FirstSeq: units[0].SeqNum,
		LastSeq:  units[len(units)-1].SeqNum,
	}

	var result *upstream.ExtractionResult
	if len(units) == 1 && utf8.RuneCountInString(units[0].Body) > r.cfg.AnalyzeBatchChars {
		result, err = r.analyzeOversized(ctx, meta, units[0], hint)
	} else {
		texts := make([]upstream.UnitText, 0, len(units))
		for _, u := range units {
			texts = append(texts, upstream.UnitText{UnitID: u.ID, SeqNum: u.SeqNum, Title: u.Title, Body: u.Body})
		}
		result, err = r.strategist.Analyze(ctx, meta, texts, hint)
	}
	if err != nil {
		failStatus := store.UnitPending
		if !upstream.Retryable(err) {
			failStatus = store.UnitFailed
		}
		if markErr := r.markUnits(unitIDs, failStatus, err.Error()); markErr != nil {
			return errors.Join(err, markErr)
		}
		return err
	}

	if err := r.merger.Apply(ctx, job.WorkID, result); err != nil {
		return fmt.Errorf("extraction succeeded but merge failed: %w", err)
	}

	return r.markUnits(unitIDs, store.UnitDone, "")
}

// analyzeOversized splits a unit too large for one call into chunks and
// analyzes them concurrently, bounded by the configured fanout. Results are
// combined in chunk order so the merge sees them as one batch.
func (r *Runner) analyzeOversized(ctx context.Context, meta upstream.WorkMeta, unit store.ContentUnit, hint upstream.RangeHint) (*upstream.ExtractionResult, error) {
	chunks := fallback.SplitRunes(unit.Body, r.cfg.AnalyzeBatchChars)
	results := make([]*upstream.ExtractionResult, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Fanout)
	for i, chunk := range chunks {
		g.Go(func() error {
			res, err := r.strategist.Analyze(gctx, meta, []upstream.UnitText{{
				UnitID: unit.ID,
				SeqNum: unit.SeqNum,
				Title:  unit.Title,
				Body:   chunk,
			}}, hint)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	combined := &upstream.ExtractionResult{}
	for _, res := range results {
		combined.Characters = append(combined.Characters, res.Characters...)
		combined.Terms = append(combined.Terms, res.Terms...)
		combined.Events = append(combined.Events, res.Events...)
	}
	return combined, nil
}
