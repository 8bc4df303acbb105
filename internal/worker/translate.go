package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lorebind/chronicle/internal/fallback"
	"github.com/lorebind/chronicle/internal/store"
	"github.com/lorebind/chronicle/internal/upstream"
)

// precedingContextRunes is how much previously translated text rides along
// with each chunk so tone and phrasing stay continuous across chunk seams.
const precedingContextRunes = 600

// glossaryLimit caps how many established term translations are injected
// into a translation call.
const glossaryLimit = 200

// processTranslateBatch translates the units of one planned batch. Each
// unit is translated chunk by chunk with the checkpoint persisted after
// every chunk, so an interrupted unit resumes at its last completed chunk.
func (r *Runner) processTranslateBatch(ctx context.Context, job *store.Job, unitIDs []string) error {
	units, err := r.store.UnitsByIDs(unitIDs)
	if err != nil {
		return err
	}

	glossary, err := r.loadGlossary(job.WorkID)
	if err != nil {
		return err
	}
	meta := upstream.WorkMeta{WorkID: job.WorkID}

	for i := range units {
		if err := r.checkInterrupt(job.ID); err != nil {
			return err
		}
		unit := &units[i]
		if unit.Status == store.UnitDone {
			// Already translated by an earlier attempt at this batch.
			continue
		}
		if err := r.translateUnit(ctx, meta, glossary, unit); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) translateUnit(ctx context.Context, meta upstream.WorkMeta, glossary map[string]string, unit *store.ContentUnit) error {
	chunks := fallback.SplitChunks(unit.Body, r.cfg.TranslateOutputTokens)
	logger := r.logger.With("unit_id", unit.ID, "seq", unit.SeqNum, "chunks", len(chunks))

	start := unit.ChunkIndex
	if start > len(chunks) {
		// The body changed since the checkpoint was taken; the partial
		// output no longer lines up with any chunk boundary.
		logger.Warn("checkpoint beyond chunk count, restarting unit", "checkpoint", start)
		start = 0
		unit.PartialOutput = ""
	}
	if start > 0 {
		logger.Info("resuming unit from checkpoint", "chunk_index", start)
	}

	if err := r.markUnits([]string{unit.ID}, store.UnitInProgress, ""); err != nil {
		return err
	}

	for i := start; i < len(chunks); i++ {
		tc := upstream.TranslateContext{
			Meta:      meta,
			Glossary:  glossary,
			Preceding: tailRunes(unit.PartialOutput, precedingContextRunes),
		}
		out, err := r.strategist.Translate(ctx, chunks[i], tc)
		if err != nil {
			failStatus := store.UnitPending
			if !upstream.Retryable(err) {
				failStatus = store.UnitFailed
			}
			// The checkpoint written after the last good chunk survives; the
			// failed chunk is re-attempted on the next lease.
			if markErr := r.markUnits([]string{unit.ID}, failStatus, err.Error()); markErr != nil {
				return errors.Join(err, markErr)
			}
			return err
		}

		unit.PartialOutput += out
		unit.ChunkIndex = i + 1
		if err := r.checkpointUnit(unit); err != nil {
			return err
		}
	}

	return r.completeUnit(unit)
}

// checkpointUnit persists mid-unit translation progress.
func (r *Runner) checkpointUnit(unit *store.ContentUnit) error {
	res := r.store.DB().Model(&store.ContentUnit{}).
		Where("id = ?", unit.ID).
		Updates(map[string]any{
			"chunk_index":    unit.ChunkIndex,
			"partial_output": unit.PartialOutput,
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to checkpoint unit %s: %w", unit.ID, res.Error)
	}
	return nil
}

// completeUnit promotes the accumulated partial output to the final
// translation and clears the checkpoint.
func (r *Runner) completeUnit(unit *store.ContentUnit) error {
	res := r.store.DB().Model(&store.ContentUnit{}).
		Where("id = ?", unit.ID).
		Updates(map[string]any{
			"translated_body": unit.PartialOutput,
			"partial_output":  "",
			"chunk_index":     0,
			"status":          store.UnitDone,
			"fail_reason":     "",
			"updated_at":      time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to complete unit %s: %w", unit.ID, res.Error)
	}
	unit.Status = store.UnitDone
	return nil
}

// loadGlossary collects the established term translations for a work,
// oldest terms first so early, central terminology wins the cap.
func (r *Runner) loadGlossary(workID string) (map[string]string, error) {
	var terms []store.Term
	err := r.store.DB().
		Where("work_id = ? AND translation <> ''", workID).
		Order("order_index ASC").
		Limit(glossaryLimit).
		Find(&terms).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load glossary: %w", err)
	}
	glossary := make(map[string]string, len(terms))
	for _, t := range terms {
		glossary[t.Original] = t.Translation
	}
	return glossary, nil
}

// tailRunes returns the last n runes of s.
func tailRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
