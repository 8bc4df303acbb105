// Package merge reconciles newly extracted entities into previously stored
// ones. The merge is commutative and idempotent: re-applying the same
// extraction creates no duplicates and never shrinks an accumulated set, so
// a batch that is reprocessed after a crash folds in cleanly.
package merge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lorebind/chronicle/internal/store"
	"github.com/lorebind/chronicle/internal/upstream"
)

// defaultWriteBatchSize bounds insert and update batches so one merge
// cannot overwhelm the store.
const defaultWriteBatchSize = 50

// Engine applies extraction results to the store.
type Engine struct {
	store          *store.Store
	writeBatchSize int
	logger         *slog.Logger
}

// New creates a merge engine.
func New(st *store.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:          st,
		writeBatchSize: defaultWriteBatchSize,
		logger:         logger,
	}
}

// Apply folds one extraction result into the work's stored entities inside
// a single transaction: a store failure aborts the whole batch with no
// partial entity writes, and the job-level retry reprocesses it safely.
func (e *Engine) Apply(ctx context.Context, workID string, result *upstream.ExtractionResult) error {
	if result == nil || result.Empty() {
		return nil
	}
	err := e.store.Transaction(func(tx *gorm.DB) error {
		if err := e.mergeCharacters(tx, workID, result.Characters); err != nil {
			return err
		}
		if err := e.mergeTerms(tx, workID, result.Terms); err != nil {
			return err
		}
		return e.mergeEvents(tx, workID, result.Events)
	})
	if err != nil {
		return fmt.Errorf("merge failed for work %s: %w", workID, err)
	}
	return nil
}

func (e *Engine) mergeCharacters(tx *gorm.DB, workID string, extracted []upstream.ExtractedCharacter) error {
	if len(extracted) == 0 {
		return nil
	}

	var existing []store.Character
	if err := tx.Where("work_id = ?", workID).Find(&existing).Error; err != nil {
		return fmt.Errorf("failed to load characters: %w", err)
	}
	byKey := make(map[string]*store.Character, len(existing))
	maxOrder := -1
	for i := range existing {
		byKey[existing[i].Name] = &existing[i]
		if existing[i].OrderIndex > maxOrder {
			maxOrder = existing[i].OrderIndex
		}
	}

	now := time.Now().UTC()
	var creates []*store.Character
	var updates []*store.Character

	for _, ec := range extracted {
		if ec.Name == "" {
			continue
		}
		if cur, ok := byKey[ec.Name]; ok {
			if mergeCharacterInto(cur, ec) {
				cur.UpdatedAt = now
				updates = append(updates, cur)
			}
			continue
		}
		maxOrder++
		c := &store.Character{
			ID:          uuid.NewString(),
			WorkID:      workID,
			Name:        ec.Name,
			Aliases:     store.StringSet(nil).Union(ec.Aliases),
			Description: ec.Description,
			Role:        ec.Role,
			OrderIndex:  maxOrder,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		byKey[ec.Name] = c
		creates = append(creates, c)
	}

	if err := bulkCreate(tx, creates, e.writeBatchSize); err != nil {
		return fmt.Errorf("failed to insert characters: %w", err)
	}
	for _, c := range updates {
		res := tx.Model(&store.Character{}).Where("id = ?", c.ID).
			Updates(map[string]any{
				"aliases":     c.Aliases,
				"description": c.Description,
				"role":        c.Role,
				"updated_at":  c.UpdatedAt,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to update character %s: %w", c.Name, res.Error)
		}
	}
	return nil
}

// mergeCharacterInto folds ec into cur. Scalars are first-non-null-wins;
// aliases grow as a set union. Returns whether anything changed.
func mergeCharacterInto(cur *store.Character, ec upstream.ExtractedCharacter) bool {
	changed := false
	if merged := cur.Aliases.Union(ec.Aliases); len(merged) != len(cur.Aliases) {
		cur.Aliases = merged
		changed = true
	}
	if cur.Description == "" && ec.Description != "" {
		cur.Description = ec.Description
		changed = true
	}
	if cur.Role == "" && ec.Role != "" {
		cur.Role = ec.Role
		changed = true
	}
	return changed
}

func (e *Engine) mergeTerms(tx *gorm.DB, workID string, extracted []upstream.ExtractedTerm) error {
	if len(extracted) == 0 {
		return nil
	}

	var existing []store.Term
	if err := tx.Where("work_id = ?", workID).Find(&existing).Error; err != nil {
		return fmt.Errorf("failed to load terms: %w", err)
	}
	byKey := make(map[string]*store.Term, len(existing))
	maxOrder := -1
	for i := range existing {
		byKey[existing[i].Original] = &existing[i]
		if existing[i].OrderIndex > maxOrder {
			maxOrder = existing[i].OrderIndex
		}
	}

	now := time.Now().UTC()
	var creates []*store.Term
	var updates []*store.Term

	for _, et := range extracted {
		if et.Original == "" {
			continue
		}
		if cur, ok := byKey[et.Original]; ok {
			if mergeTermInto(cur, et) {
				cur.UpdatedAt = now
				updates = append(updates, cur)
			}
			continue
		}
		maxOrder++
		tm := &store.Term{
			ID:          uuid.NewString(),
			WorkID:      workID,
			Original:    et.Original,
			Translation: et.Translation,
			Category:    et.Category,
			Variants:    store.StringSet(nil).Union(et.Variants),
			Notes:       et.Notes,
			OrderIndex:  maxOrder,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		byKey[et.Original] = tm
		creates = append(creates, tm)
	}

	if err := bulkCreate(tx, creates, e.writeBatchSize); err != nil {
		return fmt.Errorf("failed to insert terms: %w", err)
	}
	for _, tm := range updates {
		res := tx.Model(&store.Term{}).Where("id = ?", tm.ID).
			Updates(map[string]any{
				"translation": tm.Translation,
				"category":    tm.Category,
				"variants":    tm.Variants,
				"notes":       tm.Notes,
				"updated_at":  tm.UpdatedAt,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to update term %s: %w", tm.Original, res.Error)
		}
	}
	return nil
}

func mergeTermInto(cur *store.Term, et upstream.ExtractedTerm) bool {
	changed := false
	if merged := cur.Variants.Union(et.Variants); len(merged) != len(cur.Variants) {
		cur.Variants = merged
		changed = true
	}
	if cur.Translation == "" && et.Translation != "" {
		cur.Translation = et.Translation
		changed = true
	}
	if cur.Category == "" && et.Category != "" {
		cur.Category = et.Category
		changed = true
	}
	if cur.Notes == "" && et.Notes != "" {
		cur.Notes = et.Notes
		changed = true
	}
	return changed
}

func (e *Engine) mergeEvents(tx *gorm.DB, workID string, extracted []upstream.ExtractedEvent) error {
	if len(extracted) == 0 {
		return nil
	}

	var existing []store.TimelineEvent
	if err := tx.Where("work_id = ?", workID).Find(&existing).Error; err != nil {
		return fmt.Errorf("failed to load events: %w", err)
	}
	key := func(title string, startSeq int) string {
		return fmt.Sprintf("%s\x00%d", title, startSeq)
	}
	byKey := make(map[string]*store.TimelineEvent, len(existing))
	maxOrder := -1
	for i := range existing {
		byKey[key(existing[i].Title, existing[i].StartSeq)] = &existing[i]
		if existing[i].OrderIndex > maxOrder {
			maxOrder = existing[i].OrderIndex
		}
	}

	now := time.Now().UTC()
	var creates []*store.TimelineEvent
	var updates []*store.TimelineEvent

	for _, ev := range extracted {
		if ev.Title == "" {
			continue
		}
		k := key(ev.Title, ev.StartSeq)
		if cur, ok := byKey[k]; ok {
			if mergeEventInto(cur, ev) {
				cur.UpdatedAt = now
				updates = append(updates, cur)
			}
			continue
		}
		maxOrder++
		te := &store.TimelineEvent{
			ID:         uuid.NewString(),
			WorkID:     workID,
			Title:      ev.Title,
			StartSeq:   ev.StartSeq,
			Summary:    ev.Summary,
			Characters: store.StringSet(nil).Union(ev.Characters),
			OrderIndex: maxOrder,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		byKey[k] = te
		creates = append(creates, te)
	}

	if err := bulkCreate(tx, creates, e.writeBatchSize); err != nil {
		return fmt.Errorf("failed to insert events: %w", err)
	}
	for _, te := range updates {
		res := tx.Model(&store.TimelineEvent{}).Where("id = ?", te.ID).
			Updates(map[string]any{
				"summary":    te.Summary,
				"characters": te.Characters,
				"updated_at": te.UpdatedAt,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to update event %s: %w", te.Title, res.Error)
		}
	}
	return nil
}

func mergeEventInto(cur *store.TimelineEvent, ev upstream.ExtractedEvent) bool {
	changed := false
	if merged := cur.Characters.Union(ev.Characters); len(merged) != len(cur.Characters) {
		cur.Characters = merged
		changed = true
	}
	if cur.Summary == "" && ev.Summary != "" {
		cur.Summary = ev.Summary
		changed = true
	}
	return changed
}

// bulkCreate inserts rows in bounded batches.
func bulkCreate[T any](tx *gorm.DB, rows []*T, batchSize int) error {
	if len(rows) == 0 {
		return nil
	}
	return tx.CreateInBatches(rows, batchSize).Error
}
