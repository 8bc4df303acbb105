// Package planner converts an ordered list of content units into
// size-bounded, ordered batches.
package planner

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/lorebind/chronicle/internal/store"
)

// ErrNoUnits is returned when a plan is requested for zero units.
var ErrNoUnits = errors.New("no content units to plan")

// Unit is one plannable item: a content unit ID plus a size hint (for
// chapter text, the character count).
type Unit struct {
	ID       string
	SizeHint int
}

// FromContent converts stored content units into plannable units, sizing
// each by rune count so dense scripts are budgeted by characters rather
// than bytes.
func FromContent(units []store.ContentUnit) []Unit {
	out := make([]Unit, 0, len(units))
	for _, u := range units {
		out = append(out, Unit{ID: u.ID, SizeHint: utf8.RuneCountInString(u.Body)})
	}
	return out
}

// Plan groups units into ordered batches whose cumulative size stays within
// budget. Every unit lands in exactly one batch and batch order matches
// input order. A single unit larger than the budget is placed alone in its
// own batch rather than split or dropped.
//
// The result is stored on the job at creation and never recomputed;
// re-planning after partial completion would desynchronize the cursor.
func Plan(units []Unit, budget int) (store.BatchPlan, error) {
	if len(units) == 0 {
		return nil, ErrNoUnits
	}
	if budget <= 0 {
		return nil, fmt.Errorf("batch size budget must be positive, got %d", budget)
	}

	plan := store.BatchPlan{}
	var current []string
	currentSize := 0

	flush := func() {
		if len(current) > 0 {
			plan = append(plan, current)
			current = nil
			currentSize = 0
		}
	}

	for _, u := range units {
		size := u.SizeHint
		if size < 0 {
			size = 0
		}

		// Oversized units get a batch of their own.
		if size > budget {
			flush()
			plan = append(plan, []string{u.ID})
			continue
		}

		if currentSize+size > budget {
			flush()
		}
		current = append(current, u.ID)
		currentSize += size
	}
	flush()

	return plan, nil
}

// PerUnit returns a plan with exactly one unit per batch. Translation jobs
// use this so a failure is isolated to a single chapter.
func PerUnit(units []Unit) (store.BatchPlan, error) {
	if len(units) == 0 {
		return nil, ErrNoUnits
	}
	plan := make(store.BatchPlan, 0, len(units))
	for _, u := range units {
		plan = append(plan, []string{u.ID})
	}
	return plan, nil
}
