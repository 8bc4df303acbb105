package planner

import (
	"errors"
	"fmt"
	"testing"
	"unicode/utf8"

	"github.com/lorebind/chronicle/internal/store"
)

func unitsOf(sizes ...int) []Unit {
	units := make([]Unit, len(sizes))
	for i, s := range sizes {
		units[i] = Unit{ID: fmt.Sprintf("u%d", i+1), SizeHint: s}
	}
	return units
}

func TestPlan_PartitionPreservesOrderAndMembership(t *testing.T) {
	units := unitsOf(100, 200, 300, 50, 400, 10)

	plan, err := Plan(units, 500)
	if err != nil {
		t.Fatalf("Plan error = %v", err)
	}

	// Flatten and compare against the input order.
	var got []string
	for _, batch := range plan {
		if len(batch) == 0 {
			t.Fatal("plan contains an empty batch")
		}
		got = append(got, batch...)
	}
	if len(got) != len(units) {
		t.Fatalf("plan covers %d units, want %d", len(got), len(units))
	}
	seen := make(map[string]bool)
	for i, id := range got {
		if id != units[i].ID {
			t.Errorf("position %d = %s, want %s (order must match input)", i, id, units[i].ID)
		}
		if seen[id] {
			t.Errorf("unit %s appears more than once", id)
		}
		seen[id] = true
	}
}

func TestPlan_RespectsBudget(t *testing.T) {
	units := unitsOf(300, 300, 300, 300)
	plan, err := Plan(units, 650)
	if err != nil {
		t.Fatalf("Plan error = %v", err)
	}

	sizeOf := make(map[string]int)
	for _, u := range units {
		sizeOf[u.ID] = u.SizeHint
	}
	for i, batch := range plan {
		total := 0
		for _, id := range batch {
			total += sizeOf[id]
		}
		if total > 650 {
			t.Errorf("batch %d total = %d, exceeds budget", i, total)
		}
	}
	if len(plan) != 2 {
		t.Errorf("len(plan) = %d, want 2", len(plan))
	}
}

func TestPlan_OversizedUnitPlacedAlone(t *testing.T) {
	units := unitsOf(100, 9000, 100)
	plan, err := Plan(units, 500)
	if err != nil {
		t.Fatalf("Plan error = %v", err)
	}
	if len(plan) != 3 {
		t.Fatalf("len(plan) = %d, want 3", len(plan))
	}
	if len(plan[1]) != 1 || plan[1][0] != "u2" {
		t.Errorf("oversized unit not alone in its batch: %v", plan[1])
	}
}

func TestPlan_ZeroUnitsIsError(t *testing.T) {
	if _, err := Plan(nil, 500); !errors.Is(err, ErrNoUnits) {
		t.Errorf("Plan(nil) error = %v, want ErrNoUnits", err)
	}
	if _, err := PerUnit(nil); !errors.Is(err, ErrNoUnits) {
		t.Errorf("PerUnit(nil) error = %v, want ErrNoUnits", err)
	}
}

func TestPlan_InvalidBudget(t *testing.T) {
	if _, err := Plan(unitsOf(10), 0); err == nil {
		t.Error("Plan with zero budget should fail")
	}
}

func TestFromContent_SizesByRuneCount(t *testing.T) {
	cjk := "第一章。主角醒来时，山谷里只剩下风声。"
	units := []store.ContentUnit{
		{ID: "u1", Body: cjk},
		{ID: "u2", Body: "plain ascii"},
	}

	got := FromContent(units)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if want := utf8.RuneCountInString(cjk); got[0].SizeHint != want {
		t.Errorf("cjk size hint = %d, want %d runes", got[0].SizeHint, want)
	}
	if got[0].SizeHint == len(cjk) {
		t.Error("cjk size hint equals byte length; dense scripts must be sized by runes")
	}
	if got[1].SizeHint != len("plain ascii") {
		t.Errorf("ascii size hint = %d, want %d", got[1].SizeHint, len("plain ascii"))
	}
}

func TestPerUnit_OneUnitPerBatch(t *testing.T) {
	units := unitsOf(10, 20, 30)
	plan, err := PerUnit(units)
	if err != nil {
		t.Fatalf("PerUnit error = %v", err)
	}
	if len(plan) != 3 {
		t.Fatalf("len(plan) = %d, want 3", len(plan))
	}
	for i, batch := range plan {
		if len(batch) != 1 || batch[0] != units[i].ID {
			t.Errorf("batch %d = %v, want [%s]", i, batch, units[i].ID)
		}
	}
}
