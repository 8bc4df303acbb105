package store

import "testing"

func TestStringSetUnionGrowsOnly(t *testing.T) {
	s := StringSet{"a", "b"}

	got := s.Union([]string{"b", "c", "", "a"})
	if len(got) != 3 {
		t.Fatalf("union = %v, want 3 members", got)
	}
	want := []string{"a", "b", "c"}
	for i, v := range want {
		if got[i] != v {
			t.Errorf("union[%d] = %q, want %q", i, got[i], v)
		}
	}

	// The receiver must not be touched.
	if len(s) != 2 {
		t.Errorf("receiver modified: %v", s)
	}

	// Union with a subset never shrinks the result.
	if shrunk := got.Union([]string{"a"}); len(shrunk) != len(got) {
		t.Errorf("union with subset shrank the set: %v", shrunk)
	}
}

func TestStringSetScanNull(t *testing.T) {
	var s StringSet
	if err := s.Scan(nil); err != nil {
		t.Fatalf("scan nil: %v", err)
	}
	if s == nil || len(s) != 0 {
		t.Errorf("scanning NULL should yield an empty set, got %v", s)
	}
}

func TestBatchPlanTotalUnits(t *testing.T) {
	plan := BatchPlan{{"u1", "u2"}, {"u3"}, {"u4", "u5", "u6"}}
	if got := plan.TotalUnits(); got != 6 {
		t.Errorf("total units = %d, want 6", got)
	}
	if got := (BatchPlan{}).TotalUnits(); got != 0 {
		t.Errorf("empty plan total = %d", got)
	}
}
