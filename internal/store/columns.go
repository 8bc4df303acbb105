package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StringSet is a multi-valued field stored as a JSON array.
// Order of first insertion is preserved; values are unique.
type StringSet []string

// Value implements driver.Valuer.
func (s StringSet) Value() (driver.Value, error) {
	if s == nil {
		s = StringSet{}
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal string set: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (s *StringSet) Scan(value any) error {
	if value == nil {
		*s = StringSet{}
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into StringSet", value)
	}
	if len(b) == 0 {
		*s = StringSet{}
		return nil
	}
	return json.Unmarshal(b, s)
}

// Contains reports whether v is a member of the set.
func (s StringSet) Contains(v string) bool {
	for _, item := range s {
		if item == v {
			return true
		}
	}
	return false
}

// Union returns a new set containing the members of s followed by the
// members of other that are not already present. The receiver is not
// modified; merged sets only ever grow.
func (s StringSet) Union(other []string) StringSet {
	out := make(StringSet, len(s), len(s)+len(other))
	copy(out, s)
	for _, v := range other {
		if v != "" && !out.Contains(v) {
			out = append(out, v)
		}
	}
	return out
}

// BatchPlan is an ordered list of batches, each an ordered list of content
// unit IDs. It is computed once at job creation and stored as JSON; it must
// never be recomputed afterwards or the progress cursor desynchronizes.
type BatchPlan [][]string

// Value implements driver.Valuer.
func (p BatchPlan) Value() (driver.Value, error) {
	if p == nil {
		p = BatchPlan{}
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch plan: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (p *BatchPlan) Scan(value any) error {
	if value == nil {
		*p = BatchPlan{}
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into BatchPlan", value)
	}
	if len(b) == 0 {
		*p = BatchPlan{}
		return nil
	}
	return json.Unmarshal(b, p)
}

// TotalUnits returns the number of unit IDs across all batches.
func (p BatchPlan) TotalUnits() int {
	n := 0
	for _, batch := range p {
		n += len(batch)
	}
	return n
}
