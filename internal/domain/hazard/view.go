package hazard

import (
	"fmt"
	"strings"
)

const (
	ViewActive   = "active"
	ViewResolved = "resolved"
)

type Filter func(Record) bool

// Comparator orders records; negative means a sorts before b.
type Comparator func(a, b Record) int

// RecordQuery is the predicate used to load a view's initial contents from
// the remote store.
type RecordQuery struct {
	Resolved *bool
}

// ViewSpec describes one filtered, sorted projection of hazard reports.
type ViewSpec struct {
	Name    string
	Filter  Filter
	Compare Comparator
	Query   RecordQuery
}

// ActiveView holds unresolved reports, oldest first.
func ActiveView() ViewSpec {
	resolved := false
	return ViewSpec{
		Name:    ViewActive,
		Filter:  func(r Record) bool { return !r.IsResolved },
		Compare: ByCreatedAsc,
		Query:   RecordQuery{Resolved: &resolved},
	}
}

// ResolvedView holds resolved reports, most recently modified first.
func ResolvedView() ViewSpec {
	resolved := true
	return ViewSpec{
		Name:    ViewResolved,
		Filter:  func(r Record) bool { return r.IsResolved },
		Compare: ByModifiedDesc,
		Query:   RecordQuery{Resolved: &resolved},
	}
}

func ViewByName(name string) (ViewSpec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case ViewActive:
		return ActiveView(), nil
	case ViewResolved:
		return ResolvedView(), nil
	default:
		return ViewSpec{}, fmt.Errorf("%w: %q", ErrUnknownView, name)
	}
}

func ByCreatedAsc(a, b Record) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(string(a.ID), string(b.ID))
}

func ByModifiedDesc(a, b Record) int {
	if c := b.ModifiedAt.Compare(a.ModifiedAt); c != 0 {
		return c
	}
	return strings.Compare(string(a.ID), string(b.ID))
}

// IsSorted reports whether every adjacent pair satisfies cmp(a, b) <= 0.
func IsSorted(records []Record, cmp Comparator) bool {
	for i := 1; i < len(records); i++ {
		if cmp(records[i-1], records[i]) > 0 {
			return false
		}
	}
	return true
}
