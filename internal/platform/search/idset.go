package search

import (
	"sort"

	"golang.org/x/exp/maps"
)

// IDSet is a set of row identifiers. Operations never mutate their receiver.
//
// A nil IDSet passed between predicate builders means "not constrained yet";
// a non-nil empty set means "nothing matches" and ends compilation.
type IDSet map[int64]struct{}

// NewIDSet builds a non-nil set from the given ids.
func NewIDSet(ids ...int64) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s IDSet) Len() int { return len(s) }

func (s IDSet) Contains(id int64) bool {
	_, ok := s[id]
	return ok
}

// Intersect returns the ids present in both sets.
func (s IDSet) Intersect(other IDSet) IDSet {
	small, large := s, other
	if len(large) < len(small) {
		small, large = large, small
	}
	out := make(IDSet, len(small))
	for id := range small {
		if large.Contains(id) {
			out[id] = struct{}{}
		}
	}
	return out
}

// Union returns the ids present in either set.
func (s IDSet) Union(other IDSet) IDSet {
	out := make(IDSet, len(s)+len(other))
	for id := range s {
		out[id] = struct{}{}
	}
	for id := range other {
		out[id] = struct{}{}
	}
	return out
}

// Sorted returns the ids in ascending order.
func (s IDSet) Sorted() []int64 {
	ids := maps.Keys(s)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Equal reports whether both sets hold the same ids.
func (s IDSet) Equal(other IDSet) bool {
	if len(s) != len(other) {
		return false
	}
	for id := range s {
		if !other.Contains(id) {
			return false
		}
	}
	return true
}
