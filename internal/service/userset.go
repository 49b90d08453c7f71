package service

import (
	"bytes"
	"sort"

	"github.com/google/uuid"
)

// UserSet is a set of user ids with deterministic iteration via Sorted.
type UserSet map[uuid.UUID]struct{}

func NewUserSet(ids ...uuid.UUID) UserSet {
	s := make(UserSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s UserSet) Add(id uuid.UUID) {
	s[id] = struct{}{}
}

func (s UserSet) Remove(id uuid.UUID) {
	delete(s, id)
}

func (s UserSet) Contains(id uuid.UUID) bool {
	_, ok := s[id]
	return ok
}

func (s UserSet) Union(other UserSet) UserSet {
	out := make(UserSet, len(s)+len(other))
	for id := range s {
		out[id] = struct{}{}
	}
	for id := range other {
		out[id] = struct{}{}
	}
	return out
}

func (s UserSet) Intersect(other UserSet) UserSet {
	out := make(UserSet)
	for id := range s {
		if other.Contains(id) {
			out[id] = struct{}{}
		}
	}
	return out
}

func (s UserSet) Minus(other UserSet) UserSet {
	out := make(UserSet)
	for id := range s {
		if !other.Contains(id) {
			out[id] = struct{}{}
		}
	}
	return out
}

// Sorted returns the members ordered by raw uuid bytes.
func (s UserSet) Sorted() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}
