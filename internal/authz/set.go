package authz

import (
	"sort"

	"assetline/internal/domain"
)

// Set is a capability set.
type Set map[domain.Capability]struct{}

func NewSet(caps ...domain.Capability) Set {
	s := make(Set, len(caps))
	for _, c := range caps {
		s[c] = struct{}{}
	}
	return s
}

func (s Set) Add(c domain.Capability)      { s[c] = struct{}{} }
func (s Set) Has(c domain.Capability) bool { _, ok := s[c]; return ok }

// Slice returns the members sorted, for stable persistence and output.
func (s Set) Slice() []domain.Capability {
	out := make([]domain.Capability, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
