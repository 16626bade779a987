// Package similarity ranks media items by how many genres they share with a
// reference item. It performs no I/O: callers load genres eagerly.
package similarity

import (
	"sort"

	"github.com/Clark-Hu/reelrate/internal/domain"
)

// Scored is a candidate paired with its genre overlap against a reference.
type Scored struct {
	Media domain.Media
	Score int
}

// Score returns the number of genres candidate shares with reference.
func Score(candidate, reference domain.Media) int {
	if len(candidate.Genres) == 0 || len(reference.Genres) == 0 {
		return 0
	}
	ref := make(map[int64]struct{}, len(reference.Genres))
	for _, g := range reference.Genres {
		ref[g.ID] = struct{}{}
	}
	return overlap(candidate, ref)
}

// Rank scores every candidate against reference and orders them by score,
// highest first. Candidates with equal scores keep their input order. The
// reference itself is never part of the result.
func Rank(candidates []domain.Media, reference domain.Media) []Scored {
	ref := make(map[int64]struct{}, len(reference.Genres))
	for _, g := range reference.Genres {
		ref[g.ID] = struct{}{}
	}
	refKey := reference.Key()

	ranked := make([]Scored, 0, len(candidates))
	for _, c := range candidates {
		if c.Key() == refKey {
			continue
		}
		ranked = append(ranked, Scored{Media: c, Score: overlap(c, ref)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

// overlap counts distinct genre ids of m found in ref.
func overlap(m domain.Media, ref map[int64]struct{}) int {
	if len(ref) == 0 {
		return 0
	}
	seen := make(map[int64]struct{}, len(m.Genres))
	n := 0
	for _, g := range m.Genres {
		if _, dup := seen[g.ID]; dup {
			continue
		}
		seen[g.ID] = struct{}{}
		if _, ok := ref[g.ID]; ok {
			n++
		}
	}
	return n
}
