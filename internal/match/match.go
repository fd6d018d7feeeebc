// Package match pairs local replacement files with remote media records
// by normalized filename stem.
package match

import (
	"github.com/hpungsan/wpswap/internal/asset"
	"github.com/hpungsan/wpswap/internal/errors"
)

// Reason explains why a local asset was left unmatched.
type Reason string

const (
	ReasonNoMatch        Reason = "NO_MATCH"
	ReasonAmbiguousLocal Reason = "AMBIGUOUS_LOCAL_MATCH"
)

// Pair is one confirmed local-to-remote pairing.
type Pair struct {
	Local  asset.LocalAsset  `json:"local"`
	Remote asset.RemoteAsset `json:"remote"`
}

// UnmatchedLocal is a local asset that produced no pairing.
type UnmatchedLocal struct {
	Local  asset.LocalAsset `json:"local"`
	Reason Reason           `json:"reason"`
	// ConflictsWith is the path of the local asset that claimed the stem first
	ConflictsWith string `json:"conflicts_with,omitempty"`
}

// Result is the outcome of a matching pass.
type Result struct {
	Matches          []Pair              `json:"matches"`
	UnmatchedLocals  []UnmatchedLocal    `json:"unmatched_locals"`
	UnmatchedRemotes []asset.RemoteAsset `json:"unmatched_remotes"`
}

// Issues returns one coded error per unmatched local asset, for reporting.
// These are data, not failures.
func (r *Result) Issues() []*errors.Error {
	issues := make([]*errors.Error, 0, len(r.UnmatchedLocals))
	for _, u := range r.UnmatchedLocals {
		switch u.Reason {
		case ReasonAmbiguousLocal:
			issues = append(issues, errors.NewAmbiguousLocalMatch(u.Local.Path, u.Local.Stem, u.ConflictsWith))
		default:
			issues = append(issues, errors.NewNoMatchFound(u.Local.Path, u.Local.Stem))
		}
	}
	return issues
}

// Match pairs locals with remotes by exact normalized stem.
//
// Several remotes on one stem collapse to a single canonical record (see
// Canonical); the others land in UnmatchedRemotes. Several locals on one stem
// keep the first in input order and report the rest as AMBIGUOUS_LOCAL_MATCH.
// Output follows input order, so equal inputs give equal results.
func Match(locals []asset.LocalAsset, remotes []asset.RemoteAsset) *Result {
	groups := make(map[string][]asset.RemoteAsset)
	seenIDs := make(map[int64]bool, len(remotes))
	unique := make([]asset.RemoteAsset, 0, len(remotes))
	for _, r := range remotes {
		if seenIDs[r.ID] {
			continue
		}
		seenIDs[r.ID] = true
		unique = append(unique, r)
		groups[r.NormalizedStem] = append(groups[r.NormalizedStem], r)
	}

	result := &Result{
		Matches:          []Pair{},
		UnmatchedLocals:  []UnmatchedLocal{},
		UnmatchedRemotes: []asset.RemoteAsset{},
	}

	claimedBy := make(map[string]string, len(locals))
	used := make(map[int64]bool, len(locals))
	for _, l := range locals {
		if winner, ok := claimedBy[l.Stem]; ok {
			result.UnmatchedLocals = append(result.UnmatchedLocals, UnmatchedLocal{
				Local:         l,
				Reason:        ReasonAmbiguousLocal,
				ConflictsWith: winner,
			})
			continue
		}
		claimedBy[l.Stem] = l.Path

		group, ok := groups[l.Stem]
		if !ok {
			result.UnmatchedLocals = append(result.UnmatchedLocals, UnmatchedLocal{
				Local:  l,
				Reason: ReasonNoMatch,
			})
			continue
		}

		remote := Canonical(group)
		used[remote.ID] = true
		result.Matches = append(result.Matches, Pair{Local: l, Remote: remote})
	}

	for _, r := range unique {
		if !used[r.ID] {
			result.UnmatchedRemotes = append(result.UnmatchedRemotes, r)
		}
	}

	return result
}

// Canonical picks the record that represents a group of same-stem variants:
// the full-size original (no size or -scaled suffix) if there is one,
// otherwise the lexicographically smallest filename. Remaining ties go to
// the smallest ID. group must not be empty.
func Canonical(group []asset.RemoteAsset) asset.RemoteAsset {
	best := group[0]
	for _, r := range group[1:] {
		if preferred(r, best) {
			best = r
		}
	}
	return best
}

// preferred reports whether a ranks ahead of b in the canonical order.
func preferred(a, b asset.RemoteAsset) bool {
	aFull := !asset.HasVariantSuffix(a.Filename)
	bFull := !asset.HasVariantSuffix(b.Filename)
	if aFull != bFull {
		return aFull
	}
	if a.Filename != b.Filename {
		return a.Filename < b.Filename
	}
	return a.ID < b.ID
}
