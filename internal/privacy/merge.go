package privacy

import (
	"cmp"
	"fmt"
	"slices"
)

// MergePolicy decides which candidate survives when spans overlap.
type MergePolicy string

const (
	// MergePrecedence admits candidates by precedence, then length, then start,
	// then input order. Each is kept only if it overlaps nothing already kept.
	MergePrecedence MergePolicy = "precedence"
	// MergePositional sweeps left to right: earliest start wins, a longer span
	// wins a shared start, precedence then input order break the remaining ties.
	MergePositional MergePolicy = "positional"
)

// ParseMergePolicy validates a configured policy name. Empty selects MergePrecedence.
func ParseMergePolicy(name string) (MergePolicy, error) {
	switch MergePolicy(name) {
	case "", MergePrecedence:
		return MergePrecedence, nil
	case MergePositional:
		return MergePositional, nil
	}
	return "", &ConfigurationError{Field: "merge_policy", Value: name, Err: fmt.Errorf("must be %s or %s", MergePrecedence, MergePositional)}
}

type candidate struct {
	Span
	order int
}

// Merge resolves overlapping candidates into a start-ordered, non-overlapping
// list. The result depends only on the candidates and their input order, so the
// same input always produces the same output. Empty or inverted spans are dropped.
func Merge(spans []Span, policy MergePolicy) []Span {
	items := make([]candidate, 0, len(spans))
	for i, s := range spans {
		if s.Start < 0 || s.End <= s.Start {
			continue
		}
		items = append(items, candidate{Span: s, order: i})
	}
	if len(items) == 0 {
		return nil
	}

	if policy == MergePositional {
		return sweep(items)
	}
	return admitByPrecedence(items)
}

func sweep(items []candidate) []Span {
	slices.SortFunc(items, func(a, b candidate) int {
		return cmp.Or(
			cmp.Compare(a.Start, b.Start),
			cmp.Compare(b.End, a.End),
			cmp.Compare(b.Precedence, a.Precedence),
			cmp.Compare(a.order, b.order),
		)
	})

	out := make([]Span, 0, len(items))
	lastEnd := 0
	for _, c := range items {
		if c.Start >= lastEnd {
			out = append(out, c.Span)
			lastEnd = c.End
		}
	}
	return out
}

func admitByPrecedence(items []candidate) []Span {
	slices.SortFunc(items, func(a, b candidate) int {
		return cmp.Or(
			cmp.Compare(b.Precedence, a.Precedence),
			cmp.Compare(b.Len(), a.Len()),
			cmp.Compare(a.Start, b.Start),
			cmp.Compare(a.order, b.order),
		)
	})

	// accepted stays sorted by Start so each overlap check only needs the
	// neighbours around the insertion point.
	accepted := make([]Span, 0, len(items))
	for _, c := range items {
		i, _ := slices.BinarySearchFunc(accepted, c.Start, func(s Span, start int) int {
			return cmp.Compare(s.Start, start)
		})
		if i > 0 && accepted[i-1].End > c.Start {
			continue
		}
		if i < len(accepted) && accepted[i].Start < c.End {
			continue
		}
		accepted = slices.Insert(accepted, i, c.Span)
	}
	return accepted
}
