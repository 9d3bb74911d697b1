// Package intervals implements an algebra over ordered lists of half-open
// [start, end) intervals in time or sample units.
//
// Every function requires its inputs to be sorted by start. Unsorted input is a
// precondition violation: the functions do not detect it and their result is
// undefined. Callers that cannot guarantee ordering should run Check first.
package intervals

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrUnsorted       = errors.New("intervals: input not sorted by start")
	ErrNegativeLength = errors.New("intervals: interval with end before start")
)

// Number is the set of units intervals can be expressed in.
type Number interface {
	~int | ~int32 | ~int64 | ~uint32 | ~uint64 | ~float32 | ~float64
}

// Interval is a half-open span [Start, End).
type Interval[T Number] struct {
	Start T `json:"start"`
	End   T `json:"end"`
}

// Len returns End - Start.
func (iv Interval[T]) Len() T {
	return iv.End - iv.Start
}

// Check reports whether in is sorted by start and holds no negative-length
// interval.
func Check[T Number](in []Interval[T]) error {
	for i, iv := range in {
		if iv.End < iv.Start {
			return fmt.Errorf("%w: index %d [%v, %v)", ErrNegativeLength, i, iv.Start, iv.End)
		}
		if i > 0 && iv.Start < in[i-1].Start {
			return fmt.Errorf("%w: index %d starts at %v after %v", ErrUnsorted, i, iv.Start, in[i-1].Start)
		}
	}
	return nil
}

// Merge joins interval i+1 into its predecessor when it starts before the
// predecessor's end plus gap. An interval nested inside its predecessor never
// shortens it. Inputs with fewer than two intervals are
// returned unchanged.
func Merge[T Number](in []Interval[T], gap T) []Interval[T] {
	if len(in) < 2 {
		return in
	}

	merged := make([]Interval[T], 0, len(in))
	current := in[0]
	for _, iv := range in[1:] {
		if iv.Start < current.End+gap {
			current.End = max(current.End, iv.End)
			continue
		}
		merged = append(merged, current)
		current = iv
	}
	return append(merged, current)
}

// Trim drops every interval whose length is less than or equal to minLength.
func Trim[T Number](in []Interval[T], minLength T) []Interval[T] {
	kept := make([]Interval[T], 0, len(in))
	for _, iv := range in {
		if iv.Len() > minLength {
			kept = append(kept, iv)
		}
	}
	return kept
}

// FilterOverlapping keeps the candidates whose summed overlap with filters,
// divided by the candidate's own length, is strictly below threshold.
//
// Both lists must be sorted by start. Overlaps against several filters are
// added up, so overlapping filters can push the ratio above 1; merge the
// filters first when that matters.
func FilterOverlapping[T Number](candidates, filters []Interval[T], threshold float64) []Interval[T] {
	kept := make([]Interval[T], 0, len(candidates))
	f := 0
	for _, c := range candidates {
		var overlap T
		for f < len(filters) {
			flt := filters[f]
			if flt.Start > c.End {
				break
			}
			if c.Start < flt.End {
				overlap += flt.Len() - (excess(c.Start, flt.Start) + excess(flt.End, c.End))
			}
			if c.End < flt.End {
				// the filter reaches past this candidate and may cover the next one
				break
			}
			f++
		}

		length := c.Len()
		if length <= 0 {
			if overlap <= 0 {
				kept = append(kept, c)
			}
			continue
		}
		if float64(overlap)/float64(length) < threshold {
			kept = append(kept, c)
		}
	}
	return kept
}

// LimitLength splits every interval at least limit long into the smallest
// number of near-equal sub-intervals no longer than limit. The last piece of a
// split absorbs any rounding remainder.
func LimitLength[T Number](in []Interval[T], limit T) []Interval[T] {
	if limit <= 0 {
		return in
	}

	out := make([]Interval[T], 0, len(in))
	for _, iv := range in {
		length := iv.Len()
		if length < limit {
			out = append(out, iv)
			continue
		}
		pieces := int(math.Ceil(float64(length) / float64(limit)))
		pieceLen := T(math.Ceil(float64(length) / float64(pieces)))
		for i := 0; i < pieces-1; i++ {
			start := iv.Start + T(i)*pieceLen
			out = append(out, Interval[T]{Start: start, End: start + pieceLen})
		}
		out = append(out, Interval[T]{Start: iv.Start + T(pieces-1)*pieceLen, End: iv.End})
	}
	return out
}

// TotalLength sums the lengths of in.
func TotalLength[T Number](in []Interval[T]) T {
	var total T
	for _, iv := range in {
		total += iv.Len()
	}
	return total
}

// Clip restricts every interval to [lo, hi) and drops the ones left empty.
func Clip[T Number](in []Interval[T], lo, hi T) []Interval[T] {
	out := make([]Interval[T], 0, len(in))
	for _, iv := range in {
		if iv.Start < lo {
			iv.Start = lo
		}
		if iv.End > hi {
			iv.End = hi
		}
		if iv.End > iv.Start {
			out = append(out, iv)
		}
	}
	return out
}

// ToSamples converts second-based intervals to sample indices, rounding
// seconds*rate to the nearest sample.
func ToSamples(in []Interval[float64], rate int) []Interval[int64] {
	out := make([]Interval[int64], len(in))
	for i, iv := range in {
		out[i] = Interval[int64]{
			Start: int64(math.Round(iv.Start * float64(rate))),
			End:   int64(math.Round(iv.End * float64(rate))),
		}
	}
	return out
}

// ToSeconds converts sample-index intervals to seconds.
func ToSeconds(in []Interval[int64], rate int) []Interval[float64] {
	out := make([]Interval[float64], len(in))
	for i, iv := range in {
		out[i] = Interval[float64]{
			Start: float64(iv.Start) / float64(rate),
			End:   float64(iv.End) / float64(rate),
		}
	}
	return out
}

// excess returns a-b when a > b and zero otherwise, without wrapping unsigned
// values.
func excess[T Number](a, b T) T {
	if a > b {
		return a - b
	}
	return 0
}
