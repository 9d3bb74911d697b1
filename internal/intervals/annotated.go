package intervals

// Annotated is an interval carrying a payload, such as a transcribed word.
type Annotated[T Number, P any] struct {
	Interval[T]
	Payload P
}

// Group is the result of merging annotated intervals: the covering span plus
// the payloads of every constituent interval in input order.
type Group[T Number, P any] struct {
	Interval[T]
	Payloads []P
}

// MergeAnnotated merges annotated intervals with the same rule as Merge and
// gathers the payloads of each merged group.
func MergeAnnotated[T Number, P any](in []Annotated[T, P], minGap T) []Group[T, P] {
	if len(in) == 0 {
		return nil
	}

	groups := make([]Group[T, P], 0, len(in))
	current := Group[T, P]{Interval: in[0].Interval, Payloads: []P{in[0].Payload}}
	for _, a := range in[1:] {
		if a.Start < current.End+minGap {
			current.End = max(current.End, a.End)
			current.Payloads = append(current.Payloads, a.Payload)
			continue
		}
		groups = append(groups, current)
		current = Group[T, P]{Interval: a.Interval, Payloads: []P{a.Payload}}
	}
	return append(groups, current)
}
