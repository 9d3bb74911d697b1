// Package align pairs the streams of a container over shared time spans:
// subtitle cues, the gaps between them, or a stored auxiliary interval set.
package align

import (
	"fmt"
	"math/rand/v2"

	"github.com/therealutkarshpriyadarshi/multimodal/internal/dataset"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/intervals"
)

// Options controls how spans are cut out of the streams.
type Options struct {
	// MaxDuration caps the length of every span in seconds. Longer spans are
	// replaced by a window of exactly MaxDuration at a uniformly random offset.
	// Zero disables capping.
	MaxDuration float64
	// Rand draws the window offsets and is required when MaxDuration > 0.
	Rand *rand.Rand
}

func (o Options) validate() error {
	if o.MaxDuration < 0 {
		return fmt.Errorf("%w: negative max duration %v", dataset.ErrPrecondition, o.MaxDuration)
	}
	if o.MaxDuration > 0 && o.Rand == nil {
		return fmt.Errorf("%w: max duration set without a random source", dataset.ErrPrecondition)
	}
	return nil
}

// window applies MaxDuration to span.
func (o Options) window(span intervals.Interval[float64]) intervals.Interval[float64] {
	if o.MaxDuration <= 0 || span.Len() <= o.MaxDuration {
		return span
	}
	start := span.Start + o.Rand.Float64()*(span.Len()-o.MaxDuration)
	return intervals.Interval[float64]{Start: start, End: start + o.MaxDuration}
}

// Clip is the part of one stream covered by a span. Exactly one of Samples
// and Frames is set, depending on the facet type.
type Clip struct {
	Facet   string
	Samples []int16
	Frames  []dataset.Frame
}

// Item is one aligned span with the clip of every requested stream.
type Item struct {
	Span  intervals.Interval[float64]
	Text  string
	Clips []Clip
}

// WithSubtitles returns one item per subtitle cue, carrying the cue text and
// the matching clip of every stream.
func WithSubtitles(sub *dataset.SubtitleFacet, streams []dataset.Stream, opts Options) ([]Item, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	times, err := sub.Times()
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(times))
	for i, span := range times {
		text, err := sub.Text(i)
		if err != nil {
			return nil, err
		}
		item, err := cut(opts.window(span), streams)
		if err != nil {
			return nil, fmt.Errorf("failed to align cue %d of %s: %w", i, sub.Path(), err)
		}
		item.Text = text
		items = append(items, item)
	}
	return items, nil
}

// Complement returns one item per gap between subtitle cues longer than
// minGap, up to the end of the shortest stream.
func Complement(sub *dataset.SubtitleFacet, streams []dataset.Stream, minGap float64, opts Options) ([]Item, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if len(streams) == 0 {
		return nil, fmt.Errorf("%w: complement needs at least one stream", dataset.ErrPrecondition)
	}
	end := streams[0].Duration()
	for _, s := range streams[1:] {
		end = min(end, s.Duration())
	}

	gaps, err := sub.TimesComplementWithin(minGap, end)
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(gaps))
	for _, gap := range gaps {
		item, err := cut(opts.window(gap), streams)
		if err != nil {
			return nil, fmt.Errorf("failed to align gap [%v, %v) of %s: %w", gap.Start, gap.End, sub.Path(), err)
		}
		items = append(items, item)
	}
	return items, nil
}

// Intervals returns the audio clips of a stored interval set.
func Intervals(audio *dataset.AudioFacet, name string, opts Options) ([]Item, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	spans, err := audio.GetTimeIntervals(name)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(spans))
	for _, span := range intervals.ToSeconds(spans, audio.Rate()) {
		item, err := cut(opts.window(span), []dataset.Stream{audio})
		if err != nil {
			return nil, fmt.Errorf("failed to read %s interval [%v, %v) of %s: %w", name, span.Start, span.End, audio.Path(), err)
		}
		items = append(items, item)
	}
	return items, nil
}

func cut(span intervals.Interval[float64], streams []dataset.Stream) (Item, error) {
	item := Item{Span: span, Clips: make([]Clip, 0, len(streams))}
	for _, s := range streams {
		clip, err := clipStream(s, span)
		if err != nil {
			return Item{}, err
		}
		item.Clips = append(item.Clips, clip)
	}
	return item, nil
}

// clipStream reads span from s. The end is clipped to the stream length; a
// span starting at or after the end of the stream is an error.
func clipStream(s dataset.Stream, span intervals.Interval[float64]) (Clip, error) {
	if span.Start >= s.Duration() {
		return Clip{}, fmt.Errorf("%w: span starts at %vs, %s ends at %vs", dataset.ErrInvalidRange, span.Start, s.Path(), s.Duration())
	}
	end := min(span.End, s.Duration())

	clip := Clip{Facet: s.Path()}
	switch f := s.(type) {
	case *dataset.AudioFacet:
		start, stop := f.SampleIndex(span.Start), min(f.SampleIndex(end), int64(f.Len()))
		samples, err := f.GetSamples(start, max(start, stop))
		if err != nil {
			return Clip{}, err
		}
		clip.Samples = samples
	case *dataset.VideoFacet:
		start, stop := f.FrameIndex(span.Start), min(f.FrameIndex(end), f.Len())
		frames, err := f.GetFrameRange(start, max(start, stop))
		if err != nil {
			return Clip{}, err
		}
		clip.Frames = frames
	default:
		return Clip{}, fmt.Errorf("%w: %s is a %s", dataset.ErrUnknownFacetType, s.Path(), s.Type())
	}
	return clip, nil
}
