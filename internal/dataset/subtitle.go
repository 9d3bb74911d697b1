package dataset

import (
	"fmt"
	"strings"

	"github.com/therealutkarshpriyadarshi/multimodal/internal/intervals"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/subrip"
	"github.com/therealutkarshpriyadarshi/multimodal/pkg/models"
)

const (
	timesArray        = "times"
	stringIndexArray  = "string_index"
	stringsArray      = "strings"
	stringColorsArray = "string_colors"
	stringStylesArray = "string_styles"
)

// SubtitleFacet holds timed subtitle cues. Each cue owns a range of styled
// strings through string_index, with a color and bold/italic/underline flags
// per string.
type SubtitleFacet struct {
	facetBase
	times       []float32 // n x 2
	stringIndex []uint32  // n x 2, [first, last) into strings
	strings     []string
	colors      []int16 // k x 3
	styles      []bool  // k x 3
}

// FilteredCue is a cue reduced to the strings accepted by a filter.
type FilteredCue struct {
	intervals.Interval[float64]
	Text string
}

// CreateSubtitleFacet stores cues as a new facet of m. Cues must be sorted by
// start and each must end no earlier than it starts.
func CreateSubtitleFacet(m *Modality, name string, cues []models.Cue) (*SubtitleFacet, error) {
	f := &SubtitleFacet{facetBase: facetBase{modality: m, name: name}}
	for i, cue := range cues {
		if cue.End < cue.Start {
			return nil, fmt.Errorf("%w: cue %d ends at %v before it starts at %v", ErrPrecondition, i, cue.End, cue.Start)
		}
		if i > 0 && cue.Start < cues[i-1].Start {
			return nil, fmt.Errorf("%w: cue %d starts at %v before cue %d at %v", ErrPrecondition, i, cue.Start, i-1, cues[i-1].Start)
		}

		first := uint32(len(f.strings))
		for _, run := range cue.Runs {
			f.strings = append(f.strings, run.Text)
			f.colors = append(f.colors, run.Color[0], run.Color[1], run.Color[2])
			f.styles = append(f.styles, run.Bold, run.Italic, run.Underline)
		}
		f.times = append(f.times, float32(cue.Start), float32(cue.End))
		f.stringIndex = append(f.stringIndex, first, uint32(len(f.strings)))
	}

	err := createFacet(m, name, TypeSubtitle, func(path string) error {
		st := m.ds.store
		n, k := len(cues), len(f.strings)
		if err := st.writeArray(join(path, timesArray), dtypeFloat32, []int{n, 2},
			float32Bytes(f.times), max(n, 1), chunkZstd); err != nil {
			return err
		}
		if err := st.writeArray(join(path, stringIndexArray), dtypeUint32, []int{n, 2},
			uint32Bytes(f.stringIndex), max(n, 1), chunkZstd); err != nil {
			return err
		}
		if err := st.writeStrings(join(path, stringsArray), f.strings); err != nil {
			return err
		}
		if err := st.writeArray(join(path, stringColorsArray), dtypeInt16, []int{k, 3},
			int16Bytes(f.colors), max(k, 1), chunkZstd); err != nil {
			return err
		}
		return st.writeArray(join(path, stringStylesArray), dtypeBool, []int{k, 3},
			boolBytes(f.styles), max(k, 1), chunkZstd)
	})
	if err != nil {
		return nil, err
	}

	m.add(f)
	return f, nil
}

func openSubtitleFacet(base facetBase) (*SubtitleFacet, error) {
	st := base.store()
	path := base.Path()
	f := &SubtitleFacet{facetBase: base}

	read := func(name, dtype string, cols int) ([]byte, int, error) {
		raw, info, err := st.readAll(join(path, name))
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
		}
		if info.DType != dtype || len(info.Shape) != 2 || info.Shape[1] != cols {
			return nil, 0, fmt.Errorf("%w: %s is %s%v", ErrSchemaMismatch, name, info.DType, info.Shape)
		}
		return raw, info.rows(), nil
	}

	raw, n, err := read(timesArray, dtypeFloat32, 2)
	if err != nil {
		return nil, err
	}
	f.times = bytesFloat32(raw)

	raw, ni, err := read(stringIndexArray, dtypeUint32, 2)
	if err != nil {
		return nil, err
	}
	f.stringIndex = bytesUint32(raw)

	if f.strings, err = st.readStrings(join(path, stringsArray)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}

	raw, nc, err := read(stringColorsArray, dtypeInt16, 3)
	if err != nil {
		return nil, err
	}
	f.colors = bytesInt16(raw)

	raw, ns, err := read(stringStylesArray, dtypeBool, 3)
	if err != nil {
		return nil, err
	}
	f.styles = bytesBool(raw)

	k := len(f.strings)
	if ni != n || nc != k || ns != k {
		return nil, fmt.Errorf("%w: %d times, %d string ranges, %d strings, %d colors, %d styles",
			ErrSchemaMismatch, n, ni, k, nc, ns)
	}
	for i := 0; i < n; i++ {
		first, last := f.stringIndex[2*i], f.stringIndex[2*i+1]
		if first > last || int(last) > k {
			return nil, fmt.Errorf("%w: string range %d is [%d, %d) with %d strings", ErrSchemaMismatch, i, first, last, k)
		}
	}
	return f, nil
}

// Type implements Facet.
func (s *SubtitleFacet) Type() FacetType { return TypeSubtitle }

// Len returns the number of cues.
func (s *SubtitleFacet) Len() int { return len(s.times) / 2 }

func (s *SubtitleFacet) check(i int) error {
	if err := s.modality.ds.check(); err != nil {
		return err
	}
	if i < 0 || i >= s.Len() {
		return fmt.Errorf("%w: cue %d of %s with %d cues", ErrInvalidRange, i, s.Path(), s.Len())
	}
	return nil
}

// Times returns the cue spans in seconds.
func (s *SubtitleFacet) Times() ([]intervals.Interval[float64], error) {
	if err := s.modality.ds.check(); err != nil {
		return nil, err
	}
	out := make([]intervals.Interval[float64], s.Len())
	for i := range out {
		out[i] = s.span(i)
	}
	return out, nil
}

func (s *SubtitleFacet) span(i int) intervals.Interval[float64] {
	return intervals.Interval[float64]{Start: float64(s.times[2*i]), End: float64(s.times[2*i+1])}
}

// Texts returns every stored string in order.
func (s *SubtitleFacet) Texts() ([]string, error) {
	if err := s.modality.ds.check(); err != nil {
		return nil, err
	}
	return append([]string(nil), s.strings...), nil
}

// Cue rebuilds cue i with its styled runs.
func (s *SubtitleFacet) Cue(i int) (models.Cue, error) {
	if err := s.check(i); err != nil {
		return models.Cue{}, err
	}
	span := s.span(i)
	cue := models.Cue{Start: span.Start, End: span.End}
	for j := s.stringIndex[2*i]; j < s.stringIndex[2*i+1]; j++ {
		cue.Runs = append(cue.Runs, models.Run{
			Text:      s.strings[j],
			Color:     models.Color{s.colors[3*j], s.colors[3*j+1], s.colors[3*j+2]},
			Bold:      s.styles[3*j],
			Italic:    s.styles[3*j+1],
			Underline: s.styles[3*j+2],
		})
	}
	return cue, nil
}

// Cues rebuilds every cue.
func (s *SubtitleFacet) Cues() ([]models.Cue, error) {
	cues := make([]models.Cue, 0, s.Len())
	for i := 0; i < s.Len(); i++ {
		cue, err := s.Cue(i)
		if err != nil {
			return nil, err
		}
		cues = append(cues, cue)
	}
	return cues, nil
}

// Text returns the plain text of cue i.
func (s *SubtitleFacet) Text(i int) (string, error) {
	cue, err := s.Cue(i)
	if err != nil {
		return "", err
	}
	return cue.Text(), nil
}

// TimesComplement returns the gaps before the first cue and between
// consecutive cues that are longer than minGap. Nothing after the last cue is
// returned since the stream end is unknown here.
func (s *SubtitleFacet) TimesComplement(minGap float64) ([]intervals.Interval[float64], error) {
	if err := s.modality.ds.check(); err != nil {
		return nil, err
	}

	gaps := make([]intervals.Interval[float64], 0, s.Len()+1)
	var prevEnd float64
	for i := 0; i < s.Len(); i++ {
		span := s.span(i)
		gap := intervals.Interval[float64]{Start: prevEnd, End: span.Start}
		if gap.Len() > minGap {
			gaps = append(gaps, gap)
		}
		prevEnd = max(prevEnd, span.End)
	}
	return gaps, nil
}

// TimesComplementWithin is TimesComplement plus the gap from the last cue to
// streamEnd.
func (s *SubtitleFacet) TimesComplementWithin(minGap, streamEnd float64) ([]intervals.Interval[float64], error) {
	gaps, err := s.TimesComplement(minGap)
	if err != nil {
		return nil, err
	}
	var lastEnd float64
	for i := 0; i < s.Len(); i++ {
		lastEnd = max(lastEnd, s.span(i).End)
	}
	if tail := (intervals.Interval[float64]{Start: lastEnd, End: streamEnd}); tail.Len() > minGap {
		gaps = append(gaps, tail)
	}
	return gaps, nil
}

// TimesFiltered returns the cues having at least one string accepted by keep,
// with the accepted strings joined by newlines.
func (s *SubtitleFacet) TimesFiltered(keep func(string) bool) ([]FilteredCue, error) {
	if err := s.modality.ds.check(); err != nil {
		return nil, err
	}

	var out []FilteredCue
	for i := 0; i < s.Len(); i++ {
		var kept []string
		for j := s.stringIndex[2*i]; j < s.stringIndex[2*i+1]; j++ {
			if keep(s.strings[j]) {
				kept = append(kept, s.strings[j])
			}
		}
		if len(kept) > 0 {
			out = append(out, FilteredCue{Interval: s.span(i), Text: strings.Join(kept, "\n")})
		}
	}
	return out, nil
}

// SubRip serializes the facet as SubRip text, keeping colors and styles.
func (s *SubtitleFacet) SubRip() (string, error) {
	cues, err := s.Cues()
	if err != nil {
		return "", err
	}
	return subrip.Compose(cues), nil
}
