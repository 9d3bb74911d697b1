package dataset

import (
	"errors"
	"fmt"
	"math"

	"github.com/therealutkarshpriyadarshi/multimodal/internal/intervals"
)

const (
	audioSamplesArray = "sound"
	rateAttr          = "rate"
	timeIntervalGroup = "time_intervals"
)

// AudioConfig holds audio facet settings
type AudioConfig struct {
	SampleRate  int // Hz, default 16000
	ChunkLength int // samples per stored chunk, default 65536
}

func (c AudioConfig) withDefaults() AudioConfig {
	if c.SampleRate == 0 {
		c.SampleRate = 16000
	}
	if c.ChunkLength <= 0 {
		c.ChunkLength = 65536
	}
	return c
}

// AudioFacet is a mono 16-bit PCM stream.
type AudioFacet struct {
	facetBase
	rate   int
	length int
}

// CreateAudioFacet writes samples as a new facet of m.
func CreateAudioFacet(m *Modality, name string, samples []int16, cfg AudioConfig) (*AudioFacet, error) {
	cfg = cfg.withDefaults()
	if cfg.SampleRate < 1 {
		return nil, fmt.Errorf("%w: sample rate %d", ErrPrecondition, cfg.SampleRate)
	}

	err := createFacet(m, name, TypeAudio, func(path string) error {
		if err := m.ds.store.setAttr(path, rateAttr, cfg.SampleRate); err != nil {
			return err
		}
		return m.ds.store.writeArray(join(path, audioSamplesArray), dtypeInt16,
			[]int{len(samples)}, int16Bytes(samples), cfg.ChunkLength, chunkZstd)
	})
	if err != nil {
		return nil, err
	}

	f := &AudioFacet{
		facetBase: facetBase{modality: m, name: name},
		rate:      cfg.SampleRate,
		length:    len(samples),
	}
	m.add(f)
	return f, nil
}

func openAudioFacet(base facetBase) (*AudioFacet, error) {
	st := base.store()
	path := base.Path()

	var rate int
	if err := st.attr(path, rateAttr, &rate); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	if rate < 1 {
		return nil, fmt.Errorf("%w: sample rate %d", ErrSchemaMismatch, rate)
	}
	info, err := st.arrayInfo(join(path, audioSamplesArray))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	if info.DType != dtypeInt16 || len(info.Shape) != 1 {
		return nil, fmt.Errorf("%w: samples are %s%v, want int16 vector", ErrSchemaMismatch, info.DType, info.Shape)
	}
	return &AudioFacet{facetBase: base, rate: rate, length: info.rows()}, nil
}

// Type implements Facet.
func (a *AudioFacet) Type() FacetType { return TypeAudio }

// Rate returns the sample rate in Hz.
func (a *AudioFacet) Rate() int { return a.rate }

// SampleRate implements Stream.
func (a *AudioFacet) SampleRate() float64 { return float64(a.rate) }

// Len returns the number of samples.
func (a *AudioFacet) Len() int { return a.length }

// Duration returns the stream length in seconds.
func (a *AudioFacet) Duration() float64 { return float64(a.length) / float64(a.rate) }

// SampleIndex converts seconds to a sample index by rounding.
func (a *AudioFacet) SampleIndex(seconds float64) int64 {
	return int64(math.Round(seconds * float64(a.rate)))
}

// GetSamples returns samples [start, end).
func (a *AudioFacet) GetSamples(start, end int64) ([]int16, error) {
	if start < 0 || end < start || end > int64(a.length) {
		return nil, fmt.Errorf("%w: samples [%d, %d) of %s with %d samples", ErrInvalidRange, start, end, a.Path(), a.length)
	}
	st := a.store()
	path := join(a.Path(), audioSamplesArray)
	info, err := st.arrayInfo(path)
	if err != nil {
		return nil, err
	}
	raw, err := st.readRows(path, info, int(start), int(end))
	if err != nil {
		return nil, fmt.Errorf("failed to read samples of %s: %w", a.Path(), err)
	}
	return bytesInt16(raw), nil
}

// GetFrames returns the samples between two times in seconds.
func (a *AudioFacet) GetFrames(start, end float64) ([]int16, error) {
	return a.GetSamples(a.SampleIndex(start), a.SampleIndex(end))
}

// GetSamplesBatch reads several sample ranges.
func (a *AudioFacet) GetSamplesBatch(spans []intervals.Interval[int64]) ([][]int16, error) {
	out := make([][]int16, 0, len(spans))
	for _, span := range spans {
		samples, err := a.GetSamples(span.Start, span.End)
		if err != nil {
			return nil, err
		}
		out = append(out, samples)
	}
	return out, nil
}

// GetFramesBatch reads several time ranges given in seconds.
func (a *AudioFacet) GetFramesBatch(spans []intervals.Interval[float64]) ([][]int16, error) {
	out := make([][]int16, 0, len(spans))
	for _, span := range spans {
		samples, err := a.GetFrames(span.Start, span.End)
		if err != nil {
			return nil, err
		}
		out = append(out, samples)
	}
	return out, nil
}

// AllSamples returns the whole stream.
func (a *AudioFacet) AllSamples() ([]int16, error) {
	return a.GetSamples(0, int64(a.length))
}

func (a *AudioFacet) intervalPath(name string) string {
	return join(join(a.Path(), timeIntervalGroup), name)
}

// AddTimeIntervals attaches a named set of sample intervals to the facet.
// An existing set is replaced only when overwrite is true.
func (a *AudioFacet) AddTimeIntervals(name string, spans []intervals.Interval[int64], overwrite bool) error {
	if err := validName(name); err != nil {
		return err
	}
	for i, span := range spans {
		if span.End < span.Start {
			return fmt.Errorf("%w: interval %d of %q ends before it starts", ErrPrecondition, i, name)
		}
	}

	st := a.store()
	exists, err := a.HasTimeIntervals(name)
	if err != nil {
		return err
	}
	if exists {
		if !overwrite {
			return fmt.Errorf("%w: time intervals %q on %s", ErrExists, name, a.Path())
		}
		if err := st.removeArray(a.intervalPath(name)); err != nil {
			return fmt.Errorf("failed to replace time intervals %q on %s: %w", name, a.Path(), err)
		}
	}

	group := join(a.Path(), timeIntervalGroup)
	if ok, err := st.hasGroup(group); err != nil {
		return err
	} else if !ok {
		if err := st.createGroup(group); err != nil {
			return fmt.Errorf("failed to create %s: %w", group, err)
		}
	}

	flat := make([]int64, 0, 2*len(spans))
	for _, span := range spans {
		flat = append(flat, span.Start, span.End)
	}
	if err := st.writeArray(a.intervalPath(name), dtypeInt64, []int{len(spans), 2},
		int64Bytes(flat), max(len(spans), 1), chunkZstd); err != nil {
		return fmt.Errorf("failed to write time intervals %q on %s: %w", name, a.Path(), err)
	}
	return nil
}

// GetTimeIntervals returns a named interval set in samples.
func (a *AudioFacet) GetTimeIntervals(name string) ([]intervals.Interval[int64], error) {
	raw, info, err := a.store().readAll(a.intervalPath(name))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: time intervals %q on %s", ErrNotFound, name, a.Path())
		}
		return nil, err
	}
	if info.DType != dtypeInt64 || len(info.Shape) != 2 || info.Shape[1] != 2 {
		return nil, fmt.Errorf("%w: time intervals %q are %s%v", ErrSchemaMismatch, name, info.DType, info.Shape)
	}

	flat := bytesInt64(raw)
	out := make([]intervals.Interval[int64], info.rows())
	for i := range out {
		out[i] = intervals.Interval[int64]{Start: flat[2*i], End: flat[2*i+1]}
	}
	return out, nil
}

// HasTimeIntervals reports whether a named interval set exists.
func (a *AudioFacet) HasTimeIntervals(name string) (bool, error) {
	return a.store().hasArray(a.intervalPath(name))
}

// TimeIntervalNames lists the attached interval sets.
func (a *AudioFacet) TimeIntervalNames() ([]string, error) {
	return a.store().childArrays(join(a.Path(), timeIntervalGroup))
}
