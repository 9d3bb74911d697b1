package dataset

import (
	"fmt"
	"iter"
	"math"

	"github.com/therealutkarshpriyadarshi/multimodal/internal/intervals"
)

const (
	videoFramesArray = "frames"
	frameSizesArray  = "frame_sizes"
	widthAttr        = "width"
	heightAttr       = "height"
	channelsAttr     = "channels"
	codecAttr        = "codec"
)

// VideoConfig holds video facet settings
type VideoConfig struct {
	FPS        float64    // frames per second, required
	Codec      FrameCodec // default ZstdCodec
	ChunkBytes int        // bytes of the frame blob per stored chunk, default 1 MiB
}

func (c VideoConfig) withDefaults() VideoConfig {
	if c.Codec == nil {
		c.Codec = ZstdCodec{}
	}
	if c.ChunkBytes <= 0 {
		c.ChunkBytes = 1 << 20
	}
	return c
}

// VideoFacet is a sequence of independently compressed frames kept in one
// byte blob, with frame_sizes holding the end offset of every frame.
type VideoFacet struct {
	facetBase
	fps      float64
	width    int
	height   int
	channels int
	codec    FrameCodec
	length   int

	// index caches frame_sizes, see ensureIndex
	index []int64
}

// SliceFrames adapts a slice to the frame sequence CreateVideoFacet reads.
func SliceFrames(frames []Frame) iter.Seq2[Frame, error] {
	return func(yield func(Frame, error) bool) {
		for _, f := range frames {
			if !yield(f, nil) {
				return
			}
		}
	}
}

// CreateVideoFacet encodes frames one at a time into a new facet of m. All
// frames must share the dimensions of the first. An error from the sequence
// aborts the facet and is returned wrapped in ErrExternal.
func CreateVideoFacet(m *Modality, name string, frames iter.Seq2[Frame, error], cfg VideoConfig) (*VideoFacet, error) {
	cfg = cfg.withDefaults()
	if !(cfg.FPS > 0) {
		return nil, fmt.Errorf("%w: frame rate %v", ErrPrecondition, cfg.FPS)
	}

	f := &VideoFacet{
		facetBase: facetBase{modality: m, name: name},
		fps:       cfg.FPS,
		codec:     cfg.Codec,
	}

	err := createFacet(m, name, TypeVideo, func(path string) error {
		st := m.ds.store
		blob, err := st.newArrayWriter(join(path, videoFramesArray), dtypeUint8, nil, cfg.ChunkBytes, chunkRaw)
		if err != nil {
			return err
		}

		var sizes []int64
		var offset int64
		for frame, err := range frames {
			if err != nil {
				return fmt.Errorf("%w: frame %d: %v", ErrExternal, len(sizes), err)
			}
			if err := frame.validate(); err != nil {
				return fmt.Errorf("frame %d: %w", len(sizes), err)
			}
			if len(sizes) == 0 {
				f.width, f.height, f.channels = frame.Width, frame.Height, frame.Channels
			} else if frame.Width != f.width || frame.Height != f.height || frame.Channels != f.channels {
				return fmt.Errorf("%w: frame %d is %dx%dx%d, first frame is %dx%dx%d", ErrPrecondition,
					len(sizes), frame.Height, frame.Width, frame.Channels, f.height, f.width, f.channels)
			}

			data, err := cfg.Codec.Encode(frame)
			if err != nil {
				return fmt.Errorf("frame %d: %w", len(sizes), err)
			}
			if _, err := blob.Write(data); err != nil {
				return err
			}
			offset += int64(len(data))
			sizes = append(sizes, offset)
		}
		if len(sizes) == 0 {
			return fmt.Errorf("%w: video without frames", ErrPrecondition)
		}
		if err := blob.Close(); err != nil {
			return err
		}
		if err := st.writeArray(join(path, frameSizesArray), dtypeInt64, []int{len(sizes)},
			int64Bytes(sizes), 4096, chunkZstd); err != nil {
			return err
		}

		attrs := map[string]any{
			rateAttr:     cfg.FPS,
			widthAttr:    f.width,
			heightAttr:   f.height,
			channelsAttr: f.channels,
			codecAttr:    cfg.Codec.Name(),
		}
		for k, v := range attrs {
			if err := st.setAttr(path, k, v); err != nil {
				return err
			}
		}
		f.length = len(sizes)
		f.index = sizes
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.add(f)
	return f, nil
}

func openVideoFacet(base facetBase) (*VideoFacet, error) {
	st := base.store()
	path := base.Path()
	f := &VideoFacet{facetBase: base}

	var codec string
	for key, dst := range map[string]any{
		rateAttr:     &f.fps,
		widthAttr:    &f.width,
		heightAttr:   &f.height,
		channelsAttr: &f.channels,
		codecAttr:    &codec,
	} {
		if err := st.attr(path, key, dst); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
		}
	}
	if !(f.fps > 0) {
		return nil, fmt.Errorf("%w: frame rate %v", ErrSchemaMismatch, f.fps)
	}

	var err error
	if f.codec, err = CodecByName(codec); err != nil {
		return nil, err
	}

	sizes, err := st.arrayInfo(join(path, frameSizesArray))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	if sizes.DType != dtypeInt64 || len(sizes.Shape) != 1 {
		return nil, fmt.Errorf("%w: frame_sizes are %s%v", ErrSchemaMismatch, sizes.DType, sizes.Shape)
	}
	if _, err := st.arrayInfo(join(path, videoFramesArray)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	f.length = sizes.rows()
	return f, nil
}

// Type implements Facet.
func (v *VideoFacet) Type() FacetType { return TypeVideo }

// SampleRate returns the frame rate.
func (v *VideoFacet) SampleRate() float64 { return v.fps }

// Len returns the number of frames.
func (v *VideoFacet) Len() int { return v.length }

// Duration returns the stream length in seconds.
func (v *VideoFacet) Duration() float64 { return float64(v.length) / v.fps }

// Dimensions returns width, height and channels of every frame.
func (v *VideoFacet) Dimensions() (width, height, channels int) {
	return v.width, v.height, v.channels
}

// Codec returns the codec the frames were written with.
func (v *VideoFacet) Codec() FrameCodec { return v.codec }

// FrameIndex converts seconds to a frame index by flooring.
func (v *VideoFacet) FrameIndex(seconds float64) int {
	return int(math.Floor(seconds * v.fps))
}

// ensureIndex loads the frame offsets once.
func (v *VideoFacet) ensureIndex() error {
	if v.index != nil {
		return nil
	}

	st := v.store()
	raw, info, err := st.readAll(join(v.Path(), frameSizesArray))
	if err != nil {
		return fmt.Errorf("failed to read frame index of %s: %w", v.Path(), err)
	}
	blob, err := st.arrayInfo(join(v.Path(), videoFramesArray))
	if err != nil {
		return err
	}

	index := bytesInt64(raw)
	var prev int64
	for i, end := range index {
		if end < prev {
			return fmt.Errorf("%w: frame_sizes of %s decrease at %d", ErrSchemaMismatch, v.Path(), i)
		}
		prev = end
	}
	if len(index) != info.rows() || prev != int64(blob.rows()) {
		return fmt.Errorf("%w: frame_sizes of %s end at %d, blob holds %d bytes", ErrSchemaMismatch, v.Path(), prev, blob.rows())
	}
	v.index = index
	return nil
}

func (v *VideoFacet) offset(i int) int64 {
	if i == 0 {
		return 0
	}
	return v.index[i-1]
}

// GetFrameRange decodes frames [start, end). Only the blob chunks spanned by
// those frames are read.
func (v *VideoFacet) GetFrameRange(start, end int) ([]Frame, error) {
	if start < 0 || end < start || end > v.length {
		return nil, fmt.Errorf("%w: frames [%d, %d) of %s with %d frames", ErrInvalidRange, start, end, v.Path(), v.length)
	}
	if err := v.modality.ds.check(); err != nil {
		return nil, err
	}
	if err := v.ensureIndex(); err != nil {
		return nil, err
	}

	frames := make([]Frame, 0, end-start)
	if start == end {
		return frames, nil
	}

	st := v.store()
	path := join(v.Path(), videoFramesArray)
	info, err := st.arrayInfo(path)
	if err != nil {
		return nil, err
	}
	lo, hi := v.offset(start), v.offset(end)
	data, err := st.readRows(path, info, int(lo), int(hi))
	if err != nil {
		return nil, fmt.Errorf("failed to read frames of %s: %w", v.Path(), err)
	}

	for i := start; i < end; i++ {
		frame, err := v.codec.Decode(data[v.offset(i)-lo:v.offset(i+1)-lo], v.width, v.height, v.channels)
		if err != nil {
			return nil, fmt.Errorf("failed to decode frame %d of %s: %w", i, v.Path(), err)
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

// Frame decodes a single frame.
func (v *VideoFacet) Frame(i int) (Frame, error) {
	frames, err := v.GetFrameRange(i, i+1)
	if err != nil {
		return Frame{}, err
	}
	return frames[0], nil
}

// GetFrames decodes the frames between two times in seconds.
func (v *VideoFacet) GetFrames(start, end float64) ([]Frame, error) {
	return v.GetFrameRange(v.FrameIndex(start), v.FrameIndex(end))
}

// GetFramesBatch decodes several time ranges given in seconds.
func (v *VideoFacet) GetFramesBatch(spans []intervals.Interval[float64]) ([][]Frame, error) {
	out := make([][]Frame, 0, len(spans))
	for _, span := range spans {
		frames, err := v.GetFrames(span.Start, span.End)
		if err != nil {
			return nil, err
		}
		out = append(out, frames)
	}
	return out, nil
}

// GetFrameRangeBatch decodes several frame index ranges.
func (v *VideoFacet) GetFrameRangeBatch(spans []intervals.Interval[int]) ([][]Frame, error) {
	out := make([][]Frame, 0, len(spans))
	for _, span := range spans {
		frames, err := v.GetFrameRange(span.Start, span.End)
		if err != nil {
			return nil, err
		}
		out = append(out, frames)
	}
	return out, nil
}
