package dataset

import (
	"errors"
	"iter"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therealutkarshpriyadarshi/multimodal/internal/intervals"
)

func testFrames(n, width, height int) []Frame {
	frames := make([]Frame, n)
	for i := range frames {
		pix := make([]uint8, width*height*3)
		for j := range pix {
			pix[j] = uint8((i*7 + j) % 251)
		}
		frames[i] = Frame{Width: width, Height: height, Channels: 3, Pix: pix}
	}
	return frames
}

func TestVideoRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "video.db")
	frames := testFrames(40, 32, 24)

	err := With(path, ModeCreate, func(d *Dataset) error {
		_, err := d.CreateModality("video", func(m *Modality) error {
			// small chunks so a frame range spans several chunks
			_, err := CreateVideoFacet(m, "rgb", SliceFrames(frames), VideoConfig{FPS: 25, ChunkBytes: 1000})
			return err
		})
		return err
	})
	require.NoError(t, err)

	d, err := Open(path, ModeRead)
	require.NoError(t, err)
	defer d.Close()

	f, err := d.GetFacet("video", "")
	require.NoError(t, err)
	video := f.(*VideoFacet)
	assert.Equal(t, 40, video.Len())
	assert.Equal(t, 25.0, video.SampleRate())
	assert.Equal(t, 1.6, video.Duration())
	assert.Nil(t, video.index)

	for i := range frames {
		got, err := video.GetFrameRange(i, i+1)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, frames[i], got[0], "frame %d", i)
	}
	assert.NotNil(t, video.index)

	got, err := video.GetFrames(0.2, 0.4)
	require.NoError(t, err)
	assert.Equal(t, frames[5:10], got)

	batch, err := video.GetFrameRangeBatch([]intervals.Interval[int]{{Start: 0, End: 2}, {Start: 38, End: 40}})
	require.NoError(t, err)
	assert.Equal(t, frames[38:40], batch[1])

	_, err = video.GetFrameRange(39, 41)
	assert.ErrorIs(t, err, ErrInvalidRange)
	_, err = video.GetFrames(1.0, 0.5)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestVideoJPEGCodec(t *testing.T) {
	d, _ := newContainer(t)
	frames := testFrames(3, 16, 16)

	var video *VideoFacet
	_, err := d.CreateModality("video", func(m *Modality) error {
		var err error
		video, err = CreateVideoFacet(m, "jpeg", SliceFrames(frames), VideoConfig{FPS: 10, Codec: JPEGCodec{Quality: 95}})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, CodecJPEG, video.Codec().Name())

	got, err := video.Frame(1)
	require.NoError(t, err)
	assert.Equal(t, 16, got.Width)
	assert.Equal(t, 16, got.Height)
	assert.Equal(t, 3, got.Channels)
	assert.Len(t, got.Pix, len(frames[1].Pix))
}

func TestVideoRejectsMixedFrames(t *testing.T) {
	d, _ := newContainer(t)
	frames := append(testFrames(2, 8, 8), testFrames(1, 4, 4)...)

	_, err := d.CreateModality("video", func(m *Modality) error {
		_, err := CreateVideoFacet(m, "rgb", SliceFrames(frames), VideoConfig{FPS: 10})
		return err
	})
	assert.ErrorIs(t, err, ErrPrecondition)
	assert.False(t, d.HasModality("video"))

	_, err = d.CreateModality("video", func(m *Modality) error {
		_, err := CreateVideoFacet(m, "rgb", SliceFrames(nil), VideoConfig{FPS: 10})
		return err
	})
	assert.ErrorIs(t, err, ErrPrecondition)
}

func TestVideoSourceError(t *testing.T) {
	d, _ := newContainer(t)
	decodeErr := errors.New("corrupt packet")
	var source iter.Seq2[Frame, error] = func(yield func(Frame, error) bool) {
		if !yield(testFrames(1, 4, 4)[0], nil) {
			return
		}
		yield(Frame{}, decodeErr)
	}

	_, err := d.CreateModality("video", func(m *Modality) error {
		_, err := CreateVideoFacet(m, "rgb", source, VideoConfig{FPS: 10})
		return err
	})
	assert.ErrorIs(t, err, ErrExternal)
}
