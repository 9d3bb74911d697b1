package dataset

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
)

// Frame is a decoded video frame stored row-major as Height x Width x
// Channels bytes.
type Frame struct {
	Width    int
	Height   int
	Channels int
	Pix      []uint8
}

// Size returns the expected length of Pix.
func (f Frame) Size() int {
	return f.Width * f.Height * f.Channels
}

func (f Frame) validate() error {
	if f.Width < 1 || f.Height < 1 || f.Channels < 1 {
		return fmt.Errorf("%w: frame of %dx%dx%d", ErrPrecondition, f.Height, f.Width, f.Channels)
	}
	if len(f.Pix) != f.Size() {
		return fmt.Errorf("%w: frame of %dx%dx%d holds %d bytes", ErrPrecondition, f.Height, f.Width, f.Channels, len(f.Pix))
	}
	return nil
}

// FrameCodec compresses single frames independently of each other.
type FrameCodec interface {
	// Name is persisted with the facet and used to find the codec on read.
	Name() string
	Encode(Frame) ([]byte, error)
	Decode(data []byte, width, height, channels int) (Frame, error)
}

// Codec names.
const (
	CodecZstd = "zstd"
	CodecJPEG = "jpeg"
)

// CodecByName returns a codec for a persisted codec name.
func CodecByName(name string) (FrameCodec, error) {
	switch name {
	case CodecZstd, "":
		return ZstdCodec{}, nil
	case CodecJPEG:
		return JPEGCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown frame codec %q", ErrSchemaMismatch, name)
	}
}

// ZstdCodec is a lossless codec compressing the raw pixels with zstd.
type ZstdCodec struct{}

func (ZstdCodec) Name() string { return CodecZstd }

func (ZstdCodec) Encode(f Frame) ([]byte, error) {
	return compress(f.Pix)
}

func (ZstdCodec) Decode(data []byte, width, height, channels int) (Frame, error) {
	pix, err := decompress(data)
	if err != nil {
		return Frame{}, err
	}
	f := Frame{Width: width, Height: height, Channels: channels, Pix: pix}
	if err := f.validate(); err != nil {
		return Frame{}, fmt.Errorf("%w: decoded frame: %v", ErrSchemaMismatch, err)
	}
	return f, nil
}

// JPEGCodec is a lossy codec for 1- or 3-channel frames.
type JPEGCodec struct {
	Quality int // default 90
}

func (JPEGCodec) Name() string { return CodecJPEG }

func (c JPEGCodec) Encode(f Frame) ([]byte, error) {
	quality := c.Quality
	if quality == 0 {
		quality = 90
	}

	var img image.Image
	rect := image.Rect(0, 0, f.Width, f.Height)
	switch f.Channels {
	case 1:
		img = &image.Gray{Pix: f.Pix, Stride: f.Width, Rect: rect}
	case 3:
		rgba := image.NewRGBA(rect)
		for i, j := 0, 0; i < len(f.Pix); i, j = i+3, j+4 {
			rgba.Pix[j], rgba.Pix[j+1], rgba.Pix[j+2], rgba.Pix[j+3] = f.Pix[i], f.Pix[i+1], f.Pix[i+2], 0xff
		}
		img = rgba
	default:
		return nil, fmt.Errorf("%w: jpeg cannot encode %d channels", ErrPrecondition, f.Channels)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("%w: jpeg encode: %v", ErrExternal, err)
	}
	return buf.Bytes(), nil
}

func (JPEGCodec) Decode(data []byte, width, height, channels int) (Frame, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return Frame{}, fmt.Errorf("%w: jpeg decode: %v", ErrExternal, err)
	}
	b := img.Bounds()
	if b.Dx() != width || b.Dy() != height {
		return Frame{}, fmt.Errorf("%w: jpeg frame is %dx%d, want %dx%d", ErrSchemaMismatch, b.Dx(), b.Dy(), width, height)
	}

	f := Frame{Width: width, Height: height, Channels: channels, Pix: make([]uint8, 0, width*height*channels)}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			switch channels {
			case 1:
				f.Pix = append(f.Pix, uint8(r>>8))
			default:
				f.Pix = append(f.Pix, uint8(r>>8), uint8(g>>8), uint8(bl>>8))
			}
		}
	}
	return f, nil
}
