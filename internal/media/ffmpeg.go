// Package media decodes video files through the ffmpeg and ffprobe binaries.
package media

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"os/exec"
	"strconv"
	"strings"

	"github.com/therealutkarshpriyadarshi/multimodal/internal/dataset"
)

// ErrNoStream is returned when a file has no stream of the requested kind.
var ErrNoStream = errors.New("media: no such stream")

// FFmpeg wraps FFmpeg operations
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
}

// NewFFmpeg creates a new FFmpeg instance
func NewFFmpeg(ffmpegPath, ffprobePath string) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
	}
}

// ProbeResult holds the parts of ffprobe output we read
type ProbeResult struct {
	Format  FormatInfo   `json:"format"`
	Streams []StreamInfo `json:"streams"`
}

// FormatInfo holds format information
type FormatInfo struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
}

// StreamInfo holds stream information
type StreamInfo struct {
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	FrameRate    string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	NbFrames     string `json:"nb_frames"`
	Duration     string `json:"duration"`
	SampleRate   string `json:"sample_rate"`
	Channels     int    `json:"channels"`
}

// VideoInfo describes the first video stream of a file
type VideoInfo struct {
	Width    int
	Height   int
	FPS      float64
	Frames   int // 0 when the container does not record it
	Duration float64
	HasAudio bool
}

// Probe runs ffprobe on a file
func (f *FFmpeg) Probe(ctx context.Context, inputPath string) (*ProbeResult, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		inputPath,
	}

	cmd := exec.CommandContext(ctx, f.ffprobePath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w, stderr: %s", err, stderr.String())
	}

	var result ProbeResult
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	return &result, nil
}

// VideoInfo probes the frame rate, size and length of the video stream
func (f *FFmpeg) VideoInfo(ctx context.Context, inputPath string) (*VideoInfo, error) {
	probe, err := f.Probe(ctx, inputPath)
	if err != nil {
		return nil, err
	}
	return videoInfo(probe)
}

func videoInfo(probe *ProbeResult) (*VideoInfo, error) {
	info := &VideoInfo{}
	found := false
	for _, stream := range probe.Streams {
		switch stream.CodecType {
		case "audio":
			info.HasAudio = true
		case "video":
			if found {
				continue
			}
			found = true
			info.Width = stream.Width
			info.Height = stream.Height

			rate := stream.AvgFrameRate
			if rate == "" || rate == "0/0" {
				rate = stream.FrameRate
			}
			fps, err := ParseRate(rate)
			if err != nil {
				return nil, err
			}
			info.FPS = fps
			info.Frames, _ = strconv.Atoi(stream.NbFrames)
			info.Duration, _ = strconv.ParseFloat(stream.Duration, 64)
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: video in %s", ErrNoStream, probe.Format.Filename)
	}
	if info.Duration == 0 {
		info.Duration, _ = strconv.ParseFloat(probe.Format.Duration, 64)
	}
	return info, nil
}

// ParseRate parses an ffprobe rational such as "30000/1001"
func ParseRate(s string) (float64, error) {
	num, den, ok := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid frame rate %q: %w", s, err)
	}
	if !ok {
		if n <= 0 {
			return 0, fmt.Errorf("invalid frame rate %q", s)
		}
		return n, nil
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid frame rate %q: %w", s, err)
	}
	if d == 0 || n <= 0 {
		return 0, fmt.Errorf("invalid frame rate %q", s)
	}
	return n / d, nil
}

// ScaleShortSide returns the size with the shorter side scaled to short,
// keeping the aspect ratio and rounding both sides to even numbers.
func ScaleShortSide(width, height, short int) (int, int) {
	if width <= 0 || height <= 0 || short <= 0 {
		return width, height
	}
	even := func(v float64) int {
		n := int(v+0.5) &^ 1
		return max(n, 2)
	}
	if width < height {
		return even(float64(short)), even(float64(height) * float64(short) / float64(width))
	}
	return even(float64(width) * float64(short) / float64(height)), even(float64(short))
}

// DecodeAudio decodes the first audio stream to mono signed 16-bit PCM
func (f *FFmpeg) DecodeAudio(ctx context.Context, inputPath string, sampleRate int) ([]int16, error) {
	args := []string{
		"-v", "error",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"pipe:1",
	}

	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg audio decode failed: %w, stderr: %s", err, stderr.String())
	}

	raw := stdout.Bytes()
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[2*i:]))
	}
	return samples, nil
}

// Frames decodes the video stream to RGB frames of the given size. The
// sequence stops at the first error; breaking out of it kills ffmpeg.
func (f *FFmpeg) Frames(ctx context.Context, inputPath string, width, height int) iter.Seq2[dataset.Frame, error] {
	return func(yield func(dataset.Frame, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		args := []string{
			"-v", "error",
			"-i", inputPath,
			"-an",
			"-vf", fmt.Sprintf("scale=%d:%d", width, height),
			"-pix_fmt", "rgb24",
			"-f", "rawvideo",
			"pipe:1",
		}
		cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)

		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			yield(dataset.Frame{}, fmt.Errorf("failed to create stdout pipe: %w", err))
			return
		}
		if err := cmd.Start(); err != nil {
			yield(dataset.Frame{}, fmt.Errorf("failed to start ffmpeg: %w", err))
			return
		}

		size := width * height * 3
		for {
			pix := make([]uint8, size)
			_, err := io.ReadFull(stdout, pix)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				cancel()
				cmd.Wait()
				yield(dataset.Frame{}, fmt.Errorf("failed to read frame: %w, stderr: %s", err, stderr.String()))
				return
			}
			if !yield(dataset.Frame{Width: width, Height: height, Channels: 3, Pix: pix}, nil) {
				cancel()
				cmd.Wait()
				return
			}
		}

		if err := cmd.Wait(); err != nil {
			yield(dataset.Frame{}, fmt.Errorf("ffmpeg frame decode failed: %w, stderr: %s", err, stderr.String()))
		}
	}
}
