// Package ingest builds containers from a video file and its subtitle files.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/therealutkarshpriyadarshi/multimodal/internal/dataset"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/logging"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/media"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/subrip"
	"github.com/therealutkarshpriyadarshi/multimodal/pkg/models"
)

// Facet names written by MakeDataset.
const (
	AudioFacetName = "pcm"
	VideoFacetName = "rgb"
)

// Decoder is the media decoding MakeDataset needs. *media.FFmpeg implements it.
type Decoder interface {
	VideoInfo(ctx context.Context, path string) (*media.VideoInfo, error)
	DecodeAudio(ctx context.Context, path string, sampleRate int) ([]int16, error)
	Frames(ctx context.Context, path string, width, height int) iter.Seq2[dataset.Frame, error]
}

// Options describes one container to build
type Options struct {
	VideoPath     string
	OutputPath    string // default: VideoPath with a .db extension
	SubtitlePaths []string

	SkipAudio     bool
	SkipVideo     bool
	SkipSubtitles bool

	Audio     dataset.AudioConfig
	Video     dataset.VideoConfig // FPS is taken from the probed stream
	ShortSide int                 // frames are scaled so the shorter side has this length, default 256

	Logger *logging.Logger
}

func (o Options) withDefaults() Options {
	if o.OutputPath == "" {
		o.OutputPath = strings.TrimSuffix(o.VideoPath, filepath.Ext(o.VideoPath)) + ".db"
	}
	if o.Audio.SampleRate <= 0 {
		o.Audio.SampleRate = 16000
	}
	if o.ShortSide <= 0 {
		o.ShortSide = 256
	}
	if o.Logger == nil {
		o.Logger = logging.Nop()
	}
	return o
}

// MakeDataset creates a container holding the audio, subtitle and video
// modalities of a video. Any failure removes the partially written file.
func MakeDataset(ctx context.Context, dec Decoder, opts Options) (path string, err error) {
	opts = opts.withDefaults()
	logger := opts.Logger.WithDataset(opts.OutputPath)
	key := filepath.Base(opts.OutputPath)

	if opts.SkipAudio && opts.SkipVideo && (opts.SkipSubtitles || len(opts.SubtitlePaths) == 0) {
		return "", fmt.Errorf("%w: nothing to ingest from %s", dataset.ErrPrecondition, opts.VideoPath)
	}

	var info *media.VideoInfo
	if !opts.SkipAudio || !opts.SkipVideo {
		if info, err = dec.VideoInfo(ctx, opts.VideoPath); err != nil {
			return "", fmt.Errorf("%w: failed to probe %s: %v", dataset.ErrExternal, opts.VideoPath, err)
		}
	}

	defer func() {
		if err != nil {
			if rerr := os.Remove(opts.OutputPath); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
				logger.WithError(rerr).Warn("Failed to remove incomplete dataset")
			}
		}
	}()

	err = dataset.With(opts.OutputPath, dataset.ModeCreate, func(d *dataset.Dataset) error {
		d.SetLogger(opts.Logger)

		if !opts.SkipAudio {
			if !info.HasAudio {
				return fmt.Errorf("%w: audio in %s", media.ErrNoStream, opts.VideoPath)
			}
			if err := stage(logger, key, "audio", func() error { return addAudio(ctx, d, dec, opts) }); err != nil {
				return err
			}
		}
		if !opts.SkipSubtitles && len(opts.SubtitlePaths) > 0 {
			if err := stage(logger, key, "subtitles", func() error { return addSubtitles(d, opts.SubtitlePaths, logger) }); err != nil {
				return err
			}
		}
		if !opts.SkipVideo {
			if err := stage(logger, key, "video", func() error { return addVideo(ctx, d, dec, info, opts) }); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return opts.OutputPath, nil
}

func stage(logger *logging.Logger, key, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	logger.LogIngestEvent(key, name, time.Since(start), err)
	return err
}

func addAudio(ctx context.Context, d *dataset.Dataset, dec Decoder, opts Options) error {
	samples, err := dec.DecodeAudio(ctx, opts.VideoPath, opts.Audio.SampleRate)
	if err != nil {
		return fmt.Errorf("%w: failed to decode audio of %s: %v", dataset.ErrExternal, opts.VideoPath, err)
	}
	_, err = d.CreateModality(dataset.ModalityAudio, func(m *dataset.Modality) error {
		_, err := dataset.CreateAudioFacet(m, AudioFacetName, samples, opts.Audio)
		return err
	})
	return err
}

func addVideo(ctx context.Context, d *dataset.Dataset, dec Decoder, info *media.VideoInfo, opts Options) error {
	width, height := media.ScaleShortSide(info.Width, info.Height, opts.ShortSide)
	cfg := opts.Video
	cfg.FPS = info.FPS
	_, err := d.CreateModality(dataset.ModalityVideo, func(m *dataset.Modality) error {
		_, err := dataset.CreateVideoFacet(m, VideoFacetName, dec.Frames(ctx, opts.VideoPath, width, height), cfg)
		return err
	})
	return err
}

func addSubtitles(d *dataset.Dataset, paths []string, logger *logging.Logger) error {
	_, err := d.CreateModality(dataset.ModalitySubtitles, func(m *dataset.Modality) error {
		return addSubtitleFacets(m, paths, logger)
	})
	return err
}

func addSubtitleFacets(m *dataset.Modality, paths []string, logger *logging.Logger) error {
	for _, path := range paths {
		cues, err := ReadSubtitles(path, logger)
		if err != nil {
			return err
		}
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		if _, err := dataset.CreateSubtitleFacet(m, name, cues); err != nil {
			return fmt.Errorf("failed to store subtitles %s: %w", path, err)
		}
	}
	return nil
}

// ReadSubtitles parses a SubRip file into cues sorted by start. Cues that end
// before they start are dropped.
func ReadSubtitles(path string, logger *logging.Logger) ([]models.Cue, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open subtitles: %w", err)
	}
	defer f.Close()

	cues, err := subrip.Read(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse subtitles %s: %w", path, err)
	}

	kept := cues[:0]
	for _, cue := range cues {
		if cue.End < cue.Start {
			logger.Warnf("Dropping cue at %.3fs in %s that ends before it starts", cue.Start, path)
			continue
		}
		kept = append(kept, cue)
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Start < kept[j].Start })
	return kept, nil
}

// AddSubtitles adds one subtitle facet per file to an existing container.
// With removeExisting the subtitles modality is replaced; otherwise the new
// facets join it.
func AddSubtitles(path string, files []string, removeExisting bool, logger *logging.Logger) error {
	if logger == nil {
		logger = logging.Nop()
	}
	return dataset.With(path, dataset.ModeReadWrite, func(d *dataset.Dataset) error {
		d.SetLogger(logger)
		if removeExisting && d.HasModality(dataset.ModalitySubtitles) {
			if err := d.RemoveModality(dataset.ModalitySubtitles); err != nil {
				return err
			}
		}
		if !d.HasModality(dataset.ModalitySubtitles) {
			return addSubtitles(d, files, logger)
		}
		m, err := d.Modality(dataset.ModalitySubtitles)
		if err != nil {
			return err
		}
		return addSubtitleFacets(m, files, logger)
	})
}
