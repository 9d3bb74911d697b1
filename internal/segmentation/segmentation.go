// Package segmentation derives speech annotations from a container: voiced
// segments of every audio facet, and the voiced audio that no subtitle covers.
package segmentation

import (
	"errors"
	"fmt"
	"time"

	"github.com/therealutkarshpriyadarshi/multimodal/internal/dataset"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/intervals"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/logging"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/vad"
)

// VoicedSegments is the name of the interval set written by AddVoicedSegments.
const VoicedSegments = "voiced_segments"

// Config holds the thresholds of NonSubtitledSpeech
type Config struct {
	MergeSubtitles time.Duration // gap below which subtitle spans are joined
	MergeVoiced    time.Duration // gap below which kept voiced spans are joined
	Trim           time.Duration // voiced spans this short or shorter are dropped
	Coverage       float64       // subtitle coverage at which a voiced span is discarded
}

// DefaultConfig returns the thresholds used for transcription batches.
func DefaultConfig() Config {
	return Config{
		MergeSubtitles: 300 * time.Millisecond,
		MergeVoiced:    500 * time.Millisecond,
		Trim:           500 * time.Millisecond,
		Coverage:       0.7,
	}
}

// Result reports what AddVoicedSegments did for one audio facet.
type Result struct {
	Facet    string
	Skipped  bool
	Segments int
	Covered  float64 // seconds inside voiced segments
	Duration float64 // seconds of audio
}

// Speech is a voiced span without subtitles, in seconds, with its samples.
type Speech struct {
	Start   float64
	End     float64
	Samples []int16
}

// AddVoicedSegments runs voice activity detection over every audio facet and
// stores the spans as the voiced_segments interval set. Facets that already
// have the set are skipped unless overwrite is true.
func AddVoicedSegments(ds *dataset.Dataset, seg *vad.Segmenter, overwrite bool, logger *logging.Logger) ([]Result, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	all, err := ds.GetAllFacets(dataset.ModalityAudio)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(all[0]))
	for _, f := range all[0] {
		audio, ok := f.(*dataset.AudioFacet)
		if !ok {
			return nil, fmt.Errorf("%w: %s is a %s", dataset.ErrSchemaMismatch, f.Path(), f.Type())
		}
		res := Result{Facet: audio.Path(), Duration: audio.Duration()}

		exists, err := audio.HasTimeIntervals(VoicedSegments)
		if err != nil {
			return nil, err
		}
		if exists && !overwrite {
			logger.WithFacet(dataset.ModalityAudio, audio.Name()).Info("Voiced segments already present, skipping")
			res.Skipped = true
			results = append(results, res)
			continue
		}

		samples, err := audio.AllSamples()
		if err != nil {
			return nil, err
		}
		spans, err := seg.Intervals(samples, audio.Rate())
		if err != nil {
			return nil, fmt.Errorf("failed to segment %s: %w", audio.Path(), err)
		}
		if err := audio.AddTimeIntervals(VoicedSegments, spans, overwrite); err != nil {
			return nil, err
		}

		res.Segments = len(spans)
		res.Covered = float64(intervals.TotalLength(spans)) / float64(audio.Rate())
		logger.LogSegmentation(ds.Path(), audio.Path(), res.Segments, res.Covered, res.Duration)
		results = append(results, res)
	}
	return results, nil
}

// NonSubtitledSpeech returns the voiced spans of the default audio facet that
// the default subtitle facet does not cover. Subtitle spans are merged, voiced
// segments covered at cfg.Coverage or more are discarded, and the rest are
// merged and trimmed. The voiced_segments set must already exist.
func NonSubtitledSpeech(ds *dataset.Dataset, cfg Config) ([]Speech, error) {
	f, err := ds.GetFacet(dataset.ModalityAudio, "")
	if err != nil {
		return nil, err
	}
	audio, ok := f.(*dataset.AudioFacet)
	if !ok {
		return nil, fmt.Errorf("%w: %s is a %s", dataset.ErrSchemaMismatch, f.Path(), f.Type())
	}
	f, err = ds.GetFacet(dataset.ModalitySubtitles, "")
	if err != nil {
		return nil, err
	}
	sub, ok := f.(*dataset.SubtitleFacet)
	if !ok {
		return nil, fmt.Errorf("%w: %s is a %s", dataset.ErrSchemaMismatch, f.Path(), f.Type())
	}

	spans, err := NonSubtitledSpans(audio, sub, cfg)
	if err != nil {
		return nil, err
	}
	clips, err := audio.GetSamplesBatch(spans)
	if err != nil {
		return nil, err
	}

	rate := float64(audio.Rate())
	out := make([]Speech, len(spans))
	for i, span := range spans {
		out[i] = Speech{Start: float64(span.Start) / rate, End: float64(span.End) / rate, Samples: clips[i]}
	}
	return out, nil
}

// NonSubtitledSpans computes the sample spans of NonSubtitledSpeech without
// reading any audio.
func NonSubtitledSpans(audio *dataset.AudioFacet, sub *dataset.SubtitleFacet, cfg Config) ([]intervals.Interval[int64], error) {
	rate := audio.Rate()
	times, err := sub.Times()
	if err != nil {
		return nil, err
	}
	subtitled := intervals.Merge(intervals.ToSamples(times, rate), durationSamples(cfg.MergeSubtitles, rate))

	voiced, err := audio.GetTimeIntervals(VoicedSegments)
	if errors.Is(err, dataset.ErrNotFound) {
		return nil, fmt.Errorf("%s has no %s, run voice activity detection first: %w", audio.Path(), VoicedSegments, err)
	}
	if err != nil {
		return nil, err
	}

	kept := intervals.FilterOverlapping(voiced, subtitled, cfg.Coverage)
	merged := intervals.Merge(kept, durationSamples(cfg.MergeVoiced, rate))
	return intervals.Trim(merged, durationSamples(cfg.Trim, rate)), nil
}

func durationSamples(d time.Duration, rate int) int64 {
	return d.Milliseconds() * int64(rate) / 1000
}
