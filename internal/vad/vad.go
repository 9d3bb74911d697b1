// Package vad splits a PCM signal into voiced spans. Frames of a fixed
// duration are classified one at a time and a hysteresis ring buffer decides
// when a span starts and ends.
package vad

import (
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/therealutkarshpriyadarshi/multimodal/internal/intervals"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/logging"
)

var (
	// ErrClassifier wraps every error reported by a Classifier.
	ErrClassifier = errors.New("vad: classifier failed")
	// ErrConfig is returned when the frame duration yields no samples at the
	// given sample rate.
	ErrConfig = errors.New("vad: invalid configuration")
)

// Classifier decides whether a single frame of 16-bit mono PCM holds speech.
type Classifier interface {
	IsSpeech(frame []int16, sampleRate int) (bool, error)
}

// Config holds segmenter settings
type Config struct {
	FrameDuration   time.Duration // length of one classified frame, default 30ms
	PaddingDuration time.Duration // ring buffer span, default 100ms
	TriggerRatio    float64       // share of buffered frames needed to switch state, default 0.9
}

// DefaultConfig returns the settings used for voiced-segment annotation.
func DefaultConfig() Config {
	return Config{
		FrameDuration:   30 * time.Millisecond,
		PaddingDuration: 100 * time.Millisecond,
		TriggerRatio:    0.9,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FrameDuration <= 0 {
		c.FrameDuration = d.FrameDuration
	}
	if c.PaddingDuration <= 0 {
		c.PaddingDuration = d.PaddingDuration
	}
	if c.TriggerRatio <= 0 || c.TriggerRatio > 1 {
		c.TriggerRatio = d.TriggerRatio
	}
	return c
}

// Segment is a voiced span in sample units. Samples aliases the input signal.
type Segment struct {
	Start   int64
	End     int64
	Samples []int16
}

// Segmenter runs the voiced/unvoiced state machine over a signal.
type Segmenter struct {
	classifier Classifier
	config     Config
	logger     *logging.Logger
}

// NewSegmenter creates a segmenter. A nil logger discards output.
func NewSegmenter(classifier Classifier, cfg Config, logger *logging.Logger) *Segmenter {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Segmenter{
		classifier: classifier,
		config:     cfg.withDefaults(),
		logger:     logger,
	}
}

// FrameLength returns the number of samples per frame at sampleRate.
func (s *Segmenter) FrameLength(sampleRate int) int {
	return int(s.config.FrameDuration.Milliseconds()) * sampleRate / 1000
}

func (s *Segmenter) bufferFrames() int {
	n := int(s.config.PaddingDuration / s.config.FrameDuration)
	if n < 1 {
		return 1
	}
	return n
}

// Segments lazily yields the voiced spans of samples in increasing order.
// Samples after the last whole frame are ignored. The sequence stops at the
// first classifier error, which is yielded wrapped in ErrClassifier.
func (s *Segmenter) Segments(samples []int16, sampleRate int) iter.Seq2[Segment, error] {
	return func(yield func(Segment, error) bool) {
		frameLen := s.FrameLength(sampleRate)
		if frameLen < 1 {
			yield(Segment{}, fmt.Errorf("%w: frame of %s at %d Hz holds no samples",
				ErrConfig, s.config.FrameDuration, sampleRate))
			return
		}

		buf := newRing(s.bufferFrames())
		threshold := s.config.TriggerRatio * float64(buf.capacity())
		triggered := false
		var spanStart int64

		numFrames := len(samples) / frameLen
		for i := 0; i < numFrames; i++ {
			start := i * frameLen
			frame := samples[start : start+frameLen]
			voiced, err := s.classifier.IsSpeech(frame, sampleRate)
			if err != nil {
				yield(Segment{}, fmt.Errorf("%w: frame %d at sample %d: %v", ErrClassifier, i, start, err))
				return
			}
			buf.push(voiced)

			if !triggered {
				if float64(buf.voiced()) >= threshold {
					triggered = true
					spanStart = int64(start - (buf.len()-1)*frameLen)
					buf.reset()
				}
				continue
			}

			if float64(buf.unvoiced()) >= threshold {
				triggered = false
				end := int64(start + frameLen)
				buf.reset()
				if !yield(Segment{Start: spanStart, End: end, Samples: samples[spanStart:end]}, nil) {
					return
				}
			}
		}

		if triggered {
			end := int64(numFrames * frameLen)
			yield(Segment{Start: spanStart, End: end, Samples: samples[spanStart:end]}, nil)
		}
	}
}

// Intervals collects the voiced spans as sample intervals.
func (s *Segmenter) Intervals(samples []int16, sampleRate int) ([]intervals.Interval[int64], error) {
	spans := make([]intervals.Interval[int64], 0)
	for seg, err := range s.Segments(samples, sampleRate) {
		if err != nil {
			return nil, err
		}
		spans = append(spans, intervals.Interval[int64]{Start: seg.Start, End: seg.End})
	}

	s.logger.WithFields(map[string]interface{}{
		"samples":     len(samples),
		"sample_rate": sampleRate,
		"segments":    len(spans),
	}).Debug("Voice activity segmentation finished")

	return spans, nil
}
