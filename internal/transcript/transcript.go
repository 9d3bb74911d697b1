// Package transcript runs speech segments through a transcriber and turns
// the results into SubRip subtitles or JSON transcript files.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/time/rate"

	"github.com/therealutkarshpriyadarshi/multimodal/internal/logging"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/segmentation"
	"github.com/therealutkarshpriyadarshi/multimodal/pkg/models"
)

// ErrTranscriber wraps failures reported by a Transcriber.
var ErrTranscriber = errors.New("transcriber failed")

// Transcriber turns PCM audio into text. Word times are relative to the
// start of samples. A nil result means nothing was recognized.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []int16, sampleRate int) (*models.Transcription, error)
}

// Options controls TranscribeSegments
type Options struct {
	// Limiter bounds the request rate against a quota. Nil means unlimited.
	Limiter *rate.Limiter
	Logger  *logging.Logger
}

// NewLimiter allows perMinute requests per minute with bursts of one.
func NewLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(float64(perMinute)/60), 1)
}

// TranscribeSegments transcribes segments one after another. Each result
// takes the segment's time span and its word times are shifted by the segment
// start. Segments without a result are dropped, and the rest are returned
// sorted by start.
func TranscribeSegments(ctx context.Context, tr Transcriber, segments []segmentation.Speech, sampleRate int, opts Options) ([]models.Transcription, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	out := make([]models.Transcription, 0, len(segments))
	for i, seg := range segments {
		if opts.Limiter != nil {
			if err := opts.Limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		res, err := tr.Transcribe(ctx, seg.Samples, sampleRate)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: segment %d [%.3f, %.3f): %v", ErrTranscriber, i, seg.Start, seg.End, err)
		}
		if res == nil {
			logger.Debugf("No speech recognized in segment [%.3f, %.3f)", seg.Start, seg.End)
			continue
		}

		t := *res
		t.Start, t.End = seg.Start, seg.End
		t.Words = nil
		for _, w := range res.Words {
			w.Start += seg.Start
			w.End += seg.Start
			t.Words = append(t.Words, w)
		}
		out = append(out, t)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	logger.WithFields(map[string]interface{}{
		"segments":    len(segments),
		"transcribed": len(out),
	}).Info("Transcription finished")
	return out, nil
}
