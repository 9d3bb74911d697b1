package segmentation

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therealutkarshpriyadarshi/multimodal/internal/dataset"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/intervals"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/vad"
	"github.com/therealutkarshpriyadarshi/multimodal/pkg/models"
)

const rate = 1000

// loudAudio is 10 seconds at 1 kHz, silent except for the given sample spans.
func loudAudio(spans ...intervals.Interval[int]) []int16 {
	samples := make([]int16, 10*rate)
	for _, span := range spans {
		for i := span.Start; i < span.End; i++ {
			samples[i] = 1000
		}
	}
	return samples
}

func newContainer(t *testing.T, samples []int16, cues []models.Cue) *dataset.Dataset {
	t.Helper()
	d, err := dataset.Open(filepath.Join(t.TempDir(), "clip.db"), dataset.ModeCreate)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	_, err = d.CreateModality(dataset.ModalityAudio, func(m *dataset.Modality) error {
		_, err := dataset.CreateAudioFacet(m, "mono", samples, dataset.AudioConfig{SampleRate: rate})
		return err
	})
	require.NoError(t, err)
	_, err = d.CreateModality(dataset.ModalitySubtitles, func(m *dataset.Modality) error {
		_, err := dataset.CreateSubtitleFacet(m, "en", cues)
		return err
	})
	require.NoError(t, err)
	return d
}

func cue(start, end float64) models.Cue {
	return models.Cue{Start: start, End: end, Runs: []models.Run{models.PlainRun("line")}}
}

func audioFacet(t *testing.T, d *dataset.Dataset) *dataset.AudioFacet {
	t.Helper()
	f, err := d.GetFacet(dataset.ModalityAudio, "")
	require.NoError(t, err)
	return f.(*dataset.AudioFacet)
}

func TestAddVoicedSegments(t *testing.T) {
	samples := loudAudio(intervals.Interval[int]{Start: 1000, End: 3000}, intervals.Interval[int]{Start: 6000, End: 8000})
	d := newContainer(t, samples, []models.Cue{cue(1, 3)})
	seg := vad.NewSegmenter(vad.NewEnergyClassifier(500), vad.DefaultConfig(), nil)

	results, err := AddVoicedSegments(d, seg, false, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "audio/mono", results[0].Facet)
	assert.Equal(t, 2, results[0].Segments)
	assert.InDelta(t, 4.2, results[0].Covered, 1e-9)
	assert.Equal(t, 10.0, results[0].Duration)

	got, err := audioFacet(t, d).GetTimeIntervals(VoicedSegments)
	require.NoError(t, err)
	assert.Equal(t, []intervals.Interval[int64]{{Start: 990, End: 3090}, {Start: 6000, End: 8100}}, got)

	results, err = AddVoicedSegments(d, seg, false, nil)
	require.NoError(t, err)
	assert.True(t, results[0].Skipped)

	results, err = AddVoicedSegments(d, seg, true, nil)
	require.NoError(t, err)
	assert.False(t, results[0].Skipped)
	assert.Equal(t, 2, results[0].Segments)
}

func TestNonSubtitledSpeech(t *testing.T) {
	samples := loudAudio(intervals.Interval[int]{Start: 1000, End: 3000}, intervals.Interval[int]{Start: 6000, End: 8000})
	d := newContainer(t, samples, []models.Cue{cue(1, 3)})

	_, err := NonSubtitledSpeech(d, DefaultConfig())
	assert.ErrorIs(t, err, dataset.ErrNotFound)

	seg := vad.NewSegmenter(vad.NewEnergyClassifier(500), vad.DefaultConfig(), nil)
	_, err = AddVoicedSegments(d, seg, false, nil)
	require.NoError(t, err)

	speech, err := NonSubtitledSpeech(d, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, speech, 1)
	assert.Equal(t, 6.0, speech[0].Start)
	assert.Equal(t, 8.1, speech[0].End)
	assert.Len(t, speech[0].Samples, 2100)
	assert.Equal(t, int16(1000), speech[0].Samples[0])
}

func TestNonSubtitledSpans(t *testing.T) {
	d := newContainer(t, make([]int16, 10*rate), []models.Cue{cue(1.0, 2.0), cue(2.1, 2.5)})
	audio := audioFacet(t, d)
	require.NoError(t, audio.AddTimeIntervals(VoicedSegments, []intervals.Interval[int64]{
		{Start: 100, End: 400},
		{Start: 450, End: 700},
		{Start: 1200, End: 2400}, // inside the merged subtitles
		{Start: 2300, End: 3500}, // barely touched by them
		{Start: 5000, End: 5300}, // too short after merging
	}, false))

	f, err := d.GetFacet(dataset.ModalitySubtitles, "")
	require.NoError(t, err)

	spans, err := NonSubtitledSpans(audio, f.(*dataset.SubtitleFacet), DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, []intervals.Interval[int64]{{Start: 100, End: 700}, {Start: 2300, End: 3500}}, spans)
}

func TestNonSubtitledSpansNestedCue(t *testing.T) {
	// the second cue sits inside the first, which still covers 6s to 9s
	d := newContainer(t, make([]int16, 10*rate), []models.Cue{cue(0, 10), cue(2, 5)})
	audio := audioFacet(t, d)
	require.NoError(t, audio.AddTimeIntervals(VoicedSegments, []intervals.Interval[int64]{{Start: 6000, End: 9000}}, false))
	f, err := d.GetFacet(dataset.ModalitySubtitles, "")
	require.NoError(t, err)

	spans, err := NonSubtitledSpans(audio, f.(*dataset.SubtitleFacet), DefaultConfig())
	require.NoError(t, err)
	assert.Empty(t, spans)
}

func TestNonSubtitledSpansCoverage(t *testing.T) {
	d := newContainer(t, make([]int16, 10*rate), []models.Cue{cue(1.0, 2.0)})
	audio := audioFacet(t, d)
	require.NoError(t, audio.AddTimeIntervals(VoicedSegments, []intervals.Interval[int64]{{Start: 1000, End: 3000}}, false))
	f, err := d.GetFacet(dataset.ModalitySubtitles, "")
	require.NoError(t, err)
	sub := f.(*dataset.SubtitleFacet)

	// half covered: kept at 0.7, dropped at 0.5
	cfg := DefaultConfig()
	spans, err := NonSubtitledSpans(audio, sub, cfg)
	require.NoError(t, err)
	assert.Len(t, spans, 1)

	cfg.Coverage = 0.5
	spans, err = NonSubtitledSpans(audio, sub, cfg)
	require.NoError(t, err)
	assert.Empty(t, spans)
}
