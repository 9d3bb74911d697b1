package dataset

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therealutkarshpriyadarshi/multimodal/internal/intervals"
	"github.com/therealutkarshpriyadarshi/multimodal/pkg/models"
)

func newSubtitles(t *testing.T, cues []models.Cue) *SubtitleFacet {
	t.Helper()
	d, path := newContainer(t)
	_, err := d.CreateModality("subtitles", func(m *Modality) error {
		_, err := CreateSubtitleFacet(m, "en", cues)
		return err
	})
	require.NoError(t, err)
	require.NoError(t, d.Close())

	d, err = Open(path, ModeRead)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	f, err := d.GetFacet("subtitles", "en")
	require.NoError(t, err)
	return f.(*SubtitleFacet)
}

func TestSubtitleComplement(t *testing.T) {
	s := newSubtitles(t, testCues())

	gaps, err := s.TimesComplement(0)
	require.NoError(t, err)
	assert.Equal(t, []intervals.Interval[float64]{{Start: 0, End: 1}, {Start: 2, End: 5}}, gaps)

	gaps, err = s.TimesComplementWithin(0, 10)
	require.NoError(t, err)
	assert.Equal(t, []intervals.Interval[float64]{{Start: 0, End: 1}, {Start: 2, End: 5}, {Start: 6, End: 10}}, gaps)

	gaps, err = s.TimesComplement(1)
	require.NoError(t, err)
	assert.Equal(t, []intervals.Interval[float64]{{Start: 2, End: 5}}, gaps)
}

func TestSubtitleComplementOverlappingCues(t *testing.T) {
	s := newSubtitles(t, []models.Cue{
		{Start: 0, End: 4, Runs: []models.Run{models.PlainRun("a")}},
		{Start: 3, End: 5, Runs: []models.Run{models.PlainRun("b")}},
		{Start: 7, End: 8, Runs: []models.Run{models.PlainRun("c")}},
	})

	gaps, err := s.TimesComplement(0)
	require.NoError(t, err)
	assert.Equal(t, []intervals.Interval[float64]{{Start: 5, End: 7}}, gaps)
}

func TestSubtitleComplementGapEqualToMinimum(t *testing.T) {
	s := newSubtitles(t, []models.Cue{
		{Start: 1, End: 2, Runs: []models.Run{models.PlainRun("a")}},
		{Start: 3, End: 4, Runs: []models.Run{models.PlainRun("b")}},
	})

	// gaps must be strictly longer than minGap
	gaps, err := s.TimesComplement(1)
	require.NoError(t, err)
	assert.Empty(t, gaps)

	gaps, err = s.TimesComplementWithin(1, 5)
	require.NoError(t, err)
	assert.Empty(t, gaps)

	gaps, err = s.TimesComplementWithin(0.5, 5)
	require.NoError(t, err)
	assert.Equal(t, []intervals.Interval[float64]{{Start: 0, End: 1}, {Start: 2, End: 3}, {Start: 4, End: 5}}, gaps)
}

func TestSubtitleAccessors(t *testing.T) {
	s := newSubtitles(t, testCues())
	assert.Equal(t, 2, s.Len())

	times, err := s.Times()
	require.NoError(t, err)
	assert.Equal(t, []intervals.Interval[float64]{{Start: 1, End: 2}, {Start: 5, End: 6}}, times)

	texts, err := s.Texts()
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello", "Run", " away"}, texts)

	cue, err := s.Cue(1)
	require.NoError(t, err)
	assert.Equal(t, testCues()[1], cue)

	text, err := s.Text(1)
	require.NoError(t, err)
	assert.Equal(t, "Run away", text)

	_, err = s.Cue(2)
	assert.ErrorIs(t, err, ErrInvalidRange)

	filtered, err := s.TimesFiltered(func(text string) bool { return strings.Contains(text, "away") })
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, 5.0, filtered[0].Start)
	assert.Equal(t, " away", filtered[0].Text)
}

func TestSubtitleSubRip(t *testing.T) {
	s := newSubtitles(t, testCues())

	text, err := s.SubRip()
	require.NoError(t, err)
	assert.Equal(t, "1\n00:00:01,000 --> 00:00:02,000\nHello\n\n"+
		"2\n00:00:05,000 --> 00:00:06,000\n<font color=\"#ff0000\"><b>Run</b></font> away\n\n", text)
}

func TestSubtitleEmpty(t *testing.T) {
	s := newSubtitles(t, nil)
	assert.Equal(t, 0, s.Len())

	gaps, err := s.TimesComplementWithin(0.5, 3)
	require.NoError(t, err)
	assert.Equal(t, []intervals.Interval[float64]{{Start: 0, End: 3}}, gaps)
}
