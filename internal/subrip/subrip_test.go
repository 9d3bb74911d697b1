package subrip

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therealutkarshpriyadarshi/multimodal/pkg/models"
)

const sample = "1\r\n00:00:01,000 --> 00:00:02,500\r\nHello <b>there</b>\r\n\r\n" +
	"2\r\n00:00:05,000 --> 00:00:06,000 X1:10 X2:20\r\n<font color=\"#ff8000\"><i>Watch out!</i></font>\r\nSecond line\r\n\r\n"

func TestParse(t *testing.T) {
	cues, err := Parse(sample)
	require.NoError(t, err)
	require.Len(t, cues, 2)

	assert.Equal(t, 1.0, cues[0].Start)
	assert.Equal(t, 2.5, cues[0].End)
	assert.Equal(t, []models.Run{
		models.PlainRun("Hello "),
		{Text: "there", Color: models.NoColor, Bold: true},
	}, cues[0].Runs)

	assert.Equal(t, 5.0, cues[1].Start)
	assert.Equal(t, 6.0, cues[1].End)
	require.Len(t, cues[1].Runs, 2)
	assert.Equal(t, models.Run{Text: "Watch out!", Color: models.Color{255, 128, 0}, Italic: true}, cues[1].Runs[0])
	assert.Equal(t, models.PlainRun("\nSecond line"), cues[1].Runs[1])
	assert.Equal(t, "Watch out!\nSecond line", cues[1].Text())
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"missing timing", "1\nHello\n"},
		{"bad timestamp", "1\n00:00:xx,000 --> 00:00:02,000\nHello\n"},
		{"missing end", "1\n00:00:01,000 -->\nHello\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestParseEmpty(t *testing.T) {
	cues, err := Parse("\n\n")
	require.NoError(t, err)
	assert.Empty(t, cues)
}

func TestComposeRoundTrip(t *testing.T) {
	cues := []models.Cue{
		{Start: 0.5, End: 1.25, Runs: []models.Run{models.PlainRun("Tom & Jerry")}},
		{Start: 3661.001, End: 3662, Runs: []models.Run{
			{Text: "all", Color: models.Color{0, 255, 16}, Bold: true, Italic: true, Underline: true},
			models.PlainRun(" plain"),
		}},
	}

	text := Compose(cues)
	assert.Contains(t, text, "01:01:01,001 --> 01:01:02,000")
	assert.Contains(t, text, `<font color="#00ff10"><b><i><u>all</u></i></b></font> plain`)
	assert.Contains(t, text, "Tom &amp; Jerry")

	parsed, err := Read(strings.NewReader(text))
	require.NoError(t, err)
	require.Len(t, parsed, 2)
	assert.Equal(t, cues[0].Runs, parsed[0].Runs)
	assert.Equal(t, cues[1].Runs, parsed[1].Runs)
	assert.InDelta(t, cues[1].Start, parsed[1].Start, 1e-9)
}

func TestTimestamps(t *testing.T) {
	v, err := ParseTimestamp("01:02:03.45")
	require.NoError(t, err)
	assert.InDelta(t, 3723.45, v, 1e-9)

	assert.Equal(t, "00:00:00,000", FormatTimestamp(-1))
	assert.Equal(t, "00:02:05,500", FormatTimestamp(125.5))
}
