package transcript

import (
	"strings"

	"github.com/therealutkarshpriyadarshi/multimodal/internal/intervals"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/subrip"
	"github.com/therealutkarshpriyadarshi/multimodal/pkg/models"
)

// ToCues converts transcripts to subtitle cues. Words closer than minGap
// seconds are merged into one cue; transcripts without word times become a
// single cue holding the whole transcript.
func ToCues(transcripts []models.Transcription, minGap float64) []models.Cue {
	var cues []models.Cue
	for _, t := range transcripts {
		if len(t.Words) == 0 {
			cues = append(cues, models.Cue{Start: t.Start, End: t.End, Runs: []models.Run{models.PlainRun(t.Transcript)}})
			continue
		}

		words := make([]intervals.Annotated[float64, string], len(t.Words))
		for i, w := range t.Words {
			words[i] = intervals.Annotated[float64, string]{
				Interval: intervals.Interval[float64]{Start: w.Start, End: w.End},
				Payload:  w.Word,
			}
		}
		for _, g := range intervals.MergeAnnotated(words, minGap) {
			cues = append(cues, models.Cue{
				Start: g.Start,
				End:   g.End,
				Runs:  []models.Run{models.PlainRun(strings.Join(g.Payloads, " "))},
			})
		}
	}
	return cues
}

// ToSubRip renders transcripts as SubRip text, see ToCues.
func ToSubRip(transcripts []models.Transcription, minGap float64) string {
	return subrip.Compose(ToCues(transcripts, minGap))
}
