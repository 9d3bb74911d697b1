package models

import "strings"

// Color is an RGB triplet. NoColor marks a run without a font color.
type Color [3]int16

// NoColor is the sentinel stored for runs without an explicit color.
var NoColor = Color{-1, -1, -1}

// IsSet reports whether c carries a real color.
func (c Color) IsSet() bool {
	return c != NoColor
}

// Run is a span of subtitle text sharing one color and style.
type Run struct {
	Text      string `json:"text"`
	Color     Color  `json:"color"`
	Bold      bool   `json:"bold,omitempty"`
	Italic    bool   `json:"italic,omitempty"`
	Underline bool   `json:"underline,omitempty"`
}

// PlainRun returns an unstyled run.
func PlainRun(text string) Run {
	return Run{Text: text, Color: NoColor}
}

// Cue is one timed subtitle line made of styled runs.
type Cue struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Runs  []Run   `json:"runs"`
}

// Text concatenates the runs of the cue.
func (c Cue) Text() string {
	var b strings.Builder
	for _, r := range c.Runs {
		b.WriteString(r.Text)
	}
	return b.String()
}

// Duration returns End - Start in seconds.
func (c Cue) Duration() float64 {
	return c.End - c.Start
}
