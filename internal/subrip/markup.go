package subrip

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/therealutkarshpriyadarshi/multimodal/pkg/models"
)

// ParseMarkup splits cue text into runs at every markup tag. Text inside
// <font color="#rrggbb"> carries that color; <b>, <i> and <u> set the style
// flags until their closing tag. Unknown tags are dropped.
func ParseMarkup(text string) []models.Run {
	var runs []models.Run
	color := models.NoColor
	var bold, italic, underline bool

	z := html.NewTokenizer(strings.NewReader(text))
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF, or a read error from a strings.Reader which cannot fail
			return runs
		case html.TextToken:
			runs = append(runs, models.Run{
				Text:      string(z.Text()),
				Color:     color,
				Bold:      bold,
				Italic:    italic,
				Underline: underline,
			})
		case html.StartTagToken:
			name, hasAttr := z.TagName()
			switch string(name) {
			case "font":
				for hasAttr {
					var key, val []byte
					key, val, hasAttr = z.TagAttr()
					if string(key) == "color" {
						if c, ok := parseColor(string(val)); ok {
							color = c
						}
					}
				}
			case "b":
				bold = true
			case "i":
				italic = true
			case "u":
				underline = true
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "font":
				color = models.NoColor
			case "b":
				bold = false
			case "i":
				italic = false
			case "u":
				underline = false
			}
		}
	}
}

func parseColor(s string) (models.Color, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return models.NoColor, false
	}
	var c models.Color
	for i := range c {
		v, err := strconv.ParseUint(s[2*i:2*i+2], 16, 8)
		if err != nil {
			return models.NoColor, false
		}
		c[i] = int16(v)
	}
	return c, true
}

var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// FormatRuns renders runs back to markup. Tags open in the order font, b, i,
// u and close in reverse.
func FormatRuns(runs []models.Run) string {
	var b strings.Builder
	for _, run := range runs {
		var closing []string
		if run.Color.IsSet() {
			fmt.Fprintf(&b, `<font color="#%02x%02x%02x">`, run.Color[0], run.Color[1], run.Color[2])
			closing = append(closing, "</font>")
		}
		if run.Bold {
			b.WriteString("<b>")
			closing = append(closing, "</b>")
		}
		if run.Italic {
			b.WriteString("<i>")
			closing = append(closing, "</i>")
		}
		if run.Underline {
			b.WriteString("<u>")
			closing = append(closing, "</u>")
		}
		b.WriteString(escaper.Replace(run.Text))
		for i := len(closing) - 1; i >= 0; i-- {
			b.WriteString(closing[i])
		}
	}
	return b.String()
}
