// Package subrip reads and writes SubRip (.srt) subtitles, keeping the
// <font color>, <b>, <i> and <u> markup as styled runs.
package subrip

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/therealutkarshpriyadarshi/multimodal/pkg/models"
)

// ErrMalformed is returned for text that is not valid SubRip.
var ErrMalformed = errors.New("subrip: malformed subtitles")

// Read parses SubRip subtitles from r.
func Read(r io.Reader) ([]models.Cue, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read subtitles: %w", err)
	}
	return Parse(string(data))
}

// Parse parses SubRip text into cues in file order.
func Parse(text string) ([]models.Cue, error) {
	text = strings.TrimPrefix(text, "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var cues []models.Cue
	for n, block := range splitBlocks(text) {
		lines := strings.Split(block, "\n")
		if isDigitOnly(strings.TrimSpace(lines[0])) && len(lines) > 1 {
			lines = lines[1:]
		}
		if !strings.Contains(lines[0], "-->") {
			return nil, fmt.Errorf("%w: block %d has no timing line", ErrMalformed, n+1)
		}

		start, end, err := parseTiming(lines[0])
		if err != nil {
			return nil, fmt.Errorf("%w: block %d: %v", ErrMalformed, n+1, err)
		}
		cues = append(cues, models.Cue{
			Start: start,
			End:   end,
			Runs:  ParseMarkup(strings.Join(lines[1:], "\n")),
		})
	}
	return cues, nil
}

// splitBlocks splits text at blank lines, dropping empty blocks.
func splitBlocks(text string) []string {
	var blocks []string
	var current []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			if len(current) > 0 {
				blocks = append(blocks, strings.Join(current, "\n"))
				current = current[:0]
			}
			continue
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		blocks = append(blocks, strings.Join(current, "\n"))
	}
	return blocks
}

func isDigitOnly(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// parseTiming parses "00:00:01,500 --> 00:00:03,000", ignoring any position
// hints after the end time.
func parseTiming(line string) (float64, float64, error) {
	parts := strings.SplitN(line, "-->", 2)
	startField := strings.TrimSpace(parts[0])
	endFields := strings.Fields(parts[1])
	if len(endFields) == 0 {
		return 0, 0, fmt.Errorf("missing end time in %q", line)
	}

	start, err := ParseTimestamp(startField)
	if err != nil {
		return 0, 0, err
	}
	end, err := ParseTimestamp(endFields[0])
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// ParseTimestamp converts HH:MM:SS,mmm (or with a dot) to seconds.
func ParseTimestamp(ts string) (float64, error) {
	ts = strings.Replace(ts, ".", ",", 1)
	clock, frac, _ := strings.Cut(ts, ",")
	fields := strings.Split(clock, ":")
	if len(fields) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", ts)
	}

	var total float64
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid timestamp %q", ts)
		}
		total += float64(v) * math.Pow(60, float64(2-i))
	}
	if frac != "" {
		ms, err := strconv.Atoi(frac)
		if err != nil || ms < 0 {
			return 0, fmt.Errorf("invalid timestamp %q", ts)
		}
		total += float64(ms) / math.Pow(10, float64(len(frac)))
	}
	return total, nil
}

// FormatTimestamp renders seconds as HH:MM:SS,mmm.
func FormatTimestamp(seconds float64) string {
	ms := int64(math.Round(seconds * 1000))
	if ms < 0 {
		ms = 0
	}
	h := ms / 3_600_000
	m := ms / 60_000 % 60
	s := ms / 1000 % 60
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms%1000)
}

// Compose renders cues as SubRip text, numbering them from 1.
func Compose(cues []models.Cue) string {
	var b strings.Builder
	for i, cue := range cues {
		fmt.Fprintf(&b, "%d\n%s --> %s\n", i+1, FormatTimestamp(cue.Start), FormatTimestamp(cue.End))
		b.WriteString(FormatRuns(cue.Runs))
		b.WriteString("\n\n")
	}
	return b.String()
}
