package capture

import (
	"bufio"
	"bytes"
)

// SourceContextLines is how many lines around a hit are listed on each side.
const SourceContextLines = 5

// SourceLine is one line of script source near a hit.
type SourceLine struct {
	Number  int    `json:"number"`
	Text    string `json:"text"`
	Current bool   `json:"current,omitempty"`
}

// SourceContext returns the lines of src within radius of line (1-based).
// It returns nil when line is outside src.
func SourceContext(src []byte, line, radius int) []SourceLine {
	if line < 1 || radius < 0 {
		return nil
	}
	first, last := line-radius, line+radius
	if first < 1 {
		first = 1
	}

	var out []SourceLine
	sc := bufio.NewScanner(bytes.NewReader(src))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for n := 1; sc.Scan() && n <= last; n++ {
		if n < first {
			continue
		}
		text, _ := truncate(sc.Text())
		out = append(out, SourceLine{Number: n, Text: text, Current: n == line})
	}
	if len(out) == 0 || out[len(out)-1].Number < line {
		return nil
	}
	return out
}
