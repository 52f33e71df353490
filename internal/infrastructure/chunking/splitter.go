package chunking

import (
	"strings"

	"github.com/kirillkom/biomed-literature-assistant/internal/core/domain"
)

const (
	defaultChunkSize = 1000
	defaultOverlap   = 200
	headerSeparator  = " > "
)

// Splitter cuts text into overlapping rune windows. Windows end on a
// paragraph, line or word boundary when one falls in their second half.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

func (s *Splitter) Split(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}

	out := make([]string, 0, len(runes)/s.ChunkSize+1)
	for start := 0; start < len(runes); {
		end := start + s.ChunkSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = breakPoint(runes, start+s.ChunkSize/2, end)
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			out = append(out, chunk)
		}
		if end == len(runes) {
			break
		}

		next := end - s.Overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

// breakPoint returns the latest boundary in (lo, hi], preferring paragraph
// breaks over line breaks over spaces. It returns hi when none exists.
func breakPoint(runes []rune, lo, hi int) int {
	for _, sep := range []string{"\n\n", "\n", " "} {
		sepRunes := []rune(sep)
		for i := hi - len(sepRunes); i > lo; i-- {
			if matchAt(runes, i, sepRunes) {
				return i + len(sepRunes)
			}
		}
	}
	return hi
}

func matchAt(runes []rune, at int, sep []rune) bool {
	if at < 0 || at+len(sep) > len(runes) {
		return false
	}
	for j, r := range sep {
		if runes[at+j] != r {
			return false
		}
	}
	return true
}

type header struct {
	level int
	title string
}

// SplitSections groups markdown text under its "#"-style headers. Each
// section's HeaderPath joins the enclosing header titles with " > ".
func (s *Splitter) SplitSections(markdown string) []domain.TextSection {
	var (
		out   []domain.TextSection
		stack []header
		body  strings.Builder
	)
	flush := func() {
		text := strings.TrimSpace(body.String())
		body.Reset()
		if text == "" {
			return
		}
		titles := make([]string, 0, len(stack))
		for _, h := range stack {
			titles = append(titles, h.title)
		}
		out = append(out, domain.TextSection{
			HeaderPath: strings.Join(titles, headerSeparator),
			Text:       text,
		})
	}

	for _, line := range strings.Split(markdown, "\n") {
		level, title, ok := parseHeader(line)
		if !ok {
			body.WriteString(line)
			body.WriteString("\n")
			continue
		}
		flush()
		for len(stack) > 0 && stack[len(stack)-1].level >= level {
			stack = stack[:len(stack)-1]
		}
		stack = append(stack, header{level: level, title: title})
	}
	flush()
	return out
}

func parseHeader(line string) (int, string, bool) {
	trimmed := strings.TrimSpace(line)
	level := 0
	for level < len(trimmed) && trimmed[level] == '#' {
		level++
	}
	if level == 0 || level > 6 || level == len(trimmed) || trimmed[level] != ' ' {
		return 0, "", false
	}
	title := strings.TrimSpace(trimmed[level:])
	if title == "" {
		return 0, "", false
	}
	return level, title, true
}
