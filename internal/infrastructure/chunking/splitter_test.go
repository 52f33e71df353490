package chunking

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitShortTextIsOneChunk(t *testing.T) {
	got := NewSplitter(100, 20).Split("  short abstract  ")
	if len(got) != 1 || got[0] != "short abstract" {
		t.Fatalf("unexpected chunks %q", got)
	}
	if NewSplitter(100, 20).Split("   ") != nil {
		t.Fatalf("expected nil for blank text")
	}
}

func TestSplitRespectsSizeAndOverlap(t *testing.T) {
	text := strings.Repeat("x", 250)
	got := NewSplitter(100, 20).Split(text)
	if len(got) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(got))
	}
	for _, chunk := range got {
		if utf8.RuneCountInString(chunk) > 100 {
			t.Fatalf("chunk longer than window: %d", utf8.RuneCountInString(chunk))
		}
	}
	// windows start at 0, 80, 160
	if utf8.RuneCountInString(got[2]) != 90 {
		t.Fatalf("expected last chunk of 90 runes, got %d", utf8.RuneCountInString(got[2]))
	}
}

func TestSplitPrefersParagraphBoundary(t *testing.T) {
	first := strings.Repeat("a", 70)
	second := strings.Repeat("b", 70)
	got := NewSplitter(100, 0).Split(first + "\n\n" + second)
	if len(got) != 2 || got[0] != first || got[1] != second {
		t.Fatalf("expected split at paragraph break, got %q", got)
	}
}

func TestSplitCountsRunesNotBytes(t *testing.T) {
	text := strings.Repeat("é", 150)
	got := NewSplitter(100, 0).Split(text)
	if len(got) != 2 || utf8.RuneCountInString(got[0]) != 100 {
		t.Fatalf("unexpected rune windows %d", len(got))
	}
}

func TestNewSplitterNormalizesArguments(t *testing.T) {
	s := NewSplitter(0, -1)
	if s.ChunkSize != 1000 || s.Overlap != 0 {
		t.Fatalf("unexpected defaults %+v", s)
	}
	s = NewSplitter(100, 100)
	if s.Overlap != 25 {
		t.Fatalf("expected overlap reset to a quarter, got %d", s.Overlap)
	}
}

func TestSplitSectionsBuildsHeaderPaths(t *testing.T) {
	markdown := strings.Join([]string{
		"Lead text.",
		"## Methods",
		"Cohort design.",
		"### Participants",
		"Adults with HHT.",
		"### Statistics",
		"Cox models.",
		"## Results",
		"",
		"Bleeding fell.",
		"## Empty",
	}, "\n")

	got := NewSplitter(1000, 200).SplitSections(markdown)
	want := []struct{ path, text string }{
		{"", "Lead text."},
		{"Methods", "Cohort design."},
		{"Methods > Participants", "Adults with HHT."},
		{"Methods > Statistics", "Cox models."},
		{"Results", "Bleeding fell."},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d sections, got %d: %+v", len(want), len(got), got)
	}
	for i, w := range want {
		if got[i].HeaderPath != w.path || got[i].Text != w.text {
			t.Fatalf("section %d = %+v, want %+v", i, got[i], w)
		}
	}
}

func TestParseHeaderRejectsHashtags(t *testing.T) {
	if _, _, ok := parseHeader("#hashtag"); ok {
		t.Fatalf("expected #hashtag to be plain text")
	}
	if _, _, ok := parseHeader("####### seven"); ok {
		t.Fatalf("expected level 7 to be plain text")
	}
	level, title, ok := parseHeader("  ## Discussion ")
	if !ok || level != 2 || title != "Discussion" {
		t.Fatalf("unexpected header parse %d %q %v", level, title, ok)
	}
}
