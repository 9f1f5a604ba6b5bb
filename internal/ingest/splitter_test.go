package ingest

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplit_ShortTextSingleChunk(t *testing.T) {
	s := RecursiveSplitter{}
	got := s.Split("  hello world  ")
	if len(got) != 1 || got[0] != "hello world" {
		t.Fatalf("chunks = %q", got)
	}
}

func TestSplit_EmptyText(t *testing.T) {
	s := RecursiveSplitter{}
	if got := s.Split("   \n\n  "); got != nil {
		t.Fatalf("chunks = %q, want nil", got)
	}
}

func TestSplit_RespectsChunkSize(t *testing.T) {
	s := RecursiveSplitter{ChunkSize: 100, Overlap: 20}
	text := strings.Repeat("alpha beta gamma delta epsilon. ", 50)

	for i, ch := range s.Split(text) {
		if len(ch) > 100 {
			t.Fatalf("chunk %d has %d bytes, cap is 100", i, len(ch))
		}
	}
}

func TestSplit_PrefersParagraphBoundaries(t *testing.T) {
	para1 := strings.Repeat("first paragraph sentence. ", 3)
	para2 := strings.Repeat("second paragraph sentence. ", 3)
	s := RecursiveSplitter{ChunkSize: 90, Overlap: 0}

	got := s.Split(para1 + "\n\n" + para2)
	if len(got) != 2 {
		t.Fatalf("chunks = %d, want 2: %q", len(got), got)
	}
	if strings.Contains(got[0], "second") || strings.Contains(got[1], "first") {
		t.Fatalf("paragraphs mixed: %q", got)
	}
}

func TestSplit_OverlapCarriesTail(t *testing.T) {
	var words []string
	for i := 0; i < 40; i++ {
		words = append(words, "word")
	}
	s := RecursiveSplitter{ChunkSize: 60, Overlap: 15}

	text := strings.Join(words, " ")
	got := s.Split(text)
	if len(got) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(got))
	}
	// Overlap duplicates the tail of each chunk into the next, so the
	// chunks together must be longer than the input.
	total := 0
	for _, ch := range got {
		total += len(ch)
	}
	if total <= len(text)-len(got) {
		t.Fatalf("no overlap carried: %d chunk bytes for %d input bytes", total, len(text))
	}
}

func TestSplit_HardCutKeepsRunesIntact(t *testing.T) {
	// Arabic text with no separators at all forces byte-offset cuts.
	text := strings.Repeat("مرحبا", 200)
	s := RecursiveSplitter{ChunkSize: 64, Overlap: 8, Separators: []string{""}}

	for i, ch := range s.Split(text) {
		if !utf8.ValidString(ch) {
			t.Fatalf("chunk %d is not valid utf-8", i)
		}
		if len(ch) > 64 {
			t.Fatalf("chunk %d has %d bytes", i, len(ch))
		}
	}
}

func TestSplit_OversizedWordFallsThroughToHardCut(t *testing.T) {
	text := "short " + strings.Repeat("x", 300) + " tail"
	s := RecursiveSplitter{ChunkSize: 100, Overlap: 10}

	for i, ch := range s.Split(text) {
		if len(ch) > 100 {
			t.Fatalf("chunk %d has %d bytes", i, len(ch))
		}
	}
}
