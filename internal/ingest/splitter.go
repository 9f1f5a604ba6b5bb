package ingest

import (
	"strings"
	"unicode/utf8"
)

// RecursiveSplitter cuts text into overlapping chunks. Separators are
// tried in order; a piece still too large after a separator pass falls
// through to the next, finer one, ending with a hard cut.
type RecursiveSplitter struct {
	ChunkSize  int
	Overlap    int
	Separators []string
}

const (
	defaultChunkSize = 1000
	defaultOverlap   = 200
)

func defaultSeparators() []string { return []string{"\n\n", "\n", " ", ""} }

func (s *RecursiveSplitter) chunkSize() int {
	if s.ChunkSize > 0 {
		return s.ChunkSize
	}
	return defaultChunkSize
}

func (s *RecursiveSplitter) overlap() int {
	ov := s.Overlap
	if ov < 0 {
		ov = 0
	}
	if ov == 0 && s.ChunkSize == 0 {
		ov = defaultOverlap
	}
	if ov >= s.chunkSize() {
		ov = s.chunkSize() / 2
	}
	return ov
}

func (s *RecursiveSplitter) separators() []string {
	if len(s.Separators) > 0 {
		return s.Separators
	}
	return defaultSeparators()
}

// Split returns trimmed chunks of at most ChunkSize bytes each.
func (s *RecursiveSplitter) Split(text string) []string {
	return s.split(text, s.separators())
}

func (s *RecursiveSplitter) split(text string, seps []string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if len(text) <= s.chunkSize() {
		return []string{strings.TrimSpace(text)}
	}

	sep := ""
	rest := []string{}
	for i, cand := range seps {
		if cand == "" || strings.Contains(text, cand) {
			sep = cand
			rest = seps[i+1:]
			break
		}
	}

	var pieces []string
	if sep == "" {
		pieces = hardCut(text, s.chunkSize())
	} else {
		for _, p := range strings.SplitAfter(text, sep) {
			if len(p) > s.chunkSize() {
				pieces = append(pieces, s.split(p, rest)...)
			} else {
				pieces = append(pieces, p)
			}
		}
	}
	return s.merge(pieces)
}

// merge packs pieces into chunks, carrying the tail of each emitted chunk
// into the next one as overlap.
func (s *RecursiveSplitter) merge(pieces []string) []string {
	size := s.chunkSize()
	ov := s.overlap()

	var out []string
	cur := ""
	for _, p := range pieces {
		if cur != "" && len(cur)+len(p) > size {
			if t := strings.TrimSpace(cur); t != "" {
				out = append(out, t)
			}
			cur = tailRunes(cur, ov)
			if len(cur)+len(p) > size {
				cur = ""
			}
		}
		cur += p
	}
	if t := strings.TrimSpace(cur); t != "" {
		out = append(out, t)
	}
	return out
}

// hardCut slices at byte offsets backed off to rune boundaries.
func hardCut(text string, size int) []string {
	var out []string
	for len(text) > size {
		cut := size
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		if cut == 0 {
			cut = size
		}
		out = append(out, text[:cut])
		text = text[cut:]
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}

// tailRunes returns at most n trailing bytes of s, starting on a rune
// boundary.
func tailRunes(s string, n int) string {
	if n <= 0 || len(s) <= n {
		if n <= 0 {
			return ""
		}
		return s
	}
	start := len(s) - n
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:]
}
