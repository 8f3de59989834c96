package chunking

import (
	"strings"
	"unicode/utf8"
)

var defaultSeparators = []string{"\n\n", "\n", " ", ""}

const fallbackChunkRunes = 1200

// Splitter is a recursive character splitter: it prefers paragraph breaks, then
// line breaks, then spaces, and only cuts inside words as a last resort.
type Splitter struct {
	ChunkSize  int
	Overlap    int
	MinChars   int
	separators []string
}

func NewSplitter(chunkSize, overlap, minChars int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 5
	}
	if minChars < 0 {
		minChars = 0
	}
	return &Splitter{
		ChunkSize:  chunkSize,
		Overlap:    overlap,
		MinChars:   minChars,
		separators: defaultSeparators,
	}
}

// Split returns trimmed chunks longer than MinChars. Text that yields no such
// chunk falls back to its first 1200 runes.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	pieces := s.splitRecursive(text, s.separators)
	out := make([]string, 0, len(pieces))
	for _, piece := range pieces {
		piece = strings.TrimSpace(piece)
		if utf8.RuneCountInString(piece) > s.MinChars {
			out = append(out, piece)
		}
	}
	if len(out) > 0 {
		return out
	}

	runes := []rune(text)
	if len(runes) > fallbackChunkRunes {
		runes = runes[:fallbackChunkRunes]
	}
	return []string{string(runes)}
}

func (s *Splitter) splitRecursive(text string, separators []string) []string {
	separator := ""
	var rest []string
	for i, candidate := range separators {
		if candidate == "" || strings.Contains(text, candidate) {
			separator = candidate
			rest = separators[i+1:]
			break
		}
	}

	var out, pending []string
	for _, piece := range splitOn(text, separator) {
		if utf8.RuneCountInString(piece) < s.ChunkSize {
			pending = append(pending, piece)
			continue
		}
		if len(pending) > 0 {
			out = append(out, s.merge(pending, separator)...)
			pending = nil
		}
		if len(rest) == 0 {
			out = append(out, piece)
			continue
		}
		out = append(out, s.splitRecursive(piece, rest)...)
	}
	if len(pending) > 0 {
		out = append(out, s.merge(pending, separator)...)
	}
	return out
}

// merge packs pieces into windows of at most ChunkSize runes, carrying up to
// Overlap runes of trailing pieces into the next window.
func (s *Splitter) merge(pieces []string, separator string) []string {
	sepLen := utf8.RuneCountInString(separator)
	var (
		out     []string
		current []string
		total   int
	)
	joinedLen := func(n int) int {
		if len(current) > 0 {
			return total + sepLen + n
		}
		return n
	}

	for _, piece := range pieces {
		n := utf8.RuneCountInString(piece)
		if joinedLen(n) > s.ChunkSize && len(current) > 0 {
			if chunk := strings.TrimSpace(strings.Join(current, separator)); chunk != "" {
				out = append(out, chunk)
			}
			for len(current) > 0 && (total > s.Overlap || joinedLen(n) > s.ChunkSize) {
				total -= utf8.RuneCountInString(current[0])
				if len(current) > 1 {
					total -= sepLen
				}
				current = current[1:]
			}
		}
		total = joinedLen(n)
		current = append(current, piece)
	}
	if chunk := strings.TrimSpace(strings.Join(current, separator)); chunk != "" {
		out = append(out, chunk)
	}
	return out
}

func splitOn(text, separator string) []string {
	if separator != "" {
		return strings.Split(text, separator)
	}
	runes := []rune(text)
	out := make([]string, len(runes))
	for i, r := range runes {
		out[i] = string(r)
	}
	return out
}
