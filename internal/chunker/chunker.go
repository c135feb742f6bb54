// Package chunker splits document text into overlapping, size-bounded chunks.
//
// Splitting prefers paragraph breaks, then line breaks, then sentence ends,
// then spaces, and finally cuts between characters. Separators stay attached
// to the preceding piece so every chunk is a contiguous span of the input.
package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// DefaultSeparators in priority order. The empty separator means "between characters".
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Piece is one emitted chunk. Start and End are byte offsets of Text in the input.
type Piece struct {
	Index int
	Text  string
	Start int
	End   int
}

// Splitter is safe for concurrent use; it holds no mutable state.
type Splitter struct {
	size       int
	overlap    int
	separators []string
}

func New(size, overlap int) *Splitter {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 4
	}
	return &Splitter{size: size, overlap: overlap, separators: DefaultSeparators}
}

func (s *Splitter) Size() int    { return s.size }
func (s *Splitter) Overlap() int { return s.overlap }

// span is a half-open byte range into the text being split.
type span struct {
	start, end int
}

// Split returns the non-empty chunks of text, indexed densely from 0.
func (s *Splitter) Split(text string) []Piece {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	spans := s.split(text, span{0, len(text)}, s.separators)

	pieces := make([]Piece, 0, len(spans))
	for _, sp := range spans {
		start, end := trimSpan(text, sp)
		if start >= end {
			continue
		}
		pieces = append(pieces, Piece{
			Index: len(pieces),
			Text:  text[start:end],
			Start: start,
			End:   end,
		})
	}
	return pieces
}

func (s *Splitter) split(text string, within span, separators []string) []span {
	sep, rest := pickSeparator(text[within.start:within.end], separators)
	parts := splitKeep(text, within, sep)

	var (
		out  []span
		good []span
	)
	for _, part := range parts {
		if s.length(text, part) <= s.size {
			good = append(good, part)
			continue
		}
		if len(good) > 0 {
			out = append(out, s.merge(text, good)...)
			good = nil
		}
		if len(rest) == 0 {
			out = append(out, part)
			continue
		}
		out = append(out, s.split(text, part, rest)...)
	}
	if len(good) > 0 {
		out = append(out, s.merge(text, good)...)
	}
	return out
}

// merge packs adjacent parts into chunks of at most size runes, carrying a
// tail of at most overlap runes from each emitted chunk into the next.
func (s *Splitter) merge(text string, parts []span) []span {
	var (
		out     []span
		current []span
		total   int
	)
	for _, part := range parts {
		n := s.length(text, part)
		if total+n > s.size && len(current) > 0 {
			out = append(out, span{current[0].start, current[len(current)-1].end})
			for len(current) > 0 && (total > s.overlap || (total+n > s.size && total > 0)) {
				total -= s.length(text, current[0])
				current = current[1:]
			}
		}
		current = append(current, part)
		total += n
	}
	if len(current) > 0 {
		out = append(out, span{current[0].start, current[len(current)-1].end})
	}
	return out
}

func (s *Splitter) length(text string, sp span) int {
	return utf8.RuneCountInString(text[sp.start:sp.end])
}

func pickSeparator(text string, separators []string) (string, []string) {
	for i, sep := range separators {
		if sep == "" || strings.Contains(text, sep) {
			return sep, separators[i+1:]
		}
	}
	return "", nil
}

// splitKeep cuts within at every occurrence of sep, keeping sep on the left part.
// An empty sep yields one span per rune.
func splitKeep(text string, within span, sep string) []span {
	var parts []span
	if sep == "" {
		for i := within.start; i < within.end; {
			_, size := utf8.DecodeRuneInString(text[i:within.end])
			parts = append(parts, span{i, i + size})
			i += size
		}
		return parts
	}
	start := within.start
	for start < within.end {
		idx := strings.Index(text[start:within.end], sep)
		if idx < 0 {
			parts = append(parts, span{start, within.end})
			break
		}
		end := start + idx + len(sep)
		parts = append(parts, span{start, end})
		start = end
	}
	return parts
}

func trimSpan(text string, sp span) (int, int) {
	start, end := sp.start, sp.end
	for start < end {
		r, size := utf8.DecodeRuneInString(text[start:end])
		if !unicode.IsSpace(r) {
			break
		}
		start += size
	}
	for end > start {
		r, size := utf8.DecodeLastRuneInString(text[start:end])
		if !unicode.IsSpace(r) {
			break
		}
		end -= size
	}
	return start, end
}

// Reassemble rebuilds the covered text from ordered pieces, dropping the
// overlapping prefix of each piece. Whitespace trimmed at a boundary is
// replaced by a single space.
func Reassemble(pieces []Piece) string {
	var (
		b   strings.Builder
		pos = -1
	)
	for _, p := range pieces {
		switch {
		case pos < 0:
			b.WriteString(p.Text)
		case p.Start >= pos:
			if p.Start > pos {
				b.WriteByte(' ')
			}
			b.WriteString(p.Text)
		case p.End > pos:
			b.WriteString(p.Text[pos-p.Start:])
		}
		if p.End > pos {
			pos = p.End
		}
	}
	return b.String()
}
