package chunker

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/schema"
)

// DefaultSeparators try paragraph, line, sentence and word boundaries before
// falling back to single characters.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Piece is one split of a text and its character offset in that text.
type Piece struct {
	Text  string
	Start int
}

// Splitter is a recursive character splitter. It cuts text on the first
// separator present, recurses into pieces that are still too large with the
// remaining separators, then greedily merges small pieces into chunks of at
// most size characters, carrying up to overlap characters into the next chunk.
//
// All lengths and offsets are in characters (runes), not bytes. With an empty
// string as the last separator no chunk ever exceeds size.
type Splitter struct {
	size       int
	overlap    int
	separators []string
}

var _ document.Transformer = (*Splitter)(nil)

// NewSplitter returns a Splitter. A non-positive size defaults to 1000 and an
// overlap outside [0, size) is clamped.
func NewSplitter(size, overlap int, separators []string) *Splitter {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 5
	}
	if len(separators) == 0 {
		separators = DefaultSeparators
	}
	return &Splitter{size: size, overlap: overlap, separators: separators}
}

// Split cuts text into trimmed chunks and records where each starts.
func (s *Splitter) Split(text string) []Piece {
	return s.splitText(Piece{Text: text}, s.separators)
}

// Transform splits every document. Output documents inherit the input's
// metadata plus MetaStartOffset.
func (s *Splitter) Transform(ctx context.Context, src []*schema.Document, _ ...document.TransformerOption) ([]*schema.Document, error) {
	var out []*schema.Document
	for _, doc := range src {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i, p := range s.Split(doc.Content) {
			meta := make(map[string]any, len(doc.MetaData)+1)
			maps.Copy(meta, doc.MetaData)
			meta[MetaStartOffset] = p.Start
			out = append(out, &schema.Document{
				ID:       fmt.Sprintf("%s#%d", doc.ID, i),
				Content:  p.Text,
				MetaData: meta,
			})
		}
	}
	return out, nil
}

// splitText splits span, whose Start is its rune offset in the original text,
// so every returned piece keeps its own offset in that text.
func (s *Splitter) splitText(span Piece, separators []string) []Piece {
	sep := separators[len(separators)-1]
	var rest []string
	for i, candidate := range separators {
		if candidate == "" {
			sep = candidate
			break
		}
		if strings.Contains(span.Text, candidate) {
			sep = candidate
			rest = separators[i+1:]
			break
		}
	}

	var out, small []Piece
	for _, piece := range splitKeepEnd(span, sep) {
		if runeLen(piece.Text) < s.size {
			small = append(small, piece)
			continue
		}
		if len(small) > 0 {
			out = append(out, s.merge(small)...)
			small = nil
		}
		if len(rest) == 0 {
			if p, ok := trimPiece(piece.Text, piece.Start); ok {
				out = append(out, p)
			}
		} else {
			out = append(out, s.splitText(piece, rest)...)
		}
	}
	if len(small) > 0 {
		out = append(out, s.merge(small)...)
	}
	return out
}

// merge joins consecutive pieces into chunks no longer than size. Each chunk
// starts where its first non-space character sits in the original text.
func (s *Splitter) merge(pieces []Piece) []Piece {
	var chunks, current []Piece
	total := 0
	emit := func() {
		if len(current) == 0 {
			return
		}
		var b strings.Builder
		for _, p := range current {
			b.WriteString(p.Text)
		}
		if p, ok := trimPiece(b.String(), current[0].Start); ok {
			chunks = append(chunks, p)
		}
	}
	for _, p := range pieces {
		n := runeLen(p.Text)
		if total+n > s.size && len(current) > 0 {
			emit()
			for total > s.overlap || (total+n > s.size && total > 0) {
				total -= runeLen(current[0].Text)
				current = current[1:]
			}
			for len(current) > 0 && strings.TrimSpace(current[0].Text) == "" {
				total -= runeLen(current[0].Text)
				current = current[1:]
			}
		}
		if len(current) == 0 && strings.TrimSpace(p.Text) == "" {
			continue
		}
		current = append(current, p)
		total += n
	}
	emit()
	return chunks
}

// trimPiece trims surrounding whitespace from text, which starts at rune
// offset start, and shifts start past the trimmed prefix.
func trimPiece(text string, start int) (Piece, bool) {
	trimmed := strings.TrimLeftFunc(text, unicode.IsSpace)
	start += runeLen(text) - runeLen(trimmed)
	trimmed = strings.TrimRightFunc(trimmed, unicode.IsSpace)
	if trimmed == "" {
		return Piece{}, false
	}
	return Piece{Text: trimmed, Start: start}, true
}

// splitKeepEnd splits span after each occurrence of sep, so the separator
// stays at the end of the preceding piece. An empty sep splits into runes.
func splitKeepEnd(span Piece, sep string) []Piece {
	var parts []Piece
	offset := span.Start
	if sep == "" {
		parts = make([]Piece, 0, len(span.Text))
		for _, r := range span.Text {
			parts = append(parts, Piece{Text: string(r), Start: offset})
			offset++
		}
		return parts
	}
	for _, p := range strings.SplitAfter(span.Text, sep) {
		if p != "" {
			parts = append(parts, Piece{Text: p, Start: offset})
			offset += runeLen(p)
		}
	}
	return parts
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
