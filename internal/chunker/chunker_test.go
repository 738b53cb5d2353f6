package chunker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/docqa-go/internal/rag"
)

// fakeRunner returns canned pdftotext output and records its invocations.
type fakeRunner struct {
	out   string
	err   error
	calls [][]string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.out), nil
}

// touch creates an empty file so the loader's stat check passes.
func touch(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o600))
	return path
}

// pageText builds n lines of exactly 59 characters followed by page furniture
// that cleaning must remove.
func pageText(page, n int) string {
	var b strings.Builder
	b.WriteString("  - " + fmt.Sprint(page) + " -\n")
	for i := 1; i <= n; i++ {
		prefix := fmt.Sprintf("page %d line %02d ", page, i)
		b.WriteString(prefix + strings.Repeat("x", 59-len(prefix)) + "\n")
	}
	b.WriteString("Draft\n")
	return b.String()
}

func TestFingerprint(t *testing.T) {
	t.Parallel()
	assert.Equal(t, Fingerprint("docs/a.pdf"), Fingerprint("docs/a.pdf"))
	assert.Equal(t, Fingerprint("docs/a.pdf"), Fingerprint("./docs/a.pdf"))
	assert.NotEqual(t, Fingerprint("docs/a.pdf"), Fingerprint("docs/b.pdf"))
	assert.Len(t, Fingerprint("x"), 32)
}

func TestClean(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"drops short lines", "12\nthis line is long enough\nok", "this line is long enough"},
		{"boundary is exclusive", "exactly10c\neleven char", "eleven char"},
		{"trims before measuring", "      short     \n  a much longer line  ", "a much longer line"},
		{"counts characters not bytes", "ééééééééééé\néééééééééé", "ééééééééééé"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Clean(tt.in, 10))
		})
	}
}

func TestSplitter_ShortTextIsOneChunk(t *testing.T) {
	t.Parallel()
	s := NewSplitter(1000, 200, nil)
	got := s.Split("  a short paragraph.  ")
	require.Len(t, got, 1)
	assert.Equal(t, "a short paragraph.", got[0].Text)
	assert.Equal(t, 2, got[0].Start)
}

func TestSplitter_SizeBoundAndCoverage(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	for i := range 400 {
		fmt.Fprintf(&b, "Sentence number %d talks about topic %d. ", i, i%7)
		if i%9 == 8 {
			b.WriteString("\n")
		}
		if i%40 == 39 {
			b.WriteString("\n\n")
		}
	}
	// A single unbroken run forces the character-level fallback.
	b.WriteString(strings.Repeat("z", 2500))
	text := b.String()
	runes := []rune(text)

	s := NewSplitter(1000, 200, nil)
	pieces := s.Split(text)
	require.Greater(t, len(pieces), 10)

	covered := make([]bool, len(runes))
	prev := -1
	for i, p := range pieces {
		n := utf8.RuneCountInString(p.Text)
		assert.LessOrEqual(t, n, 1000, "chunk %d too long", i)
		assert.NotEmpty(t, p.Text)
		require.LessOrEqual(t, p.Start+n, len(runes))
		assert.Equal(t, p.Text, string(runes[p.Start:p.Start+n]), "chunk %d offset", i)
		assert.GreaterOrEqual(t, p.Start, prev, "offsets must not go backwards")
		prev = p.Start
		for j := p.Start; j < p.Start+n; j++ {
			covered[j] = true
		}
	}
	for i, r := range runes {
		if !unicode.IsSpace(r) && !covered[i] {
			t.Fatalf("character %d (%q) not covered by any chunk", i, r)
		}
	}
}

func TestSplitter_OffsetsWithRepeatedText(t *testing.T) {
	t.Parallel()

	words := []string{"alpha", "béta", "gamma", "béta", "alpha"}
	var b strings.Builder
	for i := range 300 {
		b.WriteString(words[i%len(words)])
		b.WriteString(" ")
		if i == 12 {
			b.WriteString(strings.Repeat("x", 1300))
			b.WriteString(" ")
		}
		if i%50 == 49 {
			b.WriteString("\n\n")
		}
	}
	text := b.String()
	runes := []rune(text)

	for _, cfg := range []struct{ size, overlap int }{{1000, 200}, {60, 20}, {25, 5}} {
		pieces := NewSplitter(cfg.size, cfg.overlap, nil).Split(text)
		require.NotEmpty(t, pieces)

		covered := make([]bool, len(runes))
		prev := -1
		for i, p := range pieces {
			n := utf8.RuneCountInString(p.Text)
			require.LessOrEqual(t, p.Start+n, len(runes))
			assert.Equal(t, p.Text, string(runes[p.Start:p.Start+n]), "size %d chunk %d offset", cfg.size, i)
			assert.Greater(t, p.Start, prev, "size %d chunk %d must start after chunk %d", cfg.size, i, i-1)
			prev = p.Start
			for j := p.Start; j < p.Start+n; j++ {
				covered[j] = true
			}
		}
		for i, r := range runes {
			if !unicode.IsSpace(r) && !covered[i] {
				t.Fatalf("size %d: character %d (%q) not covered", cfg.size, i, r)
			}
		}
	}
}

func TestSplitter_ConsecutiveChunksOverlap(t *testing.T) {
	t.Parallel()
	words := make([]string, 600)
	for i := range words {
		words[i] = fmt.Sprintf("w%03d", i)
	}
	s := NewSplitter(100, 30, nil)
	pieces := s.Split(strings.Join(words, " "))
	require.Greater(t, len(pieces), 2)

	for i := 1; i < len(pieces); i++ {
		prevEnd := pieces[i-1].Start + utf8.RuneCountInString(pieces[i-1].Text)
		assert.Less(t, pieces[i].Start, prevEnd, "chunk %d should start inside chunk %d", i, i-1)
		assert.GreaterOrEqual(t, pieces[i].Start, prevEnd-30, "overlap larger than configured")
	}
}

func TestNewSplitter_ClampsOverlap(t *testing.T) {
	t.Parallel()
	s := NewSplitter(100, 150, nil)
	assert.Equal(t, 20, s.overlap)
	s = NewSplitter(0, -1, nil)
	assert.Equal(t, 1000, s.size)
	assert.Equal(t, 0, s.overlap)
}

func TestChunker_ThreePagePDF(t *testing.T) {
	t.Parallel()
	path := touch(t, "report.pdf")
	runner := &fakeRunner{out: pageText(1, 20) + "\f" + pageText(2, 15) + "\f" + pageText(3, 5) + "\f"}
	c := New(Config{}, NewLoader(runner))

	chunks, err := c.LoadAndSplit(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, chunks, 4)

	require.Len(t, runner.calls, 1)
	assert.Equal(t, []string{"pdftotext", "-enc", "UTF-8", "-q", path, "-"}, runner.calls[0])

	wantPages := []int{1, 1, 2, 3}
	for i, ch := range chunks {
		assert.Equal(t, wantPages[i], ch.PageNumber, "chunk %d page", i)
		assert.Equal(t, Fingerprint(path), ch.SourceFingerprint)
		assert.Equal(t, path, ch.SourceURI)
		assert.LessOrEqual(t, utf8.RuneCountInString(ch.Text), 1000)
		assert.NotContains(t, ch.Text, "Draft")
	}

	assert.Equal(t, 0, chunks[0].StartOffset)
	assert.Equal(t, 780, chunks[1].StartOffset)
	assert.True(t, strings.HasPrefix(chunks[1].Text, "page 1 line 14"))
	assert.Equal(t, 0, chunks[2].StartOffset)
}

func TestChunker_PlainTextIsUnpaginated(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("tiny\nrefunds are issued within 30 days\n"), 0o600))

	chunks, err := New(Config{}, NewLoader(&fakeRunner{})).LoadAndSplit(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "refunds are issued within 30 days", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].PageNumber)
}

func TestChunker_LoadFailures(t *testing.T) {
	t.Parallel()

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := New(Config{}, nil).LoadAndSplit(context.Background(), filepath.Join(t.TempDir(), "nope.pdf"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, rag.ErrLoad))
	})

	t.Run("extractor fails", func(t *testing.T) {
		t.Parallel()
		path := touch(t, "broken.pdf")
		runner := &fakeRunner{err: errors.New("Syntax Error: Couldn't find trailer dictionary")}
		_, err := New(Config{}, NewLoader(runner)).LoadAndSplit(context.Background(), path)

		var failure *rag.LoadFailure
		require.ErrorAs(t, err, &failure)
		assert.Equal(t, path, failure.Source)
	})

	t.Run("directory", func(t *testing.T) {
		t.Parallel()
		_, err := New(Config{}, nil).LoadAndSplit(context.Background(), t.TempDir())
		assert.ErrorIs(t, err, rag.ErrLoad)
	})
}

func TestChunker_NoExtractableText(t *testing.T) {
	t.Parallel()
	path := touch(t, "scanned.pdf")
	c := New(Config{}, NewLoader(&fakeRunner{out: "\f\f\f"}))

	chunks, err := c.LoadAndSplit(context.Background(), path)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}
