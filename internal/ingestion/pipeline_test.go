package ingestion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/docqa-go/internal/rag"
)

type fakeIndex struct {
	indexed map[string]bool
	errs    map[string]error
	ingests int
}

func (f *fakeIndex) Exists(_ context.Context, fp string) bool { return f.indexed[fp] }

func (f *fakeIndex) Ingest(_ context.Context, chunks []rag.Chunk) (int, error) {
	f.ingests++
	fp := chunks[0].SourceFingerprint
	if err := f.errs[fp]; err != nil {
		return 0, err
	}
	f.indexed[fp] = true
	return len(chunks), nil
}

type fakeProducer struct {
	texts map[string][]string
	errs  map[string]error
	loads []string
}

func (p *fakeProducer) Fingerprint(source string) string { return "fp:" + source }

func (p *fakeProducer) LoadAndSplit(_ context.Context, source string) ([]rag.Chunk, error) {
	p.loads = append(p.loads, source)
	if err := p.errs[source]; err != nil {
		return nil, err
	}
	var chunks []rag.Chunk
	for _, text := range p.texts[source] {
		chunks = append(chunks, rag.Chunk{Text: text, SourceFingerprint: p.Fingerprint(source), SourceURI: source})
	}
	return chunks, nil
}

func TestNewPipeline_NilDependencies(t *testing.T) {
	t.Parallel()
	_, err := NewPipeline(nil, &fakeProducer{})
	require.Error(t, err)
	_, err = NewPipeline(&fakeIndex{}, nil)
	require.Error(t, err)
}

func TestPipeline_Run_Report(t *testing.T) {
	t.Parallel()
	idx := &fakeIndex{indexed: map[string]bool{"fp:old.pdf": true}, errs: map[string]error{
		"fp:flaky.pdf": &rag.StoreFailure{Op: "add", Err: errors.New("disk full")},
	}}
	prod := &fakeProducer{
		texts: map[string][]string{
			"new.pdf":   {"one", "two", "three"},
			"flaky.pdf": {"x"},
		},
		errs: map[string]error{
			"missing.pdf": &rag.LoadFailure{Source: "missing.pdf", Err: os.ErrNotExist},
		},
	}
	p, err := NewPipeline(idx, prod)
	require.NoError(t, err)

	var msgs []string
	report, err := p.Run(context.Background(),
		[]string{"new.pdf", "old.pdf", "missing.pdf", "blank.pdf", "flaky.pdf", "new.pdf"},
		func(m string) { msgs = append(msgs, m) })
	require.NoError(t, err)

	want := []Status{StatusAdded, StatusSkipped, StatusFailed, StatusEmpty, StatusFailed, StatusSkipped}
	require.Len(t, report.Results, len(want))
	for i, s := range want {
		assert.Equal(t, s, report.Results[i].Status, report.Results[i].Source)
	}
	assert.Equal(t, 3, report.Results[0].Chunks)
	assert.Equal(t, 3, report.ChunksAdded())
	assert.Equal(t, 2, report.Count(StatusFailed))
	assert.Contains(t, report.Results[2].Error, "missing.pdf")
	assert.Contains(t, report.Results[4].Error, "disk full")
	assert.NotContains(t, prod.loads, "old.pdf", "indexed source must not be loaded")
	assert.NotEmpty(t, msgs)
}

func TestPipeline_Run_DimensionMismatchStops(t *testing.T) {
	t.Parallel()
	idx := &fakeIndex{indexed: map[string]bool{}, errs: map[string]error{
		"fp:b.pdf": &rag.DimensionMismatch{Collection: "pdf_content", Want: 768, Got: 1536},
	}}
	prod := &fakeProducer{texts: map[string][]string{"a.pdf": {"a"}, "b.pdf": {"b"}, "c.pdf": {"c"}}}
	p, err := NewPipeline(idx, prod)
	require.NoError(t, err)

	report, err := p.Run(context.Background(), []string{"a.pdf", "b.pdf", "c.pdf"}, nil)
	require.ErrorIs(t, err, rag.ErrDimensionMismatch)
	require.Len(t, report.Results, 2)
	assert.Equal(t, StatusAdded, report.Results[0].Status)
	assert.Equal(t, StatusFailed, report.Results[1].Status)
	assert.NotContains(t, prod.loads, "c.pdf")
}

func TestPipeline_Run_Cancelled(t *testing.T) {
	t.Parallel()
	p, err := NewPipeline(&fakeIndex{indexed: map[string]bool{}}, &fakeProducer{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := p.Run(ctx, []string{"a.pdf"}, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, report.Results)
}

func TestExpandSources(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	for _, name := range []string{"b.pdf", "a.txt", "notes.md", "image.png", "sub/c.PDF"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	}
	empty := t.TempDir()

	got := ExpandSources([]string{
		"https://example.com/manual.pdf",
		dir,
		"  ",
		"does-not-exist.pdf",
		empty,
	})
	assert.Equal(t, []string{
		"https://example.com/manual.pdf",
		filepath.Join(dir, "a.txt"),
		filepath.Join(dir, "b.pdf"),
		filepath.Join(dir, "notes.md"),
		filepath.Join(dir, "sub", "c.PDF"),
		"does-not-exist.pdf",
		empty,
	}, got)
}
