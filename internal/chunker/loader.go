package chunker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/docqa-go/internal/rag"
)

// CommandRunner executes an external program and returns its stdout.
// Tests substitute a fake so no binaries are needed.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner implements CommandRunner with os/exec.
type ExecRunner struct{}

// Run executes name with args and returns the captured stdout. A non-zero
// exit status is returned as an error carrying stderr.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return stdout.Bytes(), nil
}

// Loader reads a source into one schema.Document per page. PDFs are
// extracted with pdftotext; everything else is read as UTF-8 text. Remote
// sources are downloaded first when a Fetcher is attached.
type Loader struct {
	runner    CommandRunner
	pdftotext string
	fetcher   *Fetcher
}

var _ document.Loader = (*Loader)(nil)

// NewLoader returns a Loader that extracts PDFs through runner.
func NewLoader(runner CommandRunner) *Loader {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Loader{runner: runner, pdftotext: "pdftotext"}
}

// WithFetcher enables http(s) sources.
func (l *Loader) WithFetcher(f *Fetcher) *Loader {
	l.fetcher = f
	return l
}

// Load returns the pages of src.URI. Read and parse failures are returned as
// *rag.LoadFailure. A source with no extractable pages yields no documents.
func (l *Loader) Load(ctx context.Context, src document.Source, _ ...document.LoaderOption) ([]*schema.Document, error) {
	source := src.URI
	path := source
	if IsRemote(source) {
		if l.fetcher == nil {
			return nil, &rag.LoadFailure{Source: source, Err: errors.New("remote sources are not enabled")}
		}
		local, cleanup, err := l.fetcher.Fetch(ctx, source)
		if err != nil {
			return nil, &rag.LoadFailure{Source: source, Err: err}
		}
		defer cleanup()
		path = local
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, &rag.LoadFailure{Source: source, Err: err}
	}
	if info.IsDir() {
		return nil, &rag.LoadFailure{Source: source, Err: errors.New("is a directory")}
	}

	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return l.loadPDF(ctx, path, source)
	}
	return loadText(path, source)
}

func (l *Loader) loadPDF(ctx context.Context, path, source string) ([]*schema.Document, error) {
	out, err := l.runner.Run(ctx, l.pdftotext, "-enc", "UTF-8", "-q", path, "-")
	if err != nil {
		return nil, &rag.LoadFailure{Source: source, Err: err}
	}

	// pdftotext terminates every page with a form feed.
	pages := strings.Split(string(out), "\f")
	if n := len(pages); n > 0 && strings.TrimSpace(pages[n-1]) == "" {
		pages = pages[:n-1]
	}

	docs := make([]*schema.Document, 0, len(pages))
	for i, page := range pages {
		docs = append(docs, &schema.Document{
			ID:      fmt.Sprintf("%s#page=%d", source, i+1),
			Content: page,
			MetaData: map[string]any{
				MetaSourceURI: source,
				MetaPage:      i + 1,
			},
		})
	}
	return docs, nil
}

func loadText(path, source string) ([]*schema.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &rag.LoadFailure{Source: source, Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	return []*schema.Document{{
		ID:      source,
		Content: string(data),
		MetaData: map[string]any{
			MetaSourceURI: source,
			MetaPage:      0,
		},
	}}, nil
}
