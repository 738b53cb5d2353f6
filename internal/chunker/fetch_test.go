package chunker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/docqa-go/internal/rag"
)

func TestIsRemote(t *testing.T) {
	t.Parallel()
	tests := map[string]bool{
		"https://example.com/manual.pdf": true,
		"http://localhost:8080/a.txt":    true,
		"docs/manual.pdf":                false,
		"/abs/path.pdf":                  false,
		"file:///tmp/a.pdf":              false,
		"https://":                       false,
	}
	for in, want := range tests {
		assert.Equal(t, want, IsRemote(in), in)
	}
}

func TestFingerprint_RemoteKeepsURL(t *testing.T) {
	t.Parallel()
	a := Fingerprint("https://example.com/docs/manual.pdf")
	b := Fingerprint("https://example.com/docs//manual.pdf")
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, Fingerprint("https://example.com/docs/manual.pdf"))
}

func TestRemoteExt(t *testing.T) {
	t.Parallel()
	assert.Equal(t, ".pdf", remoteExt("https://x/download?id=1", "application/pdf"))
	assert.Equal(t, ".pdf", remoteExt("https://x/Manual.PDF", "application/octet-stream"))
	assert.Equal(t, ".txt", remoteExt("https://x/readme", "text/plain; charset=utf-8"))
}

func TestLoader_RemotePDF(t *testing.T) {
	t.Parallel()
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4 fake"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	runner := &fakeRunner{out: pageText(1, 5) + "\f"}
	loader := NewLoader(runner).WithFetcher(&Fetcher{UserAgent: "docqa-test", Dir: dir})
	source := srv.URL + "/manual"

	chunks, err := New(Config{}, loader).LoadAndSplit(context.Background(), source)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, source, chunks[0].SourceURI)
	assert.Equal(t, Fingerprint(source), chunks[0].SourceFingerprint)
	assert.Equal(t, 1, chunks[0].PageNumber)
	assert.Equal(t, "docqa-test", gotUA)

	require.Len(t, runner.calls, 1)
	assert.Equal(t, ".pdf", filepath.Ext(runner.calls[0][4]))

	left, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, left, "downloaded file must be removed")
}

func TestLoader_RemoteFailures(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	tests := []struct {
		name   string
		loader *Loader
	}{
		{name: "not enabled", loader: NewLoader(&fakeRunner{})},
		{name: "http error", loader: NewLoader(&fakeRunner{}).WithFetcher(&Fetcher{Dir: t.TempDir()})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(Config{}, tt.loader).LoadAndSplit(context.Background(), srv.URL+"/missing.pdf")
			var lf *rag.LoadFailure
			require.True(t, errors.As(err, &lf))
			assert.Equal(t, srv.URL+"/missing.pdf", lf.Source)
		})
	}
}
