package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/docqa-go/internal/ingestion"
)

// sourceTree lays out a docs root with one document, a sibling directory
// holding credentials, and symlinks from the root into the sibling.
func sourceTree(t *testing.T) (root, secret string) {
	t.Helper()
	base := t.TempDir()
	root = filepath.Join(base, "docs")
	private := filepath.Join(base, "private")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "linked"), 0o755))
	require.NoError(t, os.MkdirAll(private, 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(root, "guide.txt"), []byte("how to use the product"), 0o600))
	secret = filepath.Join(private, "app.env")
	require.NoError(t, os.WriteFile(secret, []byte("DB_PASSWORD=hunter2"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(private, "notes.txt"), []byte("internal notes"), 0o600))

	if err := os.Symlink(secret, filepath.Join(root, "env.txt")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	require.NoError(t, os.Symlink(filepath.Join(private, "notes.txt"), filepath.Join(root, "linked", "notes.txt")))
	return root, secret
}

func TestSourcePolicy_Check(t *testing.T) {
	t.Parallel()
	root, secret := sourceTree(t)
	p := newSourcePolicy([]string{root, " ", "https://example.com/docs"}, false)

	allowed := []string{
		root,
		filepath.Join(root, "guide.txt"),
		filepath.Join(root, "missing", "later.pdf"),
	}
	for _, src := range allowed {
		assert.NoError(t, p.check(src), src)
	}

	refused := map[string]error{
		secret:                                      errOutsideRoots,
		root + "/../private":                        errOutsideRoots,
		filepath.Join(root, "env.txt"):              errOutsideRoots,
		filepath.Join(root, "linked", "notes.txt"):  errOutsideRoots,
		root + "-sibling/file.pdf":                  errOutsideRoots,
		"/etc/passwd":                               errOutsideRoots,
		"https://internal.example.com/metadata.pdf": errRemoteDisabled,
	}
	for src, want := range refused {
		assert.ErrorIs(t, p.check(src), want, src)
	}
}

func TestSourcePolicy_NoRootsRefusesLocalPaths(t *testing.T) {
	t.Parallel()
	p := newSourcePolicy(nil, true)
	assert.ErrorIs(t, p.check("guide.pdf"), errOutsideRoots)
	assert.NoError(t, p.check("https://example.com/guide.pdf"))
}

func TestHandleIngest_SourcePolicy(t *testing.T) {
	t.Parallel()
	root, secret := sourceTree(t)

	cases := []struct {
		name   string
		source string
		want   int
	}{
		{"document under root", filepath.Join(root, "guide.txt"), http.StatusOK},
		{"file outside root", secret, http.StatusForbidden},
		{"dot-dot escape", root + "/../private/app.env", http.StatusForbidden},
		{"symlink out of root", filepath.Join(root, "env.txt"), http.StatusForbidden},
		{"directory holding a symlink out", root, http.StatusForbidden},
		{"remote source", "https://example.com/a.pdf", http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ing := &fakeIngester{report: &ingestion.Report{}}
			s := newTestServer()
			s.ingester = ing
			s.sources = newSourcePolicy([]string{root}, false)
			w := httptest.NewRecorder()

			body := `{"sources":[` + jsonString(tc.source) + `]}`
			s.handleIngest(w, postJSON("/api/ingest", body))

			require.Equal(t, tc.want, w.Code, w.Body.String())
			if tc.want == http.StatusForbidden {
				assert.Nil(t, ing.sources, "nothing may be read for a refused request")
			} else {
				assert.Equal(t, []string{tc.source}, ing.sources)
			}
		})
	}
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
