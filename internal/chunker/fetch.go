package chunker

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"
)

// maxFetchBytes caps the size of a downloaded source.
const maxFetchBytes = 256 << 20

// IsRemote reports whether source is an http(s) URL rather than a local path.
func IsRemote(source string) bool {
	u, err := url.Parse(source)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Fetcher downloads remote sources into temporary files so they can be
// extracted like local ones.
type Fetcher struct {
	// Client defaults to an http.Client with a 60s timeout.
	Client *http.Client
	// UserAgent is sent with every request.
	UserAgent string
	// Dir holds the temporary files. Empty uses os.TempDir.
	Dir string
}

// Fetch downloads rawURL and returns the local file path. The caller must
// call cleanup once the file has been read.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (localPath string, cleanup func(), err error) {
	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", nil, fmt.Errorf("creating request: %w", err)
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	req.Header.Set("Accept", "application/pdf, text/plain")

	resp, err := client.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, rawURL)
	}

	tmp, err := os.CreateTemp(f.Dir, "docqa-fetch-*"+remoteExt(rawURL, resp.Header.Get("Content-Type")))
	if err != nil {
		return "", nil, fmt.Errorf("creating temp file: %w", err)
	}
	cleanup = func() { _ = os.Remove(tmp.Name()) }

	n, err := io.Copy(tmp, io.LimitReader(resp.Body, maxFetchBytes+1))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil && n > maxFetchBytes {
		err = fmt.Errorf("response exceeds %d bytes", maxFetchBytes)
	}
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("reading body: %w", err)
	}
	return tmp.Name(), cleanup, nil
}

// remoteExt picks the extension that decides how a downloaded file is parsed.
func remoteExt(rawURL, contentType string) string {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil && mt == "application/pdf" {
		return ".pdf"
	}
	if u, err := url.Parse(rawURL); err == nil && strings.EqualFold(path.Ext(u.Path), ".pdf") {
		return ".pdf"
	}
	return ".txt"
}
