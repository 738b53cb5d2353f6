package server

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/54b3r/docqa-go/internal/chunker"
)

var (
	// errRemoteDisabled rejects http(s) sources when remote ingestion is off.
	errRemoteDisabled = errors.New("remote sources are disabled")
	// errOutsideRoots rejects local paths outside every ingest root.
	errOutsideRoots = errors.New("path is outside the ingest roots")
)

// sourcePolicy decides which sources POST /api/ingest may index. Local paths
// must resolve, symlinks included, to a configured root or below it.
type sourcePolicy struct {
	roots       []string
	allowRemote bool
}

// newSourcePolicy resolves roots to absolute, symlink-free paths. With no
// roots every local path is refused.
func newSourcePolicy(roots []string, allowRemote bool) *sourcePolicy {
	p := &sourcePolicy{allowRemote: allowRemote}
	for _, root := range roots {
		if root = strings.TrimSpace(root); root == "" || chunker.IsRemote(root) {
			continue
		}
		p.roots = append(p.roots, resolvePath(root))
	}
	return p
}

// check returns nil when source may be ingested.
func (p *sourcePolicy) check(source string) error {
	if chunker.IsRemote(source) {
		if !p.allowRemote {
			return fmt.Errorf("%s: %w", source, errRemoteDisabled)
		}
		return nil
	}
	path := resolvePath(source)
	for _, root := range p.roots {
		if within(root, path) {
			return nil
		}
	}
	return fmt.Errorf("%s: %w", source, errOutsideRoots)
}

// checkAll returns the first rejection among sources.
func (p *sourcePolicy) checkAll(sources []string) error {
	for _, src := range sources {
		if err := p.check(src); err != nil {
			return err
		}
	}
	return nil
}

// resolvePath returns the absolute form of path with symlinks evaluated. A
// path that does not exist keeps its cleaned absolute form.
func resolvePath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return abs
		}
		return resolveMissing(abs)
	}
	return resolved
}

// resolveMissing evaluates symlinks in the longest existing prefix of abs.
func resolveMissing(abs string) string {
	dir, rest := filepath.Dir(abs), filepath.Base(abs)
	for dir != filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			return filepath.Join(resolved, rest)
		}
		rest = filepath.Join(filepath.Base(dir), rest)
		dir = filepath.Dir(dir)
	}
	return abs
}

// within reports whether path is root or lies below it.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
