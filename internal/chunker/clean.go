package chunker

import (
	"crypto/md5"
	"encoding/hex"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Fingerprint returns the document fingerprint for a source: the hex MD5 of
// the cleaned path, or of the URL as given for remote sources. Equal sources
// always produce equal fingerprints.
func Fingerprint(source string) string {
	key := source
	if !IsRemote(source) {
		key = filepath.Clean(source)
	}
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Clean trims every line of text and drops lines of minLineLength characters
// or fewer. Page numbers, running headers and stray glyphs fall below the
// threshold on typical documents.
func Clean(text string, minLineLength int) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if utf8.RuneCountInString(line) > minLineLength {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
