// Package hashutil provides the content hashing and identity primitives used
// by the chunk cache. All functions are pure and deterministic: the same
// input always yields the same id, which is what makes cache keys and chunk
// ids stable across runs.
package hashutil

import (
	"crypto/sha256"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
)

// HashContent returns the hex-encoded SHA256 digest of data.
func HashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum)
}

// HashString returns the hex-encoded SHA256 digest of s.
func HashString(s string) string {
	return HashContent([]byte(s))
}

// ShortHash returns the first n hex characters of the SHA256 digest of s.
// n is clamped to the digest length.
func ShortHash(s string, n int) string {
	h := HashString(s)
	if n <= 0 || n > len(h) {
		return h
	}
	return h[:n]
}

// FileID derives a stable identifier for a file path. It combines a slug of
// the base name (readable in logs and cache listings) with a short hash of
// the full path so files with the same name in different directories get
// distinct ids.
func FileID(path string) string {
	base := filepath.Base(path)
	if ext := filepath.Ext(base); ext != "" {
		base = base[:len(base)-len(ext)]
	}
	return fmt.Sprintf("%s-%s", Slug(base), ShortHash(path, 8))
}

// Slug lowercases s and replaces every non-alphanumeric run with a single
// dash, trimming leading and trailing dashes.
func Slug(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastDash := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastDash = false
		} else if !lastDash {
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
