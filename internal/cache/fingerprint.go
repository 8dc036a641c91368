// Package cache implements the Audit Cache and (via internal/prompt) the
// Prompt Cache: a generic content-addressed LRU+TTL store with singleflight
// de-duplication of concurrent misses, grounded on
// itsneelabh/gomind's orchestration.LRUCache.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
)

var (
	lineComment  = regexp.MustCompile(`//[^\n]*`)
	blockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	hashComment  = regexp.MustCompile(`#[^\n]*`)
	htmlComment  = regexp.MustCompile(`(?s)<!--.*?-->`)
	whitespace   = regexp.MustCompile(`\s+`)
	punctSpaces  = regexp.MustCompile(`\s*([{}();,])\s*`)
)

// NormalizeCode canonicalizes code so that trivially reformatted
// submissions (different comment style, whitespace, or spacing around
// punctuation) hash to the same fingerprint (spec.md §4.2).
func NormalizeCode(code string) string {
	s := code
	s = blockComment.ReplaceAllString(s, "")
	s = htmlComment.ReplaceAllString(s, "")
	s = lineComment.ReplaceAllString(s, "")
	s = hashComment.ReplaceAllString(s, "")
	s = punctSpaces.ReplaceAllString(s, "$1")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Fingerprint computes SHA-256(normalize(code) ‖ thoughtNumber), the Audit
// Cache key defined in spec.md §4.2.
func Fingerprint(code string, thoughtNumber int) string {
	h := sha256.New()
	h.Write([]byte(NormalizeCode(code)))
	h.Write([]byte(strconv.Itoa(thoughtNumber)))
	return hex.EncodeToString(h.Sum(nil))
}

// HashString is a general-purpose SHA-256 hex digest, used by the Prompt
// Cache to combine template/config/code hashes into one key (spec.md §4.7).
func HashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}
