package gallery

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizeKeyword normalizes text for keyword search (lowercase, no diacritics, spaces for dashes).
func NormalizeKeyword(s string) string {
	s = RemoveDiacritics(s)
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "-", " ")
	return strings.TrimSpace(s)
}

// MatchesKeyword reports whether the identity or remarks of rec contain an
// already normalized keyword.
func MatchesKeyword(rec Record, keyword string) bool {
	return strings.Contains(NormalizeKeyword(rec.Identity), keyword) ||
		strings.Contains(NormalizeKeyword(rec.Remarks), keyword)
}
