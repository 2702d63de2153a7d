// Package decode implements the UTF-8 -> Latin-1 -> UTF-8-with-replacement
// cascade spec.md 7 requires for README/CODEOWNERS text: never abort a
// repository just because its file content isn't valid UTF-8.
package decode

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Text decodes raw file bytes, trying UTF-8 first, falling back to Latin-1,
// and finally accepting UTF-8 with replacement runes rather than failing.
func Text(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	if s, err := charmap.ISO8859_1.NewDecoder().String(string(raw)); err == nil {
		return s
	}
	return string([]rune(string(raw)))
}
