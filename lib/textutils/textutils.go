package textutils

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

func dropControl(r rune) rune {
	if r == utf8.RuneError || unicode.IsControl(r) {
		return -1
	}
	return r
}

// NormalizeFileName normalises using form C and drops control characters
// and invalid utf8 sequences.
func NormalizeFileName(s string) string {
	s = strings.ToValidUTF8(s, "")
	s = norm.NFC.String(s)
	return strings.Map(dropControl, s)
}

// TruncateText truncates valid utf8 string
// to specified length or less without breaking it.
func TruncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for ; n != 0; n-- {
		// cut off only in places before next full rune
		if utf8.RuneStart(s[n]) {
			return s[:n]
		}
	}
	return ""
}
