package cli

import (
	"strings"
	"unicode/utf8"
)

// sanitizeForTerminal drops runes that would let message content control
// the terminal or break column layout:
// - C0 and C1 control characters other than tab (ESC starts ANSI sequences)
// - bidi overrides and isolates (U+202A..U+202E, U+2066..U+2069)
// - Zero Width Joiner (U+200D) and variation selectors
// Invalid UTF-8 bytes are replaced with U+FFFD.
func sanitizeForTerminal(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == utf8.RuneError && size == 1:
			b.WriteRune(utf8.RuneError)
		case r == '\n' || r == '\r':
			b.WriteByte(' ')
		case !isProblematicRune(r):
			b.WriteRune(r)
		}
		i += size
	}
	return b.String()
}

func isProblematicRune(r rune) bool {
	switch {
	case r == '\t':
		return false
	case r < 0x20 || r == 0x7F:
		return true
	case r >= 0x80 && r <= 0x9F:
		return true
	case r >= 0x202A && r <= 0x202E:
		return true
	case r >= 0x2066 && r <= 0x2069:
		return true
	case r == 0x200D:
		return true
	case r >= 0xFE00 && r <= 0xFE0F:
		return true
	case r >= 0xE0100 && r <= 0xE01EF:
		return true
	default:
		return false
	}
}
