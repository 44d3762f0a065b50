// Package textmetric computes the character and weighted byte counts that the
// national paper-record system uses to budget free-text entries. Hangul
// syllables weigh 3 bytes, newlines 2, everything else 1.
package textmetric

const (
	hangulSyllableStart = 0xAC00
	hangulSyllableEnd   = 0xD7A3
)

// Measure returns the character count and weighted byte count for content.
// Empty content yields (0, 0).
func Measure(content string) (charCount, byteCount int) {
	for _, r := range content {
		charCount++
		switch {
		case r >= hangulSyllableStart && r <= hangulSyllableEnd:
			byteCount += 3
		case r == '\n':
			byteCount += 2
		default:
			byteCount++
		}
	}
	return charCount, byteCount
}
