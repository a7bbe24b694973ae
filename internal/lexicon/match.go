package lexicon

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// ContainsWord checks if text contains word as a whole word (not substring).
// Both are expected to be lowercased already. Boundaries are judged on
// runes, so "münchen" and Cyrillic terms behave like ASCII ones.
func ContainsWord(text, word string) bool {
	_, ok := IndexWord(text, word)
	return ok
}

// IndexWord returns the byte offset of the first whole-word occurrence of
// word in text.
func IndexWord(text, word string) (int, bool) {
	if word == "" {
		return 0, false
	}
	offset := 0
	for {
		idx := strings.Index(text[offset:], word)
		if idx < 0 {
			return 0, false
		}
		start := offset + idx
		end := start + len(word)

		leftOK := true
		if start > 0 {
			prev, _ := utf8.DecodeLastRuneInString(text[:start])
			leftOK = !isWordRune(prev)
		}
		rightOK := true
		if end < len(text) {
			next, _ := utf8.DecodeRuneInString(text[end:])
			rightOK = !isWordRune(next)
		}
		if leftOK && rightOK {
			return start, true
		}

		// Not a word boundary, might be substring - check later occurrences
		_, size := utf8.DecodeRuneInString(text[start:])
		offset = start + size
	}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
