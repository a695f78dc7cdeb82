// Package extract pulls payment evidence (amount, receiver, date and time) out of
// noisy OCR text taken from bank transfer screenshots.
package extract

import "strings"

// ConfusableDigits maps characters OCR commonly emits in place of digits in
// bank-receipt fonts. It is only applied to substrings already believed numeric.
var ConfusableDigits = map[rune]rune{
	'o': '0', 'O': '0',
	'i': '1', 'I': '1', 'l': '1', '|': '1', '!': '1',
	'z': '2', 'Z': '2',
	's': '5', 'S': '5',
	'g': '6', 'G': '6',
	't': '7', 'T': '7',
	'b': '8', 'B': '8',
}

// FuzzyLetters is the narrower table used to compare names, where only the most
// frequent letter/digit swaps are bridged.
var FuzzyLetters = map[rune]rune{
	'o': '0',
	'i': '1', 'l': '1',
	's': '5',
}

// RepairNumerals replaces confusable letters with digits, then drops everything
// that is not a digit or a decimal point.
func RepairNumerals(s string) string {
	return strings.Map(func(r rune) rune {
		if d, ok := ConfusableDigits[r]; ok {
			return d
		}
		if (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		return -1
	}, s)
}

// fuzzy applies FuzzyLetters to an already lower-cased string.
func fuzzy(s string) string {
	return strings.Map(func(r rune) rune {
		if d, ok := FuzzyLetters[r]; ok {
			return d
		}
		return r
	}, s)
}

// onlyDigits extracts decimal digits from a string.
func onlyDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

func hasDigit(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return r >= '0' && r <= '9' }) >= 0
}

// repairedTokens returns the numeral-repaired form of every whitespace separated
// token that contains at least one real digit.
func repairedTokens(text string) []string {
	var out []string
	for _, f := range strings.Fields(text) {
		if !hasDigit(f) {
			continue
		}
		if r := RepairNumerals(f); r != "" {
			out = append(out, r)
		}
	}
	return out
}
