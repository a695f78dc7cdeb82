package extract

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// numericToken starts with a real digit and may continue with confusable letters,
// which RepairNumerals turns back into digits.
const numericToken = `\d[0-9oilzsgtb|!]*(?:\.[0-9oilzsgtb|!]{1,2})?`

// amountKeywords anchor an amount on either side of it. "nu" and "btn" are the
// ngultrum abbreviations printed by Bhutanese bank apps.
const amountKeywords = `nu|btn|amount|amt|paid|pay|total|debited|transferred`

var (
	keywordThenNumber = regexp.MustCompile(`\b(?:` + amountKeywords + `)\.?\s*[:\-]?\s*(` + numericToken + `)`)
	numberThenKeyword = regexp.MustCompile(`\b(` + numericToken + `)\s*(?:nu|btn)\b`)
	looseDigitRun     = regexp.MustCompile(`\d{3,}(?:\.\d{1,2})?`)
	bankCurrency      = regexp.MustCompile(`\bnu\.?\s*(\d{3}(?:\.\d{1,2})?)\b`)
)

// amountCandidates runs every pattern family over text and returns all parsed values
// in discovery order.
func amountCandidates(text string) []decimal.Decimal {
	low := strings.ReplaceAll(strings.ToLower(text), ",", "")

	var raw []string
	for _, re := range []*regexp.Regexp{keywordThenNumber, numberThenKeyword} {
		for _, m := range re.FindAllStringSubmatch(low, -1) {
			raw = append(raw, m[1])
		}
	}
	raw = append(raw, looseDigitRun.FindAllString(low, -1)...)
	raw = append(raw, digitTriplets(low)...)
	for _, m := range bankCurrency.FindAllStringSubmatch(low, -1) {
		raw = append(raw, m[1])
	}

	out := make([]decimal.Decimal, 0, len(raw))
	for _, r := range raw {
		s := strings.Trim(RepairNumerals(r), ".")
		if s == "" {
			continue
		}
		v, err := decimal.NewFromString(s)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}

// digitTriplets returns standalone three-digit tokens, the way short amounts are
// usually printed on a line of their own.
func digitTriplets(low string) []string {
	var out []string
	for _, f := range strings.Fields(low) {
		f = strings.Trim(f, ".:;()[]")
		if len(f) == 3 && onlyDigits(f) == f {
			out = append(out, f)
		}
	}
	return out
}

// ParseAmount returns the candidate closest to expected, or false when the text
// holds no numeric candidate at all. Ties keep the earliest candidate.
func ParseAmount(text string, expected decimal.Decimal) (decimal.Decimal, bool) {
	cands := amountCandidates(text)
	if len(cands) == 0 {
		return decimal.Zero, false
	}
	best := cands[0]
	bestDiff := best.Sub(expected).Abs()
	for _, c := range cands[1:] {
		if d := c.Sub(expected).Abs(); d.LessThan(bestDiff) {
			best, bestDiff = c, d
		}
	}
	return best, true
}

// AmountWithin reports |found - expected| <= tolerance.
func AmountWithin(found, expected, tolerance decimal.Decimal) bool {
	return found.Sub(expected).Abs().LessThanOrEqual(tolerance)
}

// ContainsLiteralAmount looks for the whole-unit digits of expected (e.g. "300")
// as a standalone digit run in any numeric-looking token of text, after repair.
func ContainsLiteralAmount(text string, expected decimal.Decimal) bool {
	want := expected.Truncate(0).String()
	if want == "" || want == "0" {
		return false
	}
	for _, tok := range repairedTokens(text) {
		for from := 0; ; {
			i := strings.Index(tok[from:], want)
			if i < 0 {
				break
			}
			start, end := from+i, from+i+len(want)
			before := start == 0 || !isDigitByte(tok[start-1])
			after := end == len(tok) || !isDigitByte(tok[end])
			if before && after {
				return true
			}
			from = start + 1
		}
	}
	return false
}

func isDigitByte(b byte) bool { return b >= '0' && b <= '9' }
