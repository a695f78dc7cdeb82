package extract

import (
	"strings"
	"unicode"
)

// Receiver identifies the merchant account a transfer must land in.
type Receiver struct {
	Name    string
	Account string
	// Suffixes are short account-number tails that some bank apps print instead of
	// the full number (e.g. "xx5591"). They only count alongside a name token.
	Suffixes []string
}

// MatchReceiver is Receiver{Name: name, Account: account}.Match(text).
func MatchReceiver(text, name, account string) bool {
	return Receiver{Name: name, Account: account}.Match(text)
}

// compact lower-cases s and removes whitespace and hyphens.
func compact(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '-' {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
}

// nameTokens returns the distinguishing words of a display name: lower-cased,
// three runes or longer.
func nameTokens(name string) []string {
	var out []string
	for _, f := range strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(f)) >= 3 {
			out = append(out, f)
		}
	}
	return out
}

// Match reports whether text carries evidence of the receiver: the full name
// (plain or with letter/digit swaps bridged), the full account number, its last
// four digits, or a known suffix together with a name token. When the name has two
// or more distinguishing words they must all appear for the name alone to count.
func (r Receiver) Match(text string) bool {
	flat := compact(text)
	fuzzyFlat := fuzzy(flat)

	if name := compact(r.Name); name != "" {
		if strings.Contains(flat, name) || strings.Contains(fuzzyFlat, fuzzy(name)) {
			return true
		}
	}

	tokens := nameTokens(r.Name)
	if len(tokens) >= 2 && allTokensPresent(flat, fuzzyFlat, tokens) {
		return true
	}

	acct := onlyDigits(r.Account)
	if acct != "" {
		if strings.Contains(flat, acct) {
			return true
		}
		last4 := ""
		if len(acct) >= 4 {
			last4 = acct[len(acct)-4:]
		}
		for _, tok := range repairedTokens(text) {
			if strings.Contains(tok, acct) || (last4 != "" && strings.Contains(tok, last4)) {
				return true
			}
		}
	}

	if len(r.Suffixes) > 0 && anyTokenPresent(flat, fuzzyFlat, tokens) {
		for _, sfx := range r.Suffixes {
			sfx = onlyDigits(sfx)
			if sfx == "" {
				continue
			}
			for _, tok := range repairedTokens(text) {
				if strings.HasSuffix(strings.TrimRight(tok, "."), sfx) {
					return true
				}
			}
		}
	}
	return false
}

func allTokensPresent(flat, fuzzyFlat string, tokens []string) bool {
	for _, t := range tokens {
		if !strings.Contains(flat, t) && !strings.Contains(fuzzyFlat, fuzzy(t)) {
			return false
		}
	}
	return true
}

func anyTokenPresent(flat, fuzzyFlat string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(flat, t) || strings.Contains(fuzzyFlat, fuzzy(t)) {
			return true
		}
	}
	return false
}
