package extract

import (
	"strings"
	"unicode"
)

// DefaultReceiptTerms is the banking vocabulary a transfer confirmation tends to use.
var DefaultReceiptTerms = []string{
	"transaction", "successful", "bank", "transfer", "balance",
	"reference", "ref no", "amount", "paid", "debited", "credited", "account",
	"payment", "remarks", "journal", "beneficiary", "txn", "a/c",
}

// DefaultBankTokens are app and bank names distinctive enough to pass the gate alone.
var DefaultBankTokens = []string{
	"mbob", "mpay", "bnb", "bdbl", "epay", "tpay", "drukpay", "gobob", "dpnb",
}

const successPhrase = "transaction successful"

// Gate decides whether OCR text plausibly comes from a payment receipt at all.
type Gate struct {
	Terms      []string
	MinTerms   int
	BankTokens []string
}

// DefaultGate uses the default vocabulary with a threshold of three terms.
func DefaultGate() Gate {
	return Gate{Terms: DefaultReceiptTerms, MinTerms: 3, BankTokens: DefaultBankTokens}
}

// IsLikelyReceipt applies DefaultGate.
func IsLikelyReceipt(text string) bool {
	return DefaultGate().IsLikelyReceipt(text)
}

// IsLikelyReceipt reports whether at least MinTerms distinct vocabulary terms occur,
// a bank token appears as a whole word, or the text says "transaction successful".
func (g Gate) IsLikelyReceipt(text string) bool {
	low := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	if low == "" {
		return false
	}
	if strings.Contains(low, successPhrase) {
		return true
	}

	words := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(low, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		words[w] = struct{}{}
	}
	for _, tok := range g.BankTokens {
		if _, ok := words[strings.ToLower(tok)]; ok {
			return true
		}
	}

	need := g.MinTerms
	if need <= 0 {
		need = 3
	}
	hits := 0
	for _, term := range g.Terms {
		if term != "" && strings.Contains(low, strings.ToLower(term)) {
			hits++
			if hits >= need {
				return true
			}
		}
	}
	return false
}
