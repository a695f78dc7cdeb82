package payment

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"resumepay/pkg/extract"
	"resumepay/pkg/ocr"
)

// excerptRunes bounds the OCR text echoed back in diagnostics.
const excerptRunes = 150

// Verdict is the outcome of one verification.
type Verdict struct {
	Accepted        bool             `json:"accepted"`
	Reasons         []ReasonCode     `json:"reasons,omitempty"`
	Diagnostic      string           `json:"diagnostic,omitempty"`
	Amount          *decimal.Decimal `json:"amount,omitempty"`
	ReceiverMatched bool             `json:"receiver_matched"`
	Passes          []string         `json:"passes,omitempty"`
	Policy          string           `json:"policy,omitempty"`
}

// Has reports whether code is among the verdict's reasons.
func (v Verdict) Has(code ReasonCode) bool {
	for _, r := range v.Reasons {
		if r == code {
			return true
		}
	}
	return false
}

// expired turns v into a WindowExpired rejection regardless of its evidence.
func (v Verdict) expired() Verdict {
	v.Accepted = false
	if !v.Has(WindowExpired) {
		v.Reasons = append(append([]ReasonCode(nil), v.Reasons...), WindowExpired)
	}
	v.Diagnostic = WindowExpired.Message()
	return v
}

func rejection(code ReasonCode) Verdict {
	return Verdict{Reasons: []ReasonCode{code}, Diagnostic: code.Message()}
}

// Window is the interval a receipt timestamp must fall in.
type Window struct {
	Start    time.Time
	Duration time.Duration
}

// DecisionInput is everything Decide needs besides the OCR text.
type DecisionInput struct {
	Expected decimal.Decimal
	Receiver extract.Receiver
	Gate     extract.Gate
	Policy   Policy
	Window   Window
	// Now is used by the recency strategy.
	Now time.Time
	// Location interprets receipt dates; defaults to the window start's location.
	Location *time.Location
	// Remaining is consulted right before accepting; the window may close while OCR runs.
	Remaining func() int
}

// Decide fuses the extractor results over text into a verdict. The receipt gate
// short-circuits; amount, receiver and date failures accumulate.
func Decide(text string, in DecisionInput) Verdict {
	gate := in.Gate
	if len(gate.Terms) == 0 && len(gate.BankTokens) == 0 {
		gate = extract.DefaultGate()
	}
	v := Verdict{Policy: in.Policy.Name}
	if !gate.IsLikelyReceipt(text) {
		v.Reasons = []ReasonCode{NotAReceipt}
		v.Diagnostic = diagnostic([]string{NotAReceipt.Message()}, text)
		return v
	}

	var clauses []string
	fail := func(code ReasonCode, msg string) {
		v.Reasons = append(v.Reasons, code)
		clauses = append(clauses, msg)
	}

	amount, found := extract.ParseAmount(text, in.Expected)
	if found {
		v.Amount = &amount
	}
	amountOK := found && extract.AmountWithin(amount, in.Expected, in.Policy.AmountTolerance)
	v.ReceiverMatched = in.Receiver.Match(text)
	if !amountOK && v.ReceiverMatched && in.Policy.LiteralAmountFallback && extract.ContainsLiteralAmount(text, in.Expected) {
		amountOK = true
		expected := in.Expected
		v.Amount = &expected
	}
	if !amountOK {
		fail(AmountMismatch, AmountMismatch.Message())
	}
	if !v.ReceiverMatched {
		fail(ReceiverMismatch, ReceiverMismatch.Message())
	}

	loc := in.Location
	if loc == nil {
		loc = in.Window.Start.Location()
	}
	dates := extract.ParseDates(text, loc)
	switch in.Policy.Dates {
	case DateRecent:
		now := in.Now
		if now.IsZero() {
			now = time.Now()
		}
		if len(dates) == 0 {
			fail(DateNotFound, DateNotFound.Message())
		} else if !extract.IsRecent(dates, now.In(loc)) {
			fail(DateOutOfWindow, notRecentMessage)
		}
	default:
		cands := extract.CombineDateTimes(dates, extract.ParseTimes(text), loc)
		if len(cands) == 0 {
			fail(DateNotFound, DateNotFound.Message())
		} else if !extract.WithinWindow(cands, in.Window.Start, in.Window.Duration) {
			fail(DateOutOfWindow, outOfWindowMessage(in.Window.Duration))
		}
	}

	if len(v.Reasons) == 0 {
		if in.Remaining != nil && in.Remaining() <= 0 {
			return v.expired()
		}
		v.Accepted = true
		return v
	}
	v.Diagnostic = diagnostic(clauses, text)
	return v
}

func diagnostic(clauses []string, text string) string {
	msg := strings.Join(clauses, " ")
	if t := strings.TrimSpace(text); t != "" {
		msg += " Detected text: \"" + ocr.Snippet(t, excerptRunes) + "\""
	}
	return msg
}

// HasRequiredEvidence is the early-exit predicate for the OCR passes: the
// receiver is recognised and an amount that would pass the policy is present.
func HasRequiredEvidence(expected decimal.Decimal, r extract.Receiver, p Policy) ocr.EvidencePredicate {
	return func(text string) bool {
		if strings.TrimSpace(text) == "" || !r.Match(text) {
			return false
		}
		if amt, ok := extract.ParseAmount(text, expected); ok && extract.AmountWithin(amt, expected, p.AmountTolerance) {
			return true
		}
		return p.LiteralAmountFallback && extract.ContainsLiteralAmount(text, expected)
	}
}
