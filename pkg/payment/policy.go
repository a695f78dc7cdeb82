package payment

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DateStrategy selects how receipt dates are checked.
type DateStrategy string

const (
	// DateWindow requires a date+time candidate inside the session window.
	DateWindow DateStrategy = "window"
	// DateRecent only requires a date of today or yesterday.
	DateRecent DateStrategy = "recent"
)

// Policy is one threat model for accepting receipts. The two presets are not
// meant to be mixed.
type Policy struct {
	Name            string
	AmountTolerance decimal.Decimal
	Dates           DateStrategy
	// LiteralAmountFallback accepts the amount when the receiver matched and the
	// expected digits appear anywhere in the repaired text.
	LiteralAmountFallback bool
}

// StrictPolicy favours fraud resistance: ±0.5, exact timestamp window, no fallback.
func StrictPolicy() Policy {
	return Policy{
		Name:            "strict",
		AmountTolerance: decimal.RequireFromString("0.5"),
		Dates:           DateWindow,
	}
}

// LenientPolicy favours legitimate users: ±10, date recency, literal amount fallback.
func LenientPolicy() Policy {
	return Policy{
		Name:                  "lenient",
		AmountTolerance:       decimal.NewFromInt(10),
		Dates:                 DateRecent,
		LiteralAmountFallback: true,
	}
}

// PolicyByName resolves "strict" (also the empty name) or "lenient".
func PolicyByName(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "strict":
		return StrictPolicy(), nil
	case "lenient":
		return LenientPolicy(), nil
	}
	return Policy{}, fmt.Errorf("unknown verification policy %q", name)
}
