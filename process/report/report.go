// Package report summarizes recorded verification attempts for one month.
package report

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"resumepay/models"
)

// Lister is the read side of the attempt store.
type Lister interface {
	ListBetween(ctx context.Context, start, end time.Time) ([]models.VerificationAttempt, error)
}

// Summary counts the attempts of a month.
type Summary struct {
	Month    string
	Total    int
	Accepted int
	Sessions int
	Reasons  map[string]int
	Rows     []models.VerificationAttempt
}

// MonthRange parses YYYY-MM into a [start, end) range in UTC.
func MonthRange(month string) (time.Time, time.Time, error) {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid month %q, expected YYYY-MM: %w", month, err)
	}
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0), nil
}

// Summarize keeps the attempts created inside month and tallies them.
func Summarize(items []models.VerificationAttempt, month string) (Summary, error) {
	start, end, err := MonthRange(month)
	if err != nil {
		return Summary{}, err
	}
	s := Summary{Month: month, Reasons: map[string]int{}}
	sessions := map[string]struct{}{}
	for _, a := range items {
		if a.CreatedAt.Before(start) || !a.CreatedAt.Before(end) {
			continue
		}
		s.Total++
		s.Rows = append(s.Rows, a)
		sessions[a.SessionID] = struct{}{}
		if a.Accepted {
			s.Accepted++
		}
		for _, r := range strings.Split(a.Reasons, ",") {
			if r != "" {
				s.Reasons[r]++
			}
		}
	}
	s.Sessions = len(sessions)
	sort.Slice(s.Rows, func(i, j int) bool { return s.Rows[i].ID < s.Rows[j].ID })
	return s, nil
}

// Write prints the summary and, when list is set, one line per attempt.
func Write(w io.Writer, s Summary, list bool) {
	fmt.Fprintf(w, "Verification attempts month=%s (UTC):\n", s.Month)
	fmt.Fprintf(w, "  attempts=%d sessions=%d accepted=%d rejected=%d\n", s.Total, s.Sessions, s.Accepted, s.Total-s.Accepted)
	reasons := make([]string, 0, len(s.Reasons))
	for r := range s.Reasons {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		fmt.Fprintf(w, "  %s=%d\n", r, s.Reasons[r])
	}
	if !list {
		return
	}
	for _, a := range s.Rows {
		fmt.Fprintf(w, "%d|%s|%s|%t|%s|%s|%s\n", a.ID, a.SessionID, a.FileName, a.Accepted, a.Reasons, a.FoundAmount, a.CreatedAt.Format(time.RFC3339))
	}
}

// Run loads every attempt of month and writes its report.
func Run(ctx context.Context, st Lister, month string, list bool, w io.Writer) error {
	start, end, err := MonthRange(month)
	if err != nil {
		return err
	}
	items, err := st.ListBetween(ctx, start, end)
	if err != nil {
		return fmt.Errorf("list attempts: %w", err)
	}
	s, err := Summarize(items, month)
	if err != nil {
		return err
	}
	Write(w, s, list)
	return nil
}
