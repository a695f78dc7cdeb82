package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Clock is a time of day read from a receipt.
type Clock struct {
	Hour, Minute, Second int
}

var (
	yearFirstDate  = regexp.MustCompile(`\b(\d{4})[-/.](\d{1,2})[-/.](\d{1,2})\b`)
	dayFirstDate   = regexp.MustCompile(`\b(\d{1,2})[-/.](\d{1,2})[-/.](\d{2}|\d{4})\b`)
	dayMonthName   = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?[\s\-]+(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?,?[\s\-]+(\d{4})\b`)
	monthNameDay   = regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`)
	clockTime      = regexp.MustCompile(`(?i)\b(\d{1,2}):(\d{2})(?::(\d{2}))?\s*(am|pm)?\b`)
	monthsByPrefix = map[string]time.Month{
		"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
		"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
		"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
	}
)

// ParseDates returns every calendar date found in text as midnight in loc,
// deduplicated, in discovery order. Ambiguous numeric dates such as 03/04/2026
// yield both the day-first and month-first reading.
func ParseDates(text string, loc *time.Location) []time.Time {
	if loc == nil {
		loc = time.Local
	}
	var out []time.Time
	seen := make(map[time.Time]struct{})
	add := func(y, m, d int) {
		t, ok := civilDate(y, m, d, loc)
		if !ok {
			return
		}
		if _, dup := seen[t]; dup {
			return
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}

	for _, m := range yearFirstDate.FindAllStringSubmatch(text, -1) {
		add(atoi(m[1]), atoi(m[2]), atoi(m[3]))
	}
	for _, m := range dayFirstDate.FindAllStringSubmatch(text, -1) {
		y := atoi(m[3])
		if len(m[3]) == 2 {
			y += 2000
		}
		a, b := atoi(m[1]), atoi(m[2])
		add(y, b, a)
		add(y, a, b)
	}
	for _, m := range dayMonthName.FindAllStringSubmatch(text, -1) {
		add(atoi(m[3]), int(monthsByPrefix[strings.ToLower(m[2])]), atoi(m[1]))
	}
	for _, m := range monthNameDay.FindAllStringSubmatch(text, -1) {
		add(atoi(m[3]), int(monthsByPrefix[strings.ToLower(m[1])]), atoi(m[2]))
	}
	return out
}

// civilDate builds the date and rejects overflowing values like 31 Feb.
func civilDate(y, m, d int, loc *time.Location) (time.Time, bool) {
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, loc)
	if t.Year() != y || int(t.Month()) != m || t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

// ParseTimes returns every valid H:MM[:SS] clock time in text, converting
// 12-hour times with a meridiem to 24-hour. A dot is not a separator, so
// decimal amounts never read as times.
func ParseTimes(text string) []Clock {
	var out []Clock
	for _, m := range clockTime.FindAllStringSubmatch(text, -1) {
		c := Clock{Hour: atoi(m[1]), Minute: atoi(m[2])}
		if m[3] != "" {
			c.Second = atoi(m[3])
		}
		switch strings.ToLower(m[4]) {
		case "am":
			if c.Hour == 12 {
				c.Hour = 0
			}
		case "pm":
			if c.Hour < 12 {
				c.Hour += 12
			}
		}
		if c.Hour > 23 || c.Minute > 59 || c.Second > 59 {
			continue
		}
		out = append(out, c)
	}
	return out
}

// CombineDateTimes forms the cross product of dates and times.
func CombineDateTimes(dates []time.Time, times []Clock, loc *time.Location) []time.Time {
	if loc == nil {
		loc = time.Local
	}
	out := make([]time.Time, 0, len(dates)*len(times))
	for _, d := range dates {
		for _, c := range times {
			out = append(out, time.Date(d.Year(), d.Month(), d.Day(), c.Hour, c.Minute, c.Second, 0, loc))
		}
	}
	return out
}

// WithinWindow reports whether any candidate lies in [start, start+d], bounds included.
func WithinWindow(cands []time.Time, start time.Time, d time.Duration) bool {
	end := start.Add(d)
	for _, c := range cands {
		if !c.Before(start) && !c.After(end) {
			return true
		}
	}
	return false
}

// IsRecent reports whether any date falls on today or yesterday in now's location.
func IsRecent(dates []time.Time, now time.Time) bool {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	yesterday := today.AddDate(0, 0, -1)
	for _, d := range dates {
		day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, now.Location())
		if day.Equal(today) || day.Equal(yesterday) {
			return true
		}
	}
	return false
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
