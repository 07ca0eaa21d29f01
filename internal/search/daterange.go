package search

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var daysAgoRe = regexp.MustCompile(`(\d+)`)

// ParseDateQuery parses a date filter expression into an inclusive
// [start, end] range, ported from original_source's parse_date_query:
// relative phrases in Japanese and English, "N日前"/"N days ago", an
// absolute "YYYY-MM-DD", or a "start..end" span. now must already carry
// the persona's configured timezone location.
func ParseDateQuery(dateQuery string, now time.Time) (start, end time.Time, err error) {
	q := strings.TrimSpace(dateQuery)
	loc := now.Location()

	dayBounds := func(t time.Time) (time.Time, time.Time) {
		s := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
		e := time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999999000, loc)
		return s, e
	}

	switch {
	case q == "今日" || q == "today":
		start, end = dayBounds(now)
		return start, end, nil

	case q == "昨日" || q == "yesterday":
		y := now.AddDate(0, 0, -1)
		start, end = dayBounds(y)
		return start, end, nil

	case q == "今週" || q == "this week":
		weekday := int(now.Weekday())
		// Python's date.weekday(): Monday=0 .. Sunday=6; Go's time.Weekday: Sunday=0.
		mondayOffset := (weekday + 6) % 7
		s := now.AddDate(0, 0, -mondayOffset)
		start = time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, loc)
		end = now
		return start, end, nil

	case q == "先週" || q == "last week":
		weekday := int(now.Weekday())
		mondayOffset := (weekday+6)%7 + 7
		s := now.AddDate(0, 0, -mondayOffset)
		start = time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, loc)
		end = start.AddDate(0, 0, 6).Add(23*time.Hour + 59*time.Minute + 59*time.Second)
		return start, end, nil

	case q == "今月" || q == "this month":
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
		end = now
		return start, end, nil

	case strings.Contains(q, "日前") || strings.Contains(q, "days ago"):
		m := daysAgoRe.FindStringSubmatch(q)
		if m == nil {
			return start, end, fmt.Errorf("could not parse days from: %q", q)
		}
		days, _ := strconv.Atoi(m[1])
		target := now.AddDate(0, 0, -days)
		start, end = dayBounds(target)
		return start, end, nil

	case strings.Contains(q, ".."):
		parts := strings.SplitN(q, "..", 2)
		if len(parts) != 2 {
			return start, end, fmt.Errorf("invalid date range format: %q (expected YYYY-MM-DD..YYYY-MM-DD)", q)
		}
		start, err = parseISODateInLoc(parts[0], loc)
		if err != nil {
			return start, end, fmt.Errorf("invalid date format: %q", q)
		}
		end, err = parseISODateInLoc(parts[1], loc)
		if err != nil {
			return start, end, fmt.Errorf("invalid date format: %q", q)
		}
		end = time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, 999999000, loc)
		return start, end, nil

	default:
		target, perr := parseISODateInLoc(q, loc)
		if perr != nil {
			return start, end, fmt.Errorf("invalid date format: %q. Use 'YYYY-MM-DD', '今日', '昨日', '3日前', or 'YYYY-MM-DD..YYYY-MM-DD'", q)
		}
		start, end = dayBounds(target)
		return start, end, nil
	}
}

func parseISODateInLoc(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	t, err := time.ParseInLocation("2006-01-02", s, loc)
	if err == nil {
		return t, nil
	}
	return time.ParseInLocation(time.RFC3339, s, loc)
}
