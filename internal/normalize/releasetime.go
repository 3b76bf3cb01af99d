package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var absoluteLayouts = []string{
	"January 2, 2006",
	"Jan 2, 2006",
}

var relativePattern = regexp.MustCompile(`^(\d+)\s+([a-z]+)\s+ago$`)

// ParseReleaseTime resolves a release label against now. Absolute long-form
// dates resolve to midnight UTC; "<N> <unit> ago" resolves to now minus N units.
// Anything else resolves to now.
func ParseReleaseTime(label string, now time.Time) time.Time {
	now = now.UTC()
	text := strings.Join(strings.Fields(label), " ")
	if text == "" {
		return now
	}
	for _, layout := range absoluteLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		}
	}
	m := relativePattern.FindStringSubmatch(strings.ToLower(text))
	if m == nil {
		return now
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return now
	}
	unit, ok := relativeUnit(m[2])
	if !ok {
		return now
	}
	return subtractUnits(now, n, unit)
}

// maxAgoDays bounds very large relative labels so they stay far in the past
// instead of wrapping around.
const maxAgoDays = 10_000_000

const day = 24 * time.Hour

// subtractUnits returns now minus n units. Sub-day units use exact durations
// while they fit; whole days go through the calendar so large counts cannot
// overflow time.Duration.
func subtractUnits(now time.Time, n int, unit time.Duration) time.Time {
	if unit < day {
		if int64(n) <= math.MaxInt64/int64(unit) {
			return now.Add(-time.Duration(n) * unit)
		}
		return now.AddDate(0, 0, -maxAgoDays)
	}
	perUnit := int(unit / day)
	days := maxAgoDays
	if n <= maxAgoDays/perUnit {
		days = n * perUnit
	}
	return now.AddDate(0, 0, -days)
}

func relativeUnit(word string) (time.Duration, bool) {
	word = strings.TrimSuffix(word, "s")
	switch word {
	case "min", "minute":
		return time.Minute, true
	case "hour":
		return time.Hour, true
	case "day":
		return day, true
	case "week":
		return 7 * day, true
	default:
		return 0, false
	}
}
