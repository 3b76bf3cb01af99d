package normalize

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, time.February, 20, 15, 4, 5, 123456789, time.UTC)

func TestParseReleaseTime_Absolute(t *testing.T) {
	t.Parallel()

	tests := []struct {
		label string
		want  time.Time
	}{
		{label: "February 16, 2025", want: time.Date(2025, time.February, 16, 0, 0, 0, 0, time.UTC)},
		{label: "January 2, 2006", want: time.Date(2006, time.January, 2, 0, 0, 0, 0, time.UTC)},
		{label: "  December   31, 2024 ", want: time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC)},
		{label: "Mar 5, 2025", want: time.Date(2025, time.March, 5, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got := ParseReleaseTime(tt.label, fixedNow)
		assert.True(t, tt.want.Equal(got), "label %q: want %v got %v", tt.label, tt.want, got)
		assert.Equal(t, time.UTC, got.Location())
	}
}

func TestParseReleaseTime_Relative(t *testing.T) {
	t.Parallel()

	units := map[string]time.Duration{
		"minute": time.Minute,
		"hour":   time.Hour,
		"day":    24 * time.Hour,
		"week":   7 * 24 * time.Hour,
	}
	for unit, d := range units {
		for _, n := range []int{0, 1, 37} {
			for _, suffix := range []string{"", "s"} {
				label := fmt.Sprintf("%d %s%s ago", n, unit, suffix)
				got := ParseReleaseTime(label, fixedNow)
				want := fixedNow.Add(-time.Duration(n) * d)
				require.True(t, want.Equal(got), "label %q: want %v got %v", label, want, got)
			}
		}
	}
}

func TestParseReleaseTime_FallsBackToNow(t *testing.T) {
	t.Parallel()

	local := fixedNow.In(time.FixedZone("X", 3600))
	for _, label := range []string{"", "yesterday", "3 fortnights ago", "16/02/2025", "February 30, 2025", "ago"} {
		got := ParseReleaseTime(label, local)
		assert.True(t, fixedNow.Equal(got), "label %q", label)
		assert.Equal(t, time.UTC, got.Location(), "label %q", label)
	}
}

func TestParseReleaseTime_LargeCountsStayInThePast(t *testing.T) {
	t.Parallel()

	got := ParseReleaseTime("20000 weeks ago", fixedNow)
	assert.True(t, fixedNow.AddDate(0, 0, -140000).Equal(got), "got %v", got)

	for _, label := range []string{
		"9999999999999 hours ago",
		"9223372036854775807 minutes ago",
		"9223372036854775807 weeks ago",
	} {
		got := ParseReleaseTime(label, fixedNow)
		assert.True(t, got.Before(fixedNow.AddDate(-1000, 0, 0)), "label %q resolved to %v", label, got)
	}
}
