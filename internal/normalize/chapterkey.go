package normalize

import (
	"regexp"
	"strconv"
)

var numericRun = regexp.MustCompile(`\d+(?:\.\d+)?`)

// ChapterKey extracts every numeric run from label, left to right.
// A label with no digits yields [0].
func ChapterKey(label string) []float64 {
	matches := numericRun.FindAllString(label, -1)
	if len(matches) == 0 {
		return []float64{0}
	}
	key := make([]float64, 0, len(matches))
	for _, m := range matches {
		v, err := strconv.ParseFloat(m, 64)
		if err != nil {
			continue
		}
		key = append(key, v)
	}
	if len(key) == 0 {
		return []float64{0}
	}
	return key
}

// CompareKeys orders two chapter keys lexicographically, padding the shorter
// one with zeros. It returns -1, 0 or 1.
func CompareKeys(a, b []float64) int {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		var x, y float64
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	}
	return 0
}
