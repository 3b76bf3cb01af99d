package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChapterKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		label string
		want  []float64
	}{
		{label: "Chapter 37.2", want: []float64{37.2}},
		{label: "Volume 2 Chapter 15", want: []float64{2, 15}},
		{label: "Prologue", want: []float64{0}},
		{label: "", want: []float64{0}},
		{label: "37", want: []float64{37}},
		{label: "Ch 10.5 part 2", want: []float64{10.5, 2}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ChapterKey(tt.label), tt.label)
	}
}

func TestCompareKeys(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, CompareKeys([]float64{41}, []float64{40}))
	assert.Equal(t, -1, CompareKeys([]float64{37}, []float64{37.2}))
	assert.Equal(t, 0, CompareKeys([]float64{2}, []float64{2, 0}))
	assert.Equal(t, -1, CompareKeys([]float64{2}, []float64{2, 1}))
	assert.Equal(t, 1, CompareKeys([]float64{3}, []float64{2, 99}))
	assert.Equal(t, 0, CompareKeys(nil, []float64{0}))
}
