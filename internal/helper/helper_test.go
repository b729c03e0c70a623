package helper

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundToStep(t *testing.T) {
	tests := []struct {
		qty, step, want float64
	}{
		{0.137, 0.05, 0.15},
		{0.12, 0.05, 0.10},
		{1234.56, 1, 1235},
		{0.0004, 0.001, 0},
		{7.25, 0.5, 7.0}, // 14.5 -> 14
		{5, 0, 5},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, RoundToStep(tt.qty, tt.step), 1e-12, "qty=%v step=%v", tt.qty, tt.step)
	}
}

func TestStepPlacesAndFormat(t *testing.T) {
	assert.Equal(t, int32(2), StepPlaces(0.05))
	assert.Equal(t, int32(3), StepPlaces(0.001))
	assert.Equal(t, int32(0), StepPlaces(1))
	assert.Equal(t, int32(0), StepPlaces(10))

	assert.Equal(t, "0.15", FormatQty(RoundToStep(0.137, 0.05), 2))
	assert.Equal(t, "12.3457", FormatPrice(12.345678))
	assert.Equal(t, "90.0000", FormatPrice(90))
}

func TestRoundPlaces(t *testing.T) {
	assert.InDelta(t, 0.123, RoundPlaces(0.12345, 3), 1e-12)
	assert.InDelta(t, 12.3, RoundPlaces(12.34, 1), 1e-12)
}

func TestChunk(t *testing.T) {
	in := []int{1, 2, 3, 4, 5}
	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, Chunk(in, 2))
	assert.Equal(t, [][]int{{1, 2, 3, 4, 5}}, Chunk(in, 10))
	assert.Empty(t, Chunk([]int{}, 3))
}
