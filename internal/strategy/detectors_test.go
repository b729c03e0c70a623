package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestMomentumBurst(t *testing.T) {
	tests := []struct {
		name    string
		closes  []float64
		volumes []float64
		want    float64
	}{
		{
			name:    "too short",
			closes:  []float64{100, 99, 98},
			volumes: []float64{1, 1, 1},
			want:    0,
		},
		{
			name:    "strong but not accelerating",
			closes:  []float64{101, 100.5, 100.3, 100.0, 99.9, 99.5, 99, 99, 99, 99},
			volumes: repeat(10, 10),
			want:    60,
		},
		{
			name:    "strong with volume spike",
			closes:  []float64{101, 100.5, 100.3, 100.0, 99.9, 99.5, 99, 99, 99, 99},
			volumes: append([]float64{100}, repeat(10, 9)...),
			want:    78,
		},
		{
			name:    "accelerating",
			closes:  []float64{100, 99, 99.5, 99.6, 99.7, 99.8, 99, 99, 99, 99},
			volumes: repeat(10, 10),
			want:    70,
		},
		{
			name:    "zero base price",
			closes:  []float64{100, 0, 99, 99, 99, 99, 99, 99, 99, 99},
			volumes: repeat(10, 10),
			want:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, momentumBurst(tt.closes, tt.volumes), 1e-9)
		})
	}
}

func volumeWindow() []float64 {
	// среднее 10, выборочное stdev ~1.464
	base := []float64{8, 9, 10, 11, 12}
	out := make([]float64, 0, 15)
	for i := 0; i < 3; i++ {
		out = append(out, base...)
	}
	return out
}

func volumesWith(current float64) []float64 {
	v := append([]float64{current}, repeat(10, 4)...)
	return append(v, volumeWindow()...)
}

func TestVolumeExplosion(t *testing.T) {
	flat := repeat(100, 20)
	moved := append([]float64{100.2}, repeat(100, 19)...)

	tests := []struct {
		name    string
		volumes []float64
		closes  []float64
		want    float64
	}{
		{"too short", repeat(10, 19), repeat(100, 19), 0},
		{"three sigma with price move", volumesWith(16), moved, 100},
		{"three sigma without move", volumesWith(16), flat, 80},
		{"two sigma", volumesWith(13), flat, 60},
		{"one sigma", volumesWith(11.6), flat, 40},
		{"quiet volume ignores price move", volumesWith(10), moved, 0},
		{"zero stdev", repeat(10, 20), moved, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, volumeExplosion(tt.volumes, tt.closes), 1e-9)
		})
	}
}

func TestChartPattern(t *testing.T) {
	highs := repeat(101, 10)
	lows := repeat(99, 10)

	t.Run("breakout with V reversal", func(t *testing.T) {
		closes := append([]float64{102, 99.5, 100}, repeat(100, 7)...)
		assert.InDelta(t, 80, chartPattern(closes, highs, lows), 1e-9)
	})

	t.Run("breakdown only", func(t *testing.T) {
		closes := append([]float64{98, 99.5, 100}, repeat(100, 7)...)
		assert.InDelta(t, 50, chartPattern(closes, highs, lows), 1e-9)
	})

	t.Run("flat", func(t *testing.T) {
		assert.InDelta(t, 0, chartPattern(repeat(100, 10), highs, lows), 1e-9)
	})

	t.Run("too short", func(t *testing.T) {
		assert.Zero(t, chartPattern(repeat(100, 4), highs[:4], lows[:4]))
	})
}

func TestTrendAlignment(t *testing.T) {
	rising := make([]float64, 20)
	for i := range rising {
		rising[i] = 120 - float64(i)
	}
	rising5 := make([]float64, 10)
	falling5 := make([]float64, 10)
	for i := range rising5 {
		rising5[i] = 60 - float64(i)
		falling5[i] = 50 + float64(i)
	}

	assert.Equal(t, 80.0, trendAlignment(rising, rising5))
	assert.Equal(t, 20.0, trendAlignment(rising, falling5))
	assert.Equal(t, 80.0, trendAlignment(rising, nil), "no 5m data counts as aligned")
	assert.Equal(t, 80.0, trendAlignment(rising, rising5[:9]), "short 5m series falls back to 1m trend")
	assert.Equal(t, 0.0, trendAlignment(rising[:19], rising5))
}

func TestMicroStructure(t *testing.T) {
	t.Run("strong bias with range expansion", func(t *testing.T) {
		closes := []float64{105, 104, 103, 102, 101, 100}
		highs := []float64{106, 104.5, 103.5, 102.5, 101.5, 100.5}
		lows := []float64{103, 103.5, 102.5, 101.5, 100.5, 99.5}
		assert.InDelta(t, 80, microStructure(closes, highs, lows), 1e-9)
	})

	t.Run("choppy and even ranges", func(t *testing.T) {
		closes := []float64{100, 101, 100, 101, 100, 101}
		highs := repeat(102, 6)
		lows := repeat(101, 6)
		assert.InDelta(t, 0, microStructure(closes, highs, lows), 1e-9)
	})

	t.Run("contraction", func(t *testing.T) {
		closes := []float64{100, 101, 100, 101, 100, 101}
		highs := []float64{100.1, 102, 102, 102, 102, 102}
		lows := []float64{100, 100, 100, 100, 100, 100}
		assert.InDelta(t, 20, microStructure(closes, highs, lows), 1e-9)
	})
}
