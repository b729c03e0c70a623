package strategy

import (
	"fmt"
	"math"
)

const weightsTolerance = 1e-6

// Weight — декларативная запись "детектор -> вес".
type Weight struct {
	Detector Detector
	Value    float64
}

type Weights [detectorCount]float64

func DefaultWeights() Weights {
	return NewWeights(
		Weight{DetectorMomentum, 0.30},
		Weight{DetectorVolume, 0.20},
		Weight{DetectorPattern, 0.20},
		Weight{DetectorTrend, 0.15},
		Weight{DetectorMicro, 0.15},
	)
}

func NewWeights(entries ...Weight) Weights {
	var w Weights
	for _, e := range entries {
		if e.Detector < detectorCount {
			w[e.Detector] = e.Value
		}
	}
	return w
}

// Validate: веса неотрицательные и в сумме дают 1.0.
func (w Weights) Validate() error {
	sum := 0.0
	for _, d := range Detectors {
		if w[d] < 0 {
			return fmt.Errorf("weight %s is negative: %v", d, w[d])
		}
		sum += w[d]
	}
	if math.Abs(sum-1.0) > weightsTolerance {
		return fmt.Errorf("weights must sum to 1.0, got %.6f", sum)
	}
	return nil
}

// Compose — взвешенная сумма суб-скоров, зажатая в [0,100].
func (w Weights) Compose(b Breakdown) float64 {
	total := 0.0
	for _, d := range Detectors {
		total += clampScore(b[d]) * w[d]
	}
	return clampScore(total)
}
