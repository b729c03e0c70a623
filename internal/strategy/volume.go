package strategy

import "math"

// volumeExplosion — z-score текущего объёма против окна volumes[5:20].
func volumeExplosion(volumes, closes []float64) float64 {
	if len(volumes) < 20 || len(closes) < 2 {
		return 0
	}

	window := volumes[5:20]
	avg := mean(window)
	std := sampleStdev(window)

	z := 0.0
	if std > 0 {
		z = (volumes[0] - avg) / std
	}

	score := 0.0
	switch {
	case z > 3:
		score = 80
	case z > 2:
		score = 60
	case z > 1:
		score = 40
	}

	// подтверждение ценой
	if move, ok := pctChange(closes[0], closes[1]); ok && math.Abs(move) > 0.1 && score > 0 {
		score = math.Min(100, score+20)
	}

	return clampScore(score)
}
