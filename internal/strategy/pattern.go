package strategy

// chartPattern: пробой локального максимума/минимума (+50)
// и V-образный разворот на трёх свечах (+30).
func chartPattern(closes, highs, lows []float64) float64 {
	if len(closes) < 5 || len(highs) < 2 || len(lows) < 2 {
		return 0
	}

	var recentHigh, recentLow float64
	if len(highs) > 10 {
		recentHigh = maxOf(highs[1:10])
	} else {
		recentHigh = maxOf(highs[1:])
	}
	if len(lows) > 10 {
		recentLow = minOf(lows[1:10])
	} else {
		recentLow = minOf(lows[1:])
	}

	score := 0.0
	if closes[0] > recentHigh || closes[0] < recentLow {
		score += 50
	}

	c0, c1, c2 := closes[0], closes[1], closes[2]
	if (c2 > c1 && c1 < c0) || (c2 < c1 && c1 > c0) {
		score += 30
	}

	return clampScore(score)
}
