package strategy

// microStructure: перекос направления последних 5 свечей
// и текущий диапазон против среднего.
func microStructure(closes, highs, lows []float64) float64 {
	if len(closes) < 5 || len(highs) == 0 || len(highs) != len(lows) {
		return 0
	}

	score := 0.0

	up := 0
	for i := 0; i < min(5, len(closes)-1); i++ {
		if closes[i] > closes[i+1] {
			up++
		}
	}
	if up >= 4 || up <= 1 {
		score += 50
	}

	n := min(5, len(highs))
	ranges := make([]float64, n)
	for i := 0; i < n; i++ {
		ranges[i] = highs[i] - lows[i]
	}
	avg := mean(ranges)
	switch {
	case ranges[0] > avg*1.5:
		score += 30
	case ranges[0] < avg*0.5:
		score += 20
	}

	return clampScore(score)
}
