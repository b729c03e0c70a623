package strategy

import "math"

// momentumBurst сравнивает доходности за 1, 3 и 5 свечей.
// Ускорение (|m1|>|m3|>|m5|) даёт 40, сила каждого горизонта добавляет бонус,
// всплеск объёма >2x среднего умножает итог на 1.3.
func momentumBurst(closes, volumes []float64) float64 {
	if len(closes) < 10 || len(volumes) == 0 {
		return 0
	}

	m1, ok1 := pctChange(closes[0], closes[1])
	m3, ok3 := pctChange(closes[0], closes[3])
	m5, ok5 := pctChange(closes[0], closes[5])
	if !ok1 || !ok3 || !ok5 {
		return 0
	}

	score := 0.0
	if math.Abs(m1) > math.Abs(m3) && math.Abs(m3) > math.Abs(m5) {
		score = 40
	}
	if math.Abs(m5) > 0.5 {
		score += 30
	}
	if math.Abs(m3) > 0.3 {
		score += 20
	}
	if math.Abs(m1) > 0.1 {
		score += 10
	}

	var volAvg float64
	if len(volumes) > 15 {
		volAvg = mean(volumes[5:15])
	} else {
		volAvg = mean(volumes)
	}
	if volumes[0] > volAvg*2 {
		score = math.Min(100, score*1.3)
	}

	return clampScore(score)
}
