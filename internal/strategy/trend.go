package strategy

// trendAlignment: направление на 1m (close > SMA5 > SMA20) против 5m (close > SMA5).
// Совпадение 80, расхождение 20. Без 5m серии считаем, что совпадает.
func trendAlignment(closes1m, closes5m []float64) float64 {
	if len(closes1m) < 20 {
		return 0
	}

	sma5 := mean(closes1m[:5])
	sma20 := mean(closes1m[:20])
	trend1 := -1
	if closes1m[0] > sma5 && sma5 > sma20 {
		trend1 = 1
	}

	trend5 := trend1
	if len(closes5m) >= 10 {
		c := closes5m[:10]
		trend5 = -1
		if c[0] > mean(c[:5]) {
			trend5 = 1
		}
	}

	if trend1 == trend5 {
		return 80
	}
	return 20
}
