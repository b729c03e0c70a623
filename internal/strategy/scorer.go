package strategy

import (
	"fmt"
	"math"
	"time"

	"signal_bot/internal/models"
)

const (
	// анализируем только самые свежие свечи
	analysisWindow = 30
	minCandles     = 10

	scoreEpsilon = 1e-9

	perfectSetupFactor = "PERFECT SETUP!"
	noTakeProfitFactor = "Take-profit skipped"
)

type Config struct {
	Weights  Weights
	MinScore float64
	StopLoss float64 // доля от цены, 0.10 => 10%
}

// Scorer — чистая функция над сериями свечей, без состояния.
// Безопасен для конкурентного вызова.
type Scorer struct {
	cfg Config
	now func() time.Time
}

func NewScorer(cfg Config) (*Scorer, error) {
	if err := cfg.Weights.Validate(); err != nil {
		return nil, err
	}
	if cfg.MinScore < 0 || cfg.MinScore > 100 {
		return nil, fmt.Errorf("min score out of range: %v", cfg.MinScore)
	}
	if cfg.StopLoss <= 0 || cfg.StopLoss >= 1 {
		return nil, fmt.Errorf("stop loss fraction out of range: %v", cfg.StopLoss)
	}
	return &Scorer{cfg: cfg, now: time.Now}, nil
}

func (s *Scorer) MinScore() float64 { return s.cfg.MinScore }

// Analyze считает композитный скор. m5 может быть пустой.
// Скор ниже min_score: результат вместе с ErrBelowThreshold.
func (s *Scorer) Analyze(m1, m5 models.CandleSeries) (ScoreResult, error) {
	if len(m1) < minCandles {
		return ScoreResult{}, ErrInsufficientData
	}

	head := m1.Head(analysisWindow)
	closes := head.Closes()
	volumes := head.Volumes()
	highs := head.Highs()
	lows := head.Lows()

	price := closes[0]
	if price <= 0 || math.IsNaN(price) {
		return ScoreResult{}, ErrNonPositivePrice
	}

	var b Breakdown
	b[DetectorMomentum] = momentumBurst(closes, volumes)
	b[DetectorVolume] = volumeExplosion(volumes, closes)
	b[DetectorPattern] = chartPattern(closes, highs, lows)
	b[DetectorTrend] = trendAlignment(closes, m5.Closes())
	b[DetectorMicro] = microStructure(closes, highs, lows)

	score := s.cfg.Weights.Compose(b)

	factors := make([]string, 0, len(Detectors)+1)
	for _, d := range Detectors {
		if b[d] > 50 {
			factors = append(factors, fmt.Sprintf("%s %.0f", d.factorLabel(), b[d]))
		}
	}

	direction := (closes[0] - closes[2]) * (score / 100)
	action := models.SideSell
	if direction > 0 {
		action = models.SideBuy
	}

	r := ScoreResult{
		Score:      score,
		Direction:  direction,
		Action:     action,
		Price:      price,
		Components: b,
		Factors:    factors,
	}
	if !s.Qualifies(score) {
		return r, ErrBelowThreshold
	}
	return r, nil
}

// Qualifies — проходит ли скор порог min_score.
func (s *Scorer) Qualifies(score float64) bool {
	return score+scoreEpsilon >= s.cfg.MinScore
}

// Signal строит сигнал со стопом и тейком из результата анализа.
func (s *Scorer) Signal(symbol string, r ScoreResult) models.Signal {
	factors := append([]string(nil), r.Factors...)

	mult, perfect := TakeProfitMultiplier(r.Score, r.Components[DetectorMomentum], r.Components[DetectorVolume])
	if perfect {
		factors = append(factors, perfectSetupFactor)
	}

	var sl, tp float64
	if r.Action == models.SideBuy {
		sl = r.Price * (1 - s.cfg.StopLoss)
		tp = r.Price * (1 + mult)
	} else {
		sl = r.Price * (1 + s.cfg.StopLoss)
		tp = r.Price * (1 - mult)
		if tp <= 0 {
			// шорт с тейком >=100% невозможен
			tp = 0
			factors = append(factors, noTakeProfitFactor)
		}
	}

	return models.Signal{
		Symbol:        symbol,
		Action:        r.Action,
		Price:         r.Price,
		StopLoss:      sl,
		TakeProfit:    tp,
		TakeProfitPct: mult * 100,
		Score:         r.Score,
		Factors:       factors,
		CreatedAt:     s.now(),
	}
}

// TakeProfitMultiplier — ступенчатая функция от скора.
// Если momentum и volume оба >80, множитель умножается на 1.5 с потолком 2.0.
func TakeProfitMultiplier(score, momentum, volume float64) (float64, bool) {
	var mult float64
	switch {
	case score >= 90:
		mult = 2.0
	case score >= 80:
		mult = 1.5
	case score >= 70:
		mult = 1.0
	default:
		mult = 0.2
	}

	if momentum > 80 && volume > 80 {
		return math.Min(2.0, mult*1.5), true
	}
	return mult, false
}
