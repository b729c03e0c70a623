package strategy

import (
	"errors"

	"signal_bot/internal/models"
)

var (
	ErrInsufficientData = errors.New("insufficient candle data")
	ErrNonPositivePrice = errors.New("non-positive price")
	// ErrBelowThreshold: анализ прошёл, но скор ниже min_score. Результат заполнен для метрик.
	ErrBelowThreshold = errors.New("score below threshold")
)

// Detector — один из фиксированных суб-скоров.
type Detector uint8

const (
	DetectorMomentum Detector = iota
	DetectorVolume
	DetectorPattern
	DetectorTrend
	DetectorMicro

	detectorCount
)

// Detectors в порядке вычисления (он же порядок факторов).
var Detectors = [detectorCount]Detector{
	DetectorMomentum, DetectorVolume, DetectorPattern, DetectorTrend, DetectorMicro,
}

func (d Detector) String() string {
	switch d {
	case DetectorMomentum:
		return "momentum"
	case DetectorVolume:
		return "volume"
	case DetectorPattern:
		return "pattern"
	case DetectorTrend:
		return "trend"
	case DetectorMicro:
		return "micro"
	}
	return "unknown"
}

func (d Detector) factorLabel() string {
	switch d {
	case DetectorMomentum:
		return "Momentum burst"
	case DetectorVolume:
		return "Volume explosion"
	case DetectorPattern:
		return "Pattern detected"
	case DetectorTrend:
		return "Trend aligned"
	case DetectorMicro:
		return "Micro pattern"
	}
	return d.String()
}

// Breakdown — суб-скоры по детекторам, каждый в [0,100].
type Breakdown [detectorCount]float64

func (b Breakdown) Get(d Detector) float64 { return b[d] }

// ScoreResult — чистый результат анализа одной пары серий (1m + 5m).
type ScoreResult struct {
	Score      float64
	Direction  float64
	Action     models.Side
	Price      float64
	Components Breakdown
	Factors    []string
}

// Engine — то, что дергает сканер.
// Analyze отдаёт результат без ошибки только при скоре >= min_score.
type Engine interface {
	Analyze(m1, m5 models.CandleSeries) (ScoreResult, error)
	Signal(symbol string, r ScoreResult) models.Signal
}
