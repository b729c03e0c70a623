package models

import "time"

type Timeframe string

const (
	TF1m Timeframe = "1"
	TF5m Timeframe = "5"
)

type Candle struct {
	Start  time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// CandleSeries — свечи от новой к старой. После загрузки не меняется.
type CandleSeries []Candle

func (s CandleSeries) Closes() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.Close
	}
	return out
}

func (s CandleSeries) Volumes() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.Volume
	}
	return out
}

func (s CandleSeries) Highs() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.High
	}
	return out
}

func (s CandleSeries) Lows() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.Low
	}
	return out
}

// Head возвращает не более n самых свежих свечей.
func (s CandleSeries) Head(n int) CandleSeries {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
