package helper

import (
	"github.com/shopspring/decimal"
)

// RoundToStep округляет qty до ближайшего кратного step (банковское округление).
func RoundToStep(qty, step float64) float64 {
	if step <= 0 {
		return qty
	}
	s := decimal.NewFromFloat(step)
	n := decimal.NewFromFloat(qty).Div(s).RoundBank(0)
	return n.Mul(s).InexactFloat64()
}

// RoundPlaces — банковское округление до places знаков.
func RoundPlaces(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).RoundBank(places).InexactFloat64()
}

// StepPlaces — сколько знаков после запятой у шага (0.05 -> 2, 1 -> 0).
func StepPlaces(step float64) int32 {
	if step <= 0 {
		return 0
	}
	exp := decimal.NewFromFloat(step).Exponent()
	if exp >= 0 {
		return 0
	}
	return -exp
}

// FormatQty печатает количество без хвоста float-артефактов.
func FormatQty(qty float64, places int32) string {
	return decimal.NewFromFloat(qty).Round(places).String()
}

// FormatPrice — цена с фиксированными 4 знаками.
func FormatPrice(px float64) string {
	return decimal.NewFromFloat(px).StringFixed(4)
}

// Chunk режет слайс на батчи размера size.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	out := make([][]T, 0, (len(items)+size-1)/max(size, 1))
	for i := 0; i < len(items); i += size {
		end := min(i+size, len(items))
		out = append(out, items[i:end])
	}
	return out
}
