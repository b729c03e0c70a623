package service

import (
	"strconv"
	"strings"

	"signal_bot/internal/models"
)

// parseNum: пустая строка и мусор дают 0.
func parseNum(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func sideFromExchange(s string) models.Side {
	switch strings.ToLower(s) {
	case "buy":
		return models.SideBuy
	case "sell":
		return models.SideSell
	}
	return models.SideNone
}
