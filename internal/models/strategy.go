package models

import "time"

type Side string

const (
	SideNone Side = ""
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderSide — сторона в терминах биржи.
func (s Side) OrderSide() string {
	if s == SideBuy {
		return "Buy"
	}
	return "Sell"
}

// Signal создаётся сканером и потребляется исполнителем ровно один раз.
type Signal struct {
	Symbol        string    `json:"symbol"`
	Action        Side      `json:"action"`
	Price         float64   `json:"price"`
	StopLoss      float64   `json:"stop_loss"`
	TakeProfit    float64   `json:"take_profit"` // 0 — без тейка
	TakeProfitPct float64   `json:"tp_percent"`
	Score         float64   `json:"score"`
	Factors       []string  `json:"factors"`
	CreatedAt     time.Time `json:"created_at"`
}

type OrderRequest struct {
	Symbol     string
	Side       Side
	Qty        float64
	StopLoss   float64
	TakeProfit float64
	LinkID     string
}

type BestSignal struct {
	Symbol string    `json:"symbol"`
	Score  float64   `json:"score"`
	Time   time.Time `json:"time"`
}
