package models

// Instrument — снимок тикера на один цикл сканирования.
type Instrument struct {
	Symbol       string  `json:"symbol"`
	LastPrice    float64 `json:"last_price"`
	Volume24h    float64 `json:"volume_24h"` // оборот за 24ч в валюте котировки
	Change24hPct float64 `json:"change_24h_pct"`
}

// LotConstraints — ограничения инструмента на размер ордера.
type LotConstraints struct {
	MinQty  float64
	QtyStep float64
}
