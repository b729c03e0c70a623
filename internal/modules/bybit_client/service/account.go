package service

import (
	"context"
	"net/url"

	"github.com/pkg/errors"

	"signal_bot/internal/models"
)

// ErrNoBalance — ни одно из полей баланса не положительное.
var ErrNoBalance = errors.New("no positive balance in wallet response")

type positionItem struct {
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Size          string `json:"size"`
	AvgPrice      string `json:"avgPrice"`
	MarkPrice     string `json:"markPrice"`
	UnrealisedPnl string `json:"unrealisedPnl"`
	TakeProfit    string `json:"takeProfit"`
	StopLoss      string `json:"stopLoss"`
}

// FetchPositions: только позиции с size > 0.
func (c *Client) FetchPositions(ctx context.Context) (map[string]models.Position, error) {
	res, err := get[listResult[positionItem]](ctx, c, "/v5/position/list", url.Values{
		"category":   {c.cfg.Category},
		"settleCoin": {c.cfg.SettleCoin},
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string]models.Position, len(res.List))
	for _, p := range res.List {
		size := parseNum(p.Size)
		if size <= 0 {
			continue
		}
		out[p.Symbol] = models.Position{
			Symbol:        p.Symbol,
			Side:          sideFromExchange(p.Side),
			Size:          size,
			EntryPrice:    parseNum(p.AvgPrice),
			MarkPrice:     parseNum(p.MarkPrice),
			UnrealizedPnL: parseNum(p.UnrealisedPnl),
			TakeProfit:    parseNum(p.TakeProfit),
			StopLoss:      parseNum(p.StopLoss),
		}
	}
	return out, nil
}

type walletCoin struct {
	Coin                string `json:"coin"`
	WalletBalance       string `json:"walletBalance"`
	Equity              string `json:"equity"`
	AvailableToWithdraw string `json:"availableToWithdraw"`
}

type walletItem struct {
	TotalWalletBalance string       `json:"totalWalletBalance"`
	TotalEquity        string       `json:"totalEquity"`
	Coin               []walletCoin `json:"coin"`
}

// FetchBalance: totalWalletBalance -> totalEquity -> поля монеты расчёта.
// Первое положительное значение выигрывает.
func (c *Client) FetchBalance(ctx context.Context) (float64, error) {
	res, err := get[listResult[walletItem]](ctx, c, "/v5/account/wallet-balance", url.Values{
		"accountType": {"UNIFIED"},
	})
	if err != nil {
		return 0, err
	}
	if len(res.List) == 0 {
		return 0, ErrNoBalance
	}
	if b, ok := pickBalance(res.List[0], c.cfg.SettleCoin); ok {
		return b, nil
	}
	return 0, ErrNoBalance
}

func pickBalance(w walletItem, settle string) (float64, bool) {
	candidates := []string{w.TotalWalletBalance, w.TotalEquity}
	for _, coin := range w.Coin {
		if coin.Coin == settle {
			candidates = append(candidates, coin.WalletBalance, coin.Equity, coin.AvailableToWithdraw)
		}
	}
	for _, s := range candidates {
		if v := parseNum(s); v > 0 {
			return v, true
		}
	}
	return 0, false
}
