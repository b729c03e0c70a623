package service

import (
	"context"
	"sort"

	"signal_bot/internal/models"
	"signal_bot/internal/modules/config"
	"signal_bot/internal/runner"
)

// Watchlist — стартовый взгляд на рынок: сколько perpetual-инструментов проходит фильтр оборота.
type Watchlist struct {
	gw  runner.Gateway
	cfg *config.Config
}

func NewWatchlist(gw runner.Gateway, cfg *config.Config) *Watchlist {
	return &Watchlist{gw: gw, cfg: cfg}
}

// Top — до n самых ликвидных инструментов и общее число прошедших фильтр.
func (w *Watchlist) Top(ctx context.Context, n int) ([]models.Instrument, int, error) {
	all, err := w.gw.FetchTickers(ctx, w.cfg.Scanner.MinVolume24h)
	if err != nil {
		return nil, 0, err
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Volume24h > all[j].Volume24h })
	return all[:min(n, len(all))], len(all), nil
}
