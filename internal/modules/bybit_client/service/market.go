package service

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"signal_bot/internal/models"
)

type tickerItem struct {
	Symbol       string `json:"symbol"`
	LastPrice    string `json:"lastPrice"`
	Turnover24h  string `json:"turnover24h"`
	Price24hPcnt string `json:"price24hPcnt"`
}

type listResult[T any] struct {
	Category string `json:"category"`
	List     []T    `json:"list"`
}

// FetchTickers: perpetual-тикеры с оборотом (turnover24h) не ниже minVolume.
func (c *Client) FetchTickers(ctx context.Context, minVolume float64) ([]models.Instrument, error) {
	res, err := get[listResult[tickerItem]](ctx, c, "/v5/market/tickers", url.Values{
		"category": {c.cfg.Category},
	})
	if err != nil {
		return nil, err
	}

	out := make([]models.Instrument, 0, len(res.List))
	for _, t := range res.List {
		if c.cfg.SymbolSuffix != "" && !strings.HasSuffix(t.Symbol, c.cfg.SymbolSuffix) {
			continue
		}
		vol := parseNum(t.Turnover24h)
		if vol < minVolume {
			continue
		}
		out = append(out, models.Instrument{
			Symbol:       t.Symbol,
			LastPrice:    parseNum(t.LastPrice),
			Volume24h:    vol,
			Change24hPct: parseNum(t.Price24hPcnt) * 100,
		})
	}
	return out, nil
}

// FetchCandles: строки [start, open, high, low, close, volume, turnover], новые первыми.
func (c *Client) FetchCandles(ctx context.Context, symbol string, tf models.Timeframe, limit int) (models.CandleSeries, error) {
	res, err := get[listResult[[]string]](ctx, c, "/v5/market/kline", url.Values{
		"category": {c.cfg.Category},
		"symbol":   {symbol},
		"interval": {string(tf)},
		"limit":    {strconv.Itoa(limit)},
	})
	if err != nil {
		return nil, err
	}

	out := make(models.CandleSeries, 0, len(res.List))
	for _, row := range res.List {
		if len(row) < 6 {
			return nil, errors.Errorf("kline %s: short row %v", symbol, row)
		}
		ms, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "kline %s: start", symbol)
		}
		out = append(out, models.Candle{
			Start:  time.UnixMilli(ms).UTC(),
			Open:   parseNum(row[1]),
			High:   parseNum(row[2]),
			Low:    parseNum(row[3]),
			Close:  parseNum(row[4]),
			Volume: parseNum(row[5]),
		})
	}
	return out, nil
}

type instrumentItem struct {
	Symbol        string `json:"symbol"`
	LotSizeFilter struct {
		MinOrderQty string `json:"minOrderQty"`
		QtyStep     string `json:"qtyStep"`
	} `json:"lotSizeFilter"`
}

const defaultLot = 0.1

// FetchLotConstraints: минимальный размер и шаг количества. Пустые поля — 0.1.
func (c *Client) FetchLotConstraints(ctx context.Context, symbol string) (models.LotConstraints, error) {
	res, err := get[listResult[instrumentItem]](ctx, c, "/v5/market/instruments-info", url.Values{
		"category": {c.cfg.Category},
		"symbol":   {symbol},
	})
	if err != nil {
		return models.LotConstraints{}, err
	}
	if len(res.List) == 0 {
		return models.LotConstraints{}, errors.Errorf("instrument %s not found", symbol)
	}

	lf := res.List[0].LotSizeFilter
	lc := models.LotConstraints{MinQty: parseNum(lf.MinOrderQty), QtyStep: parseNum(lf.QtyStep)}
	if lc.MinQty <= 0 {
		lc.MinQty = defaultLot
	}
	if lc.QtyStep <= 0 {
		lc.QtyStep = defaultLot
	}
	return lc, nil
}
