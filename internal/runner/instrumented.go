package runner

import (
	"context"
	"time"

	"signal_bot/internal/metrics"
	"signal_bot/internal/models"
	"signal_bot/internal/state"
)

// countingGateway считает вызовы биржи в metrics.api_calls и ошибки в prometheus.
type countingGateway struct {
	gw    Gateway
	store *state.Store
}

func Instrument(gw Gateway, store *state.Store) Gateway {
	return &countingGateway{gw: gw, store: store}
}

func (c *countingGateway) track(op string, err error) {
	c.store.Incr(state.MetricAPICalls, 1)
	if err != nil {
		metrics.GatewayErrors.WithLabelValues(op).Inc()
	}
}

func (c *countingGateway) FetchTickers(ctx context.Context, minVolume float64) ([]models.Instrument, error) {
	out, err := c.gw.FetchTickers(ctx, minVolume)
	c.track("tickers", err)
	return out, err
}

func (c *countingGateway) FetchCandles(ctx context.Context, symbol string, tf models.Timeframe, limit int) (models.CandleSeries, error) {
	out, err := c.gw.FetchCandles(ctx, symbol, tf, limit)
	c.track("candles", err)
	return out, err
}

func (c *countingGateway) FetchPositions(ctx context.Context) (map[string]models.Position, error) {
	out, err := c.gw.FetchPositions(ctx)
	c.track("positions", err)
	return out, err
}

func (c *countingGateway) FetchBalance(ctx context.Context) (float64, error) {
	out, err := c.gw.FetchBalance(ctx)
	c.track("balance", err)
	return out, err
}

func (c *countingGateway) FetchLotConstraints(ctx context.Context, symbol string) (models.LotConstraints, error) {
	out, err := c.gw.FetchLotConstraints(ctx, symbol)
	c.track("instruments", err)
	return out, err
}

func (c *countingGateway) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	err := c.gw.SetLeverage(ctx, symbol, leverage)
	c.track("leverage", err)
	return err
}

func (c *countingGateway) SubmitOrder(ctx context.Context, req models.OrderRequest) (string, error) {
	out, err := c.gw.SubmitOrder(ctx, req)
	c.track("order", err)
	return out, err
}

// sleepCtx спит d или до отмены ctx. false — ctx отменён.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
