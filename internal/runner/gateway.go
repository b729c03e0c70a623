package runner

import (
	"context"

	"signal_bot/internal/models"
)

// Gateway — то, что раннеру нужно от биржи.
// Любая ошибка трактуется как "нет данных в этом цикле", а не как фатальная.
type Gateway interface {
	FetchTickers(ctx context.Context, minVolume float64) ([]models.Instrument, error)
	FetchCandles(ctx context.Context, symbol string, tf models.Timeframe, limit int) (models.CandleSeries, error)
	FetchPositions(ctx context.Context) (map[string]models.Position, error)
	FetchBalance(ctx context.Context) (float64, error)
	FetchLotConstraints(ctx context.Context, symbol string) (models.LotConstraints, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	SubmitOrder(ctx context.Context, req models.OrderRequest) (string, error)
}

// Notifier — алерты оператору.
type Notifier interface {
	Send(msg string)
	Sendf(format string, args ...any)
}

// Journal — запись сигналов и исполнений.
type Journal interface {
	RecordSignal(ctx context.Context, sig models.Signal) error
	RecordExecution(ctx context.Context, exec Execution) error
}

// Execution — итог попытки исполнить сигнал.
type Execution struct {
	Signal  models.Signal
	Qty     float64
	Margin  float64
	OrderID string
	LinkID  string
	Err     error
}
