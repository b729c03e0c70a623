package service

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"signal_bot/internal/models"
	"signal_bot/internal/runner"
	"signal_bot/pkg/db"
)

const schema = `
CREATE TABLE IF NOT EXISTS signals (
    id           BIGSERIAL PRIMARY KEY,
    symbol       TEXT             NOT NULL,
    action       TEXT             NOT NULL,
    price        DOUBLE PRECISION NOT NULL,
    stop_loss    DOUBLE PRECISION NOT NULL,
    take_profit  DOUBLE PRECISION NOT NULL,
    tp_percent   DOUBLE PRECISION NOT NULL,
    score        DOUBLE PRECISION NOT NULL,
    factors      JSONB            NOT NULL DEFAULT '[]',
    created_at   TIMESTAMPTZ      NOT NULL
);
CREATE TABLE IF NOT EXISTS executions (
    id           BIGSERIAL PRIMARY KEY,
    link_id      TEXT             NOT NULL UNIQUE,
    order_id     TEXT             NOT NULL DEFAULT '',
    symbol       TEXT             NOT NULL,
    side         TEXT             NOT NULL,
    qty          DOUBLE PRECISION NOT NULL,
    margin       DOUBLE PRECISION NOT NULL,
    score        DOUBLE PRECISION NOT NULL,
    status       TEXT             NOT NULL,
    error        TEXT             NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ      NOT NULL
);`

const (
	insertSignal = `INSERT INTO signals
    (symbol, action, price, stop_loss, take_profit, tp_percent, score, factors, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	insertExecution = `INSERT INTO executions
    (link_id, order_id, symbol, side, qty, margin, score, status, error, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (link_id) DO NOTHING`

	statusOK     = "ok"
	statusFailed = "failed"
)

// Pg — журнал сигналов и исполнений в postgres.
type Pg struct {
	conn db.Transaction
	now  func() time.Time
}

func NewPg(conn db.Transaction) *Pg {
	return &Pg{conn: conn, now: time.Now}
}

// Migrate создаёт таблицы, если их нет.
func Migrate(ctx context.Context, m *db.PgTxManager) error {
	return m.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, schema)
		return err
	})
}

func (p *Pg) RecordSignal(ctx context.Context, sig models.Signal) error {
	factors, err := sonic.MarshalString(nonNil(sig.Factors))
	if err != nil {
		return errors.Wrap(err, "journal: marshal factors")
	}
	created := sig.CreatedAt
	if created.IsZero() {
		created = p.now()
	}
	_, err = p.conn.Exec(ctx, insertSignal,
		sig.Symbol, string(sig.Action), sig.Price, sig.StopLoss, sig.TakeProfit,
		sig.TakeProfitPct, sig.Score, factors, created)
	return errors.Wrapf(err, "journal: insert signal %s", sig.Symbol)
}

func (p *Pg) RecordExecution(ctx context.Context, e runner.Execution) error {
	status, msg := statusOK, ""
	if e.Err != nil {
		status, msg = statusFailed, e.Err.Error()
	}
	_, err := p.conn.Exec(ctx, insertExecution,
		e.LinkID, e.OrderID, e.Signal.Symbol, e.Signal.Action.OrderSide(), e.Qty, e.Margin,
		e.Signal.Score, status, msg, p.now())
	return errors.Wrapf(err, "journal: insert execution %s", e.Signal.Symbol)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Noop — журнал без хранилища.
type Noop struct{}

func (Noop) RecordSignal(context.Context, models.Signal) error       { return nil }
func (Noop) RecordExecution(context.Context, runner.Execution) error { return nil }
