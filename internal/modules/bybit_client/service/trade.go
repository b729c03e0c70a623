package service

import (
	"context"
	"strconv"

	"github.com/pkg/errors"

	"signal_bot/internal/helper"
	"signal_bot/internal/models"
)

// codeLeverageNotModified — плечо уже такое, это не ошибка.
const codeLeverageNotModified = 110043

func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	lev := strconv.Itoa(leverage)
	_, err := post[struct{}](ctx, c, "/v5/position/set-leverage", map[string]string{
		"category":     c.cfg.Category,
		"symbol":       symbol,
		"buyLeverage":  lev,
		"sellLeverage": lev,
	})
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == codeLeverageNotModified {
		return nil
	}
	return err
}

type orderResult struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
}

// SubmitOrder — рыночный ордер с прикреплёнными SL/TP на всю позицию.
// TakeProfit == 0 — тейк не ставится.
func (c *Client) SubmitOrder(ctx context.Context, req models.OrderRequest) (string, error) {
	if req.Qty <= 0 {
		return "", errors.Errorf("order %s: qty <= 0", req.Symbol)
	}

	body := map[string]string{
		"category":    c.cfg.Category,
		"symbol":      req.Symbol,
		"side":        req.Side.OrderSide(),
		"orderType":   "Market",
		"qty":         helper.FormatQty(req.Qty, 8),
		"tpslMode":    "Full",
		"slTriggerBy": "LastPrice",
	}
	if req.StopLoss > 0 {
		body["stopLoss"] = helper.FormatPrice(req.StopLoss)
	}
	if req.TakeProfit > 0 {
		body["takeProfit"] = helper.FormatPrice(req.TakeProfit)
		body["tpTriggerBy"] = "LastPrice"
	}
	if req.LinkID != "" {
		body["orderLinkId"] = req.LinkID
	}

	res, err := post[orderResult](ctx, c, "/v5/order/create", body)
	if err != nil {
		return "", errors.Wrapf(err, "order %s", req.Symbol)
	}
	if res.OrderID == "" {
		return "", errors.Errorf("order %s: empty orderId", req.Symbol)
	}
	return res.OrderID, nil
}
