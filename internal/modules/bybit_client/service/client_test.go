package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"signal_bot/internal/models"
	"signal_bot/internal/modules/config"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Exchange.BaseURL = srv.URL
	cfg.Exchange.APIKey = "key"
	cfg.Exchange.APISecret = "secret"
	cfg.Exchange.RateLimitRPS = 1000
	cfg.Exchange.Breaker.MaxFailures = 3
	cfg.Exchange.Breaker.Cooldown = time.Minute

	c := NewClient(cfg, zap.NewNop())
	c.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return c
}

func reply(w http.ResponseWriter, result any) {
	b, _ := sonic.Marshal(map[string]any{"retCode": 0, "retMsg": "OK", "result": result})
	_, _ = w.Write(b)
}

func expectedSign(payload string) string {
	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte("1700000000000" + "key" + "5000" + payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestClient_SignsGetWithSortedQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v5/market/kline", r.URL.Path)
		assert.Equal(t, "category=linear&interval=1&limit=50&symbol=BTCPERP", r.URL.RawQuery)
		assert.Equal(t, "key", r.Header.Get("X-BAPI-API-KEY"))
		assert.Equal(t, "1700000000000", r.Header.Get("X-BAPI-TIMESTAMP"))
		assert.Equal(t, "5000", r.Header.Get("X-BAPI-RECV-WINDOW"))
		assert.Equal(t, expectedSign(r.URL.RawQuery), r.Header.Get("X-BAPI-SIGN"))
		reply(w, map[string]any{"list": [][]string{
			{"1700000060000", "101", "103", "100", "102", "15", "1500"},
			{"1700000000000", "100", "101", "99", "101", "10", "1000"},
		}})
	})

	cs, err := c.FetchCandles(context.Background(), "BTCPERP", models.TF1m, 50)
	require.NoError(t, err)
	require.Len(t, cs, 2)
	assert.Equal(t, 102.0, cs[0].Close)
	assert.Equal(t, 15.0, cs[0].Volume)
	assert.Equal(t, time.UnixMilli(1700000060000).UTC(), cs[0].Start)
	assert.Equal(t, 101.0, cs[1].Close)
}

func TestClient_FetchTickersFilters(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		reply(w, map[string]any{"category": "linear", "list": []map[string]string{
			{"symbol": "BTCPERP", "lastPrice": "60000", "turnover24h": "9000000", "price24hPcnt": "0.025"},
			{"symbol": "DOGEPERP", "lastPrice": "0.1", "turnover24h": "1000"},
			{"symbol": "BTCUSDT", "lastPrice": "60000", "turnover24h": "900000000"},
		}})
	})

	got, err := c.FetchTickers(context.Background(), 500000)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "BTCPERP", got[0].Symbol)
	assert.Equal(t, 9000000.0, got[0].Volume24h)
	assert.InDelta(t, 2.5, got[0].Change24hPct, 1e-9)
}

func TestClient_FetchPositions(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "USDC", r.URL.Query().Get("settleCoin"))
		reply(w, map[string]any{"list": []map[string]string{
			{"symbol": "BTCPERP", "side": "Buy", "size": "0.5", "avgPrice": "60000", "unrealisedPnl": "12.5"},
			{"symbol": "ETHPERP", "side": "", "size": "0", "unrealisedPnl": "0"},
		}})
	})

	got, err := c.FetchPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	p := got["BTCPERP"]
	assert.Equal(t, models.SideBuy, p.Side)
	assert.Equal(t, 0.5, p.Size)
	assert.Equal(t, 12.5, p.UnrealizedPnL)
}

func TestClient_FetchBalanceFallbacks(t *testing.T) {
	tests := []struct {
		name   string
		wallet map[string]any
		want   float64
		err    error
	}{
		{
			name:   "total wallet balance",
			wallet: map[string]any{"totalWalletBalance": "1378.23", "totalEquity": "1400"},
			want:   1378.23,
		},
		{
			name:   "equity when wallet empty",
			wallet: map[string]any{"totalWalletBalance": "", "totalEquity": "900"},
			want:   900,
		},
		{
			name: "settle coin fields",
			wallet: map[string]any{"totalWalletBalance": "0", "coin": []map[string]string{
				{"coin": "USDT", "walletBalance": "50"},
				{"coin": "USDC", "walletBalance": "", "equity": "0", "availableToWithdraw": "42"},
			}},
			want: 42,
		},
		{
			name:   "nothing positive",
			wallet: map[string]any{"totalWalletBalance": "0"},
			err:    ErrNoBalance,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "UNIFIED", r.URL.Query().Get("accountType"))
				reply(w, map[string]any{"list": []any{tt.wallet}})
			})

			got, err := c.FetchBalance(context.Background())
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClient_FetchLotConstraintsDefaults(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		reply(w, map[string]any{"list": []map[string]any{
			{"symbol": "BTCPERP", "lotSizeFilter": map[string]string{"minOrderQty": "0.001"}},
		}})
	})

	lc, err := c.FetchLotConstraints(context.Background(), "BTCPERP")
	require.NoError(t, err)
	assert.Equal(t, 0.001, lc.MinQty)
	assert.Equal(t, 0.1, lc.QtyStep)
}

func TestClient_SubmitOrderBody(t *testing.T) {
	var body map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v5/order/create", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		assert.Equal(t, expectedSign(string(raw)), r.Header.Get("X-BAPI-SIGN"))
		assert.NoError(t, sonic.Unmarshal(raw, &body))
		reply(w, map[string]string{"orderId": "abc", "orderLinkId": body["orderLinkId"]})
	})

	id, err := c.SubmitOrder(context.Background(), models.OrderRequest{
		Symbol: "BTCPERP", Side: models.SideSell, Qty: 0.15,
		StopLoss: 66000, TakeProfit: 0, LinkID: "link-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "abc", id)

	assert.Equal(t, "linear", body["category"])
	assert.Equal(t, "Sell", body["side"])
	assert.Equal(t, "Market", body["orderType"])
	assert.Equal(t, "0.15", body["qty"])
	assert.Equal(t, "66000.0000", body["stopLoss"])
	assert.Equal(t, "Full", body["tpslMode"])
	assert.Equal(t, "link-1", body["orderLinkId"])
	_, hasTP := body["takeProfit"]
	assert.False(t, hasTP)
}

func TestClient_APIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"retCode":10001,"retMsg":"params error","result":{}}`))
	})

	_, err := c.SubmitOrder(context.Background(), models.OrderRequest{Symbol: "BTCPERP", Side: models.SideBuy, Qty: 1})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 10001, apiErr.Code)
}

func TestClient_LeverageNotModifiedIsOK(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"retCode":110043,"retMsg":"leverage not modified","result":{}}`))
	})

	assert.NoError(t, c.SetLeverage(context.Background(), "BTCPERP", 20))
}

func TestClient_BreakerOpensOnServerErrors(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	for i := 0; i < 3; i++ {
		_, err := c.FetchBalance(context.Background())
		var he *HTTPError
		require.ErrorAs(t, err, &he)
	}

	_, err := c.FetchBalance(context.Background())
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(3), hits.Load(), "open breaker does not hit the exchange")
}

func TestClient_ClientErrorsDoNotTripBreaker(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusForbidden)
	})

	for i := 0; i < 5; i++ {
		_, _ = c.FetchBalance(context.Background())
	}
	assert.Equal(t, int32(5), hits.Load())
}

func TestClient_AbandonedRequestsDoNotTripBreaker(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v5/market/kline" {
			select {
			case <-time.After(200 * time.Millisecond):
			case <-r.Context().Done():
				return
			}
		}
		reply(w, map[string]string{"orderId": "abc"})
	})

	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		_, err := c.FetchCandles(ctx, "BTCPERP", models.TF1m, 50)
		cancel()
		require.ErrorIs(t, err, context.DeadlineExceeded)
	}
	assert.Equal(t, gobreaker.StateClosed, c.breaker.State())

	id, err := c.SubmitOrder(context.Background(), models.OrderRequest{
		Symbol: "ETHPERP", Side: models.SideBuy, Qty: 1, StopLoss: 9, LinkID: "link-2",
	})
	require.NoError(t, err)
	assert.Equal(t, "abc", id)
}

func TestClient_ClientTimeoutTripsBreaker(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-time.After(200 * time.Millisecond):
		case <-r.Context().Done():
		}
	})
	c.http.Timeout = 10 * time.Millisecond

	for i := 0; i < 3; i++ {
		_, err := c.FetchBalance(context.Background())
		require.Error(t, err)
	}

	_, err := c.FetchBalance(context.Background())
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(3), hits.Load())
}

func TestClient_CancelledContextSkipsExchange(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		reply(w, map[string]any{})
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.FetchBalance(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, hits.Load())
}
