package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"signal_bot/internal/modules/config"
)

// APIError — биржа ответила, но retCode != 0.
type APIError struct {
	Path string
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bybit %s: retCode=%d retMsg=%s", e.Path, e.Code, e.Msg)
}

// HTTPError — не-2xx ответ.
type HTTPError struct {
	Path   string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("bybit %s: http %d: %s", e.Path, e.Status, e.Body)
}

// Client — REST-клиент Bybit v5 (linear perpetuals).
// Все запросы идут через общий rate limiter и circuit breaker.
type Client struct {
	cfg config.Exchange
	log *zap.Logger

	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	now     func() time.Time
}

// abandonedError: запрос прерван отменой ctx вызывающего.
// Наружу не выходит, call отдаёт исходную ошибку.
type abandonedError struct {
	err error
}

func (e *abandonedError) Error() string { return e.err.Error() }
func (e *abandonedError) Unwrap() error { return e.err }

func NewClient(cfg *config.Config, log *zap.Logger) *Client {
	ex := cfg.Exchange
	log = log.Named("bybit")

	st := gobreaker.Settings{
		Name:    "bybit",
		Timeout: ex.Breaker.Cooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return ex.Breaker.MaxFailures > 0 && c.ConsecutiveFailures >= ex.Breaker.MaxFailures
		},
		// ответ с retCode != 0 или 4xx — биржа жива.
		// Запрос, брошенный самим вызывающим (отмена ctx), бирже не в упрёк.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var ab *abandonedError
			if errors.As(err, &ab) {
				return true
			}
			var he *HTTPError
			return errors.As(err, &he) && he.Status < http.StatusInternalServerError
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("[BYBIT] breaker state changed",
				zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}

	return &Client{
		cfg:     ex,
		log:     log,
		http:    &http.Client{Timeout: ex.RequestTimeout},
		limiter: rate.NewLimiter(rate.Limit(ex.RateLimitRPS), max(ex.RateBurst, 1)),
		breaker: gobreaker.NewCircuitBreaker(st),
		now:     time.Now,
	}
}

// sign: HMAC-SHA256(timestamp + apiKey + recvWindow + payload), hex.
func (c *Client) sign(ts, recvWindow, payload string) string {
	mac := hmac.New(sha256.New, []byte(c.cfg.APISecret))
	mac.Write([]byte(ts + c.cfg.APIKey + recvWindow + payload))
	return hex.EncodeToString(mac.Sum(nil))
}

type envelope[T any] struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  T      `json:"result"`
}

// get — подписанный GET. Query сортируется по ключу (url.Values.Encode).
func get[T any](ctx context.Context, c *Client, path string, query url.Values) (T, error) {
	qs := query.Encode()
	target := c.cfg.BaseURL + path
	if qs != "" {
		target += "?" + qs
	}
	return call[T](ctx, c, http.MethodGet, path, target, qs, nil)
}

// post — подписанный POST с JSON-телом.
func post[T any](ctx context.Context, c *Client, path string, body any) (T, error) {
	var zero T
	payload, err := sonic.Marshal(body)
	if err != nil {
		return zero, errors.Wrapf(err, "bybit %s: marshal", path)
	}
	return call[T](ctx, c, http.MethodPost, path, c.cfg.BaseURL+path, string(payload), payload)
}

func call[T any](ctx context.Context, c *Client, method, path, target, signPayload string, body []byte) (T, error) {
	var zero T

	if err := c.limiter.Wait(ctx); err != nil {
		return zero, errors.Wrapf(err, "bybit %s: rate limit", path)
	}

	if err := ctx.Err(); err != nil {
		return zero, errors.Wrapf(err, "bybit %s", path)
	}

	raw, err := c.breaker.Execute(func() (interface{}, error) {
		data, err := c.roundTrip(ctx, method, path, target, signPayload, body)
		if err != nil && ctx.Err() != nil {
			return nil, &abandonedError{err: err}
		}
		return data, err
	})
	var ab *abandonedError
	if errors.As(err, &ab) {
		return zero, ab.err
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return zero, errors.Wrapf(err, "bybit %s", path)
	}
	if err != nil {
		return zero, err
	}

	var env envelope[T]
	if err := sonic.Unmarshal(raw.([]byte), &env); err != nil {
		return zero, errors.Wrapf(err, "bybit %s: decode", path)
	}
	if env.RetCode != 0 {
		return zero, &APIError{Path: path, Code: env.RetCode, Msg: env.RetMsg}
	}
	return env.Result, nil
}

func (c *Client) roundTrip(ctx context.Context, method, path, target, signPayload string, body []byte) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return nil, errors.Wrapf(err, "bybit %s: new request", path)
	}

	ts := strconv.FormatInt(c.now().UnixMilli(), 10)
	recv := strconv.Itoa(c.cfg.RecvWindow)
	req.Header.Set("X-BAPI-API-KEY", c.cfg.APIKey)
	req.Header.Set("X-BAPI-TIMESTAMP", ts)
	req.Header.Set("X-BAPI-RECV-WINDOW", recv)
	req.Header.Set("X-BAPI-SIGN", c.sign(ts, recv, signPayload))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "bybit %s: do", path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "bybit %s: read body", path)
	}
	if resp.StatusCode/100 != 2 {
		return nil, &HTTPError{Path: path, Status: resp.StatusCode, Body: truncate(string(data), 200)}
	}
	return data, nil
}
