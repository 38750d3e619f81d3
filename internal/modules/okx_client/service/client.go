// Package service: REST-адаптер OKX v5 для одного SWAP-инструмента.
package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"

	"perp_bot/internal/models"
)

const (
	DefaultBaseURL = "https://www.okx.com"
	tsLayout       = "2006-01-02T15:04:05.000Z"
)

// коды OKX, после которых имеет смысл повторить запрос
var retryableCodes = map[string]struct{}{
	"50001": {}, // service temporarily unavailable
	"50004": {}, // endpoint request timeout
	"50011": {}, // rate limit
	"50013": {}, // system busy
}

type Config struct {
	APIKey     string
	APISecret  string
	Passphrase string
	BaseURL    string
	MarginMode string // cross | isolated
	Simulated  bool   // x-simulated-trading: 1 (демо-счёт OKX)
	Timeout    time.Duration
}

type Client struct {
	http      *http.Client
	baseURL   string
	apiKey    string
	apiSecret string
	passph    string
	tdMode    string
	simulated bool

	mu    sync.RWMutex
	insts map[string]models.Instrument
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.MarginMode == "" {
		cfg.MarginMode = "cross"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		http:      &http.Client{Timeout: cfg.Timeout},
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		passph:    cfg.Passphrase,
		tdMode:    cfg.MarginMode,
		simulated: cfg.Simulated,
		insts:     make(map[string]models.Instrument),
	}
}

type envelope[T any] struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []T    `json:"data"`
}

// request описывает один вызов API.
type request struct {
	op      string
	method  string
	path    string
	query   url.Values
	body    any
	private bool
	// reject: чем оборачивать code != "0", если код не из повторяемых
	reject error
}

func (c *Client) sign(ts, method, requestPath, body string) string {
	h := hmac.New(sha256.New, []byte(c.apiSecret))
	h.Write([]byte(ts + strings.ToUpper(method) + requestPath + body))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// call выполняет запрос и раскладывает ответ в []T.
// Сеть, 429 и 5xx оборачиваются в models.ErrNetwork.
func call[T any](ctx context.Context, c *Client, r request) ([]T, error) {
	requestPath := r.path
	if len(r.query) > 0 {
		requestPath += "?" + r.query.Encode()
	}

	var payload []byte
	if r.body != nil {
		var err error
		if payload, err = sonic.Marshal(r.body); err != nil {
			return nil, errors.Wrapf(err, "%s marshal", r.op)
		}
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+requestPath, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrapf(err, "%s new request", r.op)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.private {
		ts := time.Now().UTC().Format(tsLayout)
		req.Header.Set("OK-ACCESS-KEY", c.apiKey)
		req.Header.Set("OK-ACCESS-SIGN", c.sign(ts, r.method, requestPath, string(payload)))
		req.Header.Set("OK-ACCESS-TIMESTAMP", ts)
		req.Header.Set("OK-ACCESS-PASSPHRASE", c.passph)
	}
	if c.simulated {
		req.Header.Set("x-simulated-trading", "1")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Wrapf(models.ErrNetwork, "%s do: %v", r.op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(models.ErrNetwork, "%s read: %v", r.op, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, errors.Wrapf(models.ErrNetwork, "%s http %d: %s", r.op, resp.StatusCode, truncate(data))
	}

	var env envelope[T]
	if err := sonic.Unmarshal(data, &env); err != nil {
		if resp.StatusCode/100 != 2 {
			return nil, errors.Errorf("%s http %d: %s", r.op, resp.StatusCode, truncate(data))
		}
		return nil, errors.Wrapf(err, "%s decode; body=%s", r.op, truncate(data))
	}
	if env.Code != "0" {
		if _, ok := retryableCodes[env.Code]; ok {
			return nil, errors.Wrapf(models.ErrNetwork, "%s: code=%s msg=%s", r.op, env.Code, env.Msg)
		}
		base := r.reject
		if base == nil {
			base = errors.New("okx error")
		}
		return nil, errors.Wrapf(base, "%s: code=%s msg=%s body=%s", r.op, env.Code, env.Msg, truncate(data))
	}
	return env.Data, nil
}

func truncate(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
