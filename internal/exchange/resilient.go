package exchange

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"perp_bot/internal/metrics"
	"perp_bot/internal/models"
	"perp_bot/pkg/logger"
)

// RetryConfig: экспоненциальный backoff для ErrNetwork.
type RetryConfig struct {
	Initial     time.Duration `yaml:"initial"`
	MaxInterval time.Duration `yaml:"max_interval"`
	MaxElapsed  time.Duration `yaml:"max_elapsed"` // общий потолок на один вызов
}

// BreakerConfig: предохранитель перед биржей.
type BreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures"` // подряд сетевых ошибок до размыкания
	OpenTimeout time.Duration `yaml:"open_timeout"`
}

// Resilient оборачивает биржу: сетевые ошибки повторяются с backoff,
// остальные (отказ ордера, нет данных) возвращаются сразу.
// Всё идёт через circuit breaker: когда он разомкнут, вызов сразу даёт ErrNetwork.
type Resilient struct {
	next  Exchange
	retry RetryConfig
	cb    *gobreaker.CircuitBreaker
	m     *metrics.Metrics
}

func NewResilient(next Exchange, rc RetryConfig, bc BreakerConfig, m *metrics.Metrics) *Resilient {
	if rc.Initial <= 0 {
		rc.Initial = 200 * time.Millisecond
	}
	if rc.MaxInterval <= 0 {
		rc.MaxInterval = 2 * time.Second
	}
	if rc.MaxElapsed <= 0 {
		rc.MaxElapsed = 10 * time.Second
	}
	if bc.MaxFailures == 0 {
		bc.MaxFailures = 5
	}
	if bc.OpenTimeout <= 0 {
		bc.OpenTimeout = 30 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "exchange",
		MaxRequests: 1,
		Timeout:     bc.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bc.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, models.ErrNetwork)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("[BREAKER] %s: %s -> %s", name, from, to)
			m.BreakerState.Set(float64(to))
		},
	})
	return &Resilient{next: next, retry: rc, cb: cb, m: m}
}

func call[T any](ctx context.Context, r *Resilient, op string, fn func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.retry.Initial
	b.MaxInterval = r.retry.MaxInterval
	b.MaxElapsedTime = r.retry.MaxElapsed

	attempt := func() (T, error) {
		var zero T
		res, err := r.cb.Execute(func() (interface{}, error) {
			return fn()
		})
		if err == nil {
			return res.(T), nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, backoff.Permanent(errors.Wrapf(models.ErrNetwork, "%s: circuit %s", op, err))
		}
		if !errors.Is(err, models.ErrNetwork) {
			return zero, backoff.Permanent(err)
		}
		return zero, err
	}
	notify := func(err error, wait time.Duration) {
		r.m.NetworkRetries.Inc()
		logger.Warn("[RETRY] %s in %s: %v", op, wait, err)
	}

	res, err := backoff.RetryNotifyWithData(attempt, backoff.WithContext(b, ctx), notify)
	if err != nil {
		return res, errors.WithMessage(err, op)
	}
	return res, nil
}

func (r *Resilient) OrderBook(ctx context.Context, symbol string, depth int) (models.OrderBook, error) {
	return call(ctx, r, "order book", func() (models.OrderBook, error) {
		return r.next.OrderBook(ctx, symbol, depth)
	})
}

func (r *Resilient) Candles(ctx context.Context, symbol, timeframe string, count int) ([]models.Candle, error) {
	return call(ctx, r, "candles", func() ([]models.Candle, error) {
		return r.next.Candles(ctx, symbol, timeframe, count)
	})
}

func (r *Resilient) RecentTrades(ctx context.Context, symbol string, count int) ([]models.Trade, error) {
	return call(ctx, r, "recent trades", func() ([]models.Trade, error) {
		return r.next.RecentTrades(ctx, symbol, count)
	})
}

// PlaceOrder: clOrdId задаётся до первой попытки, повтор после таймаута
// не создаёт второй ордер.
func (r *Resilient) PlaceOrder(ctx context.Context, req models.OrderRequest) (string, error) {
	if req.ClientID == "" {
		req.ClientID = clientID()
	}
	return call(ctx, r, "place order", func() (string, error) {
		return r.next.PlaceOrder(ctx, req)
	})
}

func (r *Resilient) CancelAll(ctx context.Context, symbol string) error {
	_, err := call(ctx, r, "cancel all", func() (struct{}, error) {
		return struct{}{}, r.next.CancelAll(ctx, symbol)
	})
	return err
}

func (r *Resilient) OpenPosition(ctx context.Context, symbol string) (*models.Position, error) {
	return call(ctx, r, "open position", func() (*models.Position, error) {
		return r.next.OpenPosition(ctx, symbol)
	})
}

func (r *Resilient) Balance(ctx context.Context, asset string) (decimal.Decimal, error) {
	return call(ctx, r, "balance", func() (decimal.Decimal, error) {
		return r.next.Balance(ctx, asset)
	})
}

func (r *Resilient) PlaceProtection(ctx context.Context, symbol string, side models.Side, size, sl, tp decimal.Decimal) error {
	_, err := call(ctx, r, "place protection", func() (struct{}, error) {
		return struct{}{}, r.next.PlaceProtection(ctx, symbol, side, size, sl, tp)
	})
	return err
}

func (r *Resilient) Instrument(ctx context.Context, symbol string) (models.Instrument, error) {
	return call(ctx, r, "instrument", func() (models.Instrument, error) {
		return r.next.Instrument(ctx, symbol)
	})
}

// clOrdId у OKX: до 32 буквенно-цифровых символов.
func clientID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
