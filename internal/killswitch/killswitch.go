// Package killswitch: принудительное закрытие позиции лимитками с
// ограниченным числом попыток и эскалацией человеку.
package killswitch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"perp_bot/internal/exchange"
	"perp_bot/internal/metrics"
	"perp_bot/internal/models"
	"perp_bot/pkg/logger"
)

const (
	DefaultMaxRetries = 5
	DefaultDelay      = 30 * time.Second
	bookDepth         = 5
)

type State string

const (
	StateIdle    State = "idle"
	StateClosing State = "closing"
	StateClosed  State = "closed"
	StateFailed  State = "failed"
)

// переходы конечного автомата
var transitions = map[State][]State{
	StateIdle:    {StateClosing},
	StateClosing: {StateClosed, StateFailed},
	StateClosed:  {StateClosing},
	StateFailed:  {StateClosing},
}

// Notifier: куда эскалировать, когда попытки кончились.
type Notifier interface {
	Send(msg string)
}

// Gateway: то, что нужно от биржи для закрытия.
type Gateway interface {
	OrderBook(ctx context.Context, symbol string, depth int) (models.OrderBook, error)
	PlaceOrder(ctx context.Context, req models.OrderRequest) (string, error)
	CancelAll(ctx context.Context, symbol string) error
	OpenPosition(ctx context.Context, symbol string) (*models.Position, error)
}

var _ Gateway = (exchange.Exchange)(nil)

type Config struct {
	MaxRetries int           `yaml:"max_retries"`
	Delay      time.Duration `yaml:"delay"`
}

// Result: итог прогона.
type Result struct {
	Attempts int
	Closed   bool
	State    State
}

type KillSwitch struct {
	gw  Gateway
	n   Notifier
	m   *metrics.Metrics
	cfg Config

	mu    sync.Mutex
	state State
}

func New(gw Gateway, n Notifier, m *metrics.Metrics, cfg Config) *KillSwitch {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Delay < 0 {
		cfg.Delay = DefaultDelay
	}
	return &KillSwitch{gw: gw, n: n, m: m, cfg: cfg, state: StateIdle}
}

func (k *KillSwitch) State() State {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.state
}

func (k *KillSwitch) transition(to State) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, s := range transitions[k.state] {
		if s == to {
			k.state = to
			return nil
		}
	}
	return errors.Wrapf(models.ErrInvalidState, "kill switch %s -> %s", k.state, to)
}

// Run закрывает позицию: отмена всех ордеров, лимитка в противоположную
// сторону по лучшей цене, пауза, проверка позиции. Не больше MaxRetries раундов.
func (k *KillSwitch) Run(ctx context.Context, pos models.Position) (Result, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "kill_switch")
	defer span.Finish()
	span.SetTag("symbol", pos.Symbol)
	span.SetTag("side", pos.Side.String())

	if !pos.IsOpen() {
		return Result{State: k.State()}, errors.Wrap(models.ErrInvalidState, "kill switch: no position")
	}
	if err := k.transition(StateClosing); err != nil {
		return Result{State: k.State()}, err
	}

	res := Result{State: StateClosing}
	remaining := pos.Size
	for attempt := 1; attempt <= k.cfg.MaxRetries; attempt++ {
		res.Attempts = attempt
		k.round(ctx, pos, remaining, attempt)

		if err := wait(ctx, k.cfg.Delay); err != nil {
			k.finish(&res, StateFailed, "cancelled")
			return res, errors.Wrap(err, "kill switch interrupted")
		}

		live, err := k.gw.OpenPosition(ctx, pos.Symbol)
		if err != nil {
			logger.Warn("[KILL] %s attempt %d: position check failed: %v", pos.Symbol, attempt, err)
			continue
		}
		if live == nil || !live.Size.IsPositive() {
			res.Closed = true
			k.finish(&res, StateClosed, "closed")
			logger.Info("[KILL] %s closed after %d attempt(s)", pos.Symbol, attempt)
			return res, nil
		}
		remaining = live.Size
	}

	// висящую лимитку не оставляем
	if err := k.gw.CancelAll(ctx, pos.Symbol); err != nil {
		logger.Error("[KILL] %s final cancel: %v", pos.Symbol, err)
	}
	k.finish(&res, StateFailed, "exhausted")
	span.SetTag("error", true)

	msg := fmt.Sprintf("🚨 [%s] Kill switch: позиция %s %s не закрыта за %d попыток. Нужно ручное вмешательство.",
		pos.Symbol, pos.Side, remaining, k.cfg.MaxRetries)
	logger.Error("%s", msg)
	if k.n != nil {
		k.n.Send(msg)
	}
	return res, errors.Wrapf(models.ErrKillSwitchExhausted, "%s after %d attempts", pos.Symbol, res.Attempts)
}

// round: одна итерация, cancel all + лимитка на закрытие. Ошибки не фатальны.
func (k *KillSwitch) round(ctx context.Context, pos models.Position, size decimal.Decimal, attempt int) {
	if err := k.gw.CancelAll(ctx, pos.Symbol); err != nil {
		logger.Warn("[KILL] %s attempt %d: cancel all: %v", pos.Symbol, attempt, err)
	}

	book, err := k.gw.OrderBook(ctx, pos.Symbol, bookDepth)
	if err != nil {
		logger.Warn("[KILL] %s attempt %d: order book: %v", pos.Symbol, attempt, err)
		return
	}
	// лонг закрываем продажей по ask, шорт: покупкой по bid
	px, ok := book.BestAsk()
	if pos.Side == models.SideShort {
		px, ok = book.BestBid()
	}
	if !ok {
		logger.Warn("[KILL] %s attempt %d: empty book", pos.Symbol, attempt)
		return
	}

	req := models.OrderRequest{
		Symbol:     pos.Symbol,
		Side:       pos.Side.Opposite(),
		Kind:       models.OrderLimit,
		Size:       size,
		Price:      decimal.NewFromFloat(px),
		ReduceOnly: true,
	}
	id, err := k.gw.PlaceOrder(ctx, req)
	if err != nil {
		k.m.OrdersTotal.WithLabelValues(string(models.OrderLimit), "error").Inc()
		logger.Warn("[KILL] %s attempt %d: place close %s %s @ %s: %v",
			pos.Symbol, attempt, req.Side.OrderSide(), size, req.Price, err)
		return
	}
	k.m.OrdersTotal.WithLabelValues(string(models.OrderLimit), "ok").Inc()
	logger.Info("[KILL] %s attempt %d/%d: %s %s @ %s (order %s)",
		pos.Symbol, attempt, k.cfg.MaxRetries, req.Side.OrderSide(), size, req.Price, id)
}

func (k *KillSwitch) finish(res *Result, to State, label string) {
	if err := k.transition(to); err != nil {
		logger.Error("[KILL] %v", err)
	}
	res.State = k.State()
	k.m.KillSwitchRuns.WithLabelValues(label).Inc()
	k.m.KillSwitchRounds.Observe(float64(res.Attempts))
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
