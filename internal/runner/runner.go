// Package runner: контур управления одним инструментом. Тик обновляет
// данные и по индикаторам решает, входить или выходить.
package runner

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"

	"perp_bot/internal/exchange"
	"perp_bot/internal/history"
	"perp_bot/internal/indicator"
	"perp_bot/internal/killswitch"
	"perp_bot/internal/metrics"
	"perp_bot/internal/models"
	"perp_bot/internal/notify"
	"perp_bot/internal/position"
	"perp_bot/internal/strategy"
	"perp_bot/pkg/logger"
)

// Journal: журнал торговых событий.
type Journal interface {
	Append(ctx context.Context, ev models.TradeEvent) error
}

// HealthState: что раннер сообщает health-эндпоинтам.
type HealthState interface {
	SetReady(v bool)
	TouchTick(t time.Time)
	SetHalted(v bool)
	SetPosition(side string)
}

type Config struct {
	Symbol       string
	Timeframe    string
	Candles      int
	QuoteAsset   string
	Leverage     decimal.Decimal
	RiskPerTrade decimal.Decimal
	PollInterval time.Duration
	// снимки стакана старше этого в дельты не идут
	BookMaxAge time.Duration

	Indicators indicator.Params
	// Strategy.StopLossPct/TakeProfitPct также задают уровни SL/TP на бирже
	Strategy      strategy.Config
	ZoneWindow    int
	ZoneTolerance float64
	KillSwitch    killswitch.Config

	ConfirmRequired bool
	ConfirmTimeout  time.Duration
}

type Deps struct {
	Exchange exchange.Exchange
	Store    *history.Store
	Notifier notify.Notifier
	Journal  Journal
	Metrics  *metrics.Metrics
	Health   HealthState
}

type Runner struct {
	cfg     Config
	ex      exchange.Exchange
	store   *history.Store
	tracker *position.Tracker
	eval    strategy.Evaluators
	ks      *killswitch.KillSwitch
	journal Journal
	n       notify.Notifier
	m       *metrics.Metrics
	health  HealthState
	log     *zap.Logger

	tickMu    sync.Mutex // тики не наслаиваются
	halted    atomic.Bool
	reconcile atomic.Bool

	mu       sync.RWMutex
	lastInd  models.Indicators
	lastDec  models.Decision
	lastTick time.Time
}

func New(cfg Config, d Deps) *Runner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	if cfg.Candles <= 0 {
		cfg.Candles = history.DefaultCandleWindow
	}
	if cfg.BookMaxAge <= 0 {
		cfg.BookMaxAge = history.DefaultBookMaxAge
	}
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "USDT"
	}
	if cfg.Indicators == (indicator.Params{}) {
		cfg.Indicators = indicator.DefaultParams()
	}
	if cfg.ZoneWindow <= 0 {
		cfg.ZoneWindow = strategy.DefaultZoneWindow
	}
	if cfg.ZoneTolerance <= 0 {
		cfg.ZoneTolerance = strategy.DefaultZoneTolerance
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 30 * time.Second
	}
	if d.Store == nil {
		d.Store = history.NewStore(cfg.Candles, history.DefaultBookHistory)
	}
	if d.Notifier == nil {
		d.Notifier = notify.NewStdout()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	if d.Health == nil {
		d.Health = nopHealth{}
	}

	return &Runner{
		cfg:     cfg,
		ex:      d.Exchange,
		store:   d.Store,
		tracker: position.NewTracker(cfg.Symbol),
		eval:    strategy.NewEvaluators(cfg.Strategy),
		ks:      killswitch.New(d.Exchange, d.Notifier, d.Metrics, cfg.KillSwitch),
		journal: d.Journal,
		n:       d.Notifier,
		m:       d.Metrics,
		health:  d.Health,
		log:     logger.With(zap.String("component", "runner"), zap.String("symbol", cfg.Symbol)),
	}
}

// Run тикает каждые PollInterval до отмены ctx. Начатый тик доводится до
// конца: он получает контекст без отмены.
func (r *Runner) Run(ctx context.Context) {
	t := time.NewTicker(r.cfg.PollInterval)
	defer t.Stop()

	r.log.Info("control loop started", zap.Duration("poll_interval", r.cfg.PollInterval))
	for {
		r.safeTick(context.WithoutCancel(ctx))

		select {
		case <-ctx.Done():
			r.log.Info("control loop stopped")
			return
		case <-t.C:
		}
	}
}

func (r *Runner) safeTick(ctx context.Context) {
	var pc panics.Catcher
	pc.Try(func() {
		_, _ = r.Tick(ctx)
	})
	if rec := pc.Recovered(); rec != nil {
		r.m.TickErrors.WithLabelValues("panic").Inc()
		r.log.Error("tick panic", zap.Error(rec.AsError()))
	}
}

// Tick: одна итерация контура. Ошибка уже залогирована и учтена в метриках,
// наружу она отдаётся для тестов и вызывающего кода.
func (r *Runner) Tick(ctx context.Context) (models.Decision, error) {
	r.tickMu.Lock()
	defer r.tickMu.Unlock()

	start := time.Now()
	span, ctx := opentracing.StartSpanFromContext(ctx, "tick")
	defer span.Finish()
	span.SetTag("symbol", r.cfg.Symbol)

	dec, in, err := r.tick(ctx)
	span.SetTag("action", string(dec.Action))
	if err != nil {
		span.SetTag("error", true)
	}
	r.observe(dec, in, err, start)
	return dec, err
}

func (r *Runner) tick(ctx context.Context) (models.Decision, strategy.Input, error) {
	if r.reconcile.Swap(false) {
		if err := r.Reconcile(ctx); err != nil {
			r.reconcile.Store(true)
			return models.Decision{Action: models.ActionSkip, Reason: "reconcile failed"}, strategy.Input{}, err
		}
	}
	if r.halted.Load() {
		return models.Decision{Action: models.ActionHalted, Reason: "halted after kill switch failure, waiting for /resume"}, strategy.Input{}, nil
	}

	in, candles, err := r.refresh(ctx)
	if err != nil {
		return models.Decision{Action: models.ActionSkip, Reason: "market data"}, in, err
	}

	if pos := r.tracker.Current(); pos != nil {
		dec, err := r.evaluateExit(ctx, *pos, in)
		return dec, in, err
	}
	dec, err := r.evaluateEntry(ctx, in, candles)
	return dec, in, err
}

// refresh тянет свечи и собирает вход оценщиков из истории.
func (r *Runner) refresh(ctx context.Context) (strategy.Input, []models.Candle, error) {
	candles, err := r.ex.Candles(ctx, r.cfg.Symbol, r.cfg.Timeframe, r.cfg.Candles)
	if err != nil {
		return strategy.Input{}, nil, errors.Wrap(err, "fetch candles")
	}
	if len(candles) == 0 {
		return strategy.Input{}, nil, errors.Wrap(models.ErrDataUnavailable, "no candles")
	}
	r.store.SetCandles(candles)

	in := strategy.Input{
		Ind: indicator.Compute(r.store.Closes(), candles, r.cfg.Indicators),
	}
	if d, at, ok := r.store.FreshDeltas(time.Now(), r.cfg.BookMaxAge); ok {
		in.Deltas = &d
		in.SampleTime = at
	}
	in.AskVolAvg, in.BidVolAvg, in.HasVolAvg = history.AverageVolumes(r.store.Books.Snapshot())
	in.Zone, _ = strategy.DetectZone(candles, r.cfg.ZoneWindow, r.cfg.ZoneTolerance)

	r.mu.Lock()
	r.lastInd = in.Ind
	r.mu.Unlock()
	return in, candles, nil
}

// observe сводит итог тика в метрики и одну структурную строку лога.
func (r *Runner) observe(dec models.Decision, in strategy.Input, err error, start time.Time) {
	now := time.Now()
	r.m.TickDuration.Observe(now.Sub(start).Seconds())
	r.m.TicksTotal.WithLabelValues(string(dec.Action)).Inc()

	r.mu.Lock()
	r.lastDec = dec
	r.lastTick = now
	r.mu.Unlock()

	r.health.TouchTick(now)
	r.health.SetHalted(r.halted.Load())
	side := models.SideNone
	if pos := r.tracker.Current(); pos != nil {
		side = pos.Side
	}
	r.health.SetPosition(side.String())
	r.m.PositionSide.Set(float64(side.Sign()))
	if err == nil {
		r.health.SetReady(true)
	}

	fields := []zap.Field{
		zap.String("decision", string(dec.Action)),
		zap.String("side", dec.Side.String()),
		zap.String("reason", dec.Reason),
		zap.Float64("price", in.Ind.Price),
		optField("sma", in.Ind.SMA),
		optField("rsi", in.Ind.RSI),
		optField("bb_lower", in.Ind.BBLower),
		optField("bb_upper", in.Ind.BBUpper),
		optField("atr", in.Ind.ATR),
	}
	if in.Deltas != nil {
		fields = append(fields, zap.Float64("ask_delta", in.Deltas.Ask), zap.Float64("bid_delta", in.Deltas.Bid))
	}
	if err == nil {
		r.log.Info("tick", fields...)
		return
	}

	kind := errorKind(err)
	r.m.TickErrors.WithLabelValues(kind).Inc()
	fields = append(fields, zap.String("error_kind", kind), zap.Error(err))
	switch kind {
	case "data", "canceled":
		r.log.Info("tick skipped", fields...)
	case "network", "rejected":
		r.log.Warn("tick skipped", fields...)
	default:
		r.log.Error("tick failed", fields...)
	}
}

func optField(name string, v *float64) zap.Field {
	if v == nil {
		return zap.Skip()
	}
	return zap.Float64(name, *v)
}

// errorKind: класс ошибки для метрик и уровня лога.
func errorKind(err error) string {
	switch {
	case errors.Is(err, models.ErrKillSwitchExhausted):
		return "kill_switch"
	case errors.Is(err, models.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, models.ErrOrderRejected):
		return "rejected"
	case errors.Is(err, models.ErrNetwork):
		return "network"
	case errors.Is(err, models.ErrDataUnavailable):
		return "data"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "other"
	}
}

// Halted: контур стоит после неудачного kill switch.
func (r *Runner) Halted() bool { return r.halted.Load() }

// Resume снимает останов; на следующем тике позиция сверяется с биржей.
func (r *Runner) Resume() bool {
	if !r.halted.Swap(false) {
		return false
	}
	r.reconcile.Store(true)
	r.health.SetHalted(false)
	r.log.Info("resumed by operator")
	return true
}

// Position: копия открытой позиции или nil.
func (r *Runner) Position() *models.Position { return r.tracker.Current() }

// Status: сводка для /status.
func (r *Runner) Status() string {
	r.mu.RLock()
	ind, dec, last := r.lastInd, r.lastDec, r.lastTick
	r.mu.RUnlock()

	var b strings.Builder
	fmt.Fprintf(&b, "📊 %s\n", r.cfg.Symbol)
	if r.halted.Load() {
		b.WriteString("⛔️ HALTED: kill switch не закрыл позицию, нужен /resume\n")
	}
	if pos := r.tracker.Current(); pos != nil {
		fmt.Fprintf(&b, "позиция: %s size=%s entry=%s x%s\n",
			strings.ToUpper(pos.Side.String()), pos.Size, pos.EntryPrice, pos.Leverage)
		if ind.Price > 0 {
			pnl := position.PnLPct(*pos, decimal.NewFromFloat(ind.Price))
			fmt.Fprintf(&b, "PNL: %s%%\n", pnl.StringFixed(2))
		}
	} else {
		b.WriteString("позиция: нет\n")
	}
	fmt.Fprintf(&b, "%s\n", strategy.Dump(strategy.Input{Ind: ind}))
	if !last.IsZero() {
		fmt.Fprintf(&b, "последний тик: %s %s (%s)", last.UTC().Format(time.RFC3339), dec.Action, dec.Reason)
	}
	return b.String()
}

type nopHealth struct{}

func (nopHealth) SetReady(bool)       {}
func (nopHealth) TouchTick(time.Time) {}
func (nopHealth) SetHalted(bool)      {}
func (nopHealth) SetPosition(string)  {}
