package strategy

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"perp_bot/internal/models"
	"perp_bot/internal/position"
)

// ExitSignal: закрывать ли позицию и по какому правилу.
type ExitSignal struct {
	Close  bool
	Reason string
	PnLPct decimal.Decimal
}

// Exit: оценщик выхода. Хранит счётчик подряд идущих разворотов и время
// снимка, который его последним продлил.
type Exit struct {
	cfg        Config
	streak     int
	lastSample time.Time
}

func NewExit(cfg Config) *Exit {
	if cfg.ExitDebounce < 1 {
		cfg.ExitDebounce = 1
	}
	if !cfg.ExitPolicy.Valid() {
		cfg.ExitPolicy = ExitBoth
	}
	return &Exit{cfg: cfg}
}

// Reset сбрасывает дебаунс (после закрытия или открытия позиции).
func (e *Exit) Reset() {
	e.streak = 0
	e.lastSample = time.Time{}
}

// Streak: текущее число подряд идущих сэмплов разворота.
func (e *Exit) Streak() int { return e.streak }

// Evaluate: стоп-лосс (если задан) при любой политике, затем цель по PNL,
// затем разворот индикаторов с дебаунсом.
func (e *Exit) Evaluate(pos models.Position, in Input) ExitSignal {
	if !pos.IsOpen() || in.Ind.Price <= 0 {
		return ExitSignal{}
	}
	pnl := position.PnLPct(pos, decimal.NewFromFloat(in.Ind.Price))

	if e.cfg.StopLossPct > 0 && pnl.LessThanOrEqual(decimal.NewFromFloat(-e.cfg.StopLossPct)) {
		e.Reset()
		return ExitSignal{Close: true, PnLPct: pnl,
			Reason: fmt.Sprintf("stop loss %s%% <= -%.2f%%", pnl.StringFixed(2), e.cfg.StopLossPct)}
	}

	if e.cfg.ExitPolicy != ExitIndicator && e.cfg.TakeProfitPct > 0 &&
		pnl.GreaterThan(decimal.NewFromFloat(e.cfg.TakeProfitPct)) {
		e.Reset()
		return ExitSignal{Close: true, PnLPct: pnl,
			Reason: fmt.Sprintf("target pnl %s%% > %.2f%%", pnl.StringFixed(2), e.cfg.TakeProfitPct)}
	}

	if e.cfg.ExitPolicy == ExitTarget {
		return ExitSignal{PnLPct: pnl}
	}

	reason, ok, reversal := e.reversal(pos.Side, in)
	if !ok {
		// сэмпла нет: серию не рвём и не продлеваем
		return ExitSignal{PnLPct: pnl}
	}
	if !reversal {
		e.streak = 0
		return ExitSignal{PnLPct: pnl}
	}
	if !in.SampleTime.IsZero() {
		if in.SampleTime.Equal(e.lastSample) {
			// тот же снимок на следующем тике: серию не продлеваем
			return ExitSignal{PnLPct: pnl,
				Reason: fmt.Sprintf("reversal %d/%d: %s", e.streak, e.cfg.ExitDebounce, reason)}
		}
		e.lastSample = in.SampleTime
	}
	e.streak++
	if e.streak < e.cfg.ExitDebounce {
		return ExitSignal{PnLPct: pnl,
			Reason: fmt.Sprintf("reversal %d/%d: %s", e.streak, e.cfg.ExitDebounce, reason)}
	}
	e.Reset()
	return ExitSignal{Close: true, PnLPct: pnl, Reason: "reversal: " + reason}
}

// reversal: ok=false, если данных для оценки нет.
func (e *Exit) reversal(side models.Side, in Input) (reason string, ok, hit bool) {
	ind := in.Ind
	if !ind.Ready() || in.Deltas == nil {
		return "", false, false
	}
	d := *in.Deltas
	price, sma, rsi := ind.Price, *ind.SMA, *ind.RSI

	switch side {
	case models.SideLong:
		switch {
		case d.Ask > d.Bid*e.cfg.ExitRatio:
			return "ask delta dominates", true, true
		case price < sma:
			return "price below sma", true, true
		case rsi > e.cfg.ExitRSILong:
			return "rsi overbought", true, true
		}
	case models.SideShort:
		switch {
		case d.Bid > d.Ask*e.cfg.ExitRatio:
			return "bid delta dominates", true, true
		case price > sma:
			return "price above sma", true, true
		case rsi < e.cfg.ExitRSIShort:
			return "rsi oversold", true, true
		}
	}
	return "", true, false
}
