package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"perp_bot/internal/models"
	"perp_bot/internal/notify"
	"perp_bot/internal/position"
	"perp_bot/internal/strategy"
)

// evaluateExit: позиция открыта, решаем держать или закрывать.
func (r *Runner) evaluateExit(ctx context.Context, pos models.Position, in strategy.Input) (models.Decision, error) {
	sig := r.eval.Exit.Evaluate(pos, in)
	pnl, _ := sig.PnLPct.Float64()
	r.m.UnrealizedPnLPct.Set(pnl)

	if !sig.Close {
		reason := sig.Reason
		if reason == "" {
			reason = "pnl " + sig.PnLPct.StringFixed(2) + "%"
		}
		return models.Decision{Action: models.ActionHold, Side: pos.Side, Reason: reason}, nil
	}
	return r.closePosition(ctx, pos, decimal.NewFromFloat(in.Ind.Price), sig.Reason)
}

// closePosition закрывает через kill switch. Если он не справился, контур
// останавливается до ручного /resume, трекер остаётся с позицией.
func (r *Runner) closePosition(ctx context.Context, pos models.Position, price decimal.Decimal, reason string) (models.Decision, error) {
	r.log.Info("closing position",
		zap.String("side", pos.Side.String()),
		zap.String("size", pos.Size.String()),
		zap.String("reason", reason))

	res, err := r.ks.Run(ctx, pos)
	if err != nil {
		if errors.Is(err, models.ErrKillSwitchExhausted) {
			r.halted.Store(true)
			r.health.SetHalted(true)
			r.record(ctx, models.TradeEvent{
				Time:       time.Now(),
				Kind:       models.EventKill,
				Symbol:     pos.Symbol,
				Side:       pos.Side,
				EntryPrice: pos.EntryPrice,
				Size:       pos.Size,
				Reason:     fmt.Sprintf("%s; %d attempts", reason, res.Attempts),
			})
			return models.Decision{Action: models.ActionHalted, Side: pos.Side, Reason: "kill switch exhausted"}, err
		}
		return models.Decision{Action: models.ActionSkip, Side: pos.Side, Reason: "close interrupted"}, err
	}

	closed, err := r.tracker.Close()
	if err != nil {
		return models.Decision{Action: models.ActionSkip, Reason: "tracker close"}, err
	}
	r.eval.Exit.Reset()

	ctVal := r.contractValue(ctx)
	ev := models.TradeEvent{
		Time:       time.Now(),
		Kind:       models.EventClose,
		Symbol:     closed.Symbol,
		Side:       closed.Side,
		EntryPrice: closed.EntryPrice,
		ExitPrice:  price,
		Size:       closed.Size,
		PnLPct:     position.PnLPct(closed, price),
		PnLQuote:   position.PnLQuote(closed, price).Mul(ctVal),
		Reason:     reason,
	}
	r.record(ctx, ev)
	r.n.Send(notify.FormatEvent(ev))
	r.m.UnrealizedPnLPct.Set(0)

	return models.Decision{Action: models.ActionClose, Side: closed.Side, Reason: reason}, nil
}

// evaluateEntry: позиции нет, ищем вход.
func (r *Runner) evaluateEntry(ctx context.Context, in strategy.Input, candles []models.Candle) (models.Decision, error) {
	if !in.Ind.Ready() {
		return models.Decision{Action: models.ActionNone,
			Reason: fmt.Sprintf("warming up: %d candles", len(candles))}, nil
	}
	sig := r.eval.Entry.Evaluate(in)
	if sig.Side == models.SideNone {
		return models.Decision{Action: models.ActionNone, Reason: sig.Reason}, nil
	}
	return r.openPosition(ctx, sig, decimal.NewFromFloat(in.Ind.Price), in)
}

// openPosition: размер от баланса, маркет-ордер, подтверждение позиции
// биржей, затем трекер и защитные SL/TP.
func (r *Runner) openPosition(ctx context.Context, sig strategy.Signal, price decimal.Decimal, in strategy.Input) (models.Decision, error) {
	skip := func(reason string) models.Decision {
		return models.Decision{Action: models.ActionSkip, Side: sig.Side, Reason: reason}
	}

	bal, err := r.ex.Balance(ctx, r.cfg.QuoteAsset)
	if err != nil {
		// баланс неизвестен, размер не считаем
		return skip("balance unavailable"), errors.Wrap(err, "balance")
	}
	inst, err := r.ex.Instrument(ctx, r.cfg.Symbol)
	if err != nil {
		return skip("instrument unavailable"), errors.Wrap(err, "instrument")
	}
	size := position.Size(&bal, r.cfg.RiskPerTrade, r.cfg.Leverage, price, &inst)
	if !size.IsPositive() {
		return skip(fmt.Sprintf("size is zero (balance %s %s)", bal, r.cfg.QuoteAsset)), nil
	}

	if r.cfg.ConfirmRequired {
		prompt := fmt.Sprintf("🔔 [%s] %s size=%s @ %s\n%s\n%s",
			r.cfg.Symbol, sig.Side, size, price, sig.Reason, strategy.Dump(in))
		if !r.n.Confirm(ctx, prompt, r.cfg.ConfirmTimeout) {
			return skip("not confirmed"), nil
		}
	}

	req := models.OrderRequest{
		Symbol: r.cfg.Symbol,
		Side:   sig.Side,
		Kind:   models.OrderMarket,
		Size:   size,
	}
	id, err := r.ex.PlaceOrder(ctx, req)
	if err != nil {
		r.m.OrdersTotal.WithLabelValues(string(models.OrderMarket), "error").Inc()
		// ответ мог потеряться после исполнения, а повтор с тем же clOrdId
		// приходит отказом: позицию сверяем с биржей до следующего входа
		r.reconcile.Store(true)
		dec := skip("order failed")
		if errors.Is(err, models.ErrOrderRejected) {
			dec.Action = models.ActionRejected
			dec.Reason = "order rejected"
		}
		return dec, errors.Wrap(err, "place entry order")
	}
	r.m.OrdersTotal.WithLabelValues(string(models.OrderMarket), "ok").Inc()

	live, err := r.ex.OpenPosition(ctx, r.cfg.Symbol)
	if err != nil {
		// ордер ушёл, но подтверждения нет: сверимся на следующем тике
		r.reconcile.Store(true)
		return skip("fill unconfirmed"), errors.Wrap(err, "confirm entry")
	}
	if live == nil || live.Side != sig.Side || !live.Size.IsPositive() {
		return models.Decision{Action: models.ActionRejected, Side: sig.Side, Reason: "no fill"},
			errors.Wrapf(models.ErrOrderRejected, "order %s: no %s position after fill", id, sig.Side)
	}

	entry := live.EntryPrice
	if !entry.IsPositive() {
		entry = price
	}
	lev := live.Leverage
	if !lev.IsPositive() {
		lev = r.cfg.Leverage
	}
	pos, err := r.tracker.Open(sig.Side, entry, live.Size, lev)
	if err != nil {
		return skip("tracker open"), err
	}
	r.eval.Exit.Reset()

	sl, tp := position.ProtectionPrices(pos.Side, pos.EntryPrice, pos.Leverage,
		r.cfg.Strategy.StopLossPct, r.cfg.Strategy.TakeProfitPct)
	if sl.IsPositive() || tp.IsPositive() {
		if err := r.ex.PlaceProtection(ctx, pos.Symbol, pos.Side, pos.Size, sl, tp); err != nil {
			// позиция уже открыта, выход продолжит контур
			r.log.Warn("protection not placed", zap.Error(err))
			r.n.Sendf("⚠️ [%s] SL/TP не выставлены: %v", pos.Symbol, err)
		}
	}

	ev := models.TradeEvent{
		Time:       pos.OpenedAt,
		Kind:       models.EventOpen,
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		EntryPrice: pos.EntryPrice,
		Size:       pos.Size,
		Reason:     sig.Reason,
	}
	r.record(ctx, ev)
	r.n.Send(notify.FormatEvent(ev))

	return models.Decision{Action: models.ActionOpen, Side: pos.Side, Reason: sig.Reason}, nil
}

// contractValue: базовых единиц в контракте; 1, если биржа не знает.
func (r *Runner) contractValue(ctx context.Context) decimal.Decimal {
	inst, err := r.ex.Instrument(ctx, r.cfg.Symbol)
	if err != nil || !inst.CtVal.IsPositive() {
		return decimal.NewFromInt(1)
	}
	return inst.CtVal
}

// record пишет событие в журнал. Сбой журнала торговлю не останавливает.
func (r *Runner) record(ctx context.Context, ev models.TradeEvent) {
	if r.journal == nil {
		return
	}
	if err := r.journal.Append(ctx, ev); err != nil {
		r.log.Error("journal append failed", zap.String("kind", string(ev.Kind)), zap.Error(err))
	}
}
