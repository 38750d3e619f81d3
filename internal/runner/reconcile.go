package runner

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"perp_bot/internal/models"
)

// Reconcile сверяет трекер с биржей: при старте и после /resume.
// Биржа считается источником истины.
func (r *Runner) Reconcile(ctx context.Context) error {
	live, err := r.ex.OpenPosition(ctx, r.cfg.Symbol)
	if err != nil {
		return errors.Wrap(err, "reconcile: open position")
	}
	if live != nil && !live.Size.IsPositive() {
		live = nil
	}
	local := r.tracker.Current()

	switch {
	case local == nil && live == nil:
		return nil

	case local == nil:
		return r.adopt(*live)

	case live == nil:
		if _, err := r.tracker.Close(); err != nil {
			return err
		}
		r.eval.Exit.Reset()
		// оставшийся SL/TP от закрытой позиции сработал бы на следующей
		if err := r.ex.CancelAll(ctx, r.cfg.Symbol); err != nil {
			r.log.Warn("cancel leftover orders", zap.Error(err))
		}
		r.log.Warn("position closed outside the bot", zap.String("side", local.Side.String()))
		r.n.Sendf("ℹ️ [%s] позиция %s закрыта вне бота", r.cfg.Symbol, local.Side)
		return nil

	case live.Side != local.Side || !live.Size.Equal(local.Size):
		if _, err := r.tracker.Close(); err != nil {
			return err
		}
		return r.adopt(*live)
	}
	return nil
}

func (r *Runner) adopt(live models.Position) error {
	lev := live.Leverage
	if !lev.IsPositive() {
		lev = r.cfg.Leverage
	}
	pos, err := r.tracker.Open(live.Side, live.EntryPrice, live.Size, lev)
	if err != nil {
		return errors.Wrap(err, "reconcile: adopt")
	}
	r.eval.Exit.Reset()
	r.log.Info("adopted exchange position",
		zap.String("side", pos.Side.String()),
		zap.String("size", pos.Size.String()),
		zap.String("entry", pos.EntryPrice.String()))
	r.n.Sendf("ℹ️ [%s] подхвачена позиция %s size=%s entry=%s", pos.Symbol, pos.Side, pos.Size, pos.EntryPrice)
	return nil
}
