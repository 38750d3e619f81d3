package position

import (
	"github.com/shopspring/decimal"

	"perp_bot/internal/models"
)

var hundred = decimal.NewFromInt(100)

// PnLPct = ((cur − entry)/entry) × leverage × (±1) × 100.
// Для закрытой позиции или нулевой цены входа: 0.
func PnLPct(p models.Position, current decimal.Decimal) decimal.Decimal {
	if !p.IsOpen() || p.EntryPrice.IsZero() {
		return decimal.Zero
	}
	sign := decimal.NewFromInt(int64(p.Side.Sign()))
	return current.Sub(p.EntryPrice).
		Div(p.EntryPrice).
		Mul(p.Leverage).
		Mul(sign).
		Mul(hundred)
}

// PnLQuote: результат в валюте котировки, (cur − entry) × size × (±1).
func PnLQuote(p models.Position, current decimal.Decimal) decimal.Decimal {
	if !p.IsOpen() {
		return decimal.Zero
	}
	sign := decimal.NewFromInt(int64(p.Side.Sign()))
	return current.Sub(p.EntryPrice).Mul(p.Size).Mul(sign)
}

// ProtectionPrices: уровни SL/TP от цены входа так, чтобы PNL позиции
// с учётом плеча был равен -stopPct / +takePct. Ноль: уровень не нужен.
func ProtectionPrices(side models.Side, entry, leverage decimal.Decimal, stopPct, takePct float64) (sl, tp decimal.Decimal) {
	if !leverage.IsPositive() || side == models.SideNone {
		return decimal.Zero, decimal.Zero
	}
	sign := decimal.NewFromInt(int64(side.Sign()))
	move := func(pct float64) decimal.Decimal {
		return decimal.NewFromFloat(pct).Div(leverage).Div(hundred)
	}
	one := decimal.NewFromInt(1)
	if stopPct > 0 {
		sl = entry.Mul(one.Sub(move(stopPct).Mul(sign)))
	}
	if takePct > 0 {
		tp = entry.Mul(one.Add(move(takePct).Mul(sign)))
	}
	return sl, tp
}
