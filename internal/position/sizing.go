package position

import (
	"github.com/shopspring/decimal"

	"perp_bot/internal/helper"
	"perp_bot/internal/models"
)

// Size = balance × risk × leverage / price, округлённый вниз к шагу лота.
// Закрыто по умолчанию: неизвестный баланс (nil) или цена <= 0 дают 0.
func Size(balance *decimal.Decimal, riskPerTrade, leverage, price decimal.Decimal, inst *models.Instrument) decimal.Decimal {
	if balance == nil || !balance.IsPositive() || !price.IsPositive() {
		return decimal.Zero
	}
	if !riskPerTrade.IsPositive() || !leverage.IsPositive() {
		return decimal.Zero
	}
	raw := balance.Mul(riskPerTrade).Mul(leverage).Div(price)
	if inst == nil {
		return raw
	}
	if inst.CtVal.IsPositive() {
		raw = raw.Div(inst.CtVal) // базовые единицы -> контракты
	}
	sz := helper.RoundDownToStep(raw, inst.LotSz)
	if sz.LessThan(inst.MinSz) {
		return decimal.Zero
	}
	return sz
}
