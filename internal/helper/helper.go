package helper

import (
	"strings"

	"github.com/shopspring/decimal"
)

// NormTF приводит таймфрейм к формату параметра bar у OKX ("1m","15m","1H","4H","1D").
func NormTF(raw string) string {
	s := strings.TrimSpace(strings.ToLower(raw))
	s = strings.TrimPrefix(s, "candle")
	switch s {
	case "60m", "1h":
		return "1H"
	case "240m", "4h":
		return "4H"
	case "1d", "24h":
		return "1D"
	case "":
		return "1m"
	default:
		return s
	}
}

// RoundDownToStep: вниз к шагу (лот / тик). Шаг <= 0, без округления.
func RoundDownToStep(v, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return v
	}
	return v.Div(step).Floor().Mul(step)
}

// RoundUpToStep: вверх к шагу.
func RoundUpToStep(v, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return v
	}
	return v.Div(step).Ceil().Mul(step)
}

// LimitPrice округляет цену лимитки к тику в «безопасную» сторону:
// покупку вверх, продажу вниз, чтобы ордер оставался у лучшей цены.
func LimitPrice(px, tick decimal.Decimal, buy bool) decimal.Decimal {
	if buy {
		return RoundUpToStep(px, tick)
	}
	return RoundDownToStep(px, tick)
}
