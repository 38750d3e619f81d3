// Package indicator считает SMA, RSI, Bollinger и ATR по последовательности
// цен закрытия (последняя: самая свежая). При нехватке данных функции
// возвращают ok=false: это «нет сигнала», а не ошибка.
package indicator

import (
	"math"

	"perp_bot/internal/models"
)

const (
	DefaultSMAPeriod       = 20
	DefaultRSIPeriod       = 14
	DefaultBollingerPeriod = 20
	DefaultBollingerK      = 2.0
	DefaultATRPeriod       = 14
)

// Params: периоды индикаторов.
type Params struct {
	SMAPeriod       int
	RSIPeriod       int
	BollingerPeriod int
	BollingerK      float64
	ATRPeriod       int
}

func DefaultParams() Params {
	return Params{
		SMAPeriod:       DefaultSMAPeriod,
		RSIPeriod:       DefaultRSIPeriod,
		BollingerPeriod: DefaultBollingerPeriod,
		BollingerK:      DefaultBollingerK,
		ATRPeriod:       DefaultATRPeriod,
	}
}

// SMA: среднее последних n цен.
func SMA(prices []float64, n int) (float64, bool) {
	if n <= 0 || len(prices) < n {
		return 0, false
	}
	sum := 0.0
	for _, p := range prices[len(prices)-n:] {
		sum += p
	}
	return sum / float64(n), true
}

// RSI по последним n дельтам (нужно n+1 цен).
// rs = avgGain/avgLoss, при avgLoss == 0 rs = 0.
func RSI(prices []float64, n int) (float64, bool) {
	if n <= 0 || len(prices) < n+1 {
		return 0, false
	}
	window := prices[len(prices)-n-1:]
	var gain, loss float64
	for i := 1; i < len(window); i++ {
		d := window[i] - window[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(n)
	avgLoss := loss / float64(n)

	rs := 0.0
	if avgLoss != 0 {
		rs = avgGain / avgLoss
	}
	return 100 - 100/(1+rs), true
}

// Bollinger: sma ± k·σ последних n цен (σ генеральной совокупности).
func Bollinger(prices []float64, n int, k float64) (lower, upper float64, ok bool) {
	mid, ok := SMA(prices, n)
	if !ok {
		return 0, 0, false
	}
	var sq float64
	for _, p := range prices[len(prices)-n:] {
		d := p - mid
		sq += d * d
	}
	std := math.Sqrt(sq / float64(n))
	return mid - k*std, mid + k*std, true
}

// ATR: простое среднее true range по последним n свечам (нужно n+1 свечей).
func ATR(candles []models.Candle, n int) (float64, bool) {
	if n <= 0 || len(candles) < n+1 {
		return 0, false
	}
	window := candles[len(candles)-n-1:]
	sum := 0.0
	for i := 1; i < len(window); i++ {
		c, prev := window[i], window[i-1]
		tr := c.High - c.Low
		tr = math.Max(tr, math.Abs(c.High-prev.Close))
		tr = math.Max(tr, math.Abs(c.Low-prev.Close))
		sum += tr
	}
	return sum / float64(n), true
}

// Compute собирает все индикаторы на тик. Цена: последняя из prices.
func Compute(prices []float64, candles []models.Candle, p Params) models.Indicators {
	out := models.Indicators{}
	if len(prices) > 0 {
		out.Price = prices[len(prices)-1]
	}
	if v, ok := SMA(prices, p.SMAPeriod); ok {
		out.SMA = &v
	}
	if v, ok := RSI(prices, p.RSIPeriod); ok {
		out.RSI = &v
	}
	if lo, up, ok := Bollinger(prices, p.BollingerPeriod, p.BollingerK); ok {
		out.BBLower, out.BBUpper = &lo, &up
	}
	if v, ok := ATR(candles, p.ATRPeriod); ok {
		out.ATR = &v
	}
	return out
}
