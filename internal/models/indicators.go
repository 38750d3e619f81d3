package models

// Indicators: производные значения на тике. nil = недостаточно данных.
type Indicators struct {
	Price   float64
	SMA     *float64
	RSI     *float64
	BBLower *float64
	BBUpper *float64
	ATR     *float64
}

// Ready: есть всё, что нужно оценщикам входа/выхода.
func (i Indicators) Ready() bool {
	return i.SMA != nil && i.RSI != nil && i.BBLower != nil && i.BBUpper != nil
}

// Deltas: изменение суммарного объёма top-N стакана между двумя снимками
// (предыдущий минус текущий).
type Deltas struct {
	Ask float64
	Bid float64
}
