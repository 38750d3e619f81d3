package models

import "github.com/shopspring/decimal"

// Instrument: параметры контракта OKX SWAP, нужные для округления.
type Instrument struct {
	InstID string
	TickSz decimal.Decimal
	LotSz  decimal.Decimal
	MinSz  decimal.Decimal
	CtVal  decimal.Decimal
}
