package models

import "github.com/shopspring/decimal"

type OrderKind string

const (
	OrderMarket OrderKind = "market"
	OrderLimit  OrderKind = "limit"
)

// OrderRequest: заявка в Order Gateway.
// Side: сторона ордера в терминах позиции: SideLong = buy, SideShort = sell.
type OrderRequest struct {
	Symbol     string
	Side       Side
	Kind       OrderKind
	Size       decimal.Decimal
	Price      decimal.Decimal // только для limit
	ReduceOnly bool
	ClientID   string
}
