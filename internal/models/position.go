package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position: единственная открытая позиция по инструменту.
// Side == SideNone означает, что остальные поля не имеют смысла.
type Position struct {
	Symbol     string
	Side       Side
	EntryPrice decimal.Decimal
	Size       decimal.Decimal
	Leverage   decimal.Decimal
	OpenedAt   time.Time
}

func (p Position) IsOpen() bool { return p.Side != SideNone }

// Notional: стоимость позиции по цене входа.
func (p Position) Notional() decimal.Decimal { return p.EntryPrice.Mul(p.Size) }
