package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TradeEventKind string

const (
	EventOpen  TradeEventKind = "open"
	EventClose TradeEventKind = "close"
	EventKill  TradeEventKind = "kill_failed"
)

// TradeEvent: одна строка журнала сделок.
type TradeEvent struct {
	Time       time.Time
	Kind       TradeEventKind
	Symbol     string
	Side       Side
	EntryPrice decimal.Decimal
	ExitPrice  decimal.Decimal
	Size       decimal.Decimal
	PnLPct     decimal.Decimal
	PnLQuote   decimal.Decimal
	Reason     string
}
