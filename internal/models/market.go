package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceSample: одна опрошенная цена закрытия.
type PriceSample struct {
	Time  time.Time
	Close float64
}

// Level: цена и объём уровня стакана.
type Level struct {
	Price  float64
	Volume float64
}

// OrderBook: лучшие уровни стакана, asks по возрастанию, bids по убыванию.
type OrderBook struct {
	Symbol string
	Time   time.Time
	Asks   []Level
	Bids   []Level
}

func (b OrderBook) BestAsk() (float64, bool) {
	if len(b.Asks) == 0 {
		return 0, false
	}
	return b.Asks[0].Price, true
}

func (b OrderBook) BestBid() (float64, bool) {
	if len(b.Bids) == 0 {
		return 0, false
	}
	return b.Bids[0].Price, true
}

// TopVolumes суммирует объём первых n уровней с каждой стороны.
func (b OrderBook) TopVolumes(n int) (askVol, bidVol float64) {
	for i := 0; i < len(b.Asks) && i < n; i++ {
		askVol += b.Asks[i].Volume
	}
	for i := 0; i < len(b.Bids) && i < n; i++ {
		bidVol += b.Bids[i].Volume
	}
	return askVol, bidVol
}

// OrderBookSnapshot: сжатый снимок стакана для расчёта дельт.
type OrderBookSnapshot struct {
	Time      time.Time
	BestAsk   float64
	BestBid   float64
	AskVolume float64
	BidVolume float64
}

// Snapshot сворачивает стакан до top-N объёмов.
func (b OrderBook) Snapshot(depth int) (OrderBookSnapshot, bool) {
	ask, okA := b.BestAsk()
	bid, okB := b.BestBid()
	if !okA || !okB {
		return OrderBookSnapshot{}, false
	}
	av, bv := b.TopVolumes(depth)
	return OrderBookSnapshot{
		Time:      b.Time,
		BestAsk:   ask,
		BestBid:   bid,
		AskVolume: av,
		BidVolume: bv,
	}, true
}

// Candle: OHLCV свеча.
type Candle struct {
	Start  time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Trade: принт из ленты сделок.
type Trade struct {
	ID    string
	Time  time.Time
	Side  string // buy/sell (сторона тейкера)
	Price decimal.Decimal
	Size  decimal.Decimal
}
