// Package exchange описывает внешних коллабораторов контура: источник рыночных
// данных и шлюз ордеров, плюс бумажную реализацию и отказоустойчивую обёртку.
package exchange

import (
	"context"

	"github.com/shopspring/decimal"

	"perp_bot/internal/models"
)

// MarketData: источник рыночных данных.
type MarketData interface {
	OrderBook(ctx context.Context, symbol string, depth int) (models.OrderBook, error)
	Candles(ctx context.Context, symbol, timeframe string, count int) ([]models.Candle, error)
	RecentTrades(ctx context.Context, symbol string, count int) ([]models.Trade, error)
}

// OrderGateway: выставление/отмена ордеров и состояние счёта.
type OrderGateway interface {
	PlaceOrder(ctx context.Context, req models.OrderRequest) (string, error)
	CancelAll(ctx context.Context, symbol string) error
	// OpenPosition: nil, если позиции нет.
	OpenPosition(ctx context.Context, symbol string) (*models.Position, error)
	Balance(ctx context.Context, asset string) (decimal.Decimal, error)
	// PlaceProtection ставит SL/TP на позицию; нулевой уровень не ставится.
	PlaceProtection(ctx context.Context, symbol string, side models.Side, size, sl, tp decimal.Decimal) error
	Instrument(ctx context.Context, symbol string) (models.Instrument, error)
}

// Exchange: обе роли в одном адаптере (OKX, paper).
type Exchange interface {
	MarketData
	OrderGateway
}
