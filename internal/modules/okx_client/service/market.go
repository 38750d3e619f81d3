package service

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"perp_bot/internal/helper"
	"perp_bot/internal/models"
)

type bookRow struct {
	Asks [][]string `json:"asks"`
	Bids [][]string `json:"bids"`
	Ts   string     `json:"ts"`
}

type tradeRow struct {
	InstID  string `json:"instId"`
	TradeID string `json:"tradeId"`
	Px      string `json:"px"`
	Sz      string `json:"sz"`
	Side    string `json:"side"`
	Ts      string `json:"ts"`
}

// OrderBook: /api/v5/market/books, depth уровней с каждой стороны.
func (c *Client) OrderBook(ctx context.Context, symbol string, depth int) (models.OrderBook, error) {
	if depth <= 0 {
		depth = 5
	}
	q := url.Values{}
	q.Set("instId", symbol)
	q.Set("sz", strconv.Itoa(depth))

	rows, err := call[bookRow](ctx, c, request{
		op: "books", method: http.MethodGet, path: "/api/v5/market/books",
		query: q, reject: models.ErrDataUnavailable,
	})
	if err != nil {
		return models.OrderBook{}, err
	}
	if len(rows) == 0 {
		return models.OrderBook{}, errors.Wrapf(models.ErrDataUnavailable, "books %s: empty", symbol)
	}
	return ParseBook(symbol, rows[0].Asks, rows[0].Bids, rows[0].Ts), nil
}

// ParseBook разбирает уровни OKX [px, sz, liq, orders]; битые строки пропускаются.
func ParseBook(symbol string, asks, bids [][]string, ts string) models.OrderBook {
	book := models.OrderBook{
		Symbol: symbol,
		Time:   parseMillis(ts),
		Asks:   parseLevels(asks),
		Bids:   parseLevels(bids),
	}
	if book.Time.IsZero() {
		book.Time = time.Now()
	}
	return book
}

func parseLevels(rows [][]string) []models.Level {
	out := make([]models.Level, 0, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		px, err1 := strconv.ParseFloat(row[0], 64)
		sz, err2 := strconv.ParseFloat(row[1], 64)
		if err1 != nil || err2 != nil || px <= 0 {
			continue
		}
		out = append(out, models.Level{Price: px, Volume: sz})
	}
	return out
}

// Candles: закрытые и текущая свеча, от старых к новым.
// Строка OKX: [ts, o, h, l, c, vol, volCcy, volCcyQuote, confirm].
func (c *Client) Candles(ctx context.Context, symbol, timeframe string, count int) ([]models.Candle, error) {
	if count <= 0 {
		count = 100
	}
	if count > 300 {
		count = 300
	}
	q := url.Values{}
	q.Set("instId", symbol)
	q.Set("bar", helper.NormTF(timeframe))
	q.Set("limit", strconv.Itoa(count))

	rows, err := call[[]string](ctx, c, request{
		op: "candles", method: http.MethodGet, path: "/api/v5/market/candles",
		query: q, reject: models.ErrDataUnavailable,
	})
	if err != nil {
		return nil, err
	}

	// OKX отдаёт newest-first
	out := make([]models.Candle, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		if len(row) < 6 {
			continue
		}
		open, err1 := strconv.ParseFloat(row[1], 64)
		high, err2 := strconv.ParseFloat(row[2], 64)
		low, err3 := strconv.ParseFloat(row[3], 64)
		closep, err4 := strconv.ParseFloat(row[4], 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || closep <= 0 {
			continue
		}
		vol, _ := strconv.ParseFloat(row[5], 64)
		out = append(out, models.Candle{
			Start:  parseMillis(row[0]),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closep,
			Volume: vol,
		})
	}
	if len(out) == 0 {
		return nil, errors.Wrapf(models.ErrDataUnavailable, "candles %s %s: empty", symbol, timeframe)
	}
	return out, nil
}

// RecentTrades: последние сделки, от новых к старым, как отдаёт OKX.
func (c *Client) RecentTrades(ctx context.Context, symbol string, count int) ([]models.Trade, error) {
	if count <= 0 {
		count = 100
	}
	q := url.Values{}
	q.Set("instId", symbol)
	q.Set("limit", strconv.Itoa(count))

	rows, err := call[tradeRow](ctx, c, request{
		op: "trades", method: http.MethodGet, path: "/api/v5/market/trades",
		query: q, reject: models.ErrDataUnavailable,
	})
	if err != nil {
		return nil, err
	}

	out := make([]models.Trade, 0, len(rows))
	for _, r := range rows {
		px, err1 := decimal.NewFromString(r.Px)
		sz, err2 := decimal.NewFromString(r.Sz)
		if err1 != nil || err2 != nil {
			continue
		}
		out = append(out, models.Trade{
			ID:    r.TradeID,
			Time:  parseMillis(r.Ts),
			Side:  r.Side,
			Price: px,
			Size:  sz,
		})
	}
	return out, nil
}

func parseMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
