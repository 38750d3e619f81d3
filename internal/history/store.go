package history

import (
	"time"

	"perp_bot/internal/models"
)

const (
	DefaultPriceWindow  = 100
	DefaultBookHistory  = 10
	DefaultBookDepth    = 5
	DefaultCandleWindow = 100
	DefaultBookMaxAge   = 30 * time.Second
)

// Store: вся рыночная история одного инструмента.
// Цены и свечи обновляет контур на тике, снимки стакана: сэмплер.
type Store struct {
	Prices  *Ring[models.PriceSample]
	Candles *Ring[models.Candle]
	Books   *Ring[models.OrderBookSnapshot]
}

func NewStore(priceWindow, bookHistory int) *Store {
	if priceWindow <= 0 {
		priceWindow = DefaultPriceWindow
	}
	if bookHistory < 2 {
		bookHistory = DefaultBookHistory
	}
	return &Store{
		Prices:  NewRing[models.PriceSample](priceWindow),
		Candles: NewRing[models.Candle](priceWindow),
		Books:   NewRing[models.OrderBookSnapshot](bookHistory),
	}
}

// SetCandles заменяет свечи и выводит из них ряд цен закрытия.
func (s *Store) SetCandles(candles []models.Candle) {
	samples := make([]models.PriceSample, 0, len(candles))
	for _, c := range candles {
		samples = append(samples, models.PriceSample{Time: c.Start, Close: c.Close})
	}
	s.Candles.Replace(candles)
	s.Prices.Replace(samples)
}

// Closes: цены закрытия, последняя самая свежая.
func (s *Store) Closes() []float64 {
	samples := s.Prices.Snapshot()
	out := make([]float64, len(samples))
	for i, p := range samples {
		out[i] = p.Close
	}
	return out
}

// Deltas: дельты объёмов между двумя последними снимками стакана.
func (s *Store) Deltas() (models.Deltas, bool) {
	return Deltas(s.Books.Snapshot())
}

// FreshDeltas: те же дельты, но только если последний снимок не старше
// maxAge на момент now. Возвращает и время этого снимка.
func (s *Store) FreshDeltas(now time.Time, maxAge time.Duration) (models.Deltas, time.Time, bool) {
	snaps := s.Books.Snapshot()
	d, ok := Deltas(snaps)
	if !ok {
		return models.Deltas{}, time.Time{}, false
	}
	at := snaps[len(snaps)-1].Time
	if at.IsZero() || now.Sub(at) > maxAge {
		return models.Deltas{}, at, false
	}
	return d, at, true
}

// Deltas считает «предыдущий минус текущий» для top-N объёмов asks/bids.
func Deltas(snaps []models.OrderBookSnapshot) (models.Deltas, bool) {
	if len(snaps) < 2 {
		return models.Deltas{}, false
	}
	prev, cur := snaps[len(snaps)-2], snaps[len(snaps)-1]
	return models.Deltas{
		Ask: prev.AskVolume - cur.AskVolume,
		Bid: prev.BidVolume - cur.BidVolume,
	}, true
}

// AverageVolumes: средние объёмы asks/bids по всей истории снимков.
func AverageVolumes(snaps []models.OrderBookSnapshot) (askAvg, bidAvg float64, ok bool) {
	if len(snaps) == 0 {
		return 0, 0, false
	}
	for _, s := range snaps {
		askAvg += s.AskVolume
		bidAvg += s.BidVolume
	}
	n := float64(len(snaps))
	return askAvg / n, bidAvg / n, true
}
