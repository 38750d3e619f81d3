package indicator

import (
	"math"
	"testing"

	"perp_bot/internal/models"
)

func ascending(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(100 + i)
	}
	return out
}

func TestSMAAndBollingerUndefinedBelowWindow(t *testing.T) {
	for n := 0; n < 20; n++ {
		prices := ascending(n)
		if _, ok := SMA(prices, 20); ok {
			t.Fatalf("SMA defined for %d samples", n)
		}
		if _, _, ok := Bollinger(prices, 20, 2); ok {
			t.Fatalf("Bollinger defined for %d samples", n)
		}
	}
	if _, ok := SMA(ascending(20), 20); !ok {
		t.Fatal("SMA undefined for 20 samples")
	}
}

func TestSMAUsesLastN(t *testing.T) {
	prices := []float64{1000, 1, 2, 3, 4}
	got, ok := SMA(prices, 4)
	if !ok || got != 2.5 {
		t.Fatalf("SMA = %v, %v; want 2.5", got, ok)
	}
}

func TestRSI(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64
		want   float64
	}{
		{"all gains", ascending(15), 0},
		{"all losses", []float64{15, 14, 13, 12, 11, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1}, 0},
		{"balanced", []float64{10, 11, 10, 11, 10, 11, 10, 11, 10, 11, 10, 11, 10, 11, 10}, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := RSI(tt.prices, 14)
			if !ok {
				t.Fatal("RSI undefined")
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("RSI = %v, want %v", got, tt.want)
			}
		})
	}

	if _, ok := RSI(ascending(14), 14); ok {
		t.Fatal("RSI defined with only 13 deltas")
	}
}

func TestRSIBounded(t *testing.T) {
	seqs := [][]float64{
		{100, 101, 99, 102, 98, 103, 97, 104, 96, 105, 95, 106, 94, 107, 93, 108},
		{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1},
		{5, 50, 2, 80, 1, 90, 3, 70, 4, 60, 5, 40, 6, 30, 7},
	}
	for i, s := range seqs {
		got, ok := RSI(s, 14)
		if !ok {
			t.Fatalf("seq %d: RSI undefined", i)
		}
		if got < 0 || got > 100 {
			t.Fatalf("seq %d: RSI %v out of [0,100]", i, got)
		}
	}
}

func TestBollingerPopulationStd(t *testing.T) {
	prices := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	lo, up, ok := Bollinger(prices, 8, 2)
	if !ok {
		t.Fatal("Bollinger undefined")
	}
	// mean 5, population std 2
	if lo != 1 || up != 9 {
		t.Fatalf("bands = %v..%v, want 1..9", lo, up)
	}
}

func TestATR(t *testing.T) {
	candles := []models.Candle{
		{High: 10, Low: 9, Close: 9.5},
		{High: 11, Low: 10, Close: 10.5}, // tr = max(1, 1.5, 0.5) = 1.5
		{High: 10.5, Low: 8, Close: 9},   // tr = max(2.5, 0, 2.5) = 2.5
	}
	got, ok := ATR(candles, 2)
	if !ok || got != 2 {
		t.Fatalf("ATR = %v, %v; want 2", got, ok)
	}
	if _, ok := ATR(candles, 3); ok {
		t.Fatal("ATR defined without enough candles")
	}
}

func TestComputeReady(t *testing.T) {
	got := Compute(ascending(25), nil, DefaultParams())
	if !got.Ready() {
		t.Fatal("indicators not ready for 25 samples")
	}
	if got.Price != 124 {
		t.Fatalf("price = %v, want 124", got.Price)
	}
	if got.ATR != nil {
		t.Fatal("ATR computed without candles")
	}

	short := Compute(ascending(10), nil, DefaultParams())
	if short.Ready() || short.SMA != nil {
		t.Fatal("indicators ready for 10 samples")
	}
}
