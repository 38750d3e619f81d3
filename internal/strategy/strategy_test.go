package strategy

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"perp_bot/internal/history"
	"perp_bot/internal/indicator"
	"perp_bot/internal/models"
)

func f(v float64) *float64 { return &v }

func readyInput(price, sma, rsi, lo, up, dAsk, dBid float64) Input {
	return Input{
		Ind: models.Indicators{
			Price: price, SMA: f(sma), RSI: f(rsi), BBLower: f(lo), BBUpper: f(up),
		},
		Deltas: &models.Deltas{Ask: dAsk, Bid: dBid},
	}
}

func TestEntryLongShortNone(t *testing.T) {
	e := NewEntry(DefaultConfig())
	tests := []struct {
		name string
		in   Input
		want models.Side
	}{
		{"long", readyInput(105, 100, 50, 90, 110, 2, 10), models.SideLong},
		{"short", readyInput(95, 100, 50, 90, 110, 10, 2), models.SideShort},
		{"long blocked by rsi", readyInput(105, 100, 75, 90, 110, 2, 10), models.SideNone},
		{"long blocked by upper band", readyInput(111, 100, 50, 90, 110, 2, 10), models.SideNone},
		{"short blocked by lower band", readyInput(89, 100, 50, 90, 110, 10, 2), models.SideNone},
		{"short blocked by rsi", readyInput(95, 100, 25, 90, 110, 10, 2), models.SideNone},
		{"balanced book", readyInput(105, 100, 50, 90, 110, 5, 5), models.SideNone},
		{"no deltas", Input{Ind: readyInput(105, 100, 50, 90, 110, 0, 0).Ind}, models.SideNone},
		{"no indicators", Input{Ind: models.Indicators{Price: 1}, Deltas: &models.Deltas{Bid: 10}}, models.SideNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.Evaluate(tt.in).Side; got != tt.want {
				t.Fatalf("side = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEntryDeterministic(t *testing.T) {
	e := NewEntry(DefaultConfig())
	in := readyInput(105, 100, 50, 90, 110, 2, 10)
	first := e.Evaluate(in)
	for i := 0; i < 100; i++ {
		if got := e.Evaluate(in); got != first {
			t.Fatalf("run %d: %+v != %+v", i, got, first)
		}
	}
}

func TestEntryVolumeConfirm(t *testing.T) {
	cfg := DefaultConfig()
	cfg.VolumeConfirm = true
	e := NewEntry(cfg)

	in := readyInput(105, 100, 50, 90, 110, 2, 10)
	if got := e.Evaluate(in).Side; got != models.SideNone {
		t.Fatalf("without averages side = %v", got)
	}
	in.HasVolAvg, in.AskVolAvg, in.BidVolAvg = true, 10, 20
	if got := e.Evaluate(in).Side; got != models.SideLong {
		t.Fatalf("confirmed side = %v, want long", got)
	}
	in.AskVolAvg = 30
	if got := e.Evaluate(in).Side; got != models.SideNone {
		t.Fatalf("unconfirmed side = %v", got)
	}
}

func TestEntryZoneFilter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ZoneFilter = true
	e := NewEntry(cfg)
	in := readyInput(105, 100, 50, 90, 110, 2, 10)
	in.Zone = Zone{Supply: true}
	if got := e.Evaluate(in).Side; got != models.SideNone {
		t.Fatalf("side in supply zone = %v", got)
	}
	in.Zone = Zone{Demand: true}
	if got := e.Evaluate(in).Side; got != models.SideLong {
		t.Fatalf("side in demand zone = %v, want long", got)
	}
}

func pos(side models.Side, entry, lev string) models.Position {
	return models.Position{
		Side:       side,
		EntryPrice: decimal.RequireFromString(entry),
		Size:       decimal.NewFromInt(1),
		Leverage:   decimal.RequireFromString(lev),
	}
}

func TestExitTargetPnL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExitPolicy = ExitTarget
	cfg.TakeProfitPct = 5
	x := NewExit(cfg)

	p := pos(models.SideLong, "100", "1")
	if s := x.Evaluate(p, Input{Ind: models.Indicators{Price: 105}}); s.Close {
		t.Fatal("closed at exactly the target")
	}
	if s := x.Evaluate(p, Input{Ind: models.Indicators{Price: 105.5}}); !s.Close {
		t.Fatal("not closed above target")
	}
	// без стопа убыточная позиция держится
	if s := x.Evaluate(p, Input{Ind: models.Indicators{Price: 50}}); s.Close {
		t.Fatal("loss closed without stop loss")
	}

	short := pos(models.SideShort, "100", "10")
	s := x.Evaluate(short, Input{Ind: models.Indicators{Price: 99}})
	if !s.Close || !s.PnLPct.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("short target = %+v", s)
	}
}

func TestExitStopLoss(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExitPolicy = ExitIndicator
	cfg.StopLossPct = 10
	x := NewExit(cfg)

	p := pos(models.SideLong, "100", "5")
	if s := x.Evaluate(p, Input{Ind: models.Indicators{Price: 98.5}}); s.Close {
		t.Fatal("closed before stop")
	}
	if s := x.Evaluate(p, Input{Ind: models.Indicators{Price: 98}}); !s.Close {
		t.Fatal("stop not triggered at -10%")
	}
}

func TestExitDebounceCountsSamplesNotTicks(t *testing.T) {
	x := NewExit(DefaultConfig())
	p := pos(models.SideLong, "100", "1")
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rev := readyInput(99, 100, 50, 90, 110, 1, 1)
	rev.SampleTime = at

	// два тика на одном снимке: одна точка серии
	x.Evaluate(p, rev)
	if s := x.Evaluate(p, rev); s.Close {
		t.Fatal("closed on a single sample seen twice")
	}
	if x.Streak() != 1 {
		t.Fatalf("streak = %d, want 1", x.Streak())
	}

	rev.SampleTime = at.Add(10 * time.Second)
	if s := x.Evaluate(p, rev); !s.Close {
		t.Fatal("not closed on the second sample")
	}
}

func TestExitReversalDebounce(t *testing.T) {
	x := NewExit(DefaultConfig())
	p := pos(models.SideLong, "100", "1")
	rev := readyInput(99, 100, 50, 90, 110, 1, 1)

	if s := x.Evaluate(p, rev); s.Close {
		t.Fatal("closed on first reversal sample")
	}
	if x.Streak() != 1 {
		t.Fatalf("streak = %d", x.Streak())
	}
	// нормальный сэмпл рвёт серию
	calm := readyInput(101, 100, 50, 90, 110, 1, 1)
	if s := x.Evaluate(p, calm); s.Close || x.Streak() != 0 {
		t.Fatalf("calm sample: close=%v streak=%d", s.Close, x.Streak())
	}
	x.Evaluate(p, rev)
	if s := x.Evaluate(p, rev); !s.Close {
		t.Fatal("not closed after two reversal samples")
	}
	if x.Streak() != 0 {
		t.Fatal("streak not reset after close")
	}
}

func TestExitReversalShort(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExitDebounce = 1
	x := NewExit(cfg)
	p := pos(models.SideShort, "100", "1")

	cases := []struct {
		name string
		in   Input
		want bool
	}{
		{"bid delta", readyInput(95, 100, 50, 90, 110, 1, 3), true},
		{"price above sma", readyInput(101, 100, 50, 90, 110, 1, 1), true},
		{"rsi oversold", readyInput(95, 100, 20, 90, 110, 1, 1), true},
		{"hold", readyInput(95, 100, 50, 90, 110, 1, 1), false},
	}
	for _, c := range cases {
		if got := x.Evaluate(p, c.in).Close; got != c.want {
			t.Errorf("%s: close = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestDetectZone(t *testing.T) {
	candles := make([]models.Candle, 0, 5)
	for i := 0; i < 4; i++ {
		candles = append(candles, models.Candle{High: 110, Low: 100, Close: 105, Volume: 10})
	}
	candles = append(candles, models.Candle{High: 104, Low: 99, Close: 100, Volume: 30})

	z, ok := DetectZone(candles, 5, DefaultZoneTolerance)
	if !ok || !z.Demand || z.Supply {
		t.Fatalf("zone = %+v ok=%v, want demand", z, ok)
	}

	candles[4] = models.Candle{High: 110, Low: 105, Close: 109, Volume: 30}
	z, _ = DetectZone(candles, 5, DefaultZoneTolerance)
	if !z.Supply || z.Demand {
		t.Fatalf("zone = %+v, want supply", z)
	}

	candles[4].Volume = 1
	z, _ = DetectZone(candles, 5, DefaultZoneTolerance)
	if z.Supply || z.Demand {
		t.Fatalf("light volume zone = %+v", z)
	}

	if _, ok := DetectZone(candles, 6, DefaultZoneTolerance); ok {
		t.Fatal("zone with short history")
	}
}

// 25 растущих закрытий и давление бидов дают лонг; затем цена под SMA
// и доминирующая дельта асков закрывают позицию после двух сэмплов.
func TestEntryExitScenario(t *testing.T) {
	store := history.NewStore(100, 10)
	candles := make([]models.Candle, 25)
	for i := range candles {
		candles[i] = models.Candle{Close: float64(100 + i)}
	}
	store.SetCandles(candles)
	store.Books.Push(models.OrderBookSnapshot{AskVolume: 50, BidVolume: 50})
	store.Books.Push(models.OrderBookSnapshot{AskVolume: 48, BidVolume: 40}) // dAsk=2 dBid=10

	ev := NewEvaluators(DefaultConfig())
	params := indicator.DefaultParams()

	ind := indicator.Compute(store.Closes(), nil, params)
	if ind.RSI == nil || *ind.RSI < 0 || *ind.RSI > 100 {
		t.Fatalf("rsi = %v", ind.RSI)
	}
	if ind.Price <= *ind.SMA {
		t.Fatalf("price %v not above sma %v", ind.Price, *ind.SMA)
	}
	deltas, ok := store.Deltas()
	if !ok || deltas.Bid != 10 || deltas.Ask != 2 {
		t.Fatalf("deltas = %+v", deltas)
	}

	sig := ev.Entry.Evaluate(Input{Ind: ind, Deltas: &deltas})
	if sig.Side != models.SideLong {
		t.Fatalf("entry = %+v, want long", sig)
	}

	p := pos(models.SideLong, "124", "1")
	ev.Exit.Reset()

	crash := func() Input {
		candles = append(candles, models.Candle{Close: 90})
		store.SetCandles(candles)
		last, _ := store.Books.Last()
		store.Books.Push(models.OrderBookSnapshot{AskVolume: last.AskVolume - 10, BidVolume: last.BidVolume - 1})
		d, _ := store.Deltas()
		return Input{Ind: indicator.Compute(store.Closes(), nil, params), Deltas: &d}
	}

	in := crash()
	if in.Deltas.Ask <= in.Deltas.Bid*2.5 || in.Ind.Price >= *in.Ind.SMA {
		t.Fatalf("scenario input not a reversal: %s", Dump(in))
	}
	if s := ev.Exit.Evaluate(p, in); s.Close {
		t.Fatal("closed before debounce")
	}
	if s := ev.Exit.Evaluate(p, crash()); !s.Close {
		t.Fatal("exit not triggered after debounce")
	}
}
