package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"perp_bot/internal/metrics"
	"perp_bot/internal/models"
)

type staticBook struct {
	ask, bid float64
}

func (s staticBook) OrderBook(_ context.Context, symbol string, _ int) (models.OrderBook, error) {
	return models.OrderBook{
		Symbol: symbol,
		Asks:   []models.Level{{Price: s.ask, Volume: 1}},
		Bids:   []models.Level{{Price: s.bid, Volume: 1}},
	}, nil
}

func (s staticBook) Candles(context.Context, string, string, int) ([]models.Candle, error) {
	return nil, nil
}

func (s staticBook) RecentTrades(context.Context, string, int) ([]models.Trade, error) {
	return nil, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPaperMarketRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := NewPaper(staticBook{ask: 101, bid: 100}, dec("1000"), dec("10"))

	if _, err := p.PlaceOrder(ctx, models.OrderRequest{
		Symbol: "BTC", Side: models.SideLong, Kind: models.OrderMarket, Size: dec("2"),
	}); err != nil {
		t.Fatalf("open: %v", err)
	}
	pos, _ := p.OpenPosition(ctx, "BTC")
	if pos == nil || pos.Side != models.SideLong || !pos.EntryPrice.Equal(dec("101")) {
		t.Fatalf("position = %+v", pos)
	}

	if _, err := p.PlaceOrder(ctx, models.OrderRequest{
		Symbol: "BTC", Side: models.SideShort, Kind: models.OrderMarket, Size: dec("2"), ReduceOnly: true,
	}); err != nil {
		t.Fatalf("close: %v", err)
	}
	if pos, _ := p.OpenPosition(ctx, "BTC"); pos != nil {
		t.Fatalf("position still open: %+v", pos)
	}
	bal, _ := p.Balance(ctx, "USDT")
	if !bal.Equal(dec("998")) {
		t.Fatalf("balance = %s, want 998", bal)
	}
}

func TestPaperLimitRestsUntilCancel(t *testing.T) {
	ctx := context.Background()
	p := NewPaper(staticBook{ask: 101, bid: 100}, dec("1000"), dec("1"))

	if _, err := p.PlaceOrder(ctx, models.OrderRequest{
		Symbol: "BTC", Side: models.SideLong, Kind: models.OrderLimit, Size: dec("1"), Price: dec("99"),
	}); err != nil {
		t.Fatalf("limit: %v", err)
	}
	if p.OpenOrders() != 1 {
		t.Fatalf("open orders = %d", p.OpenOrders())
	}
	if pos, _ := p.OpenPosition(ctx, "BTC"); pos != nil {
		t.Fatal("resting limit filled")
	}
	_ = p.CancelAll(ctx, "BTC")
	if p.OpenOrders() != 0 {
		t.Fatal("orders left after cancel")
	}

	// лимитка, пересекающая стакан, исполняется сразу
	if _, err := p.PlaceOrder(ctx, models.OrderRequest{
		Symbol: "BTC", Side: models.SideLong, Kind: models.OrderLimit, Size: dec("1"), Price: dec("101"),
	}); err != nil {
		t.Fatalf("crossing limit: %v", err)
	}
	if pos, _ := p.OpenPosition(ctx, "BTC"); pos == nil {
		t.Fatal("crossing limit did not fill")
	}
}

func TestPaperCancelAllDropsProtection(t *testing.T) {
	ctx := context.Background()
	p := NewPaper(staticBook{ask: 101, bid: 100}, dec("1000"), dec("1"))

	if err := p.PlaceProtection(ctx, "BTC", models.SideLong, dec("1"), dec("98"), dec("0")); err != nil {
		t.Fatal(err)
	}
	if !p.Protected("BTC") {
		t.Fatal("protection not recorded")
	}
	_ = p.CancelAll(ctx, "BTC")
	if p.Protected("BTC") {
		t.Fatal("protection left after cancel")
	}
}

func TestPaperReduceOnlyWithoutPosition(t *testing.T) {
	p := NewPaper(staticBook{ask: 101, bid: 100}, dec("1000"), dec("1"))
	_, err := p.PlaceOrder(context.Background(), models.OrderRequest{
		Symbol: "BTC", Side: models.SideShort, Kind: models.OrderMarket, Size: dec("1"), ReduceOnly: true,
	})
	if !errors.Is(err, models.ErrOrderRejected) {
		t.Fatalf("err = %v, want ErrOrderRejected", err)
	}
}

// flaky падает сетевой ошибкой первые failures вызовов стакана.
type flaky struct {
	Exchange
	failures int
	err      error
	calls    int
	clientID []string
}

func (f *flaky) OrderBook(ctx context.Context, symbol string, depth int) (models.OrderBook, error) {
	f.calls++
	if f.calls <= f.failures {
		return models.OrderBook{}, f.err
	}
	return staticBook{ask: 2, bid: 1}.OrderBook(ctx, symbol, depth)
}

func (f *flaky) PlaceOrder(_ context.Context, req models.OrderRequest) (string, error) {
	f.calls++
	f.clientID = append(f.clientID, req.ClientID)
	if f.calls <= f.failures {
		return "", f.err
	}
	return "ok", nil
}

func fastRetry() RetryConfig {
	return RetryConfig{Initial: time.Millisecond, MaxInterval: 2 * time.Millisecond, MaxElapsed: time.Second}
}

func TestResilientRetriesNetworkErrors(t *testing.T) {
	f := &flaky{failures: 2, err: pkgerrors.Wrap(models.ErrNetwork, "timeout")}
	r := NewResilient(f, fastRetry(), BreakerConfig{MaxFailures: 10}, metrics.New())

	book, err := r.OrderBook(context.Background(), "BTC", 5)
	if err != nil {
		t.Fatalf("OrderBook: %v", err)
	}
	if f.calls != 3 || len(book.Asks) != 1 {
		t.Fatalf("calls = %d book = %+v", f.calls, book)
	}
}

func TestResilientDoesNotRetryRejects(t *testing.T) {
	f := &flaky{failures: 5, err: pkgerrors.Wrap(models.ErrOrderRejected, "sCode=51008")}
	r := NewResilient(f, fastRetry(), BreakerConfig{}, metrics.New())

	_, err := r.PlaceOrder(context.Background(), models.OrderRequest{Symbol: "BTC", Size: dec("1")})
	if !errors.Is(err, models.ErrOrderRejected) {
		t.Fatalf("err = %v, want ErrOrderRejected", err)
	}
	if f.calls != 1 {
		t.Fatalf("calls = %d, want 1", f.calls)
	}
}

func TestResilientKeepsClientIDAcrossRetries(t *testing.T) {
	f := &flaky{failures: 2, err: pkgerrors.Wrap(models.ErrNetwork, "reset")}
	r := NewResilient(f, fastRetry(), BreakerConfig{MaxFailures: 10}, metrics.New())

	if _, err := r.PlaceOrder(context.Background(), models.OrderRequest{Symbol: "BTC", Size: dec("1")}); err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if len(f.clientID) != 3 || f.clientID[0] == "" || f.clientID[0] != f.clientID[2] || len(f.clientID[0]) != 32 {
		t.Fatalf("client ids = %v", f.clientID)
	}
}

func TestResilientGivesUpAndOpensBreaker(t *testing.T) {
	f := &flaky{failures: 1000, err: pkgerrors.Wrap(models.ErrNetwork, "down")}
	rc := RetryConfig{Initial: time.Millisecond, MaxInterval: time.Millisecond, MaxElapsed: 20 * time.Millisecond}
	r := NewResilient(f, rc, BreakerConfig{MaxFailures: 3, OpenTimeout: time.Minute}, metrics.New())

	_, err := r.OrderBook(context.Background(), "BTC", 5)
	if !errors.Is(err, models.ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork", err)
	}
	calls := f.calls
	if calls < 3 {
		t.Fatalf("calls = %d, breaker should need 3 failures", calls)
	}

	// предохранитель разомкнут: до биржи вызов не доходит
	_, err = r.OrderBook(context.Background(), "BTC", 5)
	if !errors.Is(err, models.ErrNetwork) {
		t.Fatalf("open breaker err = %v", err)
	}
	if f.calls != calls {
		t.Fatalf("calls grew to %d with open breaker", f.calls)
	}
}
