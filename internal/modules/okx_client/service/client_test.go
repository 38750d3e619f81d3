package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/bytedance/sonic"
	pkgerrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"perp_bot/internal/models"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		APIKey:     "key",
		APISecret:  "secret",
		Passphrase: "pass",
		BaseURL:    srv.URL,
	})
}

func TestOrderBookParsesLevels(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v5/market/books" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("sz"); got != "5" {
			t.Errorf("sz = %s", got)
		}
		_, _ = io.WriteString(w, `{"code":"0","msg":"","data":[{"asks":[["101.5","3","0","1"],["bad","1","0","1"]],"bids":[["101.4","7","0","2"]],"ts":"1700000000000"}]}`)
	})

	book, err := c.OrderBook(context.Background(), "BTC-USDT-SWAP", 5)
	if err != nil {
		t.Fatal(err)
	}
	ask, ok := book.BestAsk()
	if !ok || ask != 101.5 {
		t.Fatalf("best ask = %v %v", ask, ok)
	}
	if len(book.Asks) != 1 {
		t.Fatalf("broken level not skipped: %d asks", len(book.Asks))
	}
	bid, _ := book.BestBid()
	if bid != 101.4 || book.Bids[0].Volume != 7 {
		t.Fatalf("bids = %+v", book.Bids)
	}
	if book.Time.UnixMilli() != 1700000000000 {
		t.Fatalf("time = %v", book.Time)
	}
}

func TestCandlesOldestFirst(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("bar"); got != "1H" {
			t.Errorf("bar = %s", got)
		}
		_, _ = io.WriteString(w, `{"code":"0","data":[
			["3000","3","4","2","3.5","10","0","0","0"],
			["2000","2","3","1","2.5","20","0","0","1"],
			["1000","1","2","0.5","1.5","30","0","0","1"]]}`)
	})

	candles, err := c.Candles(context.Background(), "BTC-USDT-SWAP", "1h", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(candles) != 3 {
		t.Fatalf("len = %d", len(candles))
	}
	if candles[0].Close != 1.5 || candles[2].Close != 3.5 {
		t.Fatalf("order = %+v", candles)
	}
	if candles[0].Volume != 30 {
		t.Fatalf("volume = %v", candles[0].Volume)
	}
}

func TestPlaceOrderSignsRequest(t *testing.T) {
	var body map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		if err := sonic.Unmarshal(raw, &body); err != nil {
			t.Errorf("body: %v", err)
		}

		ts := r.Header.Get("OK-ACCESS-TIMESTAMP")
		mac := hmac.New(sha256.New, []byte("secret"))
		mac.Write([]byte(ts + "POST" + "/api/v5/trade/order" + string(raw)))
		want := base64.StdEncoding.EncodeToString(mac.Sum(nil))
		if got := r.Header.Get("OK-ACCESS-SIGN"); got != want {
			t.Errorf("sign = %s, want %s", got, want)
		}
		if r.Header.Get("OK-ACCESS-KEY") != "key" || r.Header.Get("OK-ACCESS-PASSPHRASE") != "pass" {
			t.Errorf("auth headers missing")
		}
		_, _ = io.WriteString(w, `{"code":"0","data":[{"ordId":"42","clOrdId":"abc","sCode":"0","sMsg":""}]}`)
	})

	id, err := c.PlaceOrder(context.Background(), models.OrderRequest{
		Symbol:     "BTC-USDT-SWAP",
		Side:       models.SideShort,
		Kind:       models.OrderLimit,
		Size:       decimal.RequireFromString("0.5"),
		Price:      decimal.RequireFromString("101.4"),
		ReduceOnly: true,
		ClientID:   "abc",
	})
	if err != nil {
		t.Fatal(err)
	}
	if id != "42" {
		t.Fatalf("id = %s", id)
	}
	if body["side"] != "sell" || body["px"] != "101.4" || body["reduceOnly"] != "true" || body["clOrdId"] != "abc" {
		t.Fatalf("body = %+v", body)
	}
	if body["tdMode"] != "cross" || body["ordType"] != "limit" {
		t.Fatalf("body = %+v", body)
	}
}

func TestPlaceOrderRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"code":"1","msg":"","data":[{"ordId":"","sCode":"51008","sMsg":"insufficient margin"}]}`)
	})

	_, err := c.PlaceOrder(context.Background(), models.OrderRequest{
		Symbol: "BTC-USDT-SWAP", Side: models.SideLong, Kind: models.OrderMarket, Size: decimal.NewFromInt(1),
	})
	if !errors.Is(err, models.ErrOrderRejected) {
		t.Fatalf("err = %v, want ErrOrderRejected", err)
	}
	if errors.Is(err, models.ErrNetwork) {
		t.Fatal("rejection must not be retryable")
	}
}

func TestServerErrorIsNetwork(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.OrderBook(context.Background(), "BTC-USDT-SWAP", 5)
	if !errors.Is(err, models.ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork", err)
	}
}

func TestNonJSONClientErrorKeepsStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, "not found")
	})

	_, err := c.OrderBook(context.Background(), "BTC-USDT-SWAP", 5)
	if err == nil || errors.Is(err, models.ErrNetwork) {
		t.Fatalf("err = %v, want a plain client error", err)
	}
	if !strings.Contains(err.Error(), "http 404") {
		t.Fatalf("err = %v", err)
	}
	if _, ok := err.(interface{ StackTrace() pkgerrors.StackTrace }); !ok {
		t.Fatalf("err %T carries no stack", err)
	}
}

func TestRateLimitCodeIsNetwork(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"code":"50011","msg":"Too Many Requests","data":[]}`)
	})

	_, err := c.Balance(context.Background(), "USDT")
	if !errors.Is(err, models.ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork", err)
	}
}

func TestOpenPositionNetShort(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"code":"0","data":[{"instId":"BTC-USDT-SWAP","pos":"-3","posSide":"net","avgPx":"100.5","lever":"5","cTime":"1700000000000"}]}`)
	})

	pos, err := c.OpenPosition(context.Background(), "BTC-USDT-SWAP")
	if err != nil {
		t.Fatal(err)
	}
	if pos == nil {
		t.Fatal("want position")
	}
	if pos.Side != models.SideShort || !pos.Size.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("pos = %+v", pos)
	}
	if !pos.EntryPrice.Equal(decimal.RequireFromString("100.5")) || !pos.Leverage.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("pos = %+v", pos)
	}
}

func TestOpenPositionFlat(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"code":"0","data":[{"instId":"BTC-USDT-SWAP","pos":"0","avgPx":""}]}`)
	})

	pos, err := c.OpenPosition(context.Background(), "BTC-USDT-SWAP")
	if err != nil || pos != nil {
		t.Fatalf("pos = %+v, err = %v", pos, err)
	}
}

func TestCancelAllBatches(t *testing.T) {
	var cancelled atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v5/trade/orders-pending":
			_, _ = io.WriteString(w, `{"code":"0","data":[{"instId":"BTC-USDT-SWAP","ordId":"1"},{"instId":"BTC-USDT-SWAP","ordId":"2"}]}`)
		case "/api/v5/trade/cancel-batch-orders":
			raw, _ := io.ReadAll(r.Body)
			cancelled.Add(int32(strings.Count(string(raw), "ordId")))
			_, _ = io.WriteString(w, `{"code":"0","data":[{"ordId":"1","sCode":"0"},{"ordId":"2","sCode":"51400"}]}`)
		case "/api/v5/trade/orders-algo-pending":
			_, _ = io.WriteString(w, `{"code":"0","data":[]}`)
		default:
			t.Errorf("unexpected %s", r.URL.Path)
		}
	})

	if err := c.CancelAll(context.Background(), "BTC-USDT-SWAP"); err != nil {
		t.Fatal(err)
	}
	if cancelled.Load() != 2 {
		t.Fatalf("cancelled = %d", cancelled.Load())
	}
}

func TestCancelAllCancelsAlgoOrders(t *testing.T) {
	var algoQuery string
	var body []map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v5/trade/orders-pending":
			_, _ = io.WriteString(w, `{"code":"0","data":[]}`)
		case "/api/v5/trade/orders-algo-pending":
			algoQuery = r.URL.Query().Get("ordType")
			_, _ = io.WriteString(w, `{"code":"0","data":[{"instId":"BTC-USDT-SWAP","algoId":"7"},{"instId":"BTC-USDT-SWAP","algoId":"8"}]}`)
		case "/api/v5/trade/cancel-algos":
			if r.Header.Get("OK-ACCESS-SIGN") == "" {
				t.Error("cancel-algos is not signed")
			}
			raw, _ := io.ReadAll(r.Body)
			_ = sonic.Unmarshal(raw, &body)
			_, _ = io.WriteString(w, `{"code":"0","data":[{"algoId":"7","sCode":"0"},{"algoId":"8","sCode":"51401"}]}`)
		default:
			t.Errorf("unexpected %s", r.URL.Path)
		}
	})

	if err := c.CancelAll(context.Background(), "BTC-USDT-SWAP"); err != nil {
		t.Fatal(err)
	}
	if algoQuery != "conditional,oco" {
		t.Fatalf("ordType = %q", algoQuery)
	}
	if len(body) != 2 || body[0]["algoId"] != "7" || body[1]["algoId"] != "8" || body[0]["instId"] != "BTC-USDT-SWAP" {
		t.Fatalf("cancel body = %v", body)
	}
}

func TestCancelAlgosFailsOnRejectedCancel(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v5/trade/orders-algo-pending":
			_, _ = io.WriteString(w, `{"code":"0","data":[{"instId":"BTC-USDT-SWAP","algoId":"7"}]}`)
		case "/api/v5/trade/cancel-algos":
			_, _ = io.WriteString(w, `{"code":"0","data":[{"algoId":"7","sCode":"51000","sMsg":"param error"}]}`)
		}
	})

	err := c.CancelAlgos(context.Background(), "BTC-USDT-SWAP")
	if err == nil || !strings.Contains(err.Error(), "sCode=51000") {
		t.Fatalf("err = %v", err)
	}
}

func TestRecentTradesKeepsTakerSide(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v5/market/trades" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = io.WriteString(w, `{"code":"0","data":[`+
			`{"instId":"BTC-USDT-SWAP","tradeId":"2","px":"101","sz":"3","side":"sell","ts":"1700000001000"},`+
			`{"instId":"BTC-USDT-SWAP","tradeId":"1","px":"100","sz":"1","side":"buy","ts":"1700000000000"}]}`)
	})

	trades, err := c.RecentTrades(context.Background(), "BTC-USDT-SWAP", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(trades) != 2 {
		t.Fatalf("len = %d", len(trades))
	}
	sides := map[string]string{}
	for _, tr := range trades {
		sides[tr.ID] = tr.Side
	}
	if sides["1"] != "buy" || sides["2"] != "sell" {
		t.Fatalf("sides = %v", sides)
	}
}

func TestInstrumentCached(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, `{"code":"0","data":[{"instId":"BTC-USDT-SWAP","tickSz":"0.1","lotSz":"0.01","minSz":"0.01","ctVal":"0.01","ctMult":"1","state":"live"}]}`)
	})

	for i := 0; i < 3; i++ {
		inst, err := c.Instrument(context.Background(), "BTC-USDT-SWAP")
		if err != nil {
			t.Fatal(err)
		}
		if !inst.CtVal.Equal(decimal.RequireFromString("0.01")) || !inst.TickSz.Equal(decimal.RequireFromString("0.1")) {
			t.Fatalf("inst = %+v", inst)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestPlaceProtectionOCO(t *testing.T) {
	var body map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v5/public/instruments":
			_, _ = io.WriteString(w, `{"code":"0","data":[{"instId":"BTC-USDT-SWAP","tickSz":"0.1","lotSz":"1","minSz":"1","ctVal":"0.01","state":"live"}]}`)
		case "/api/v5/trade/order-algo":
			raw, _ := io.ReadAll(r.Body)
			_ = sonic.Unmarshal(raw, &body)
			_, _ = io.WriteString(w, `{"code":"0","data":[{"algoId":"7","sCode":"0"}]}`)
		}
	})

	err := c.PlaceProtection(context.Background(), "BTC-USDT-SWAP", models.SideLong,
		decimal.NewFromInt(2), decimal.RequireFromString("98.04"), decimal.RequireFromString("104.07"))
	if err != nil {
		t.Fatal(err)
	}
	if body["ordType"] != "oco" || body["side"] != "sell" {
		t.Fatalf("body = %+v", body)
	}
	if body["slTriggerPx"] != "98" || body["tpTriggerPx"] != "104" {
		t.Fatalf("prices = %s / %s", body["slTriggerPx"], body["tpTriggerPx"])
	}
}
