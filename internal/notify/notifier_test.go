package notify

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"perp_bot/internal/models"
)

func TestFormatEventClose(t *testing.T) {
	ev := models.TradeEvent{
		Kind:       models.EventClose,
		Symbol:     "BTC-USDT-SWAP",
		Side:       models.SideLong,
		EntryPrice: decimal.NewFromInt(100),
		ExitPrice:  decimal.NewFromInt(98),
		Size:       decimal.NewFromInt(2),
		PnLPct:     decimal.NewFromInt(-10),
		PnLQuote:   decimal.NewFromInt(-4),
		Reason:     "stop-loss",
	}
	got := FormatEvent(ev)
	for _, want := range []string{"🔻", "LONG", "exit=98", "PNL -10.00%", "stop-loss"} {
		if !strings.Contains(got, want) {
			t.Fatalf("%q missing in %q", want, got)
		}
	}
}

func TestFormatEventKill(t *testing.T) {
	got := FormatEvent(models.TradeEvent{Kind: models.EventKill, Symbol: "X", Side: models.SideShort, Size: decimal.NewFromInt(1)})
	if !strings.Contains(got, "KILL SWITCH FAILED") || !strings.Contains(got, "SHORT") {
		t.Fatalf("got %q", got)
	}
}

func TestStdoutConfirmsAlways(t *testing.T) {
	n := NewStdout()
	n.Sendf("hello %d", 1)
	if !n.Confirm(context.Background(), "enter?", time.Millisecond) {
		t.Fatal("stdout confirm must be true")
	}
}
