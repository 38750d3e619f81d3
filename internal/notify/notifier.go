// Package notify: исходящие уведомления оператору и подтверждение входа.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"perp_bot/internal/models"
	"perp_bot/pkg/logger"
)

type Notifier interface {
	Send(msg string)
	Sendf(format string, args ...any)
	// Confirm блокирует до ответа оператора, таймаута или отмены ctx.
	Confirm(ctx context.Context, prompt string, timeout time.Duration) bool
}

// Stdout пишет в лог и всегда подтверждает.
type Stdout struct {
	l *zap.Logger
}

func NewStdout() *Stdout {
	return &Stdout{l: logger.With(zap.String("component", "notify"))}
}

func (s *Stdout) Send(msg string) { s.l.Info(msg) }

func (s *Stdout) Sendf(format string, args ...any) { s.Send(fmt.Sprintf(format, args...)) }

func (s *Stdout) Confirm(_ context.Context, prompt string, _ time.Duration) bool {
	s.l.Info("confirm (auto-yes)", zap.String("prompt", prompt))
	return true
}

// FormatEvent: человекочитаемая строка торгового события.
func FormatEvent(ev models.TradeEvent) string {
	var b strings.Builder
	switch ev.Kind {
	case models.EventOpen:
		fmt.Fprintf(&b, "🟢 OPEN %s %s\nentry=%s size=%s",
			strings.ToUpper(ev.Side.String()), ev.Symbol, ev.EntryPrice, ev.Size)
	case models.EventClose:
		emoji := "✅"
		if ev.PnLPct.IsNegative() {
			emoji = "🔻"
		}
		fmt.Fprintf(&b, "%s CLOSE %s %s\nentry=%s exit=%s size=%s\nPNL %s%% (%s)",
			emoji, strings.ToUpper(ev.Side.String()), ev.Symbol,
			ev.EntryPrice, ev.ExitPrice, ev.Size,
			ev.PnLPct.StringFixed(2), ev.PnLQuote.StringFixed(4))
	case models.EventKill:
		fmt.Fprintf(&b, "🚨 KILL SWITCH FAILED %s %s size=%s\nручное закрытие!",
			strings.ToUpper(ev.Side.String()), ev.Symbol, ev.Size)
	default:
		fmt.Fprintf(&b, "%s %s", ev.Kind, ev.Symbol)
	}
	if ev.Reason != "" {
		fmt.Fprintf(&b, "\nпричина: %s", ev.Reason)
	}
	return b.String()
}
