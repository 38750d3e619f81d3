package service

import (
	"context"

	"perp_bot/internal/models"
	"perp_bot/pkg/logger"
)

// Sink: журнал торговых событий, только дозапись.
type Sink interface {
	Append(ctx context.Context, ev models.TradeEvent) error
}

// Multi пишет во все журналы; ошибка одного не мешает остальным.
type Multi []Sink

func (m Multi) Append(ctx context.Context, ev models.TradeEvent) error {
	var first error
	for _, s := range m {
		if err := s.Append(ctx, ev); err != nil {
			logger.Error("[JOURNAL] %s %s: %v", ev.Kind, ev.Symbol, err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}
