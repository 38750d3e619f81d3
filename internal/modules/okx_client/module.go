package okx_client

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"

	"perp_bot/internal/exchange"
	"perp_bot/internal/metrics"
	"perp_bot/internal/modules/config"
	"perp_bot/internal/modules/okx_client/service"
	"perp_bot/pkg/logger"
)

func NewClient(cfg *config.Config) *service.Client {
	return service.NewClient(service.Config{
		APIKey:     cfg.OKX.APIKey,
		APISecret:  cfg.OKX.APISecret,
		Passphrase: cfg.OKX.Passphrase,
		BaseURL:    cfg.OKX.BaseURL,
		MarginMode: cfg.OKX.MarginMode,
	})
}

// NewExchange: в paper-режиме данные с OKX, исполнение в памяти.
// В обоих режимах вызовы идут через retry и circuit breaker.
func NewExchange(lc fx.Lifecycle, cfg *config.Config, c *service.Client, m *metrics.Metrics) exchange.Exchange {
	var ex exchange.Exchange = c
	if cfg.OKX.Paper {
		paper := exchange.NewPaper(
			c,
			decimal.NewFromFloat(cfg.OKX.PaperBalance),
			decimal.NewFromFloat(cfg.Trading.Leverage),
		)
		logger.Info("[OKX] paper trading: %s", paper)
		ex = paper
	} else {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				lev := decimal.NewFromFloat(cfg.Trading.Leverage)
				if err := c.SetLeverage(ctx, cfg.Trading.Symbol, lev); err != nil {
					logger.Warn("[OKX] set leverage %s x%s: %v", cfg.Trading.Symbol, lev, err)
				}
				return nil
			},
		})
	}
	return exchange.NewResilient(ex, cfg.Retry, cfg.Breaker, m)
}

func Module() fx.Option {
	return fx.Module("okx_client",
		fx.Provide(
			NewClient,
			NewExchange,
		),
	)
}
