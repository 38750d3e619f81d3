package bootstrap

import (
	"go.uber.org/fx"

	"perp_bot/internal/exchange"
	"perp_bot/internal/history"
	bootstrap "perp_bot/internal/modules/bootstrap/service"
	"perp_bot/internal/modules/config"
	"perp_bot/internal/notify"
)

func NewWarmuper(cfg *config.Config, ex exchange.Exchange, store *history.Store, s *history.Sampler, n notify.Notifier) *bootstrap.Warmuper {
	return bootstrap.NewWarmuper(ex, store, s, n, bootstrap.Config{
		Symbol:     cfg.Trading.Symbol,
		Timeframe:  cfg.Market.Timeframe,
		Candles:    cfg.Market.Candles,
		Indicators: cfg.IndicatorParams(),
	})
}

// Module даёт *bootstrap.Warmuper; вызывает его раннер на старте.
func Module() fx.Option {
	return fx.Module("bootstrap",
		fx.Provide(
			NewWarmuper, // -> *bootstrap.Warmuper
		),
	)
}
