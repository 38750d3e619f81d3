package runner

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc"
	"go.uber.org/fx"

	"perp_bot/internal/exchange"
	"perp_bot/internal/history"
	"perp_bot/internal/metrics"
	bootstrap "perp_bot/internal/modules/bootstrap/service"
	"perp_bot/internal/modules/config"
	health "perp_bot/internal/modules/health/service"
	journal "perp_bot/internal/modules/journal/service"
	ws "perp_bot/internal/modules/okx_websocket/service"
	"perp_bot/internal/notify"
	"perp_bot/pkg/logger"
)

func NewStore(cfg *config.Config) *history.Store {
	return history.NewStore(cfg.Market.Candles, cfg.Sampler.BookHistory)
}

// NewSampler: стакан берём из websocket-стрима или REST.
func NewSampler(cfg *config.Config, ex exchange.Exchange, stream *ws.Stream, store *history.Store, m *metrics.Metrics) *history.Sampler {
	var src history.BookSource = ex
	if cfg.Sampler.Source == config.SourceWS {
		src = stream
	}
	return history.NewSampler(src, store, m, cfg.Trading.Symbol, cfg.Sampler.BookDepth, cfg.Sampler.Schedule)
}

func NewConfig(cfg *config.Config) Config {
	return Config{
		Symbol:          cfg.Trading.Symbol,
		Timeframe:       cfg.Market.Timeframe,
		Candles:         cfg.Market.Candles,
		QuoteAsset:      cfg.Market.QuoteAsset,
		Leverage:        decimal.NewFromFloat(cfg.Trading.Leverage),
		RiskPerTrade:    decimal.NewFromFloat(cfg.Trading.RiskPerTrade),
		PollInterval:    cfg.Trading.PollInterval,
		BookMaxAge:      cfg.Sampler.MaxAge,
		Indicators:      cfg.IndicatorParams(),
		Strategy:        cfg.StrategyConfig(),
		ZoneWindow:      cfg.Strategy.ZoneWindow,
		ZoneTolerance:   cfg.Strategy.ZoneTolerance,
		KillSwitch:      cfg.KillSwitch,
		ConfirmRequired: cfg.Telegram.ConfirmRequired,
		ConfirmTimeout:  cfg.Telegram.ConfirmTimeout,
	}
}

func NewRunner(
	cfg Config,
	ex exchange.Exchange,
	store *history.Store,
	n notify.Notifier,
	sink journal.Sink,
	m *metrics.Metrics,
	state *health.State,
) *Runner {
	return New(cfg, Deps{
		Exchange: ex,
		Store:    store,
		Notifier: n,
		Journal:  sink,
		Metrics:  m,
		Health:   state,
	})
}

func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(
			NewConfig,
			NewStore,
			NewSampler,
			NewRunner, // *Runner
		),
		fx.Invoke(func(
			lc fx.Lifecycle,
			cfg *config.Config,
			r *Runner,
			s *history.Sampler,
			stream *ws.Stream,
			wu *bootstrap.Warmuper,
		) {
			var (
				cancel context.CancelFunc
				wg     conc.WaitGroup
			)
			lc.Append(fx.Hook{
				OnStart: func(startCtx context.Context) error {
					if err := r.Reconcile(startCtx); err != nil {
						// сверимся на первом тике
						logger.Warn("[RUNNER] startup reconcile: %v", err)
						r.reconcile.Store(true)
					}

					var ctx context.Context
					ctx, cancel = context.WithCancel(context.Background())
					// в ws-режиме стакана ещё нет, история доберётся сэмплером
					_ = wu.Warmup(startCtx)
					if cfg.Sampler.Source == config.SourceWS {
						wg.Go(func() { stream.Run(ctx) })
					}
					if err := s.Start(ctx); err != nil {
						cancel()
						return err
					}
					wg.Go(func() { r.Run(ctx) })
					return nil
				},
				OnStop: func(stopCtx context.Context) error {
					if cancel != nil {
						cancel()
					}
					if err := s.Stop(stopCtx); err != nil {
						logger.Warn("[RUNNER] sampler stop: %v", err)
					}

					// текущий тик (и kill switch) доводим до конца
					done := make(chan struct{})
					go func() {
						wg.Wait()
						close(done)
					}()
					select {
					case <-done:
						logger.Info("[RUNNER] stopped")
						return nil
					case <-stopCtx.Done():
						return stopCtx.Err()
					}
				},
			})
		}),
	)
}
