package okx_websocket

import (
	"go.uber.org/fx"

	"perp_bot/internal/metrics"
	"perp_bot/internal/modules/config"
	health "perp_bot/internal/modules/health/service"
	"perp_bot/internal/modules/okx_websocket/service"
)

// NewStream: стример books5; запускается раннером только при sampler.source=ws.
func NewStream(cfg *config.Config, m *metrics.Metrics, state *health.State) *service.Stream {
	return service.NewStream(service.Config{
		URL:    cfg.OKX.WSURL,
		Symbol: cfg.Trading.Symbol,
	}, m, state)
}

func Module() fx.Option {
	return fx.Module("okx_websocket",
		fx.Provide(
			NewStream,
		),
	)
}
