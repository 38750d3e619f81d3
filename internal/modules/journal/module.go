package journal

import (
	"context"

	"go.uber.org/fx"

	"perp_bot/internal/modules/config"
	"perp_bot/internal/modules/journal/service"
	"perp_bot/pkg/db"
)

// NewSink собирает журнал сделок: файл всегда, postgres если включён.
func NewSink(lc fx.Lifecycle, cfg *config.Config, tx *db.PgTxManager) service.Sink {
	file := service.NewFile(cfg.Journal.File)
	sinks := []service.Sink{file}

	var pg *service.Postgres
	if tx != nil {
		pg = service.NewPostgres(tx)
		sinks = append(sinks, pg)
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if pg == nil {
				return nil
			}
			return pg.EnsureSchema(ctx)
		},
		OnStop: func(context.Context) error {
			return file.Close()
		},
	})

	return service.Multi(sinks)
}

func Module() fx.Option {
	return fx.Module("journal",
		fx.Provide(
			NewSink,
		),
	)
}
