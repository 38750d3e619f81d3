package postgres

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"

	"perp_bot/internal/modules/config"
	"perp_bot/pkg/db"
)

// Module даёт *db.PgTxManager. Без journal.postgres отдаёт nil, пул не создаётся.
func Module() fx.Option {
	return fx.Module("postgres",
		fx.Provide(
			func(lc fx.Lifecycle, cfg *config.Config) (*db.PgTxManager, error) {
				if !cfg.Journal.Postgres {
					return nil, nil
				}

				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				poolMaster, err := db.NewPool(ctx, db.PoolConfig{
					DSN:      cfg.DB,
					MaxConns: 4,
				})
				if err != nil {
					return nil, fmt.Errorf("failed to create poolMaster: %w", err)
				}

				if err = poolMaster.Ping(ctx); err != nil {
					poolMaster.Close()
					return nil, fmt.Errorf("ping postgres: %w", err)
				}

				tm := db.NewPgTxManager(poolMaster)
				lc.Append(fx.Hook{
					OnStop: func(context.Context) error {
						tm.Close()
						return nil
					},
				})
				return tm, nil
			},
		),
	)
}
