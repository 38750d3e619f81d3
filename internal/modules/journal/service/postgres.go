package service

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"perp_bot/internal/models"
	"perp_bot/pkg/db"
)

const createTradeEvents = `
CREATE TABLE IF NOT EXISTS trade_events (
	id          BIGSERIAL PRIMARY KEY,
	ts          TIMESTAMPTZ NOT NULL,
	kind        TEXT        NOT NULL,
	symbol      TEXT        NOT NULL,
	side        TEXT        NOT NULL,
	entry_price NUMERIC     NOT NULL,
	exit_price  NUMERIC     NOT NULL,
	size        NUMERIC     NOT NULL,
	pnl_pct     NUMERIC     NOT NULL,
	pnl_quote   NUMERIC     NOT NULL,
	reason      TEXT        NOT NULL DEFAULT ''
)`

const insertTradeEvent = `
INSERT INTO trade_events (ts, kind, symbol, side, entry_price, exit_price, size, pnl_pct, pnl_quote, reason)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

// Postgres: журнал в таблице trade_events.
type Postgres struct {
	tx *db.PgTxManager
}

func NewPostgres(tx *db.PgTxManager) *Postgres {
	return &Postgres{tx: tx}
}

// EnsureSchema создаёт таблицу, если её нет.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.tx.Conn().Exec(ctx, createTradeEvents)
	return errors.Wrap(err, "create trade_events")
}

func (p *Postgres) Append(ctx context.Context, ev models.TradeEvent) error {
	return p.tx.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, insertTradeEvent,
			ev.Time, string(ev.Kind), ev.Symbol, ev.Side.String(),
			ev.EntryPrice.String(), ev.ExitPrice.String(), ev.Size.String(),
			ev.PnLPct.String(), ev.PnLQuote.String(), ev.Reason,
		)
		return errors.Wrap(err, "insert trade event")
	})
}
