package service

import (
	"context"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"perp_bot/internal/models"
)

type instrumentRow struct {
	InstID string `json:"instId"`
	TickSz string `json:"tickSz"`
	LotSz  string `json:"lotSz"`
	MinSz  string `json:"minSz"`
	CtVal  string `json:"ctVal"`
	CtMult string `json:"ctMult"`
	State  string `json:"state"`
}

// Instrument: /api/v5/public/instruments; ответ кэшируется на процесс.
func (c *Client) Instrument(ctx context.Context, symbol string) (models.Instrument, error) {
	c.mu.RLock()
	inst, ok := c.insts[symbol]
	c.mu.RUnlock()
	if ok {
		return inst, nil
	}

	q := url.Values{}
	q.Set("instType", "SWAP")
	q.Set("instId", symbol)

	rows, err := call[instrumentRow](ctx, c, request{
		op: "instruments", method: http.MethodGet, path: "/api/v5/public/instruments",
		query: q, reject: models.ErrDataUnavailable,
	})
	if err != nil {
		return models.Instrument{}, err
	}
	if len(rows) == 0 {
		return models.Instrument{}, errors.Wrapf(models.ErrDataUnavailable, "instrument %s not found", symbol)
	}
	r := rows[0]
	if r.State != "" && r.State != "live" {
		return models.Instrument{}, errors.Errorf("instrument %s not live: state=%s", symbol, r.State)
	}

	parsePos := func(name, s string) (decimal.Decimal, error) {
		v, err := decimal.NewFromString(s)
		if err != nil || !v.IsPositive() {
			return decimal.Zero, errors.Errorf("instrument %s: %s=%q", symbol, name, s)
		}
		return v, nil
	}

	tick, err := parsePos("tickSz", r.TickSz)
	if err != nil {
		return models.Instrument{}, err
	}
	lot, err := parsePos("lotSz", r.LotSz)
	if err != nil {
		return models.Instrument{}, err
	}
	minSz, err := parsePos("minSz", r.MinSz)
	if err != nil {
		return models.Instrument{}, err
	}
	ctVal, err := parsePos("ctVal", r.CtVal)
	if err != nil {
		return models.Instrument{}, err
	}
	if mult, err := decimal.NewFromString(r.CtMult); err == nil && mult.IsPositive() {
		ctVal = ctVal.Mul(mult)
	}

	inst = models.Instrument{InstID: r.InstID, TickSz: tick, LotSz: lot, MinSz: minSz, CtVal: ctVal}
	c.mu.Lock()
	c.insts[symbol] = inst
	c.mu.Unlock()
	return inst, nil
}
