package service

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"perp_bot/internal/models"
)

type orderAck struct {
	OrdID   string `json:"ordId"`
	ClOrdID string `json:"clOrdId"`
	SCode   string `json:"sCode"`
	SMsg    string `json:"sMsg"`
}

type pendingOrder struct {
	InstID string `json:"instId"`
	OrdID  string `json:"ordId"`
}

type positionRow struct {
	InstID  string `json:"instId"`
	Pos     string `json:"pos"`
	PosSide string `json:"posSide"`
	AvgPx   string `json:"avgPx"`
	Lever   string `json:"lever"`
	CTime   string `json:"cTime"`
}

type balanceRow struct {
	Details []struct {
		Ccy      string `json:"ccy"`
		AvailBal string `json:"availBal"`
		AvailEq  string `json:"availEq"`
		Eq       string `json:"eq"`
	} `json:"details"`
}

// PlaceOrder: /api/v5/trade/order, режим net (без posSide).
func (c *Client) PlaceOrder(ctx context.Context, req models.OrderRequest) (string, error) {
	if req.Side == models.SideNone {
		return "", errors.Wrap(models.ErrOrderRejected, "order: side none")
	}
	if !req.Size.IsPositive() {
		return "", errors.Wrapf(models.ErrOrderRejected, "order: size %s", req.Size)
	}

	body := map[string]string{
		"instId":  req.Symbol,
		"tdMode":  c.tdMode,
		"side":    req.Side.OrderSide(),
		"ordType": string(req.Kind),
		"sz":      req.Size.String(),
	}
	if req.Kind == models.OrderLimit {
		if !req.Price.IsPositive() {
			return "", errors.Wrapf(models.ErrOrderRejected, "order: limit price %s", req.Price)
		}
		body["px"] = req.Price.String()
	}
	if req.ReduceOnly {
		body["reduceOnly"] = "true"
	}
	if req.ClientID != "" {
		body["clOrdId"] = req.ClientID
	}

	acks, err := call[orderAck](ctx, c, request{
		op: "order", method: http.MethodPost, path: "/api/v5/trade/order",
		body: body, private: true, reject: models.ErrOrderRejected,
	})
	if err != nil {
		return "", err
	}
	if len(acks) == 0 {
		return "", errors.Wrap(models.ErrOrderRejected, "order: empty ack")
	}
	if acks[0].SCode != "" && acks[0].SCode != "0" {
		return "", errors.Wrapf(models.ErrOrderRejected, "order: sCode=%s sMsg=%s", acks[0].SCode, acks[0].SMsg)
	}
	return acks[0].OrdID, nil
}

// CancelAll снимает все висящие ордера инструмента пачками по 20,
// затем его algo-ордера.
func (c *Client) CancelAll(ctx context.Context, symbol string) error {
	q := url.Values{}
	q.Set("instType", "SWAP")
	q.Set("instId", symbol)

	pending, err := call[pendingOrder](ctx, c, request{
		op: "orders-pending", method: http.MethodGet, path: "/api/v5/trade/orders-pending",
		query: q, private: true,
	})
	if err != nil {
		return err
	}

	const batch = 20
	for start := 0; start < len(pending); start += batch {
		end := min(start+batch, len(pending))
		body := make([]map[string]string, 0, end-start)
		for _, o := range pending[start:end] {
			body = append(body, map[string]string{"instId": o.InstID, "ordId": o.OrdID})
		}
		acks, err := call[orderAck](ctx, c, request{
			op: "cancel-batch-orders", method: http.MethodPost, path: "/api/v5/trade/cancel-batch-orders",
			body: body, private: true,
		})
		if err != nil {
			return err
		}
		for _, a := range acks {
			// 51400/51401: уже исполнен или снят
			if a.SCode != "0" && a.SCode != "51400" && a.SCode != "51401" {
				return errors.Errorf("cancel %s: sCode=%s sMsg=%s", a.OrdID, a.SCode, a.SMsg)
			}
		}
	}
	// защитные SL/TP живут отдельно от обычных ордеров
	return c.CancelAlgos(ctx, symbol)
}

// OpenPosition: nil, если позиции нет. Знак pos в net-режиме задаёт сторону.
func (c *Client) OpenPosition(ctx context.Context, symbol string) (*models.Position, error) {
	q := url.Values{}
	q.Set("instType", "SWAP")
	q.Set("instId", symbol)

	rows, err := call[positionRow](ctx, c, request{
		op: "positions", method: http.MethodGet, path: "/api/v5/account/positions",
		query: q, private: true,
	})
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		if r.InstID != symbol {
			continue
		}
		pos, perr := decimal.NewFromString(r.Pos)
		if perr != nil || pos.IsZero() {
			continue
		}
		side := models.SideLong
		switch {
		case r.PosSide == "short", r.PosSide != "long" && pos.IsNegative():
			side = models.SideShort
		}
		entry, _ := decimal.NewFromString(r.AvgPx)
		lev, _ := decimal.NewFromString(r.Lever)
		opened := parseMillis(r.CTime)
		if opened.IsZero() {
			opened = time.Now()
		}
		return &models.Position{
			Symbol:     symbol,
			Side:       side,
			EntryPrice: entry,
			Size:       pos.Abs(),
			Leverage:   lev,
			OpenedAt:   opened,
		}, nil
	}
	return nil, nil
}

// Balance: доступный эквити по валюте (availEq, иначе availBal).
func (c *Client) Balance(ctx context.Context, asset string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("ccy", asset)

	rows, err := call[balanceRow](ctx, c, request{
		op: "balance", method: http.MethodGet, path: "/api/v5/account/balance",
		query: q, private: true,
	})
	if err != nil {
		return decimal.Zero, err
	}
	for _, r := range rows {
		for _, d := range r.Details {
			if d.Ccy != asset {
				continue
			}
			for _, s := range []string{d.AvailEq, d.AvailBal, d.Eq} {
				if v, err := decimal.NewFromString(s); err == nil {
					return v, nil
				}
			}
		}
	}
	return decimal.Zero, errors.Wrapf(models.ErrDataUnavailable, "balance %s: not found", asset)
}

// SetLeverage выставляет плечо на инструмент до первой сделки.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage decimal.Decimal) error {
	body := map[string]string{
		"instId":  symbol,
		"lever":   leverage.String(),
		"mgnMode": c.tdMode,
	}
	_, err := call[map[string]string](ctx, c, request{
		op: "set-leverage", method: http.MethodPost, path: "/api/v5/account/set-leverage",
		body: body, private: true,
	})
	return err
}
