package service

import (
	"context"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"perp_bot/internal/helper"
	"perp_bot/internal/models"
)

type pendingAlgo struct {
	InstID string `json:"instId"`
	AlgoID string `json:"algoId"`
}

type algoAck struct {
	AlgoID string `json:"algoId"`
	SCode  string `json:"sCode"`
	SMsg   string `json:"sMsg"`
}

// PlaceProtection ставит SL и/или TP одним algo-ордером (oco или conditional)
// на закрытие позиции по рынку. Нулевой уровень пропускается.
func (c *Client) PlaceProtection(ctx context.Context, symbol string, side models.Side, size, sl, tp decimal.Decimal) error {
	if !sl.IsPositive() && !tp.IsPositive() {
		return nil
	}
	if side == models.SideNone {
		return errors.Wrap(models.ErrInvalidState, "protection: side none")
	}
	if !size.IsPositive() {
		return errors.Wrap(models.ErrOrderRejected, "protection: size <= 0")
	}

	inst, err := c.Instrument(ctx, symbol)
	if err != nil {
		return err
	}

	// закрывающая сторона
	body := map[string]string{
		"instId":     symbol,
		"tdMode":     c.tdMode,
		"side":       side.Opposite().OrderSide(),
		"ordType":    "conditional",
		"sz":         size.String(),
		"reduceOnly": "true",
	}
	if sl.IsPositive() {
		body["slTriggerPx"] = helper.RoundDownToStep(sl, inst.TickSz).String()
		body["slOrdPx"] = "-1"
		body["slTriggerPxType"] = "last"
	}
	if tp.IsPositive() {
		body["tpTriggerPx"] = helper.RoundDownToStep(tp, inst.TickSz).String()
		body["tpOrdPx"] = "-1"
		body["tpTriggerPxType"] = "last"
	}
	if sl.IsPositive() && tp.IsPositive() {
		body["ordType"] = "oco"
	}

	acks, err := call[algoAck](ctx, c, request{
		op: "order-algo", method: http.MethodPost, path: "/api/v5/trade/order-algo",
		body: body, private: true, reject: models.ErrOrderRejected,
	})
	if err != nil {
		return err
	}
	if len(acks) == 0 || acks[0].AlgoID == "" {
		return errors.Wrap(models.ErrOrderRejected, "order-algo: empty algoId")
	}
	if acks[0].SCode != "" && acks[0].SCode != "0" {
		return errors.Wrapf(models.ErrOrderRejected, "order-algo: sCode=%s sMsg=%s", acks[0].SCode, acks[0].SMsg)
	}
	return nil
}

// CancelAlgos снимает висящие SL/TP (conditional и oco) инструмента
// пачками по 10. Уже сработавшие или снятые пропускаются.
func (c *Client) CancelAlgos(ctx context.Context, symbol string) error {
	q := url.Values{}
	q.Set("instType", "SWAP")
	q.Set("instId", symbol)
	q.Set("ordType", "conditional,oco")

	pending, err := call[pendingAlgo](ctx, c, request{
		op: "orders-algo-pending", method: http.MethodGet, path: "/api/v5/trade/orders-algo-pending",
		query: q, private: true,
	})
	if err != nil {
		return err
	}

	const batch = 10
	for start := 0; start < len(pending); start += batch {
		end := min(start+batch, len(pending))
		body := make([]map[string]string, 0, end-start)
		for _, a := range pending[start:end] {
			body = append(body, map[string]string{"instId": a.InstID, "algoId": a.AlgoID})
		}
		acks, err := call[algoAck](ctx, c, request{
			op: "cancel-algos", method: http.MethodPost, path: "/api/v5/trade/cancel-algos",
			body: body, private: true,
		})
		if err != nil {
			return err
		}
		for _, a := range acks {
			if a.SCode != "" && a.SCode != "0" && !algoGone(a.SCode) {
				return errors.Errorf("cancel algo %s: sCode=%s sMsg=%s", a.AlgoID, a.SCode, a.SMsg)
			}
		}
	}
	return nil
}

// 51400/51401 на algo: уже отменён или сработал
func algoGone(code string) bool {
	return code == "51400" || code == "51401"
}
