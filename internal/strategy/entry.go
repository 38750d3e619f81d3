package strategy

import "perp_bot/internal/models"

// Entry: оценщик входа. Состояния нет: одинаковый вход даёт одинаковый ответ.
type Entry struct {
	cfg Config
}

func NewEntry(cfg Config) *Entry { return &Entry{cfg: cfg} }

// Evaluate проверяет сначала лонг, потом шорт: при совпадении побеждает лонг.
func (e *Entry) Evaluate(in Input) Signal {
	ind := in.Ind
	if !ind.Ready() || in.Deltas == nil {
		return Signal{Side: models.SideNone, Reason: "insufficient data"}
	}
	price, sma, rsi := ind.Price, *ind.SMA, *ind.RSI
	d := *in.Deltas

	long := d.Bid > d.Ask*e.cfg.EntryRatio &&
		price > sma &&
		rsi < e.cfg.RSIOverbought &&
		price < *ind.BBUpper
	if long && e.cfg.VolumeConfirm {
		long = in.HasVolAvg && in.BidVolAvg > in.AskVolAvg
	}
	if long && e.cfg.ZoneFilter && in.Zone.Supply {
		return Signal{Side: models.SideNone, Reason: "long blocked by supply zone"}
	}
	if long {
		return Signal{Side: models.SideLong, Reason: "bid pressure above sma"}
	}

	short := d.Ask > d.Bid*e.cfg.EntryRatio &&
		price < sma &&
		rsi > e.cfg.RSIOversold &&
		price > *ind.BBLower
	if short && e.cfg.VolumeConfirm {
		short = in.HasVolAvg && in.AskVolAvg > in.BidVolAvg
	}
	if short && e.cfg.ZoneFilter && in.Zone.Demand {
		return Signal{Side: models.SideNone, Reason: "short blocked by demand zone"}
	}
	if short {
		return Signal{Side: models.SideShort, Reason: "ask pressure below sma"}
	}
	return Signal{Side: models.SideNone}
}
