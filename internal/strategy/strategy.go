package strategy

import (
	"fmt"
	"strings"
	"time"

	"perp_bot/internal/models"
)

// ExitPolicy: какие правила выхода включены.
type ExitPolicy string

const (
	ExitIndicator ExitPolicy = "indicator"
	ExitTarget    ExitPolicy = "target"
	ExitBoth      ExitPolicy = "both"
)

func (p ExitPolicy) Valid() bool {
	switch p {
	case ExitIndicator, ExitTarget, ExitBoth:
		return true
	}
	return false
}

// Config: пороги оценщиков входа и выхода.
type Config struct {
	EntryRatio    float64 // дисбаланс дельт для входа, 1.5
	RSIOverbought float64 // лонг только ниже, 70
	RSIOversold   float64 // шорт только выше, 30
	VolumeConfirm bool    // средний объём стороны входа должен преобладать
	ZoneFilter    bool    // не входить в лонг у зоны предложения и в шорт у зоны спроса

	ExitPolicy    ExitPolicy
	ExitRatio     float64 // разворот дельт, 2.5
	ExitRSILong   float64 // закрыть лонг выше, 75
	ExitRSIShort  float64 // закрыть шорт ниже, 25
	ExitDebounce  int     // сколько подряд сэмплов разворота нужно, >= 1
	TakeProfitPct float64 // 0: выключено
	StopLossPct   float64 // 0: выключено
}

func DefaultConfig() Config {
	return Config{
		EntryRatio:    1.5,
		RSIOverbought: 70,
		RSIOversold:   30,
		ExitPolicy:    ExitBoth,
		ExitRatio:     2.5,
		ExitRSILong:   75,
		ExitRSIShort:  25,
		ExitDebounce:  2,
	}
}

// Input: всё, что видит оценщик на тике.
type Input struct {
	Ind    models.Indicators
	Deltas *models.Deltas // nil: меньше двух свежих снимков стакана
	// время последнего снимка; дебаунс выхода считает только новые снимки
	SampleTime time.Time

	// средние объёмы top-N по истории снимков
	AskVolAvg float64
	BidVolAvg float64
	HasVolAvg bool

	Zone Zone
}

// Signal: решение оценщика.
type Signal struct {
	Side   models.Side
	Reason string
}

// Dump: короткая строка индикаторов для логов и уведомлений.
func Dump(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "px=%.4f", in.Ind.Price)
	opt := func(name string, v *float64) {
		if v == nil {
			fmt.Fprintf(&b, " %s=n/a", name)
			return
		}
		fmt.Fprintf(&b, " %s=%.4f", name, *v)
	}
	opt("sma", in.Ind.SMA)
	opt("rsi", in.Ind.RSI)
	opt("bbL", in.Ind.BBLower)
	opt("bbU", in.Ind.BBUpper)
	opt("atr", in.Ind.ATR)
	if in.Deltas != nil {
		fmt.Fprintf(&b, " dAsk=%.4f dBid=%.4f", in.Deltas.Ask, in.Deltas.Bid)
	}
	if in.Zone.Demand {
		b.WriteString(" zone=demand")
	}
	if in.Zone.Supply {
		b.WriteString(" zone=supply")
	}
	return b.String()
}
