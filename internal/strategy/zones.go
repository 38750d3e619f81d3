package strategy

import "perp_bot/internal/models"

const (
	DefaultZoneWindow    = 50
	DefaultZoneTolerance = 0.005
)

// Zone: попала ли последняя свеча в зону спроса/предложения.
type Zone struct {
	Demand bool
	Supply bool
}

// DetectZone смотрит на последние window свечей (включая текущую):
// спрос: low у минимума окна с допуском и объём выше среднего,
// предложение: high у максимума окна с допуском и объём выше среднего.
func DetectZone(candles []models.Candle, window int, tolerance float64) (Zone, bool) {
	if window <= 0 || len(candles) < window {
		return Zone{}, false
	}
	w := candles[len(candles)-window:]
	last := w[len(w)-1]

	lowMin, highMax, volSum := w[0].Low, w[0].High, 0.0
	for _, c := range w {
		if c.Low < lowMin {
			lowMin = c.Low
		}
		if c.High > highMax {
			highMax = c.High
		}
		volSum += c.Volume
	}
	heavy := last.Volume > volSum/float64(window)

	return Zone{
		Demand: heavy && last.Low <= lowMin*(1+tolerance),
		Supply: heavy && last.High >= highMax*(1-tolerance),
	}, true
}
