// Package position держит единственную открытую позицию по инструменту
// и считает PNL и размер входа.
package position

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"perp_bot/internal/models"
)

// Tracker: владелец позиции. Принадлежит контуру управления,
// мьютекс нужен только для чтения из health/telegram.
type Tracker struct {
	mu     sync.RWMutex
	symbol string
	pos    *models.Position
	now    func() time.Time
}

func NewTracker(symbol string) *Tracker {
	return &Tracker{symbol: symbol, now: time.Now}
}

// Open фиксирует новую позицию. Повторное открытие: ErrInvalidState.
func (t *Tracker) Open(side models.Side, entry, size, leverage decimal.Decimal) (models.Position, error) {
	if side == models.SideNone {
		return models.Position{}, errors.Wrap(models.ErrInvalidState, "open with side none")
	}
	if !entry.IsPositive() || !size.IsPositive() || !leverage.IsPositive() {
		return models.Position{}, errors.Wrapf(models.ErrInvalidState,
			"open %s: entry=%s size=%s lev=%s must be positive", side, entry, size, leverage)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pos != nil {
		return models.Position{}, errors.Wrapf(models.ErrInvalidState,
			"open %s: %s position already open", side, t.pos.Side)
	}
	t.pos = &models.Position{
		Symbol:     t.symbol,
		Side:       side,
		EntryPrice: entry,
		Size:       size,
		Leverage:   leverage,
		OpenedAt:   t.now(),
	}
	return *t.pos, nil
}

// Current: копия открытой позиции или nil.
func (t *Tracker) Current() *models.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.pos == nil {
		return nil
	}
	p := *t.pos
	return &p
}

// Close сбрасывает позицию и возвращает закрытый снимок.
func (t *Tracker) Close() (models.Position, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pos == nil {
		return models.Position{}, errors.Wrap(models.ErrInvalidState, "close: no open position")
	}
	p := *t.pos
	t.pos = nil
	return p, nil
}
