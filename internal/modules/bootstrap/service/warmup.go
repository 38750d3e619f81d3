package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/sourcegraph/conc"

	"perp_bot/internal/exchange"
	"perp_bot/internal/history"
	"perp_bot/internal/indicator"
	"perp_bot/internal/notify"
	"perp_bot/pkg/logger"
)

type Config struct {
	Symbol     string
	Timeframe  string
	Candles    int
	Indicators indicator.Params
}

// Warmuper до первого тика заполняет историю: свечи и первый снимок стакана,
// чтобы дельты появились уже на следующем сэмпле.
type Warmuper struct {
	md      exchange.MarketData
	store   *history.Store
	sampler *history.Sampler
	n       notify.Notifier
	cfg     Config
}

func NewWarmuper(md exchange.MarketData, store *history.Store, sampler *history.Sampler, n notify.Notifier, cfg Config) *Warmuper {
	return &Warmuper{md: md, store: store, sampler: sampler, n: n, cfg: cfg}
}

// Warmup: свечи и стакан тянутся параллельно, первая ошибка возвращается.
// Ошибка не фатальна, контур догонит историю сам.
func (w *Warmuper) Warmup(ctx context.Context) error {
	var (
		wg       conc.WaitGroup
		mu       sync.Mutex
		firstErr error
		candles  int
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	wg.Go(func() {
		cs, err := w.md.Candles(ctx, w.cfg.Symbol, w.cfg.Timeframe, w.cfg.Candles)
		if err != nil {
			fail(errors.Wrapf(err, "warmup candles %s %s", w.cfg.Symbol, w.cfg.Timeframe))
			return
		}
		w.store.SetCandles(cs)
		candles = len(cs)
	})
	wg.Go(func() {
		if err := w.sampler.SampleOnce(ctx); err != nil {
			fail(errors.Wrap(err, "warmup book"))
		}
	})
	wg.Wait()

	if firstErr != nil {
		logger.Warn("[BOOT] warmup %s: %v", w.cfg.Symbol, firstErr)
		w.n.Send(fmt.Sprintf("⚠️ [%s] прогрев с ошибкой: %v", w.cfg.Symbol, firstErr))
		return firstErr
	}

	ind := indicator.Compute(w.store.Closes(), w.store.Candles.Snapshot(), w.cfg.Indicators)
	logger.Info("[BOOT] warmup %s: candles=%d books=%d ready=%t",
		w.cfg.Symbol, candles, w.store.Books.Len(), ind.Ready())
	w.n.Send(fmt.Sprintf("✅ [%s] прогрев: свечей %d, индикаторы готовы: %t", w.cfg.Symbol, candles, ind.Ready()))
	return nil
}
