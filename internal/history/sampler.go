package history

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"perp_bot/internal/metrics"
	"perp_bot/internal/models"
	"perp_bot/pkg/logger"
)

// BookSource: откуда сэмплер берёт стакан.
type BookSource interface {
	OrderBook(ctx context.Context, symbol string, depth int) (models.OrderBook, error)
}

// Sampler по расписанию снимает стакан и дописывает снимок в историю.
// Позицию не трогает: только Store.Books.
type Sampler struct {
	src    BookSource
	store  *Store
	m      *metrics.Metrics
	symbol string
	depth  int
	spec   string

	cron *cron.Cron
}

func NewSampler(src BookSource, store *Store, m *metrics.Metrics, symbol string, depth int, spec string) *Sampler {
	if depth <= 0 {
		depth = DefaultBookDepth
	}
	if spec == "" {
		spec = "@every 10s"
	}
	return &Sampler{src: src, store: store, m: m, symbol: symbol, depth: depth, spec: spec}
}

// SampleOnce: один снимок стакана.
func (s *Sampler) SampleOnce(ctx context.Context) error {
	book, err := s.src.OrderBook(ctx, s.symbol, s.depth)
	if err != nil {
		s.m.SampleErrors.Inc()
		return errors.Wrap(err, "sample order book")
	}
	if book.Time.IsZero() {
		book.Time = time.Now()
	}
	snap, ok := book.Snapshot(s.depth)
	if !ok {
		s.m.SampleErrors.Inc()
		return errors.Wrapf(models.ErrDataUnavailable, "empty book for %s", s.symbol)
	}
	s.store.Books.Push(snap)
	s.m.SamplesTotal.Inc()
	return nil
}

// Start запускает расписание; медленный снимок не наслаивается на следующий.
func (s *Sampler) Start(ctx context.Context) error {
	l := cronLogger{l: logger.With(zap.String("component", "sampler")).Sugar()}
	s.cron = cron.New(
		cron.WithLogger(l),
		cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
	)
	_, err := s.cron.AddFunc(s.spec, func() {
		if err := s.SampleOnce(ctx); err != nil {
			logger.Warn("[SAMPLER] %s: %v", s.symbol, err)
		}
	})
	if err != nil {
		return errors.Wrapf(err, "sampler schedule %q", s.spec)
	}
	s.cron.Start()
	logger.Info("[SAMPLER] started %s every %s depth=%d", s.symbol, s.spec, s.depth)
	return nil
}

// Stop ждёт окончания текущего снимка.
func (s *Sampler) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
