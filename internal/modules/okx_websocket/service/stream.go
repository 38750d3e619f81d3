package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"perp_bot/internal/metrics"
	"perp_bot/internal/models"
	okxrest "perp_bot/internal/modules/okx_client/service"
	"perp_bot/pkg/logger"
)

const (
	DefaultURL    = "wss://ws.okx.com:8443/ws/v5/public"
	channel       = "books5"
	pingEvery     = 20 * time.Second
	defaultStale  = 30 * time.Second
	readDeadline  = 3 * pingEvery
	handshakeWait = 10 * time.Second
)

// ConnState: куда отдавать статус соединения (health).
type ConnState interface {
	SetWSConnected(v bool)
}

type Config struct {
	URL        string
	Symbol     string
	StaleAfter time.Duration // старше: стакан считается недоступным
}

// Stream держит последний стакан books5 одного инструмента.
// Реализует history.BookSource, сэмплер забирает снимки по своему расписанию.
type Stream struct {
	cfg    Config
	dialer *websocket.Dialer
	m      *metrics.Metrics
	state  ConnState

	mu   sync.RWMutex
	last models.OrderBook
	seen time.Time
}

func NewStream(cfg Config, m *metrics.Metrics, state ConnState) *Stream {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = defaultStale
	}
	return &Stream{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: handshakeWait},
		m:      m,
		state:  state,
	}
}

// OrderBook отдаёт последний полученный стакан, если он свежий.
func (s *Stream) OrderBook(_ context.Context, symbol string, depth int) (models.OrderBook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if symbol != s.cfg.Symbol {
		return models.OrderBook{}, errors.Wrapf(models.ErrDataUnavailable, "ws: not subscribed to %s", symbol)
	}
	if s.seen.IsZero() || time.Since(s.seen) > s.cfg.StaleAfter {
		return models.OrderBook{}, errors.Wrapf(models.ErrDataUnavailable, "ws: no fresh book for %s", symbol)
	}
	book := s.last
	if depth > 0 {
		book.Asks = book.Asks[:min(depth, len(book.Asks))]
		book.Bids = book.Bids[:min(depth, len(book.Bids))]
	}
	return book, nil
}

// Run переподключается с экспоненциальной паузой, пока жив ctx.
func (s *Stream) Run(ctx context.Context) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0

	for {
		started := time.Now()
		err := s.session(ctx)
		s.state.SetWSConnected(false)
		if ctx.Err() != nil {
			return
		}
		if time.Since(started) > time.Minute {
			bo.Reset()
		}
		wait := bo.NextBackOff()
		s.m.WSReconnects.Inc()
		logger.Warn("[WS] %s %s: %v; reconnect in %s", channel, s.cfg.Symbol, err, wait)

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (s *Stream) session(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return errors.Wrap(err, "dial")
	}
	defer conn.Close()

	sub := map[string]any{
		"op":   "subscribe",
		"args": []map[string]string{{"channel": channel, "instId": s.cfg.Symbol}},
	}
	payload, err := sonic.Marshal(sub)
	if err != nil {
		return errors.Wrap(err, "marshal subscribe")
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return errors.Wrap(err, "subscribe")
	}
	s.state.SetWSConnected(true)
	logger.Info("[WS] subscribed %s %s", channel, s.cfg.Symbol)

	done := make(chan struct{})
	defer close(done)
	// без пинга OKX рвёт соединение через 30с тишины
	go func() {
		t := time.NewTicker(pingEvery)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-done:
				return
			case <-t.C:
				if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
					return
				}
			}
		}
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return errors.Wrap(err, "read")
		}
		if err := s.handle(msg); err != nil {
			logger.Warn("[WS] %s: %v", channel, err)
		}
	}
}

type frame struct {
	Event string `json:"event"`
	Code  string `json:"code"`
	Msg   string `json:"msg"`
	Arg   struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	} `json:"arg"`
	Data []struct {
		Asks [][]string `json:"asks"`
		Bids [][]string `json:"bids"`
		Ts   string     `json:"ts"`
	} `json:"data"`
}

func (s *Stream) handle(msg []byte) error {
	if strings.TrimSpace(string(msg)) == "pong" {
		return nil
	}
	var f frame
	if err := sonic.Unmarshal(msg, &f); err != nil {
		return errors.Wrap(err, "decode frame")
	}
	if f.Event == "error" {
		return errors.Errorf("okx event error: code=%s msg=%s", f.Code, f.Msg)
	}
	if f.Arg.Channel != channel || f.Arg.InstID != s.cfg.Symbol || len(f.Data) == 0 {
		return nil
	}
	d := f.Data[len(f.Data)-1]
	book := okxrest.ParseBook(f.Arg.InstID, d.Asks, d.Bids, d.Ts)
	if len(book.Asks) == 0 || len(book.Bids) == 0 {
		return nil
	}

	s.mu.Lock()
	s.last = book
	s.seen = time.Now()
	s.mu.Unlock()
	return nil
}
