package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"perp_bot/internal/models"
	"perp_bot/pkg/logger"
)

// Paper: бумажный шлюз. Реальные рыночные данные (если есть источник),
// исполнение в памяти. Маркет исполняется по лучшей цене, лимитка -
// если пересекает стакан в момент выставления, иначе висит до CancelAll.
type Paper struct {
	md       MarketData
	leverage decimal.Decimal
	depth    int

	mu      sync.Mutex
	balance decimal.Decimal
	pos     *models.Position
	orders  map[string]models.OrderRequest
	protect map[string]bool
}

func NewPaper(md MarketData, balance, leverage decimal.Decimal) *Paper {
	return &Paper{
		md:       md,
		balance:  balance,
		leverage: leverage,
		depth:    5,
		orders:   make(map[string]models.OrderRequest),
		protect:  make(map[string]bool),
	}
}

func (p *Paper) OrderBook(ctx context.Context, symbol string, depth int) (models.OrderBook, error) {
	if p.md == nil {
		return models.OrderBook{}, errors.Wrap(models.ErrDataUnavailable, "paper: no market data source")
	}
	return p.md.OrderBook(ctx, symbol, depth)
}

func (p *Paper) Candles(ctx context.Context, symbol, timeframe string, count int) ([]models.Candle, error) {
	if p.md == nil {
		return nil, errors.Wrap(models.ErrDataUnavailable, "paper: no market data source")
	}
	return p.md.Candles(ctx, symbol, timeframe, count)
}

func (p *Paper) RecentTrades(ctx context.Context, symbol string, count int) ([]models.Trade, error) {
	if p.md == nil {
		return nil, errors.Wrap(models.ErrDataUnavailable, "paper: no market data source")
	}
	return p.md.RecentTrades(ctx, symbol, count)
}

func (p *Paper) PlaceOrder(ctx context.Context, req models.OrderRequest) (string, error) {
	if !req.Size.IsPositive() {
		return "", errors.Wrapf(models.ErrOrderRejected, "paper: size %s", req.Size)
	}
	book, err := p.OrderBook(ctx, req.Symbol, p.depth)
	if err != nil {
		return "", err
	}
	ask, okA := book.BestAsk()
	bid, okB := book.BestBid()
	if !okA || !okB {
		return "", errors.Wrap(models.ErrDataUnavailable, "paper: empty book")
	}

	id := req.ClientID
	if id == "" {
		id = uuid.NewString()
	}
	buy := req.Side == models.SideLong

	var fill decimal.Decimal
	switch req.Kind {
	case models.OrderMarket:
		fill = decimal.NewFromFloat(bid)
		if buy {
			fill = decimal.NewFromFloat(ask)
		}
	case models.OrderLimit:
		crosses := (buy && req.Price.GreaterThanOrEqual(decimal.NewFromFloat(ask))) ||
			(!buy && req.Price.LessThanOrEqual(decimal.NewFromFloat(bid)))
		if !crosses {
			p.mu.Lock()
			p.orders[id] = req
			p.mu.Unlock()
			return id, nil
		}
		fill = req.Price
	default:
		return "", errors.Wrapf(models.ErrOrderRejected, "paper: kind %q", req.Kind)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fillLocked(req, fill); err != nil {
		return "", err
	}
	logger.Info("[PAPER] %s %s %s @ %s (%s)", req.Symbol, req.Side.OrderSide(), req.Size, fill, id)
	return id, nil
}

func (p *Paper) fillLocked(req models.OrderRequest, px decimal.Decimal) error {
	if p.pos == nil {
		if req.ReduceOnly {
			return errors.Wrap(models.ErrOrderRejected, "paper: reduce-only with no position")
		}
		p.pos = &models.Position{
			Symbol:     req.Symbol,
			Side:       req.Side,
			EntryPrice: px,
			Size:       req.Size,
			Leverage:   p.leverage,
			OpenedAt:   time.Now(),
		}
		return nil
	}
	if req.Side == p.pos.Side {
		if req.ReduceOnly {
			return errors.Wrap(models.ErrOrderRejected, "paper: reduce-only in position direction")
		}
		total := p.pos.Size.Add(req.Size)
		p.pos.EntryPrice = p.pos.EntryPrice.Mul(p.pos.Size).Add(px.Mul(req.Size)).Div(total)
		p.pos.Size = total
		return nil
	}

	closed := decimal.Min(req.Size, p.pos.Size)
	sign := decimal.NewFromInt(int64(p.pos.Side.Sign()))
	p.balance = p.balance.Add(px.Sub(p.pos.EntryPrice).Mul(closed).Mul(sign))
	p.pos.Size = p.pos.Size.Sub(closed)
	if p.pos.Size.IsZero() {
		p.pos = nil
	}
	return nil
}

func (p *Paper) CancelAll(_ context.Context, symbol string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, o := range p.orders {
		if o.Symbol == symbol {
			delete(p.orders, id)
		}
	}
	delete(p.protect, symbol)
	return nil
}

// OpenPosition перед ответом сводит висящие лимитки со свежим стаканом.
func (p *Paper) OpenPosition(ctx context.Context, symbol string) (*models.Position, error) {
	var book *models.OrderBook
	if p.hasOrders(symbol) {
		if b, err := p.OrderBook(ctx, symbol, p.depth); err == nil {
			book = &b
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if book != nil {
		p.matchRestingLocked(*book)
	}
	if p.pos == nil || p.pos.Symbol != symbol {
		return nil, nil
	}
	cp := *p.pos
	return &cp, nil
}

func (p *Paper) hasOrders(symbol string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, o := range p.orders {
		if o.Symbol == symbol {
			return true
		}
	}
	return false
}

// matchRestingLocked: лимитка у лучшей цены своей стороны или за ней
// считается исполненной мейкером (продажа по ask, покупка по bid).
func (p *Paper) matchRestingLocked(book models.OrderBook) {
	ask, okA := book.BestAsk()
	bid, okB := book.BestBid()
	if !okA || !okB {
		return
	}
	for id, o := range p.orders {
		if o.Symbol != book.Symbol && book.Symbol != "" {
			continue
		}
		buy := o.Side == models.SideLong
		touch := (buy && o.Price.GreaterThanOrEqual(decimal.NewFromFloat(bid))) ||
			(!buy && o.Price.LessThanOrEqual(decimal.NewFromFloat(ask)))
		if !touch {
			continue
		}
		delete(p.orders, id)
		if err := p.fillLocked(o, o.Price); err != nil {
			logger.Warn("[PAPER] drop resting %s: %v", id, err)
			continue
		}
		logger.Info("[PAPER] %s resting %s %s @ %s filled", o.Symbol, o.Side.OrderSide(), o.Size, o.Price)
	}
}

func (p *Paper) Balance(_ context.Context, _ string) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance, nil
}

func (p *Paper) PlaceProtection(_ context.Context, symbol string, side models.Side, size, sl, tp decimal.Decimal) error {
	logger.Info("[PAPER] %s protection %s size=%s sl=%s tp=%s", symbol, side, size, sl, tp)
	if sl.IsPositive() || tp.IsPositive() {
		p.mu.Lock()
		p.protect[symbol] = true
		p.mu.Unlock()
	}
	return nil
}

// Protected: висит ли SL/TP по инструменту. Уровни не исполняются.
func (p *Paper) Protected(symbol string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.protect[symbol]
}

func (p *Paper) Instrument(_ context.Context, symbol string) (models.Instrument, error) {
	return models.Instrument{InstID: symbol}, nil
}

// OpenOrders: число висящих лимиток (для тестов и /status).
func (p *Paper) OpenOrders() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.orders)
}

func (p *Paper) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pos == nil {
		return fmt.Sprintf("paper balance=%s flat", p.balance)
	}
	return fmt.Sprintf("paper balance=%s %s %s@%s", p.balance, p.pos.Side, p.pos.Size, p.pos.EntryPrice)
}
