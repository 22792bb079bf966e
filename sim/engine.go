// Package sim runs the lifecycle of a single short position: open, check,
// close and forced liquidation.
package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rustyeddy/livermore/journal"
	"github.com/rustyeddy/livermore/margin"
	"github.com/rustyeddy/livermore/market"
	"github.com/rustyeddy/livermore/pkg/id"
	"github.com/rustyeddy/livermore/position"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Store is the persistence the engine needs. *store.Store satisfies it.
type Store interface {
	WithLock(ctx context.Context, fn func() error) error
	Load(ctx context.Context) (*position.Position, error)
	Save(ctx context.Context, p *position.Position) error
	Finalize(ctx context.Context, p *position.Position) error
	Archive(ctx context.Context) ([]*position.Position, error)
}

// Report is the outcome of an operation that marked the position to market.
type Report struct {
	Position *position.Position
	Metrics  margin.Metrics
	Health   position.Health
	Message  string
	// Settlement is set when the position was closed or liquidated.
	Settlement *margin.Settlement
}

func (r *Report) Liquidated() bool {
	return r.Position != nil && r.Position.Status == position.StatusLiquidated
}

type Engine struct {
	mu      sync.Mutex
	store   Store
	prices  market.PriceSource
	journal journal.Journal
	clock   Clock
	log     *zap.Logger
	symbol  string
	terms   position.Terms
}

type Option func(*Engine)

func WithJournal(j journal.Journal) Option {
	return func(e *Engine) {
		if j != nil {
			e.journal = j
		}
	}
}

func WithClock(c Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// NewEngine wires an engine for one symbol. terms apply to positions opened
// by this engine; existing positions keep the terms they were opened with.
func NewEngine(symbol string, terms position.Terms, st Store, prices market.PriceSource, opts ...Option) (*Engine, error) {
	symbol = market.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("new engine: symbol is required")
	}
	if err := terms.Validate(); err != nil {
		return nil, fmt.Errorf("new engine: %w", err)
	}
	if st == nil || prices == nil {
		return nil, fmt.Errorf("new engine: store and price source are required")
	}

	e := &Engine{
		store:   st,
		prices:  prices,
		journal: journal.Nop{},
		clock:   RealClock,
		log:     zap.NewNop(),
		symbol:  symbol,
		terms:   terms,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.Named("sim")
	return e, nil
}

func (e *Engine) Symbol() string { return e.symbol }

func (e *Engine) Terms() position.Terms { return e.terms }

// Open sells shares short at the current market price.
func (e *Engine) Open(ctx context.Context, shares int64, capital decimal.Decimal) (*Report, error) {
	if shares <= 0 {
		return nil, fmt.Errorf("%w: shares must be positive, got %d", position.ErrInvalidOrder, shares)
	}
	if !capital.IsPositive() {
		return nil, fmt.Errorf("%w: capital must be positive, got %s", position.ErrInvalidOrder, capital)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var rep *Report
	err := e.store.WithLock(ctx, func() error {
		existing, err := e.store.Load(ctx)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: %s %d shares of %s", position.ErrAlreadyOpen, existing.ID, existing.Shares, existing.Symbol)
		}

		q, err := e.prices.GetPrice(ctx, e.symbol)
		if err != nil {
			return err
		}

		req := margin.Required(shares, q.Price, e.terms)
		if !req.Covers(capital) {
			return &position.InsufficientCapitalError{
				Required:  req.Total,
				Available: capital,
				MaxShares: margin.MaxShares(capital, q.Price, e.terms),
			}
		}

		now := e.clock.Now()
		p := &position.Position{
			ID:                      id.NewAt(now),
			Symbol:                  e.symbol,
			Shares:                  shares,
			EntryPrice:              q.Price,
			EntryTimestamp:          now,
			InitialCapital:          capital,
			CommissionRate:          e.terms.CommissionRate,
			BorrowFeeAnnualRate:     e.terms.BorrowFeeAnnualRate,
			InitialMarginRatio:      e.terms.InitialMarginRatio,
			MaintenanceMarginRatio:  e.terms.MaintenanceMarginRatio,
			LiquidationMarginRatio:  e.terms.LiquidationMarginRatio,
			CashAfterOpenCommission: capital.Sub(req.Commission),
			Status:                  position.StatusOpen,
		}

		m, err := margin.Compute(p, q.Price, now)
		if err != nil {
			return err
		}
		p.Append(m.Snapshot())

		if err := e.store.Save(ctx, p); err != nil {
			return fmt.Errorf("open: %w", err)
		}
		rep = e.report(p, m)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("position opened",
		zap.String("id", rep.Position.ID),
		zap.String("symbol", rep.Position.Symbol),
		zap.Int64("shares", rep.Position.Shares),
		zap.String("entry", rep.Position.EntryPrice.String()),
		zap.String("capital", rep.Position.InitialCapital.String()))
	e.recordEquity(rep)
	return rep, nil
}

// Check marks the open position to market, appends a history snapshot and
// liquidates it when the margin level has fallen below the liquidation ratio.
func (e *Engine) Check(ctx context.Context) (*Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var rep *Report
	err := e.store.WithLock(ctx, func() error {
		p, q, err := e.loadAndQuote(ctx)
		if err != nil {
			return err
		}

		next := p.Clone()
		m, err := margin.Compute(next, q.Price, e.eventTime(next))
		if err != nil {
			return err
		}
		next.Append(m.Snapshot())

		terms := next.Terms()
		switch margin.Classify(m.MarginLevel, terms) {
		case position.HealthLiquidated:
			s := margin.Settle(next, m)
			next.Status = position.StatusLiquidated
			next.CloseRecord = s.CloseRecord(m)
			if err := e.store.Finalize(ctx, next); err != nil {
				return fmt.Errorf("liquidate: %w", err)
			}
			rep = e.report(next, m)
			rep.Settlement = &s
			return nil
		case position.HealthMarginCall:
			next.MarginCalls++
		}

		if err := e.store.Save(ctx, next); err != nil {
			return fmt.Errorf("check: %w", err)
		}
		rep = e.report(next, m)
		return nil
	})
	if err != nil {
		return nil, err
	}

	fields := []zap.Field{
		zap.String("id", rep.Position.ID),
		zap.String("price", rep.Metrics.Price.String()),
		zap.String("marginLevel", rep.Metrics.MarginLevel.StringFixed(4)),
		zap.String("health", string(rep.Health)),
	}
	switch rep.Health {
	case position.HealthLiquidated:
		e.log.Warn("position liquidated", fields...)
	case position.HealthMarginCall:
		e.log.Warn("margin call", append(fields, zap.Int("marginCalls", rep.Position.MarginCalls))...)
	default:
		e.log.Info("position checked", fields...)
	}

	e.recordEquity(rep)
	if rep.Settlement != nil {
		e.recordTrade(rep)
	}
	return rep, nil
}

// Close buys the position back at the current market price.
func (e *Engine) Close(ctx context.Context) (*Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var rep *Report
	err := e.store.WithLock(ctx, func() error {
		p, q, err := e.loadAndQuote(ctx)
		if err != nil {
			return err
		}

		next := p.Clone()
		m, err := margin.Compute(next, q.Price, e.eventTime(next))
		if err != nil {
			return err
		}
		next.Append(m.Snapshot())

		s := margin.Settle(next, m)
		next.Status = position.StatusClosed
		next.CloseRecord = s.CloseRecord(m)
		if err := e.store.Finalize(ctx, next); err != nil {
			return fmt.Errorf("close: %w", err)
		}
		rep = e.report(next, m)
		rep.Settlement = &s
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("position closed",
		zap.String("id", rep.Position.ID),
		zap.String("price", rep.Metrics.Price.String()),
		zap.String("finalEquity", rep.Settlement.FinalEquity.StringFixed(2)),
		zap.String("returnPct", rep.Settlement.TotalReturnPct.StringFixed(2)))
	e.recordEquity(rep)
	e.recordTrade(rep)
	return rep, nil
}

// Status returns the stored open position without fetching a price, or nil
// when there is none.
func (e *Engine) Status(ctx context.Context) (*position.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var p *position.Position
	err := e.store.WithLock(ctx, func() error {
		var err error
		p, err = e.store.Load(ctx)
		return err
	})
	return p, err
}

// History returns finalized positions, oldest close first.
func (e *Engine) History(ctx context.Context) ([]*position.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []*position.Position
	err := e.store.WithLock(ctx, func() error {
		var err error
		out, err = e.store.Archive(ctx)
		return err
	})
	return out, err
}

func (e *Engine) loadAndQuote(ctx context.Context) (*position.Position, market.Quote, error) {
	p, err := e.store.Load(ctx)
	if err != nil {
		return nil, market.Quote{}, err
	}
	if p == nil {
		return nil, market.Quote{}, position.ErrNoActivePosition
	}

	q, err := e.prices.GetPrice(ctx, p.Symbol)
	if err != nil {
		return nil, market.Quote{}, err
	}
	return p, q, nil
}

// eventTime is the clock reading, held back to the last snapshot if the
// clock has gone backwards.
func (e *Engine) eventTime(p *position.Position) time.Time {
	now := e.clock.Now()
	if last, ok := p.LastSnapshot(); ok && now.Before(last.Timestamp) {
		return last.Timestamp
	}
	return now
}

func (e *Engine) report(p *position.Position, m margin.Metrics) *Report {
	terms := p.Terms()
	return &Report{
		Position: p,
		Metrics:  m,
		Health:   margin.Classify(m.MarginLevel, terms),
		Message:  margin.HouseMessage(m.MarginLevel, terms),
	}
}

// Journal writes mirror the store and never fail an operation that has
// already been persisted.
func (e *Engine) recordEquity(rep *Report) {
	err := e.journal.RecordEquity(journal.EquitySnapshot{
		PositionID:    rep.Position.ID,
		Time:          rep.Metrics.At,
		Price:         rep.Metrics.Price,
		Equity:        rep.Metrics.Equity,
		UnrealizedPnl: rep.Metrics.UnrealizedPnl,
		NetPnl:        rep.Metrics.NetPnl,
		MarginLevel:   rep.Metrics.MarginLevel,
		Health:        string(rep.Health),
	})
	if err != nil {
		e.log.Error("journal equity failed", zap.String("id", rep.Position.ID), zap.Error(err))
	}
}

func (e *Engine) recordTrade(rep *Report) {
	rec, err := TradeRecord(rep.Position)
	if err == nil {
		err = e.journal.RecordTrade(rec)
	}
	if err != nil {
		e.log.Error("journal trade failed", zap.String("id", rep.Position.ID), zap.Error(err))
	}
}
