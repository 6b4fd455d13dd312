// Package engine is the step driver (component F): it composes the
// ledger, book, state and matching packages into the single entry point
// a host calls once per accepted action, with all-or-nothing semantics —
// a step either commits every mutation it made and returns the events it
// produced, or leaves state exactly as it found it and returns an error.
package engine

import (
	"github.com/holiman/uint256"

	"github.com/zkspot/matchcore/internal/action"
	"github.com/zkspot/matchcore/internal/book"
	"github.com/zkspot/matchcore/internal/errs"
	"github.com/zkspot/matchcore/internal/event"
	"github.com/zkspot/matchcore/internal/ledger"
	"github.com/zkspot/matchcore/internal/matching"
	"github.com/zkspot/matchcore/internal/state"
	"github.com/zkspot/matchcore/internal/types"
)

// Config resolves the spec's open questions into concrete, fully
// implemented engine-wide policy. None of these are half-finished
// alternatives — both self-trade policies and both order-id reuse
// policies are complete, and a host picks one at construction time.
type Config struct {
	// SelfTradePolicy governs what happens when a taker would trade
	// against its own resting order.
	SelfTradePolicy matching.SelfTradePolicy
	// MarketBuyFunding optionally caps total quote spend for a single
	// market buy step, on top of the taker's free balance.
	MarketBuyFunding matching.Funding
	// RequireGlobalOrderIDUniqueness, when true, forbids reusing an
	// order id that was ever accepted, even after it has fully
	// terminated. When false, a terminated id may be reused freely.
	RequireGlobalOrderIDUniqueness bool
}

// DefaultConfig matches the policy the spec's worked scenarios assume:
// self-trades execute like any other match, market buys are bounded only
// by the taker's free balance, and order ids may never be reused.
func DefaultConfig() Config {
	return Config{
		SelfTradePolicy:                matching.SelfTradeExecute,
		RequireGlobalOrderIDUniqueness: true,
	}
}

// Engine owns a single State and applies actions against it one at a
// time, in the order a host submits them. An Engine is not safe for
// concurrent use — the spec's core is single-threaded by design.
type Engine struct {
	cfg   Config
	state *state.State
}

// New returns an Engine with a fresh, empty state.
func New(cfg Config) *Engine {
	return &Engine{
		cfg:   cfg,
		state: state.New(cfg.RequireGlobalOrderIDUniqueness),
	}
}

// State exposes the read-only accessors consumed by the indexer
// boundary: order lookups, book views, and balances.
func (e *Engine) State() *state.State {
	return e.state
}

// ApplyBytes decodes raw as a canonical action and applies it. It is the
// convenience entry point a host driving the engine from a wire-format
// action log uses.
func (e *Engine) ApplyBytes(caller types.User, raw []byte) ([]event.Event, error) {
	a, err := action.Decode(raw)
	if err != nil {
		return nil, err
	}
	return e.Apply(caller, a)
}

// Apply runs one already-decoded action to completion against the
// engine's state, atomically: either every mutation commits and the
// step's events are returned, or state is restored to exactly what it
// was before Apply was called and an error is returned.
func (e *Engine) Apply(caller types.User, a action.Action) ([]event.Event, error) {
	switch v := a.(type) {
	case action.CreateOrder:
		return e.applyCreateOrder(caller, v)
	case action.Cancel:
		return e.applyCancel(caller, v)
	case action.Deposit:
		return e.applyDeposit(caller, v)
	case action.Withdraw:
		return e.applyWithdraw(caller, v)
	default:
		return nil, errs.New(errs.MalformedAction, "unknown action type")
	}
}

// journal is the composite rollback record for a single step: every
// balance cell touched, a pre-mutation clone of the one pair's book the
// step can touch, and the pre-mutation value (or absence) of every order
// the step might mutate or remove.
type journal struct {
	ledger      *ledger.Journal
	pair        types.Pair
	bookExisted bool
	book        *book.Book
	orders      map[string]types.Order
}

func (e *Engine) snapshotPair(pair types.Pair) *journal {
	_, existed := e.state.Books[pair]
	b := e.state.BookFor(pair)
	orders := make(map[string]types.Order)
	for _, side := range []types.Side{types.Buy, types.Sell} {
		for _, lv := range b.Levels(side) {
			for _, id := range lv.IDs {
				orders[id] = e.state.Orders[id]
			}
		}
	}
	return &journal{
		ledger:      ledger.NewJournal(),
		pair:        pair,
		bookExisted: existed,
		book:        b.Clone(),
		orders:      orders,
	}
}

// rollback undoes every mutation a failed step may have made: balances
// via the ledger journal, the pair's book via the pre-step clone (or
// removed entirely if the step itself is what first created it), every
// order entry the book snapshot covered — plus the one new order id a
// CreateOrder step might have introduced, which by construction is the
// only id outside that snapshot a step can ever add.
func (e *Engine) rollback(j *journal, newOrderID string) {
	e.state.Ledger.Rollback(j.ledger)
	if j.bookExisted {
		e.state.Books[j.pair] = j.book
	} else {
		delete(e.state.Books, j.pair)
	}
	for id, o := range j.orders {
		e.state.Orders[id] = o
	}
	if newOrderID != "" {
		if _, wasPresent := j.orders[newOrderID]; !wasPresent {
			delete(e.state.Orders, newOrderID)
		}
	}
}

func (e *Engine) applyCreateOrder(caller types.User, a action.CreateOrder) ([]event.Event, error) {
	if err := action.Validate(a); err != nil {
		return nil, err
	}
	pair := a.Pair()
	if !pair.Valid() {
		return nil, errs.New(errs.MalformedAction, "base and quote must differ and be non-empty")
	}

	j := e.snapshotPair(pair)
	em := event.NewEmitter()

	req := matching.CreateOrder{
		OrderID:  a.OrderID,
		Caller:   caller,
		Side:     a.Side,
		Price:    a.Price,
		Pair:     pair,
		Quantity: a.Quantity,
	}
	opts := matching.Options{
		SelfTradePolicy:  e.cfg.SelfTradePolicy,
		MarketBuyFunding: e.cfg.MarketBuyFunding,
	}

	if err := matching.Walk(e.state, j.ledger, em, opts, req); err != nil {
		e.rollback(j, a.OrderID)
		return nil, err
	}
	return em.Events(), nil
}

func (e *Engine) applyCancel(caller types.User, a action.Cancel) ([]event.Event, error) {
	if err := action.Validate(a); err != nil {
		return nil, err
	}
	o, ok := e.state.Orders[a.OrderID]
	if !ok {
		return nil, errs.Newf(errs.UnknownOrder, "no resting order %q", a.OrderID)
	}
	if o.Owner != caller {
		return nil, errs.Newf(errs.Unauthorized, "order %q is not owned by %q", a.OrderID, caller)
	}

	j := e.snapshotPair(o.Pair)
	em := event.NewEmitter()

	newBal, err := e.state.Ledger.ReleaseEscrow(j.ledger, o, o.Quantity)
	if err != nil {
		e.rollback(j, "")
		return nil, err
	}

	e.state.BookFor(o.Pair).Remove(o.Side, o.Price, o.ID)
	delete(e.state.Orders, o.ID)
	em.Emit(event.OrderCancelled{OrderID: o.ID, Pair: o.Pair})
	em.Emit(event.BalanceUpdated{User: o.Owner, Token: o.EscrowToken(), Amount: newBal})

	return em.Events(), nil
}

func (e *Engine) applyDeposit(caller types.User, a action.Deposit) ([]event.Event, error) {
	if err := action.Validate(a); err != nil {
		return nil, err
	}
	j := ledger.NewJournal()
	newBal, err := e.state.Ledger.Credit(j, caller, a.Token, uint256.NewInt(uint64(a.Amount)))
	if err != nil {
		e.state.Ledger.Rollback(j)
		return nil, err
	}
	em := event.NewEmitter()
	em.Emit(event.BalanceUpdated{User: caller, Token: a.Token, Amount: newBal})
	return em.Events(), nil
}

func (e *Engine) applyWithdraw(caller types.User, a action.Withdraw) ([]event.Event, error) {
	if err := action.Validate(a); err != nil {
		return nil, err
	}
	j := ledger.NewJournal()
	newBal, err := e.state.Ledger.Debit(j, caller, a.Token, uint256.NewInt(uint64(a.Amount)))
	if err != nil {
		e.state.Ledger.Rollback(j)
		return nil, err
	}
	em := event.NewEmitter()
	em.Emit(event.BalanceUpdated{User: caller, Token: a.Token, Amount: newBal})
	return em.Events(), nil
}
