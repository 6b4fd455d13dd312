// Package matching implements the matching algorithm (component D): the
// price-time priority walk a CreateOrder action drives across the
// opposite side of a pair's book, escrow draw-down and release, and the
// event sequence the walk emits. It depends on state, ledger and event
// but never on the engine package — the step driver composes this
// package, not the other way around.
package matching

import (
	"github.com/holiman/uint256"

	"github.com/zkspot/matchcore/internal/errs"
	"github.com/zkspot/matchcore/internal/event"
	"github.com/zkspot/matchcore/internal/ledger"
	"github.com/zkspot/matchcore/internal/state"
	"github.com/zkspot/matchcore/internal/types"
)

// SelfTradePolicy resolves what happens when a taker would trade against
// its own resting order (the spec's open question #1).
type SelfTradePolicy uint8

const (
	// SelfTradeExecute matches self-owned makers exactly like any other
	// maker — the default, and the policy the spec's worked scenarios
	// assume.
	SelfTradeExecute SelfTradePolicy = iota
	// SelfTradeCancelSmaller resolves a self-trade the way some exchanges
	// do instead of executing it: the smaller of the taker's remaining
	// quantity and the self-owned maker's resting quantity is cancelled
	// from both sides (escrow released, no balance movement, no trade),
	// and the larger side's quantity is reduced by that amount. Passing
	// over the maker untouched is not an option — a taker that then
	// rested its residue at a marketable price would leave the book
	// crossed against its own order, which the core must never do.
	SelfTradeCancelSmaller
)

// Funding bounds how much quote a market buy may spend in a single step,
// on top of the taker's free balance. A nil MaxSpend means "walk until
// the taker's free quote balance alone is exhausted" — the spec's
// default behavior for open question #2. The canonical wire format for
// CreateOrder carries no per-order spend cap, so this is necessarily an
// engine-wide policy rather than a per-action field.
type Funding struct {
	MaxSpend *uint64
}

// Options collects the policy knobs the walk needs that are not implied
// by the action or the resting book itself.
type Options struct {
	SelfTradePolicy SelfTradePolicy
	MarketBuyFunding Funding
}

// CreateOrder is the normalized request the walk operates on: a decoded
// and validated action.CreateOrder plus the caller that placed it.
type CreateOrder struct {
	OrderID  string
	Caller   types.User
	Side     types.Side
	Price    *uint32 // nil for a market order
	Pair     types.Pair
	Quantity uint32
}

// Walk runs the full CreateOrder algorithm against st: escrows the
// taker's funds, walks the opposite side of the book in price-time
// priority, settles each trade's balances, and either rests the order's
// residue or marks it fully terminated. All mutations are applied
// directly to st and j; on error the caller (the engine's step driver)
// is responsible for rolling both back — Walk never undoes a partial
// mutation itself.
func Walk(st *state.State, j *ledger.Journal, em *event.Emitter, opts Options, req CreateOrder) error {
	pair := req.Pair
	if st.IsOrderIDTaken(req.OrderID) {
		return errs.Newf(errs.DuplicateOrderID, "order id %q already used", req.OrderID)
	}

	isMarket := req.Price == nil
	side := req.Side
	remaining := types.Quantity(req.Quantity)

	var limitPrice types.Price
	if !isMarket {
		limitPrice = types.Price(*req.Price)
		pending := types.Order{
			ID:       req.OrderID,
			Owner:    req.Caller,
			Side:     side,
			Price:    limitPrice,
			Pair:     pair,
			Quantity: remaining,
		}
		if err := st.Ledger.EscrowForOrder(j, pending); err != nil {
			return err
		}
	} else if side == types.Sell {
		cost := uint256.NewInt(uint64(remaining))
		if _, err := st.Ledger.Debit(j, req.Caller, pair.Base, cost); err != nil {
			return err
		}
	}

	opp := opposite(side)
	b := st.BookFor(pair)
	levels := b.Levels(opp)

	var spent uint64
	filledAny := false

walkLoop:
	for _, lv := range levels {
		if remaining == 0 {
			break
		}
		if !isMarket {
			if side == types.Buy && lv.Price > limitPrice {
				break
			}
			if side == types.Sell && lv.Price < limitPrice {
				break
			}
		}

		for _, makerID := range lv.IDs {
			if remaining == 0 {
				break walkLoop
			}
			maker, ok := st.Orders[makerID]
			if !ok {
				continue
			}
			if maker.Owner == req.Caller && opts.SelfTradePolicy == SelfTradeCancelSmaller {
				cancelled, err := cancelSelfTrade(st, j, em, pair, side, req.Caller, maker, remaining, limitPrice, isMarket)
				if err != nil {
					return err
				}
				remaining -= cancelled
				continue
			}

			tradeQty := remaining
			if maker.Quantity < tradeQty {
				tradeQty = maker.Quantity
			}

			if isMarket && side == types.Buy {
				tradeQty = clampToAffordable(st, req.Caller, pair.Quote, maker.Price, tradeQty, opts.MarketBuyFunding, spent)
				if tradeQty == 0 {
					break walkLoop
				}
			}

			cost, err := executeTrade(st, j, em, pair, side, req.Caller, maker, tradeQty, limitPrice, isMarket)
			if err != nil {
				return err
			}

			filledAny = true
			remaining -= tradeQty
			spent += cost
		}
	}

	if isMarket {
		if !filledAny {
			return errs.New(errs.NoLiquidity, "no resting liquidity to match a market order against")
		}
		if side == types.Sell && remaining > 0 {
			refund := uint256.NewInt(uint64(remaining))
			newBal, err := st.Ledger.Credit(j, req.Caller, pair.Base, refund)
			if err != nil {
				return err
			}
			em.Emit(event.BalanceUpdated{User: req.Caller, Token: pair.Base, Amount: newBal})
		}
		em.Emit(event.OrderExecuted{OrderID: req.OrderID, Pair: pair})
	} else if remaining == 0 {
		em.Emit(event.OrderExecuted{OrderID: req.OrderID, Pair: pair})
	} else {
		rest := types.Order{
			ID:       req.OrderID,
			Owner:    req.Caller,
			Side:     side,
			Price:    limitPrice,
			Pair:     pair,
			Quantity: remaining,
		}
		st.Orders[req.OrderID] = rest
		b.Insert(side, limitPrice, req.OrderID)
		em.Emit(event.OrderCreated{Order: rest})
	}

	st.MarkOrderIDUsed(req.OrderID)
	return nil
}

// executeTrade settles one match between the taker and a single maker:
// moves base from seller to buyer, quote from buyer to seller at the
// maker's resting price, refunds a limit-buy taker the difference
// between what it escrowed at its own price and what it actually paid
// at the (better-or-equal) maker price, debits a market-buy taker
// incrementally, and updates or removes the maker. It returns the quote
// amount this trade actually cost, for the market-buy spend cap.
func executeTrade(
	st *state.State,
	j *ledger.Journal,
	em *event.Emitter,
	pair types.Pair,
	takerSide types.Side,
	caller types.User,
	maker types.Order,
	tradeQty types.Quantity,
	takerLimitPrice types.Price,
	isMarket bool,
) (uint64, error) {
	makerPrice := maker.Price
	quoteCost, err := ledger.CheckedMul(makerPrice, tradeQty)
	if err != nil {
		return 0, err
	}

	var buyer, seller types.User
	if takerSide == types.Buy {
		buyer, seller = caller, maker.Owner
	} else {
		buyer, seller = maker.Owner, caller
	}

	newBase, err := st.Ledger.Credit(j, buyer, pair.Base, uint256.NewInt(uint64(tradeQty)))
	if err != nil {
		return 0, err
	}
	em.Emit(event.BalanceUpdated{User: buyer, Token: pair.Base, Amount: newBase})

	newQuote, err := st.Ledger.Credit(j, seller, pair.Quote, quoteCost)
	if err != nil {
		return 0, err
	}
	em.Emit(event.BalanceUpdated{User: seller, Token: pair.Quote, Amount: newQuote})

	if takerSide == types.Buy {
		if isMarket {
			newTakerQuote, err := st.Ledger.Debit(j, caller, pair.Quote, quoteCost)
			if err != nil {
				return 0, err
			}
			em.Emit(event.BalanceUpdated{User: caller, Token: pair.Quote, Amount: newTakerQuote})
		} else {
			// Price improvement: the taker escrowed this slice of its
			// order at its own limit price; refund the gap against the
			// cheaper maker price it actually paid.
			escrowedCost, err := ledger.CheckedMul(takerLimitPrice, tradeQty)
			if err != nil {
				return 0, err
			}
			refund := new(uint256.Int).Sub(escrowedCost, quoteCost)
			if !refund.IsZero() {
				newTakerQuote, err := st.Ledger.Credit(j, caller, pair.Quote, refund)
				if err != nil {
					return 0, err
				}
				em.Emit(event.BalanceUpdated{User: caller, Token: pair.Quote, Amount: newTakerQuote})
			}
		}
	}

	remaining := maker.Quantity - tradeQty
	if remaining == 0 {
		st.BookFor(pair).Remove(maker.Side, maker.Price, maker.ID)
		delete(st.Orders, maker.ID)
		em.Emit(event.OrderExecuted{OrderID: maker.ID, Pair: pair})
	} else {
		maker.Quantity = remaining
		st.Orders[maker.ID] = maker
		em.Emit(event.OrderUpdate{OrderID: maker.ID, RemainingQuantity: remaining, Pair: pair})
	}

	return quoteCost.Uint64(), nil
}

// cancelSelfTrade resolves one encounter between a taker and its own
// resting order under SelfTradeCancelSmaller. No trade occurs: the
// smaller of the taker's remaining quantity and the maker's resting
// quantity is cancelled from both sides, escrow released accordingly,
// and whichever side is larger simply has that amount taken off its
// remaining quantity. It returns how much of the taker's remaining
// quantity was cancelled, for the walk to subtract.
func cancelSelfTrade(
	st *state.State,
	j *ledger.Journal,
	em *event.Emitter,
	pair types.Pair,
	takerSide types.Side,
	caller types.User,
	maker types.Order,
	takerRemaining types.Quantity,
	takerLimitPrice types.Price,
	isMarket bool,
) (types.Quantity, error) {
	cancelQty := takerRemaining
	if maker.Quantity < cancelQty {
		cancelQty = maker.Quantity
	}

	makerBal, err := st.Ledger.ReleaseEscrow(j, maker, cancelQty)
	if err != nil {
		return 0, err
	}
	if remaining := maker.Quantity - cancelQty; remaining == 0 {
		st.BookFor(pair).Remove(maker.Side, maker.Price, maker.ID)
		delete(st.Orders, maker.ID)
		em.Emit(event.OrderCancelled{OrderID: maker.ID, Pair: pair})
	} else {
		maker.Quantity = remaining
		st.Orders[maker.ID] = maker
		em.Emit(event.OrderUpdate{OrderID: maker.ID, RemainingQuantity: remaining, Pair: pair})
	}
	em.Emit(event.BalanceUpdated{User: maker.Owner, Token: maker.EscrowToken(), Amount: makerBal})

	// A market buy never escrows ahead of a trade, so there is nothing to
	// refund the taker for the slice just cancelled.
	if isMarket && takerSide == types.Buy {
		return cancelQty, nil
	}
	takerProxy := types.Order{Owner: caller, Side: takerSide, Price: takerLimitPrice, Pair: pair}
	takerBal, err := st.Ledger.ReleaseEscrow(j, takerProxy, cancelQty)
	if err != nil {
		return 0, err
	}
	em.Emit(event.BalanceUpdated{User: caller, Token: takerProxy.EscrowToken(), Amount: takerBal})
	return cancelQty, nil
}

// clampToAffordable reduces a market buy's trade quantity against one
// maker down to what the taker can actually afford, given its current
// free quote balance and (optionally) the step-wide spend cap.
func clampToAffordable(
	st *state.State,
	caller types.User,
	quote types.Token,
	makerPrice types.Price,
	tradeQty types.Quantity,
	funding Funding,
	spentSoFar uint64,
) types.Quantity {
	free := st.Ledger.Free(caller, quote)
	affordable := affordableQuantity(free, makerPrice)

	if funding.MaxSpend != nil {
		remainingBudget := uint64(0)
		if *funding.MaxSpend > spentSoFar {
			remainingBudget = *funding.MaxSpend - spentSoFar
		}
		budgetQty := types.Quantity(remainingBudget / uint64(makerPrice))
		if budgetQty < affordable {
			affordable = budgetQty
		}
	}

	if affordable < tradeQty {
		return affordable
	}
	return tradeQty
}

// affordableQuantity floors free / price into a Quantity, saturating at
// the Quantity max rather than overflowing.
func affordableQuantity(free *uint256.Int, price types.Price) types.Quantity {
	if price == 0 {
		return 0
	}
	divisor := uint256.NewInt(uint64(price))
	q := new(uint256.Int).Div(free, divisor)
	if !q.IsUint64() {
		return ^types.Quantity(0)
	}
	v := q.Uint64()
	if v > uint64(^types.Quantity(0)) {
		return ^types.Quantity(0)
	}
	return types.Quantity(v)
}

func opposite(side types.Side) types.Side {
	if side == types.Buy {
		return types.Sell
	}
	return types.Buy
}
