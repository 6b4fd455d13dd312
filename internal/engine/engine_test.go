package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zkspot/matchcore/internal/action"
	"github.com/zkspot/matchcore/internal/errs"
	"github.com/zkspot/matchcore/internal/event"
	"github.com/zkspot/matchcore/internal/matching"
	"github.com/zkspot/matchcore/internal/types"
)

func limitPrice(p uint32) *uint32 { return &p }

func mustApply(t *testing.T, e *Engine, caller types.User, a action.Action) []event.Event {
	t.Helper()
	evs, err := e.Apply(caller, a)
	require.NoError(t, err)
	return evs
}

// TestScenarioA_SimpleMatch mirrors the literal "simple match" scenario:
// alice sells 5 ORANJ at 10, bob buys 5 at 10, both orders terminate.
func TestScenarioA_SimpleMatch(t *testing.T) {
	e := New(DefaultConfig())
	pair := types.Pair{Base: "ORANJ", Quote: "USDC"}

	mustApply(t, e, "alice", action.Deposit{Token: "ORANJ", Amount: 100})
	mustApply(t, e, "bob", action.Deposit{Token: "USDC", Amount: 1000})
	mustApply(t, e, "alice", action.CreateOrder{OrderID: "o1", Side: types.Sell, Price: limitPrice(10), Base: pair.Base, Quote: pair.Quote, Quantity: 5})
	evs := mustApply(t, e, "bob", action.CreateOrder{OrderID: "o2", Side: types.Buy, Price: limitPrice(10), Base: pair.Base, Quote: pair.Quote, Quantity: 5})

	assert.Equal(t, uint64(95), e.State().Balance("alice", "ORANJ").Uint64())
	assert.Equal(t, uint64(50), e.State().Balance("alice", "USDC").Uint64())
	assert.Equal(t, uint64(950), e.State().Balance("bob", "USDC").Uint64())
	assert.Equal(t, uint64(5), e.State().Balance("bob", "ORANJ").Uint64())

	view := e.State().BookView(pair)
	assert.Empty(t, view.Bids)
	assert.Empty(t, view.Asks)

	last := evs[len(evs)-1]
	assert.IsType(t, event.OrderExecuted{}, last)
	assert.Equal(t, "o2", last.(event.OrderExecuted).OrderID)
}

// TestScenarioB_PartialFillResidue continues A: a new sell of 3 at 10
// fully fills, a buy of 5 at 12 partially fills (3) and rests 2 at 12.
func TestScenarioB_PartialFillResidue(t *testing.T) {
	e := New(DefaultConfig())
	pair := types.Pair{Base: "ORANJ", Quote: "USDC"}

	mustApply(t, e, "alice", action.Deposit{Token: "ORANJ", Amount: 100})
	mustApply(t, e, "bob", action.Deposit{Token: "USDC", Amount: 1000})
	mustApply(t, e, "alice", action.CreateOrder{OrderID: "o1", Side: types.Sell, Price: limitPrice(10), Base: pair.Base, Quote: pair.Quote, Quantity: 5})
	mustApply(t, e, "bob", action.CreateOrder{OrderID: "o2", Side: types.Buy, Price: limitPrice(10), Base: pair.Base, Quote: pair.Quote, Quantity: 5})

	mustApply(t, e, "alice", action.CreateOrder{OrderID: "o3", Side: types.Sell, Price: limitPrice(10), Base: pair.Base, Quote: pair.Quote, Quantity: 3})
	mustApply(t, e, "bob", action.CreateOrder{OrderID: "o4", Side: types.Buy, Price: limitPrice(12), Base: pair.Base, Quote: pair.Quote, Quantity: 5})

	assert.Equal(t, uint64(896), e.State().Balance("bob", "USDC").Uint64())
	assert.Equal(t, uint64(80), e.State().Balance("alice", "USDC").Uint64())
	assert.Equal(t, uint64(92), e.State().Balance("alice", "ORANJ").Uint64())
	assert.Equal(t, uint64(8), e.State().Balance("bob", "ORANJ").Uint64())

	o4, ok := e.State().Orders["o4"]
	require.True(t, ok)
	assert.Equal(t, types.Quantity(2), o4.Quantity)
	assert.Equal(t, types.Price(12), o4.Price)
}

// TestScenarioC_CancelRefundsEscrow continues B: cancelling o4 refunds
// its resting escrow.
func TestScenarioC_CancelRefundsEscrow(t *testing.T) {
	e, pair := seedScenarioB(t)

	evs := mustApply(t, e, "bob", action.Cancel{OrderID: "o4"})
	assert.Equal(t, uint64(920), e.State().Balance("bob", "USDC").Uint64())
	_, stillRests := e.State().Orders["o4"]
	assert.False(t, stillRests)

	view := e.State().BookView(pair)
	assert.Empty(t, view.Bids)

	require.Len(t, evs, 2)
	assert.IsType(t, event.OrderCancelled{}, evs[0])
	assert.IsType(t, event.BalanceUpdated{}, evs[1])
}

// TestScenarioD_UnauthorizedCancel: cancelling someone else's order fails
// with Unauthorized and changes nothing.
func TestScenarioD_UnauthorizedCancel(t *testing.T) {
	e, _ := seedScenarioB(t)
	before := e.State().Snapshot()

	_, err := e.Apply("alice", action.Cancel{OrderID: "o4"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Unauthorized))
	assert.Equal(t, before, e.State().Snapshot())
}

// TestScenarioE_InsufficientBalanceOnPlacement.
func TestScenarioE_InsufficientBalanceOnPlacement(t *testing.T) {
	e := New(DefaultConfig())
	mustApply(t, e, "c", action.Deposit{Token: "USDC", Amount: 5})

	before := e.State().Snapshot()
	_, err := e.Apply("c", action.CreateOrder{
		OrderID: "o5", Side: types.Buy, Price: limitPrice(3),
		Base: "ORANJ", Quote: "USDC", Quantity: 2,
	})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.InsufficientBalance))
	assert.Equal(t, before, e.State().Snapshot())
}

// TestScenarioF_MarketBuyWalksMultipleLevels: asks at 10x2 and 11x3, a
// market buy of 4 walks both levels, pays 20+22=42, no residue rests.
func TestScenarioF_MarketBuyWalksMultipleLevels(t *testing.T) {
	e := New(DefaultConfig())
	pair := types.Pair{Base: "ORANJ", Quote: "USDC"}

	mustApply(t, e, "alice", action.Deposit{Token: "ORANJ", Amount: 100})
	mustApply(t, e, "bob", action.Deposit{Token: "USDC", Amount: 1000})
	mustApply(t, e, "alice", action.CreateOrder{OrderID: "a1", Side: types.Sell, Price: limitPrice(10), Base: pair.Base, Quote: pair.Quote, Quantity: 2})
	mustApply(t, e, "alice", action.CreateOrder{OrderID: "a2", Side: types.Sell, Price: limitPrice(11), Base: pair.Base, Quote: pair.Quote, Quantity: 3})

	evs := mustApply(t, e, "bob", action.CreateOrder{OrderID: "b1", Side: types.Buy, Price: nil, Base: pair.Base, Quote: pair.Quote, Quantity: 4})

	assert.Equal(t, uint64(1000-42), e.State().Balance("bob", "USDC").Uint64())
	assert.Equal(t, uint64(4), e.State().Balance("bob", "ORANJ").Uint64())
	view := e.State().BookView(pair)
	require.Len(t, view.Asks, 1)
	assert.Equal(t, types.Quantity(1), view.Asks[0].Quantity)

	last := evs[len(evs)-1]
	assert.IsType(t, event.OrderExecuted{}, last)
	assert.Equal(t, "b1", last.(event.OrderExecuted).OrderID)
}

func TestDuplicateOrderIDRejected(t *testing.T) {
	e := New(DefaultConfig())
	mustApply(t, e, "alice", action.Deposit{Token: "USDC", Amount: 100})
	mustApply(t, e, "alice", action.CreateOrder{OrderID: "dup", Side: types.Buy, Price: limitPrice(1), Base: "A", Quote: "USDC", Quantity: 1})

	_, err := e.Apply("alice", action.CreateOrder{OrderID: "dup", Side: types.Buy, Price: limitPrice(1), Base: "A", Quote: "USDC", Quantity: 1})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.DuplicateOrderID))
}

func TestGlobalOrderIDReusePolicy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequireGlobalOrderIDUniqueness = false
	e := New(cfg)
	mustApply(t, e, "alice", action.Deposit{Token: "USDC", Amount: 100})
	mustApply(t, e, "alice", action.CreateOrder{OrderID: "reuse", Side: types.Buy, Price: limitPrice(1), Base: "A", Quote: "USDC", Quantity: 1})
	mustApply(t, e, "alice", action.Cancel{OrderID: "reuse"})

	_, err := e.Apply("alice", action.CreateOrder{OrderID: "reuse", Side: types.Buy, Price: limitPrice(1), Base: "A", Quote: "USDC", Quantity: 1})
	assert.NoError(t, err)
}

func TestMarketOrderNoLiquidityRollsBack(t *testing.T) {
	e := New(DefaultConfig())
	mustApply(t, e, "bob", action.Deposit{Token: "USDC", Amount: 100})
	before := e.State().Snapshot()

	_, err := e.Apply("bob", action.CreateOrder{
		OrderID: "b1", Side: types.Buy, Price: nil, Base: "ORANJ", Quote: "USDC", Quantity: 1,
	})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.NoLiquidity))
	assert.Equal(t, before, e.State().Snapshot())
}

// TestSelfTradeCancelSmallerPolicyResolvesWithoutCrossing: under
// SelfTradeCancelSmaller, a taker that would otherwise cross its own
// resting order has that order, and its own matching residue, cancelled
// instead of traded or rested — the book must never end up crossed.
func TestSelfTradeCancelSmallerPolicyResolvesWithoutCrossing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SelfTradePolicy = matching.SelfTradeCancelSmaller

	e := New(cfg)
	pair := types.Pair{Base: "ORANJ", Quote: "USDC"}
	mustApply(t, e, "alice", action.Deposit{Token: "ORANJ", Amount: 10})
	mustApply(t, e, "alice", action.Deposit{Token: "USDC", Amount: 100})
	mustApply(t, e, "alice", action.CreateOrder{OrderID: "a1", Side: types.Sell, Price: limitPrice(10), Base: pair.Base, Quote: pair.Quote, Quantity: 5})

	evs := mustApply(t, e, "alice", action.CreateOrder{OrderID: "a2", Side: types.Buy, Price: limitPrice(10), Base: pair.Base, Quote: pair.Quote, Quantity: 5})

	_, a1Rests := e.State().Orders["a1"]
	assert.False(t, a1Rests, "the self-owned maker must be cancelled, never left resting to cross")
	_, a2Rests := e.State().Orders["a2"]
	assert.False(t, a2Rests, "the taker's residue must not rest at a price that crosses its own order")

	view := e.State().BookView(pair)
	assert.Empty(t, view.Bids)
	assert.Empty(t, view.Asks)
	assert.False(t, e.State().BookFor(pair).Crossed())

	assert.Equal(t, uint64(10), e.State().Balance("alice", "ORANJ").Uint64())
	assert.Equal(t, uint64(100), e.State().Balance("alice", "USDC").Uint64())

	require.Len(t, evs, 4)
	assert.IsType(t, event.OrderCancelled{}, evs[0])
	assert.IsType(t, event.BalanceUpdated{}, evs[1])
	assert.IsType(t, event.BalanceUpdated{}, evs[2])
	assert.IsType(t, event.OrderExecuted{}, evs[3])
}

// TestSelfTradeCancelSmallerPartialResidueRests: when the taker's
// quantity exceeds the self-owned maker's, only the maker (the smaller
// side) is fully cancelled; the taker's residue — no longer crossing
// anything — rests normally.
func TestSelfTradeCancelSmallerPartialResidueRests(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SelfTradePolicy = matching.SelfTradeCancelSmaller

	e := New(cfg)
	pair := types.Pair{Base: "ORANJ", Quote: "USDC"}
	mustApply(t, e, "alice", action.Deposit{Token: "ORANJ", Amount: 10})
	mustApply(t, e, "alice", action.Deposit{Token: "USDC", Amount: 100})
	mustApply(t, e, "alice", action.CreateOrder{OrderID: "a1", Side: types.Sell, Price: limitPrice(10), Base: pair.Base, Quote: pair.Quote, Quantity: 3})

	mustApply(t, e, "alice", action.CreateOrder{OrderID: "a2", Side: types.Buy, Price: limitPrice(10), Base: pair.Base, Quote: pair.Quote, Quantity: 5})

	_, a1Rests := e.State().Orders["a1"]
	assert.False(t, a1Rests)
	a2, a2Rests := e.State().Orders["a2"]
	require.True(t, a2Rests)
	assert.Equal(t, types.Quantity(2), a2.Quantity)

	assert.False(t, e.State().BookFor(pair).Crossed())
}

// TestSelfTradeExecutePolicyMatchesOwnOrder is the default-policy
// counterpart: the same setup under SelfTradeExecute matches normally.
func TestSelfTradeExecutePolicyMatchesOwnOrder(t *testing.T) {
	e := New(DefaultConfig())
	pair := types.Pair{Base: "ORANJ", Quote: "USDC"}
	mustApply(t, e, "alice", action.Deposit{Token: "ORANJ", Amount: 10})
	mustApply(t, e, "alice", action.Deposit{Token: "USDC", Amount: 100})
	mustApply(t, e, "alice", action.CreateOrder{OrderID: "a1", Side: types.Sell, Price: limitPrice(10), Base: pair.Base, Quote: pair.Quote, Quantity: 5})

	mustApply(t, e, "alice", action.CreateOrder{OrderID: "a2", Side: types.Buy, Price: limitPrice(10), Base: pair.Base, Quote: pair.Quote, Quantity: 5})

	view := e.State().BookView(pair)
	assert.Empty(t, view.Asks)
	assert.Empty(t, view.Bids)
}

func TestReplayDeterminism(t *testing.T) {
	pair := types.Pair{Base: "ORANJ", Quote: "USDC"}
	actions := []struct {
		caller types.User
		a      action.Action
	}{
		{"alice", action.Deposit{Token: "ORANJ", Amount: 100}},
		{"bob", action.Deposit{Token: "USDC", Amount: 1000}},
		{"alice", action.CreateOrder{OrderID: "o1", Side: types.Sell, Price: limitPrice(10), Base: pair.Base, Quote: pair.Quote, Quantity: 5}},
		{"bob", action.CreateOrder{OrderID: "o2", Side: types.Buy, Price: limitPrice(10), Base: pair.Base, Quote: pair.Quote, Quantity: 5}},
	}

	e1 := New(DefaultConfig())
	e2 := New(DefaultConfig())
	for _, step := range actions {
		_, err := e1.Apply(step.caller, step.a)
		require.NoError(t, err)
		_, err = e2.Apply(step.caller, step.a)
		require.NoError(t, err)
	}

	assert.Equal(t, e1.State().Digest(), e2.State().Digest())
}

func seedScenarioB(t *testing.T) (*Engine, types.Pair) {
	t.Helper()
	e := New(DefaultConfig())
	pair := types.Pair{Base: "ORANJ", Quote: "USDC"}

	mustApply(t, e, "alice", action.Deposit{Token: "ORANJ", Amount: 100})
	mustApply(t, e, "bob", action.Deposit{Token: "USDC", Amount: 1000})
	mustApply(t, e, "alice", action.CreateOrder{OrderID: "o1", Side: types.Sell, Price: limitPrice(10), Base: pair.Base, Quote: pair.Quote, Quantity: 5})
	mustApply(t, e, "bob", action.CreateOrder{OrderID: "o2", Side: types.Buy, Price: limitPrice(10), Base: pair.Base, Quote: pair.Quote, Quantity: 5})
	mustApply(t, e, "alice", action.CreateOrder{OrderID: "o3", Side: types.Sell, Price: limitPrice(10), Base: pair.Base, Quote: pair.Quote, Quantity: 3})
	mustApply(t, e, "bob", action.CreateOrder{OrderID: "o4", Side: types.Buy, Price: limitPrice(12), Base: pair.Base, Quote: pair.Quote, Quantity: 5})

	return e, pair
}
