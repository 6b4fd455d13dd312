// Package ledger implements the balance ledger (component C): per-user,
// per-token free balances, escrow bookkeeping for resting orders, and
// the checked arithmetic the spec's ArithmeticOverflow error exists
// for. Balances are u128 in the spec; Go has no native 128-bit integer,
// so this package uses github.com/holiman/uint256 (the fixed-width,
// allocation-free integer type the go-ethereum family already relies on
// for exactly this kind of deterministic ledger math) and simply bounds
// every value to the u128 ceiling explicitly.
package ledger

import (
	"github.com/holiman/uint256"

	"github.com/zkspot/matchcore/internal/errs"
	"github.com/zkspot/matchcore/internal/types"
)

// maxU128 is 2^128 - 1, the ceiling every free balance must respect even
// though uint256.Int itself can hold far more.
var maxU128 = func() *uint256.Int {
	one := uint256.NewInt(1)
	ceiling := new(uint256.Int).Lsh(one, 128)
	return ceiling.Sub(ceiling, uint256.NewInt(1))
}()

// Key identifies a single (user, token) balance cell.
type Key struct {
	User  types.User
	Token types.Token
}

// Ledger holds every user's free balances in a single flat map, per the
// design note preferring a flat (user, token) -> amount mapping over a
// nested map-of-maps.
type Ledger struct {
	balances map[Key]*uint256.Int
}

// New returns an empty Ledger.
func New() *Ledger {
	return &Ledger{balances: make(map[Key]*uint256.Int)}
}

// Free returns a user's free balance of a token (zero if the cell has
// never been touched). The returned value is a clone; mutating it never
// affects the ledger.
func (l *Ledger) Free(user types.User, token types.Token) *uint256.Int {
	return l.getOrZero(Key{user, token}).Clone()
}

func (l *Ledger) getOrZero(k Key) *uint256.Int {
	if v, ok := l.balances[k]; ok {
		return v
	}
	return uint256.NewInt(0)
}

// Journal records the pre-step value of every balance cell a step
// touches, in order to support all-or-nothing rollback. Create one with
// NewJournal; a nil *Journal records nothing and rolls back nothing.
type Journal struct {
	touched map[Key]bool
	orig    map[Key]*uint256.Int
	absent  map[Key]bool
}

// NewJournal returns an empty balance journal.
func NewJournal() *Journal {
	return &Journal{
		touched: make(map[Key]bool),
		orig:    make(map[Key]*uint256.Int),
		absent:  make(map[Key]bool),
	}
}

func (l *Ledger) record(j *Journal, k Key) {
	if j == nil || j.touched[k] {
		return
	}
	j.touched[k] = true
	if v, ok := l.balances[k]; ok {
		j.orig[k] = v.Clone()
	} else {
		j.absent[k] = true
	}
}

// Rollback restores every balance cell the journal recorded to its
// pre-step value, deleting cells that did not exist before the step.
func (l *Ledger) Rollback(j *Journal) {
	if j == nil {
		return
	}
	for k := range j.touched {
		if j.absent[k] {
			delete(l.balances, k)
			continue
		}
		l.balances[k] = j.orig[k]
	}
}

// Credit adds amount to a user's free balance. Used by Deposit and by
// match proceeds.
func (l *Ledger) Credit(j *Journal, user types.User, token types.Token, amount *uint256.Int) (*uint256.Int, error) {
	k := Key{user, token}
	l.record(j, k)

	cur := l.getOrZero(k)
	sum, overflow := new(uint256.Int).AddOverflow(cur, amount)
	if overflow || sum.Cmp(maxU128) > 0 {
		return nil, errs.Newf(errs.ArithmeticOverflow, "credit of %s to %s/%s overflows u128", amount, user, token)
	}
	l.balances[k] = sum
	return sum.Clone(), nil
}

// Debit subtracts amount from a user's free balance, failing if the
// free balance is insufficient. Used by Withdraw and by escrow at order
// placement.
func (l *Ledger) Debit(j *Journal, user types.User, token types.Token, amount *uint256.Int) (*uint256.Int, error) {
	k := Key{user, token}
	l.record(j, k)

	cur := l.getOrZero(k)
	if cur.Cmp(amount) < 0 {
		return nil, errs.Newf(errs.InsufficientBalance, "%s has %s/%s free, need %s", user, cur, token, amount)
	}
	remaining := new(uint256.Int).Sub(cur, amount)
	l.balances[k] = remaining
	return remaining.Clone(), nil
}

// CheckedMul computes price * quantity as a checked u128 quote amount.
// u32 * u32 can never overflow a u64 let alone a u128, but the check is
// kept general and explicit rather than assumed.
func CheckedMul(price types.Price, quantity types.Quantity) (*uint256.Int, error) {
	cost, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(uint64(price)), uint256.NewInt(uint64(quantity)))
	if overflow || cost.Cmp(maxU128) > 0 {
		return nil, errs.Newf(errs.ArithmeticOverflow, "price %d * quantity %d overflows u128", price, quantity)
	}
	return cost, nil
}

// EscrowCost computes the checked cost of resting an order: price *
// quantity for a buy (in quote units), or quantity alone for a sell (in
// base units).
func EscrowCost(side types.Side, price types.Price, quantity types.Quantity) (*uint256.Int, error) {
	if side == types.Sell {
		return uint256.NewInt(uint64(quantity)), nil
	}
	return CheckedMul(price, quantity)
}

// EscrowForOrder debits the owner the computed cost of resting order o
// at its full remaining quantity.
func (l *Ledger) EscrowForOrder(j *Journal, o types.Order) error {
	cost, err := EscrowCost(o.Side, o.Price, o.Quantity)
	if err != nil {
		return err
	}
	_, err = l.Debit(j, o.Owner, o.EscrowToken(), cost)
	return err
}

// ReleaseEscrow credits back the portion of an order's escrow
// corresponding to remaining: the order's quantity when it is cancelled,
// or the slice cancelled from it by a self-trade under the cancel-smaller
// policy.
func (l *Ledger) ReleaseEscrow(j *Journal, o types.Order, remaining types.Quantity) (*uint256.Int, error) {
	cost, err := EscrowCost(o.Side, o.Price, remaining)
	if err != nil {
		return nil, err
	}
	return l.Credit(j, o.Owner, o.EscrowToken(), cost)
}

// Balances returns a stable snapshot of every (user, token) cell with a
// non-zero balance, used by the state container's canonical encoding.
func (l *Ledger) Balances() map[Key]*uint256.Int {
	out := make(map[Key]*uint256.Int, len(l.balances))
	for k, v := range l.balances {
		if v.IsZero() {
			continue
		}
		out[k] = v.Clone()
	}
	return out
}
