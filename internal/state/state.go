// Package state implements the state container (component A): the
// order directory, the per-pair books, and the balance ledger, plus the
// canonical snapshot encoding used for hashing and the read-only
// accessors the indexer boundary consumes. State itself never decides
// whether a mutation is legal — the matching and ledger packages do
// that — it only holds the data and knows how to encode it
// canonically.
package state

import (
	"sort"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/zkspot/matchcore/internal/book"
	"github.com/zkspot/matchcore/internal/codec"
	"github.com/zkspot/matchcore/internal/ledger"
	"github.com/zkspot/matchcore/internal/types"
)

// State holds everything that must be replayed identically by every
// node: the order directory, the per-pair books, and the balance
// ledger. requireGlobalUniqueness additionally tracks every order id
// ever accepted, so a host that wants global (not just currently-live)
// id uniqueness can opt into it without changing the data model.
type State struct {
	Orders map[string]types.Order
	Books  map[types.Pair]*book.Book
	Ledger *ledger.Ledger

	requireGlobalUniqueness bool
	everSeenOrderIDs        map[string]struct{}
}

// New returns an empty engine state. requireGlobalUniqueness controls
// whether a previously-terminated order id can be reused (the spec's
// open question #3).
func New(requireGlobalUniqueness bool) *State {
	return &State{
		Orders:                  make(map[string]types.Order),
		Books:                   make(map[types.Pair]*book.Book),
		Ledger:                  ledger.New(),
		requireGlobalUniqueness: requireGlobalUniqueness,
		everSeenOrderIDs:        make(map[string]struct{}),
	}
}

// BookFor returns the book for a pair, creating an empty one if absent.
func (s *State) BookFor(pair types.Pair) *book.Book {
	b, ok := s.Books[pair]
	if !ok {
		b = book.New()
		s.Books[pair] = b
	}
	return b
}

// IsLiveOrderID reports whether an order with this id currently rests.
func (s *State) IsLiveOrderID(id string) bool {
	_, ok := s.Orders[id]
	return ok
}

// IsOrderIDTaken reports whether an id cannot be used for a new order:
// either it currently rests, or (when global uniqueness is required)
// it was ever accepted before, even if since terminated.
func (s *State) IsOrderIDTaken(id string) bool {
	if s.IsLiveOrderID(id) {
		return true
	}
	if s.requireGlobalUniqueness {
		_, ok := s.everSeenOrderIDs[id]
		return ok
	}
	return false
}

// MarkOrderIDUsed records that an id has been accepted, for the global
// uniqueness ledger.
func (s *State) MarkOrderIDUsed(id string) {
	if s.requireGlobalUniqueness {
		s.everSeenOrderIDs[id] = struct{}{}
	}
}

// --- Read surface consumed by the indexer boundary, per §6. ---

// AllOrders returns every resting order, sorted by order id — the same
// order the snapshot encodes them in.
func (s *State) AllOrders() []types.Order {
	ids := make([]string, 0, len(s.Orders))
	for id := range s.Orders {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]types.Order, len(ids))
	for i, id := range ids {
		out[i] = s.Orders[id]
	}
	return out
}

// OrdersByOwner returns every resting order owned by user, in a stable
// (order id) order.
func (s *State) OrdersByOwner(user types.User) []types.Order {
	var out []types.Order
	for _, o := range s.AllOrders() {
		if o.Owner == user {
			out = append(out, o)
		}
	}
	return out
}

// BookView is the bid/ask split of a pair's resting orders, each side
// sorted the way it sits in the book: price-time priority, best first.
type BookView struct {
	Pair types.Pair
	Bids []types.Order
	Asks []types.Order
}

// BookView returns the current resting orders for a pair split by side,
// in matching order.
func (s *State) BookView(pair types.Pair) BookView {
	view := BookView{Pair: pair}
	b, ok := s.Books[pair]
	if !ok {
		return view
	}
	for _, lv := range b.Levels(types.Buy) {
		for _, id := range lv.IDs {
			view.Bids = append(view.Bids, s.Orders[id])
		}
	}
	for _, lv := range b.Levels(types.Sell) {
		for _, id := range lv.IDs {
			view.Asks = append(view.Asks, s.Orders[id])
		}
	}
	return view
}

// Balance returns a user's free balance of a token.
func (s *State) Balance(user types.User, token types.Token) *uint256.Int {
	return s.Ledger.Free(user, token)
}

// Snapshot produces the canonical byte encoding of the entire engine
// state: balances sorted by user then token, orders sorted by order
// id, books sorted by pair then by price. Two states with equal logical
// content produce byte-identical output.
func (s *State) Snapshot() []byte {
	w := codec.NewWriter()

	// Balances: sorted by user then token.
	balances := s.Ledger.Balances()
	keys := make([]ledger.Key, 0, len(balances))
	for k := range balances {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].User != keys[j].User {
			return keys[i].User < keys[j].User
		}
		return keys[i].Token < keys[j].Token
	})
	w.PutUint32(uint32(len(keys)))
	for _, k := range keys {
		w.PutString(string(k.User))
		w.PutString(string(k.Token))
		b32 := balances[k].Bytes32()
		w.PutBytes(b32[:])
	}

	// Orders: sorted by order id.
	orders := s.AllOrders()
	w.PutUint32(uint32(len(orders)))
	for _, o := range orders {
		w.PutString(o.ID)
		w.PutString(string(o.Owner))
		w.PutUint8(uint8(o.Side))
		w.PutUint32(uint32(o.Price))
		w.PutString(string(o.Pair.Base))
		w.PutString(string(o.Pair.Quote))
		w.PutUint32(uint32(o.Quantity))
	}

	// Books: sorted by pair (base, then quote), then by price within
	// each side, in matching order.
	pairs := make([]types.Pair, 0, len(s.Books))
	for p := range s.Books {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Less(pairs[j]) })
	w.PutUint32(uint32(len(pairs)))
	for _, p := range pairs {
		w.PutString(string(p.Base))
		w.PutString(string(p.Quote))
		b := s.Books[p]
		for _, side := range []types.Side{types.Buy, types.Sell} {
			levels := b.Levels(side)
			w.PutUint32(uint32(len(levels)))
			for _, lv := range levels {
				w.PutUint32(uint32(lv.Price))
				w.PutUint32(uint32(len(lv.IDs)))
				for _, id := range lv.IDs {
					w.PutString(id)
				}
			}
		}
	}

	return w.Bytes()
}

// Digest returns the Keccak256 hash of the canonical snapshot — the
// state commitment a zkVM host hashes into its proof input. Two
// engines with equal logical state produce the same digest because
// Snapshot is canonical.
func (s *State) Digest() [32]byte {
	var out [32]byte
	copy(out[:], crypto.Keccak256(s.Snapshot()))
	return out
}
