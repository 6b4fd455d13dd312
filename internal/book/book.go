// Package book implements the per-pair order book (part of component D):
// two price-indexed, FIFO-within-price structures giving ordered
// iteration from the best price on each side. It is deliberately thin —
// it only ever stores order ids, never Order values — so the engine's
// single global order directory (internal/state) remains the one source
// of truth for an order's data, and a book can be cloned cheaply for the
// pre-step copy the step driver restores on rollback.
//
// Grounded on the teacher's OrderBook (emirpasic/gods redblacktree for
// ordered price levels, ascending for asks and a reversed comparator for
// descending bids), generalized from int64 prices to the spec's u32
// Price and from storing *Order per level to storing order ids.
package book

import (
	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/emirpasic/gods/utils"

	"github.com/zkspot/matchcore/internal/types"
)

// level is the FIFO queue of order ids resting at one price.
type level []string

// Book is the order book for a single pair.
type Book struct {
	Bids *redblacktree.Tree // Price -> level, iteration order descending
	Asks *redblacktree.Tree // Price -> level, iteration order ascending
}

// New returns an empty book for a pair.
func New() *Book {
	return &Book{
		Bids: redblacktree.NewWith(func(a, b interface{}) int {
			return utils.UInt32Comparator(b, a) // highest price first
		}),
		Asks: redblacktree.NewWith(utils.UInt32Comparator), // lowest price first
	}
}

func (b *Book) treeFor(side types.Side) *redblacktree.Tree {
	if side == types.Buy {
		return b.Bids
	}
	return b.Asks
}

// Insert appends orderID to the FIFO queue at price on the given side —
// time priority is preserved because new arrivals always go to the
// back of the queue.
func (b *Book) Insert(side types.Side, price types.Price, orderID string) {
	tree := b.treeFor(side)
	key := uint32(price)
	if lv, found := tree.Get(key); found {
		tree.Put(key, append(lv.(level), orderID))
		return
	}
	tree.Put(key, level{orderID})
}

// Remove deletes orderID from the given side and price, removing the
// level entirely if it becomes empty. Reports whether the id was found.
func (b *Book) Remove(side types.Side, price types.Price, orderID string) bool {
	tree := b.treeFor(side)
	key := uint32(price)
	raw, found := tree.Get(key)
	if !found {
		return false
	}
	lv := raw.(level)
	idx := -1
	for i, id := range lv {
		if id == orderID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return false
	}
	lv = append(lv[:idx], lv[idx+1:]...)
	if len(lv) == 0 {
		tree.Remove(key)
	} else {
		tree.Put(key, lv)
	}
	return true
}

// BestPrice returns the best resting price on a side and whether one
// exists.
func (b *Book) BestPrice(side types.Side) (types.Price, bool) {
	tree := b.treeFor(side)
	if tree.Empty() {
		return 0, false
	}
	node := tree.Left()
	if node == nil {
		return 0, false
	}
	return types.Price(node.Key.(uint32)), true
}

// FrontAtBest returns the order id at the front of the FIFO queue at the
// best price on a side, and that price, and whether any resting order
// exists on that side at all.
func (b *Book) FrontAtBest(side types.Side) (orderID string, price types.Price, ok bool) {
	tree := b.treeFor(side)
	if tree.Empty() {
		return "", 0, false
	}
	node := tree.Left()
	if node == nil {
		return "", 0, false
	}
	lv := node.Value.(level)
	if len(lv) == 0 {
		return "", 0, false
	}
	return lv[0], types.Price(node.Key.(uint32)), true
}

// IsEmpty reports whether a side has no resting orders at all.
func (b *Book) IsEmpty(side types.Side) bool {
	return b.treeFor(side).Empty()
}

// Crossed reports whether the book's best bid and best ask cross — the
// invariant that must never hold at the end of a completed step.
func (b *Book) Crossed() bool {
	bestBid, hasBid := b.BestPrice(types.Buy)
	bestAsk, hasAsk := b.BestPrice(types.Sell)
	if !hasBid || !hasAsk {
		return false
	}
	return bestBid >= bestAsk
}

// Levels returns (price, orderIDs) pairs for a side in the book's
// matching iteration order (best first).
func (b *Book) Levels(side types.Side) []struct {
	Price types.Price
	IDs   []string
} {
	tree := b.treeFor(side)
	it := tree.Iterator()
	it.Begin()
	var out []struct {
		Price types.Price
		IDs   []string
	}
	for it.Next() {
		lv := it.Value().(level)
		ids := make([]string, len(lv))
		copy(ids, lv)
		out = append(out, struct {
			Price types.Price
			IDs   []string
		}{Price: types.Price(it.Key().(uint32)), IDs: ids})
	}
	return out
}

// Clone returns a deep copy of the book, used by the step driver to
// take a pre-mutation snapshot it can restore wholesale on rollback.
func (b *Book) Clone() *Book {
	out := New()
	for _, lv := range b.Levels(types.Buy) {
		for _, id := range lv.IDs {
			out.Insert(types.Buy, lv.Price, id)
		}
	}
	for _, lv := range b.Levels(types.Sell) {
		for _, id := range lv.IDs {
			out.Insert(types.Sell, lv.Price, id)
		}
	}
	return out
}
