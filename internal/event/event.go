// Package event defines the typed, ordered event stream emitted by a
// step and the per-step buffer (component E) that collects it. Events
// are plain data — there is no observer pattern or async event bus
// inside the core; a step's events are returned to the caller on commit
// and discarded on abort.
package event

import (
	"github.com/holiman/uint256"

	"github.com/zkspot/matchcore/internal/types"
)

// Event is implemented by the five event payloads the indexer boundary
// consumes.
type Event interface {
	isEvent()
}

// OrderCreated reports a new resting order — either a fresh order with
// no immediate match, or the residue of a taker that partially filled.
type OrderCreated struct {
	Order types.Order
}

// OrderUpdate reports a resting order's remaining quantity decreasing
// after a partial fill.
type OrderUpdate struct {
	OrderID           string
	RemainingQuantity types.Quantity
	Pair              types.Pair
}

// OrderExecuted reports an order (maker or taker) reaching zero
// remaining quantity and leaving the book.
type OrderExecuted struct {
	OrderID string
	Pair    types.Pair
}

// OrderCancelled reports a resting order removed by its owner.
type OrderCancelled struct {
	OrderID string
	Pair    types.Pair
}

// BalanceUpdated reports a user's free balance of a token after a
// mutation. Amount is the new balance, not the delta.
type BalanceUpdated struct {
	User   types.User
	Token  types.Token
	Amount *uint256.Int
}

func (OrderCreated) isEvent()   {}
func (OrderUpdate) isEvent()    {}
func (OrderExecuted) isEvent()  {}
func (OrderCancelled) isEvent() {}
func (BalanceUpdated) isEvent() {}

// Emitter buffers the events produced while a step is in flight. It is
// created fresh for every apply() call; on commit its contents become
// the step's return value, on abort it is simply dropped.
type Emitter struct {
	events []Event
}

// NewEmitter returns an empty Emitter.
func NewEmitter() *Emitter {
	return &Emitter{}
}

// Emit appends an event to the buffer.
func (e *Emitter) Emit(ev Event) {
	e.events = append(e.events, ev)
}

// Events returns the buffered events in emission order.
func (e *Emitter) Events() []Event {
	return e.events
}
