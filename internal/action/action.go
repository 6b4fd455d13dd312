// Package action implements the canonical wire format of the four
// actions the engine accepts, and the structural validation the spec
// calls "decoding" (component B). Actions are modeled as a sealed
// interface with a type switch at the dispatch site in the engine
// package rather than a class hierarchy — there is no dynamic dispatch
// inside the core, only exhaustive matching.
package action

import (
	"github.com/zkspot/matchcore/internal/codec"
	"github.com/zkspot/matchcore/internal/errs"
	"github.com/zkspot/matchcore/internal/types"
)

// Tag identifies an action's wire variant.
type Tag uint8

const (
	TagCreateOrder Tag = 0
	TagCancel      Tag = 1
	TagDeposit     Tag = 2
	TagWithdraw    Tag = 3
)

// Action is implemented by the four recognized action payloads. The
// unexported method seals the interface to this package's types.
type Action interface {
	isAction()
}

// CreateOrder places a new order. Price is nil for a market order.
type CreateOrder struct {
	OrderID  string
	Side     types.Side
	Price    *uint32
	Base     types.Token
	Quote    types.Token
	Quantity uint32
}

// Cancel removes a resting order owned by the caller.
type Cancel struct {
	OrderID string
}

// Deposit credits the caller's free balance of a token.
type Deposit struct {
	Token  types.Token
	Amount uint32
}

// Withdraw debits the caller's free balance of a token.
type Withdraw struct {
	Token  types.Token
	Amount uint32
}

func (CreateOrder) isAction() {}
func (Cancel) isAction()      {}
func (Deposit) isAction()     {}
func (Withdraw) isAction()    {}

// Pair reconstructs the (base, quote) pair a CreateOrder targets.
func (c CreateOrder) Pair() types.Pair {
	return types.Pair{Base: c.Base, Quote: c.Quote}
}

// Encode produces the canonical byte encoding of an action. Decoding the
// result with Decode must return a value equal to a, and re-encoding
// that value must reproduce these exact bytes — the round-trip property
// the snapshot hash depends on.
func Encode(a Action) ([]byte, error) {
	w := codec.NewWriter()
	switch v := a.(type) {
	case CreateOrder:
		w.PutUint8(uint8(TagCreateOrder))
		w.PutString(v.OrderID)
		w.PutUint8(uint8(v.Side))
		w.PutOptionalUint32(v.Price)
		w.PutString(string(v.Base))
		w.PutString(string(v.Quote))
		w.PutUint32(v.Quantity)
	case Cancel:
		w.PutUint8(uint8(TagCancel))
		w.PutString(v.OrderID)
	case Deposit:
		w.PutUint8(uint8(TagDeposit))
		w.PutString(string(v.Token))
		w.PutUint32(v.Amount)
	case Withdraw:
		w.PutUint8(uint8(TagWithdraw))
		w.PutString(string(v.Token))
		w.PutUint32(v.Amount)
	default:
		return nil, errs.New(errs.MalformedAction, "unknown action type")
	}
	return w.Bytes(), nil
}

// Decode parses and structurally validates the canonical byte encoding
// of an action. Business-rule violations named by the spec (zero
// quantity, equal base/quote, empty order id, zero amount) are reported
// as MalformedAction here, at the earliest possible point.
func Decode(raw []byte) (Action, error) {
	r := codec.NewReader(raw)
	tag, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}

	var a Action
	switch Tag(tag) {
	case TagCreateOrder:
		id, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		sideByte, err := r.ReadUint8()
		if err != nil {
			return nil, err
		}
		if sideByte != uint8(types.Buy) && sideByte != uint8(types.Sell) {
			return nil, errs.Newf(errs.MalformedAction, "invalid side byte %d", sideByte)
		}
		price, err := r.ReadOptionalUint32()
		if err != nil {
			return nil, err
		}
		base, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		quote, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		qty, err := r.ReadUint32()
		if err != nil {
			return nil, err
		}
		a = CreateOrder{
			OrderID:  id,
			Side:     types.Side(sideByte),
			Price:    price,
			Base:     types.Token(base),
			Quote:    types.Token(quote),
			Quantity: qty,
		}
	case TagCancel:
		id, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		a = Cancel{OrderID: id}
	case TagDeposit:
		tok, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		amt, err := r.ReadUint32()
		if err != nil {
			return nil, err
		}
		a = Deposit{Token: types.Token(tok), Amount: amt}
	case TagWithdraw:
		tok, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		amt, err := r.ReadUint32()
		if err != nil {
			return nil, err
		}
		a = Withdraw{Token: types.Token(tok), Amount: amt}
	default:
		return nil, errs.Newf(errs.MalformedAction, "unknown action tag %d", tag)
	}

	if err := r.RequireExhausted(); err != nil {
		return nil, err
	}
	if err := Validate(a); err != nil {
		return nil, err
	}
	return a, nil
}

// Validate applies the structural constraints from the spec to an
// already-constructed Action. It is exported separately from Decode so
// a host that builds actions programmatically (rather than receiving
// wire bytes) can still run the same checks.
func Validate(a Action) error {
	switch v := a.(type) {
	case CreateOrder:
		if v.OrderID == "" {
			return errs.New(errs.MalformedAction, "order_id must not be empty")
		}
		if v.Side != types.Buy && v.Side != types.Sell {
			return errs.Newf(errs.MalformedAction, "invalid side %d", v.Side)
		}
		if v.Base == v.Quote {
			return errs.New(errs.MalformedAction, "base and quote must differ")
		}
		if v.Base == "" || v.Quote == "" {
			return errs.New(errs.MalformedAction, "base and quote must not be empty")
		}
		if v.Quantity == 0 {
			return errs.New(errs.MalformedAction, "quantity must be >= 1")
		}
		if v.Price != nil && *v.Price == 0 {
			return errs.New(errs.MalformedAction, "limit price must be >= 1")
		}
	case Cancel:
		if v.OrderID == "" {
			return errs.New(errs.MalformedAction, "order_id must not be empty")
		}
	case Deposit:
		if v.Token == "" {
			return errs.New(errs.MalformedAction, "token must not be empty")
		}
		if v.Amount == 0 {
			return errs.New(errs.MalformedAction, "amount must be >= 1")
		}
	case Withdraw:
		if v.Token == "" {
			return errs.New(errs.MalformedAction, "token must not be empty")
		}
		if v.Amount == 0 {
			return errs.New(errs.MalformedAction, "amount must be >= 1")
		}
	default:
		return errs.New(errs.MalformedAction, "unknown action type")
	}
	return nil
}
