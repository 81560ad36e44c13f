package event

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Kind names a ledger or order book event
type Kind string

const (
	Transfer     Kind = "transfer"
	Approval     Kind = "approval"
	OrderCreated Kind = "order_created"
	OrderFilled  Kind = "order_filled"
)

// Event is staged during an operation and published only after the operation commits.
// Fields not meaningful for a kind are left zero.
type Event struct {
	Kind  Kind           `json:"kind"`
	Token common.Address `json:"token"`

	// transfer: From -> To; approval: From = owner, To = spender
	From   common.Address `json:"from"`
	To     common.Address `json:"to"`
	Amount *uint256.Int   `json:"amount"`

	// order events
	OrderID   *uint64      `json:"orderId,omitempty"`   // set on order events only; 0 is a valid id
	Payment   *uint256.Int `json:"payment,omitempty"`   // paid by buyer (order_filled)
	Remaining *uint256.Int `json:"remaining,omitempty"` // left in the order after the event

	Height    uint64 `json:"height"`    // commit height assigned by the app
	Timestamp int64  `json:"timestamp"` // Unix milliseconds
}

// OrderRef returns a pointer to a copy of id for Event.OrderID
func OrderRef(id uint64) *uint64 { return &id }

// Accounts returns the distinct non-zero accounts an event touches
func (e Event) Accounts() []common.Address {
	var out []common.Address
	if e.From != (common.Address{}) {
		out = append(out, e.From)
	}
	if e.To != (common.Address{}) && e.To != e.From {
		out = append(out, e.To)
	}
	return out
}
