package swap

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// OrderStatus is derived from the remaining deposit
type OrderStatus int8

const (
	OrderOpen OrderStatus = iota
	OrderExhausted
)

func (s OrderStatus) String() string {
	switch s {
	case OrderOpen:
		return "open"
	case OrderExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Order is an escrowed offer: Seller deposited DepositToken and asks for PaymentToken.
// The exchange rate is InitialAmount : PaymentAmount, both fixed at creation.
type Order struct {
	ID     uint64         `json:"id"`
	Seller common.Address `json:"seller"`

	DepositToken  common.Address `json:"depositToken"`
	DepositAmount *uint256.Int   `json:"depositedAmount"` // remaining in custody, never increases
	InitialAmount *uint256.Int   `json:"initialAmount"`

	PaymentToken  common.Address `json:"paymentToken"`
	PaymentAmount *uint256.Int   `json:"paymentAmount"`

	// Unix milliseconds
	CreatedAt int64 `json:"createdAt"`
	UpdatedAt int64 `json:"updatedAt"`
}

// Remaining returns the deposit still available to buyers
func (o *Order) Remaining() *uint256.Int {
	return o.DepositAmount.Clone()
}

// Status returns Exhausted once nothing is left
func (o *Order) Status() OrderStatus {
	if o.DepositAmount.IsZero() {
		return OrderExhausted
	}
	return OrderOpen
}

// Filled returns how much of the initial deposit has been bought
func (o *Order) Filled() *uint256.Int {
	return new(uint256.Int).Sub(o.InitialAmount, o.DepositAmount)
}

// Clone returns a deep copy
func (o *Order) Clone() *Order {
	cp := *o
	cp.DepositAmount = o.DepositAmount.Clone()
	cp.InitialAmount = o.InitialAmount.Clone()
	cp.PaymentAmount = o.PaymentAmount.Clone()
	return &cp
}

// Validate checks order invariants
func (o *Order) Validate() error {
	if o.DepositAmount == nil || o.InitialAmount == nil || o.PaymentAmount == nil {
		return errMissingAmount
	}
	if o.DepositAmount.Gt(o.InitialAmount) {
		return errRemainingExceedsInitial
	}
	if o.InitialAmount.IsZero() || o.PaymentAmount.IsZero() {
		return errZeroTerms
	}
	return nil
}
