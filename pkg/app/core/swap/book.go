package swap

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/swappin/pkg/app/core/event"
	"github.com/uhyunpark/swappin/pkg/app/core/ledger"
	"github.com/uhyunpark/swappin/pkg/app/core/revert"
)

var (
	errMissingAmount           = errors.New("order amount missing")
	errRemainingExceedsInitial = errors.New("remaining deposit exceeds initial deposit")
	errZeroTerms               = errors.New("order terms must be non-zero")
)

// Backend extends the ledger backend with order storage.
// Order returns a copy; PutOrder stages the given order.
type Backend interface {
	ledger.Backend

	Order(id uint64) (*Order, bool)
	PutOrder(o *Order)
	NextOrderID() uint64 // allocates; ids are sequential and never reused
	Now() int64          // trusted timestamp, Unix milliseconds
}

// Option configures a Book
type Option func(*Book)

// WithRateEnforcement makes PurchaseTokens reject payments below the order's
// creation rate. Off by default: buyers choose what to pay.
func WithRateEnforcement() Option {
	return func(b *Book) { b.enforceRate = true }
}

// Book is the swap registry. Escrowed deposits are held by the book's own
// custody account on each deposit token's ledger.
type Book struct {
	custody     common.Address
	backend     Backend
	enforceRate bool
}

// NewBook returns a book whose custody account is custody
func NewBook(custody common.Address, backend Backend, opts ...Option) *Book {
	b := &Book{custody: custody, backend: backend}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Custody returns the account holding escrowed deposits
func (b *Book) Custody() common.Address {
	return b.custody
}

func (b *Book) ledger(token common.Address) *ledger.Ledger {
	return ledger.New(token, b.backend)
}

// CreateOrder escrows depositAmount of depositToken from seller and opens an order
// asking paymentAmount of paymentToken for the whole deposit. The seller must have
// approved the book's custody account for at least depositAmount.
func (b *Book) CreateOrder(seller, depositToken common.Address, depositAmount *uint256.Int, paymentToken common.Address, paymentAmount *uint256.Int) (uint64, error) {
	if seller == b.custody {
		return 0, revert.New(revert.ErrCustodyCaller, "seller %s", seller.Hex())
	}
	if depositAmount.IsZero() {
		return 0, revert.New(revert.ErrInvalidAmount, "deposit amount is zero")
	}
	if paymentAmount.IsZero() {
		return 0, revert.New(revert.ErrInvalidAmount, "payment amount is zero")
	}

	// Pull the deposit into custody: the book spends the seller's allowance
	if err := b.ledger(depositToken).TransferFrom(b.custody, seller, b.custody, depositAmount); err != nil {
		return 0, err
	}

	now := b.backend.Now()
	o := &Order{
		ID:            b.backend.NextOrderID(),
		Seller:        seller,
		DepositToken:  depositToken,
		DepositAmount: depositAmount.Clone(),
		InitialAmount: depositAmount.Clone(),
		PaymentToken:  paymentToken,
		PaymentAmount: paymentAmount.Clone(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	b.backend.PutOrder(o)

	b.backend.Emit(event.Event{
		Kind:      event.OrderCreated,
		Token:     depositToken,
		From:      seller,
		To:        b.custody,
		Amount:    depositAmount.Clone(),
		OrderID:   event.OrderRef(o.ID),
		Payment:   paymentAmount.Clone(),
		Remaining: depositAmount.Clone(),
	})
	return o.ID, nil
}

// PurchaseTokens buys amount of order id's deposit for payment of paymentToken.
// The buyer's payment goes straight to the seller; the bought deposit leaves custody
// for the buyer. The buyer must have approved the custody account for payment.
func (b *Book) PurchaseTokens(buyer common.Address, id uint64, amount *uint256.Int, paymentToken common.Address, payment *uint256.Int) error {
	if buyer == b.custody {
		return revert.New(revert.ErrCustodyCaller, "buyer %s", buyer.Hex())
	}

	o, ok := b.backend.Order(id)
	if !ok {
		return revert.New(revert.ErrUnknownOrder, "order %d", id)
	}
	if o.DepositAmount.IsZero() || amount.Gt(o.DepositAmount) {
		return revert.New(revert.ErrInsufficientOrderQuantity, "order %d: remaining %s, requested %s",
			id, o.DepositAmount.Dec(), amount.Dec())
	}
	if amount.IsZero() {
		return revert.New(revert.ErrInvalidAmount, "requested amount is zero")
	}
	if paymentToken != o.PaymentToken {
		return revert.New(revert.ErrTokenMismatch, "order %d wants %s, got %s",
			id, o.PaymentToken.Hex(), paymentToken.Hex())
	}
	if b.enforceRate && !meetsRate(o, amount, payment) {
		return revert.New(revert.ErrPriceBelowRate, "order %d: %s for %s at %s:%s",
			id, payment.Dec(), amount.Dec(), o.InitialAmount.Dec(), o.PaymentAmount.Dec())
	}

	if err := b.ledger(paymentToken).TransferFrom(b.custody, buyer, o.Seller, payment); err != nil {
		return err
	}
	if err := b.ledger(o.DepositToken).Transfer(b.custody, buyer, amount); err != nil {
		// Custody always covers open orders; reaching this means state is corrupt
		return err
	}

	o.DepositAmount.Sub(o.DepositAmount, amount)
	o.UpdatedAt = b.backend.Now()
	b.backend.PutOrder(o)

	b.backend.Emit(event.Event{
		Kind:      event.OrderFilled,
		Token:     o.DepositToken,
		From:      o.Seller,
		To:        buyer,
		Amount:    amount.Clone(),
		OrderID:   event.OrderRef(id),
		Payment:   payment.Clone(),
		Remaining: o.Remaining(),
	})
	return nil
}

// TransferFrom is a pass-through to token's ledger with caller as spender.
// It does not touch escrow.
func (b *Book) TransferFrom(caller, from, to, token common.Address, amount *uint256.Int) error {
	return b.ledger(token).TransferFrom(caller, from, to, amount)
}

// Order returns a copy of order id
func (b *Book) Order(id uint64) (*Order, error) {
	o, ok := b.backend.Order(id)
	if !ok {
		return nil, revert.New(revert.ErrUnknownOrder, "order %d", id)
	}
	return o, nil
}

// meetsRate reports payment/amount >= PaymentAmount/InitialAmount, cross-multiplied
// in big.Int so the products cannot overflow.
func meetsRate(o *Order, amount, payment *uint256.Int) bool {
	paid := new(big.Int).Mul(payment.ToBig(), o.InitialAmount.ToBig())
	owed := new(big.Int).Mul(amount.ToBig(), o.PaymentAmount.ToBig())
	return paid.Cmp(owed) >= 0
}
