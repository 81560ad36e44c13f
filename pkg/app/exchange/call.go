package exchange

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/swappin/pkg/app/core/event"
)

// ErrInvalidCall wraps structural call errors, as opposed to reverts
var ErrInvalidCall = errors.New("invalid call")

// Method names a state-changing call
type Method string

const (
	MethodApprove        Method = "approve"
	MethodTransfer       Method = "transfer"
	MethodTransferFrom   Method = "transfer_from"
	MethodCreateOrder    Method = "create_order"
	MethodPurchaseTokens Method = "purchase_tokens"
)

// Call is the envelope for every state-changing operation. The typed App methods build
// one, the journal records it, and the API decodes it. Amounts are decimal strings on the wire.
//
//	approve:         Token, Spender, Amount
//	transfer:        Token, To, Amount
//	transfer_from:   Token, From, To, Amount
//	create_order:    DepositToken, DepositAmount, PaymentToken, PaymentAmount
//	purchase_tokens: OrderID, Amount, PaymentToken, PaymentAmount
type Call struct {
	Method Method         `json:"method"`
	Caller common.Address `json:"caller"`

	Token   common.Address `json:"token"`
	From    common.Address `json:"from"`
	To      common.Address `json:"to"`
	Spender common.Address `json:"spender"`
	Amount  *uint256.Int   `json:"amount,omitempty"`

	OrderID       uint64         `json:"orderId"`
	DepositToken  common.Address `json:"depositToken"`
	DepositAmount *uint256.Int   `json:"depositAmount,omitempty"`
	PaymentToken  common.Address `json:"paymentToken"`
	PaymentAmount *uint256.Int   `json:"paymentAmount,omitempty"`
}

// Receipt describes a committed call
type Receipt struct {
	Height  uint64        `json:"height"`
	OrderID *uint64       `json:"orderId,omitempty"` // create_order only
	Events  []event.Event `json:"events"`
}

// Validate performs structural checks; amounts and balances are checked on execution
func (c *Call) Validate() error {
	if c.Caller == (common.Address{}) {
		return fmt.Errorf("missing caller")
	}

	switch c.Method {
	case MethodApprove:
		if c.Amount == nil {
			return fmt.Errorf("approve requires amount")
		}
		if c.Spender == (common.Address{}) {
			return fmt.Errorf("approve requires spender")
		}
	case MethodTransfer:
		if c.Amount == nil {
			return fmt.Errorf("transfer requires amount")
		}
		if c.To == (common.Address{}) {
			return fmt.Errorf("transfer requires recipient")
		}
	case MethodTransferFrom:
		if c.Amount == nil {
			return fmt.Errorf("transfer_from requires amount")
		}
		if c.To == (common.Address{}) {
			return fmt.Errorf("transfer_from requires recipient")
		}
	case MethodCreateOrder:
		if c.DepositAmount == nil || c.PaymentAmount == nil {
			return fmt.Errorf("create_order requires deposit and payment amounts")
		}
	case MethodPurchaseTokens:
		if c.Amount == nil || c.PaymentAmount == nil {
			return fmt.Errorf("purchase_tokens requires amount and payment amount")
		}
	case "":
		return fmt.Errorf("missing call method")
	default:
		return fmt.Errorf("unknown call method: %s", c.Method)
	}
	return nil
}

// tokens lists the token addresses that must be registered before the call runs.
// purchase_tokens lists none: the order lookup comes first, and the order's payment
// token check rejects any other token.
func (c *Call) tokens() []common.Address {
	switch c.Method {
	case MethodApprove, MethodTransfer, MethodTransferFrom:
		return []common.Address{c.Token}
	case MethodCreateOrder:
		return []common.Address{c.DepositToken, c.PaymentToken}
	}
	return nil
}

// DecodeCall parses and validates a JSON call envelope
func DecodeCall(data []byte) (*Call, error) {
	var c Call
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal call: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCall, err)
	}
	return &c, nil
}

// Entry is one journal line
type Entry struct {
	Height    uint64        `json:"height"`
	Timestamp int64         `json:"timestamp"`
	Genesis   bool          `json:"genesis,omitempty"`
	Call      *Call         `json:"call,omitempty"`
	Events    []event.Event `json:"events"`
}
