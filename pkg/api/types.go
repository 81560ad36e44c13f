package api

import (
	"github.com/uhyunpark/swappin/pkg/app/core/event"
	"github.com/uhyunpark/swappin/pkg/app/core/swap"
)

// API request and response types for REST endpoints and WebSocket messages.
// Amounts are decimal strings; addresses are 0x-prefixed hex.

// ==============================
// REST Response Types
// ==============================

// TokenInfo describes a registered token
type TokenInfo struct {
	Address     string `json:"address"`
	Symbol      string `json:"symbol"`
	Name        string `json:"name"`
	Decimals    uint8  `json:"decimals"`
	TotalSupply string `json:"totalSupply"`
}

type BalanceResponse struct {
	Token   string `json:"token"`
	Account string `json:"account"`
	Balance string `json:"balance"`
}

type AllowanceResponse struct {
	Token     string `json:"token"`
	Owner     string `json:"owner"`
	Spender   string `json:"spender"`
	Allowance string `json:"allowance"`
}

// OrderInfo is an order as seen by clients. DepositedAmount is what remains in escrow.
type OrderInfo struct {
	ID              uint64 `json:"id"`
	Seller          string `json:"seller"`
	DepositToken    string `json:"depositToken"`
	DepositedAmount string `json:"depositedAmount"`
	InitialAmount   string `json:"initialAmount"`
	Filled          string `json:"filled"`
	PaymentToken    string `json:"paymentToken"`
	PaymentAmount   string `json:"paymentAmount"`
	Status          string `json:"status"` // "open" | "exhausted"
	CreatedAt       int64  `json:"createdAt"`
	UpdatedAt       int64  `json:"updatedAt"`
}

func orderInfo(o *swap.Order) OrderInfo {
	return OrderInfo{
		ID:              o.ID,
		Seller:          o.Seller.Hex(),
		DepositToken:    o.DepositToken.Hex(),
		DepositedAmount: o.DepositAmount.Dec(),
		InitialAmount:   o.InitialAmount.Dec(),
		Filled:          o.Filled().Dec(),
		PaymentToken:    o.PaymentToken.Hex(),
		PaymentAmount:   o.PaymentAmount.Dec(),
		Status:          o.Status().String(),
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

// CallResponse is returned by every state-changing endpoint
type CallResponse struct {
	Status  string        `json:"status"` // "committed"
	Height  uint64        `json:"height"`
	OrderID *uint64       `json:"orderId,omitempty"`
	Events  []event.Event `json:"events"`
}

// ChainStatus summarizes committed state
type ChainStatus struct {
	Height     uint64 `json:"height"`     // Committed calls
	StateRoot  string `json:"stateRoot"`  // Keccak256 over balances, allowances, orders
	Orders     uint64 `json:"orders"`     // Orders ever created
	OpenOrders uint64 `json:"openOrders"` // Orders with deposit remaining
	Tokens     int    `json:"tokens"`
	Custody    string `json:"custody"` // Book escrow account
}

// ErrorResponse is returned for all errors. Error carries the revert reason verbatim.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ==============================
// REST Request Types
// ==============================

// ApproveRequest is the payload for POST /api/v1/tokens/{token}/approve
type ApproveRequest struct {
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

// TransferRequest is the payload for POST /api/v1/tokens/{token}/transfer
type TransferRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// TransferFromRequest is the payload for POST /api/v1/transfer-from
type TransferFromRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

// CreateOrderRequest is the payload for POST /api/v1/orders
type CreateOrderRequest struct {
	DepositToken  string `json:"depositToken"`
	DepositAmount string `json:"depositAmount"`
	PaymentToken  string `json:"paymentToken"`
	PaymentAmount string `json:"paymentAmount"`
}

// PurchaseRequest is the payload for POST /api/v1/orders/{id}/purchase
type PurchaseRequest struct {
	Amount        string `json:"amount"` // deposit token quantity to buy
	PaymentToken  string `json:"paymentToken"`
	PaymentAmount string `json:"paymentAmount"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by client to subscribe to channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g., ["orders", "order:3", "account:0x...", "token:0x..."]
}

// EventUpdate carries one committed ledger event
type EventUpdate struct {
	Type    string      `json:"type"` // "event"
	Channel string      `json:"channel"`
	Event   event.Event `json:"event"`
}

// OrderUpdate is broadcast when an order is created or filled
type OrderUpdate struct {
	Type   string    `json:"type"` // "order"
	Height uint64    `json:"height"`
	Order  OrderInfo `json:"order"`
}
