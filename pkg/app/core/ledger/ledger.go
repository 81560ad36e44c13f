package ledger

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/swappin/pkg/app/core/event"
	"github.com/uhyunpark/swappin/pkg/app/core/revert"
)

// Backend is the mutable state a Ledger reads and writes.
// Getters return copies (never nil); setters take ownership of the value passed in.
// state.Tx is the production implementation: writes are staged until commit.
type Backend interface {
	Balance(token, account common.Address) *uint256.Int
	SetBalance(token, account common.Address, v *uint256.Int)

	Allowance(token, owner, spender common.Address) *uint256.Int
	SetAllowance(token, owner, spender common.Address, v *uint256.Int)

	Supply(token common.Address) *uint256.Int
	SetSupply(token common.Address, v *uint256.Int)

	Emit(ev event.Event)
}

// Ledger tracks balances and allowances for a single token.
// It is a thin view over a Backend; create one per token per operation.
type Ledger struct {
	token   common.Address
	backend Backend
}

// New returns the ledger for token over backend
func New(token common.Address, backend Backend) *Ledger {
	return &Ledger{token: token, backend: backend}
}

// Token returns the token this ledger accounts for
func (l *Ledger) Token() common.Address {
	return l.token
}

// BalanceOf returns account's balance, zero if it never held the token
func (l *Ledger) BalanceOf(account common.Address) *uint256.Int {
	return l.backend.Balance(l.token, account)
}

// Allowance returns how much spender may still move out of owner's balance
func (l *Ledger) Allowance(owner, spender common.Address) *uint256.Int {
	return l.backend.Allowance(l.token, owner, spender)
}

// TotalSupply returns the sum of all balances of this token
func (l *Ledger) TotalSupply() *uint256.Int {
	return l.backend.Supply(l.token)
}

// Approve sets the owner -> spender allowance to exactly amount (replace, not add)
func (l *Ledger) Approve(owner, spender common.Address, amount *uint256.Int) {
	l.backend.SetAllowance(l.token, owner, spender, amount.Clone())
	l.backend.Emit(event.Event{
		Kind:   event.Approval,
		Token:  l.token,
		From:   owner,
		To:     spender,
		Amount: amount.Clone(),
	})
}

// Transfer moves amount from -> to.
// Fails with ErrInsufficientBalance if from holds less than amount.
func (l *Ledger) Transfer(from, to common.Address, amount *uint256.Int) error {
	bal := l.backend.Balance(l.token, from)
	if bal.Lt(amount) {
		return revert.New(revert.ErrInsufficientBalance, "token %s account %s: have %s, need %s",
			l.token.Hex(), from.Hex(), bal.Dec(), amount.Dec())
	}

	// Debit before reading the credit side so a self-transfer nets to zero
	l.backend.SetBalance(l.token, from, new(uint256.Int).Sub(bal, amount))
	dst := l.backend.Balance(l.token, to)
	l.backend.SetBalance(l.token, to, dst.Add(dst, amount))

	l.backend.Emit(event.Event{
		Kind:   event.Transfer,
		Token:  l.token,
		From:   from,
		To:     to,
		Amount: amount.Clone(),
	})
	return nil
}

// TransferFrom moves amount from -> to on behalf of spender.
//
// Check order: allowance first (ErrAllowanceTooLow), then balance
// (ErrInsufficientBalance). On success the allowance shrinks by exactly amount.
func (l *Ledger) TransferFrom(spender, from, to common.Address, amount *uint256.Int) error {
	allowed := l.backend.Allowance(l.token, from, spender)
	if allowed.Lt(amount) {
		return revert.New(revert.ErrAllowanceTooLow, "token %s owner %s spender %s: allowed %s, need %s",
			l.token.Hex(), from.Hex(), spender.Hex(), allowed.Dec(), amount.Dec())
	}
	if err := l.Transfer(from, to, amount); err != nil {
		return err
	}
	l.backend.SetAllowance(l.token, from, spender, allowed.Sub(allowed, amount))
	return nil
}

// Mint credits amount to `to` and grows the total supply.
// Only genesis calls this; it is not part of the caller-facing surface.
func (l *Ledger) Mint(to common.Address, amount *uint256.Int) error {
	supply := l.backend.Supply(l.token)
	next, overflow := new(uint256.Int).AddOverflow(supply, amount)
	if overflow {
		return revert.New(revert.ErrSupplyOverflow, "token %s: supply %s + %s", l.token.Hex(), supply.Dec(), amount.Dec())
	}
	l.backend.SetSupply(l.token, next)

	bal := l.backend.Balance(l.token, to)
	l.backend.SetBalance(l.token, to, bal.Add(bal, amount))

	l.backend.Emit(event.Event{
		Kind:   event.Transfer,
		Token:  l.token,
		To:     to,
		Amount: amount.Clone(),
	})
	return nil
}
