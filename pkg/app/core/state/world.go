// Package state holds the ledger and order book state and the staged transaction that
// gives every operation an all-or-nothing boundary.
//
// World is the committed state. Tx overlays a World: reads fall through to the World,
// writes are staged in the Tx and only become visible through World.Apply(tx.Changes()).
// Neither type locks; the owner serializes access (exchange.App holds the mutex).
package state

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/swappin/pkg/app/core/swap"
)

// BalanceKey addresses one account's balance of one token
type BalanceKey struct {
	Token   common.Address
	Account common.Address
}

// AllowanceKey addresses one owner -> spender allowance on one token
type AllowanceKey struct {
	Token   common.Address
	Owner   common.Address
	Spender common.Address
}

// World is the committed state: balances, allowances, supplies and orders.
// Zero values are not stored.
type World struct {
	balances   map[BalanceKey]*uint256.Int
	allowances map[AllowanceKey]*uint256.Int
	supplies   map[common.Address]*uint256.Int
	orders     []*swap.Order // index == order id
	height     uint64        // number of committed transactions
}

// NewWorld returns an empty world
func NewWorld() *World {
	return &World{
		balances:   make(map[BalanceKey]*uint256.Int),
		allowances: make(map[AllowanceKey]*uint256.Int),
		supplies:   make(map[common.Address]*uint256.Int),
	}
}

// Balance returns a copy of the committed balance
func (w *World) Balance(token, account common.Address) *uint256.Int {
	return cloneOrZero(w.balances[BalanceKey{token, account}])
}

// Allowance returns a copy of the committed allowance
func (w *World) Allowance(token, owner, spender common.Address) *uint256.Int {
	return cloneOrZero(w.allowances[AllowanceKey{token, owner, spender}])
}

// Supply returns a copy of the committed total supply of token
func (w *World) Supply(token common.Address) *uint256.Int {
	return cloneOrZero(w.supplies[token])
}

// Order returns a copy of a committed order
func (w *World) Order(id uint64) (*swap.Order, bool) {
	if id >= uint64(len(w.orders)) {
		return nil, false
	}
	return w.orders[id].Clone(), true
}

// OrderCount returns the number of orders ever created (also the next id)
func (w *World) OrderCount() uint64 {
	return uint64(len(w.orders))
}

// Orders returns copies of orders matching keep, in id order
func (w *World) Orders(keep func(*swap.Order) bool) []*swap.Order {
	var out []*swap.Order
	for _, o := range w.orders {
		if keep == nil || keep(o) {
			out = append(out, o.Clone())
		}
	}
	return out
}

// Height returns the number of committed transactions
func (w *World) Height() uint64 {
	return w.height
}

// Tokens returns every token with a recorded supply, sorted
func (w *World) Tokens() []common.Address {
	out := make([]common.Address, 0, len(w.supplies))
	for t := range w.supplies {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

// SumBalances adds up every balance of token. Equal to Supply(token) while the
// conservation invariant holds.
func (w *World) SumBalances(token common.Address) *uint256.Int {
	sum := new(uint256.Int)
	for k, v := range w.balances {
		if k.Token == token {
			sum.Add(sum, v)
		}
	}
	return sum
}

// Begin starts a transaction over w stamped with now (Unix milliseconds)
func (w *World) Begin(now int64) *Tx {
	return &Tx{
		world:      w,
		now:        now,
		balances:   make(map[BalanceKey]*uint256.Int),
		allowances: make(map[AllowanceKey]*uint256.Int),
		supplies:   make(map[common.Address]*uint256.Int),
		orders:     make(map[uint64]*swap.Order),
		nextOrder:  uint64(len(w.orders)),
	}
}

// Apply installs a change set produced by Tx.Changes. Callers persist the change set
// first; Apply itself cannot fail.
func (w *World) Apply(cs *ChangeSet) {
	for _, e := range cs.Balances {
		setOrDelete(w.balances, e.Key, e.Value)
	}
	for _, e := range cs.Allowances {
		setOrDelete(w.allowances, e.Key, e.Value)
	}
	for _, e := range cs.Supplies {
		setOrDelete(w.supplies, e.Token, e.Value)
	}
	for _, o := range cs.Orders {
		if o.ID < uint64(len(w.orders)) {
			w.orders[o.ID] = o.Clone()
			continue
		}
		w.orders = append(w.orders, o.Clone())
	}
	w.height = cs.Height
}

// Root is a Keccak256 commitment over the whole world, iterated in sorted key order
func (w *World) Root() common.Hash {
	var buf bytes.Buffer
	var n [8]byte

	binary.BigEndian.PutUint64(n[:], w.height)
	buf.Write(n[:])

	bkeys := make([]BalanceKey, 0, len(w.balances))
	for k := range w.balances {
		bkeys = append(bkeys, k)
	}
	sort.Slice(bkeys, func(i, j int) bool { return balanceKeyLess(bkeys[i], bkeys[j]) })
	for _, k := range bkeys {
		buf.Write(k.Token[:])
		buf.Write(k.Account[:])
		v := w.balances[k].Bytes32()
		buf.Write(v[:])
	}

	akeys := make([]AllowanceKey, 0, len(w.allowances))
	for k := range w.allowances {
		akeys = append(akeys, k)
	}
	sort.Slice(akeys, func(i, j int) bool { return allowanceKeyLess(akeys[i], akeys[j]) })
	for _, k := range akeys {
		buf.Write(k.Token[:])
		buf.Write(k.Owner[:])
		buf.Write(k.Spender[:])
		v := w.allowances[k].Bytes32()
		buf.Write(v[:])
	}

	for _, o := range w.orders {
		binary.BigEndian.PutUint64(n[:], o.ID)
		buf.Write(n[:])
		buf.Write(o.Seller[:])
		buf.Write(o.DepositToken[:])
		rem := o.DepositAmount.Bytes32()
		buf.Write(rem[:])
		buf.Write(o.PaymentToken[:])
		pay := o.PaymentAmount.Bytes32()
		buf.Write(pay[:])
	}

	return crypto.Keccak256Hash(buf.Bytes())
}

func balanceKeyLess(a, b BalanceKey) bool {
	if c := bytes.Compare(a.Token[:], b.Token[:]); c != 0 {
		return c < 0
	}
	return bytes.Compare(a.Account[:], b.Account[:]) < 0
}

func allowanceKeyLess(a, b AllowanceKey) bool {
	if c := bytes.Compare(a.Token[:], b.Token[:]); c != 0 {
		return c < 0
	}
	if c := bytes.Compare(a.Owner[:], b.Owner[:]); c != 0 {
		return c < 0
	}
	return bytes.Compare(a.Spender[:], b.Spender[:]) < 0
}

func cloneOrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v.Clone()
}

func setOrDelete[K comparable](m map[K]*uint256.Int, k K, v *uint256.Int) {
	if v == nil || v.IsZero() {
		delete(m, k)
		return
	}
	m[k] = v.Clone()
}
