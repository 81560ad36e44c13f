package state

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/swappin/pkg/app/core/event"
	"github.com/uhyunpark/swappin/pkg/app/core/swap"
)

// Tx stages writes over a World. Discarding a Tx (simply dropping it) leaves the
// World untouched, which is how failed operations roll back.
type Tx struct {
	world *World
	now   int64

	balances   map[BalanceKey]*uint256.Int
	allowances map[AllowanceKey]*uint256.Int
	supplies   map[common.Address]*uint256.Int
	orders     map[uint64]*swap.Order
	nextOrder  uint64
	events     []event.Event
}

var _ swap.Backend = (*Tx)(nil)

func (tx *Tx) Balance(token, account common.Address) *uint256.Int {
	if v, ok := tx.balances[BalanceKey{token, account}]; ok {
		return v.Clone()
	}
	return tx.world.Balance(token, account)
}

func (tx *Tx) SetBalance(token, account common.Address, v *uint256.Int) {
	tx.balances[BalanceKey{token, account}] = v
}

func (tx *Tx) Allowance(token, owner, spender common.Address) *uint256.Int {
	if v, ok := tx.allowances[AllowanceKey{token, owner, spender}]; ok {
		return v.Clone()
	}
	return tx.world.Allowance(token, owner, spender)
}

func (tx *Tx) SetAllowance(token, owner, spender common.Address, v *uint256.Int) {
	tx.allowances[AllowanceKey{token, owner, spender}] = v
}

func (tx *Tx) Supply(token common.Address) *uint256.Int {
	if v, ok := tx.supplies[token]; ok {
		return v.Clone()
	}
	return tx.world.Supply(token)
}

func (tx *Tx) SetSupply(token common.Address, v *uint256.Int) {
	tx.supplies[token] = v
}

func (tx *Tx) Order(id uint64) (*swap.Order, bool) {
	if o, ok := tx.orders[id]; ok {
		return o.Clone(), true
	}
	return tx.world.Order(id)
}

func (tx *Tx) PutOrder(o *swap.Order) {
	tx.orders[o.ID] = o.Clone()
}

func (tx *Tx) NextOrderID() uint64 {
	id := tx.nextOrder
	tx.nextOrder++
	return id
}

func (tx *Tx) Now() int64 { return tx.now }

func (tx *Tx) Emit(ev event.Event) {
	tx.events = append(tx.events, ev)
}

// Empty reports whether the transaction staged nothing
func (tx *Tx) Empty() bool {
	return len(tx.balances) == 0 && len(tx.allowances) == 0 && len(tx.supplies) == 0 &&
		len(tx.orders) == 0 && len(tx.events) == 0
}

// BalanceEntry is one staged balance
type BalanceEntry struct {
	Key   BalanceKey
	Value *uint256.Int
}

// AllowanceEntry is one staged allowance
type AllowanceEntry struct {
	Key   AllowanceKey
	Value *uint256.Int
}

// SupplyEntry is one staged total supply
type SupplyEntry struct {
	Token common.Address
	Value *uint256.Int
}

// ChangeSet is everything a Tx staged, in deterministic order.
// Storage persists it in one batch; World.Apply installs it in memory.
type ChangeSet struct {
	Height     uint64
	Timestamp  int64
	Balances   []BalanceEntry
	Allowances []AllowanceEntry
	Supplies   []SupplyEntry
	Orders     []*swap.Order // ascending id
	Events     []event.Event
}

// Changes seals the transaction into a change set for the next height.
// Events are stamped with that height and the transaction timestamp.
func (tx *Tx) Changes() *ChangeSet {
	cs := &ChangeSet{
		Height:    tx.world.height + 1,
		Timestamp: tx.now,
	}

	for k, v := range tx.balances {
		cs.Balances = append(cs.Balances, BalanceEntry{Key: k, Value: v.Clone()})
	}
	sort.Slice(cs.Balances, func(i, j int) bool { return balanceKeyLess(cs.Balances[i].Key, cs.Balances[j].Key) })

	for k, v := range tx.allowances {
		cs.Allowances = append(cs.Allowances, AllowanceEntry{Key: k, Value: v.Clone()})
	}
	sort.Slice(cs.Allowances, func(i, j int) bool { return allowanceKeyLess(cs.Allowances[i].Key, cs.Allowances[j].Key) })

	for t, v := range tx.supplies {
		cs.Supplies = append(cs.Supplies, SupplyEntry{Token: t, Value: v.Clone()})
	}
	sort.Slice(cs.Supplies, func(i, j int) bool {
		return string(cs.Supplies[i].Token[:]) < string(cs.Supplies[j].Token[:])
	})

	for _, o := range tx.orders {
		cs.Orders = append(cs.Orders, o.Clone())
	}
	sort.Slice(cs.Orders, func(i, j int) bool { return cs.Orders[i].ID < cs.Orders[j].ID })

	for _, ev := range tx.events {
		ev.Height = cs.Height
		ev.Timestamp = tx.now
		cs.Events = append(cs.Events, ev)
	}
	return cs
}
