package state_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/swappin/pkg/app/core/ledger"
	"github.com/uhyunpark/swappin/pkg/app/core/state"
	"github.com/uhyunpark/swappin/pkg/app/core/swap"
)

var (
	tokenA  = common.HexToAddress("0x1000000000000000000000000000000000000001")
	tokenB  = common.HexToAddress("0x2000000000000000000000000000000000000002")
	custody = common.HexToAddress("0xB00C000000000000000000000000000000000000")
	alice   = common.HexToAddress("0xAA00000000000000000000000000000000000000")
	bob     = common.HexToAddress("0xBB00000000000000000000000000000000000000")
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

// seeded returns a world where alice holds 100 A and bob 100 B
func seeded(t *testing.T) *state.World {
	t.Helper()
	w := state.NewWorld()
	tx := w.Begin(1)
	require.NoError(t, ledger.New(tokenA, tx).Mint(alice, u(100)))
	require.NoError(t, ledger.New(tokenB, tx).Mint(bob, u(100)))
	w.Apply(tx.Changes())
	return w
}

func TestTxIsInvisibleUntilApplied(t *testing.T) {
	w := seeded(t)
	tx := w.Begin(2)
	require.NoError(t, ledger.New(tokenA, tx).Transfer(alice, bob, u(40)))

	assert.Equal(t, u(60), tx.Balance(tokenA, alice), "tx reads its own writes")
	assert.Equal(t, u(100), w.Balance(tokenA, alice), "world unchanged before apply")

	w.Apply(tx.Changes())
	assert.Equal(t, u(60), w.Balance(tokenA, alice))
	assert.Equal(t, u(40), w.Balance(tokenA, bob))
}

func TestDroppedTxLeavesWorldUntouched(t *testing.T) {
	w := seeded(t)
	before := w.Root()

	tx := w.Begin(2)
	book := swap.NewBook(custody, tx)
	l := ledger.New(tokenA, tx)
	l.Approve(alice, custody, u(100))
	_, err := book.CreateOrder(alice, tokenA, u(100), tokenB, u(10))
	require.NoError(t, err)
	// tx dropped here

	assert.Equal(t, before, w.Root())
	assert.Equal(t, uint64(0), w.OrderCount())
	assert.Equal(t, u(100), w.Balance(tokenA, alice))
	_, ok := w.Order(0)
	assert.False(t, ok)
}

func TestGettersReturnCopies(t *testing.T) {
	w := seeded(t)
	w.Balance(tokenA, alice).SetUint64(1)
	assert.Equal(t, u(100), w.Balance(tokenA, alice))

	tx := w.Begin(2)
	tx.Balance(tokenA, alice).SetUint64(1)
	assert.Equal(t, u(100), tx.Balance(tokenA, alice))
}

func TestChangesAreSortedAndStamped(t *testing.T) {
	w := seeded(t)
	tx := w.Begin(42)
	l := ledger.New(tokenA, tx)
	require.NoError(t, l.Transfer(alice, bob, u(1)))
	l.Approve(alice, bob, u(5))

	cs := tx.Changes()
	assert.Equal(t, uint64(2), cs.Height)
	assert.Equal(t, int64(42), cs.Timestamp)
	require.Len(t, cs.Balances, 2)
	assert.Equal(t, alice, cs.Balances[0].Key.Account, "sorted by account")
	assert.Equal(t, bob, cs.Balances[1].Key.Account)
	require.Len(t, cs.Events, 2)
	for _, ev := range cs.Events {
		assert.Equal(t, uint64(2), ev.Height)
		assert.Equal(t, int64(42), ev.Timestamp)
	}
}

func TestApplyDropsZeroEntries(t *testing.T) {
	w := seeded(t)
	tx := w.Begin(2)
	require.NoError(t, ledger.New(tokenA, tx).Transfer(alice, bob, u(100)))
	w.Apply(tx.Changes())

	// alice's zero balance is not stored, so a world that never saw alice hashes the same
	other := state.NewWorld()
	otx := other.Begin(1)
	require.NoError(t, ledger.New(tokenA, otx).Mint(bob, u(100)))
	require.NoError(t, ledger.New(tokenB, otx).Mint(bob, u(100)))
	other.Apply(otx.Changes())
	otx = other.Begin(2)
	other.Apply(otx.Changes())

	assert.Equal(t, other.Root(), w.Root())
}

func TestRootDependsOnState(t *testing.T) {
	a, b := seeded(t), seeded(t)
	assert.Equal(t, a.Root(), b.Root(), "same history, same root")

	tx := b.Begin(2)
	require.NoError(t, ledger.New(tokenA, tx).Transfer(alice, bob, u(1)))
	b.Apply(tx.Changes())
	assert.NotEqual(t, a.Root(), b.Root())
}

func TestOrdersAndSums(t *testing.T) {
	w := seeded(t)
	tx := w.Begin(2)
	book := swap.NewBook(custody, tx)
	ledger.New(tokenA, tx).Approve(alice, custody, u(30))
	for i := 0; i < 3; i++ {
		_, err := book.CreateOrder(alice, tokenA, u(10), tokenB, u(1))
		require.NoError(t, err)
	}
	w.Apply(tx.Changes())

	assert.Equal(t, uint64(3), w.OrderCount())
	assert.Len(t, w.Orders(nil), 3)
	assert.Len(t, w.Orders(func(o *swap.Order) bool { return o.ID > 0 }), 2)
	assert.Equal(t, u(30), w.Balance(tokenA, custody))
	assert.Equal(t, w.Supply(tokenA), w.SumBalances(tokenA))
	assert.Equal(t, []common.Address{tokenA, tokenB}, w.Tokens())
	assert.Equal(t, uint64(2), w.Height())
}
