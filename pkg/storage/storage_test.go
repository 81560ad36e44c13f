package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
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

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

// commit runs fn in a transaction over w, persists it and applies it
func commit(t *testing.T, s *Store, w *state.World, genesis bool, fn func(tx *state.Tx)) {
	t.Helper()
	tx := w.Begin(1_700_000_000_000)
	fn(tx)
	cs := tx.Changes()
	if genesis {
		require.NoError(t, s.CommitGenesis(cs))
	} else {
		require.NoError(t, s.Commit(cs))
	}
	w.Apply(cs)
}

func TestKeysRoundTrip(t *testing.T) {
	tok, acct, err := parseBalanceKey(balanceKey(tokenA, alice))
	require.NoError(t, err)
	assert.Equal(t, tokenA, tok)
	assert.Equal(t, alice, acct)

	tok, owner, spender, err := parseAllowanceKey(allowanceKey(tokenB, alice, custody))
	require.NoError(t, err)
	assert.Equal(t, tokenB, tok)
	assert.Equal(t, alice, owner)
	assert.Equal(t, custody, spender)

	tok, err = parseSupplyKey(supplyKey(tokenA))
	require.NoError(t, err)
	assert.Equal(t, tokenA, tok)

	_, _, err = parseBalanceKey([]byte("bal:short"))
	assert.Error(t, err)
}

func TestOrderKeysSortById(t *testing.T) {
	assert.Less(t, string(orderKey(9)), string(orderKey(10)))
	assert.Less(t, string(orderKey(99)), string(orderKey(100)))
}

func TestHeightCodec(t *testing.T) {
	h, err := decodeHeight(encodeHeight(123456789))
	require.NoError(t, err)
	assert.Equal(t, uint64(123456789), h)

	_, err = decodeHeight([]byte{1, 2})
	assert.Error(t, err)
}

func TestLoadEmptyStore(t *testing.T) {
	s, _ := openTestStore(t)

	w, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), w.Height())
	assert.Equal(t, uint64(0), w.OrderCount())

	applied, err := s.GenesisApplied()
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestCommitAndReload(t *testing.T) {
	s, path := openTestStore(t)
	w := state.NewWorld()

	commit(t, s, w, true, func(tx *state.Tx) {
		require.NoError(t, ledger.New(tokenA, tx).Mint(alice, u(1000)))
		require.NoError(t, ledger.New(tokenB, tx).Mint(bob, u(500)))
	})
	commit(t, s, w, false, func(tx *state.Tx) {
		ledger.New(tokenA, tx).Approve(alice, custody, u(300))
		book := swap.NewBook(custody, tx)
		_, err := book.CreateOrder(alice, tokenA, u(100), tokenB, u(20))
		require.NoError(t, err)
		_, err = book.CreateOrder(alice, tokenA, u(200), tokenB, u(50))
		require.NoError(t, err)
	})
	commit(t, s, w, false, func(tx *state.Tx) {
		ledger.New(tokenB, tx).Approve(bob, custody, u(10))
		require.NoError(t, swap.NewBook(custody, tx).PurchaseTokens(bob, 0, u(100), tokenB, u(10)))
	})

	require.NoError(t, s.Close())
	s2, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s2.Close() })

	loaded, err := s2.Load()
	require.NoError(t, err)

	assert.Equal(t, w.Root(), loaded.Root())
	assert.Equal(t, uint64(3), loaded.Height())
	assert.Equal(t, uint64(2), loaded.OrderCount())
	assert.Equal(t, u(700), loaded.Balance(tokenA, alice))
	assert.Equal(t, u(100), loaded.Balance(tokenA, bob))
	assert.Equal(t, u(200), loaded.Balance(tokenA, custody))
	assert.Equal(t, u(10), loaded.Balance(tokenB, alice))
	assert.Equal(t, u(1000), loaded.Supply(tokenA))
	assert.True(t, loaded.Allowance(tokenB, bob, custody).IsZero())

	o, ok := loaded.Order(0)
	require.True(t, ok)
	assert.Equal(t, swap.OrderExhausted, o.Status())
	o, ok = loaded.Order(1)
	require.True(t, ok)
	assert.Equal(t, u(200), o.DepositAmount)

	applied, err := s2.GenesisApplied()
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestZeroValuesAreDeleted(t *testing.T) {
	s, _ := openTestStore(t)
	w := state.NewWorld()

	commit(t, s, w, true, func(tx *state.Tx) {
		require.NoError(t, ledger.New(tokenA, tx).Mint(alice, u(10)))
	})
	commit(t, s, w, false, func(tx *state.Tx) {
		require.NoError(t, ledger.New(tokenA, tx).Transfer(alice, bob, u(10)))
	})

	_, closer, err := s.db.Get(balanceKey(tokenA, alice))
	if err == nil {
		closer.Close()
	}
	assert.Error(t, err, "zero balance must not be stored")

	var n int
	require.NoError(t, s.scan(prefixBalance, func(_, _ []byte) error {
		n++
		return nil
	}))
	assert.Equal(t, 1, n)
}

func TestLoadRejectsOrderGap(t *testing.T) {
	s, _ := openTestStore(t)
	o := &swap.Order{
		ID:            5,
		Seller:        alice,
		DepositToken:  tokenA,
		DepositAmount: u(1),
		InitialAmount: u(1),
		PaymentToken:  tokenB,
		PaymentAmount: u(1),
	}
	require.NoError(t, s.Commit(&state.ChangeSet{Height: 1, Orders: []*swap.Order{o}}))

	_, err := s.Load()
	assert.ErrorContains(t, err, "order id gap")
}

func TestCloseTwice(t *testing.T) {
	s, path := openTestStore(t)
	require.NoError(t, s.Close())
	assert.NoError(t, s.Close())

	// the directory lock is released, so the store reopens
	s2, err := Open(path)
	require.NoError(t, err)
	assert.NoError(t, s2.Close())
}

func TestFileWAL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "journal.wal")
	wal, err := NewFileWAL(path)
	require.NoError(t, err)

	type entry struct {
		Height uint64 `json:"height"`
		Method string `json:"method"`
	}
	require.NoError(t, wal.Append(entry{1, "approve"}))
	require.NoError(t, wal.Append(entry{2, "create_order"}))
	require.NoError(t, wal.Close())

	var got []entry
	err = ReadWAL(path, func(line []byte) error {
		var e entry
		if err := json.Unmarshal(line, &e); err != nil {
			return err
		}
		got = append(got, e)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []entry{{1, "approve"}, {2, "create_order"}}, got)

	// reopening appends
	wal, err = NewFileWAL(path)
	require.NoError(t, err)
	require.NoError(t, wal.Append(entry{3, "transfer"}))
	require.NoError(t, wal.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, countLines(data))
}

func TestNopWAL(t *testing.T) {
	w := NewNopWAL()
	assert.NoError(t, w.Append("anything"))
	assert.NoError(t, w.Close())
}

func TestWALUnmarshalableEntry(t *testing.T) {
	wal, err := NewFileWAL(filepath.Join(t.TempDir(), "j.wal"))
	require.NoError(t, err)
	defer wal.Close()
	assert.Error(t, wal.Append(make(chan int)))
}

func countLines(b []byte) int {
	n := 0
	for _, c := range b {
		if c == '\n' {
			n++
		}
	}
	return n
}
