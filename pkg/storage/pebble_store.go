package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/swappin/pkg/app/core/state"
	"github.com/uhyunpark/swappin/pkg/app/core/swap"
)

// Store persists committed ledger state in Pebble.
// Every change set is written in one batch, so a crash never leaves half an operation
// on disk. Not safe for concurrent commits; exchange.App serializes them.
type Store struct {
	db *pebble.DB
}

// Open opens (or creates) a Pebble database at path
func Open(path string) (*Store, error) {
	opts := &pebble.Options{
		Cache:                    pebble.NewCache(64 << 20), // 64MB cache
		MemTableSize:             32 << 20,                  // 32MB memtable
		MaxConcurrentCompactions: func() int { return 2 },
		L0CompactionThreshold:    2,
		L0StopWritesThreshold:    12,
		LBaseMaxBytes:            64 << 20,
		MaxOpenFiles:             1000,
		BytesPerSync:             512 << 10,
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database. Later calls are no-ops.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Commit writes a change set atomically
func (s *Store) Commit(cs *state.ChangeSet) error {
	return s.commit(cs, false)
}

// CommitGenesis writes the genesis change set and the genesis marker atomically
func (s *Store) CommitGenesis(cs *state.ChangeSet) error {
	return s.commit(cs, true)
}

func (s *Store) commit(cs *state.ChangeSet, genesis bool) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for _, e := range cs.Balances {
		if err := putAmount(batch, balanceKey(e.Key.Token, e.Key.Account), e.Value); err != nil {
			return fmt.Errorf("failed to stage balance: %w", err)
		}
	}
	for _, e := range cs.Allowances {
		if err := putAmount(batch, allowanceKey(e.Key.Token, e.Key.Owner, e.Key.Spender), e.Value); err != nil {
			return fmt.Errorf("failed to stage allowance: %w", err)
		}
	}
	for _, e := range cs.Supplies {
		if err := putAmount(batch, supplyKey(e.Token), e.Value); err != nil {
			return fmt.Errorf("failed to stage supply: %w", err)
		}
	}
	for _, o := range cs.Orders {
		data, err := json.Marshal(o)
		if err != nil {
			return fmt.Errorf("failed to marshal order %d: %w", o.ID, err)
		}
		if err := batch.Set(orderKey(o.ID), data, nil); err != nil {
			return fmt.Errorf("failed to stage order %d: %w", o.ID, err)
		}
	}
	if err := batch.Set(keyHeight, encodeHeight(cs.Height), nil); err != nil {
		return fmt.Errorf("failed to stage height: %w", err)
	}
	if genesis {
		if err := batch.Set(keyGenesis, []byte{1}, nil); err != nil {
			return fmt.Errorf("failed to stage genesis marker: %w", err)
		}
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit batch at height %d: %w", cs.Height, err)
	}
	return nil
}

// putAmount stores a non-zero amount or deletes the key for zero
func putAmount(batch *pebble.Batch, key []byte, v *uint256.Int) error {
	if v == nil || v.IsZero() {
		return batch.Delete(key, nil)
	}
	b := v.Bytes32()
	return batch.Set(key, b[:], nil)
}

// GenesisApplied reports whether a genesis change set was ever committed
func (s *Store) GenesisApplied() (bool, error) {
	_, closer, err := s.db.Get(keyGenesis)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get genesis marker: %w", err)
	}
	closer.Close()
	return true, nil
}

// Load reads the full committed state into a fresh World
func (s *Store) Load() (*state.World, error) {
	cs := &state.ChangeSet{}

	height, err := s.loadHeight()
	if err != nil {
		return nil, err
	}
	cs.Height = height

	err = s.scan(prefixBalance, func(key, value []byte) error {
		token, account, err := parseBalanceKey(key)
		if err != nil {
			return err
		}
		cs.Balances = append(cs.Balances, state.BalanceEntry{
			Key:   state.BalanceKey{Token: token, Account: account},
			Value: new(uint256.Int).SetBytes(value),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load balances: %w", err)
	}

	err = s.scan(prefixAllowance, func(key, value []byte) error {
		token, owner, spender, err := parseAllowanceKey(key)
		if err != nil {
			return err
		}
		cs.Allowances = append(cs.Allowances, state.AllowanceEntry{
			Key:   state.AllowanceKey{Token: token, Owner: owner, Spender: spender},
			Value: new(uint256.Int).SetBytes(value),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load allowances: %w", err)
	}

	err = s.scan(prefixSupply, func(key, value []byte) error {
		token, err := parseSupplyKey(key)
		if err != nil {
			return err
		}
		cs.Supplies = append(cs.Supplies, state.SupplyEntry{Token: token, Value: new(uint256.Int).SetBytes(value)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load supplies: %w", err)
	}

	err = s.scan(prefixOrder, func(_, value []byte) error {
		var o swap.Order
		if err := json.Unmarshal(value, &o); err != nil {
			return err
		}
		if o.ID != uint64(len(cs.Orders)) {
			return fmt.Errorf("order id gap: expected %d, found %d", len(cs.Orders), o.ID)
		}
		if err := o.Validate(); err != nil {
			return fmt.Errorf("order %d: %w", o.ID, err)
		}
		cs.Orders = append(cs.Orders, &o)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load orders: %w", err)
	}

	w := state.NewWorld()
	w.Apply(cs)
	return w, nil
}

func (s *Store) loadHeight() (uint64, error) {
	val, closer, err := s.db.Get(keyHeight)
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get height: %w", err)
	}
	defer closer.Close()
	return decodeHeight(val)
}

// scan calls fn for every key under prefix in key order. Slices passed to fn are only
// valid for the duration of the call.
func (s *Store) scan(prefix string, fn func(key, value []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: keyUpperBound([]byte(prefix)),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}
