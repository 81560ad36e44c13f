package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Pebble key schema
//
//	bal:<token>:<account>          → 32-byte big-endian balance
//	alw:<token>:<owner>:<spender>  → 32-byte big-endian allowance
//	sup:<token>                    → 32-byte big-endian total supply
//	ord:<id, 20 digits>            → JSON order
//	meta:height                    → 8-byte big-endian commit height
//	meta:genesis                   → present once genesis is applied
//
// Addresses are written as 0x-prefixed checksummed hex, so every key under a prefix has
// the same length and ids are zero-padded: lexicographic order is id order.
const (
	prefixBalance   = "bal:"
	prefixAllowance = "alw:"
	prefixSupply    = "sup:"
	prefixOrder     = "ord:"
)

var (
	keyHeight  = []byte("meta:height")
	keyGenesis = []byte("meta:genesis")
)

// balanceKey returns the key for a balance
// Format: "bal:{token}:{account}"
func balanceKey(token, account common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixBalance, token.Hex(), account.Hex()))
}

// allowanceKey returns the key for an allowance
// Format: "alw:{token}:{owner}:{spender}"
func allowanceKey(token, owner, spender common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%s", prefixAllowance, token.Hex(), owner.Hex(), spender.Hex()))
}

// supplyKey returns the key for a token's total supply
func supplyKey(token common.Address) []byte {
	return []byte(prefixSupply + token.Hex())
}

// orderKey returns the key for an order
// Format: "ord:{id}" with id zero-padded to 20 digits
func orderKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixOrder, id))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}

// addressAt parses the 42-char hex address starting at offset
func addressAt(key []byte, offset int) (common.Address, error) {
	if len(key) < offset+42 {
		return common.Address{}, fmt.Errorf("key %q too short for address at %d", key, offset)
	}
	hex := string(key[offset : offset+42])
	if !common.IsHexAddress(hex) {
		return common.Address{}, fmt.Errorf("invalid address %q in key", hex)
	}
	return common.HexToAddress(hex), nil
}

// parseBalanceKey is the inverse of balanceKey
func parseBalanceKey(key []byte) (token, account common.Address, err error) {
	off := len(prefixBalance)
	if token, err = addressAt(key, off); err != nil {
		return
	}
	account, err = addressAt(key, off+43)
	return
}

// parseAllowanceKey is the inverse of allowanceKey
func parseAllowanceKey(key []byte) (token, owner, spender common.Address, err error) {
	off := len(prefixAllowance)
	if token, err = addressAt(key, off); err != nil {
		return
	}
	if owner, err = addressAt(key, off+43); err != nil {
		return
	}
	spender, err = addressAt(key, off+86)
	return
}

// parseSupplyKey is the inverse of supplyKey
func parseSupplyKey(key []byte) (common.Address, error) {
	return addressAt(key, len(prefixSupply))
}

func encodeHeight(h uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], h)
	return b[:]
}

func decodeHeight(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("height value has %d bytes, want 8", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}
