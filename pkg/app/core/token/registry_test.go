package token

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	addrA = common.HexToAddress("0x1000000000000000000000000000000000000001")
	addrB = common.HexToAddress("0x2000000000000000000000000000000000000002")
)

func TestRegistryRegisterAndResolve(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Token{Address: addrB, Symbol: "TKB", Name: "Token B", Decimals: 6}))
	require.NoError(t, r.Register(&Token{Address: addrA, Symbol: "TKA", Name: "Token A", Decimals: 18}))

	assert.Equal(t, 2, r.Count())
	assert.True(t, r.Exists(addrA))

	byAddr, err := r.Resolve(addrA.Hex())
	require.NoError(t, err)
	assert.Equal(t, "TKA", byAddr.Symbol)

	bySym, err := r.Resolve("tkb")
	require.NoError(t, err)
	assert.Equal(t, addrB, bySym.Address)

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "TKA", list[0].Symbol, "sorted by symbol")
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Token{Address: addrA, Symbol: "TKA"}))

	assert.Error(t, r.Register(&Token{Address: addrA, Symbol: "OTHER"}), "duplicate address")
	assert.Error(t, r.Register(&Token{Address: addrB, Symbol: "tka"}), "duplicate symbol, any case")
	assert.Error(t, r.Register(nil))
	assert.Equal(t, 1, r.Count())
}

func TestRegistryReturnsCopies(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Token{Address: addrA, Symbol: "TKA"}))

	got, err := r.Get(addrA)
	require.NoError(t, err)
	got.Symbol = "MUTATED"

	again, _ := r.Get(addrA)
	assert.Equal(t, "TKA", again.Symbol)
}

func TestRegistryUnknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get(addrA)
	assert.Error(t, err)
	_, err = r.Resolve("NOPE")
	assert.Error(t, err)
}

func TestTokenValidate(t *testing.T) {
	tests := []struct {
		name string
		tok  Token
		ok   bool
	}{
		{"valid", Token{Address: addrA, Symbol: "TKA", Decimals: 18}, true},
		{"zero address", Token{Symbol: "TKA"}, false},
		{"missing symbol", Token{Address: addrA}, false},
		{"decimals too large", Token{Address: addrA, Symbol: "TKA", Decimals: 78}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tok.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestDeriveAddressIsDeterministic(t *testing.T) {
	deployer := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

	// first contract deployed by the well-known hardhat account
	assert.Equal(t, common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"), DeriveAddress(deployer, 0))
	assert.NotEqual(t, DeriveAddress(deployer, 0), DeriveAddress(deployer, 1))
}
