package token

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Token describes a fungible token type the ledger accounts for
type Token struct {
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol"`
	Name     string         `json:"name"`
	Decimals uint8          `json:"decimals"`
}

// Validate checks token metadata
func (t *Token) Validate() error {
	if t.Address == (common.Address{}) {
		return fmt.Errorf("token %q: zero address", t.Symbol)
	}
	if t.Symbol == "" {
		return fmt.Errorf("token %s: missing symbol", t.Address.Hex())
	}
	if t.Decimals > 77 { // 10^78 > 2^256
		return fmt.Errorf("token %s: decimals %d out of range", t.Symbol, t.Decimals)
	}
	return nil
}

// DeriveAddress returns the address a contract deployed by deployer at nonce would get.
// Genesis uses it to give tokens and the book stable addresses without a chain.
func DeriveAddress(deployer common.Address, nonce uint64) common.Address {
	return crypto.CreateAddress(deployer, nonce)
}

// Registry manages known tokens in a thread-safe manner
// Lookups accept either a hex address or a symbol (case-insensitive)
type Registry struct {
	mu       sync.RWMutex
	tokens   map[common.Address]*Token
	bySymbol map[string]common.Address // upper-case symbol -> address
}

// NewRegistry creates an empty token registry
func NewRegistry() *Registry {
	return &Registry{
		tokens:   make(map[common.Address]*Token),
		bySymbol: make(map[string]common.Address),
	}
}

// Register adds a token
// Returns error if the address or symbol is already taken
func (r *Registry) Register(t *Token) error {
	if t == nil {
		return fmt.Errorf("cannot register nil token")
	}
	if err := t.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tokens[t.Address]; exists {
		return fmt.Errorf("token %s already registered", t.Address.Hex())
	}
	sym := strings.ToUpper(t.Symbol)
	if _, exists := r.bySymbol[sym]; exists {
		return fmt.Errorf("token symbol %s already registered", t.Symbol)
	}

	cp := *t
	r.tokens[t.Address] = &cp
	r.bySymbol[sym] = t.Address
	return nil
}

// Get retrieves a token by address
func (r *Registry) Get(addr common.Address) (*Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, exists := r.tokens[addr]
	if !exists {
		return nil, fmt.Errorf("token %s not found", addr.Hex())
	}
	cp := *t
	return &cp, nil
}

// Resolve looks a token up by hex address or symbol
func (r *Registry) Resolve(ref string) (*Token, error) {
	if common.IsHexAddress(ref) {
		return r.Get(common.HexToAddress(ref))
	}

	r.mu.RLock()
	addr, ok := r.bySymbol[strings.ToUpper(ref)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("token %s not found", ref)
	}
	return r.Get(addr)
}

// List returns all registered tokens sorted by symbol
func (r *Registry) List() []*Token {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Token, 0, len(r.tokens))
	for _, t := range r.tokens {
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Exists checks if a token is registered
func (r *Registry) Exists(addr common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.tokens[addr]
	return exists
}

// Count returns the number of registered tokens
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tokens)
}
