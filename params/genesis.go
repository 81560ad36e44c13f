package params

import (
	"fmt"
	"os"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"github.com/uhyunpark/swappin/pkg/app/core/token"
)

// Genesis is the initial token set and balances.
//
//	book: "0x..."            # optional, derived from the deployer otherwise
//	tokens:
//	  - symbol: TKA
//	    name: Token A
//	    decimals: 18
//	    address: "0x..."     # optional
//	    allocations:
//	      "0xAA00...": "1000"
type Genesis struct {
	Book   string         `yaml:"book"`
	Tokens []GenesisToken `yaml:"tokens"`
}

type GenesisToken struct {
	Symbol      string            `yaml:"symbol"`
	Name        string            `yaml:"name"`
	Decimals    uint8             `yaml:"decimals"`
	Address     string            `yaml:"address"`
	Allocations map[string]string `yaml:"allocations"` // address -> decimal amount
}

// Allocation is a resolved genesis mint
type Allocation struct {
	Token   common.Address
	Account common.Address
	Amount  *uint256.Int
}

// ResolvedGenesis has every address and amount parsed
type ResolvedGenesis struct {
	Book        common.Address
	Tokens      []*token.Token
	Allocations []Allocation
}

// LoadGenesis reads a YAML genesis file. An empty path yields an empty genesis.
func LoadGenesis(path string) (*Genesis, error) {
	if path == "" {
		return &Genesis{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read genesis %s: %w", path, err)
	}
	var g Genesis
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to parse genesis %s: %w", path, err)
	}
	return &g, nil
}

// Resolve parses addresses and amounts. Missing addresses are derived from deployer:
// the book takes nonce 0 and the i-th token nonce i+1, mirroring a deploy script.
func (g *Genesis) Resolve(deployer common.Address) (*ResolvedGenesis, error) {
	out := &ResolvedGenesis{Book: token.DeriveAddress(deployer, 0)}
	if g.Book != "" {
		if !common.IsHexAddress(g.Book) {
			return nil, fmt.Errorf("genesis book address %q invalid", g.Book)
		}
		out.Book = common.HexToAddress(g.Book)
	}

	for i, gt := range g.Tokens {
		addr := token.DeriveAddress(deployer, uint64(i+1))
		if gt.Address != "" {
			if !common.IsHexAddress(gt.Address) {
				return nil, fmt.Errorf("genesis token %s address %q invalid", gt.Symbol, gt.Address)
			}
			addr = common.HexToAddress(gt.Address)
		}
		if addr == out.Book {
			return nil, fmt.Errorf("genesis token %s collides with book address", gt.Symbol)
		}
		name := gt.Name
		if name == "" {
			name = gt.Symbol
		}
		t := &token.Token{Address: addr, Symbol: gt.Symbol, Name: name, Decimals: gt.Decimals}
		if err := t.Validate(); err != nil {
			return nil, err
		}
		out.Tokens = append(out.Tokens, t)

		// map order is random; sort holders so genesis events and journal are reproducible
		holders := make([]string, 0, len(gt.Allocations))
		for holder := range gt.Allocations {
			holders = append(holders, holder)
		}
		sort.Strings(holders)

		for _, holder := range holders {
			amount := gt.Allocations[holder]
			if !common.IsHexAddress(holder) {
				return nil, fmt.Errorf("genesis token %s: invalid holder %q", gt.Symbol, holder)
			}
			v, err := uint256.FromDecimal(amount)
			if err != nil {
				return nil, fmt.Errorf("genesis token %s holder %s: %w", gt.Symbol, holder, err)
			}
			out.Allocations = append(out.Allocations, Allocation{
				Token:   addr,
				Account: common.HexToAddress(holder),
				Amount:  v,
			})
		}
	}
	return out, nil
}
