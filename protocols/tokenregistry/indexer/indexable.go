package indexer

import (
	"strings"

	tokenregistry "github.com/defistate/defistate-router-go/protocols/tokenregistry"
	"github.com/ethereum/go-ethereum/common"
)

// Indexer builds IndexedTokenSystem values from raw token lists.
type Indexer struct{}

// New creates a new Indexer.
func New() *Indexer {
	return &Indexer{}
}

// Index creates an indexed token system from a raw slice of tokens.
func (i *Indexer) Index(tokens []tokenregistry.Token) IndexedTokenSystem {
	return NewIndexableTokenSystem(tokens)
}

// IndexableTokenSystem provides fast, indexed access to token data.
type IndexableTokenSystem struct {
	byAddress map[common.Address]tokenregistry.Token
	bySymbol  map[string]tokenregistry.Token
	all       []tokenregistry.Token
}

// NewIndexableTokenSystem creates a new indexed token system from a raw slice.
// Symbols are matched case-insensitively; when two tokens share a symbol the first one wins,
// since symbols are not identities.
func NewIndexableTokenSystem(tokens []tokenregistry.Token) *IndexableTokenSystem {
	byAddress := make(map[common.Address]tokenregistry.Token, len(tokens))
	bySymbol := make(map[string]tokenregistry.Token, len(tokens))

	for _, t := range tokens {
		byAddress[t.Address] = t
		key := strings.ToUpper(t.Symbol)
		if _, taken := bySymbol[key]; !taken && key != "" {
			bySymbol[key] = t
		}
	}

	return &IndexableTokenSystem{
		byAddress: byAddress,
		bySymbol:  bySymbol,
		all:       tokens,
	}
}

// GetByAddress retrieves a token by its contract address.
func (its *IndexableTokenSystem) GetByAddress(address common.Address) (tokenregistry.Token, bool) {
	t, ok := its.byAddress[address]
	return t, ok
}

// GetBySymbol retrieves the first token observed with the given symbol.
func (its *IndexableTokenSystem) GetBySymbol(symbol string) (tokenregistry.Token, bool) {
	t, ok := its.bySymbol[strings.ToUpper(symbol)]
	return t, ok
}

// All returns a defensive copy of the slice of all tokens in the system.
func (its *IndexableTokenSystem) All() []tokenregistry.Token {
	allCopy := make([]tokenregistry.Token, len(its.all))
	copy(allCopy, its.all)
	return allCopy
}
