package tokenregistry

import "github.com/ethereum/go-ethereum/common"

// Token is an ERC20 token as observed by the pool data source. It is immutable once observed;
// the address is its identity.
type Token struct {
	Address  common.Address `json:"address"`
	Name     string         `json:"name"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
}
