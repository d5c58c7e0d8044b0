package uniswapv2

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// MaxFeeBps is 100% expressed in basis points.
const MaxFeeBps = 10000

var (
	// ErrIdenticalTokens is returned when both sides of a pool are the same token.
	ErrIdenticalTokens = errors.New("pool tokens must differ")
	// ErrInvalidFee is returned when a fee is outside [0, MaxFeeBps].
	ErrInvalidFee = errors.New("fee out of range")
)

// Pool is a constant-product pool. Token0 is always the lower address; NewPool enforces
// this so the unordered token pair has a single representation.
type Pool struct {
	ID       common.Address `json:"id"`
	Token0   common.Address `json:"token0"`
	Token1   common.Address `json:"token1"`
	Reserve0 *big.Int       `json:"reserve0"`
	Reserve1 *big.Int       `json:"reserve1"`
	FeeBps   uint16         `json:"feeBps"` // i.e 30 for 0.3%
}

// PairKey is the canonical identity of an unordered token pair.
type PairKey struct {
	Token0 common.Address
	Token1 common.Address
}

// SortTokens orders two addresses so that the lower one comes first.
func SortTokens(a, b common.Address) (common.Address, common.Address) {
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		return b, a
	}
	return a, b
}

// NewPairKey returns the canonical key for the pair regardless of argument order.
func NewPairKey(a, b common.Address) PairKey {
	t0, t1 := SortTokens(a, b)
	return PairKey{Token0: t0, Token1: t1}
}

// NewPool builds a canonical pool from a data-source record whose token order is arbitrary.
// reserveA belongs to tokenA and reserveB to tokenB; they are swapped along with the tokens.
func NewPool(id, tokenA, tokenB common.Address, reserveA, reserveB *big.Int, feeBps uint16) (Pool, error) {
	if tokenA == tokenB {
		return Pool{}, fmt.Errorf("%w: pool %s has %s on both sides", ErrIdenticalTokens, id.Hex(), tokenA.Hex())
	}
	if feeBps > MaxFeeBps {
		return Pool{}, fmt.Errorf("%w: pool %s fee %d bps", ErrInvalidFee, id.Hex(), feeBps)
	}

	p := Pool{
		ID:       id,
		Token0:   tokenA,
		Token1:   tokenB,
		Reserve0: copyInt(reserveA),
		Reserve1: copyInt(reserveB),
		FeeBps:   feeBps,
	}
	if bytes.Compare(tokenA.Bytes(), tokenB.Bytes()) > 0 {
		p.Token0, p.Token1 = tokenB, tokenA
		p.Reserve0, p.Reserve1 = p.Reserve1, p.Reserve0
	}
	return p, nil
}

// Canonical reports whether Token0 sorts strictly before Token1.
func (p Pool) Canonical() bool {
	return bytes.Compare(p.Token0.Bytes(), p.Token1.Bytes()) < 0
}

// Key returns the canonical pair key of the pool.
func (p Pool) Key() PairKey {
	return NewPairKey(p.Token0, p.Token1)
}

// Usable reports whether both reserves are strictly positive. Pools with an empty side
// are excluded from routing until refreshed.
func (p Pool) Usable() bool {
	return p.Reserve0 != nil && p.Reserve1 != nil && p.Reserve0.Sign() > 0 && p.Reserve1.Sign() > 0
}

// Contains reports whether token is one side of the pool.
func (p Pool) Contains(token common.Address) bool {
	return token == p.Token0 || token == p.Token1
}

// Other returns the opposite side of token in the pool.
func (p Pool) Other(token common.Address) (common.Address, bool) {
	switch token {
	case p.Token0:
		return p.Token1, true
	case p.Token1:
		return p.Token0, true
	}
	return common.Address{}, false
}

// Equal reports whether two pools have the same identity, tokens, fee and reserves.
func (p Pool) Equal(o Pool) bool {
	return p.ID == o.ID &&
		p.Token0 == o.Token0 &&
		p.Token1 == o.Token1 &&
		p.FeeBps == o.FeeBps &&
		intEqual(p.Reserve0, o.Reserve0) &&
		intEqual(p.Reserve1, o.Reserve1)
}

func intEqual(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Cmp(b) == 0
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
