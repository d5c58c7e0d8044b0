package router

import (
	"bytes"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// swapBaseGas is the fixed overhead of a router swap transaction.
	swapBaseGas = 90_000
	// hopGas is the marginal cost of one extra pool in the path.
	hopGas = 40_000
)

// GasEstimate returns the estimated gas of a swap through the given number of pools.
func GasEstimate(hops int) uint64 {
	return swapBaseGas + uint64(hops)*hopGas
}

// Hop is one traversal through a single pool. Amounts are nil on structural candidates.
type Hop struct {
	PoolID    common.Address `json:"poolId"`
	TokenIn   common.Address `json:"tokenIn"`
	TokenOut  common.Address `json:"tokenOut"`
	AmountIn  *big.Int       `json:"amountIn,omitempty"`
	AmountOut *big.Int       `json:"amountOut,omitempty"`
}

// PathCandidate is an ordered sequence of hops with no repeated token.
type PathCandidate struct {
	Hops []Hop `json:"hops"`
}

// Len returns the number of hops.
func (p PathCandidate) Len() int { return len(p.Hops) }

// Tokens returns the token sequence, starting with the input token.
func (p PathCandidate) Tokens() []common.Address {
	if len(p.Hops) == 0 {
		return nil
	}
	tokens := make([]common.Address, 0, len(p.Hops)+1)
	tokens = append(tokens, p.Hops[0].TokenIn)
	for _, h := range p.Hops {
		tokens = append(tokens, h.TokenOut)
	}
	return tokens
}

// PoolIDs returns the pool sequence.
func (p PathCandidate) PoolIDs() []common.Address {
	ids := make([]common.Address, len(p.Hops))
	for i, h := range p.Hops {
		ids[i] = h.PoolID
	}
	return ids
}

func (p PathCandidate) clone() PathCandidate {
	hops := make([]Hop, len(p.Hops))
	copy(hops, p.Hops)
	return PathCandidate{Hops: hops}
}

// Quote is the priced result of a path for one snapshot. It is a value object: nothing in
// the router mutates a quote after returning it.
type Quote struct {
	AmountIn        *big.Int      `json:"amountIn"`
	AmountOut       *big.Int      `json:"amountOut"`
	Path            PathCandidate `json:"path"`
	GasEstimate     uint64        `json:"gasEstimate"`
	SnapshotVersion uint64        `json:"snapshotVersion"`
	ExactOutput     bool          `json:"exactOutput"`
}

// Hops returns the hop count of the quoted path.
func (q *Quote) Hops() int { return q.Path.Len() }

// Result carries the two answers of a best-path search. Direct is the best single-pool
// path when one is priceable, independent of whether it is optimal; callers compare it
// against Optimal to decide whether the extra gas of multi-hop routing pays off.
type Result struct {
	Direct  *Quote `json:"direct,omitempty"`
	Optimal *Quote `json:"optimal"`
}

// comparePools orders pool sequences lexicographically by address bytes.
func comparePools(a, b []Hop) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := bytes.Compare(a[i].PoolID.Bytes(), b[i].PoolID.Bytes()); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}

// betterExactIn reports whether a beats b for an exact-input search: more output, then
// fewer hops, then the smaller pool sequence.
func betterExactIn(a, b *Quote) bool {
	if b == nil {
		return true
	}
	if c := a.AmountOut.Cmp(b.AmountOut); c != 0 {
		return c > 0
	}
	if a.Hops() != b.Hops() {
		return a.Hops() < b.Hops()
	}
	return comparePools(a.Path.Hops, b.Path.Hops) < 0
}

// betterExactOut reports whether a beats b for an exact-output search: less input, then
// fewer hops, then the smaller pool sequence.
func betterExactOut(a, b *Quote) bool {
	if b == nil {
		return true
	}
	if c := a.AmountIn.Cmp(b.AmountIn); c != 0 {
		return c < 0
	}
	if a.Hops() != b.Hops() {
		return a.Hops() < b.Hops()
	}
	return comparePools(a.Path.Hops, b.Path.Hops) < 0
}
