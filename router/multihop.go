package router

import (
	"fmt"
	"math/big"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/defistate-router-go/failure"
	tokenpoolregistry "github.com/defistate/defistate-router-go/protocols/tokenpoolregistry"
	calculator "github.com/defistate/defistate-router-go/protocols/uniswapv2/calculator"
)

// resolvePath maps an explicit token sequence onto the deepest pool of each consecutive pair.
func resolvePath(g *tokenpoolregistry.Graph, path []common.Address) ([]Hop, error) {
	if len(path) < 2 {
		return nil, fmt.Errorf("%w: a path needs at least two tokens, got %d", failure.ErrNoPathFound, len(path))
	}

	seen := mapset.NewThreadUnsafeSetWithSize[common.Address](len(path))
	for _, token := range path {
		if !seen.Add(token) {
			return nil, fmt.Errorf("%w: token %s repeats in path", failure.ErrNoPathFound, token.Hex())
		}
	}

	hops := make([]Hop, len(path)-1)
	for i := range hops {
		pool, ok := g.PoolBetween(path[i], path[i+1])
		if !ok {
			return nil, fmt.Errorf("%w: no pool between %s and %s", failure.ErrPoolNotFound, path[i].Hex(), path[i+1].Hex())
		}
		hops[i] = Hop{PoolID: pool.ID, TokenIn: path[i], TokenOut: path[i+1]}
	}
	return hops, nil
}

// MultiHopQuote prices amountIn along an explicit token path, feeding each hop's output
// into the next hop.
func MultiHopQuote(g *tokenpoolregistry.Graph, path []common.Address, amountIn *big.Int) (*Quote, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amountIn must be positive, got %v", failure.ErrInvalidAmount, amountIn)
	}
	hops, err := resolvePath(g, path)
	if err != nil {
		return nil, err
	}
	if err := priceForwards(g, hops, amountIn); err != nil {
		return nil, err
	}
	return finalize(pricedQuote(hops), g.Version(), false), nil
}

// MultiHopQuoteExactOutput returns the input needed to receive amountOut at the end of an
// explicit token path.
func MultiHopQuoteExactOutput(g *tokenpoolregistry.Graph, path []common.Address, amountOut *big.Int) (*Quote, error) {
	if amountOut == nil || amountOut.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amountOut must be positive, got %v", failure.ErrInvalidAmount, amountOut)
	}
	hops, err := resolvePath(g, path)
	if err != nil {
		return nil, err
	}
	if err := priceBackwards(g, hops, amountOut); err != nil {
		return nil, err
	}
	return finalize(pricedQuote(hops), g.Version(), true), nil
}

func priceForwards(g *tokenpoolregistry.Graph, hops []Hop, amountIn *big.Int) error {
	amount := amountIn
	for i := range hops {
		pool, ok := g.Pool(hops[i].PoolID)
		if !ok {
			return fmt.Errorf("%w: %s", failure.ErrPoolNotFound, hops[i].PoolID.Hex())
		}
		out, err := calculator.GetAmountOut(amount, hops[i].TokenIn, hops[i].TokenOut, pool)
		if err != nil {
			return fmt.Errorf("hop %d: %w", i, err)
		}
		if out.Sign() == 0 {
			return fmt.Errorf("%w: hop %d through %s yields nothing", failure.ErrInsufficientLiquidity, i, pool.ID.Hex())
		}
		hops[i].AmountIn, hops[i].AmountOut = amount, out
		amount = out
	}
	return nil
}

// CheckFresh reports QuoteStale when q would not be reproduced against g: a pool on its
// path disappeared or now prices any hop differently. Quotes from the same graph version
// are always fresh.
func CheckFresh(g *tokenpoolregistry.Graph, q *Quote) error {
	if q == nil || q.Path.Len() == 0 {
		return fmt.Errorf("%w: empty quote", failure.ErrNoPathFound)
	}
	if g == nil {
		return fmt.Errorf("%w: no graph loaded", failure.ErrQuoteStale)
	}
	if q.SnapshotVersion == g.Version() {
		return nil
	}

	for i, hop := range q.Path.Hops {
		pool, ok := g.Pool(hop.PoolID)
		if !ok {
			return fmt.Errorf("%w: pool %s left the graph (quote v%d, graph v%d)",
				failure.ErrQuoteStale, hop.PoolID.Hex(), q.SnapshotVersion, g.Version())
		}

		var (
			now  *big.Int
			then *big.Int
			err  error
		)
		if q.ExactOutput {
			now, err = calculator.GetAmountIn(hop.AmountOut, hop.TokenIn, hop.TokenOut, pool)
			then = hop.AmountIn
		} else {
			now, err = calculator.GetAmountOut(hop.AmountIn, hop.TokenIn, hop.TokenOut, pool)
			then = hop.AmountOut
		}
		if err != nil || now.Cmp(then) != 0 {
			return fmt.Errorf("%w: hop %d through %s repriced (quote v%d, graph v%d)",
				failure.ErrQuoteStale, i, hop.PoolID.Hex(), q.SnapshotVersion, g.Version())
		}
	}
	return nil
}
