// Package settlement builds, encodes and submits the transactions the on-chain router
// executes, and decodes the reasons it gives when it refuses them.
package settlement

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/defistate/defistate-router-go/failure"
	"github.com/defistate/defistate-router-go/protocols/uniswapv2"
	"github.com/defistate/defistate-router-go/protocols/uniswapv2/calculator"
	"github.com/defistate/defistate-router-go/router"
	"github.com/defistate/defistate-router-go/slippage"
)

// SwapExactIn is the argument tuple of swapExactTokensForTokens.
type SwapExactIn struct {
	AmountIn     *big.Int
	MinAmountOut *big.Int
	Path         []common.Address
	Recipient    common.Address
	Deadline     *big.Int
}

// SwapExactOut is the argument tuple of swapTokensForExactTokens.
type SwapExactOut struct {
	AmountOut   *big.Int
	MaxAmountIn *big.Int
	Path        []common.Address
	Recipient   common.Address
	Deadline    *big.Int
}

// AddLiquidity is the argument tuple of addLiquidity.
type AddLiquidity struct {
	TokenA         common.Address
	TokenB         common.Address
	AmountADesired *big.Int
	AmountBDesired *big.Int
	AmountAMin     *big.Int
	AmountBMin     *big.Int
	Recipient      common.Address
	Deadline       *big.Int
}

// BuildSwapExactIn turns an exact-input quote and its bound into the settlement tuple.
// The bound is copied as is.
func BuildSwapExactIn(q *router.Quote, b slippage.Bound, recipient common.Address, deadline time.Time) (SwapExactIn, error) {
	path, err := quotePath(q, recipient, deadline)
	if err != nil {
		return SwapExactIn{}, err
	}
	if b.Mode != slippage.ExactInput || b.MinAmountOut == nil {
		return SwapExactIn{}, fmt.Errorf("%w: exact-input swap needs an exact-input bound", failure.ErrInvalidSlippage)
	}
	if b.AmountIn == nil || b.AmountIn.Cmp(q.AmountIn) != 0 {
		return SwapExactIn{}, fmt.Errorf("%w: bound was computed for a different quote", failure.ErrInvalidSlippage)
	}
	p := SwapExactIn{
		AmountIn:     new(big.Int).Set(b.AmountIn),
		MinAmountOut: new(big.Int).Set(b.MinAmountOut),
		Path:         path,
		Recipient:    recipient,
		Deadline:     big.NewInt(deadline.Unix()),
	}
	if err := checkWords(p.AmountIn, p.MinAmountOut); err != nil {
		return SwapExactIn{}, err
	}
	return p, nil
}

// BuildSwapExactOut turns an exact-output quote and its bound into the settlement tuple.
func BuildSwapExactOut(q *router.Quote, b slippage.Bound, recipient common.Address, deadline time.Time) (SwapExactOut, error) {
	path, err := quotePath(q, recipient, deadline)
	if err != nil {
		return SwapExactOut{}, err
	}
	if b.Mode != slippage.ExactOutput || b.MaxAmountIn == nil {
		return SwapExactOut{}, fmt.Errorf("%w: exact-output swap needs an exact-output bound", failure.ErrInvalidSlippage)
	}
	if b.AmountOut == nil || b.AmountOut.Cmp(q.AmountOut) != 0 {
		return SwapExactOut{}, fmt.Errorf("%w: bound was computed for a different quote", failure.ErrInvalidSlippage)
	}
	p := SwapExactOut{
		AmountOut:   new(big.Int).Set(b.AmountOut),
		MaxAmountIn: new(big.Int).Set(b.MaxAmountIn),
		Path:        path,
		Recipient:   recipient,
		Deadline:    big.NewInt(deadline.Unix()),
	}
	if err := checkWords(p.AmountOut, p.MaxAmountIn); err != nil {
		return SwapExactOut{}, err
	}
	return p, nil
}

// BuildAddLiquidity sizes a deposit into pool the way the on-chain router does. With
// existing reserves, amountA is matched with its ratio-implied B amount when that fits
// within amountB, otherwise amountB is matched with its implied A amount. A nil amountB
// always takes the implied amount. On an empty pool both amounts are used as supplied.
// Minimums are the chosen amounts reduced by toleranceBps.
func BuildAddLiquidity(
	pool uniswapv2.Pool,
	tokenA common.Address,
	amountA, amountB *big.Int,
	toleranceBps uint32,
	recipient common.Address,
	deadline time.Time,
) (AddLiquidity, error) {
	tokenB, ok := pool.Other(tokenA)
	if !ok {
		return AddLiquidity{}, fmt.Errorf("%w: token %s not in pool %s", failure.ErrPoolNotFound, tokenA.Hex(), pool.ID.Hex())
	}
	if err := checkRecipient(recipient, deadline); err != nil {
		return AddLiquidity{}, err
	}
	reserveA, reserveB := pool.Reserve0, pool.Reserve1
	if tokenA == pool.Token1 {
		reserveA, reserveB = reserveB, reserveA
	}

	quoteB, err := calculator.QuoteLiquidity(reserveA, reserveB, amountA)
	if err != nil {
		return AddLiquidity{}, err
	}

	var depositA, depositB *big.Int
	switch {
	case quoteB.Unconstrained:
		if amountB == nil || amountB.Sign() <= 0 {
			return AddLiquidity{}, fmt.Errorf("%w: first deposit needs both amounts", failure.ErrInvalidAmount)
		}
		depositA, depositB = amountA, amountB
	case amountB == nil || quoteB.Amount.Cmp(amountB) <= 0:
		depositA, depositB = amountA, quoteB.Amount
	default:
		quoteA, err := calculator.QuoteLiquidity(reserveB, reserveA, amountB)
		if err != nil {
			return AddLiquidity{}, err
		}
		if quoteA.Amount.Cmp(amountA) > 0 {
			return AddLiquidity{}, fmt.Errorf("%w: amounts cannot be matched to the pool ratio", failure.ErrInvalidAmount)
		}
		depositA, depositB = quoteA.Amount, amountB
	}

	minA, err := slippage.MinAmountOut(depositA, toleranceBps)
	if err != nil {
		return AddLiquidity{}, err
	}
	minB, err := slippage.MinAmountOut(depositB, toleranceBps)
	if err != nil {
		return AddLiquidity{}, err
	}

	p := AddLiquidity{
		TokenA:         tokenA,
		TokenB:         tokenB,
		AmountADesired: new(big.Int).Set(depositA),
		AmountBDesired: new(big.Int).Set(depositB),
		AmountAMin:     minA,
		AmountBMin:     minB,
		Recipient:      recipient,
		Deadline:       big.NewInt(deadline.Unix()),
	}
	if err := checkWords(p.AmountADesired, p.AmountBDesired); err != nil {
		return AddLiquidity{}, err
	}
	return p, nil
}

func quotePath(q *router.Quote, recipient common.Address, deadline time.Time) ([]common.Address, error) {
	if q == nil || q.AmountIn == nil || q.AmountOut == nil {
		return nil, fmt.Errorf("%w: incomplete quote", failure.ErrInvalidAmount)
	}
	path := q.Path.Tokens()
	if len(path) < 2 {
		return nil, fmt.Errorf("%w: quote has no path", failure.ErrNoPathFound)
	}
	if err := checkRecipient(recipient, deadline); err != nil {
		return nil, err
	}
	return path, nil
}

func checkRecipient(recipient common.Address, deadline time.Time) error {
	if recipient == (common.Address{}) {
		return fmt.Errorf("%w: recipient cannot be the zero address", failure.ErrInvalidAmount)
	}
	if deadline.Unix() <= 0 {
		return fmt.Errorf("%w: deadline must be set", failure.ErrInvalidAmount)
	}
	return nil
}

// checkWords fails unless every amount is positive and fits a uint256 word.
func checkWords(amounts ...*big.Int) error {
	for _, x := range amounts {
		if x == nil || x.Sign() <= 0 {
			return fmt.Errorf("%w: amount must be positive, got %v", failure.ErrInvalidAmount, x)
		}
		if _, overflow := uint256.FromBig(x); overflow {
			return fmt.Errorf("%w: amount %s overflows uint256", failure.ErrInvalidAmount, x)
		}
	}
	return nil
}
