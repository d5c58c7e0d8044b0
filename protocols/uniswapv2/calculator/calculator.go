// Package calculator implements exact integer constant-product pricing. Every result
// truncates the same way the settlement contract does, so a quote computed here is the
// amount the chain will deliver against the same reserves.
package calculator

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/defistate-router-go/failure"
	uniswapv2 "github.com/defistate/defistate-router-go/protocols/uniswapv2"
)

var (
	// basisPointDivisor is a constant representing 100% in basis points (10000).
	basisPointDivisor = big.NewInt(uniswapv2.MaxFeeBps)
	one               = big.NewInt(1)

	// ErrTokenMismatch is returned when the specified input/output tokens do not match the pool's tokens.
	ErrTokenMismatch = errors.New("token mismatch")
)

// Calculator holds reusable big.Int objects to avoid memory allocations during calculations.
// Instances of this struct are NOT safe for concurrent use by themselves.
// They are intended to be managed by the sync.Pool below.
type Calculator struct {
	feeMultiplier *big.Int
	afterFee      *big.Int
	numerator     *big.Int
	denominator   *big.Int
	remainder     *big.Int
	need          *big.Int
}

// calculatorPool manages a pool of Calculator objects, allowing for safe concurrent use
// and drastically reducing memory allocations.
var calculatorPool = sync.Pool{
	New: func() any {
		return &Calculator{
			feeMultiplier: new(big.Int),
			afterFee:      new(big.Int),
			numerator:     new(big.Int),
			denominator:   new(big.Int),
			remainder:     new(big.Int),
			need:          new(big.Int),
		}
	},
}

// AmountOut returns the output of selling amountIn into reserves (reserveIn, reserveOut).
// The fee is taken from the input first and truncated, then
// out = afterFee * reserveOut / (reserveIn + afterFee), truncated.
func AmountOut(reserveIn, reserveOut *big.Int, feeBps uint16, amountIn *big.Int) (*big.Int, error) {
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.amountOut(reserveIn, reserveOut, feeBps, amountIn)
}

// AmountIn returns an input for which AmountOut delivers at least amountOut. It is the larger
// of the settlement contract's rounded-up formula
// reserveIn*amountOut / ((reserveOut-amountOut)*(10000-fee)/10000) + 1
// and the exact minimum under AmountOut's truncation, which the contract formula can undershoot.
func AmountIn(reserveIn, reserveOut *big.Int, feeBps uint16, amountOut *big.Int) (*big.Int, error) {
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.amountIn(reserveIn, reserveOut, feeBps, amountOut)
}

// GetAmountOut prices a swap of amountIn through pool in the tokenIn -> tokenOut direction.
func GetAmountOut(amountIn *big.Int, tokenIn, tokenOut common.Address, pool uniswapv2.Pool) (*big.Int, error) {
	reserveIn, reserveOut, err := GetReserves(tokenIn, tokenOut, pool)
	if err != nil {
		return nil, err
	}
	return AmountOut(reserveIn, reserveOut, pool.FeeBps, amountIn)
}

// GetAmountIn returns the input required to receive amountOut of tokenOut from pool.
func GetAmountIn(amountOut *big.Int, tokenIn, tokenOut common.Address, pool uniswapv2.Pool) (*big.Int, error) {
	reserveIn, reserveOut, err := GetReserves(tokenIn, tokenOut, pool)
	if err != nil {
		return nil, err
	}
	return AmountIn(reserveIn, reserveOut, pool.FeeBps, amountOut)
}

// GetReserves returns the reserves for the given direction. For V2, this is a direct lookup.
func GetReserves(tokenIn, tokenOut common.Address, pool uniswapv2.Pool) (reserveIn, reserveOut *big.Int, err error) {
	if tokenIn == pool.Token0 && tokenOut == pool.Token1 {
		return pool.Reserve0, pool.Reserve1, nil
	} else if tokenIn == pool.Token1 && tokenOut == pool.Token0 {
		return pool.Reserve1, pool.Reserve0, nil
	}
	return nil, nil, fmt.Errorf("%w: %w: pool %s does not contain the pair %s -> %s",
		failure.ErrPoolNotFound, ErrTokenMismatch, pool.ID.Hex(), tokenIn.Hex(), tokenOut.Hex())
}

func (c *Calculator) amountOut(reserveIn, reserveOut *big.Int, feeBps uint16, amountIn *big.Int) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amountIn must be positive, got %v", failure.ErrInvalidAmount, amountIn)
	}
	if err := checkReserves(reserveIn, reserveOut); err != nil {
		return nil, err
	}
	if err := c.setFeeMultiplier(feeBps); err != nil {
		return nil, err
	}

	c.afterFee.Mul(amountIn, c.feeMultiplier)
	c.afterFee.Quo(c.afterFee, basisPointDivisor)

	c.numerator.Mul(c.afterFee, reserveOut)
	c.denominator.Add(reserveIn, c.afterFee)

	return new(big.Int).Quo(c.numerator, c.denominator), nil
}

func (c *Calculator) amountIn(reserveIn, reserveOut *big.Int, feeBps uint16, amountOut *big.Int) (*big.Int, error) {
	if amountOut == nil || amountOut.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amountOut must be positive, got %v", failure.ErrInvalidAmount, amountOut)
	}
	if err := checkReserves(reserveIn, reserveOut); err != nil {
		return nil, err
	}
	if amountOut.Cmp(reserveOut) >= 0 {
		return nil, fmt.Errorf("%w: requested amountOut (%s) is >= reserveOut (%s)",
			failure.ErrInsufficientLiquidity, amountOut, reserveOut)
	}
	if err := c.setFeeMultiplier(feeBps); err != nil {
		return nil, err
	}
	if c.feeMultiplier.Sign() == 0 {
		return nil, fmt.Errorf("%w: a %d bps fee leaves nothing to swap", failure.ErrInsufficientLiquidity, feeBps)
	}

	// Contract rounding: reserveIn*amountOut / ((reserveOut-amountOut)*(10000-fee)/10000) + 1.
	c.numerator.Mul(reserveIn, amountOut)
	c.denominator.Sub(reserveOut, amountOut)
	c.denominator.Mul(c.denominator, c.feeMultiplier)
	c.denominator.Quo(c.denominator, basisPointDivisor)
	contract := new(big.Int)
	if c.denominator.Sign() > 0 {
		contract.Quo(c.numerator, c.denominator)
		contract.Add(contract, one)
	}

	// Exact inverse of AmountOut's truncation: the fee-adjusted input must reach
	// ceil(reserveIn*amountOut / (reserveOut-amountOut)), and the gross input must
	// survive the fee truncation with at least that much.
	c.denominator.Sub(reserveOut, amountOut)
	ceilDiv(c.need, c.numerator, c.denominator, c.remainder)
	c.need.Mul(c.need, basisPointDivisor)
	exact := ceilDiv(new(big.Int), c.need, c.feeMultiplier, c.remainder)

	if contract.Cmp(exact) > 0 {
		return contract, nil
	}
	return exact, nil
}

func (c *Calculator) setFeeMultiplier(feeBps uint16) error {
	if feeBps > uniswapv2.MaxFeeBps {
		return fmt.Errorf("%w: fee %d bps exceeds %d", failure.ErrInvalidAmount, feeBps, uniswapv2.MaxFeeBps)
	}
	c.feeMultiplier.SetUint64(uint64(uniswapv2.MaxFeeBps - feeBps))
	return nil
}

func checkReserves(reserveIn, reserveOut *big.Int) error {
	if reserveIn == nil || reserveOut == nil || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return fmt.Errorf("%w: reserves (%v, %v) must both be positive",
			failure.ErrInsufficientLiquidity, reserveIn, reserveOut)
	}
	return nil
}

// ceilDiv sets z = ceil(x/y) for positive operands, using rem as scratch.
func ceilDiv(z, x, y, rem *big.Int) *big.Int {
	z.QuoRem(x, y, rem)
	if rem.Sign() != 0 {
		z.Add(z, one)
	}
	return z
}
