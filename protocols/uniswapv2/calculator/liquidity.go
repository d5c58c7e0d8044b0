package calculator

import (
	"fmt"
	"math/big"

	"github.com/defistate/defistate-router-go/failure"
)

// LiquidityQuote is the paired deposit amount for a liquidity provision.
// Unconstrained is set for a pool with no reserves yet; Amount is nil in that case and
// both sides are accepted as supplied.
type LiquidityQuote struct {
	Amount        *big.Int
	Unconstrained bool
}

// QuoteLiquidity returns floor(amountIn * reserveOut / reserveIn), the amount of the second
// token that keeps the pool ratio unchanged when amountIn of the first is deposited.
func QuoteLiquidity(reserveIn, reserveOut, amountIn *big.Int) (LiquidityQuote, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return LiquidityQuote{}, fmt.Errorf("%w: deposit must be positive, got %v", failure.ErrInvalidAmount, amountIn)
	}

	in, out := signOf(reserveIn), signOf(reserveOut)
	switch {
	case in < 0 || out < 0:
		return LiquidityQuote{}, fmt.Errorf("%w: negative reserves (%v, %v)", failure.ErrInsufficientLiquidity, reserveIn, reserveOut)
	case in == 0 && out == 0:
		return LiquidityQuote{Unconstrained: true}, nil
	case in == 0 || out == 0:
		return LiquidityQuote{}, fmt.Errorf("%w: inconsistent reserves (%v, %v)", failure.ErrInsufficientLiquidity, reserveIn, reserveOut)
	}

	amount := new(big.Int).Mul(amountIn, reserveOut)
	return LiquidityQuote{Amount: amount.Quo(amount, reserveIn)}, nil
}

func signOf(x *big.Int) int {
	if x == nil {
		return 0
	}
	return x.Sign()
}
