// Package slippage turns quotes into the bounds the settlement layer enforces. A bound is
// computed once and handed on unmodified; nothing here loosens it afterwards.
package slippage

import (
	"fmt"
	"math/big"

	"github.com/defistate/defistate-router-go/failure"
	"github.com/defistate/defistate-router-go/router"
)

// MaxToleranceBps is the exclusive upper limit of a tolerance.
const MaxToleranceBps = 10000

var bpsDivisor = big.NewInt(MaxToleranceBps)

// Mode selects which side of a quote is bounded.
type Mode int

const (
	// ExactInput bounds the minimum output of a fixed input.
	ExactInput Mode = iota
	// ExactOutput bounds the maximum input for a fixed output.
	ExactOutput
)

func (m Mode) String() string {
	switch m {
	case ExactInput:
		return "exactInput"
	case ExactOutput:
		return "exactOutput"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Bound is an enforceable swap limit. For ExactInput, AmountIn is exact and
// MinAmountOut is the floor; for ExactOutput, AmountOut is exact and MaxAmountIn the ceiling.
type Bound struct {
	Mode         Mode
	ToleranceBps uint32
	AmountIn     *big.Int
	AmountOut    *big.Int
	MinAmountOut *big.Int
	MaxAmountIn  *big.Int
}

func checkTolerance(toleranceBps uint32) error {
	if toleranceBps >= MaxToleranceBps {
		return fmt.Errorf("%w: tolerance %d bps outside [0, %d)", failure.ErrInvalidSlippage, toleranceBps, MaxToleranceBps)
	}
	return nil
}

// MinAmountOut returns floor(amountOut * (10000 - toleranceBps) / 10000).
func MinAmountOut(amountOut *big.Int, toleranceBps uint32) (*big.Int, error) {
	if err := checkTolerance(toleranceBps); err != nil {
		return nil, err
	}
	if amountOut == nil || amountOut.Sign() < 0 {
		return nil, fmt.Errorf("%w: amountOut must be non-negative, got %v", failure.ErrInvalidAmount, amountOut)
	}
	floor := new(big.Int).Mul(amountOut, big.NewInt(int64(MaxToleranceBps-toleranceBps)))
	return floor.Quo(floor, bpsDivisor), nil
}

// MaxAmountIn returns ceil(amountIn * (10000 + toleranceBps) / 10000).
func MaxAmountIn(amountIn *big.Int, toleranceBps uint32) (*big.Int, error) {
	if err := checkTolerance(toleranceBps); err != nil {
		return nil, err
	}
	if amountIn == nil || amountIn.Sign() < 0 {
		return nil, fmt.Errorf("%w: amountIn must be non-negative, got %v", failure.ErrInvalidAmount, amountIn)
	}
	ceiling := new(big.Int).Mul(amountIn, big.NewInt(int64(MaxToleranceBps+toleranceBps)))
	ceiling.Add(ceiling, big.NewInt(MaxToleranceBps-1))
	return ceiling.Quo(ceiling, bpsDivisor), nil
}

// Apply bounds a quote. The mode must agree with how the quote was priced: an
// exact-output quote can only be bounded on its input.
func Apply(q *router.Quote, toleranceBps uint32, mode Mode) (Bound, error) {
	if q == nil || q.AmountIn == nil || q.AmountOut == nil {
		return Bound{}, fmt.Errorf("%w: incomplete quote", failure.ErrInvalidAmount)
	}

	b := Bound{
		Mode:         mode,
		ToleranceBps: toleranceBps,
		AmountIn:     new(big.Int).Set(q.AmountIn),
		AmountOut:    new(big.Int).Set(q.AmountOut),
	}

	var err error
	switch mode {
	case ExactInput:
		if q.ExactOutput {
			return Bound{}, fmt.Errorf("%w: exact-output quote cannot bound a fixed input", failure.ErrInvalidSlippage)
		}
		b.MinAmountOut, err = MinAmountOut(q.AmountOut, toleranceBps)
	case ExactOutput:
		b.MaxAmountIn, err = MaxAmountIn(q.AmountIn, toleranceBps)
	default:
		return Bound{}, fmt.Errorf("%w: unknown mode %s", failure.ErrInvalidSlippage, mode)
	}
	if err != nil {
		return Bound{}, err
	}
	return b, nil
}
