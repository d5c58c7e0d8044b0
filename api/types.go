package api

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"

	"github.com/defistate/defistate-router-go/protocols/tokenpoolregistry"
	"github.com/defistate/defistate-router-go/router"
	"github.com/defistate/defistate-router-go/settlement"
)

// Amounts cross the wire as base-10 strings in the token's smallest unit. The *Units
// fields are the same value scaled by the token's decimals, for display only.

// HopView is one priced hop.
type HopView struct {
	Pool      common.Address `json:"pool"`
	TokenIn   common.Address `json:"tokenIn"`
	TokenOut  common.Address `json:"tokenOut"`
	AmountIn  string         `json:"amountIn,omitempty"`
	AmountOut string         `json:"amountOut,omitempty"`
}

// QuoteView is a priced path.
type QuoteView struct {
	Path                []common.Address `json:"path"`
	Hops                int              `json:"hops"`
	HopDetails          []HopView        `json:"hopDetails"`
	AmountIn            string           `json:"amountIn"`
	AmountInUnits       string           `json:"amountInUnits,omitempty"`
	ExpectedOutput      string           `json:"expectedOutput"`
	ExpectedOutputUnits string           `json:"expectedOutputUnits,omitempty"`
	GasEstimate         uint64           `json:"gasEstimate"`
	SnapshotVersion     uint64           `json:"snapshotVersion"`
	ExactOutput         bool             `json:"exactOutput,omitempty"`
}

// QuoteResult is the answer of a best-path query. Direct is omitted when no single pool
// connects the pair.
type QuoteResult struct {
	Direct  *QuoteView `json:"direct,omitempty"`
	Optimal *QuoteView `json:"optimal"`
}

// PathView is an unpriced candidate path.
type PathView struct {
	Path  []common.Address `json:"path"`
	Pools []common.Address `json:"pools"`
	Hops  int              `json:"hops"`
}

// LiquidityView is the paired deposit for a pool.
type LiquidityView struct {
	Pool          common.Address `json:"pool"`
	Token         common.Address `json:"token"`
	PairedToken   common.Address `json:"pairedToken"`
	Amount        string         `json:"amount"`
	PairedAmount  string         `json:"pairedAmount,omitempty"`
	Unconstrained bool           `json:"unconstrained"`
}

// SwapParamsView is a ready-to-sign exact-input swap.
type SwapParamsView struct {
	Quote        *QuoteView       `json:"quote"`
	AmountIn     string           `json:"amountIn"`
	MinAmountOut string           `json:"minAmountOut"`
	Path         []common.Address `json:"path"`
	Recipient    common.Address   `json:"recipient"`
	Deadline     uint64           `json:"deadline"`
	ToleranceBps uint32           `json:"toleranceBps"`
	Calldata     hexutil.Bytes    `json:"calldata"`
}

// SwapExactOutParamsView is a ready-to-sign exact-output swap.
type SwapExactOutParamsView struct {
	Quote        *QuoteView       `json:"quote"`
	AmountOut    string           `json:"amountOut"`
	MaxAmountIn  string           `json:"maxAmountIn"`
	Path         []common.Address `json:"path"`
	Recipient    common.Address   `json:"recipient"`
	Deadline     uint64           `json:"deadline"`
	ToleranceBps uint32           `json:"toleranceBps"`
	Calldata     hexutil.Bytes    `json:"calldata"`
}

// AddLiquidityParamsView is a ready-to-sign deposit.
type AddLiquidityParamsView struct {
	TokenA         common.Address `json:"tokenA"`
	TokenB         common.Address `json:"tokenB"`
	AmountADesired string         `json:"amountADesired"`
	AmountBDesired string         `json:"amountBDesired"`
	AmountAMin     string         `json:"amountAMin"`
	AmountBMin     string         `json:"amountBMin"`
	Recipient      common.Address `json:"recipient"`
	Deadline       uint64         `json:"deadline"`
	Calldata       hexutil.Bytes  `json:"calldata"`
}

// ExecutionView is a mined settlement.
type ExecutionView struct {
	TxHash      common.Hash `json:"txHash"`
	BlockNumber uint64      `json:"blockNumber"`
	GasUsed     uint64      `json:"gasUsed"`
}

// TokenView is token metadata.
type TokenView struct {
	Address  common.Address `json:"address"`
	Name     string         `json:"name"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
}

// StatusView reports the graph currently served.
type StatusView struct {
	tokenpoolregistry.Stats
	Ready      bool `json:"ready"`
	MaxHops    int  `json:"maxHops"`
	Settlement bool `json:"settlement"`
}

func amountString(x *big.Int) string {
	if x == nil {
		return ""
	}
	return x.String()
}

// units scales x by the token's decimals. Unknown tokens yield "".
func units(g *tokenpoolregistry.Graph, token common.Address, x *big.Int) string {
	t, ok := g.Token(token)
	if !ok || x == nil {
		return ""
	}
	return decimal.NewFromBigInt(x, -int32(t.Decimals)).String()
}

func newQuoteView(g *tokenpoolregistry.Graph, q *router.Quote) *QuoteView {
	if q == nil {
		return nil
	}
	tokens := q.Path.Tokens()
	v := &QuoteView{
		Path:            tokens,
		Hops:            q.Hops(),
		HopDetails:      make([]HopView, 0, q.Hops()),
		AmountIn:        amountString(q.AmountIn),
		ExpectedOutput:  amountString(q.AmountOut),
		GasEstimate:     q.GasEstimate,
		SnapshotVersion: q.SnapshotVersion,
		ExactOutput:     q.ExactOutput,
	}
	if len(tokens) > 0 {
		v.AmountInUnits = units(g, tokens[0], q.AmountIn)
		v.ExpectedOutputUnits = units(g, tokens[len(tokens)-1], q.AmountOut)
	}
	for _, h := range q.Path.Hops {
		v.HopDetails = append(v.HopDetails, HopView{
			Pool:      h.PoolID,
			TokenIn:   h.TokenIn,
			TokenOut:  h.TokenOut,
			AmountIn:  amountString(h.AmountIn),
			AmountOut: amountString(h.AmountOut),
		})
	}
	return v
}

func newResultView(g *tokenpoolregistry.Graph, r *router.Result) *QuoteResult {
	return &QuoteResult{
		Direct:  newQuoteView(g, r.Direct),
		Optimal: newQuoteView(g, r.Optimal),
	}
}

func newPathView(p router.PathCandidate) PathView {
	return PathView{Path: p.Tokens(), Pools: p.PoolIDs(), Hops: p.Len()}
}

func newExecutionView(e settlement.Execution) *ExecutionView {
	v := &ExecutionView{TxHash: e.TxHash, GasUsed: e.GasUsed}
	if e.BlockNumber != nil {
		v.BlockNumber = e.BlockNumber.Uint64()
	}
	return v
}
