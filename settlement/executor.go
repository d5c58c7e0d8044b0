package settlement

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/defistate-router-go/allowance"
	"github.com/defistate/defistate-router-go/chains"
	chainclient "github.com/defistate/defistate-router-go/chains/ethereum"
	"github.com/defistate/defistate-router-go/failure"
	"github.com/defistate/defistate-router-go/protocols/tokenpoolregistry"
	"github.com/defistate/defistate-router-go/router"
)

// Ensurer is the part of the allowance orchestrator the executor needs.
type Ensurer interface {
	Ensure(ctx context.Context, key allowance.Key, required *big.Int) (allowance.Outcome, error)
	Invalidate(key allowance.Key)
}

// GraphSource returns the current pool graph.
type GraphSource interface {
	Graph() *tokenpoolregistry.Graph
}

// Config configures an Executor.
type Config struct {
	Backend   chains.Backend
	Allowance Ensurer
	Graphs    GraphSource
	// Router is the settlement contract, and the spender of every approval.
	Router common.Address
	Logger chains.Logger
}

func (c *Config) validate() error {
	if c.Backend == nil {
		return errors.New("config: Backend cannot be nil")
	}
	if c.Allowance == nil {
		return errors.New("config: Allowance cannot be nil")
	}
	if c.Graphs == nil {
		return errors.New("config: Graphs cannot be nil")
	}
	if c.Router == (common.Address{}) {
		return errors.New("config: Router cannot be the zero address")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	return nil
}

// Execution is a mined settlement transaction.
type Execution struct {
	TxHash      common.Hash `json:"txHash"`
	BlockNumber *big.Int    `json:"blockNumber"`
	GasUsed     uint64      `json:"gasUsed"`
}

// Executor runs a state-changing operation end to end: freshness check, allowance,
// simulation, submission and confirmation. Every stage fails closed.
type Executor struct {
	backend   chains.Backend
	allowance Ensurer
	graphs    GraphSource
	router    common.Address
	logger    chains.Logger
}

func NewExecutor(cfg *Config) (*Executor, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Executor{
		backend:   cfg.Backend,
		allowance: cfg.Allowance,
		graphs:    cfg.Graphs,
		router:    cfg.Router,
		logger:    cfg.Logger,
	}, nil
}

// Router returns the settlement contract address.
func (e *Executor) Router() common.Address { return e.router }

// SwapExactIn settles an exact-input swap built from q. q must still price identically
// on the current graph.
func (e *Executor) SwapExactIn(ctx context.Context, owner common.Address, q *router.Quote, p SwapExactIn) (Execution, error) {
	if err := router.CheckFresh(e.graphs.Graph(), q); err != nil {
		return Execution{}, err
	}
	data, err := PackSwapExactIn(p)
	if err != nil {
		return Execution{}, err
	}
	spend := []spendable{{token: p.Path[0], amount: p.AmountIn}}
	return e.execute(ctx, owner, spend, data)
}

// SwapExactOut settles an exact-output swap built from q. The approval covers the
// bound's maximum input.
func (e *Executor) SwapExactOut(ctx context.Context, owner common.Address, q *router.Quote, p SwapExactOut) (Execution, error) {
	if err := router.CheckFresh(e.graphs.Graph(), q); err != nil {
		return Execution{}, err
	}
	data, err := PackSwapExactOut(p)
	if err != nil {
		return Execution{}, err
	}
	spend := []spendable{{token: p.Path[0], amount: p.MaxAmountIn}}
	return e.execute(ctx, owner, spend, data)
}

// AddLiquidity settles a deposit; both tokens must be approved.
func (e *Executor) AddLiquidity(ctx context.Context, owner common.Address, p AddLiquidity) (Execution, error) {
	data, err := PackAddLiquidity(p)
	if err != nil {
		return Execution{}, err
	}
	spend := []spendable{
		{token: p.TokenA, amount: p.AmountADesired},
		{token: p.TokenB, amount: p.AmountBDesired},
	}
	return e.execute(ctx, owner, spend, data)
}

type spendable struct {
	token  common.Address
	amount *big.Int
}

func (e *Executor) execute(ctx context.Context, owner common.Address, spend []spendable, data []byte) (Execution, error) {
	for _, s := range spend {
		key := allowance.Key{Owner: owner, Token: s.token, Spender: e.router}
		outcome, err := e.allowance.Ensure(ctx, key, s.amount)
		if err != nil {
			return Execution{}, err
		}
		if !outcome.State.Proceed() {
			return Execution{}, fmt.Errorf("%w: allowance for %s is %s", failure.ErrApprovalFailed, key, outcome.State)
		}
	}

	msg := ethereum.CallMsg{From: owner, To: &e.router, Data: data}
	if _, err := e.backend.CallContract(ctx, msg, nil); err != nil {
		if rev, ok := revertData(err); ok {
			return Execution{}, DecodeRevert(rev)
		}
		return Execution{}, fmt.Errorf("simulating settlement: %w", err)
	}

	tx, err := e.backend.SendTransaction(ctx, owner, e.router, data)
	if err != nil {
		return Execution{}, fmt.Errorf("submitting settlement: %w", err)
	}
	e.logger.Info("Settlement submitted", "owner", owner, "tx", tx)

	// The swap spends allowance whatever the outcome; force a re-read next time.
	defer func() {
		for _, s := range spend {
			e.allowance.Invalidate(allowance.Key{Owner: owner, Token: s.token, Spender: e.router})
		}
	}()

	receipt, err := chainclient.WaitMined(ctx, e.backend, tx)
	if errors.Is(err, chainclient.ErrReverted) {
		e.logger.Warn("Settlement reverted", "tx", tx, "block", receipt.BlockNumber)
		return Execution{}, e.replay(ctx, msg, receipt.BlockNumber, tx)
	}
	if err != nil {
		return Execution{}, fmt.Errorf("awaiting settlement %s: %w", tx.Hex(), err)
	}

	e.logger.Info("Settlement mined", "tx", tx, "block", receipt.BlockNumber, "gas_used", receipt.GasUsed)
	return Execution{TxHash: tx, BlockNumber: receipt.BlockNumber, GasUsed: receipt.GasUsed}, nil
}

// replay re-executes a reverted transaction at its block to recover the reason.
func (e *Executor) replay(ctx context.Context, msg ethereum.CallMsg, block *big.Int, tx common.Hash) error {
	_, err := e.backend.CallContract(ctx, msg, block)
	if rev, ok := revertData(err); ok {
		return fmt.Errorf("settlement %s: %w", tx.Hex(), DecodeRevert(rev))
	}
	return fmt.Errorf("settlement %s: %w", tx.Hex(), DecodeRevert(nil))
}
