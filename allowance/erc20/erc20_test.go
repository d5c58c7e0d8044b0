package erc20

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defistate/defistate-router-go/allowance"
	"github.com/defistate/defistate-router-go/failure"
)

var (
	owner   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	token   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	spender = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

// fakeToken is a single ERC-20 contract behind a node that mines every transaction
// by the time its receipt is asked for.
type fakeToken struct {
	mu         sync.Mutex
	allowances map[[2]common.Address]*big.Int
	pending    map[common.Hash]func() bool
	nonce      uint64
	revert     bool
	callErr    error
	sendErr    error
}

func newFakeToken() *fakeToken {
	return &fakeToken{
		allowances: make(map[[2]common.Address]*big.Int),
		pending:    make(map[common.Hash]func() bool),
	}
}

func (f *fakeToken) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.callErr != nil {
		return nil, f.callErr
	}
	if msg.To == nil || *msg.To != token {
		return nil, errors.New("no contract")
	}
	method, err := ABI.MethodById(msg.Data[:4])
	if err != nil || method.Name != "allowance" {
		return nil, errors.New("unexpected call")
	}
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}
	value, ok := f.allowances[[2]common.Address{args[0].(common.Address), args[1].(common.Address)}]
	if !ok {
		value = new(big.Int)
	}
	return method.Outputs.Pack(value)
}

func (f *fakeToken) SendTransaction(ctx context.Context, from, to common.Address, data []byte) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return common.Hash{}, f.sendErr
	}
	method, err := ABI.MethodById(data[:4])
	if err != nil || method.Name != "approve" || to != token {
		return common.Hash{}, errors.New("unexpected transaction")
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return common.Hash{}, err
	}
	f.nonce++
	hash := common.BigToHash(new(big.Int).SetUint64(f.nonce))
	key := [2]common.Address{from, args[0].(common.Address)}
	amount := args[1].(*big.Int)
	revert := f.revert
	f.pending[hash] = func() bool {
		if revert {
			return false
		}
		f.allowances[key] = amount
		return true
	}
	return hash, nil
}

func (f *fakeToken) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	apply, ok := f.pending[hash]
	if !ok {
		return nil, errors.New("unknown transaction")
	}
	status := types.ReceiptStatusFailed
	if apply() {
		status = types.ReceiptStatusSuccessful
	}
	delete(f.pending, hash)
	return &types.Receipt{TxHash: hash, Status: status, BlockNumber: big.NewInt(1)}, nil
}

func (f *fakeToken) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return nil, nil
}

func (f *fakeToken) set(amount int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allowances[[2]common.Address{owner, spender}] = big.NewInt(amount)
}

func TestReader_Allowance(t *testing.T) {
	chain := newFakeToken()
	chain.set(1234)
	r := NewReader(chain)

	got, err := r.Allowance(context.Background(), owner, token, spender)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), got.Int64())

	got, err = r.Allowance(context.Background(), spender, token, owner)
	require.NoError(t, err)
	assert.Zero(t, got.Sign(), "unset allowance reads as zero")

	chain.callErr = errors.New("node down")
	_, err = r.Allowance(context.Background(), owner, token, spender)
	require.ErrorIs(t, err, chain.callErr)
}

func TestApprover_SubmitAndAwait(t *testing.T) {
	chain := newFakeToken()
	a := NewApprover(chain, chain)
	ctx := context.Background()

	tx, err := a.SubmitApproval(ctx, owner, token, spender, big.NewInt(500))
	require.NoError(t, err)
	require.NoError(t, a.AwaitApproval(ctx, tx))

	got, err := NewReader(chain).Allowance(ctx, owner, token, spender)
	require.NoError(t, err)
	assert.Equal(t, int64(500), got.Int64())
}

func TestApprover_Unlimited(t *testing.T) {
	chain := newFakeToken()
	a := NewApprover(chain, chain)

	tx, err := a.SubmitApproval(context.Background(), owner, token, spender, Unlimited())
	require.NoError(t, err)
	require.NoError(t, a.AwaitApproval(context.Background(), tx))

	got, err := NewReader(chain).Allowance(context.Background(), owner, token, spender)
	require.NoError(t, err)
	assert.Equal(t, 256, got.BitLen())
	assert.True(t, bytes.Equal(bytes.Repeat([]byte{0xff}, 32), got.Bytes()))
}

func TestApprover_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("amount out of range", func(t *testing.T) {
		a := NewApprover(newFakeToken(), nil)
		tooBig := new(big.Int).Lsh(big.NewInt(1), 256)
		for _, amount := range []*big.Int{nil, big.NewInt(0), big.NewInt(-1), tooBig} {
			_, err := a.SubmitApproval(ctx, owner, token, spender, amount)
			assert.ErrorIs(t, err, failure.ErrInvalidAmount, "amount %v", amount)
		}
	})

	t.Run("reverted approval", func(t *testing.T) {
		chain := newFakeToken()
		chain.revert = true
		a := NewApprover(chain, chain)
		tx, err := a.SubmitApproval(ctx, owner, token, spender, big.NewInt(1))
		require.NoError(t, err)
		require.Error(t, a.AwaitApproval(ctx, tx))
	})

	t.Run("send error", func(t *testing.T) {
		chain := newFakeToken()
		chain.sendErr = errors.New("rejected by signer")
		a := NewApprover(chain, chain)
		_, err := a.SubmitApproval(ctx, owner, token, spender, big.NewInt(1))
		require.ErrorIs(t, err, chain.sendErr)
	})
}

func newOrchestrator(t *testing.T, chain *fakeToken) *allowance.Orchestrator {
	t.Helper()
	o, err := allowance.NewOrchestrator(&allowance.Config{
		Reader:   NewReader(chain),
		Approver: NewApprover(chain, chain),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Registry: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	return o
}

func TestOrchestratorOverERC20(t *testing.T) {
	key := allowance.Key{Owner: owner, Token: token, Spender: spender}
	ctx := context.Background()

	t.Run("approves then reads sufficient", func(t *testing.T) {
		chain := newFakeToken()
		o := newOrchestrator(t, chain)

		out, err := o.Ensure(ctx, key, big.NewInt(700))
		require.NoError(t, err)
		assert.Equal(t, allowance.Approved, out.State)
		assert.NotEqual(t, common.Hash{}, out.TxHash)

		o.Invalidate(key)
		out, err = o.Ensure(ctx, key, big.NewInt(700))
		require.NoError(t, err)
		assert.Equal(t, allowance.Sufficient, out.State)
		assert.Equal(t, int64(700), out.Allowance.Int64())
	})

	t.Run("revert surfaces as approval failure", func(t *testing.T) {
		chain := newFakeToken()
		chain.revert = true
		o := newOrchestrator(t, chain)

		_, err := o.Ensure(ctx, key, big.NewInt(1))
		require.ErrorIs(t, err, failure.ErrApprovalFailed)
		assert.Equal(t, allowance.Unknown, o.State(key))
	})

	t.Run("read failure", func(t *testing.T) {
		chain := newFakeToken()
		chain.callErr = errors.New("node down")
		o := newOrchestrator(t, chain)

		_, err := o.Ensure(ctx, key, big.NewInt(1))
		require.ErrorIs(t, err, failure.ErrAllowanceCheckFailed)
	})
}
