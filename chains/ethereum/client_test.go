package ethereum

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type callArgs struct {
	From  *common.Address `json:"from"`
	To    *common.Address `json:"to"`
	Input hexutil.Bytes   `json:"input"`
	Data  hexutil.Bytes   `json:"data"`
}

// fakeEth serves the eth namespace methods the client uses.
type fakeEth struct {
	sent []sendArgs
}

func (f *fakeEth) SendTransaction(args sendArgs) (common.Hash, error) {
	f.sent = append(f.sent, args)
	return common.BytesToHash(args.Data), nil
}

func (f *fakeEth) Call(args callArgs, block string) (hexutil.Bytes, error) {
	input := args.Input
	if len(input) == 0 {
		input = args.Data
	}
	// echo the calldata reversed so the test can tell the request reached the server
	out := make([]byte, len(input))
	for i, b := range input {
		out[len(input)-1-i] = b
	}
	return out, nil
}

func newTestClient(t *testing.T) (*Client, *fakeEth) {
	t.Helper()
	server := rpc.NewServer()
	svc := &fakeEth{}
	require.NoError(t, server.RegisterName("eth", svc))
	t.Cleanup(server.Stop)

	c := NewClient(rpc.DialInProc(server), slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(c.Close)
	return c, svc
}

func TestClient_SendTransaction(t *testing.T) {
	c, svc := newTestClient(t)
	from := common.HexToAddress("0x01")
	to := common.HexToAddress("0x02")

	hash, err := c.SendTransaction(context.Background(), from, to, []byte{0xde, 0xad})
	require.NoError(t, err)
	assert.Equal(t, common.BytesToHash([]byte{0xde, 0xad}), hash)

	require.Len(t, svc.sent, 1)
	assert.Equal(t, from, svc.sent[0].From)
	assert.Equal(t, to, svc.sent[0].To)
	assert.Equal(t, hexutil.Bytes{0xde, 0xad}, svc.sent[0].Data)
}

func TestClient_CallContract(t *testing.T) {
	c, _ := newTestClient(t)
	to := common.HexToAddress("0x02")

	out, err := c.CallContract(context.Background(), ethereum.CallMsg{To: &to, Data: []byte{1, 2, 3}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 2, 1}, out)
}

// fakeReceipts answers NotFound for the first pending calls, then a node error for
// the next failing calls, then the receipt.
type fakeReceipts struct {
	pending int32
	failing int32
	calls   atomic.Int32
	receipt *types.Receipt
}

func (f *fakeReceipts) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	n := f.calls.Add(1)
	switch {
	case n <= f.pending:
		return nil, ethereum.NotFound
	case n <= f.pending+f.failing:
		return nil, errors.New("node unavailable")
	}
	return f.receipt, nil
}

func (f *fakeReceipts) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return nil, nil
}

func TestWaitMined(t *testing.T) {
	hash := common.HexToHash("0xabc")

	t.Run("mined", func(t *testing.T) {
		r := &fakeReceipts{receipt: &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(7)}}
		receipt, err := WaitMined(context.Background(), r, hash)
		require.NoError(t, err)
		assert.Equal(t, int64(7), receipt.BlockNumber.Int64())
		assert.Equal(t, int32(1), r.calls.Load())
	})

	t.Run("waits through pending", func(t *testing.T) {
		r := &fakeReceipts{pending: 1, receipt: &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(8)}}
		receipt, err := WaitMined(context.Background(), r, hash)
		require.NoError(t, err)
		assert.Equal(t, int64(8), receipt.BlockNumber.Int64())
		assert.Equal(t, int32(2), r.calls.Load())
	})

	t.Run("retries node errors", func(t *testing.T) {
		r := &fakeReceipts{failing: 1, receipt: &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(9)}}
		_, err := WaitMined(context.Background(), r, hash)
		require.NoError(t, err)
		assert.Equal(t, int32(2), r.calls.Load())
	})

	t.Run("reverted", func(t *testing.T) {
		r := &fakeReceipts{receipt: &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(9)}}
		receipt, err := WaitMined(context.Background(), r, hash)
		require.ErrorIs(t, err, ErrReverted)
		require.NotNil(t, receipt)
		assert.Equal(t, types.ReceiptStatusFailed, receipt.Status)
	})

	t.Run("context done", func(t *testing.T) {
		r := &fakeReceipts{pending: 1 << 30}
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := WaitMined(ctx, r, hash)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
