package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/defistate/defistate-router-go/chains"
)

// ErrReverted is returned by WaitMined when the transaction was mined with a failed status.
var ErrReverted = errors.New("transaction reverted")

// Client is a chains.Backend over a node's JSON-RPC endpoint.
// Its lifecycle is bound to Close.
type Client struct {
	rpc    *rpc.Client
	eth    *ethclient.Client
	logger chains.Logger
}

var _ chains.Backend = (*Client)(nil)

// Dial connects to the node at url.
func Dial(ctx context.Context, url string, logger chains.Logger) (*Client, error) {
	rc, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial node %s: %w", url, err)
	}
	return NewClient(rc, logger), nil
}

// NewClient wraps an existing RPC connection.
func NewClient(rc *rpc.Client, logger chains.Logger) *Client {
	return &Client{
		rpc:    rc,
		eth:    ethclient.NewClient(rc),
		logger: logger,
	}
}

// CallContract executes a read-only call at blockNumber (nil for latest).
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.eth.CallContract(ctx, msg, blockNumber)
}

// TransactionReceipt returns ethereum.NotFound while the transaction is pending.
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return c.eth.TransactionReceipt(ctx, hash)
}

// CodeAt returns the contract code of account at blockNumber (nil for latest).
func (c *Client) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return c.eth.CodeAt(ctx, account, blockNumber)
}

type sendArgs struct {
	From common.Address `json:"from"`
	To   common.Address `json:"to"`
	Data hexutil.Bytes  `json:"data"`
}

// SendTransaction submits an unsigned call through eth_sendTransaction, leaving gas,
// nonce and signing to the node.
func (c *Client) SendTransaction(ctx context.Context, from, to common.Address, data []byte) (common.Hash, error) {
	var hash common.Hash
	args := sendArgs{From: from, To: to, Data: data}
	if err := c.rpc.CallContext(ctx, &hash, "eth_sendTransaction", args); err != nil {
		return common.Hash{}, fmt.Errorf("eth_sendTransaction from %s to %s: %w", from.Hex(), to.Hex(), err)
	}
	c.logger.Debug("Transaction submitted", "from", from, "to", to, "tx", hash)
	return hash, nil
}

// Close closes the underlying connection.
func (c *Client) Close() {
	c.rpc.Close()
}

// WaitMined blocks until hash is mined or ctx is done.
// A failed receipt is returned together with ErrReverted.
func WaitMined(ctx context.Context, b chains.ReceiptReader, hash common.Hash) (*types.Receipt, error) {
	receipt, err := bind.WaitMinedHash(ctx, b, hash)
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: %s in block %v", ErrReverted, hash.Hex(), receipt.BlockNumber)
	}
	return receipt, nil
}
