// Package chains declares what the router needs from an EVM node: contract calls,
// transaction submission and receipts.
package chains

import (
	"context"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Sender submits a call transaction from an account the node can sign for.
// Signing stays with the node or its external signer.
type Sender interface {
	SendTransaction(ctx context.Context, from, to common.Address, data []byte) (common.Hash, error)
}

// ReceiptReader is what bind needs to wait for a transaction to be mined.
type ReceiptReader interface {
	bind.DeployBackend
}

// Backend is everything the allowance and settlement layers use.
type Backend interface {
	ethereum.ContractCaller
	Sender
	ReceiptReader
}
