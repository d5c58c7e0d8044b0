// Package erc20 backs the allowance orchestrator with ERC-20 allowance/approve calls.
package erc20

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/defistate/defistate-router-go/allowance"
	"github.com/defistate/defistate-router-go/chains"
	chainclient "github.com/defistate/defistate-router-go/chains/ethereum"
	"github.com/defistate/defistate-router-go/failure"
)

const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

// ABI is the parsed allowance/approve subset of ERC-20.
var ABI = mustParse(erc20ABI)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("erc20: invalid ABI: %v", err))
	}
	return parsed
}

// Unlimited returns 2^256-1, the conventional infinite approval.
func Unlimited() *big.Int {
	return new(uint256.Int).SetAllOne().ToBig()
}

// Reader reads allowances with eth_call.
type Reader struct {
	caller ethereum.ContractCaller
}

var _ allowance.Reader = (*Reader)(nil)

func NewReader(caller ethereum.ContractCaller) *Reader {
	return &Reader{caller: caller}
}

func (r *Reader) Allowance(ctx context.Context, owner, token, spender common.Address) (*big.Int, error) {
	data, err := ABI.Pack("allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("pack allowance: %w", err)
	}
	out, err := r.caller.CallContract(ctx, ethereum.CallMsg{From: owner, To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call allowance on %s: %w", token.Hex(), err)
	}
	values, err := ABI.Unpack("allowance", out)
	if err != nil {
		return nil, fmt.Errorf("unpack allowance from %s: %w", token.Hex(), err)
	}
	amount, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected allowance type %T from %s", values[0], token.Hex())
	}
	return amount, nil
}

// Approver sends approve transactions through a chains.Sender and waits for their receipts.
type Approver struct {
	sender   chains.Sender
	receipts chains.ReceiptReader
}

var _ allowance.Approver = (*Approver)(nil)

// NewApprover creates an Approver.
func NewApprover(sender chains.Sender, receipts chains.ReceiptReader) *Approver {
	return &Approver{sender: sender, receipts: receipts}
}

func (a *Approver) SubmitApproval(ctx context.Context, owner, token, spender common.Address, amount *big.Int) (common.Hash, error) {
	if amount == nil || amount.Sign() <= 0 {
		return common.Hash{}, fmt.Errorf("%w: approval amount must be positive", failure.ErrInvalidAmount)
	}
	if _, overflow := uint256.FromBig(amount); overflow {
		return common.Hash{}, fmt.Errorf("%w: approval amount %s does not fit uint256", failure.ErrInvalidAmount, amount)
	}
	data, err := ABI.Pack("approve", spender, amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack approve: %w", err)
	}
	return a.sender.SendTransaction(ctx, owner, token, data)
}

func (a *Approver) AwaitApproval(ctx context.Context, tx common.Hash) error {
	if _, err := chainclient.WaitMined(ctx, a.receipts, tx); err != nil {
		return fmt.Errorf("approval %s not confirmed: %w", tx.Hex(), err)
	}
	return nil
}
