package settlement

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/defistate/defistate-router-go/failure"
)

// Reason is a recognized settlement failure.
type Reason int

const (
	ReasonUnknown Reason = iota
	ReasonInsufficientOutputAmount
	ReasonExcessiveInputAmount
	ReasonExpired
	ReasonInsufficientAAmount
	ReasonInsufficientBAmount
	ReasonInsufficientLiquidity
	ReasonTransferFailed
)

// reasons maps the revert strings of the router, its library and its transfer helper.
// Adding a signature here is all a new reason needs.
var reasons = map[string]Reason{
	"UniswapV2Router: INSUFFICIENT_OUTPUT_AMOUNT":  ReasonInsufficientOutputAmount,
	"UniswapV2Router: EXCESSIVE_INPUT_AMOUNT":      ReasonExcessiveInputAmount,
	"UniswapV2Router: EXPIRED":                     ReasonExpired,
	"UniswapV2Router: INSUFFICIENT_A_AMOUNT":       ReasonInsufficientAAmount,
	"UniswapV2Router: INSUFFICIENT_B_AMOUNT":       ReasonInsufficientBAmount,
	"UniswapV2Library: INSUFFICIENT_LIQUIDITY":     ReasonInsufficientLiquidity,
	"UniswapV2Library: INSUFFICIENT_OUTPUT_AMOUNT": ReasonInsufficientOutputAmount,
	"TransferHelper: TRANSFER_FROM_FAILED":         ReasonTransferFailed,
	"TransferHelper: TRANSFER_FAILED":              ReasonTransferFailed,
}

func (r Reason) String() string {
	switch r {
	case ReasonInsufficientOutputAmount:
		return "InsufficientOutputAmount"
	case ReasonExcessiveInputAmount:
		return "ExcessiveInputAmount"
	case ReasonExpired:
		return "Expired"
	case ReasonInsufficientAAmount:
		return "InsufficientAAmount"
	case ReasonInsufficientBAmount:
		return "InsufficientBAmount"
	case ReasonInsufficientLiquidity:
		return "InsufficientLiquidity"
	case ReasonTransferFailed:
		return "TransferFailed"
	}
	return "Unknown"
}

// RevertError is a decoded settlement revert. Message is the raw reason as returned
// by the chain, or empty when the revert carried none.
type RevertError struct {
	Reason  Reason
	Message string
}

func (e *RevertError) Error() string {
	if e.Message == "" {
		return e.Reason.String()
	}
	return fmt.Sprintf("%s (%s)", e.Reason, e.Message)
}

// DecodeRevert classifies revert data returned by the chain. The result is always a
// SettlementReverted failure wrapping a *RevertError.
func DecodeRevert(data []byte) error {
	rev := &RevertError{Reason: ReasonUnknown}
	if msg, err := abi.UnpackRevert(data); err == nil {
		rev.Message = msg
		rev.Reason = reasons[msg]
	} else if len(data) > 0 {
		rev.Message = hexutil.Encode(data)
	}
	return &failure.Error{Kind: failure.KindSettlementReverted, Err: rev}
}

// ReasonOf returns the decoded reason in err's chain, or ReasonUnknown.
func ReasonOf(err error) Reason {
	var rev *RevertError
	if errors.As(err, &rev) {
		return rev.Reason
	}
	return ReasonUnknown
}

// revertData extracts the revert payload a node attaches to a failed eth_call.
func revertData(err error) ([]byte, bool) {
	var de rpc.DataError
	if !errors.As(err, &de) {
		return nil, false
	}
	s, ok := de.ErrorData().(string)
	if !ok {
		return nil, false
	}
	data, decodeErr := hexutil.Decode(s)
	if decodeErr != nil {
		return nil, false
	}
	return data, true
}
