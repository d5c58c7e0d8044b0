package allowance

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Key identifies one allowance: owner lets spender move token.
type Key struct {
	Owner   common.Address
	Token   common.Address
	Spender common.Address
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Owner.Hex(), k.Token.Hex(), k.Spender.Hex())
}

// State is the orchestration state of a key.
type State int

const (
	Unknown State = iota
	Checking
	Sufficient
	Insufficient
	Approving
	Approved
)

func (s State) String() string {
	switch s {
	case Unknown:
		return "Unknown"
	case Checking:
		return "Checking"
	case Sufficient:
		return "Sufficient"
	case Insufficient:
		return "Insufficient"
	case Approving:
		return "Approving"
	case Approved:
		return "Approved"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Proceed reports whether the state permits the caller to build its transaction.
func (s State) Proceed() bool {
	return s == Sufficient || s == Approved
}

// Reader reads the current on-chain allowance.
type Reader interface {
	Allowance(ctx context.Context, owner, token, spender common.Address) (*big.Int, error)
}

// Approver submits approval transactions and waits for them to be mined.
type Approver interface {
	SubmitApproval(ctx context.Context, owner, token, spender common.Address, amount *big.Int) (common.Hash, error)
	AwaitApproval(ctx context.Context, tx common.Hash) error
}

// Outcome is the result of Ensure. TxHash is set only when an approval was sent.
type Outcome struct {
	State     State
	Allowance *big.Int
	TxHash    common.Hash
}

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}
