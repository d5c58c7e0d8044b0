// Package failure defines the closed set of failure kinds surfaced by the router.
//
// Every error produced by the pricing, search, allowance and settlement layers can be
// classified into exactly one Kind. Packages wrap the sentinels below with
// fmt.Errorf("%w: detail", failure.ErrX) and callers branch with errors.Is or KindOf.
package failure

import (
	"errors"
	"fmt"
)

// Kind names a failure class. The set is closed; clients may switch on it.
type Kind string

const (
	KindUnknown               Kind = ""
	KindInvalidAmount         Kind = "InvalidAmount"
	KindInsufficientLiquidity Kind = "InsufficientLiquidity"
	KindPoolNotFound          Kind = "PoolNotFound"
	KindNoPathFound           Kind = "NoPathFound"
	KindInvalidSlippage       Kind = "InvalidSlippage"
	KindQuoteStale            Kind = "QuoteStale"
	KindAllowanceCheckFailed  Kind = "AllowanceCheckFailed"
	KindApprovalFailed        Kind = "ApprovalFailed"
	KindSettlementReverted    Kind = "SettlementReverted"
)

// JSON-RPC error codes, one per kind. -32000 is the generic server error used for KindUnknown.
var codes = map[Kind]int{
	KindUnknown:               -32000,
	KindInvalidAmount:         -32010,
	KindInsufficientLiquidity: -32011,
	KindPoolNotFound:          -32012,
	KindNoPathFound:           -32013,
	KindInvalidSlippage:       -32014,
	KindQuoteStale:            -32015,
	KindAllowanceCheckFailed:  -32016,
	KindApprovalFailed:        -32017,
	KindSettlementReverted:    -32018,
}

// Kinds returns every known kind, excluding KindUnknown.
func Kinds() []Kind {
	return []Kind{
		KindInvalidAmount,
		KindInsufficientLiquidity,
		KindPoolNotFound,
		KindNoPathFound,
		KindInvalidSlippage,
		KindQuoteStale,
		KindAllowanceCheckFailed,
		KindApprovalFailed,
		KindSettlementReverted,
	}
}

// Code returns the JSON-RPC error code for the kind.
func (k Kind) Code() int {
	if c, ok := codes[k]; ok {
		return c
	}
	return codes[KindUnknown]
}

// Local reports whether the kind is a validation failure that can never succeed when
// retried with the same inputs.
func (k Kind) Local() bool {
	switch k {
	case KindInvalidAmount, KindInsufficientLiquidity, KindPoolNotFound, KindNoPathFound, KindInvalidSlippage:
		return true
	}
	return false
}

// CallerRetryable reports whether a caller may retry the operation with a fresh request.
// The components themselves never retry automatically.
func (k Kind) CallerRetryable() bool {
	return k == KindAllowanceCheckFailed || k == KindApprovalFailed
}

// Error is a classified failure. Two *Error values match under errors.Is when their
// kinds are equal, so the sentinels below match any wrapped occurrence of their kind.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// ErrorCode implements the go-ethereum rpc.Error interface.
func (e *Error) ErrorCode() int { return e.Kind.Code() }

// ErrorData implements the go-ethereum rpc.DataError interface.
func (e *Error) ErrorData() any {
	return map[string]any{"kind": e.Kind}
}

var (
	ErrInvalidAmount         = &Error{Kind: KindInvalidAmount}
	ErrInsufficientLiquidity = &Error{Kind: KindInsufficientLiquidity}
	ErrPoolNotFound          = &Error{Kind: KindPoolNotFound}
	ErrNoPathFound           = &Error{Kind: KindNoPathFound}
	ErrInvalidSlippage       = &Error{Kind: KindInvalidSlippage}
	ErrQuoteStale            = &Error{Kind: KindQuoteStale}
	ErrAllowanceCheckFailed  = &Error{Kind: KindAllowanceCheckFailed}
	ErrApprovalFailed        = &Error{Kind: KindApprovalFailed}
	ErrSettlementReverted    = &Error{Kind: KindSettlementReverted}
)

// Wrap classifies err under kind. A nil err yields nil.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// Public flattens err into a value suitable for the JSON-RPC surface, which inspects
// the returned error directly rather than its chain.
func Public(err error) error {
	if err == nil {
		return nil
	}
	return &publicError{kind: KindOf(err), msg: err.Error()}
}

type publicError struct {
	kind Kind
	msg  string
}

func (e *publicError) Error() string  { return e.msg }
func (e *publicError) ErrorCode() int { return e.kind.Code() }
func (e *publicError) ErrorData() any { return map[string]any{"kind": e.kind} }
func (e *publicError) Unwrap() error  { return &Error{Kind: e.kind} }
