package failure

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected Kind
	}{
		{name: "sentinel", err: ErrNoPathFound, expected: KindNoPathFound},
		{name: "wrapped sentinel", err: fmt.Errorf("%w: pool 0x01", ErrPoolNotFound), expected: KindPoolNotFound},
		{name: "double wrapped", err: fmt.Errorf("search: %w", fmt.Errorf("%w: hop 2", ErrInsufficientLiquidity)), expected: KindInsufficientLiquidity},
		{name: "wrap helper", err: Wrap(KindApprovalFailed, errors.New("reverted")), expected: KindApprovalFailed},
		{name: "plain error", err: errors.New("boom"), expected: KindUnknown},
		{name: "nil", err: nil, expected: KindUnknown},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, KindOf(tc.err))
		})
	}
}

func TestErrorsIsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("%w: amount is zero", ErrInvalidAmount)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.NotErrorIs(t, err, ErrInsufficientLiquidity)

	wrapped := Wrap(KindAllowanceCheckFailed, errors.New("rpc down"))
	assert.ErrorIs(t, wrapped, ErrAllowanceCheckFailed)
	assert.Contains(t, wrapped.Error(), "rpc down")
}

func TestPublic(t *testing.T) {
	assert.Nil(t, Public(nil))

	err := Public(fmt.Errorf("%w: requested 10 >= reserve 5", ErrInsufficientLiquidity))
	require.Error(t, err)

	coder, ok := err.(interface{ ErrorCode() int })
	require.True(t, ok)
	assert.Equal(t, KindInsufficientLiquidity.Code(), coder.ErrorCode())

	data, ok := err.(interface{ ErrorData() any })
	require.True(t, ok)
	assert.Equal(t, map[string]any{"kind": KindInsufficientLiquidity}, data.ErrorData())
	assert.ErrorIs(t, err, ErrInsufficientLiquidity)
	assert.Equal(t, "InsufficientLiquidity: requested 10 >= reserve 5", err.Error())
}

func TestKindPolicy(t *testing.T) {
	codes := make(map[int]Kind)
	for _, k := range Kinds() {
		_, dup := codes[k.Code()]
		assert.False(t, dup, "duplicate code for %s", k)
		codes[k.Code()] = k
	}

	assert.True(t, KindNoPathFound.Local())
	assert.False(t, KindQuoteStale.Local())
	assert.True(t, KindApprovalFailed.CallerRetryable())
	assert.False(t, KindSettlementReverted.CallerRetryable())
	assert.Equal(t, -32000, Kind("Bogus").Code())
}
