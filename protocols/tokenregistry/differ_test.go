package tokenregistry

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper function to create a new Token for testing.
func newTestToken(address string, symbol string, decimals uint8) Token {
	return Token{
		Address:  common.HexToAddress(address),
		Name:     symbol + " Token",
		Symbol:   symbol,
		Decimals: decimals,
	}
}

var (
	weth = newTestToken("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", "WETH", 18)
	usdc = newTestToken("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", "USDC", 6)
	dai  = newTestToken("0x6B175474E89094C44Da98b954EedeAC495271d0F", "DAI", 18)
)

func TestDiffer(t *testing.T) {
	t.Run("should identify additions correctly", func(t *testing.T) {
		diff := Differ([]Token{weth}, []Token{weth, usdc})

		require.Len(t, diff.Additions, 1, "Should have one addition")
		assert.Equal(t, usdc.Address, diff.Additions[0].Address)
		assert.Empty(t, diff.Deletions, "Should have no deletions")
		assert.False(t, diff.IsEmpty())
	})

	t.Run("should identify deletions correctly", func(t *testing.T) {
		diff := Differ([]Token{weth, usdc}, []Token{weth})

		assert.Empty(t, diff.Additions, "Should have no additions")
		require.Len(t, diff.Deletions, 1, "Should have one deletion")
		assert.Equal(t, usdc.Address, diff.Deletions[0])
	})

	t.Run("should ignore metadata changes on an observed token", func(t *testing.T) {
		renamed := weth
		renamed.Name = "Wrapped Ether"

		diff := Differ([]Token{weth}, []Token{renamed})
		assert.True(t, diff.IsEmpty(), "Tokens are immutable once observed")
	})

	t.Run("should handle mixed changes", func(t *testing.T) {
		diff := Differ([]Token{weth, usdc}, []Token{usdc, dai})

		require.Len(t, diff.Additions, 1)
		assert.Equal(t, dai.Address, diff.Additions[0].Address)
		require.Len(t, diff.Deletions, 1)
		assert.Equal(t, weth.Address, diff.Deletions[0])
	})

	t.Run("should handle nil inputs", func(t *testing.T) {
		assert.True(t, Differ(nil, nil).IsEmpty())
		assert.Len(t, Differ(nil, []Token{weth}).Additions, 1)
		assert.Len(t, Differ([]Token{weth}, nil).Deletions, 1)
	})
}
