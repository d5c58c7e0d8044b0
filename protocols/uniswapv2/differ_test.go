package uniswapv2

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func poolID(n int64) common.Address {
	return common.BigToAddress(big.NewInt(n))
}

func TestDiffer(t *testing.T) {
	// --- Base Data for Tests ---
	pool1Old := Pool{ID: poolID(1), Reserve0: big.NewInt(1000), Reserve1: big.NewInt(2000), FeeBps: 30}
	pool2Old := Pool{ID: poolID(2), Reserve0: big.NewInt(3000), Reserve1: big.NewInt(4000), FeeBps: 30}
	pool3Old := Pool{ID: poolID(3), Reserve0: big.NewInt(5000), Reserve1: big.NewInt(6000), FeeBps: 30}

	t.Run("should identify additions correctly", func(t *testing.T) {
		diff := Differ([]Pool{pool1Old}, []Pool{pool1Old, pool2Old})

		require.Len(t, diff.Additions, 1)
		assert.Equal(t, pool2Old.ID, diff.Additions[0].ID)
		assert.Empty(t, diff.Updates)
		assert.Empty(t, diff.Deletions)
	})

	t.Run("should identify deletions correctly", func(t *testing.T) {
		diff := Differ([]Pool{pool1Old, pool2Old}, []Pool{pool1Old})

		assert.Empty(t, diff.Additions)
		assert.Empty(t, diff.Updates)
		require.Len(t, diff.Deletions, 1)
		assert.Equal(t, pool2Old.ID, diff.Deletions[0])
	})

	t.Run("should identify reserve and fee updates", func(t *testing.T) {
		reserveMoved := Pool{ID: poolID(1), Reserve0: big.NewInt(1001), Reserve1: big.NewInt(2000), FeeBps: 30}
		feeMoved := Pool{ID: poolID(2), Reserve0: big.NewInt(3000), Reserve1: big.NewInt(4000), FeeBps: 25}

		diff := Differ([]Pool{pool1Old, pool2Old}, []Pool{reserveMoved, feeMoved})

		assert.Empty(t, diff.Additions)
		require.Len(t, diff.Updates, 2)
		assert.Equal(t, reserveMoved.ID, diff.Updates[0].ID)
		assert.Equal(t, feeMoved.ID, diff.Updates[1].ID)
		assert.Empty(t, diff.Deletions)
	})

	t.Run("should handle a mix of additions, updates, and deletions", func(t *testing.T) {
		pool1Updated := Pool{ID: poolID(1), Reserve0: big.NewInt(1001), Reserve1: big.NewInt(2000), FeeBps: 30}
		pool4New := Pool{ID: poolID(4), Reserve0: big.NewInt(7000), Reserve1: big.NewInt(8000), FeeBps: 30}

		diff := Differ([]Pool{pool1Old, pool2Old, pool3Old}, []Pool{pool1Updated, pool2Old, pool4New})

		require.Len(t, diff.Additions, 1)
		assert.Equal(t, pool4New.ID, diff.Additions[0].ID)
		require.Len(t, diff.Updates, 1)
		assert.Equal(t, pool1Updated.ID, diff.Updates[0].ID)
		require.Len(t, diff.Deletions, 1)
		assert.Equal(t, pool3Old.ID, diff.Deletions[0])
	})

	t.Run("should produce an empty diff when there are no changes", func(t *testing.T) {
		same := Pool{ID: poolID(1), Reserve0: big.NewInt(1000), Reserve1: big.NewInt(2000), FeeBps: 30}
		diff := Differ([]Pool{pool1Old}, []Pool{same})
		assert.True(t, diff.IsEmpty())
	})

	t.Run("should handle empty inputs", func(t *testing.T) {
		assert.True(t, Differ(nil, nil).IsEmpty())
		assert.Len(t, Differ(nil, []Pool{pool1Old}).Additions, 1)
		assert.Len(t, Differ([]Pool{pool1Old}, nil).Deletions, 1)
	})
}
