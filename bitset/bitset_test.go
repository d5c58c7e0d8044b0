package bitset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBitSet_SetAndIsSet(t *testing.T) {
	bs := NewBitSet(100)
	assert.Len(t, bs, 2)

	for _, i := range []uint64{0, 63, 64, 99} {
		bs.Set(i)
	}
	for _, i := range []uint64{0, 63, 64, 99} {
		assert.True(t, bs.IsSet(i), "bit %d", i)
	}
	assert.False(t, bs.IsSet(1))
	assert.Equal(t, 4, bs.Count())
}

func TestBitSet_UnsetAndClear(t *testing.T) {
	bs := NewBitSet(100)
	bs.Set(10)
	bs.Set(20)
	bs.Set(70)

	bs.Unset(20)
	assert.True(t, bs.IsSet(10))
	assert.False(t, bs.IsSet(20))
	assert.True(t, bs.IsSet(70))

	bs.Unset(20) // unsetting twice is a no-op
	assert.Equal(t, 2, bs.Count())

	bs.Clear()
	assert.Equal(t, 0, bs.Count())
}

func TestBitSet_CloneAndSetFrom(t *testing.T) {
	bs := NewBitSet(128)
	bs.Set(5)

	clone := bs.Clone()
	clone.Set(100)
	assert.False(t, bs.IsSet(100), "clone must not share storage")
	assert.True(t, clone.IsSet(5))

	bs.SetFrom(clone)
	assert.True(t, bs.IsSet(100))

	assert.Panics(t, func() { bs.SetFrom(NewBitSet(1)) })
}
