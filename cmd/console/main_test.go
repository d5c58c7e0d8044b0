package main

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUnits(t *testing.T) {
	tests := []struct {
		in       string
		decimals uint8
		want     string
		wantErr  bool
	}{
		{"1.5", 18, "1500000000000000000", false},
		{"0.000001", 6, "1", false},
		{"100", 0, "100", false},
		{"#12345", 18, "12345", false},
		{"0.0000001", 6, "", true},
		{"abc", 6, "", true},
		{"#1.5", 6, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseUnits(tt.in, tt.decimals)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestFormatUnits(t *testing.T) {
	assert.Equal(t, "0.09938", formatUnits("99380", 6))
	assert.Equal(t, "1.5", formatUnits("1500000000000000000", 18))
	assert.Equal(t, "n/a", formatUnits("n/a", 6))
	assert.Equal(t, "8719", subAmounts("99380", "90661"))
}

func TestShortPath(t *testing.T) {
	a := common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	b := common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	assert.Equal(t, "0xC02a..6Cc2 -> 0xA0b8..eB48", shortPath([]common.Address{a, b}))
}
