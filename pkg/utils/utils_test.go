package utils

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncateString(t *testing.T) {
	tests := []struct {
		input    string
		length   int
		expected string
	}{
		{"hello world", 5, "he..."},
		{"short", 10, "short"},
		{"exact", 5, "exact"},
		{"", 5, ""},
		{"abc", 2, "ab"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, TruncateString(tt.input, tt.length))
	}
}

func TestShortenAddress(t *testing.T) {
	assert.Equal(t, "0xAb58...eC9B", ShortenAddress("0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"))
	assert.Equal(t, "0x1234", ShortenAddress("0x1234"))
}

func TestAddCommas(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"123", "123"},
		{"1234", "1,234"},
		{"1234567", "1,234,567"},
		{"1234.56", "1,234.56"},
		{"-1234", "-1,234"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, AddCommas(tt.input))
	}
}

func TestFormatUnits(t *testing.T) {
	oneAndHalfEth, _ := new(big.Int).SetString("1500000000000000000", 10)
	assert.Equal(t, "1.5000", FormatUnits(oneAndHalfEth, 18, 4))
	assert.Equal(t, "1,234.50", FormatUnits(big.NewInt(1234500000), 6, 2))
	assert.Equal(t, "0", FormatUnits(nil, 18, 4))
}

func TestParseUnits(t *testing.T) {
	got, err := ParseUnits("1.5", 18)
	require.NoError(t, err)
	assert.Equal(t, "1500000000000000000", got.String())

	got, err = ParseUnits("1,000", 6)
	require.NoError(t, err)
	assert.Equal(t, "1000000000", got.String())

	_, err = ParseUnits("0.0000001", 6)
	assert.Error(t, err)

	_, err = ParseUnits("-1", 6)
	assert.Error(t, err)

	_, err = ParseUnits("abc", 6)
	assert.Error(t, err)

	_, err = ParseUnits("", 6)
	assert.Error(t, err)
}

func TestWeiToGwei(t *testing.T) {
	assert.Equal(t, 20.0, WeiToGwei(big.NewInt(20000000000)))
	assert.Equal(t, 0.0, WeiToGwei(nil))
}
