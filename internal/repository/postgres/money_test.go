package postgres

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumericStringToDecimal_Success(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"whole", "100", "100.00"},
		{"with cents", "100.50", "100.50"},
		{"cents only", "0.99", "0.99"},
		{"zero", "0.00", "0.00"},
		{"with whitespace", "  50.25  ", "50.25"},
		{"negative ledger amount", "-120.00", "-120.00"},
		{"large amount", "9999999999.99", "9999999999.99"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := numericStringToDecimal(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result.StringFixed(2))
		})
	}
}

func TestNumericStringToDecimal_Errors(t *testing.T) {
	for _, input := range []string{"", "abc", "$100.00", "10.5.5"} {
		t.Run(input, func(t *testing.T) {
			_, err := numericStringToDecimal(input)
			assert.Error(t, err)
		})
	}
}

func TestDecimalToNumericString(t *testing.T) {
	tests := []struct {
		input    decimal.Decimal
		expected string
	}{
		{decimal.RequireFromString("120"), "120.00"},
		{decimal.RequireFromString("0.1"), "0.10"},
		{decimal.RequireFromString("-15.5"), "-15.50"},
		{decimal.RequireFromString("0.005"), "0.01"},
		{decimal.Zero, "0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, decimalToNumericString(tt.input))
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, isUniqueViolation(nil, ""))
	assert.False(t, isUniqueViolation(assert.AnError, ""))
}
