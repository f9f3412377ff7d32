package utils

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestFormatUSD(t *testing.T) {
	tests := []struct {
		input    float64
		expected string
	}{
		{1234567.89, "$1,234,567.89"},
		{0.5, "$0.50"},
		{0, "$0.00"},
		{-42.10, "-$42.10"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := FormatUSD(tt.input)
			if result != tt.expected {
				t.Errorf("FormatUSD(%f) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestFormatUSDDecimal(t *testing.T) {
	d := decimal.RequireFromString("1025.255")
	if got := FormatUSDDecimal(d); got != "$1,025.26" {
		t.Errorf("FormatUSDDecimal = %q, want $1,025.26", got)
	}
}

func TestFormatUSDCompact(t *testing.T) {
	tests := []struct {
		input    float64
		expected string
	}{
		{1927345, "$1.93M"},
		{2500000000, "$2.5B"},
		{1.5e12, "$1.5T"},
		{25000, "$25K"},
		{999, "$999.00"},
		{-1500000, "-$1.5M"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := FormatUSDCompact(tt.input)
			if result != tt.expected {
				t.Errorf("FormatUSDCompact(%f) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestFormatPct(t *testing.T) {
	if got := FormatPct(2.456); got != "+2.46%" {
		t.Errorf("FormatPct(2.456) = %q, want +2.46%%", got)
	}
	if got := FormatPct(-1.23); got != "-1.23%" {
		t.Errorf("FormatPct(-1.23) = %q, want -1.23%%", got)
	}
	if got := FormatPct(0); got != "+0.00%" {
		t.Errorf("FormatPct(0) = %q, want +0.00%%", got)
	}
}

func TestFormatVolume(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{1500000, "1.5M"},
		{2500000000, "2.5B"},
		{25000, "25K"},
		{500, "500"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := FormatVolume(tt.input)
			if result != tt.expected {
				t.Errorf("FormatVolume(%d) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}
