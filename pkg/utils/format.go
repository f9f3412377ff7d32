package utils

import (
	"fmt"
	"math"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// FormatUSD formats an amount as a US dollar string with grouping,
// e.g. 1234567.89 → "$1,234,567.89".
func FormatUSD(amount float64) string {
	return money.NewFromFloat(amount, money.USD).Display()
}

// FormatUSDDecimal formats a decimal amount as a US dollar string.
// Rounds to cents before display.
func FormatUSDDecimal(amount decimal.Decimal) string {
	f, _ := amount.Round(2).Float64()
	return FormatUSD(f)
}

// FormatUSDCompact formats a dollar amount in compact notation,
// e.g. 1927345 → "$1.93M", 2500000000 → "$2.5B".
func FormatUSDCompact(amount float64) string {
	negative := amount < 0
	amount = math.Abs(amount)

	prefix := "$"
	if negative {
		prefix = "-$"
	}

	switch {
	case amount >= 1e12:
		return fmt.Sprintf("%s%sT", prefix, formatWithDecimals(amount/1e12))
	case amount >= 1e9:
		return fmt.Sprintf("%s%sB", prefix, formatWithDecimals(amount/1e9))
	case amount >= 1e6:
		return fmt.Sprintf("%s%sM", prefix, formatWithDecimals(amount/1e6))
	case amount >= 1e3:
		return fmt.Sprintf("%s%sK", prefix, formatWithDecimals(amount/1e3))
	default:
		return fmt.Sprintf("%s%.2f", prefix, amount)
	}
}

// FormatPct formats a percentage value with sign and suffix,
// e.g. 2.45 → "+2.45%", -1.23 → "-1.23%".
func FormatPct(pct float64) string {
	if pct >= 0 {
		return fmt.Sprintf("+%.2f%%", pct)
	}
	return fmt.Sprintf("%.2f%%", pct)
}

// FormatVolume formats share volume in human-readable form,
// e.g. 1500000 → "1.5M", 25000 → "25K".
func FormatVolume(volume int64) string {
	v := float64(volume)
	switch {
	case v >= 1e9:
		return fmt.Sprintf("%sB", formatWithDecimals(v/1e9))
	case v >= 1e6:
		return fmt.Sprintf("%sM", formatWithDecimals(v/1e6))
	case v >= 1e3:
		return fmt.Sprintf("%sK", formatWithDecimals(v/1e3))
	default:
		return fmt.Sprintf("%d", volume)
	}
}

// formatWithDecimals formats a number with up to 2 decimal places,
// removing trailing zeros.
func formatWithDecimals(n float64) string {
	s := fmt.Sprintf("%.2f", n)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	return s
}
