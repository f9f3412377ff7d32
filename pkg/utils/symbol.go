// Package utils provides common utility functions for folio.
package utils

import "strings"

// Symbol separators. An equity share class is written with a dot
// ("BRK.A"); a crypto pair is written with a slash ("BTC/USD").
const (
	ClassSeparator = "."
	PairSeparator  = "/"
)

// NormalizeSymbol cleans raw user input into canonical form:
// trimmed, uppercased, with a leading "$" sigil removed.
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	s = strings.TrimPrefix(s, "$")
	return s
}

// HasClassSuffix reports whether an equity symbol carries a share-class
// separator, as in "BRK.A".
func HasClassSuffix(symbol string) bool {
	return strings.Contains(symbol, ClassSeparator)
}

// StripClassSuffix removes every class separator: "BRK.A" → "BRKA".
// Some providers only recognize the collapsed form.
func StripClassSuffix(symbol string) string {
	return strings.ReplaceAll(symbol, ClassSeparator, "")
}

// EscapePair percent-encodes the pair separator: "BTC/USD" → "BTC%2FUSD".
// For providers that accept the pair inside a URL path or query segment.
func EscapePair(symbol string) string {
	return strings.ReplaceAll(symbol, PairSeparator, "%2F")
}

// StripPair removes the pair separator: "BTC/USD" → "BTCUSD".
// For providers that use the collapsed pair form.
func StripPair(symbol string) string {
	return strings.ReplaceAll(symbol, PairSeparator, "")
}

// SplitPair splits a crypto pair into base and quote: "BTC/USD" → ("BTC",
// "USD"). A symbol without a separator comes back as base with empty quote.
func SplitPair(symbol string) (base, quote string) {
	base, quote, _ = strings.Cut(symbol, PairSeparator)
	return base, quote
}
