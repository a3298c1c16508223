// Package helpers provides common utility functions used across the codebase.
package helpers

import (
	"fmt"
	"math/big"
	"strings"
)

// LamportDecimals is the precision of the native currency.
const LamportDecimals = 9

// FormatAmount formats an amount in smallest units as a decimal string.
// For example, FormatAmount(1500000, 6) returns "1.5".
func FormatAmount(amount uint64, decimals uint8) string {
	if decimals == 0 {
		return fmt.Sprintf("%d", amount)
	}

	amountBig := new(big.Int).SetUint64(amount)
	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)

	whole := new(big.Int).Div(amountBig, divisor)
	frac := new(big.Int).Mod(amountBig, divisor)

	if frac.Sign() == 0 {
		return whole.String()
	}

	fracStr := strings.TrimRight(fmt.Sprintf("%0*d", int(decimals), frac), "0")
	return fmt.Sprintf("%s.%s", whole.String(), fracStr)
}

// ParseAmount parses a decimal string to smallest units. Digits beyond the
// precision are truncated.
func ParseAmount(s string, decimals uint8) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty amount string")
	}

	wholeStr, fracStr, _ := strings.Cut(s, ".")
	if wholeStr == "" {
		return 0, fmt.Errorf("invalid amount: %s", s)
	}
	for _, c := range wholeStr + fracStr {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("invalid character in amount: %c", c)
		}
	}

	for len(fracStr) < int(decimals) {
		fracStr += "0"
	}
	if len(fracStr) > int(decimals) {
		fracStr = fracStr[:decimals]
	}

	amount, ok := new(big.Int).SetString(wholeStr+fracStr, 10)
	if !ok {
		return 0, fmt.Errorf("invalid amount: %s", s)
	}
	if !amount.IsUint64() {
		return 0, fmt.Errorf("amount overflow: %s", s)
	}
	return amount.Uint64(), nil
}

// LamportsToSOL formats lamports as SOL.
func LamportsToSOL(lamports uint64) string {
	return FormatAmount(lamports, LamportDecimals)
}

// SOLToLamports parses a SOL amount into lamports.
func SOLToLamports(sol string) (uint64, error) {
	return ParseAmount(sol, LamportDecimals)
}
