// Package core holds the ledger and settlement kernel: exact-money split
// calculation, deterministic rounding, balance aggregation, and settle-plan
// generation. Everything here is pure and side-effect free; all arithmetic is
// integer minor units.
package core

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ParseDecimalToMinor converts a decimal string to minor units with half-up
// rounding on the third decimal place.
//
// It accepts both dot (12.34) and comma (12,34) separators. The result is
// always positive. Returns ErrInvalidAmount for bad formats, negative values,
// or zero amounts.
//
// Examples:
//
//	ParseDecimalToMinor("12.34") -> 1234, nil
//	ParseDecimalToMinor("12,34") -> 1234, nil
//	ParseDecimalToMinor("12.344") -> 1234, nil (rounds down)
//	ParseDecimalToMinor("12.345") -> 1235, nil (rounds up)
func ParseDecimalToMinor(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		// Only positive values allowed
		return 0, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	for _, r := range fracPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	// Prevent overflow when multiplying by 100
	const maxSafeInt64 = (1<<63 - 1) / 100
	if iv > maxSafeInt64 {
		return 0, ErrInvalidAmount
	}
	// Take first two fractional digits; half-up rounding on the third
	var fracMinor int64 = 0
	if len(fracPart) > 0 {
		d1 := int64(fracPart[0] - '0')
		fracMinor = d1 * 10
		if len(fracPart) > 1 {
			d2 := int64(fracPart[1] - '0')
			fracMinor += d2
			if len(fracPart) > 2 {
				if fracPart[2] >= '5' {
					fracMinor++
				}
			}
		}
	}
	minor := iv*100 + fracMinor
	if minor <= 0 {
		return 0, ErrInvalidAmount
	}
	return minor, nil
}

// FormatMinor renders minor units as a decimal string ("12.34", "-0.05").
// Display only; calculations stay in minor units.
func FormatMinor(minor int64) string {
	neg := minor < 0
	if neg {
		minor = -minor
	}
	s := fmt.Sprintf("%d.%02d", minor/100, minor%100)
	if neg {
		return "-" + s
	}
	return s
}
