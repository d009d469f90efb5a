// internal/finmath/conversion.go
package finmath

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jumpfinance/jumpdefi/internal/types"
)

// ErrInvalidAmount is returned for amounts that are not plain decimal
// digit strings. Callers validate on-chain data before conversion.
var ErrInvalidAmount = errors.New("finmath: invalid amount")

// ToReadable converts a raw on-chain amount into its human-readable decimal
// form: "1500000" with 6 decimals becomes "1.5". Trailing zeros and a
// trailing decimal point are stripped. An empty amount reads as "0".
func ToReadable(amount types.TokenAmount, decimals types.Decimals) (string, error) {
	s := string(amount)
	if s == "" {
		s = "0"
	}
	if !isDigits(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if decimals == 0 {
		return s, nil
	}

	d := int(decimals)
	whole, frac := "0", s
	if len(s) > d {
		whole, frac = s[:len(s)-d], s[len(s)-d:]
	} else {
		frac = strings.Repeat("0", d-len(s)) + s
	}

	whole = strings.TrimLeft(whole, "0")
	if whole == "" {
		whole = "0"
	}

	out := strings.TrimRight(whole+"."+frac, "0")
	return strings.TrimSuffix(out, "."), nil
}

// ToRaw converts a human-readable decimal string into raw on-chain units.
// Fraction digits beyond decimals are truncated, missing ones padded with
// zeros. The result never carries leading zeros and is never empty.
func ToRaw(amount string, decimals types.Decimals) (types.TokenAmount, error) {
	whole, frac, _ := strings.Cut(amount, ".")
	if (whole == "" && frac == "") || !isDigitsOrEmpty(whole) || !isDigitsOrEmpty(frac) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}

	d := int(decimals)
	if len(frac) > d {
		frac = frac[:d]
	} else {
		frac += strings.Repeat("0", d-len(frac))
	}

	raw := strings.TrimLeft(whole+frac, "0")
	if raw == "" {
		raw = "0"
	}
	return types.TokenAmount(raw), nil
}

// DecimalsFactor returns 10^decimals. A zero (unspecified) decimals value
// falls back to an exponent of 1, i.e. a factor of 10, not 1.
func DecimalsFactor(decimals types.Decimals) decimal.Decimal {
	exp := int32(decimals)
	if exp == 0 {
		exp = 1
	}
	return decimal.New(1, exp)
}

// ToStandardUnits divides value by 10^decimals without rounding.
func ToStandardUnits(value decimal.Decimal, decimals types.Decimals) decimal.Decimal {
	return value.Shift(-int32(decimals))
}

// FormatWithFactor divides value by factor and renders two decimal places.
func FormatWithFactor(value string, factor decimal.Decimal) (string, error) {
	v, err := parseDecimal(value)
	if err != nil {
		return "", err
	}
	if factor.IsZero() {
		return "", fmt.Errorf("%w: zero factor", ErrInvalidAmount)
	}
	return v.Div(factor).StringFixed(2), nil
}

// ParseWithFactor multiplies a human value by factor.
func ParseWithFactor(value string, factor decimal.Decimal) (decimal.Decimal, error) {
	v, err := parseDecimal(value)
	if err != nil {
		return decimal.Zero, err
	}
	return v.Mul(factor), nil
}

// ScientificToPlain expands exponent notation ("1.5e-7", "2E+3") into plain
// decimal digits. Plain input is returned normalised.
func ScientificToPlain(s string) (string, error) {
	d, err := parseDecimal(s)
	if err != nil {
		return "", err
	}
	return d.String(), nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q: %w", ErrInvalidAmount, s, err)
	}
	return d, nil
}

func isDigits(s string) bool {
	return s != "" && isDigitsOrEmpty(s)
}

func isDigitsOrEmpty(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
