// internal/finmath/share.go
package finmath

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jumpfinance/jumpdefi/internal/types"
)

// LPTokenDecimals is the fixed precision of pool share tokens.
const LPTokenDecimals types.Decimals = 24

const zeroShare = "0.00"

var hundred = decimal.NewFromInt(100)

// SharePercentage returns numerator/denominator*100 truncated toward zero to
// two places. Non-positive or unparsable inputs yield "0.00". Values above
// 100 are not clamped.
func SharePercentage(numerator, denominator string) string {
	den, err := decimal.NewFromString(denominator)
	if err != nil || !den.IsPositive() {
		return zeroShare
	}
	num, err := decimal.NewFromString(numerator)
	if err != nil || !num.IsPositive() {
		return zeroShare
	}

	// QuoRem truncates, so a share is never shown larger than it is.
	q, _ := num.Mul(hundred).QuoRem(den, 2)
	return q.StringFixed(2)
}

// Percent returns numerator/denominator*100. An empty or zero denominator
// gives zero.
func Percent(numerator, denominator string) (decimal.Decimal, error) {
	if denominator == "" {
		return decimal.Zero, nil
	}
	den, err := parseDecimal(denominator)
	if err != nil {
		return decimal.Zero, err
	}
	if den.IsZero() {
		return decimal.Zero, nil
	}
	num, err := parseDecimal(numerator)
	if err != nil {
		return decimal.Zero, err
	}
	return num.Div(den).Mul(hundred), nil
}

// FairShare returns shareOf*contribution/total rounded to an integer. It is
// used to size the second leg of a liquidity deposit.
func FairShare(shareOf, contribution, total string) (string, error) {
	s, err := parseDecimal(shareOf)
	if err != nil {
		return "", err
	}
	c, err := parseDecimal(contribution)
	if err != nil {
		return "", err
	}
	t, err := parseDecimal(total)
	if err != nil {
		return "", err
	}
	if t.IsZero() {
		return "", fmt.Errorf("%w: zero total contribution", ErrInvalidAmount)
	}
	return s.Mul(c).DivRound(t, 0).String(), nil
}

// LPShareReadable renders an LP token amount with two places, keeping a
// visible "0.01" for dust instead of "0".
func LPShareReadable(lp types.TokenAmount, decimals types.Decimals) (string, error) {
	readable, err := ToReadable(lp, decimals)
	if err != nil {
		return "", err
	}
	return ToPrecision(readable, 2, false, true), nil
}
