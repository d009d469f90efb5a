// internal/finmath/slippage.go
package finmath

import (
	"fmt"

	"github.com/jumpfinance/jumpdefi/internal/types"
)

// ValueAfterSlippage converts a human token value into raw units and takes
// slippagePercent off it: "10", "1", 6 -> "9900000".
func ValueAfterSlippage(value, slippagePercent string, decimals types.Decimals) (types.TokenAmount, error) {
	v, err := parseDecimal(value)
	if err != nil {
		return "", err
	}
	pct, err := parseDecimal(slippagePercent)
	if err != nil {
		return "", fmt.Errorf("slippage: %w", err)
	}
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		return "", fmt.Errorf("%w: slippage %s%% out of range", ErrInvalidAmount, pct)
	}

	native := v.Shift(int32(decimals))
	slip := native.Mul(pct).Div(hundred)
	after := native.Sub(slip)
	if after.IsNegative() {
		return "", fmt.Errorf("%w: negative value %s", ErrInvalidAmount, value)
	}
	return types.TokenAmount(after.StringFixed(0)), nil
}
