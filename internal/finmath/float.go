// internal/finmath/float.go
package finmath

import (
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// exactDecimal expands a finite float64 into the decimal it denotes exactly.
// decimal.NewFromFloat picks the shortest round-tripping representation,
// which moves rounding ties; display code needs the true binary value.
func exactDecimal(f float64) decimal.Decimal {
	if f == 0 {
		return decimal.Zero
	}
	frac, exp := math.Frexp(f)
	mant := big.NewInt(int64(frac * (1 << 53)))
	exp -= 53

	if exp >= 0 {
		return decimal.NewFromBigInt(mant.Lsh(mant, uint(exp)), 0)
	}
	// m * 2^-k == m * 5^k * 10^-k
	five := new(big.Int).Exp(big.NewInt(5), big.NewInt(int64(-exp)), nil)
	return decimal.NewFromBigInt(mant.Mul(mant, five), int32(exp))
}
