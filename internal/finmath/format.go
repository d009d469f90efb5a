// internal/finmath/format.go
package finmath

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

var suffixes = []string{
	"", "K", "M", "B", "T", "Q", "Qu", "S", "O", "N",
	"D", "UD", "DD", "TD", "QD", "QuD", "SD", "OD", "ND",
}

var (
	thousand  = decimal.NewFromInt(1000)
	minVisual = decimal.New(1, -2)
)

// FormatNumberWithSuffix renders num with two decimals and a magnitude
// suffix: 1234.5 -> "1.23K", 2.5e9 -> "2.50B". Values below 0.01 render as
// "<0.01", zero and non-finite values as "0".
func FormatNumberWithSuffix(num float64) string {
	if math.IsNaN(num) || math.IsInf(num, 0) || num == 0 {
		return "0"
	}
	if num < 0.01 {
		return "<0.01"
	}

	last := len(suffixes) - 1
	tier := 0
	for tier < last && num >= math.Pow10(3*(tier+1)) {
		tier++
	}

	for {
		scaled := num
		if tier > 0 {
			scaled = num / math.Pow10(3*tier)
		}
		fixed := exactDecimal(scaled).Round(2)
		// 999.999 would print as "1000.00"; move it up a tier instead.
		if tier < last && fixed.GreaterThanOrEqual(thousand) {
			tier++
			continue
		}
		return fixed.StringFixed(2) + suffixes[tier]
	}
}

// FormatPercentage renders a percentage for display: "-%" when the value is
// missing, "0%" for non-positive values, "<0.01%" for dust.
func FormatPercentage(value decimal.NullDecimal) string {
	if !value.Valid {
		return "-%"
	}
	v := value.Decimal
	switch {
	case !v.IsPositive():
		return "0%"
	case v.LessThan(minVisual):
		return "<0.01%"
	default:
		return v.StringFixed(2) + "%"
	}
}

// FormatPercentageString is FormatPercentage for raw strings. An empty
// string is treated as missing.
func FormatPercentageString(s string) (string, error) {
	if strings.TrimSpace(s) == "" {
		return FormatPercentage(decimal.NullDecimal{}), nil
	}
	d, err := parseDecimal(s)
	if err != nil {
		return "", err
	}
	return FormatPercentage(decimal.NewNullDecimal(d)), nil
}

// FormatWithCommas inserts thousands separators into the integer part.
func FormatWithCommas(value string) string {
	sign := ""
	if strings.HasPrefix(value, "-") {
		sign, value = "-", value[1:]
	}
	whole, frac, hasFrac := strings.Cut(value, ".")

	var b strings.Builder
	for i := 0; i < len(whole); i++ {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteByte(whole[i])
	}

	out := sign + b.String()
	if hasFrac {
		out += "." + frac
	}
	return out
}

// ToPrecision cuts number to precision fractional digits without rounding.
// With atLeastOne set, a result that would read as zero has its last zero
// digit turned into a one so dust stays visible ("0.001" -> "0.01").
func ToPrecision(number string, precision int, withCommas, atLeastOne bool) string {
	if number == "" {
		return "0"
	}
	whole, frac, _ := strings.Cut(number, ".")
	if len(frac) > precision {
		frac = frac[:precision]
	}
	if withCommas {
		whole = FormatWithCommas(whole)
	}

	str := strings.TrimSuffix(whole+"."+frac, ".")
	if atLeastOne && len(str) > 1 && isZeroString(str) {
		n := strings.LastIndex(str, "0")
		str = str[:n] + "1" + str[n+1:]
	}
	return str
}

func isZeroString(s string) bool {
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
	return err == nil && d.IsZero()
}
