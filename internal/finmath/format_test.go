package finmath

import (
	"math"
	"sort"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatNumberWithSuffix(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{math.NaN(), "0"},
		{math.Inf(1), "0"},
		{math.Inf(-1), "0"},
		{0.005, "<0.01"},
		{-5, "<0.01"},
		{0.01, "0.01"},
		{1, "1.00"},
		{123.456, "123.46"},
		{999.99, "999.99"},
		{999.999, "1.00K"},
		{1000, "1.00K"},
		{1234.5, "1.23K"},
		{1.005, "1.00"},
		{1.5e6, "1.50M"},
		{2.5e9, "2.50B"},
		{7e12, "7.00T"},
		{999999.999, "1.00M"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatNumberWithSuffix(tt.in), "input %v", tt.in)
	}
}

func TestFormatNumberWithSuffixClampsLastTier(t *testing.T) {
	got := FormatNumberWithSuffix(1e60)
	assert.Equal(t, "1000000.00ND", got)
}

func TestFormatNumberWithSuffixNeverShowsThousandInTier(t *testing.T) {
	for _, v := range []float64{999.995, 999999.995, 999.9999e6, 1e3 - 1e-9} {
		got := FormatNumberWithSuffix(v)
		head := strings.TrimRight(got, "KMBTQuSOND")
		d, err := decimal.NewFromString(head)
		require.NoError(t, err, got)
		assert.True(t, d.LessThan(thousand), "%v rendered as %s", v, got)
	}
}

// renderedValue reads a FormatNumberWithSuffix result back into a number.
func renderedValue(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	if s == "<0.01" {
		return decimal.New(5, -3)
	}
	head := strings.TrimRight(s, "KMBTQuSOND")
	tier := -1
	for i, suffix := range suffixes {
		if suffix == s[len(head):] {
			tier = i
		}
	}
	require.GreaterOrEqual(t, tier, 0, "unknown suffix in %q", s)
	d, err := decimal.NewFromString(head)
	require.NoError(t, err, s)
	return d.Shift(int32(3 * tier))
}

func TestFormatNumberWithSuffixIsMonotonic(t *testing.T) {
	var values []float64
	for v := 0.1; v < 1e69; v *= math.Pow(10, 1.0/500) {
		values = append(values, v)
	}
	for k := 1; k < len(suffixes); k++ {
		boundary := math.Pow10(3 * k)
		promote := 999.995 * math.Pow10(3*(k-1))
		for _, b := range []float64{boundary, promote} {
			values = append(values, math.Nextafter(b, 0), b, math.Nextafter(b, math.Inf(1)))
		}
	}
	sort.Float64s(values)

	prev := decimal.Zero
	for _, v := range values {
		got := FormatNumberWithSuffix(v)
		cur := renderedValue(t, got)
		if cur.LessThan(prev) {
			t.Fatalf("%v rendered as %s, below the previous %s", v, got, prev)
		}
		prev = cur
	}
}

func TestFormatPercentage(t *testing.T) {
	assert.Equal(t, "-%", FormatPercentage(decimal.NullDecimal{}))
	assert.Equal(t, "0%", FormatPercentage(decimal.NewNullDecimal(decimal.Zero)))
	assert.Equal(t, "0%", FormatPercentage(decimal.NewNullDecimal(decimal.NewFromInt(-3))))
	assert.Equal(t, "<0.01%", FormatPercentage(decimal.NewNullDecimal(decimal.RequireFromString("0.004"))))
	assert.Equal(t, "12.35%", FormatPercentage(decimal.NewNullDecimal(decimal.RequireFromString("12.345"))))

	s, err := FormatPercentageString("")
	require.NoError(t, err)
	assert.Equal(t, "-%", s)

	s, err = FormatPercentageString("0.5")
	require.NoError(t, err)
	assert.Equal(t, "0.50%", s)

	_, err = FormatPercentageString("abc")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestFormatWithCommas(t *testing.T) {
	tests := map[string]string{
		"0":           "0",
		"999":         "999",
		"1000":        "1,000",
		"1234567":     "1,234,567",
		"1234567.891": "1,234,567.891",
		"-1234.5":     "-1,234.5",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatWithCommas(in), in)
	}
}

func TestToPrecision(t *testing.T) {
	tests := []struct {
		in         string
		precision  int
		withCommas bool
		atLeastOne bool
		want       string
	}{
		{"1.23456", 2, false, false, "1.23"},
		{"1.239", 2, false, false, "1.23"},
		{"12", 2, false, false, "12"},
		{"0.001", 2, false, false, "0.00"},
		{"0.001", 2, false, true, "0.01"},
		{"0", 2, false, true, "0"},
		{"", 2, false, true, "0"},
		{"1234567.891", 1, true, false, "1,234,567.8"},
		{"5.5", 0, false, false, "5"},
	}
	for _, tt := range tests {
		got := ToPrecision(tt.in, tt.precision, tt.withCommas, tt.atLeastOne)
		assert.Equal(t, tt.want, got, "ToPrecision(%q, %d)", tt.in, tt.precision)
	}
}

func TestExactDecimal(t *testing.T) {
	assert.Equal(t, "0.5", exactDecimal(0.5).String())
	assert.Equal(t, "1024", exactDecimal(1024).String())
	assert.Equal(t, "0.1000000000000000055511151231257827021181583404541015625", exactDecimal(0.1).String())
	assert.Equal(t, "-2.25", exactDecimal(-2.25).String())

	// 1.005 is stored just below the tie
	assert.Equal(t, "1.00", exactDecimal(1.005).Round(2).StringFixed(2))
	assert.Equal(t, "1.01", decimal.NewFromFloat(1.005).Round(2).StringFixed(2))
}
