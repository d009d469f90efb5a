// internal/finmath/apr.go
package finmath

import (
	"github.com/shopspring/decimal"

	"github.com/jumpfinance/jumpdefi/internal/types"
)

// Unavailable is shown instead of a rate when inputs are missing.
const Unavailable = "-"

// aprDecimals is the fixed scale of the vault apr field. It is a percentage,
// not a token amount, so the token decimals never apply to it.
const aprDecimals = 2

const (
	DefaultWrapperToken    = "xjumptoken.jumpfinance.near"
	DefaultUnderlyingToken = "jumptoken.jumpfinance.near"
)

// DefaultWrapperRate approximates how many underlying tokens one wrapper
// token redeems for.
var DefaultWrapperRate = decimal.RequireFromString("2.57")

// LiquidStaking describes a wrapper token that is missing from the price
// feed and is priced through its underlying token instead.
type LiquidStaking struct {
	WrapperToken    string
	UnderlyingToken string
	Rate            decimal.Decimal
}

// DefaultLiquidStaking returns the xJUMP/JUMP settings.
func DefaultLiquidStaking() LiquidStaking {
	return LiquidStaking{
		WrapperToken:    DefaultWrapperToken,
		UnderlyingToken: DefaultUnderlyingToken,
		Rate:            DefaultWrapperRate,
	}
}

// APRCalculator derives the effective yearly rate of a vault from its raw
// apr field and live token prices. It holds no mutable state.
type APRCalculator struct {
	staking LiquidStaking
}

// NewAPRCalculator creates a calculator for the given wrapper settings.
func NewAPRCalculator(staking LiquidStaking) *APRCalculator {
	return &APRCalculator{staking: staking}
}

var defaultCalculator = NewAPRCalculator(DefaultLiquidStaking())

// CalculateAPR is APRCalculator.Calculate with the default wrapper settings.
func CalculateAPR(prices types.PriceTable, vault types.VaultParameters) string {
	return defaultCalculator.Calculate(prices, vault)
}

// Calculate returns the rate as "28.40%", or Unavailable.
func (c *APRCalculator) Calculate(prices types.PriceTable, vault types.VaultParameters) string {
	rate, ok := c.Rate(prices, vault)
	if !ok {
		return Unavailable
	}
	return rate.StringFixed(2) + "%"
}

// Rate returns the unformatted rate. ok is false when a price is missing or
// a vault field cannot be used.
func (c *APRCalculator) Rate(prices types.PriceTable, vault types.VaultParameters) (decimal.Decimal, bool) {
	rewardPrice, ok := c.rewardPrice(prices, vault)
	if !ok {
		return decimal.Zero, false
	}
	stakePrice, ok := c.stakePrice(prices, vault)
	if !ok {
		return decimal.Zero, false
	}
	if vault.LockedTimeMs < 0 {
		return decimal.Zero, false
	}

	maxFill, err := decimal.NewFromString(string(vault.MaxFillAmount))
	if err != nil {
		return decimal.Zero, false
	}
	apr, err := decimal.NewFromString(string(vault.APR))
	if err != nil {
		return decimal.Zero, false
	}

	maxFillHuman := ToStandardUnits(maxFill, vault.StakeToken.Decimals)
	aprHuman := apr.Shift(-aprDecimals)
	// days/365 stays a double; the second decimal of published rates
	// depends on it.
	period := decimal.NewFromFloat(float64(vault.LockedDays()) / 365)

	stakeValue := stakePrice.Mul(maxFillHuman)
	if !stakeValue.IsPositive() {
		return decimal.Zero, false
	}
	rewardValue := rewardPrice.
		Mul(maxFillHuman).
		Mul(aprHuman).
		Mul(period)

	return rewardValue.Div(stakeValue), true
}

func (c *APRCalculator) rewardPrice(prices types.PriceTable, vault types.VaultParameters) (decimal.Decimal, bool) {
	p, ok := prices.Lookup(vault.RewardToken.ID)
	if !ok {
		return decimal.Zero, false
	}
	d, err := p.Decimal()
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// stakePrice walks the table like Lookup, but also accepts the underlying
// token's row when the stake token is the liquid-staking wrapper.
func (c *APRCalculator) stakePrice(prices types.PriceTable, vault types.VaultParameters) (decimal.Decimal, bool) {
	stakeID := vault.StakeToken.ID
	wrapped := c.staking.WrapperToken != "" && stakeID == c.staking.WrapperToken

	var (
		match  types.TokenPrice
		scaled bool
		found  bool
	)
	for _, p := range prices {
		switch {
		case wrapped && p.Contract == c.staking.UnderlyingToken:
			match, scaled, found = p, true, true
		case p.Contract == stakeID:
			match, scaled, found = p, false, true
		}
	}
	if !found {
		return decimal.Zero, false
	}

	d, err := match.Decimal()
	if err != nil {
		return decimal.Zero, false
	}
	if scaled {
		d = c.staking.Rate.Mul(d)
	}
	return d, true
}

// FillPercentage is how much of the vault capacity is taken, e.g. "12.37".
func FillPercentage(vault types.VaultParameters) string {
	return SharePercentage(string(vault.FilledAmount), string(vault.MaxFillAmount))
}

// MissingPrices lists the token ids of vault that have no usable price in
// prices. It is empty whenever Rate can find both prices.
func (c *APRCalculator) MissingPrices(prices types.PriceTable, vault types.VaultParameters) []string {
	var missing []string
	if _, ok := c.stakePrice(prices, vault); !ok {
		missing = append(missing, vault.StakeToken.ID)
	}
	if _, ok := c.rewardPrice(prices, vault); !ok {
		missing = append(missing, vault.RewardToken.ID)
	}
	return missing
}
