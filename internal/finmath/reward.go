// internal/finmath/reward.go
package finmath

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jumpfinance/jumpdefi/internal/types"
)

const (
	// rewardAPRDecimals is the scale the contract uses for apr when paying out.
	rewardAPRDecimals = 4
	// rewardRateDecimals scales stake_reward_rate.
	rewardRateDecimals = 16

	msPerDay = 24 * 60 * 60 * 1000
)

var daysPerYear = decimal.NewFromInt(365)

// EstimateReward estimates the reward paid out when a position of
// stakedAmount is unstaked from vault, in reward-token units with up to six
// decimals.
func EstimateReward(stakedAmount types.TokenAmount, vault types.VaultParameters) (string, error) {
	if stakedAmount == "" || stakedAmount.IsZero() {
		return "0", nil
	}

	staked, err := parseDecimal(string(stakedAmount))
	if err != nil {
		return "", err
	}
	apr, err := parseDecimal(string(vault.APR))
	if err != nil {
		return "", fmt.Errorf("vault apr: %w", err)
	}
	if vault.StakeRewardRate == "" {
		return "", fmt.Errorf("%w: vault %d has no stake_reward_rate", ErrInvalidAmount, vault.ID)
	}
	rate, err := parseDecimal(string(vault.StakeRewardRate))
	if err != nil {
		return "", fmt.Errorf("vault stake_reward_rate: %w", err)
	}

	// staked * apr/10^4 * days/365, kept in raw stake units
	num := staked.Mul(apr).Mul(decimal.NewFromInt(vault.LockedTimeMs))
	den := decimal.New(1, rewardAPRDecimals).Mul(decimal.NewFromInt(msPerDay)).Mul(daysPerYear)
	inStakeUnits := num.DivRound(den, 0)

	// integer division on the contract side
	raw, _ := inStakeUnits.Mul(rate).QuoRem(decimal.New(1, rewardRateDecimals), 0)

	out := raw.Shift(-int32(vault.RewardToken.Decimals)).StringFixed(6)
	out = strings.TrimRight(out, "0")
	out = strings.TrimSuffix(out, ".")
	if out == "" {
		out = "0"
	}
	return out, nil
}
