// internal/app/apr.go
package app

import (
	"fmt"
	"time"

	"github.com/jumpfinance/jumpdefi/internal/finmath"
	"github.com/jumpfinance/jumpdefi/internal/types"
)

// APRInput describes a vault by hand, for the apr command.
type APRInput struct {
	StakeToken  types.TokenRef
	RewardToken types.TokenRef
	APR         string // raw contract value, scaled by 100
	MaxFill     string // stake units, raw unless Readable
	Filled      string // stake units, optional
	Lock        time.Duration
	StakePrice  string // plain or exponent notation
	RewardPrice string

	// Staked and RewardRate enable the reward estimate. RewardRate is
	// always raw.
	Staked     string
	RewardRate string

	// Readable means MaxFill, Filled and Staked are given in whole stake
	// tokens ("2500000", "42913.95") rather than raw units.
	Readable bool
}

// CalculateAPR computes the APR of a hand-described vault without any
// network access. The result is a list of label/value pairs for display.
func CalculateAPR(staking finmath.LiquidStaking, in APRInput) ([][2]string, error) {
	if in.Readable {
		var err error
		if in.MaxFill, err = rawAmount("max fill", in.MaxFill, in.StakeToken.Decimals); err != nil {
			return nil, err
		}
		if in.Filled, err = rawAmount("filled", in.Filled, in.StakeToken.Decimals); err != nil {
			return nil, err
		}
		if in.Staked, err = rawAmount("staked", in.Staked, in.StakeToken.Decimals); err != nil {
			return nil, err
		}
	}

	v := types.VaultParameters{
		StakeToken:      in.StakeToken,
		RewardToken:     in.RewardToken,
		APR:             types.TokenAmount(in.APR),
		MaxFillAmount:   types.TokenAmount(in.MaxFill),
		FilledAmount:    types.TokenAmount(in.Filled),
		StakeRewardRate: types.TokenAmount(in.RewardRate),
		LockedTimeMs:    in.Lock.Milliseconds(),
	}
	if v.FilledAmount == "" {
		v.FilledAmount = "0"
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}

	var prices types.PriceTable
	for _, p := range []struct{ token, price string }{
		{in.StakeToken.ID, in.StakePrice},
		{in.RewardToken.ID, in.RewardPrice},
	} {
		if p.price == "" {
			continue
		}
		price, err := finmath.ScientificToPlain(p.price)
		if err != nil {
			return nil, fmt.Errorf("price of %s: %w", p.token, err)
		}
		prices = append(prices, types.TokenPrice{Contract: p.token, Price: price})
	}

	fill, err := finmath.FormatPercentageString(finmath.FillPercentage(v))
	if err != nil {
		return nil, err
	}

	calc := finmath.NewAPRCalculator(staking)
	out := [][2]string{
		{"APR", calc.Calculate(prices, v)},
		{"Fill", fill},
		{"Lock", fmt.Sprintf("%d days", v.LockedDays())},
	}
	if missing := calc.MissingPrices(prices, v); len(missing) > 0 {
		out = append(out, [2]string{"Missing prices", fmt.Sprint(missing)})
	}

	if in.Staked != "" {
		reward, err := finmath.EstimateReward(types.TokenAmount(in.Staked), v)
		if err != nil {
			return nil, err
		}
		out = append(out, [2]string{"Estimated reward", reward + " " + symbolOf(in.RewardToken)})
	}
	return out, nil
}

// rawAmount converts a whole-token amount, possibly in exponent notation,
// to raw units. Empty stays empty.
func rawAmount(field, amount string, decimals types.Decimals) (string, error) {
	if amount == "" {
		return "", nil
	}
	plain, err := finmath.ScientificToPlain(amount)
	if err != nil {
		return "", fmt.Errorf("%s: %w", field, err)
	}
	raw, err := finmath.ToRaw(plain, decimals)
	if err != nil {
		return "", fmt.Errorf("%s: %w", field, err)
	}
	return string(raw), nil
}

func symbolOf(t types.TokenRef) string {
	if t.Name != "" {
		return t.Name
	}
	return t.ID
}
