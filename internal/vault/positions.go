// internal/vault/positions.go
package vault

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jumpfinance/jumpdefi/internal/finmath"
	"github.com/jumpfinance/jumpdefi/internal/types"
)

const positionLookups = 4

// Stake is one deposit of an account into a vault.
type Stake struct {
	ID           int64             `json:"id"`
	VaultID      int64             `json:"vault_id"`
	StakedAmount types.TokenAmount `json:"staked_amount"`
	Contract     string            `json:"-"`
}

// Position is a stake joined with its vault.
type Position struct {
	Stake           Stake
	Vault           types.VaultParameters
	Amount          string // readable stake amount
	Share           string // of the vault's filled amount
	APR             string
	EstimatedReward string // reward token units, up to six decimals
	UnlockAt        *time.Time
}

// Claimable is a reward left in a contract that can be recovered.
type Claimable struct {
	Contract string
	Token    types.TokenRef
	Amount   string
}

// Stakes lists the stakes of account across all contracts. A contract that
// fails to answer is logged and skipped.
func (s *Service) Stakes(ctx context.Context, account string) ([]Stake, error) {
	if account == "" {
		return nil, nil
	}

	perContract := make([][]Stake, len(s.contracts))
	errs := forEach(ctx, indexes(len(s.contracts)), len(s.contracts), func(ctx context.Context, i int) error {
		vc := s.contracts[i]
		var stakes []Stake
		if err := s.viewer.ViewMethod(ctx, vc.ContractID, "get_stake_by_id", map[string]string{"account_id": account}, &stakes); err != nil {
			return err
		}
		for i := range stakes {
			stakes[i].Contract = vc.ContractID
		}
		perContract[i] = stakes
		return nil
	})

	var out []Stake
	for i, err := range errs {
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("Stakes unavailable",
				zap.String("contract", s.contracts[i].ContractID),
				zap.String("account", account),
				zap.Error(err))
			continue
		}
		out = append(out, perContract[i]...)
	}
	return out, nil
}

// Positions resolves the vault of every stake of account and estimates the
// reward paid on unstake.
func (s *Service) Positions(ctx context.Context, account string, prices types.PriceTable) ([]Position, error) {
	stakes, err := s.Stakes(ctx, account)
	if err != nil {
		return nil, err
	}

	positions := make([]Position, len(stakes))
	errs := forEach(ctx, indexes(len(stakes)), positionLookups, func(ctx context.Context, i int) error {
		st := stakes[i]
		v, err := s.Vault(ctx, st.Contract, st.VaultID)
		if err != nil {
			return err
		}
		p, err := s.position(prices, st, v)
		if err != nil {
			return err
		}
		positions[i] = p
		return nil
	})

	out := positions[:0]
	for i, err := range errs {
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("Skipping stake",
				zap.Int64("stake_id", stakes[i].ID),
				zap.String("contract", stakes[i].Contract),
				zap.Error(err))
			continue
		}
		out = append(out, positions[i])
	}
	return out, nil
}

func (s *Service) position(prices types.PriceTable, st Stake, v types.VaultParameters) (Position, error) {
	amount, err := finmath.ToReadable(st.StakedAmount, v.StakeToken.Decimals)
	if err != nil {
		return Position{}, fmt.Errorf("stake %d: %w", st.ID, err)
	}
	reward, err := finmath.EstimateReward(st.StakedAmount, v)
	if err != nil {
		return Position{}, fmt.Errorf("stake %d: %w", st.ID, err)
	}
	share, err := finmath.Percent(string(st.StakedAmount), string(v.FilledAmount))
	if err != nil {
		return Position{}, fmt.Errorf("stake %d: %w", st.ID, err)
	}

	p := Position{
		Stake:           st,
		Vault:           v,
		Amount:          amount,
		Share:           finmath.FormatPercentage(decimal.NewNullDecimal(share)),
		APR:             s.calc.Calculate(prices, v),
		EstimatedReward: reward,
	}
	if unlock, ok := v.UnlockTime(); ok {
		p.UnlockAt = &unlock
	}
	return p, nil
}

// ClaimableRewards returns the recoverable rewards of account, skipping
// contracts with nothing to claim.
func (s *Service) ClaimableRewards(ctx context.Context, account string) ([]Claimable, error) {
	if account == "" {
		return nil, nil
	}

	amounts := make([]types.TokenAmount, len(s.contracts))
	errs := forEach(ctx, indexes(len(s.contracts)), len(s.contracts), func(ctx context.Context, i int) error {
		vc := s.contracts[i]
		return s.viewer.ViewMethod(ctx, vc.ContractID, "get_recovery_reward", map[string]string{"account_id": account}, &amounts[i])
	})

	var out []Claimable
	for i, err := range errs {
		vc := s.contracts[i]
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("Claimable reward unavailable", zap.String("contract", vc.ContractID), zap.Error(err))
			continue
		}
		if amounts[i].IsZero() {
			continue
		}
		readable, err := finmath.ToReadable(amounts[i], vc.RewardToken.Decimals)
		if err != nil {
			return nil, fmt.Errorf("recovery reward on %s: %w", vc.ContractID, err)
		}
		out = append(out, Claimable{Contract: vc.ContractID, Token: vc.RewardToken, Amount: readable})
	}
	return out, nil
}

func indexes(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
