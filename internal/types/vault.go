// internal/types/vault.go
package types

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidVault = errors.New("invalid vault")

// VaultContract describes one deployed vault contract and the token pair it
// stakes and rewards.
type VaultContract struct {
	ContractID  string   `json:"contract_id" mapstructure:"contract_id"`
	StakeToken  TokenRef `json:"stake_token" mapstructure:"stake_token"`
	RewardToken TokenRef `json:"reward_token" mapstructure:"reward_token"`
}

// Validate checks the contract description.
func (c VaultContract) Validate() error {
	if c.ContractID == "" {
		return fmt.Errorf("%w: empty contract id", ErrInvalidVault)
	}
	if err := c.StakeToken.Validate(); err != nil {
		return fmt.Errorf("%w: stake token: %w", ErrInvalidVault, err)
	}
	if err := c.RewardToken.Validate(); err != nil {
		return fmt.Errorf("%w: reward token: %w", ErrInvalidVault, err)
	}
	return nil
}

// VaultParameters is an immutable description of one staking vault.
// APR is stored pre-scaled by 100 (2790000000 means 27900000.00 raw units).
type VaultParameters struct {
	ID              int64       `json:"id"`
	Name            string      `json:"name"`
	Contract        string      `json:"contract"`
	StakeToken      TokenRef    `json:"stake_token"`
	RewardToken     TokenRef    `json:"reward_token"`
	MaxFillAmount   TokenAmount `json:"max_fill_amount"`
	FilledAmount    TokenAmount `json:"filled_amount"`
	MinStakeAmount  TokenAmount `json:"min_stake_amount"`
	LockedTimeMs    int64       `json:"locked_time_ms"`
	APR             TokenAmount `json:"apr"`
	StakeRewardRate TokenAmount `json:"stake_reward_rate"`
	StartTimeMs     int64       `json:"vault_start_time,omitempty"`
	URL             string      `json:"url,omitempty"`
}

// Started reports whether the vault has been filled and its lock is
// running.
func (v VaultParameters) Started() bool {
	return v.StartTimeMs > 0
}

// UnlockTime is the moment the lock ends. ok is false before the vault
// starts.
func (v VaultParameters) UnlockTime() (t time.Time, ok bool) {
	if !v.Started() {
		return time.Time{}, false
	}
	return time.UnixMilli(v.StartTimeMs + v.LockedTimeMs).UTC(), true
}

// LockedDays returns the lock duration in whole days, counting any partial
// day as a full one.
func (v VaultParameters) LockedDays() int64 {
	const day = int64(24 * 60 * 60 * 1000)
	if v.LockedTimeMs <= 0 {
		return 0
	}
	return (v.LockedTimeMs + day - 1) / day
}

// Validate checks all fields that enter the financial math.
func (v VaultParameters) Validate() error {
	if err := v.StakeToken.Validate(); err != nil {
		return fmt.Errorf("%w %d: stake token: %w", ErrInvalidVault, v.ID, err)
	}
	if err := v.RewardToken.Validate(); err != nil {
		return fmt.Errorf("%w %d: reward token: %w", ErrInvalidVault, v.ID, err)
	}
	amounts := []struct {
		name  string
		value TokenAmount
	}{
		{"max_fill_amount", v.MaxFillAmount},
		{"filled_amount", v.FilledAmount},
		{"apr", v.APR},
	}
	for _, a := range amounts {
		if err := a.value.Validate(); err != nil {
			return fmt.Errorf("%w %d: %s: %w", ErrInvalidVault, v.ID, a.name, err)
		}
	}
	// optional on older contracts
	for _, a := range []TokenAmount{v.MinStakeAmount, v.StakeRewardRate} {
		if a == "" {
			continue
		}
		if err := a.Validate(); err != nil {
			return fmt.Errorf("%w %d: %w", ErrInvalidVault, v.ID, err)
		}
	}
	if v.LockedTimeMs < 0 {
		return fmt.Errorf("%w %d: negative locked_time_ms", ErrInvalidVault, v.ID)
	}
	return nil
}
