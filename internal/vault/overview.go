// internal/vault/overview.go
package vault

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jumpfinance/jumpdefi/internal/finmath"
	"github.com/jumpfinance/jumpdefi/internal/types"
)

// Status of a vault's lock.
type Status string

const (
	StatusOpen     Status = "open"     // still accepting stake
	StatusLocked   Status = "locked"   // filled, lock running
	StatusUnlocked Status = "unlocked" // lock over
)

// Row is one vault prepared for display or export. All amounts are human
// readable strings.
type Row struct {
	Contract      string              `json:"contract"`
	VaultID       int64               `json:"vault_id"`
	Name          string              `json:"name"`
	StakeSymbol   string              `json:"stake_symbol"`
	RewardSymbol  string              `json:"reward_symbol"`
	APR           string              `json:"apr"`
	APRValue      decimal.NullDecimal `json:"-"`
	Fill          string              `json:"fill"`
	FillValue     decimal.NullDecimal `json:"-"`
	Filled        string              `json:"filled"`
	Capacity      string              `json:"capacity"`
	CapacityShort string              `json:"capacity_short"`
	MinStake      string              `json:"min_stake"`
	LockDays      int64               `json:"lock_days"`
	Status        Status              `json:"status"`
	UnlockAt      *time.Time          `json:"unlock_at,omitempty"`
}

// Overview turns vaults into rows, one per vault and in the same order.
// A vault whose amounts cannot be read still gets a row with "-" fields.
func (s *Service) Overview(prices types.PriceTable, vaults []types.VaultParameters) []Row {
	now := s.now()
	rows := make([]Row, 0, len(vaults))
	for _, v := range vaults {
		rows = append(rows, s.row(prices, v, now))
	}
	return rows
}

func (s *Service) row(prices types.PriceTable, v types.VaultParameters, now time.Time) Row {
	r := Row{
		Contract:     v.Contract,
		VaultID:      v.ID,
		Name:         displayName(v),
		StakeSymbol:  symbol(v.StakeToken),
		RewardSymbol: symbol(v.RewardToken),
		APR:          finmath.Unavailable,
		LockDays:     v.LockedDays(),
		Status:       StatusOpen,
	}

	if rate, ok := s.calc.Rate(prices, v); ok {
		r.APR = rate.StringFixed(2) + "%"
		r.APRValue = decimal.NewNullDecimal(rate.Round(2))
	}

	r.Fill = finmath.FillPercentage(v)
	if fill, err := decimal.NewFromString(r.Fill); err == nil {
		r.FillValue = decimal.NewNullDecimal(fill)
	}

	r.Filled = readable(v.FilledAmount, v.StakeToken.Decimals)
	r.Capacity = readable(v.MaxFillAmount, v.StakeToken.Decimals)
	r.MinStake = readable(v.MinStakeAmount, v.StakeToken.Decimals)
	r.CapacityShort = finmath.Unavailable
	if f, err := strconv.ParseFloat(r.Capacity, 64); err == nil {
		r.CapacityShort = finmath.FormatNumberWithSuffix(f)
	}

	if unlock, ok := v.UnlockTime(); ok {
		r.UnlockAt = &unlock
		r.Status = StatusLocked
		if !now.Before(unlock) {
			r.Status = StatusUnlocked
		}
	}
	return r
}

func displayName(v types.VaultParameters) string {
	if v.Name != "" {
		return v.Name
	}
	return fmt.Sprintf("#%d", v.ID)
}

func symbol(t types.TokenRef) string {
	if t.Name != "" {
		return t.Name
	}
	return t.ID
}

func readable(a types.TokenAmount, d types.Decimals) string {
	if a == "" {
		return "0"
	}
	s, err := finmath.ToReadable(a, d)
	if err != nil {
		return finmath.Unavailable
	}
	return s
}
