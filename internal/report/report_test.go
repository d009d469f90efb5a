package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jumpfinance/jumpdefi/internal/types"
	"github.com/jumpfinance/jumpdefi/internal/vault"
)

func TestVaults(t *testing.T) {
	unlock := time.Date(2024, 5, 29, 0, 0, 0, 0, time.UTC)
	rows := []vault.Row{
		{
			Contract:      "jumpvault1.near",
			Name:          "Black Dragon Vault #1",
			StakeSymbol:   "xJUMP",
			RewardSymbol:  "BLACKDRAGON",
			APR:           "28.40%",
			APRValue:      decimal.NewNullDecimal(decimal.RequireFromString("28.4")),
			Fill:          "1.71",
			FillValue:     decimal.NewNullDecimal(decimal.RequireFromString("1.71")),
			CapacityShort: "2.50M",
			LockDays:      28,
			Status:        vault.StatusLocked,
			UnlockAt:      &unlock,
		},
		{
			Contract:     "jumpvault2.near",
			Name:         "Jump Vault",
			StakeSymbol:  "xJUMP",
			RewardSymbol: "JUMP",
			APR:          "-",
			Fill:         "0.00",
			Status:       vault.StatusOpen,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, New(&buf).Vaults(rows, time.Date(2024, 5, 2, 9, 30, 0, 0, time.UTC)))
	out := buf.String()

	assert.Contains(t, out, "Jump DeFi vaults")
	assert.Contains(t, out, "Black Dragon Vault #1")
	assert.Contains(t, out, "xJUMP → BLACKDRAGON")
	assert.Contains(t, out, "28.40%")
	assert.Contains(t, out, "1.71%")
	assert.Contains(t, out, "2024-05-29 00:00")
	assert.Contains(t, out, "locked")
	assert.Contains(t, out, "2 vaults, prices from 2024-05-02 09:30")
	assert.NotContains(t, out, "\x1b[", "no colors when not writing to a terminal")

	var line string
	for _, l := range strings.Split(out, "\n") {
		if strings.Contains(l, "Jump Vault") {
			line = l
		}
	}
	require.NotEmpty(t, line)
	assert.Contains(t, line, "open")
	assert.Contains(t, line, "-%", "unknown fill")
}

func TestVaultsEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(&buf).Vaults(nil, time.Time{}))
	assert.Contains(t, buf.String(), "0 vaults")
	assert.NotContains(t, buf.String(), "prices from")
}

func TestPositions(t *testing.T) {
	positions := []vault.Position{{
		Stake: vault.Stake{ID: 3, VaultID: 1714000000001},
		Vault: types.VaultParameters{
			Name:        "Black Dragon Vault #1",
			StakeToken:  types.TokenRef{ID: "xjumptoken.jumpfinance.near", Name: "xJUMP", Decimals: 18},
			RewardToken: types.TokenRef{ID: "blackdragon.tkn.near", Name: "BLACKDRAGON", Decimals: 24},
		},
		Amount:          "1000",
		Share:           "2.33%",
		APR:             "28.40%",
		EstimatedReward: "159995068.493151",
	}}

	var buf bytes.Buffer
	require.NoError(t, New(&buf).Positions("alice.near", positions))
	out := buf.String()

	assert.Contains(t, out, "Positions of alice.near")
	assert.Contains(t, out, "#3")
	assert.Contains(t, out, "1000 xJUMP")
	assert.Contains(t, out, "2.33%")
	assert.Contains(t, out, "159995068.493151 BLACKDRAGON")
	assert.Contains(t, out, "1 stakes")
}

func TestKeyValues(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(&buf).KeyValues("APR", [][2]string{{"vault", "Black Dragon Vault #1"}, {"apr", "28.40%"}}))
	assert.Contains(t, buf.String(), "28.40%")
	assert.Contains(t, buf.String(), "vault")
}
