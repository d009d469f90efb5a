// internal/report/report.go
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/shopspring/decimal"

	"github.com/jumpfinance/jumpdefi/internal/finmath"
	"github.com/jumpfinance/jumpdefi/internal/vault"
)

// DefaultHighlightAPR is the rate from which an APR is highlighted.
var DefaultHighlightAPR = decimal.NewFromInt(20)

const dateLayout = "2006-01-02 15:04"

// Renderer draws vault reports as terminal tables.
type Renderer struct {
	out       io.Writer
	styles    Styles
	highlight decimal.Decimal
}

// New creates a renderer for out. Colors are used only when out is a
// terminal.
func New(out io.Writer) *Renderer {
	return &Renderer{
		out:       out,
		styles:    NewStyles(lipgloss.NewRenderer(out), DefaultPalette()),
		highlight: DefaultHighlightAPR,
	}
}

// SetHighlight changes the APR from which rates are highlighted.
func (r *Renderer) SetHighlight(apr decimal.Decimal) { r.highlight = apr }

// Vaults writes the vault overview. updated is the time of the price table;
// zero hides it.
func (r *Renderer) Vaults(rows []vault.Row, updated time.Time) error {
	t := r.newTable("Vault", "Contract", "Stake → Reward", "APR", "Fill", "Capacity", "Lock", "Status", "Unlocks")
	for _, row := range rows {
		unlock := "-"
		if row.UnlockAt != nil {
			unlock = row.UnlockAt.Format(dateLayout)
		}
		t.Row(
			row.Name,
			row.Contract,
			row.StakeSymbol+" → "+row.RewardSymbol,
			row.APR,
			finmath.FormatPercentage(row.FillValue),
			row.CapacityShort,
			fmt.Sprintf("%dd", row.LockDays),
			string(row.Status),
			unlock,
		)
	}

	t.StyleFunc(func(i, col int) lipgloss.Style {
		if i == table.HeaderRow {
			return r.styles.Header
		}
		row := rows[i]
		switch col {
		case 3:
			return r.aprStyle(row)
		case 4, 5, 6:
			return r.styles.Number
		case 7:
			return r.statusStyle(row.Status)
		case 1, 8:
			return r.styles.Muted
		}
		return r.styles.Cell
	})

	footer := fmt.Sprintf("%d vaults", len(rows))
	if !updated.IsZero() {
		footer += ", prices from " + updated.Format(dateLayout)
	}
	return r.write("Jump DeFi vaults", t, footer)
}

// Positions writes the stakes of one account.
func (r *Renderer) Positions(account string, positions []vault.Position) error {
	t := r.newTable("Stake", "Vault", "Amount", "Share", "APR", "Est. reward", "Unlocks")
	for _, p := range positions {
		unlock := "-"
		if p.UnlockAt != nil {
			unlock = p.UnlockAt.Format(dateLayout)
		}
		t.Row(
			fmt.Sprintf("#%d", p.Stake.ID),
			p.Vault.Name,
			p.Amount+" "+p.Vault.StakeToken.Name,
			p.Share,
			p.APR,
			p.EstimatedReward+" "+p.Vault.RewardToken.Name,
			unlock,
		)
	}
	t.StyleFunc(func(i, col int) lipgloss.Style {
		switch {
		case i == table.HeaderRow:
			return r.styles.Header
		case col >= 2 && col <= 5:
			return r.styles.Number
		case col == 0 || col == 6:
			return r.styles.Muted
		}
		return r.styles.Cell
	})
	return r.write("Positions of "+account, t, fmt.Sprintf("%d stakes", len(positions)))
}

// KeyValues writes a two column table, used for one-off calculations.
func (r *Renderer) KeyValues(title string, pairs [][2]string) error {
	t := r.newTable()
	for _, kv := range pairs {
		t.Row(kv[0], kv[1])
	}
	t.StyleFunc(func(_, col int) lipgloss.Style {
		if col == 0 {
			return r.styles.Muted
		}
		return r.styles.Number
	})
	return r.write(title, t, "")
}

func (r *Renderer) newTable(headers ...string) *table.Table {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(r.styles.Border)
	if len(headers) > 0 {
		t.Headers(headers...)
	}
	return t
}

func (r *Renderer) write(title string, t *table.Table, footer string) error {
	var b strings.Builder
	b.WriteString(r.styles.Title.Render(title))
	b.WriteString("\n")
	b.WriteString(t.Render())
	b.WriteString("\n")
	if footer != "" {
		b.WriteString(r.styles.Footer.Render(footer))
		b.WriteString("\n")
	}
	_, err := io.WriteString(r.out, b.String())
	return err
}

func (r *Renderer) aprStyle(row vault.Row) lipgloss.Style {
	switch {
	case row.APR == finmath.Unavailable:
		return r.styles.Muted.Align(lipgloss.Right)
	case row.APRValue.Valid && row.APRValue.Decimal.GreaterThanOrEqual(r.highlight):
		return r.styles.APRGood
	}
	return r.styles.Number
}

func (r *Renderer) statusStyle(s vault.Status) lipgloss.Style {
	switch s {
	case vault.StatusOpen:
		return r.styles.Open
	case vault.StatusLocked:
		return r.styles.Locked
	}
	return r.styles.Unlocked
}
