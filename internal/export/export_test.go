package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/jumpfinance/jumpdefi/internal/vault"
)

var exportTime = time.Date(2024, 5, 2, 9, 30, 0, 0, time.UTC)

func testRows() []vault.Row {
	unlock := time.Date(2024, 5, 29, 0, 0, 0, 0, time.UTC)
	return []vault.Row{
		{
			Contract:      "jumpvault1.near",
			VaultID:       1714000000001,
			Name:          "Black Dragon Vault #1",
			StakeSymbol:   "xJUMP",
			RewardSymbol:  "BLACKDRAGON",
			APR:           "28.40%",
			APRValue:      decimal.NewNullDecimal(decimal.RequireFromString("28.4")),
			Fill:          "1.71",
			Filled:        "42913.95",
			Capacity:      "2500000",
			CapacityShort: "2.50M",
			MinStake:      "1",
			LockDays:      28,
			Status:        vault.StatusLocked,
			UnlockAt:      &unlock,
		},
		{
			Contract:      "jumpvault1.near",
			VaultID:       1714000000002,
			Name:          "Black Dragon Vault 2",
			StakeSymbol:   "xJUMP",
			RewardSymbol:  "BLACKDRAGON",
			APR:           "28.49%",
			APRValue:      decimal.NewNullDecimal(decimal.RequireFromString("28.49")),
			Fill:          "0.00",
			CapacityShort: "2.50M",
			LockDays:      21,
			Status:        vault.StatusOpen,
		},
		{
			Contract:     "jumpvault2.near",
			VaultID:      7,
			Name:         "Jump Vault",
			StakeSymbol:  "xJUMP",
			RewardSymbol: "JUMP",
			APR:          "-",
			Fill:         "0.00",
			Status:       vault.StatusOpen,
		},
	}
}

func newTestExporter() *Exporter {
	e := NewExporter(zap.NewNop())
	e.now = func() time.Time { return exportTime }
	return e
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{
		"csv": FormatCSV, "json": FormatJSON, "md": FormatMarkdown,
		"markdown": FormatMarkdown, "yml": FormatYAML, "yaml": FormatYAML,
	} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("xlsx")
	assert.Error(t, err)
}

func TestExportCSV(t *testing.T) {
	dir := t.TempDir()
	path, err := newTestExporter().Export(testRows(), Options{Format: FormatCSV, OutputDir: dir})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "vaults_20240502_093000.csv"), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, records, 4)
	assert.Equal(t, CSVHeaders(), records[0])
	assert.Equal(t, []string{
		"jumpvault1.near", "1714000000001", "Black Dragon Vault #1", "xJUMP", "BLACKDRAGON",
		"28.40%", "1.71", "42913.95", "2500000", "1", "28", "locked", "2024-05-29T00:00:00Z",
	}, records[1])
	assert.Equal(t, "", records[3][12])
}

func TestExportFilters(t *testing.T) {
	dir := t.TempDir()
	e := newTestExporter()

	path, err := e.Export(testRows(), Options{Format: FormatCSV, OutputDir: dir, OnlyAvailable: true})
	require.NoError(t, err)
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "Jump Vault")

	_, err = e.Export(testRows(), Options{Format: FormatCSV, OutputDir: dir, Contract: "other.near"})
	assert.Error(t, err)

	rows := Filter(testRows(), Options{Contract: "jumpvault2.near"})
	require.Len(t, rows, 1)
	assert.Equal(t, int64(7), rows[0].VaultID)
}

func TestExportJSON(t *testing.T) {
	path, err := newTestExporter().Export(testRows(), Options{Format: FormatJSON, OutputDir: t.TempDir()})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, ".json"))

	content, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc struct {
		ExportTime time.Time `json:"export_time"`
		VaultCount int       `json:"vault_count"`
		Summary    Summary   `json:"summary"`
		Vaults     []struct {
			VaultID  int64      `json:"vault_id"`
			APR      string     `json:"apr"`
			UnlockAt *time.Time `json:"unlock_at"`
		} `json:"vaults"`
	}
	require.NoError(t, json.Unmarshal(content, &doc))

	assert.True(t, exportTime.Equal(doc.ExportTime))
	assert.Equal(t, 3, doc.VaultCount)
	require.Len(t, doc.Vaults, 3)
	assert.Equal(t, "28.40%", doc.Vaults[0].APR)
	assert.NotNil(t, doc.Vaults[0].UnlockAt)
	assert.Nil(t, doc.Vaults[2].UnlockAt)
	assert.Equal(t, Summary{
		TotalVaults: 3,
		WithAPR:     2,
		AverageAPR:  "28.45%",
		BestVault:   "Black Dragon Vault 2",
		BestAPR:     "28.49%",
	}, doc.Summary)
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, testRows()[:1], FormatYAML, exportTime))

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, 1, doc["vault_count"])

	vaults := doc["vaults"].([]any)
	first := vaults[0].(map[string]any)
	assert.Equal(t, "Black Dragon Vault #1", first["name"])
	assert.Equal(t, "28.40%", first["apr"])
	assert.Equal(t, 28, first["lock_days"])
}

func TestWriteMarkdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, testRows(), FormatMarkdown, exportTime))

	out := buf.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(strings.ToLower(lines[0]), "| vault | contract |"))
	assert.Contains(t, lines[2], "Black Dragon Vault #1")
	assert.Contains(t, lines[2], "28.40%")
	assert.Contains(t, lines[2], "28d")
	assert.Equal(t, "md", FormatMarkdown.Extension())
}

func TestSummarizeWithoutAPR(t *testing.T) {
	s := Summarize(testRows()[2:])
	assert.Equal(t, Summary{TotalVaults: 1}, s)
}

func TestHistoryWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history", "apr.csv")

	hw, err := NewHistoryWriter(path, time.Hour, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, hw.WriteRows(testRows()[:2], exportTime))
	require.NoError(t, hw.Close())

	records, flushes := hw.Stats()
	assert.EqualValues(t, 2, records)
	assert.EqualValues(t, 1, flushes)

	// reopening appends without a second header
	hw, err = NewHistoryWriter(path, time.Hour, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, hw.WriteRows(testRows()[2:], exportTime.Add(time.Minute)))
	require.NoError(t, hw.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	all, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, all, 4)
	assert.Equal(t, HistoryHeaders, all[0])
	assert.Equal(t, []string{"2024-05-02T09:30:00Z", "jumpvault1.near", "1714000000001", "Black Dragon Vault #1", "28.40%", "1.71", "locked"}, all[1])
	assert.Equal(t, "2024-05-02T09:31:00Z", all[3][0])
}
