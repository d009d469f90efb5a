// internal/export/export.go
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/jumpfinance/jumpdefi/internal/vault"
)

// Format represents the export file format
type Format string

const (
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatYAML     Format = "yaml"
)

// ParseFormat accepts the format names and the usual file extensions.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unsupported format: %q", s)
}

// Extension returns the file extension without the dot.
func (f Format) Extension() string {
	if f == FormatMarkdown {
		return "md"
	}
	return string(f)
}

// Options configures the export behavior
type Options struct {
	Format        Format
	OutputDir     string
	Contract      string // only vaults of this contract
	OnlyAvailable bool   // only vaults with a computed APR
}

// Exporter writes vault rows to files.
type Exporter struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewExporter(logger *zap.Logger) *Exporter {
	return &Exporter{
		logger: logger.Named("export"),
		now:    time.Now,
	}
}

// Export writes the rows matching options to a new file in OutputDir and
// returns its path.
func (e *Exporter) Export(rows []vault.Row, options Options) (string, error) {
	filtered := Filter(rows, options)
	if len(filtered) == 0 {
		return "", fmt.Errorf("no vaults match the export criteria")
	}

	if err := os.MkdirAll(options.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	at := e.now()
	outputPath := filepath.Join(options.OutputDir, Filename(options.Format, at))
	file, err := os.Create(outputPath)
	if err != nil {
		return "", fmt.Errorf("failed to create export file: %w", err)
	}

	if err := Write(file, filtered, options.Format, at); err != nil {
		file.Close()
		os.Remove(outputPath)
		return "", err
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("failed to close export file: %w", err)
	}

	e.logger.Info("Vaults exported",
		zap.String("file", outputPath),
		zap.Int("count", len(filtered)),
		zap.String("format", string(options.Format)))

	return outputPath, nil
}

// Filename builds "vaults_20060102_150405.<ext>".
func Filename(format Format, at time.Time) string {
	return fmt.Sprintf("vaults_%s.%s", at.Format("20060102_150405"), format.Extension())
}

// Filter applies the options' filters, keeping order.
func Filter(rows []vault.Row, options Options) []vault.Row {
	var filtered []vault.Row
	for _, r := range rows {
		if options.Contract != "" && r.Contract != options.Contract {
			continue
		}
		if options.OnlyAvailable && !r.APRValue.Valid {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered
}

// Write renders rows in format to w. at stamps the JSON and YAML documents.
func Write(w io.Writer, rows []vault.Row, format Format, at time.Time) error {
	switch format {
	case FormatCSV:
		return writeCSV(w, rows)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(newDocument(rows, at)); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(newDocument(rows, at)); err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
		return enc.Close()
	case FormatMarkdown:
		_, err := io.WriteString(w, markdown(rows)+"\n")
		return err
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// CSVHeaders are the columns of the CSV export.
func CSVHeaders() []string {
	return []string{
		"contract", "vault_id", "name", "stake_token", "reward_token",
		"apr", "fill_percent", "filled", "capacity", "min_stake",
		"lock_days", "status", "unlock_at",
	}
}

func csvRecord(r vault.Row) []string {
	unlock := ""
	if r.UnlockAt != nil {
		unlock = r.UnlockAt.Format(time.RFC3339)
	}
	return []string{
		r.Contract,
		strconv.FormatInt(r.VaultID, 10),
		r.Name,
		r.StakeSymbol,
		r.RewardSymbol,
		r.APR,
		r.Fill,
		r.Filled,
		r.Capacity,
		r.MinStake,
		strconv.FormatInt(r.LockDays, 10),
		string(r.Status),
		unlock,
	}
}

func writeCSV(w io.Writer, rows []vault.Row) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(CSVHeaders()); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, r := range rows {
		if err := writer.Write(csvRecord(r)); err != nil {
			return fmt.Errorf("failed to write vault %d: %w", r.VaultID, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func markdown(rows []vault.Row) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Vault", "Contract", "Stake", "Reward", "APR", "Fill %", "Capacity", "Lock", "Status"})
	for _, r := range rows {
		t.AppendRow(table.Row{
			r.Name, r.Contract, r.StakeSymbol, r.RewardSymbol, r.APR, r.Fill,
			r.CapacityShort, fmt.Sprintf("%dd", r.LockDays), string(r.Status),
		})
	}
	return t.RenderMarkdown()
}

// Summary contains summary statistics for exported vaults
type Summary struct {
	TotalVaults int    `json:"total_vaults" yaml:"total_vaults"`
	WithAPR     int    `json:"with_apr" yaml:"with_apr"`
	AverageAPR  string `json:"average_apr,omitempty" yaml:"average_apr,omitempty"`
	BestVault   string `json:"best_vault,omitempty" yaml:"best_vault,omitempty"`
	BestAPR     string `json:"best_apr,omitempty" yaml:"best_apr,omitempty"`
}

// Summarize counts the rows and finds the best and average APR among the
// rows that have one.
func Summarize(rows []vault.Row) Summary {
	s := Summary{TotalVaults: len(rows)}

	var (
		sum  decimal.Decimal
		best *vault.Row
	)
	for i := range rows {
		r := &rows[i]
		if !r.APRValue.Valid {
			continue
		}
		s.WithAPR++
		sum = sum.Add(r.APRValue.Decimal)
		if best == nil || r.APRValue.Decimal.GreaterThan(best.APRValue.Decimal) {
			best = r
		}
	}
	if s.WithAPR == 0 {
		return s
	}
	s.AverageAPR = sum.Div(decimal.NewFromInt(int64(s.WithAPR))).StringFixed(2) + "%"
	s.BestVault = best.Name
	s.BestAPR = best.APR
	return s
}

type record struct {
	Contract    string     `json:"contract" yaml:"contract"`
	VaultID     int64      `json:"vault_id" yaml:"vault_id"`
	Name        string     `json:"name" yaml:"name"`
	StakeToken  string     `json:"stake_token" yaml:"stake_token"`
	RewardToken string     `json:"reward_token" yaml:"reward_token"`
	APR         string     `json:"apr" yaml:"apr"`
	FillPercent string     `json:"fill_percent" yaml:"fill_percent"`
	Filled      string     `json:"filled" yaml:"filled"`
	Capacity    string     `json:"capacity" yaml:"capacity"`
	MinStake    string     `json:"min_stake" yaml:"min_stake"`
	LockDays    int64      `json:"lock_days" yaml:"lock_days"`
	Status      string     `json:"status" yaml:"status"`
	UnlockAt    *time.Time `json:"unlock_at,omitempty" yaml:"unlock_at,omitempty"`
}

type document struct {
	ExportTime time.Time `json:"export_time" yaml:"export_time"`
	VaultCount int       `json:"vault_count" yaml:"vault_count"`
	Summary    Summary   `json:"summary" yaml:"summary"`
	Vaults     []record  `json:"vaults" yaml:"vaults"`
}

func newDocument(rows []vault.Row, at time.Time) document {
	recs := make([]record, 0, len(rows))
	for _, r := range rows {
		recs = append(recs, record{
			Contract:    r.Contract,
			VaultID:     r.VaultID,
			Name:        r.Name,
			StakeToken:  r.StakeSymbol,
			RewardToken: r.RewardSymbol,
			APR:         r.APR,
			FillPercent: r.Fill,
			Filled:      r.Filled,
			Capacity:    r.Capacity,
			MinStake:    r.MinStake,
			LockDays:    r.LockDays,
			Status:      string(r.Status),
			UnlockAt:    r.UnlockAt,
		})
	}
	return document{
		ExportTime: at.UTC(),
		VaultCount: len(rows),
		Summary:    Summarize(rows),
		Vaults:     recs,
	}
}
