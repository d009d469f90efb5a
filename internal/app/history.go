// internal/app/history.go
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jumpfinance/jumpdefi/internal/finmath"
	"github.com/jumpfinance/jumpdefi/internal/storage"
	"github.com/jumpfinance/jumpdefi/internal/storage/models"
)

const defaultHistoryLimit = 500

// ErrNoStorage is returned by commands that read snapshots when no
// postgres_url is configured.
var ErrNoStorage = errors.New("no snapshot storage configured, set postgres_url")

// HistoryOptions select the snapshots of one vault.
type HistoryOptions struct {
	Contract string
	VaultID  int64
	Since    time.Time
	Limit    int // 0 uses the default
}

// History shows the stored APR snapshots of a vault taken since opts.Since.
// When the window is empty the latest snapshot before it is shown instead.
func (a *App) History(ctx context.Context, opts HistoryOptions) error {
	if a.storage == nil {
		return ErrNoStorage
	}
	if opts.Limit <= 0 {
		opts.Limit = defaultHistoryLimit
	}

	title := fmt.Sprintf("APR history of %s #%d", opts.Contract, opts.VaultID)
	snaps, err := a.storage.APRHistory(ctx, opts.Contract, opts.VaultID, opts.Since, opts.Limit)
	if err != nil {
		return fmt.Errorf("apr history: %w", err)
	}

	if len(snaps) == 0 {
		latest, err := a.storage.LatestAPR(ctx, opts.Contract, opts.VaultID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return a.render.KeyValues(title, [][2]string{{"Snapshots", "none"}})
		case err != nil:
			return fmt.Errorf("latest apr: %w", err)
		}
		snaps = []*models.APRSnapshot{latest}
		title += ", latest before " + opts.Since.UTC().Format(historyLayout)
	}

	pairs := make([][2]string, 0, len(snaps))
	for _, s := range snaps {
		pairs = append(pairs, [2]string{s.TakenAt.UTC().Format(historyLayout), snapshotLine(s)})
	}
	return a.render.KeyValues(title, pairs)
}

const historyLayout = "2006-01-02 15:04"

func snapshotLine(s *models.APRSnapshot) string {
	apr := finmath.Unavailable
	if s.APR.Valid {
		apr = s.APR.Decimal.StringFixed(2) + "%"
	}
	return fmt.Sprintf("%s, fill %s, %s", apr, finmath.FormatPercentage(s.Fill), s.Status)
}
