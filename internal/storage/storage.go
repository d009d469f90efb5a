// internal/storage/storage.go
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jumpfinance/jumpdefi/internal/storage/models"
	"github.com/jumpfinance/jumpdefi/internal/types"
	"github.com/jumpfinance/jumpdefi/internal/vault"
)

var ErrNotFound = errors.New("storage: not found")

// Storage определяет интерфейс для работы с хранилищем
type Storage interface {
	// APR
	SaveAPRSnapshots(ctx context.Context, snapshots []*models.APRSnapshot) error
	LatestAPR(ctx context.Context, contract string, vaultID int64) (*models.APRSnapshot, error)
	APRHistory(ctx context.Context, contract string, vaultID int64, since time.Time, limit int) ([]*models.APRSnapshot, error)

	// Цены
	SavePriceSnapshots(ctx context.Context, snapshots []*models.PriceSnapshot) error

	RunMigrations() error
	Close() error
}

// APRSnapshots converts report rows into snapshots taken at at.
func APRSnapshots(rows []vault.Row, at time.Time) []*models.APRSnapshot {
	out := make([]*models.APRSnapshot, 0, len(rows))
	for _, r := range rows {
		out = append(out, &models.APRSnapshot{
			Contract: r.Contract,
			VaultID:  r.VaultID,
			Name:     r.Name,
			APR:      r.APRValue,
			Fill:     r.FillValue,
			Filled:   r.Filled,
			Capacity: r.Capacity,
			Status:   string(r.Status),
			TakenAt:  at.UTC(),
		})
	}
	return out
}

// PriceSnapshots converts a price table into snapshots taken at at. Rows
// whose price does not parse are left out.
func PriceSnapshots(prices types.PriceTable, at time.Time) []*models.PriceSnapshot {
	out := make([]*models.PriceSnapshot, 0, len(prices))
	for _, p := range prices {
		d, err := p.Decimal()
		if err != nil {
			continue
		}
		out = append(out, &models.PriceSnapshot{
			Contract: p.Contract,
			Symbol:   p.Symbol,
			Price:    d,
			TakenAt:  at.UTC(),
		})
	}
	return out
}
