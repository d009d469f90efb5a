// internal/vault/service.go
package vault

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jumpfinance/jumpdefi/internal/events"
	"github.com/jumpfinance/jumpdefi/internal/finmath"
	"github.com/jumpfinance/jumpdefi/internal/metrics"
	"github.com/jumpfinance/jumpdefi/internal/types"
)

const defaultPageSize = 100

var ErrUnknownContract = errors.New("vault: contract not configured")

// DefaultExcludedVaults are test vaults deployed on mainnet that must never
// be shown.
var DefaultExcludedVaults = []int64{1713845877248, 1713980060364}

// Viewer is the read-only chain access the service needs.
type Viewer interface {
	ViewMethod(ctx context.Context, contract, method string, args, out any) error
}

// Service reads vaults from the configured contracts and derives display
// rows from them.
type Service struct {
	viewer    Viewer
	contracts []types.VaultContract
	calc      *finmath.APRCalculator
	excluded  map[int64]struct{}
	pageSize  int
	logger    *zap.Logger
	metrics   *metrics.Collector
	bus       *events.Bus
	now       func() time.Time
}

type Option func(*Service)

// WithExcluded replaces the excluded vault ids.
func WithExcluded(ids ...int64) Option {
	return func(s *Service) {
		s.excluded = make(map[int64]struct{}, len(ids))
		for _, id := range ids {
			s.excluded[id] = struct{}{}
		}
	}
}

func WithPageSize(n int) Option { return func(s *Service) { s.pageSize = n } }

func WithMetrics(m *metrics.Collector) Option { return func(s *Service) { s.metrics = m } }

func WithBus(b *events.Bus) Option { return func(s *Service) { s.bus = b } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(viewer Viewer, contracts []types.VaultContract, calc *finmath.APRCalculator, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		viewer:    viewer,
		contracts: contracts,
		calc:      calc,
		pageSize:  defaultPageSize,
		logger:    logger.Named("vaults"),
		now:       time.Now,
	}
	WithExcluded(DefaultExcludedVaults...)(s)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Contracts returns the configured vault contracts.
func (s *Service) Contracts() []types.VaultContract {
	return append([]types.VaultContract(nil), s.contracts...)
}

// Vaults fetches every configured contract concurrently and returns their
// vaults in configuration order. Excluded and malformed vaults are dropped.
// A failing contract fails the whole call.
func (s *Service) Vaults(ctx context.Context) ([]types.VaultParameters, error) {
	results := make([][]types.VaultParameters, len(s.contracts))
	skipped := make([]int, len(s.contracts))

	g, gctx := errgroup.WithContext(ctx)
	for i, vc := range s.contracts {
		g.Go(func() error {
			vaults, n, err := s.fetchContract(gctx, vc)
			if err != nil {
				return err
			}
			results[i], skipped[i] = vaults, n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.publish(events.RefreshFailedEvent{
			BaseEvent: events.NewBase(events.RefreshFailed),
			Source:    "vaults",
			Err:       err,
		})
		return nil, err
	}

	var (
		all          []types.VaultParameters
		totalSkipped int
	)
	for i := range results {
		all = append(all, results[i]...)
		totalSkipped += skipped[i]
	}

	s.logger.Debug("Vaults fetched",
		zap.Int("contracts", len(s.contracts)),
		zap.Int("vaults", len(all)),
		zap.Int("skipped", totalSkipped))
	s.publish(events.VaultsRefreshedEvent{
		BaseEvent: events.NewBase(events.VaultsRefreshed),
		Vaults:    all,
		Skipped:   totalSkipped,
	})
	return all, nil
}

func (s *Service) fetchContract(ctx context.Context, vc types.VaultContract) ([]types.VaultParameters, int, error) {
	var raw []types.VaultParameters
	args := map[string]int{"from_index": 0, "limit": s.pageSize}
	if err := s.viewer.ViewMethod(ctx, vc.ContractID, "get_vaults", args, &raw); err != nil {
		return nil, 0, fmt.Errorf("get_vaults on %s: %w", vc.ContractID, err)
	}

	out := make([]types.VaultParameters, 0, len(raw))
	skipped := 0
	for _, v := range raw {
		if _, ok := s.excluded[v.ID]; ok {
			continue
		}
		v = attach(v, vc)
		if err := v.Validate(); err != nil {
			s.logger.Warn("Skipping malformed vault",
				zap.String("contract", vc.ContractID),
				zap.Int64("vault_id", v.ID),
				zap.Error(err))
			skipped++
			continue
		}
		out = append(out, v)
	}
	return out, skipped, nil
}

// Vault fetches a single vault by id.
func (s *Service) Vault(ctx context.Context, contract string, id int64) (types.VaultParameters, error) {
	vc, ok := s.contract(contract)
	if !ok {
		return types.VaultParameters{}, fmt.Errorf("%w: %s", ErrUnknownContract, contract)
	}

	var v types.VaultParameters
	if err := s.viewer.ViewMethod(ctx, contract, "get_vault", map[string]int64{"vault_id": id}, &v); err != nil {
		return types.VaultParameters{}, fmt.Errorf("get_vault %d on %s: %w", id, contract, err)
	}
	v = attach(v, vc)
	if err := v.Validate(); err != nil {
		return types.VaultParameters{}, err
	}
	return v, nil
}

// Report fetches the vaults and renders them against prices, updating
// metrics and announcing vaults whose APR is unavailable.
func (s *Service) Report(ctx context.Context, prices types.PriceTable) ([]Row, error) {
	vaults, err := s.Vaults(ctx)
	if err != nil {
		return nil, err
	}
	rows := s.Overview(prices, vaults)

	for i, r := range rows {
		apr, fill := 0.0, 0.0
		if r.APRValue.Valid {
			apr = r.APRValue.Decimal.InexactFloat64()
		}
		if r.FillValue.Valid {
			fill = r.FillValue.Decimal.InexactFloat64()
		}
		s.metrics.UpdateVault(r.Contract, r.VaultID, apr, r.APRValue.Valid, fill)

		if !r.APRValue.Valid {
			missing := s.calc.MissingPrices(prices, vaults[i])
			s.logger.Warn("APR unavailable",
				zap.String("contract", r.Contract),
				zap.Int64("vault_id", r.VaultID),
				zap.Strings("missing_prices", missing))
			s.publish(events.APRUnavailableEvent{
				BaseEvent: events.NewBase(events.APRUnavailable),
				Contract:  r.Contract,
				VaultID:   r.VaultID,
				Missing:   missing,
			})
		}
	}
	return rows, nil
}

func (s *Service) contract(id string) (types.VaultContract, bool) {
	for _, vc := range s.contracts {
		if vc.ContractID == id {
			return vc, true
		}
	}
	return types.VaultContract{}, false
}

func (s *Service) publish(e events.Event) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(e); err != nil {
		s.logger.Debug("Event not published", zap.String("event_type", string(e.Type())), zap.Error(err))
	}
}

func attach(v types.VaultParameters, vc types.VaultContract) types.VaultParameters {
	v.Contract = vc.ContractID
	v.StakeToken = vc.StakeToken
	v.RewardToken = vc.RewardToken
	return v
}

// forEach runs fn for each item with at most limit calls in flight and
// collects errors per index instead of cancelling siblings.
func forEach[T any](ctx context.Context, items []T, limit int, fn func(context.Context, T) error) []error {
	errs := make([]error, len(items))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, it := range items {
		g.Go(func() error {
			errs[i] = fn(ctx, it)
			return nil
		})
	}
	_ = g.Wait()
	return errs
}
