// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/jumpfinance/jumpdefi/internal/config"
	"github.com/jumpfinance/jumpdefi/internal/events"
	"github.com/jumpfinance/jumpdefi/internal/export"
	"github.com/jumpfinance/jumpdefi/internal/finmath"
	"github.com/jumpfinance/jumpdefi/internal/metrics"
	"github.com/jumpfinance/jumpdefi/internal/near"
	"github.com/jumpfinance/jumpdefi/internal/pricefeed"
	"github.com/jumpfinance/jumpdefi/internal/report"
	"github.com/jumpfinance/jumpdefi/internal/storage"
	"github.com/jumpfinance/jumpdefi/internal/storage/postgres"
	"github.com/jumpfinance/jumpdefi/internal/types"
	"github.com/jumpfinance/jumpdefi/internal/vault"
)

const eventBuffer = 64

// App wires the price feed, the chain client and the vault service
// together and runs the CLI commands on top of them.
type App struct {
	cfg      *config.Config
	logger   *zap.Logger
	out      io.Writer
	metrics  *metrics.Collector
	bus      *events.Bus
	feed     *pricefeed.Client
	store    *pricefeed.Store
	vaults   *vault.Service
	storage  storage.Storage
	exporter *export.Exporter
	render   *report.Renderer
	shutdown *ShutdownHandler
	now      func() time.Time
}

// Options are the parts of App that callers may replace.
type Options struct {
	Out      io.Writer            // report output
	Registry *prometheus.Registry // nil creates one
	Storage  storage.Storage      // overrides postgres_url
}

// New builds the application from cfg. Storage is opened and migrated only
// when postgres_url is set.
func New(cfg *config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	m := metrics.NewCollector(opts.Registry)
	bus := events.NewBus(logger, eventBuffer)

	a := &App{
		cfg:      cfg,
		logger:   logger.Named("app"),
		out:      opts.Out,
		metrics:  m,
		bus:      bus,
		store:    pricefeed.NewStore(),
		exporter: export.NewExporter(logger),
		render:   report.New(opts.Out),
		shutdown: NewShutdownHandler(logger.Named("shutdown"), 10*time.Second),
		now:      time.Now,
	}
	a.shutdown.AddFunc("events", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return bus.Shutdown(ctx)
	})

	a.feed = pricefeed.NewClient(cfg.PriceFeedURL, logger,
		pricefeed.WithTimeout(cfg.Timeout()),
		pricefeed.WithRetries(cfg.Retries),
		pricefeed.WithMetrics(m))

	rpc := near.NewClient(cfg.NearRPCURL, logger,
		near.WithTimeout(cfg.Timeout()),
		near.WithRetries(cfg.Retries),
		near.WithMetrics(m))

	a.vaults = vault.NewService(rpc, cfg.VaultContracts, finmath.NewAPRCalculator(cfg.Staking()), logger,
		vault.WithMetrics(m),
		vault.WithBus(bus))

	a.storage = opts.Storage
	if a.storage == nil && cfg.PostgresURL != "" {
		st, err := postgres.NewStorage(cfg.PostgresURL, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		if err := st.RunMigrations(); err != nil {
			st.Close()
			a.Close()
			return nil, err
		}
		a.storage = st
	}
	if a.storage != nil {
		a.shutdown.Add("storage", a.storage)
	}

	a.watchEvents()
	return a, nil
}

// Metrics exposes the collector, mainly for the metrics endpoint.
func (a *App) Metrics() *metrics.Collector { return a.metrics }

// Bus exposes the event bus.
func (a *App) Bus() *events.Bus { return a.bus }

// Close releases everything App opened.
func (a *App) Close() error {
	return a.shutdown.Shutdown(context.Background())
}

// Prices fetches a fresh price table.
func (a *App) Prices(ctx context.Context) (types.PriceTable, error) {
	prices, err := a.store.Refresh(ctx, a.feed)
	if err != nil {
		return nil, fmt.Errorf("fetch prices: %w", err)
	}
	return prices, nil
}

// ReportOptions select how the report is delivered.
type ReportOptions struct {
	// Format empty renders a terminal table, otherwise rows are exported.
	Format export.Format
	// OutputDir "-" writes the export to Out instead of a file.
	OutputDir     string
	Contract      string
	OnlyAvailable bool
	Persist       bool
}

// Report fetches prices and vaults and delivers the overview. It returns
// the path of the exported file, if any.
func (a *App) Report(ctx context.Context, opts ReportOptions) (string, error) {
	prices, err := a.Prices(ctx)
	if err != nil {
		return "", err
	}
	rows, err := a.vaults.Report(ctx, prices)
	if err != nil {
		return "", err
	}
	if opts.Persist {
		a.persist(ctx, prices, rows)
	}

	filter := export.Options{
		Format:        opts.Format,
		OutputDir:     opts.OutputDir,
		Contract:      opts.Contract,
		OnlyAvailable: opts.OnlyAvailable,
	}
	switch {
	case opts.Format == "":
		return "", a.render.Vaults(export.Filter(rows, filter), a.store.UpdatedAt())
	case opts.OutputDir == "-":
		return "", export.Write(a.out, export.Filter(rows, filter), opts.Format, a.now())
	}
	if filter.OutputDir == "" {
		filter.OutputDir = a.cfg.ExportDir
	}
	return a.exporter.Export(rows, filter)
}

// Positions shows the stakes and recoverable rewards of account.
func (a *App) Positions(ctx context.Context, account string) error {
	prices, err := a.Prices(ctx)
	if err != nil {
		return err
	}
	positions, err := a.vaults.Positions(ctx, account, prices)
	if err != nil {
		return err
	}
	if err := a.render.Positions(account, positions); err != nil {
		return err
	}

	claims, err := a.vaults.ClaimableRewards(ctx, account)
	if err != nil || len(claims) == 0 {
		return err
	}
	pairs := make([][2]string, 0, len(claims))
	for _, c := range claims {
		pairs = append(pairs, [2]string{c.Contract, c.Amount + " " + c.Token.Name})
	}
	return a.render.KeyValues("Recoverable rewards", pairs)
}

// persist stores one snapshot of prices and rows. Failures are logged and
// counted, never returned.
func (a *App) persist(ctx context.Context, prices types.PriceTable, rows []vault.Row) {
	if a.storage == nil {
		return
	}
	at := a.now()

	aprs := storage.APRSnapshots(rows, at)
	err := a.storage.SaveAPRSnapshots(ctx, aprs)
	a.metrics.RecordSnapshot("apr", err)
	a.snapshotStored("apr", len(aprs), err)

	snaps := storage.PriceSnapshots(prices, at)
	err = a.storage.SavePriceSnapshots(ctx, snaps)
	a.metrics.RecordSnapshot("price", err)
	a.snapshotStored("price", len(snaps), err)
}

func (a *App) snapshotStored(kind string, count int, err error) {
	if err != nil {
		a.logger.Error("Failed to store snapshot", zap.String("kind", kind), zap.Error(err))
		return
	}
	if err := a.bus.Publish(events.SnapshotStoredEvent{
		BaseEvent: events.NewBase(events.SnapshotStored),
		Kind:      kind,
		Count:     count,
	}); err != nil {
		a.logger.Debug("Event not published", zap.Error(err))
	}
}

// watchEvents logs failures reported on the bus.
func (a *App) watchEvents() {
	a.bus.SubscribeFunc(events.RefreshFailed, func(_ context.Context, e events.Event) error {
		ev := e.(events.RefreshFailedEvent)
		a.logger.Warn("Refresh failed", zap.String("source", ev.Source), zap.Error(ev.Err))
		return nil
	})
	a.bus.SubscribeFunc(events.SnapshotStored, func(_ context.Context, e events.Event) error {
		ev := e.(events.SnapshotStoredEvent)
		a.logger.Debug("Snapshot stored", zap.String("kind", ev.Kind), zap.Int("count", ev.Count))
		return nil
	})
}
