// internal/app/watch.go
package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jumpfinance/jumpdefi/internal/events"
	"github.com/jumpfinance/jumpdefi/internal/export"
	"github.com/jumpfinance/jumpdefi/internal/pricefeed"
	"github.com/jumpfinance/jumpdefi/internal/types"
)

// WatchOptions configure the long running mode.
type WatchOptions struct {
	// MetricsAddr serves /metrics when set, e.g. ":9102".
	MetricsAddr string
	// HistoryFile receives one CSV line per vault and refresh when set.
	HistoryFile string
	// Render redraws the table after every refresh.
	Render bool
}

// Watch polls prices every price_delay and rebuilds the vault report after
// each successful poll, storing snapshots and history. It returns when ctx
// is cancelled.
func (a *App) Watch(ctx context.Context, opts WatchOptions) error {
	var history *export.HistoryWriter
	if opts.HistoryFile != "" {
		hw, err := export.NewHistoryWriter(opts.HistoryFile, 5*time.Second, a.logger)
		if err != nil {
			return err
		}
		defer a.closeLogged("history", hw)
		history = hw
	}

	updates := make(chan types.PriceTable, 1)
	sub := a.bus.SubscribeFunc(events.PricesUpdated, func(_ context.Context, e events.Event) error {
		prices := e.(events.PricesUpdatedEvent).Prices
		// keep only the newest table
		select {
		case <-updates:
		default:
		}
		select {
		case updates <- prices:
		default:
		}
		return nil
	})
	defer sub.Unsubscribe()

	poller := pricefeed.NewPoller(a.feed, a.store, a.bus, a.cfg.PriceInterval(), a.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return poller.Run(gctx) })
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case prices := <-updates:
				a.refresh(gctx, prices, history, opts.Render)
			}
		}
	})
	if opts.MetricsAddr != "" {
		g.Go(func() error { return a.serveMetrics(gctx, opts.MetricsAddr) })
	}

	a.logger.Info("Watching vaults",
		zap.Duration("interval", a.cfg.PriceInterval()),
		zap.Int("contracts", len(a.cfg.VaultContracts)),
		zap.String("metrics_addr", opts.MetricsAddr))
	return g.Wait()
}

func (a *App) refresh(ctx context.Context, prices types.PriceTable, history *export.HistoryWriter, render bool) {
	rows, err := a.vaults.Report(ctx, prices)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			a.logger.Warn("Vault refresh failed", zap.Error(err))
		}
		return
	}
	a.persist(ctx, prices, rows)

	if history != nil {
		if err := history.WriteRows(rows, a.now()); err != nil {
			a.logger.Error("Failed to write history", zap.Error(err))
		}
	}
	if render {
		if err := a.render.Vaults(rows, a.store.UpdatedAt()); err != nil {
			a.logger.Error("Failed to render report", zap.Error(err))
		}
	}
}

// closeLogged closes c and logs a failure instead of returning it.
func (a *App) closeLogged(name string, c io.Closer) {
	if err := c.Close(); err != nil {
		a.logger.Error("Failed to close", zap.String("component", name), zap.Error(err))
	}
}

func (a *App) serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	a.logger.Info("Metrics server started", zap.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}
