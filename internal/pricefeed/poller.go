// internal/pricefeed/poller.go
package pricefeed

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/jumpfinance/jumpdefi/internal/events"
)

// Poller refreshes a Store on a fixed interval and announces each result on
// the event bus.
type Poller struct {
	client   *Client
	store    *Store
	bus      *events.Bus
	interval time.Duration
	logger   *zap.Logger
}

// NewPoller creates a poller. bus may be nil.
func NewPoller(client *Client, store *Store, bus *events.Bus, interval time.Duration, logger *zap.Logger) *Poller {
	return &Poller{
		client:   client,
		store:    store,
		bus:      bus,
		interval: interval,
		logger:   logger.Named("price_poller"),
	}
}

// Run refreshes immediately and then every interval until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("Price polling started", zap.Duration("interval", p.interval))
	p.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Price polling stopped")
			return nil
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	prices, dropped, err := p.store.refresh(ctx, p.client.fetch)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		p.publish(events.RefreshFailedEvent{
			BaseEvent: events.NewBase(events.RefreshFailed),
			Source:    "prices",
			Err:       err,
		})
		return
	}

	p.logger.Debug("Prices refreshed", zap.Int("rows", len(prices)), zap.Int("dropped", dropped))
	p.publish(events.PricesUpdatedEvent{
		BaseEvent: events.NewBase(events.PricesUpdated),
		Prices:    prices,
		Dropped:   dropped,
	})
}

func (p *Poller) publish(e events.Event) {
	if p.bus == nil {
		return
	}
	if err := p.bus.Publish(e); err != nil {
		p.logger.Warn("Event not published", zap.String("event_type", string(e.Type())), zap.Error(err))
	}
}
