package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jumpfinance/jumpdefi/internal/types"
)

func TestBusDeliversAsync(t *testing.T) {
	bus := NewBus(zap.NewNop(), 8)
	defer bus.Shutdown(context.Background())

	got := make(chan PricesUpdatedEvent, 1)
	bus.SubscribeFunc(PricesUpdated, func(_ context.Context, e Event) error {
		got <- e.(PricesUpdatedEvent)
		return nil
	})

	prices := types.PriceTable{{Contract: "jumptoken.jumpfinance.near", Price: "0.0069"}}
	require.NoError(t, bus.Publish(PricesUpdatedEvent{BaseEvent: NewBase(PricesUpdated), Prices: prices}))

	select {
	case e := <-got:
		assert.Equal(t, prices, e.Prices)
		assert.Equal(t, PricesUpdated, e.Type())
		assert.False(t, e.Timestamp().IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBusPublishSyncJoinsErrors(t *testing.T) {
	bus := NewBus(zap.NewNop(), 1)
	defer bus.Shutdown(context.Background())

	errA := errors.New("a failed")
	errB := errors.New("b failed")
	bus.SubscribeFunc(RefreshFailed, func(context.Context, Event) error { return errA })
	bus.SubscribeFunc(RefreshFailed, func(context.Context, Event) error { return errB })
	bus.SubscribeFunc(RefreshFailed, func(context.Context, Event) error { return nil })

	err := bus.PublishSync(context.Background(), RefreshFailedEvent{BaseEvent: NewBase(RefreshFailed), Source: "prices"})
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)

	assert.NoError(t, bus.PublishSync(context.Background(), NewBase(SnapshotStored)))
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus(zap.NewNop(), 1)
	defer bus.Shutdown(context.Background())

	calls := 0
	sub := bus.SubscribeFunc(VaultsRefreshed, func(context.Context, Event) error {
		calls++
		return nil
	})
	require.Equal(t, 1, bus.Stats().HandlersPerType[VaultsRefreshed])

	sub.Unsubscribe()
	require.NoError(t, bus.PublishSync(context.Background(), NewBase(VaultsRefreshed)))
	assert.Zero(t, calls)
	assert.NotContains(t, bus.Stats().HandlersPerType, VaultsRefreshed)
}

func TestBusPublishAfterShutdown(t *testing.T) {
	bus := NewBus(zap.NewNop(), 4)
	require.NoError(t, bus.Shutdown(context.Background()))
	assert.ErrorIs(t, bus.Publish(NewBase(APRUnavailable)), ErrBusClosed)
}

func TestBusShutdownDrainsQueue(t *testing.T) {
	bus := NewBus(zap.NewNop(), 16)

	var mu sync.Mutex
	seen := 0
	bus.SubscribeFunc(SnapshotStored, func(context.Context, Event) error {
		mu.Lock()
		seen++
		mu.Unlock()
		return nil
	})

	for i := 0; i < 10; i++ {
		require.NoError(t, bus.Publish(SnapshotStoredEvent{BaseEvent: NewBase(SnapshotStored), Kind: "apr", Count: i}))
	}
	require.NoError(t, bus.Shutdown(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 10, seen)
}
