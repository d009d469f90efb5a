// internal/events/types.go
package events

import (
	"time"

	"github.com/jumpfinance/jumpdefi/internal/types"
)

// EventType represents the type of event.
type EventType string

const (
	PricesUpdated   EventType = "prices.updated"
	VaultsRefreshed EventType = "vaults.refreshed"
	APRUnavailable  EventType = "apr.unavailable"
	RefreshFailed   EventType = "refresh.failed"
	SnapshotStored  EventType = "snapshot.stored"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType
	EventTime time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.EventTime }

// NewBase stamps an event of type t with the current time.
func NewBase(t EventType) BaseEvent {
	return BaseEvent{EventType: t, EventTime: time.Now().UTC()}
}

// PricesUpdatedEvent carries a fresh price table. Dropped counts feed rows
// that failed validation.
type PricesUpdatedEvent struct {
	BaseEvent
	Prices  types.PriceTable
	Dropped int
}

// VaultsRefreshedEvent carries the vault list of one refresh cycle.
type VaultsRefreshedEvent struct {
	BaseEvent
	Vaults  []types.VaultParameters
	Skipped int
}

// APRUnavailableEvent is emitted when a vault's APR cannot be computed from
// the current prices.
type APRUnavailableEvent struct {
	BaseEvent
	Contract string
	VaultID  int64
	Missing  []string // token ids without a usable price
}

// RefreshFailedEvent reports a failed poll of the feed or the chain.
type RefreshFailedEvent struct {
	BaseEvent
	Source string // "prices" or "vaults"
	Err    error
}

// SnapshotStoredEvent reports a persisted snapshot batch.
type SnapshotStoredEvent struct {
	BaseEvent
	Kind  string
	Count int
}
