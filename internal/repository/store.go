package repository

import (
	"context"
	"errors"
	"time"
)

var (
	ErrEventNotFound  = errors.New("scheduled event not found")
	ErrUnscopedUpdate = errors.New("update filter must name an event")
)

// EventFilter narrows a query. Zero-valued fields are ignored;
// all set fields must match.
type EventFilter struct {
	EventID       string
	GuildID       string
	CreatorID     string
	EventType     EventType
	Statuses      []Status
	ScheduleTypes []ScheduleType

	// ExecuteAtOrBefore matches events whose execute_at is not after the given instant.
	ExecuteAtOrBefore *time.Time
}

type Order int

const (
	OrderNone Order = iota
	OrderNextExecuteAtAsc
	OrderExecuteAtAsc
)

// EventPatch lists the columns to change. Nil fields are left untouched;
// a non-nil Metadata replaces the stored metadata.
type EventPatch struct {
	Status         *Status
	LastExecutedAt *time.Time
	NextExecuteAt  *time.Time
	ExecutionCount *int
	Metadata       map[string]any
}

func (p EventPatch) empty() bool {
	return p.Status == nil &&
		p.LastExecutedAt == nil &&
		p.NextExecuteAt == nil &&
		p.ExecutionCount == nil &&
		p.Metadata == nil
}

type EventCreator interface {
	Create(ctx context.Context, event ScheduledEvent) error
}

type EventFinder interface {
	FindOne(ctx context.Context, filter EventFilter) (ScheduledEvent, error)
	FindAll(ctx context.Context, filter EventFilter, limit int, order Order) ([]ScheduledEvent, error)
}

type EventUpdater interface {
	// Update applies the patch to the event matching the filter
	// and returns the number of events changed. The filter must set EventID.
	Update(ctx context.Context, patch EventPatch, filter EventFilter) (int64, error)
}

// EventStore is the persistence contract the scheduler relies on.
type EventStore interface {
	EventCreator
	EventFinder
	EventUpdater
}
