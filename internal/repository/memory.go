package repository

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"
)

// MemoryEventRepository keeps events in process memory.
// It backs tests and the dry-run CLI.
type MemoryEventRepository struct {
	mu     sync.RWMutex
	events map[string]ScheduledEvent
	now    func() time.Time
}

func NewMemoryEventRepository() *MemoryEventRepository {
	return &MemoryEventRepository{
		events: make(map[string]ScheduledEvent),
		now:    time.Now,
	}
}

func (r *MemoryEventRepository) Create(ctx context.Context, event ScheduledEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.events[event.EventID]; exists {
		return fmt.Errorf("scheduled event %s already exists", event.EventID)
	}
	now := r.now()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now
	if event.Timezone == "" {
		event.Timezone = "UTC"
	}
	r.events[event.EventID] = cloneEvent(event)
	return nil
}

func (r *MemoryEventRepository) FindOne(ctx context.Context, filter EventFilter) (ScheduledEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, event := range r.events {
		if filter.matches(event) {
			return cloneEvent(event), nil
		}
	}
	return ScheduledEvent{}, ErrEventNotFound
}

func (r *MemoryEventRepository) FindAll(ctx context.Context, filter EventFilter, limit int, order Order) ([]ScheduledEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var events []ScheduledEvent
	for _, event := range r.events {
		if filter.matches(event) {
			events = append(events, cloneEvent(event))
		}
	}

	switch order {
	case OrderNextExecuteAtAsc:
		slices.SortFunc(events, func(a, b ScheduledEvent) int {
			return compareNullableTimes(a.NextExecuteAt, b.NextExecuteAt, a.CreatedAt, b.CreatedAt)
		})
	case OrderExecuteAtAsc:
		slices.SortFunc(events, func(a, b ScheduledEvent) int {
			return compareNullableTimes(a.ExecuteAt, b.ExecuteAt, a.CreatedAt, b.CreatedAt)
		})
	}

	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (r *MemoryEventRepository) Update(ctx context.Context, patch EventPatch, filter EventFilter) (int64, error) {
	if patch.empty() {
		return 0, nil
	}
	if filter.EventID == "" {
		return 0, ErrUnscopedUpdate
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var updated int64
	for id, event := range r.events {
		if !filter.matches(event) {
			continue
		}
		if patch.Status != nil {
			event.Status = *patch.Status
		}
		if patch.LastExecutedAt != nil {
			t := *patch.LastExecutedAt
			event.LastExecutedAt = &t
		}
		if patch.NextExecuteAt != nil {
			t := *patch.NextExecuteAt
			event.NextExecuteAt = &t
		}
		if patch.ExecutionCount != nil {
			event.ExecutionCount = *patch.ExecutionCount
		}
		if patch.Metadata != nil {
			event.Metadata = maps.Clone(patch.Metadata)
		}
		event.UpdatedAt = r.now()
		r.events[id] = event
		updated++
	}
	return updated, nil
}

func (f EventFilter) matches(event ScheduledEvent) bool {
	if f.EventID != "" && event.EventID != f.EventID {
		return false
	}
	if f.GuildID != "" && event.GuildID != f.GuildID {
		return false
	}
	if f.CreatorID != "" && event.CreatorID != f.CreatorID {
		return false
	}
	if f.EventType != "" && event.EventType != f.EventType {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, event.Status) {
		return false
	}
	if len(f.ScheduleTypes) > 0 && !slices.Contains(f.ScheduleTypes, event.ScheduleType) {
		return false
	}
	if f.ExecuteAtOrBefore != nil {
		if event.ExecuteAt == nil || event.ExecuteAt.After(*f.ExecuteAtOrBefore) {
			return false
		}
	}
	return true
}

// compareNullableTimes orders nil after any set time, then falls back to creation time.
func compareNullableTimes(a, b *time.Time, createdA, createdB time.Time) int {
	switch {
	case a == nil && b == nil:
	case a == nil:
		return 1
	case b == nil:
		return -1
	default:
		if c := a.Compare(*b); c != 0 {
			return c
		}
	}
	return createdA.Compare(createdB)
}

func cloneEvent(event ScheduledEvent) ScheduledEvent {
	event.Payload = slices.Clone(event.Payload)
	event.Metadata = maps.Clone(event.Metadata)
	if event.ExecuteAt != nil {
		t := *event.ExecuteAt
		event.ExecuteAt = &t
	}
	if event.LastExecutedAt != nil {
		t := *event.LastExecutedAt
		event.LastExecutedAt = &t
	}
	if event.NextExecuteAt != nil {
		t := *event.NextExecuteAt
		event.NextExecuteAt = &t
	}
	if event.MaxExecutions != nil {
		n := *event.MaxExecutions
		event.MaxExecutions = &n
	}
	return event
}

var _ EventStore = (*MemoryEventRepository)(nil)
