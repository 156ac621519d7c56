package repository_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/glizzus/herald/internal/repository"
	"github.com/glizzus/herald/internal/util"
	"github.com/google/go-cmp/cmp"
)

var base = time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)

func seedEvents() []repository.ScheduledEvent {
	return []repository.ScheduledEvent{
		{
			EventID:       "once0001",
			GuildID:       "guild-1",
			ChannelID:     "channel-1",
			CreatorID:     "42",
			EventType:     repository.EventTypeReminder,
			Payload:       json.RawMessage(`{"message": "first"}`),
			ScheduleType:  repository.ScheduleOnce,
			ExecuteAt:     util.Ptr(base.Add(-time.Minute)),
			NextExecuteAt: util.Ptr(base.Add(-time.Minute)),
			Status:        repository.StatusActive,
		},
		{
			EventID:       "once0002",
			GuildID:       "guild-1",
			CreatorID:     "7",
			EventType:     repository.EventTypeReminder,
			Payload:       json.RawMessage(`{"message": "second", "sendDm": true}`),
			ScheduleType:  repository.ScheduleOnce,
			ExecuteAt:     util.Ptr(base.Add(time.Hour)),
			NextExecuteAt: util.Ptr(base.Add(time.Hour)),
			Status:        repository.StatusActive,
		},
		{
			EventID:       "cron0001",
			GuildID:       "guild-1",
			ChannelID:     "channel-1",
			CreatorID:     "42",
			EventType:     repository.EventTypeHype,
			Payload:       json.RawMessage(`{"message": "friday!"}`),
			ScheduleType:  repository.ScheduleCron,
			CronSchedule:  "0 17 * * 5",
			Timezone:      "Europe/Berlin",
			NextExecuteAt: util.Ptr(base.Add(30 * time.Minute)),
			MaxExecutions: util.Ptr(4),
			Status:        repository.StatusActive,
			Metadata:      map[string]any{"source": "test"},
		},
		{
			EventID:      "done0001",
			GuildID:      "guild-2",
			ChannelID:    "channel-9",
			CreatorID:    "42",
			EventType:    repository.EventTypeReminder,
			Payload:      json.RawMessage(`{"message": "old"}`),
			ScheduleType: repository.ScheduleOnce,
			ExecuteAt:    util.Ptr(base.Add(-time.Hour)),
			Status:       repository.StatusCompleted,
		},
	}
}

func eventIDs(events []repository.ScheduledEvent) []string {
	var ids []string
	for _, ev := range events {
		ids = append(ids, ev.EventID)
	}
	return ids
}

// testEventStore runs the behaviour every EventStore implementation must share.
func testEventStore(t *testing.T, store repository.EventStore) {
	ctx := t.Context()

	for _, ev := range seedEvents() {
		if err := store.Create(ctx, ev); err != nil {
			t.Fatalf("failed to create event %s: %v", ev.EventID, err)
		}
	}

	t.Run("Creating a duplicate ID fails", func(t *testing.T) {
		if err := store.Create(ctx, seedEvents()[0]); err == nil {
			t.Error("expected an error for a duplicate event ID")
		}
	})

	t.Run("FindOne round-trips every field", func(t *testing.T) {
		want := seedEvents()[2]
		got, err := store.FindOne(ctx, repository.EventFilter{EventID: want.EventID})
		if err != nil {
			t.Fatalf("failed to find event: %v", err)
		}

		ignore := cmp.FilterPath(func(p cmp.Path) bool {
			name := p.Last().String()
			return name == ".CreatedAt" || name == ".UpdatedAt" || name == ".Payload"
		}, cmp.Ignore())
		if diff := cmp.Diff(want, got, ignore, cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })); diff != "" {
			t.Errorf("event mismatch (-want +got):\n%s", diff)
		}

		var payload map[string]any
		if err := json.Unmarshal(got.Payload, &payload); err != nil {
			t.Fatalf("stored payload is not JSON: %v", err)
		}
		if payload["message"] != "friday!" {
			t.Errorf("unexpected payload %s", got.Payload)
		}
		if got.CreatedAt.IsZero() {
			t.Error("expected CreatedAt to be set")
		}
	})

	t.Run("An empty channel is kept empty", func(t *testing.T) {
		got, err := store.FindOne(ctx, repository.EventFilter{EventID: "once0002"})
		if err != nil {
			t.Fatalf("failed to find event: %v", err)
		}
		if got.ChannelID != "" || got.CronSchedule != "" {
			t.Errorf("expected empty channel and cron, got %q and %q", got.ChannelID, got.CronSchedule)
		}
	})

	t.Run("FindOne reports a missing event", func(t *testing.T) {
		_, err := store.FindOne(ctx, repository.EventFilter{EventID: "once0001", CreatorID: "7"})
		if !errors.Is(err, repository.ErrEventNotFound) {
			t.Errorf("expected ErrEventNotFound, got %v", err)
		}
	})

	findAllTests := []struct {
		name   string
		filter repository.EventFilter
		limit  int
		order  repository.Order
		want   []string
	}{
		{
			name:   "Due one-off events in execution order",
			filter: repository.EventFilter{Statuses: []repository.Status{repository.StatusActive}, ScheduleTypes: []repository.ScheduleType{repository.ScheduleOnce}, ExecuteAtOrBefore: util.Ptr(base)},
			order:  repository.OrderExecuteAtAsc,
			want:   []string{"once0001"},
		},
		{
			name:   "A guild's active events by next execution",
			filter: repository.EventFilter{GuildID: "guild-1", Statuses: []repository.Status{repository.StatusActive}},
			order:  repository.OrderNextExecuteAtAsc,
			want:   []string{"once0001", "cron0001", "once0002"},
		},
		{
			name:   "Limited to one",
			filter: repository.EventFilter{GuildID: "guild-1"},
			limit:  1,
			order:  repository.OrderNextExecuteAtAsc,
			want:   []string{"once0001"},
		},
		{
			name:   "Recurring events only",
			filter: repository.EventFilter{ScheduleTypes: []repository.ScheduleType{repository.ScheduleRecurring, repository.ScheduleCron}},
			want:   []string{"cron0001"},
		},
		{
			name:   "By creator and type",
			filter: repository.EventFilter{CreatorID: "42", EventType: repository.EventTypeReminder},
			order:  repository.OrderExecuteAtAsc,
			want:   []string{"done0001", "once0001"},
		},
	}
	for _, tt := range findAllTests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.FindAll(ctx, tt.filter, tt.limit, tt.order)
			if err != nil {
				t.Fatalf("failed to find events: %v", err)
			}
			if diff := cmp.Diff(tt.want, eventIDs(got)); diff != "" {
				t.Errorf("events mismatch (-want +got):\n%s", diff)
			}
		})
	}

	t.Run("Update only touches matching events", func(t *testing.T) {
		count := 1
		next := base.Add(24 * time.Hour)
		n, err := store.Update(ctx, repository.EventPatch{
			ExecutionCount: &count,
			LastExecutedAt: util.Ptr(base),
			NextExecuteAt:  &next,
		}, repository.EventFilter{EventID: "cron0001", Statuses: []repository.Status{repository.StatusActive}})
		if err != nil {
			t.Fatalf("failed to update event: %v", err)
		}
		if n != 1 {
			t.Fatalf("expected 1 updated event, got %d", n)
		}

		got, err := store.FindOne(ctx, repository.EventFilter{EventID: "cron0001"})
		if err != nil {
			t.Fatalf("failed to find event: %v", err)
		}
		if got.ExecutionCount != 1 || got.LastExecutedAt == nil || !got.NextExecuteAt.Equal(next) {
			t.Errorf("update not applied: %+v", got)
		}
		if got.Status != repository.StatusActive {
			t.Errorf("expected status to stay active, got %s", got.Status)
		}
	})

	t.Run("Update guarded on status skips terminal events", func(t *testing.T) {
		failed := repository.StatusFailed
		n, err := store.Update(ctx, repository.EventPatch{
			Status:   &failed,
			Metadata: map[string]any{"failureReason": "late"},
		}, repository.EventFilter{EventID: "done0001", Statuses: []repository.Status{repository.StatusActive}})
		if err != nil {
			t.Fatalf("failed to update event: %v", err)
		}
		if n != 0 {
			t.Errorf("expected no updated events, got %d", n)
		}
	})

	t.Run("Update replaces metadata", func(t *testing.T) {
		failed := repository.StatusFailed
		if _, err := store.Update(ctx, repository.EventPatch{
			Status:   &failed,
			Metadata: map[string]any{"failureReason": "boom"},
		}, repository.EventFilter{EventID: "once0002"}); err != nil {
			t.Fatalf("failed to update event: %v", err)
		}

		got, err := store.FindOne(ctx, repository.EventFilter{EventID: "once0002"})
		if err != nil {
			t.Fatalf("failed to find event: %v", err)
		}
		if diff := cmp.Diff(map[string]any{"failureReason": "boom"}, got.Metadata); diff != "" {
			t.Errorf("metadata mismatch (-want +got):\n%s", diff)
		}
		if got.Status != repository.StatusFailed {
			t.Errorf("expected status failed, got %s", got.Status)
		}
	})

	t.Run("Update without an event ID is refused", func(t *testing.T) {
		cancelled := repository.StatusCancelled
		n, err := store.Update(ctx, repository.EventPatch{Status: &cancelled}, repository.EventFilter{
			Statuses: []repository.Status{repository.StatusActive},
		})
		if !errors.Is(err, repository.ErrUnscopedUpdate) {
			t.Fatalf("expected ErrUnscopedUpdate, got %v", err)
		}
		if n != 0 {
			t.Errorf("expected no updated events, got %d", n)
		}

		active, err := store.FindAll(ctx, repository.EventFilter{Statuses: []repository.Status{repository.StatusActive}}, 0, repository.OrderNone)
		if err != nil {
			t.Fatalf("failed to find events: %v", err)
		}
		if len(active) == 0 {
			t.Error("expected active events to be left untouched")
		}
	})

	t.Run("An empty patch changes nothing", func(t *testing.T) {
		n, err := store.Update(ctx, repository.EventPatch{}, repository.EventFilter{})
		if err != nil {
			t.Fatalf("failed to update: %v", err)
		}
		if n != 0 {
			t.Errorf("expected no updated events, got %d", n)
		}
	})
}
