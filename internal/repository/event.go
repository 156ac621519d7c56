package repository

import (
	"encoding/json"
	"time"
)

// EventType selects the handler responsible for an event.
type EventType string

const (
	EventTypeReminder EventType = "reminder"
	EventTypeBirthday EventType = "birthday"
	EventTypeHype     EventType = "hype"
	EventTypeTips     EventType = "tips"
)

// EventTypes is the closed set of event types the scheduler knows about.
var EventTypes = []EventType{
	EventTypeReminder,
	EventTypeBirthday,
	EventTypeHype,
	EventTypeTips,
}

func (t EventType) Valid() bool {
	for _, known := range EventTypes {
		if t == known {
			return true
		}
	}
	return false
}

type ScheduleType string

const (
	ScheduleOnce      ScheduleType = "once"
	ScheduleRecurring ScheduleType = "recurring"
	ScheduleCron      ScheduleType = "cron"
)

// Repeats reports whether the schedule type is driven by a cron schedule.
func (s ScheduleType) Repeats() bool {
	return s == ScheduleRecurring || s == ScheduleCron
}

func (s ScheduleType) Valid() bool {
	return s == ScheduleOnce || s.Repeats()
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

// ScheduledEvent is the persisted unit of deferred or recurring work.
//
// An empty ChannelID means the event is delivered by direct message.
// An empty CronSchedule means the event has no recurrence.
type ScheduledEvent struct {
	EventID   string
	GuildID   string
	ChannelID string
	CreatorID string

	EventType EventType
	Payload   json.RawMessage

	ScheduleType ScheduleType
	ExecuteAt    *time.Time
	CronSchedule string
	Timezone     string

	Status         Status
	LastExecutedAt *time.Time
	NextExecuteAt  *time.Time
	ExecutionCount int
	MaxExecutions  *int
	Metadata       map[string]any

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Location resolves the event's timezone, falling back to UTC.
func (e ScheduledEvent) Location() *time.Location {
	if e.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
