package datalayer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/glizzus/herald/internal/repository"
)

// ArchivedEvent is the JSON document written for an event that reached a terminal state.
type ArchivedEvent struct {
	EventID        string          `json:"eventId"`
	GuildID        string          `json:"guildId"`
	ChannelID      string          `json:"channelId,omitempty"`
	CreatorID      string          `json:"creatorId"`
	EventType      string          `json:"eventType"`
	Payload        json.RawMessage `json:"payload"`
	ScheduleType   string          `json:"scheduleType"`
	ExecuteAt      *time.Time      `json:"executeAt,omitempty"`
	CronSchedule   string          `json:"cronSchedule,omitempty"`
	Timezone       string          `json:"timezone"`
	Status         string          `json:"status"`
	LastExecutedAt *time.Time      `json:"lastExecutedAt,omitempty"`
	ExecutionCount int             `json:"executionCount"`
	MaxExecutions  *int            `json:"maxExecutions,omitempty"`
	Metadata       map[string]any  `json:"metadata,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	ArchivedAt     time.Time       `json:"archivedAt"`
}

// BlobArchiver writes terminal event snapshots to blob storage,
// keyed by guild and event ID.
type BlobArchiver struct {
	storage BlobStorage
	prefix  string
	now     func() time.Time
}

func NewBlobArchiver(storage BlobStorage, prefix string) *BlobArchiver {
	if prefix == "" {
		prefix = "events"
	}
	return &BlobArchiver{storage: storage, prefix: prefix, now: time.Now}
}

func (a *BlobArchiver) Key(event repository.ScheduledEvent) string {
	return path.Join(a.prefix, event.GuildID, event.EventID+".json")
}

func (a *BlobArchiver) Archive(ctx context.Context, event repository.ScheduledEvent) error {
	payload := event.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	doc := ArchivedEvent{
		EventID:        event.EventID,
		GuildID:        event.GuildID,
		ChannelID:      event.ChannelID,
		CreatorID:      event.CreatorID,
		EventType:      string(event.EventType),
		Payload:        payload,
		ScheduleType:   string(event.ScheduleType),
		ExecuteAt:      event.ExecuteAt,
		CronSchedule:   event.CronSchedule,
		Timezone:       event.Timezone,
		Status:         string(event.Status),
		LastExecutedAt: event.LastExecutedAt,
		ExecutionCount: event.ExecutionCount,
		MaxExecutions:  event.MaxExecutions,
		Metadata:       event.Metadata,
		CreatedAt:      event.CreatedAt,
		ArchivedAt:     a.now().UTC(),
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode event %s for archive: %w", event.EventID, err)
	}

	err = a.storage.Put(ctx, a.Key(event), bytes.NewReader(data), PutOptions{
		Size:        int64(len(data)),
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("failed to archive event %s: %w", event.EventID, err)
	}
	return nil
}
