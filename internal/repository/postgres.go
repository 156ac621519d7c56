package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresEventRepository struct {
	db *pgxpool.Pool
}

func NewPostgresEventRepository(db *pgxpool.Pool) *PostgresEventRepository {
	return &PostgresEventRepository{db: db}
}

const eventColumns = `
	event_id, guild_id, COALESCE(channel_id, ''), creator_id,
	event_type, payload,
	schedule_type, execute_at, COALESCE(cron_schedule, ''), timezone,
	status, last_executed_at, next_execute_at, execution_count, max_executions, metadata,
	created_at, updated_at`

func EventToRowParams(event ScheduledEvent) []any {
	metadata := event.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	timezone := event.Timezone
	if timezone == "" {
		timezone = "UTC"
	}
	payload := []byte(event.Payload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	return []any{
		event.EventID,
		event.GuildID,
		event.ChannelID,
		event.CreatorID,
		string(event.EventType),
		payload,
		string(event.ScheduleType),
		event.ExecuteAt,
		event.CronSchedule,
		timezone,
		string(event.Status),
		event.LastExecutedAt,
		event.NextExecuteAt,
		event.ExecutionCount,
		event.MaxExecutions,
		metadata,
	}
}

func scanEvent(row pgx.Row) (ScheduledEvent, error) {
	var (
		event        ScheduledEvent
		eventType    string
		scheduleType string
		status       string
		payload      []byte
	)
	err := row.Scan(
		&event.EventID,
		&event.GuildID,
		&event.ChannelID,
		&event.CreatorID,
		&eventType,
		&payload,
		&scheduleType,
		&event.ExecuteAt,
		&event.CronSchedule,
		&event.Timezone,
		&status,
		&event.LastExecutedAt,
		&event.NextExecuteAt,
		&event.ExecutionCount,
		&event.MaxExecutions,
		&event.Metadata,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	if err != nil {
		return ScheduledEvent{}, err
	}
	event.EventType = EventType(eventType)
	event.ScheduleType = ScheduleType(scheduleType)
	event.Status = Status(status)
	event.Payload = payload
	return event, nil
}

func (r *PostgresEventRepository) Create(ctx context.Context, event ScheduledEvent) error {
	const query = `
	INSERT INTO scheduled_event (
		event_id, guild_id, channel_id, creator_id,
		event_type, payload,
		schedule_type, execute_at, cron_schedule, timezone,
		status, last_executed_at, next_execute_at, execution_count, max_executions, metadata
	)
	VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, NULLIF($9, ''), $10, $11, $12, $13, $14, $15, $16)
	`
	if _, err := r.db.Exec(ctx, query, EventToRowParams(event)...); err != nil {
		return fmt.Errorf("failed to insert scheduled event %s: %w", event.EventID, err)
	}
	return nil
}

func (r *PostgresEventRepository) FindOne(ctx context.Context, filter EventFilter) (ScheduledEvent, error) {
	where, args := buildWhere(filter, nil)
	query := "SELECT " + eventColumns + " FROM scheduled_event" + where + " LIMIT 1"

	event, err := scanEvent(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ScheduledEvent{}, ErrEventNotFound
		}
		return ScheduledEvent{}, fmt.Errorf("failed to find scheduled event: %w", err)
	}
	return event, nil
}

func (r *PostgresEventRepository) FindAll(ctx context.Context, filter EventFilter, limit int, order Order) ([]ScheduledEvent, error) {
	where, args := buildWhere(filter, nil)
	query := "SELECT " + eventColumns + " FROM scheduled_event" + where + orderClause(order)
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scheduled events: %w", err)
	}
	defer rows.Close()

	var events []ScheduledEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scheduled event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate scheduled events: %w", err)
	}
	return events, nil
}

func (r *PostgresEventRepository) Update(ctx context.Context, patch EventPatch, filter EventFilter) (int64, error) {
	if patch.empty() {
		return 0, nil
	}
	if filter.EventID == "" {
		return 0, ErrUnscopedUpdate
	}

	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.Status != nil {
		set("status", string(*patch.Status))
	}
	if patch.LastExecutedAt != nil {
		set("last_executed_at", *patch.LastExecutedAt)
	}
	if patch.NextExecuteAt != nil {
		set("next_execute_at", *patch.NextExecuteAt)
	}
	if patch.ExecutionCount != nil {
		set("execution_count", *patch.ExecutionCount)
	}
	if patch.Metadata != nil {
		set("metadata", patch.Metadata)
	}
	sets = append(sets, "updated_at = now()")

	where, args := buildWhere(filter, args)
	query := "UPDATE scheduled_event SET " + strings.Join(sets, ", ") + where

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update scheduled events: %w", err)
	}
	return tag.RowsAffected(), nil
}

func buildWhere(filter EventFilter, args []any) (string, []any) {
	var clauses []string
	where := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if filter.EventID != "" {
		where("event_id = $%d", filter.EventID)
	}
	if filter.GuildID != "" {
		where("guild_id = $%d", filter.GuildID)
	}
	if filter.CreatorID != "" {
		where("creator_id = $%d", filter.CreatorID)
	}
	if filter.EventType != "" {
		where("event_type = $%d", string(filter.EventType))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		where("status = ANY($%d)", statuses)
	}
	if len(filter.ScheduleTypes) > 0 {
		types := make([]string, len(filter.ScheduleTypes))
		for i, t := range filter.ScheduleTypes {
			types[i] = string(t)
		}
		where("schedule_type = ANY($%d)", types)
	}
	if filter.ExecuteAtOrBefore != nil {
		where("execute_at <= $%d", *filter.ExecuteAtOrBefore)
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func orderClause(order Order) string {
	switch order {
	case OrderNextExecuteAtAsc:
		return " ORDER BY next_execute_at ASC NULLS LAST, created_at ASC"
	case OrderExecuteAtAsc:
		return " ORDER BY execute_at ASC NULLS LAST, created_at ASC"
	default:
		return ""
	}
}

var _ EventStore = (*PostgresEventRepository)(nil)
