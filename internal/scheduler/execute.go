package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/glizzus/herald/internal/eventhandler"
	"github.com/glizzus/herald/internal/messaging"
	"github.com/glizzus/herald/internal/repository"
	"github.com/glizzus/herald/internal/timeparse"
)

// ProcessDueEvents executes every active one-off event whose time has come,
// one at a time and oldest first, up to the batch size. It returns the number
// of events executed.
func (s *Service) ProcessDueEvents(ctx context.Context) int {
	now := s.now()
	due, err := s.store.FindAll(ctx, repository.EventFilter{
		Statuses:          []repository.Status{repository.StatusActive},
		ScheduleTypes:     []repository.ScheduleType{repository.ScheduleOnce},
		ExecuteAtOrBefore: &now,
	}, s.batchSize, repository.OrderExecuteAtAsc)
	if err != nil {
		s.log.Error("failed to query due events", "error", err)
		return 0
	}

	executed := 0
	for _, event := range due {
		if ctx.Err() != nil || s.draining.Load() {
			break
		}
		slot := ""
		if event.ExecuteAt != nil {
			slot = event.ExecuteAt.UTC().Format(time.RFC3339)
		}
		if !s.claim(ctx, event.EventID, slot) {
			continue
		}
		s.ExecuteEvent(ctx, event)
		executed++
	}

	if executed > 0 {
		s.log.Debug("Processed due events", "found", len(due), "executed", executed)
	}
	return executed
}

// runRecurring executes a recurring event after its timer fires. The event is
// re-read so that a cancellation since the timer was armed is honoured.
func (s *Service) runRecurring(ctx context.Context, eventID string) {
	event, err := s.store.FindOne(ctx, repository.EventFilter{
		EventID:  eventID,
		Statuses: []repository.Status{repository.StatusActive},
	})
	if errors.Is(err, repository.ErrEventNotFound) {
		s.stopTimer(eventID)
		return
	}
	if err != nil {
		s.log.Error("failed to load recurring event", "eventID", eventID, "error", err)
		return
	}

	slot := s.now().UTC().Truncate(time.Minute).Format(time.RFC3339)
	if !s.claim(ctx, eventID, slot) {
		return
	}
	s.ExecuteEvent(ctx, event)
}

func (s *Service) claim(ctx context.Context, eventID, slot string) bool {
	ok, err := s.claimer.Claim(ctx, eventID, slot)
	if err != nil {
		s.log.Error("failed to claim event", "eventID", eventID, "slot", slot, "error", err)
		return false
	}
	if !ok {
		s.log.Debug("Event already claimed", "eventID", eventID, "slot", slot)
	}
	return ok
}

// ExecuteEvent runs the event's handler and records the outcome. Failures are
// recorded on the event and logged; nothing is returned to the caller.
func (s *Service) ExecuteEvent(ctx context.Context, event repository.ScheduledEvent) {
	runID, err := s.runIDs.Next()
	if err != nil {
		runID = "unknown"
	}
	log := s.log.With("eventID", event.EventID, "eventType", event.EventType, "runID", runID)

	h, ok := s.handler(event.EventType)
	if !ok {
		log.Error("no handler registered for event type")
		s.markFailed(ctx, log, event, "no handler registered for event type "+string(event.EventType))
		return
	}

	payload, err := eventhandler.DecodePayload(event.EventType, event.Payload)
	if err != nil {
		log.Error("failed to decode event payload", "error", err)
		s.markFailed(ctx, log, event, err.Error())
		return
	}

	direct := event.ChannelID == ""
	if dm, ok := payload.(eventhandler.DirectMessager); ok && dm.DirectMessage() {
		direct = true
	}

	ec := eventhandler.ExecutionContext{
		Event:         event,
		Target:        s.resolveTarget(ctx, log, event, direct),
		Payload:       payload,
		DirectMessage: direct,
	}

	log.Debug("Executing event")
	result := s.invoke(ctx, h, ec)

	if !result.Success {
		log.Error("event execution failed", "message", result.Message, "error", result.Err)
		reason := result.Message
		if result.Err != nil {
			reason = fmt.Sprintf("%s: %v", result.Message, result.Err)
		}
		s.markFailed(ctx, log, event, reason)
		return
	}

	log.Info("Event executed", "message", result.Message)

	count := event.ExecutionCount + 1
	if !result.ShouldReschedule || event.ScheduleType == repository.ScheduleOnce {
		s.markCompleted(ctx, log, event, count)
		return
	}
	if event.MaxExecutions != nil && count >= *event.MaxExecutions {
		log.Info("Event reached its execution limit", "executionCount", count)
		s.markCompleted(ctx, log, event, count)
		return
	}
	s.reschedule(ctx, log, event, count)
}

// resolveTarget returns nil when the target cannot be reached; handlers decide what that means.
func (s *Service) resolveTarget(ctx context.Context, log *slog.Logger, event repository.ScheduledEvent, direct bool) messaging.Channel {
	var (
		target messaging.Channel
		err    error
	)
	if direct {
		target, err = s.directory.DirectMessage(ctx, event.CreatorID)
	} else {
		target, err = s.directory.TextChannel(ctx, event.ChannelID)
	}
	if err != nil {
		log.Warn("could not resolve delivery target", "channelID", event.ChannelID, "direct", direct, "error", err)
		return nil
	}
	return target
}

func (s *Service) invoke(ctx context.Context, h eventhandler.EventHandler, ec eventhandler.ExecutionContext) (result eventhandler.Result) {
	defer func() {
		if r := recover(); r != nil {
			result = eventhandler.Failed("handler panicked", fmt.Errorf("%v", r))
		}
	}()
	return h.Execute(ctx, ec)
}

func (s *Service) markFailed(ctx context.Context, log *slog.Logger, event repository.ScheduledEvent, reason string) {
	now := s.now().UTC()
	status := repository.StatusFailed

	metadata := make(map[string]any, len(event.Metadata)+2)
	for k, v := range event.Metadata {
		metadata[k] = v
	}
	metadata["failureReason"] = reason
	metadata["failedAt"] = now.Format(time.RFC3339)

	event.Status = status
	event.Metadata = metadata
	s.finish(ctx, log, event, repository.EventPatch{Status: &status, Metadata: metadata})
}

func (s *Service) markCompleted(ctx context.Context, log *slog.Logger, event repository.ScheduledEvent, count int) {
	now := s.now().UTC()
	status := repository.StatusCompleted

	event.Status = status
	event.ExecutionCount = count
	event.LastExecutedAt = &now
	s.finish(ctx, log, event, repository.EventPatch{
		Status:         &status,
		ExecutionCount: &count,
		LastExecutedAt: &now,
	})
}

// finish moves the event to a terminal status, then disarms and archives it.
func (s *Service) finish(ctx context.Context, log *slog.Logger, event repository.ScheduledEvent, patch repository.EventPatch) {
	if !s.applyUpdate(ctx, log, event.EventID, patch) {
		return
	}
	s.stopTimer(event.EventID)
	s.archive(ctx, event)
}

func (s *Service) reschedule(ctx context.Context, log *slog.Logger, event repository.ScheduledEvent, count int) {
	now := s.now().UTC()
	patch := repository.EventPatch{
		ExecutionCount: &count,
		LastExecutedAt: &now,
	}
	if next, ok := timeparse.NextCronExecution(event.CronSchedule, now.In(event.Location())); ok {
		next = next.UTC()
		patch.NextExecuteAt = &next
	} else {
		log.Warn("next execution time unavailable for cron schedule", "cronSchedule", event.CronSchedule)
	}
	if s.applyUpdate(ctx, log, event.EventID, patch) {
		log.Debug("Event rescheduled", "executionCount", count, "nextExecuteAt", patch.NextExecuteAt)
	}
}

// applyUpdate only touches the event while it is still active, so a
// cancellation that landed during execution is not overwritten.
func (s *Service) applyUpdate(ctx context.Context, log *slog.Logger, eventID string, patch repository.EventPatch) bool {
	n, err := s.store.Update(ctx, patch, repository.EventFilter{
		EventID:  eventID,
		Statuses: []repository.Status{repository.StatusActive},
	})
	if err != nil {
		log.Error("failed to update event", "error", err)
		return false
	}
	if n == 0 {
		log.Debug("Event no longer active, update skipped")
		return false
	}
	return true
}

func (s *Service) archive(ctx context.Context, event repository.ScheduledEvent) {
	if s.archiver == nil {
		return
	}
	if err := s.archiver.Archive(ctx, event); err != nil {
		s.log.Warn("failed to archive event", "eventID", event.EventID, "error", err)
	}
}
