package eventhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/glizzus/herald/internal/messaging"
	"github.com/glizzus/herald/internal/repository"
)

const (
	MaxReminderLength     = 500
	reminderDisplayLength = 50
	invalidReminderText   = "(invalid reminder)"
)

var ErrNoTarget = errors.New("channel not found or not accessible")

type ReminderHandler struct{}

func NewReminderHandler() *ReminderHandler {
	return &ReminderHandler{}
}

func (h *ReminderHandler) Type() repository.EventType {
	return repository.EventTypeReminder
}

func (h *ReminderHandler) Execute(ctx context.Context, ec ExecutionContext) Result {
	if ec.Target == nil {
		return Failed(ErrNoTarget.Error(), ErrNoTarget)
	}

	payload, err := reminderPayload(ec)
	if err != nil {
		return Failed("invalid reminder payload", err)
	}

	msg := buildReminderMessage(payload, ec.Event.CreatorID, ec.DirectMessage || payload.SendDM)
	if err := ec.Target.Send(ctx, msg); err != nil {
		return Failed("failed to send reminder message", err)
	}
	return Result{Success: true, ShouldReschedule: false}
}

func reminderPayload(ec ExecutionContext) (ReminderPayload, error) {
	if p, ok := ec.Payload.(ReminderPayload); ok {
		return p, nil
	}
	var p ReminderPayload
	if err := json.Unmarshal(ec.Event.Payload, &p); err != nil {
		return ReminderPayload{}, err
	}
	return p, nil
}

// buildReminderMessage mentions the creator only for channel delivery;
// a DM already reaches the right person.
func buildReminderMessage(p ReminderPayload, creatorID string, directMessage bool) messaging.Message {
	content := "⏰ **Reminder:** " + p.Message
	if p.MentionUser && !directMessage && creatorID != "" {
		return messaging.Message{
			Content:        fmt.Sprintf("<@%s> %s", creatorID, content),
			MentionUserIDs: []string{creatorID},
		}
	}
	return messaging.Message{Content: content}
}

func (h *ReminderHandler) Validate(payload json.RawMessage) error {
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil || fields == nil {
		return errors.New("reminder details could not be read")
	}

	raw, ok := fields["message"]
	if !ok {
		return errors.New("a reminder message is required")
	}
	message, ok := raw.(string)
	if !ok {
		return errors.New("the reminder message must be text")
	}
	if strings.TrimSpace(message) == "" {
		return errors.New("the reminder message cannot be empty")
	}
	if utf8.RuneCountInString(message) > MaxReminderLength {
		return fmt.Errorf("message must be under %d characters", MaxReminderLength)
	}
	return nil
}

func (h *ReminderHandler) FormatDisplay(event repository.ScheduledEvent) string {
	var p ReminderPayload
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		return invalidReminderText
	}

	message := p.Message
	if utf8.RuneCountInString(message) > reminderDisplayLength {
		message = string([]rune(message)[:reminderDisplayLength]) + "..."
	}
	return `"` + message + `"`
}

var (
	_ EventHandler = (*ReminderHandler)(nil)
	_ Validator    = (*ReminderHandler)(nil)
	_ Displayer    = (*ReminderHandler)(nil)
)
