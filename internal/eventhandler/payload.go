package eventhandler

import (
	"encoding/json"
	"fmt"

	"github.com/glizzus/herald/internal/repository"
)

// Payload is the decoded, type-specific body of a scheduled event.
type Payload interface {
	EventType() repository.EventType
}

// DirectMessager is implemented by payloads that can request delivery by DM.
type DirectMessager interface {
	DirectMessage() bool
}

type ReminderPayload struct {
	Message     string `json:"message"`
	MentionUser bool   `json:"mentionUser,omitempty"`
	SendDM      bool   `json:"sendDm,omitempty"`
}

func (ReminderPayload) EventType() repository.EventType { return repository.EventTypeReminder }
func (p ReminderPayload) DirectMessage() bool            { return p.SendDM }

type BirthdayPayload struct {
	UserID  string `json:"userId"`
	Message string `json:"message,omitempty"`
}

func (BirthdayPayload) EventType() repository.EventType { return repository.EventTypeBirthday }

type HypePayload struct {
	Message string `json:"message"`
	RoleID  string `json:"roleId,omitempty"`
}

func (HypePayload) EventType() repository.EventType { return repository.EventTypeHype }

type TipsPayload struct {
	Category string `json:"category,omitempty"`
}

func (TipsPayload) EventType() repository.EventType { return repository.EventTypeTips }

// DecodePayload decodes raw into the payload type registered for eventType.
func DecodePayload(eventType repository.EventType, raw json.RawMessage) (Payload, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	switch eventType {
	case repository.EventTypeReminder:
		return decodeAs[ReminderPayload](eventType, raw)
	case repository.EventTypeBirthday:
		return decodeAs[BirthdayPayload](eventType, raw)
	case repository.EventTypeHype:
		return decodeAs[HypePayload](eventType, raw)
	case repository.EventTypeTips:
		return decodeAs[TipsPayload](eventType, raw)
	default:
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}
}

func decodeAs[T Payload](eventType repository.EventType, raw json.RawMessage) (Payload, error) {
	var p T
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("invalid %s payload: %w", eventType, err)
	}
	return p, nil
}

func EncodePayload(p Payload) (json.RawMessage, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", p.EventType(), err)
	}
	return raw, nil
}

var (
	_ DirectMessager = ReminderPayload{}
	_ Payload        = BirthdayPayload{}
	_ Payload        = HypePayload{}
	_ Payload        = TipsPayload{}
)
