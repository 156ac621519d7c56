package eventhandler

import (
	"context"
	"encoding/json"

	"github.com/glizzus/herald/internal/messaging"
	"github.com/glizzus/herald/internal/repository"
)

// ExecutionContext is everything a handler receives when its event fires.
// Target is nil when no delivery target could be resolved.
type ExecutionContext struct {
	Event         repository.ScheduledEvent
	Target        messaging.Channel
	Payload       Payload
	DirectMessage bool
}

// Result reports the outcome of an execution. ShouldReschedule keeps a
// recurring event active after a successful run.
type Result struct {
	Success          bool
	Message          string
	ShouldReschedule bool
	Err              error
}

func Failed(message string, err error) Result {
	return Result{Success: false, Message: message, Err: err}
}

type EventHandler interface {
	Type() repository.EventType
	Execute(ctx context.Context, ec ExecutionContext) Result
}

// Validator is implemented by handlers that check payloads before an event is stored.
// The returned error's message is shown to the user.
type Validator interface {
	Validate(payload json.RawMessage) error
}

// Displayer is implemented by handlers that can summarise an event for listings.
type Displayer interface {
	FormatDisplay(event repository.ScheduledEvent) string
}
