package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/glizzus/herald/internal/eventhandler"
	"github.com/glizzus/herald/internal/messaging"
	"github.com/glizzus/herald/internal/repository"
)

var testNow = time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)

type fakeChannel struct {
	id string

	mu   sync.Mutex
	sent []messaging.Message
}

func (c *fakeChannel) ID() string { return c.id }

func (c *fakeChannel) Send(ctx context.Context, msg messaging.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

// fakeDirectory knows a fixed set of text channels and opens a DM for any user
// not listed in blockedDMs.
type fakeDirectory struct {
	channels   map[string]*fakeChannel
	blockedDMs map[string]bool
}

func newFakeDirectory(channelIDs ...string) *fakeDirectory {
	d := &fakeDirectory{
		channels:   make(map[string]*fakeChannel),
		blockedDMs: make(map[string]bool),
	}
	for _, id := range channelIDs {
		d.channels[id] = &fakeChannel{id: id}
	}
	return d
}

func (d *fakeDirectory) TextChannel(ctx context.Context, channelID string) (messaging.Channel, error) {
	c, ok := d.channels[channelID]
	if !ok {
		return nil, messaging.ErrChannelNotFound
	}
	return c, nil
}

func (d *fakeDirectory) DirectMessage(ctx context.Context, userID string) (messaging.Channel, error) {
	if d.blockedDMs[userID] {
		return nil, errors.New("cannot send messages to this user")
	}
	return &fakeChannel{id: "dm:" + userID}, nil
}

var _ messaging.Directory = (*fakeDirectory)(nil)

type fakeHandler struct {
	eventType   repository.EventType
	result      eventhandler.Result
	panicWith   any
	validateErr error
	onExecute   func(ec eventhandler.ExecutionContext)

	mu      sync.Mutex
	calls   []eventhandler.ExecutionContext
	ctxErrs []error
}

func (h *fakeHandler) Type() repository.EventType { return h.eventType }

func (h *fakeHandler) Execute(ctx context.Context, ec eventhandler.ExecutionContext) eventhandler.Result {
	h.mu.Lock()
	h.calls = append(h.calls, ec)
	h.mu.Unlock()

	if h.onExecute != nil {
		h.onExecute(ec)
	}
	h.mu.Lock()
	h.ctxErrs = append(h.ctxErrs, ctx.Err())
	h.mu.Unlock()
	if h.panicWith != nil {
		panic(h.panicWith)
	}
	return h.result
}

func (h *fakeHandler) Validate(payload json.RawMessage) error {
	return h.validateErr
}

func (h *fakeHandler) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

func (h *fakeHandler) contextErrors() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.ctxErrs...)
}

func (h *fakeHandler) lastCall(t *testing.T) eventhandler.ExecutionContext {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.calls) == 0 {
		t.Fatal("handler was never executed")
	}
	return h.calls[len(h.calls)-1]
}

// sequenceGenerator returns its ids in order and then repeats the last one.
type sequenceGenerator struct {
	ids []string
	i   int
}

func (g *sequenceGenerator) Next() (string, error) {
	id := g.ids[min(g.i, len(g.ids)-1)]
	g.i++
	return id, nil
}

type recordingArchiver struct {
	mu     sync.Mutex
	events []repository.ScheduledEvent
}

func (a *recordingArchiver) Archive(ctx context.Context, event repository.ScheduledEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *recordingArchiver) statuses() []repository.Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	var statuses []repository.Status
	for _, ev := range a.events {
		statuses = append(statuses, ev.Status)
	}
	return statuses
}

type testEnv struct {
	svc       *Service
	store     *repository.MemoryEventRepository
	directory *fakeDirectory
	archiver  *recordingArchiver
	logs      *bytes.Buffer
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	env := &testEnv{
		store:     repository.NewMemoryEventRepository(),
		directory: newFakeDirectory("channel-1"),
		archiver:  &recordingArchiver{},
		logs:      &bytes.Buffer{},
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(env.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return testNow }
	}
	opts.Archiver = env.archiver
	env.svc = New(env.store, env.directory, opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = env.svc.Shutdown(ctx)
	})
	return env
}

func (env *testEnv) get(t *testing.T, eventID string) repository.ScheduledEvent {
	t.Helper()
	ev, err := env.store.FindOne(context.Background(), repository.EventFilter{EventID: eventID})
	if err != nil {
		t.Fatalf("failed to load event %s: %v", eventID, err)
	}
	return ev
}

func (env *testEnv) count(t *testing.T) int {
	t.Helper()
	all, err := env.store.FindAll(context.Background(), repository.EventFilter{}, 0, repository.OrderNone)
	if err != nil {
		t.Fatalf("failed to list events: %v", err)
	}
	return len(all)
}

func reminderPayload(t *testing.T, p eventhandler.ReminderPayload) json.RawMessage {
	t.Helper()
	raw, err := eventhandler.EncodePayload(p)
	if err != nil {
		t.Fatalf("failed to encode payload: %v", err)
	}
	return raw
}

func okHandler() *fakeHandler {
	return &fakeHandler{
		eventType: repository.EventTypeReminder,
		result:    eventhandler.Result{Success: true},
	}
}
