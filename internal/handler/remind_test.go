package handler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/herald/internal/eventhandler"
	"github.com/glizzus/herald/internal/messaging"
	"github.com/glizzus/herald/internal/repository"
	"github.com/glizzus/herald/internal/scheduler"
	"github.com/glizzus/herald/internal/timeparse"
	"github.com/google/go-cmp/cmp"
)

var testNow = time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)

type recordingSession struct {
	responses []*discordgo.InteractionResponse
}

func (s *recordingSession) InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error {
	s.responses = append(s.responses, resp)
	return nil
}

func (s *recordingSession) last(t *testing.T) *discordgo.InteractionResponse {
	t.Helper()
	if len(s.responses) == 0 {
		t.Fatal("no response was sent")
	}
	return s.responses[len(s.responses)-1]
}

type sequenceGenerator struct {
	ids []string
	i   int
}

func (g *sequenceGenerator) Next() (string, error) {
	id := g.ids[min(g.i, len(g.ids)-1)]
	g.i++
	return id, nil
}

// brokenScheduler fails every new schedule with a store error.
type brokenScheduler struct {
	*scheduler.Service
}

func (brokenScheduler) ScheduleEvent(ctx context.Context, opts scheduler.ScheduleOptions) (repository.ScheduledEvent, error) {
	return repository.ScheduledEvent{}, errors.New("connection refused")
}

type testBot struct {
	flows   *FlowManager
	svc     *scheduler.Service
	store   *repository.MemoryEventRepository
	session *recordingSession
	logs    *bytes.Buffer
	log     *slog.Logger
}

func newTestBot(t *testing.T, wrap func(*scheduler.Service) ReminderScheduler) *testBot {
	t.Helper()
	logs := &bytes.Buffer{}
	log := slog.New(slog.NewTextHandler(logs, nil))
	store := repository.NewMemoryEventRepository()
	svc := scheduler.New(store, &messaging.LogDirectory{Logger: log}, scheduler.Options{
		Logger:      log,
		Now:         func() time.Time { return testNow },
		IDGenerator: &sequenceGenerator{ids: []string{"ab12cd34", "ef56gh78"}},
	})
	svc.RegisterHandler(eventhandler.NewReminderHandler())

	var s ReminderScheduler = svc
	if wrap != nil {
		s = wrap(svc)
	}
	reminders := NewReminders(s, timeparse.NewParser(), time.UTC, log)
	reminders.now = func() time.Time { return testNow }

	fm := NewFlowManager(&sequenceGenerator{ids: []string{"flow-1", "flow-2", "flow-3"}})
	fm.RegisterFlow(PingFlow)
	for _, f := range reminders.Flows() {
		fm.RegisterFlow(f)
	}

	return &testBot{flows: fm, svc: svc, store: store, session: &recordingSession{}, logs: logs, log: log}
}

func (b *testBot) send(i *discordgo.InteractionCreate) *discordgo.InteractionResponse {
	HandleInteraction(b.session, i, b.flows, b.log)
	if len(b.session.responses) == 0 {
		return nil
	}
	return b.session.responses[len(b.session.responses)-1]
}

func command(userID, name string, sub *discordgo.ApplicationCommandInteractionDataOption) *discordgo.InteractionCreate {
	data := discordgo.ApplicationCommandInteractionData{Name: name}
	if sub != nil {
		data.Options = []*discordgo.ApplicationCommandInteractionDataOption{sub}
	}
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		ID:        "interaction",
		Type:      discordgo.InteractionApplicationCommand,
		GuildID:   "guild-1",
		ChannelID: "channel-1",
		Member:    &discordgo.Member{User: &discordgo.User{ID: userID}},
		Data:      data,
	}}
}

func remindSet(userID, when, message string) *discordgo.InteractionCreate {
	return command(userID, "remind", &discordgo.ApplicationCommandInteractionDataOption{
		Name: "set",
		Type: discordgo.ApplicationCommandOptionSubCommand,
		Options: []*discordgo.ApplicationCommandInteractionDataOption{
			{Name: "when", Type: discordgo.ApplicationCommandOptionString, Value: when},
			{Name: "message", Type: discordgo.ApplicationCommandOptionString, Value: message},
		},
	})
}

func component(userID, customID string, values ...string) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		ID:        "interaction",
		Type:      discordgo.InteractionMessageComponent,
		GuildID:   "guild-1",
		ChannelID: "channel-1",
		Member:    &discordgo.Member{User: &discordgo.User{ID: userID}},
		Data:      discordgo.MessageComponentInteractionData{CustomID: customID, Values: values},
	}}
}

func TestPing(t *testing.T) {
	bot := newTestBot(t, nil)
	resp := bot.send(command("42", "ping", nil))
	if resp == nil || resp.Data.Content != "Pong!" {
		t.Errorf("expected Pong!, got %+v", resp)
	}
}

func TestRemindSet(t *testing.T) {
	tests := []struct {
		name         string
		when         string
		wantType     repository.ScheduleType
		wantCron     string
		wantExecute  *time.Time
		wantResponse string
	}{
		{
			name:         "one-off",
			when:         "in 2 hours",
			wantType:     repository.ScheduleOnce,
			wantResponse: "✅ Reminder `ab12cd34` set in 2 hours.",
		},
		{
			name:         "daily",
			when:         "every day at 9am",
			wantType:     repository.ScheduleCron,
			wantCron:     "0 9 * * *",
			wantResponse: "✅ Reminder `ab12cd34` set for every day at 9:00 AM (next in 23 hours).",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bot := newTestBot(t, nil)
			resp := bot.send(remindSet("42", tt.when, "stretch"))

			if resp.Data.Content != tt.wantResponse {
				t.Errorf("expected %q, got %q", tt.wantResponse, resp.Data.Content)
			}

			ev, err := bot.store.FindOne(context.Background(), repository.EventFilter{EventID: "ab12cd34"})
			if err != nil {
				t.Fatalf("reminder was not stored: %v", err)
			}
			if ev.ScheduleType != tt.wantType || ev.CronSchedule != tt.wantCron {
				t.Errorf("expected %s %q, got %s %q", tt.wantType, tt.wantCron, ev.ScheduleType, ev.CronSchedule)
			}
			if ev.CreatorID != "42" || ev.GuildID != "guild-1" || ev.ChannelID != "channel-1" {
				t.Errorf("reminder stored with wrong ownership: %+v", ev)
			}

			payload, err := eventhandler.DecodePayload(ev.EventType, ev.Payload)
			if err != nil {
				t.Fatalf("failed to decode payload: %v", err)
			}
			if diff := cmp.Diff(eventhandler.Payload(eventhandler.ReminderPayload{Message: "stretch"}), payload); diff != "" {
				t.Errorf("payload mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRemindSetErrors(t *testing.T) {
	tests := []struct {
		name    string
		wrap    func(*scheduler.Service) ReminderScheduler
		when    string
		message string
		want    string
		logged  bool
	}{
		{
			name:    "unparsable time",
			when:    "when pigs fly",
			message: "stretch",
			want:    errUnrecognizedTime.Message,
		},
		{
			name:    "message rejected by the handler",
			when:    "in 2 hours",
			message: strings.Repeat("a", 501),
			want:    "message must be under 500 characters",
		},
		{
			name:    "store failure",
			wrap:    func(s *scheduler.Service) ReminderScheduler { return brokenScheduler{s} },
			when:    "in 2 hours",
			message: "stretch",
			want:    internalErrorMessage,
			logged:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bot := newTestBot(t, tt.wrap)
			resp := bot.send(remindSet("42", tt.when, tt.message))

			if resp.Data.Content != tt.want {
				t.Errorf("expected %q, got %q", tt.want, resp.Data.Content)
			}
			if resp.Data.Flags != discordgo.MessageFlagsEphemeral {
				t.Error("expected errors to be ephemeral")
			}
			if logged := strings.Contains(bot.logs.String(), "Failed to handle interaction"); logged != tt.logged {
				t.Errorf("expected logged = %v, logs:\n%s", tt.logged, bot.logs.String())
			}
			if _, err := bot.store.FindOne(context.Background(), repository.EventFilter{}); !errors.Is(err, repository.ErrEventNotFound) {
				t.Errorf("expected nothing stored, got %v", err)
			}
		})
	}
}

func TestRemindListAndCancelFlow(t *testing.T) {
	bot := newTestBot(t, nil)
	bot.send(remindSet("42", "in 2 hours", "stretch"))

	list := bot.send(command("42", "remind", &discordgo.ApplicationCommandInteractionDataOption{
		Name: "list",
		Type: discordgo.ApplicationCommandOptionSubCommand,
	}))
	menu := list.Data.Components[0].(discordgo.ActionsRow).Components[0].(discordgo.SelectMenu)
	if menu.CustomID != "reminder_select_menu:flow-2" {
		t.Fatalf("unexpected menu ID %q", menu.CustomID)
	}
	if bot.flows.ActiveSessions() != 1 {
		t.Fatalf("expected the list flow to wait for a selection")
	}

	stranger := bot.send(component("99", menu.CustomID, "ab12cd34"))
	if stranger.Data.Content != "This menu belongs to someone else." {
		t.Errorf("expected other users to be turned away, got %q", stranger.Data.Content)
	}

	actions := bot.send(component("42", menu.CustomID, "ab12cd34"))
	if !strings.HasPrefix(actions.Data.Content, "`ab12cd34` \"stretch\"") {
		t.Errorf("unexpected actions menu %q", actions.Data.Content)
	}

	done := bot.send(component("42", "reminder_cancel:flow-2"))
	if done.Data.Content != "Cancelled reminder `ab12cd34`." {
		t.Errorf("unexpected cancel response %q", done.Data.Content)
	}
	if bot.flows.ActiveSessions() != 0 {
		t.Error("expected the flow to finish")
	}

	ev, err := bot.svc.GetEvent(context.Background(), "ab12cd34")
	if err != nil {
		t.Fatalf("failed to load reminder: %v", err)
	}
	if ev.Status != repository.StatusCancelled {
		t.Errorf("expected status cancelled, got %s", ev.Status)
	}

	expired := bot.send(component("42", "reminder_cancel:flow-2"))
	if expired.Data.Content != ErrFlowExpired.Message {
		t.Errorf("expected an expired flow message, got %q", expired.Data.Content)
	}
}

func TestRemindCancel(t *testing.T) {
	bot := newTestBot(t, nil)
	bot.send(remindSet("42", "in 2 hours", "stretch"))

	cancel := func(userID, id string) string {
		return bot.send(command(userID, "remind", &discordgo.ApplicationCommandInteractionDataOption{
			Name: "cancel",
			Type: discordgo.ApplicationCommandOptionSubCommand,
			Options: []*discordgo.ApplicationCommandInteractionDataOption{
				{Name: "id", Type: discordgo.ApplicationCommandOptionString, Value: id},
			},
		})).Data.Content
	}

	if got := cancel("42", ""); got != "I couldn't find an active reminder `` of yours." {
		t.Errorf("expected an empty ID to match nothing, got %q", got)
	}
	if got := cancel("99", "ab12cd34"); got != "I couldn't find an active reminder `ab12cd34` of yours." {
		t.Errorf("expected another user's cancel to be refused, got %q", got)
	}
	if got := cancel("42", "ab12cd34"); got != "Cancelled reminder `ab12cd34`." {
		t.Errorf("expected the owner's cancel to succeed, got %q", got)
	}
	if got := cancel("42", "ab12cd34"); got != "I couldn't find an active reminder `ab12cd34` of yours." {
		t.Errorf("expected a second cancel to find nothing, got %q", got)
	}
}

func TestCancelSelectedWithoutSelection(t *testing.T) {
	bot := newTestBot(t, nil)
	bot.send(remindSet("42", "in 2 hours", "stretch"))

	reminders := NewReminders(bot.svc, timeparse.NewParser(), time.UTC, bot.log)
	fc := &FlowContext{InstanceID: "flow-9", UserID: "42", State: map[string]any{}}
	err := reminders.cancelSelected(bot.session, component("42", "reminder_cancel:flow-9"), fc)
	if !errors.Is(err, ErrFlowExpired) {
		t.Errorf("expected ErrFlowExpired, got %v", err)
	}

	ev, err := bot.svc.GetEvent(context.Background(), "ab12cd34")
	if err != nil {
		t.Fatalf("failed to load reminder: %v", err)
	}
	if ev.Status != repository.StatusActive {
		t.Errorf("expected the reminder to stay active, got %s", ev.Status)
	}
}

func TestFlowsExpire(t *testing.T) {
	bot := newTestBot(t, nil)
	clock := testNow
	bot.flows.now = func() time.Time { return clock }

	bot.send(command("42", "remind", &discordgo.ApplicationCommandInteractionDataOption{
		Name: "list",
		Type: discordgo.ApplicationCommandOptionSubCommand,
	}))
	if bot.flows.ActiveSessions() != 1 {
		t.Fatal("expected a waiting flow")
	}

	clock = clock.Add(DefaultFlowTTL + time.Second)
	if bot.flows.ActiveSessions() != 0 {
		t.Error("expected the flow to expire")
	}
}
