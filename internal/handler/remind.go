package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/herald/internal/eventhandler"
	"github.com/glizzus/herald/internal/presenters"
	"github.com/glizzus/herald/internal/repository"
	"github.com/glizzus/herald/internal/scheduler"
	"github.com/glizzus/herald/internal/timeparse"
	"github.com/glizzus/herald/internal/util"
)

const commandTimeout = 5 * time.Second

var (
	errUnrecognizedTime = &UserError{Message: `I couldn't understand that time. Try something like "in 2 hours" or "every day at 9am".`}
	errPastTime         = &UserError{Message: "That time is in the past."}
)

// ReminderScheduler is what the reminder commands need from the scheduler.
type ReminderScheduler interface {
	ScheduleEvent(ctx context.Context, opts scheduler.ScheduleOptions) (repository.ScheduledEvent, error)
	CancelEvent(ctx context.Context, eventID, requesterID string) bool
	GetEvent(ctx context.Context, eventID string) (repository.ScheduledEvent, error)
	ListEvents(ctx context.Context, guildID string, filters scheduler.ListFilters) ([]repository.ScheduledEvent, error)
	Describe(event repository.ScheduledEvent) string
}

var _ ReminderScheduler = (*scheduler.Service)(nil)

type RemindSetRequest struct {
	When    string
	Message string
	DM      bool
	Mention bool
}

func findOption(options []*discordgo.ApplicationCommandInteractionDataOption, name string) (*discordgo.ApplicationCommandInteractionDataOption, bool) {
	return util.FindFirst(options, func(o *discordgo.ApplicationCommandInteractionDataOption) bool {
		return o.Name == name
	})
}

func stringOption(options []*discordgo.ApplicationCommandInteractionDataOption, name string) (string, error) {
	option, ok := findOption(options, name)
	if !ok {
		return "", &UserError{Message: fmt.Sprintf("The %s option is required.", name)}
	}
	if option.Type != discordgo.ApplicationCommandOptionString {
		return "", fmt.Errorf("invalid type for %s option", name)
	}
	return option.StringValue(), nil
}

func boolOption(options []*discordgo.ApplicationCommandInteractionDataOption, name string) (bool, error) {
	option, ok := findOption(options, name)
	if !ok {
		return false, nil
	}
	if option.Type != discordgo.ApplicationCommandOptionBoolean {
		return false, fmt.Errorf("invalid type for %s option", name)
	}
	return option.BoolValue(), nil
}

func CommandToRemindSetRequest(options []*discordgo.ApplicationCommandInteractionDataOption) (*RemindSetRequest, error) {
	when, err := stringOption(options, "when")
	if err != nil {
		return nil, err
	}
	message, err := stringOption(options, "message")
	if err != nil {
		return nil, err
	}
	dm, err := boolOption(options, "dm")
	if err != nil {
		return nil, err
	}
	mention, err := boolOption(options, "mention")
	if err != nil {
		return nil, err
	}

	return &RemindSetRequest{
		When:    when,
		Message: message,
		DM:      dm,
		Mention: mention,
	}, nil
}

// subCommandOptions returns the options of the invoked sub-command.
func subCommandOptions(i *discordgo.InteractionCreate) []*discordgo.ApplicationCommandInteractionDataOption {
	data := i.ApplicationCommandData()
	if len(data.Options) == 0 {
		return nil
	}
	return data.Options[0].Options
}

// Reminders implements the /remind command family.
type Reminders struct {
	scheduler ReminderScheduler
	parser    *timeparse.Parser
	location  *time.Location
	log       *slog.Logger
	now       func() time.Time
}

func NewReminders(s ReminderScheduler, parser *timeparse.Parser, location *time.Location, log *slog.Logger) *Reminders {
	if location == nil {
		location = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reminders{
		scheduler: s,
		parser:    parser,
		location:  location,
		log:       log,
		now:       time.Now,
	}
}

func (r *Reminders) Flows() []*Flow {
	return []*Flow{
		{
			ID: "remind-set",
			Root: &Node{
				ID:      "remind-set",
				Matcher: commandMatcher("remind", "set"),
				Handler: r.set,
			},
		},
		{
			ID: "remind-list",
			Root: &Node{
				ID:      "remind-list",
				Matcher: commandMatcher("remind", "list"),
				Handler: r.list,
				Next: []*Node{
					{
						ID:      "remind-list-select",
						Matcher: componentMatcher(presenters.ComponentIDReminderSelect),
						Handler: r.selectReminder,
						Next: []*Node{
							{
								ID:      "remind-list-keep",
								Matcher: componentMatcher(presenters.ComponentIDReminderKeep),
								Handler: r.keepSelected,
							},
							{
								ID:      "remind-list-cancel",
								Matcher: componentMatcher(presenters.ComponentIDReminderCancel),
								Handler: r.cancelSelected,
							},
						},
					},
				},
			},
		},
		{
			ID: "remind-cancel",
			Root: &Node{
				ID:      "remind-cancel",
				Matcher: commandMatcher("remind", "cancel"),
				Handler: r.cancel,
			},
		},
	}
}

// BuildScheduleOptions turns a parsed request into scheduler options for the invoking user.
func (r *Reminders) BuildScheduleOptions(i *discordgo.InteractionCreate, req *RemindSetRequest, parsed timeparse.ParsedTime) (scheduler.ScheduleOptions, error) {
	payload, err := eventhandler.EncodePayload(eventhandler.ReminderPayload{
		Message:     req.Message,
		MentionUser: req.Mention,
		SendDM:      req.DM,
	})
	if err != nil {
		return scheduler.ScheduleOptions{}, err
	}

	opts := scheduler.ScheduleOptions{
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
		CreatorID: interactionUserID(i),
		EventType: repository.EventTypeReminder,
		Payload:   payload,
		Timezone:  r.location.String(),
		Metadata: map[string]any{
			"input":     req.When,
			"createdBy": "slash-command",
		},
	}
	if parsed.Recurring {
		opts.ScheduleType = repository.ScheduleCron
		opts.CronSchedule = parsed.CronExpression
	} else {
		executeAt := parsed.Instant
		opts.ScheduleType = repository.ScheduleOnce
		opts.ExecuteAt = &executeAt
	}
	return opts, nil
}

func (r *Reminders) set(s DiscordSession, i *discordgo.InteractionCreate, fc *FlowContext) error {
	req, err := CommandToRemindSetRequest(subCommandOptions(i))
	if err != nil {
		return err
	}

	now := r.now().In(r.location)
	parsed, err := r.parser.Parse(req.When, now)
	if errors.Is(err, timeparse.ErrUnrecognized) {
		return errUnrecognizedTime
	}
	if err != nil {
		return fmt.Errorf("failed to parse %q: %w", req.When, err)
	}
	if !parsed.Recurring && !timeparse.IsFuture(parsed.Instant, now) {
		return errPastTime
	}

	opts, err := r.BuildScheduleOptions(i, req, parsed)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	event, err := r.scheduler.ScheduleEvent(ctx, opts)
	if err != nil {
		var validationErr *scheduler.ValidationError
		if errors.As(err, &validationErr) {
			return &UserError{Message: validationErr.Message}
		}
		return fmt.Errorf("failed to schedule reminder: %w", err)
	}

	r.log.Info("Reminder scheduled", "eventID", event.EventID, "guildID", event.GuildID, "userID", event.CreatorID, "input", req.When)
	return s.InteractionRespond(i.Interaction, presenters.BuildReminderScheduledResponse(event, parsed.DisplayText, now))
}

func (r *Reminders) list(s DiscordSession, i *discordgo.InteractionCreate, fc *FlowContext) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	events, err := r.scheduler.ListEvents(ctx, i.GuildID, scheduler.ListFilters{
		EventType: repository.EventTypeReminder,
		CreatorID: fc.UserID,
	})
	if err != nil {
		return fmt.Errorf("failed to list reminders: %w", err)
	}

	return s.InteractionRespond(i.Interaction, presenters.BuildReminderListResponse(events, r.scheduler.Describe, r.now(), fc.InstanceID))
}

func (r *Reminders) selectReminder(s DiscordSession, i *discordgo.InteractionCreate, fc *FlowContext) error {
	values := i.MessageComponentData().Values
	if len(values) == 0 {
		return &UserError{Message: "Select a reminder first."}
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	event, err := r.scheduler.GetEvent(ctx, values[0])
	if errors.Is(err, repository.ErrEventNotFound) || (err == nil && (event.CreatorID != fc.UserID || event.Status != repository.StatusActive)) {
		return &UserError{Message: "That reminder is no longer active."}
	}
	if err != nil {
		return fmt.Errorf("failed to load reminder %s: %w", values[0], err)
	}

	fc.State["eventID"] = event.EventID
	return s.InteractionRespond(i.Interaction, presenters.ReminderActionsMenu(event, r.scheduler.Describe, r.now(), fc.InstanceID))
}

func (r *Reminders) keepSelected(s DiscordSession, i *discordgo.InteractionCreate, fc *FlowContext) error {
	eventID, _ := fc.State["eventID"].(string)
	return s.InteractionRespond(i.Interaction, presenters.UpdateMessage(fmt.Sprintf("Keeping reminder `%s`.", eventID)))
}

func (r *Reminders) cancelSelected(s DiscordSession, i *discordgo.InteractionCreate, fc *FlowContext) error {
	eventID, _ := fc.State["eventID"].(string)
	if eventID == "" {
		return ErrFlowExpired
	}
	return s.InteractionRespond(i.Interaction, presenters.UpdateMessage(r.cancelMessage(eventID, fc.UserID)))
}

func (r *Reminders) cancel(s DiscordSession, i *discordgo.InteractionCreate, fc *FlowContext) error {
	eventID, err := stringOption(subCommandOptions(i), "id")
	if err != nil {
		return err
	}
	return s.InteractionRespond(i.Interaction, presenters.EphemeralMessage(r.cancelMessage(eventID, fc.UserID)))
}

func (r *Reminders) cancelMessage(eventID, userID string) string {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if !r.scheduler.CancelEvent(ctx, eventID, userID) {
		return fmt.Sprintf("I couldn't find an active reminder `%s` of yours.", eventID)
	}
	r.log.Info("Reminder cancelled", "eventID", eventID, "userID", userID)
	return fmt.Sprintf("Cancelled reminder `%s`.", eventID)
}
