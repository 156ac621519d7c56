package presenters

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/herald/internal/repository"
	"github.com/glizzus/herald/internal/timeparse"
)

const (
	ComponentIDReminderSelect = "reminder_select_menu"
	ComponentIDReminderCancel = "reminder_cancel"
	ComponentIDReminderKeep   = "reminder_keep"

	// Discord rejects select options with longer labels.
	maxOptionLabel = 100
)

var noRemindersFoundResponse = &discordgo.InteractionResponse{
	Type: discordgo.InteractionResponseChannelMessageWithSource,
	Data: &discordgo.InteractionResponseData{
		Content: "You have no upcoming reminders.",
		Flags:   discordgo.MessageFlagsEphemeral,
	},
}

// Describer renders an event for a listing.
type Describer func(repository.ScheduledEvent) string

// EphemeralMessage is a reply only the invoking user can see.
func EphemeralMessage(content string) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	}
}

// UpdateMessage replaces the message a component was attached to.
func UpdateMessage(content string) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content:    content,
			Components: []discordgo.MessageComponent{},
		},
	}
}

func nextRun(event repository.ScheduledEvent, now time.Time) string {
	if event.NextExecuteAt == nil {
		return "not scheduled"
	}
	return timeparse.FormatRelative(*event.NextExecuteAt, now)
}

func truncateLabel(label string) string {
	if utf8.RuneCountInString(label) <= maxOptionLabel {
		return label
	}
	return string([]rune(label)[:maxOptionLabel-3]) + "..."
}

func reminderToSelectMenuOption(event repository.ScheduledEvent, describe Describer, now time.Time) discordgo.SelectMenuOption {
	return discordgo.SelectMenuOption{
		Label:       truncateLabel(describe(event)),
		Value:       event.EventID,
		Description: event.EventID + " · " + nextRun(event, now),
	}
}

var reminderSelectMinValues = 1

func buildReminderSelectMenu(events []repository.ScheduledEvent, describe Describer, now time.Time, instanceID string) *discordgo.InteractionResponse {
	var options []discordgo.SelectMenuOption
	var lines []string
	for _, event := range events {
		options = append(options, reminderToSelectMenuOption(event, describe, now))
		lines = append(lines, fmt.Sprintf("`%s` %s (%s)", event.EventID, describe(event), nextRun(event, now)))
	}

	menu := discordgo.SelectMenu{
		CustomID:    ComponentIDReminderSelect + ":" + instanceID,
		Placeholder: "Select a reminder",
		MinValues:   &reminderSelectMinValues,
		MaxValues:   1,
		Options:     options,
	}

	row := discordgo.ActionsRow{
		Components: []discordgo.MessageComponent{
			menu,
		},
	}

	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: "**Upcoming reminders** _(select one to manage it)_\n" + strings.Join(lines, "\n"),
			Components: []discordgo.MessageComponent{
				row,
			},
			Flags: discordgo.MessageFlagsEphemeral,
		},
	}
}

// BuildReminderListResponse lists events soonest first with a menu to pick one.
// The instance ID ties the menu back to the flow that produced it.
func BuildReminderListResponse(events []repository.ScheduledEvent, describe Describer, now time.Time, instanceID string) *discordgo.InteractionResponse {
	if len(events) == 0 {
		return noRemindersFoundResponse
	}

	return buildReminderSelectMenu(events, describe, now, instanceID)
}

// ReminderActionsMenu asks the user what to do with the selected reminder.
func ReminderActionsMenu(event repository.ScheduledEvent, describe Describer, now time.Time, instanceID string) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content: fmt.Sprintf("`%s` %s\nNext: %s", event.EventID, describe(event), nextRun(event, now)),
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.Button{
							Label:    "Keep",
							Style:    discordgo.SecondaryButton,
							CustomID: ComponentIDReminderKeep + ":" + instanceID,
						},
						discordgo.Button{
							Label:    "Cancel reminder",
							Style:    discordgo.DangerButton,
							CustomID: ComponentIDReminderCancel + ":" + instanceID,
						},
					},
				},
			},
		},
	}
}

// BuildReminderScheduledResponse confirms a new reminder with its ID and when it runs.
func BuildReminderScheduledResponse(event repository.ScheduledEvent, when string, now time.Time) *discordgo.InteractionResponse {
	var content string
	if event.ScheduleType.Repeats() {
		content = fmt.Sprintf("✅ Reminder `%s` set for %s (next %s).", event.EventID, when, nextRun(event, now))
	} else {
		content = fmt.Sprintf("✅ Reminder `%s` set %s.", event.EventID, nextRun(event, now))
	}
	return EphemeralMessage(content)
}
