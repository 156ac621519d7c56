package handler

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/herald/internal/eventhandler"
)

var guildOnly = false

var reminderMinLength = 1

// Commands is a list of all the commands the bot can handle.
// This is used to register the commands with Discord.
var Commands = []*discordgo.ApplicationCommand{
	{
		Name:        "ping",
		Description: "Check that the bot is listening",
	},
	{
		Name:         "remind",
		Description:  "Schedule and manage reminders",
		DMPermission: &guildOnly,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "set",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Description: "Set a reminder",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "when",
						Type:        discordgo.ApplicationCommandOptionString,
						Description: `When to remind you, e.g. "in 2 hours", "tomorrow at 9am" or "every monday at 10am".`,
						Required:    true,
					},
					{
						Name:        "message",
						Type:        discordgo.ApplicationCommandOptionString,
						Description: "What to remind you about.",
						Required:    true,
						MinLength:   &reminderMinLength,
						MaxLength:   eventhandler.MaxReminderLength,
					},
					{
						Name:        "dm",
						Type:        discordgo.ApplicationCommandOptionBoolean,
						Description: "Send the reminder as a direct message.",
					},
					{
						Name:        "mention",
						Type:        discordgo.ApplicationCommandOptionBoolean,
						Description: "Mention you when the reminder is posted in this channel.",
					},
				},
			},
			{
				Name:        "list",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Description: "List your upcoming reminders",
			},
			{
				Name:        "cancel",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Description: "Cancel one of your reminders",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "id",
						Type:        discordgo.ApplicationCommandOptionString,
						Description: "The reminder ID shown by /remind list.",
						Required:    true,
					},
				},
			},
		},
	},
}

// EstablishCommands registers Commands for a guild, or globally when guildID is empty.
func EstablishCommands(s *discordgo.Session, guildID string) error {
	_, err := s.ApplicationCommandBulkOverwrite(s.State.User.ID, guildID, Commands)
	if err != nil {
		return fmt.Errorf("failed to establish commands: %w", err)
	}
	return nil
}

var PingFlow = &Flow{
	ID: "ping",
	Root: &Node{
		ID:      "ping",
		Matcher: commandMatcher("ping", ""),
		Handler: func(s DiscordSession, i *discordgo.InteractionCreate, ctx *FlowContext) error {
			return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
				Type: discordgo.InteractionResponseChannelMessageWithSource,
				Data: &discordgo.InteractionResponseData{
					Content: "Pong!",
				},
			})
		},
	},
}
