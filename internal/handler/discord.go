package handler

import (
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/herald/internal/presenters"
)

type ReadyHandler = func(*discordgo.Session, *discordgo.Ready)
type InteractionCreateHandler = func(*discordgo.Session, *discordgo.InteractionCreate)

// DiscordSession is the part of *discordgo.Session the flows use to reply.
type DiscordSession interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
}

var _ DiscordSession = (*discordgo.Session)(nil)

var ReadyLog = func(s *discordgo.Session, r *discordgo.Ready) {
	username := r.User.Username
	userID := r.User.ID
	slog.Info("Bot is ready", "username", username, "userID", userID, "guilds", len(r.Guilds))
}

const internalErrorMessage = "Something went wrong. Please try again later."

// HandleInteraction routes one interaction and reports any error back to the user.
func HandleInteraction(s DiscordSession, i *discordgo.InteractionCreate, fm *FlowManager, log *slog.Logger) {
	err := fm.Router(s, i)
	if err == nil {
		return
	}

	message, ok := userMessage(err)
	if !ok {
		log.Error("Failed to handle interaction", "interactionID", i.ID, "type", i.Type, "error", err)
		message = internalErrorMessage
	}
	if err := s.InteractionRespond(i.Interaction, presenters.EphemeralMessage(message)); err != nil {
		log.Warn("Failed to report interaction error", "interactionID", i.ID, "error", err)
	}
}

func MakeInteractionCreateHandler(fm *FlowManager, log *slog.Logger) InteractionCreateHandler {
	if log == nil {
		log = slog.Default()
	}
	return func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		HandleInteraction(s, i, fm, log)
	}
}

type Handlers struct {
	Ready             ReadyHandler
	InteractionCreate InteractionCreateHandler
}

func NewSession(token string, handlers Handlers) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsDirectMessages

	s.AddHandler(handlers.Ready)
	s.AddHandler(handlers.InteractionCreate)

	return s, nil
}
