package messaging

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"
)

// DiscordAPI is the subset of *discordgo.Session used for delivery.
type DiscordAPI interface {
	User(userID string, options ...discordgo.RequestOption) (*discordgo.User, error)
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// ChannelCache looks up channels already known to the gateway state.
type ChannelCache interface {
	Channel(channelID string) (*discordgo.Channel, error)
}

// DiscordDirectory resolves channels from the session state cache and
// paces outbound messages with a shared limiter.
type DiscordDirectory struct {
	api     DiscordAPI
	cache   ChannelCache
	limiter *rate.Limiter
}

// NewDiscordDirectory builds a directory over a live session. A
// messagesPerSecond of zero or less disables pacing.
func NewDiscordDirectory(session *discordgo.Session, messagesPerSecond float64) *DiscordDirectory {
	return newDiscordDirectory(session, session.State, messagesPerSecond)
}

func newDiscordDirectory(api DiscordAPI, cache ChannelCache, messagesPerSecond float64) *DiscordDirectory {
	limit := rate.Inf
	burst := 1
	if messagesPerSecond > 0 {
		limit = rate.Limit(messagesPerSecond)
		burst = max(1, int(messagesPerSecond))
	}
	return &DiscordDirectory{
		api:     api,
		cache:   cache,
		limiter: rate.NewLimiter(limit, burst),
	}
}

var textChannelTypes = map[discordgo.ChannelType]bool{
	discordgo.ChannelTypeGuildText:          true,
	discordgo.ChannelTypeGuildNews:          true,
	discordgo.ChannelTypeGuildPublicThread:  true,
	discordgo.ChannelTypeGuildPrivateThread: true,
	discordgo.ChannelTypeGuildNewsThread:    true,
	discordgo.ChannelTypeGuildVoice:         true,
	discordgo.ChannelTypeDM:                 true,
}

func (d *DiscordDirectory) TextChannel(ctx context.Context, channelID string) (Channel, error) {
	channel, err := d.cache.Channel(channelID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrChannelNotFound, channelID, err)
	}
	if !textChannelTypes[channel.Type] {
		return nil, fmt.Errorf("%w: %s", ErrNotTextChannel, channelID)
	}
	return &discordChannel{id: channel.ID, api: d.api, limiter: d.limiter}, nil
}

func (d *DiscordDirectory) DirectMessage(ctx context.Context, userID string) (Channel, error) {
	user, err := d.api.User(userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user %s: %w", userID, err)
	}
	channel, err := d.api.UserChannelCreate(user.ID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to open DM with user %s: %w", userID, err)
	}
	return &discordChannel{id: channel.ID, api: d.api, limiter: d.limiter}, nil
}

var _ Directory = (*DiscordDirectory)(nil)

type discordChannel struct {
	id      string
	api     DiscordAPI
	limiter *rate.Limiter
}

func (c *discordChannel) ID() string { return c.id }

func (c *discordChannel) Send(ctx context.Context, msg Message) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := c.api.ChannelMessageSendComplex(c.id, &discordgo.MessageSend{
		Content: msg.Content,
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Users: msg.MentionUserIDs,
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to send message to channel %s: %w", c.id, err)
	}
	return nil
}
