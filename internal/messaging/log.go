package messaging

import (
	"context"
	"log/slog"
)

// LogDirectory delivers every message to the logger instead of a chat service.
// It is used by the development CLI.
type LogDirectory struct {
	Logger *slog.Logger
}

func (d *LogDirectory) TextChannel(ctx context.Context, channelID string) (Channel, error) {
	return &logChannel{id: channelID, logger: d.logger()}, nil
}

func (d *LogDirectory) DirectMessage(ctx context.Context, userID string) (Channel, error) {
	return &logChannel{id: "dm:" + userID, logger: d.logger()}, nil
}

func (d *LogDirectory) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

var _ Directory = (*LogDirectory)(nil)

type logChannel struct {
	id     string
	logger *slog.Logger
}

func (c *logChannel) ID() string { return c.id }

func (c *logChannel) Send(ctx context.Context, msg Message) error {
	c.logger.InfoContext(ctx, "Delivering message", "channelID", c.id, "content", msg.Content, "mentions", msg.MentionUserIDs)
	return nil
}
