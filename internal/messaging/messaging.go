package messaging

import (
	"context"
	"errors"
)

var (
	ErrChannelNotFound = errors.New("channel not found")
	ErrNotTextChannel  = errors.New("channel cannot receive text messages")
)

// Message is outbound text. Only users listed in MentionUserIDs are pinged.
type Message struct {
	Content        string
	MentionUserIDs []string
}

// Channel is a delivery target that accepts text messages.
type Channel interface {
	ID() string
	Send(ctx context.Context, msg Message) error
}

// Directory resolves delivery targets.
type Directory interface {
	// TextChannel returns a cached, text-capable channel.
	TextChannel(ctx context.Context, channelID string) (Channel, error)
	// DirectMessage fetches the user and opens (or reuses) a DM channel with them.
	DirectMessage(ctx context.Context, userID string) (Channel, error)
}
