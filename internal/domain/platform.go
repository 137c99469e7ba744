package domain

import (
	"context"
	"errors"
)

// ErrChannelNotFound is returned by Platform.ResolveChannel for IDs the
// platform does not know about or cannot see.
var ErrChannelNotFound = errors.New("channel not found")

// Platform is the chat platform the relay posts to.
type Platform interface {
	ResolveChannel(ctx context.Context, channelID string) (ChannelInfo, error)
	Send(ctx context.Context, channelID string, msg OutboundMessage) error
}

// MessageBus carries inbound messages from a platform connection to the
// relay workers.
type MessageBus interface {
	Publish(msg InboundMessage)
	Subscribe() <-chan InboundMessage
	Close()
}
