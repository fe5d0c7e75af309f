package sink

import (
	"context"
	"fmt"
	"time"

	"marketpulse/internal/aggregate"
	"marketpulse/internal/format"
)

// Messenger is a connected chat session.
//
//go:generate mockgen -package=sink_test -destination=mock_messenger_test.go -source=chat.go Messenger
type Messenger interface {
	Connected(ctx context.Context) bool
	Send(ctx context.Context, to, text string) error
}

// Chat sends the formatted text block to one recipient.
type Chat struct {
	m   Messenger
	to  string
	loc *time.Location
}

func NewChat(m Messenger, to string, loc *time.Location) *Chat {
	return &Chat{m: m, to: to, loc: loc}
}

func (c *Chat) Name() string { return "chat" }

// Publish returns ErrUnavailable when the messenger is not connected.
func (c *Chat) Publish(ctx context.Context, snap aggregate.Snapshot) error {
	if !c.m.Connected(ctx) {
		return fmt.Errorf("chat to %s: %w", c.to, ErrUnavailable)
	}
	if err := c.m.Send(ctx, c.to, format.Message(snap, c.loc)); err != nil {
		return fmt.Errorf("chat to %s: %w", c.to, err)
	}
	return nil
}
