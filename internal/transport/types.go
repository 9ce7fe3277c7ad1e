package transport

import "context"

// Update is an inbound event from the messaging gateway (a subscriber command).
type Update struct {
	Message *Message
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
	IsGroup      bool
}

// ChatTarget identifies one delivery endpoint at the gateway.
type ChatTarget struct {
	ChatID int64
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// SendResult reports the outcome of a single gateway send.
//
// PermanentFailure is only meaningful when the send returned an error: it
// marks the endpoint as permanently unreachable (blocked, deactivated,
// chat gone). The gateway does not expose finer-grained causes, and callers
// must not try to infer them.
type SendResult struct {
	MessageID        int
	PermanentFailure bool
}

// Gateway is the outbound send surface used by the alert pipeline.
type Gateway interface {
	Send(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (SendResult, error)
}

// Adapter is a full gateway binding: outbound sends plus the inbound
// update stream for subscriber commands.
type Adapter interface {
	Gateway

	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error
}
