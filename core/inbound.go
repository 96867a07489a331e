package core

import "time"

// InboundMessage represents a text message received from Telegram.
type InboundMessage struct {
	UpdateID         int64
	ChatID           int64
	MessageID        int64
	UserID           int64 // zero when the update carries no sender
	Text             string
	ReplyToMessageID int64 // zero when the message is not a reply
	Timestamp        time.Time
}

// MessageHandler processes an inbound message.
type MessageHandler func(msg InboundMessage)
