package core

import "context"

// Notifier delivers notifications to a chat and reports the message ID the
// platform assigned to them.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n Notification) (messageID int64, err error)
}

// Deleter removes a previously delivered message.
type Deleter interface {
	Delete(ctx context.Context, chatID, messageID int64) error
}

// Messenger can both send and delete messages.
type Messenger interface {
	Notifier
	Deleter
}
