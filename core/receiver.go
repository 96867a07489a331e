package core

import "context"

// Receiver pulls inbound messages from an external source until ctx is done.
type Receiver interface {
	Start(ctx context.Context) error
}
