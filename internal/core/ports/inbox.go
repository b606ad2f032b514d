package ports

import "context"

// Inbox remembers which handler already processed which event, so a
// redelivered message does not re-run handlers that succeeded.
type Inbox interface {
	Processed(ctx context.Context, eventID, handlerName string) (bool, error)
	MarkProcessed(ctx context.Context, eventID, handlerName string) error
}
