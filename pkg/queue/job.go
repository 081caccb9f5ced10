package queue

import "context"

// Job is a registered handler for one message type. Workers dispatch each
// dequeued message to the job whose Type matches, retrying per queue config
// when Handle fails.
type Job interface {
	// Name identifies the job in logs.
	Name() string

	// Type is the message type this job consumes.
	Type() string

	// Handle runs one message. The payload arrives as raw JSON after a
	// Redis round trip; ParsePayload turns it back into a typed value.
	Handle(ctx context.Context, payload interface{}) error
}
