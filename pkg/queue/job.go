package queue

import "context"

// Job handles every message of one Type. Handle receives the payload as
// stored, usually json.RawMessage; ParsePayload decodes it. Returning a
// PermanentError skips the remaining retries.
type Job interface {
	Name() string
	Type() string
	Handle(ctx context.Context, payload interface{}) error
}
