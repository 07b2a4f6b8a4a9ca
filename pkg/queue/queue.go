package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// QueueConfig tunes the consumer side.
type QueueConfig struct {
	Workers      int
	RetryLimit   int           // attempts after the first before dead-lettering
	RetryDelay   time.Duration // first retry delay, doubled per attempt
	PollInterval time.Duration // BRPOP block time
}

// QueueStats is a snapshot of the queue keys.
type QueueStats struct {
	Pending int64 `json:"pending"`
	Retry   int64 `json:"retry"`
	Dead    int64 `json:"dead"`
}

// Message is the stored envelope of one job.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	Timestamp time.Time       `json:"ts"`
}

// PermanentError marks a job failure that retrying cannot fix; the message
// goes straight to the dead-letter list.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err as a PermanentError.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

type msgIDKey struct{}

// WithMessageID stores the queue message id in ctx.
func WithMessageID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, msgIDKey{}, id)
}

// MessageID returns the id of the message being handled, if any.
func MessageID(ctx context.Context) string {
	id, _ := ctx.Value(msgIDKey{}).(string)
	return id
}

// ParsePayload decodes a job payload. Queued payloads arrive as
// json.RawMessage; direct callers may pass T, *T or a decoded JSON map.
func ParsePayload[T any](payload interface{}) (*T, error) {
	var raw []byte
	switch p := payload.(type) {
	case *T:
		return p, nil
	case T:
		return &p, nil
	case json.RawMessage:
		raw = p
	case []byte:
		raw = p
	case map[string]interface{}:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("re-encode payload: %w", err)
		}
		raw = b
	default:
		return nil, fmt.Errorf("invalid payload type: %T", payload)
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &out, nil
}
