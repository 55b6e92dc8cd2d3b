package queue

import "context"

// Job handles every message of one Type. Handle receives the payload as
// json.RawMessage; use ParsePayload to decode it. A returned error schedules
// a retry, and the message is dead-lettered once retries run out.
type Job interface {
	Name() string
	Type() string
	Handle(ctx context.Context, payload interface{}) error
}
