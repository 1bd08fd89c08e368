package events

import "context"

// Emitter receives lifecycle events from the scheduler.
// Implementations must not block the verify pipeline and must not panic.
type Emitter interface {
	Emit(event Event)
	EmitBatch(ctx context.Context, events []Event) error
	Flush(ctx context.Context) error
}
