package eventsink

import "context"

// Sink is the output interface. Implementations deliver events to
// different backends (stdout, webhook, in-process callback).
type Sink interface {
	SendInjection(ctx context.Context, ev Injection) error
	SendActivation(ctx context.Context, ev Activation) error
	SendSync(ctx context.Context, ev SyncResult) error
	Close() error
}
