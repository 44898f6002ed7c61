package eventsink

import (
	"context"
	"log/slog"
)

// Router fans out events to all configured sinks. One sink error does not
// block the others: errors are logged and the first one is returned.
type Router struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewRouter creates a fan-out router delivering to all sinks.
func NewRouter(logger *slog.Logger, sinks ...Sink) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{sinks: sinks, logger: logger}
}

// Len returns the number of attached sinks.
func (r *Router) Len() int { return len(r.sinks) }

func (r *Router) SendInjection(ctx context.Context, ev Injection) error {
	return r.each("injection", func(s Sink) error { return s.SendInjection(ctx, ev) })
}

func (r *Router) SendActivation(ctx context.Context, ev Activation) error {
	return r.each("activation", func(s Sink) error { return s.SendActivation(ctx, ev) })
}

func (r *Router) SendSync(ctx context.Context, ev SyncResult) error {
	return r.each("sync", func(s Sink) error { return s.SendSync(ctx, ev) })
}

func (r *Router) Close() error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Router) each(typ string, send func(Sink) error) error {
	var firstErr error
	for _, s := range r.sinks {
		if err := send(s); err != nil {
			r.logger.Warn("eventsink: send failed", "type", typ, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
