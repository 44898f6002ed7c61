package eventsink

import "context"

// Callback delivers events via Go function calls, for embedding sktools in
// a larger process. Any handler may be nil.
type Callback struct {
	OnInjection  func(ctx context.Context, ev Injection) error
	OnActivation func(ctx context.Context, ev Activation) error
	OnSync       func(ctx context.Context, ev SyncResult) error
}

func (c *Callback) SendInjection(ctx context.Context, ev Injection) error {
	if c.OnInjection != nil {
		return c.OnInjection(ctx, ev)
	}
	return nil
}

func (c *Callback) SendActivation(ctx context.Context, ev Activation) error {
	if c.OnActivation != nil {
		return c.OnActivation(ctx, ev)
	}
	return nil
}

func (c *Callback) SendSync(ctx context.Context, ev SyncResult) error {
	if c.OnSync != nil {
		return c.OnSync(ctx, ev)
	}
	return nil
}

func (c *Callback) Close() error { return nil }
