package eventsink

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
)

// Stdout writes JSON lines to an io.Writer (default os.Stdout).
type Stdout struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewStdout creates a Stdout sink. If w is nil, os.Stdout is used.
func NewStdout(w io.Writer) *Stdout {
	if w == nil {
		w = os.Stdout
	}
	return &Stdout{enc: json.NewEncoder(w)}
}

func (s *Stdout) SendInjection(_ context.Context, ev Injection) error {
	return s.write("injection", ev)
}

func (s *Stdout) SendActivation(_ context.Context, ev Activation) error {
	return s.write("activation", ev)
}

func (s *Stdout) SendSync(_ context.Context, ev SyncResult) error {
	return s.write("sync", ev)
}

func (s *Stdout) Close() error { return nil }

func (s *Stdout) write(typ string, data any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(envelope{Type: typ, Data: data})
}
