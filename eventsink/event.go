// Package eventsink defines the events emitted by sktools and the backends
// that deliver them: JSON lines on stdout, webhook POSTs, in-process
// callbacks, and a fan-out router.
package eventsink

import "encoding/json"

// Injection reports the terminal state of one sidekick button injection.
type Injection struct {
	ID        string `json:"id"`
	PageURL   string `json:"page_url,omitempty"`
	State     string `json:"state"`            // injected | already_present | not_found | no_host
	Reason    string `json:"reason,omitempty"` // why not_found / no_host
	PluginID  string `json:"plugin_id"`
	Timestamp int64  `json:"timestamp"` // epoch milliseconds
}

// Activation reports a click on an injected button.
type Activation struct {
	ID        string `json:"id"`
	PageURL   string `json:"page_url,omitempty"`
	PluginID  string `json:"plugin_id"`
	Event     string `json:"event"`
	Timestamp int64  `json:"timestamp"`
}

// SyncResult reports one config sync run.
type SyncResult struct {
	RunID     string   `json:"run_id"`
	Owner     string   `json:"owner"`
	Repo      string   `json:"repo"`
	Path      string   `json:"path"`
	Changed   bool     `json:"changed"`
	DryRun    bool     `json:"dry_run,omitempty"`
	OldSHA    string   `json:"old_sha,omitempty"`
	NewSHA    string   `json:"new_sha,omitempty"`
	Added     []string `json:"added,omitempty"`
	Replaced  []string `json:"replaced,omitempty"`
	Error     string   `json:"error,omitempty"`
	Timestamp int64    `json:"timestamp"`
}

// envelope is the wire shape shared by the stdout and webhook sinks.
type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Decode splits an envelope produced by the stdout or webhook sinks into its
// type and raw payload.
func Decode(line []byte) (string, json.RawMessage, error) {
	var env struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(line, &env); err != nil {
		return "", nil, err
	}
	return env.Type, env.Data, nil
}
