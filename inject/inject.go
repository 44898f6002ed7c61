// Package inject adds a custom action button to the authoring sidekick.
//
// The sidekick is a web component whose plugins container lives several
// shadow roots deep. The injector waits for the sidekick host element,
// gives it a fixed delay to render, locates the container with
// shadowtree.Locate and appends the button once. Every outcome is terminal:
// there are no retries.
package inject

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/hazyhaar/sktools/eventsink"
	"github.com/hazyhaar/sktools/idgen"
	"github.com/hazyhaar/sktools/shadowtree"
)

// State of an injection run.
type State int

const (
	StateWaiting        State = iota // host absent, waiting for the ready event
	StateProbing                     // host found, probe scheduled
	StateInjected                    // button appended
	StateAlreadyPresent              // button found in the container
	StateNotFound                    // no shadow root or no container
	StateNoHost                      // ready event fired but the host is still absent
)

var stateNames = [...]string{"waiting", "probing", "injected", "already_present", "not_found", "no_host"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether s ends a run.
func (s State) Terminal() bool { return s >= StateInjected }

// SnapshotLimit bounds the shadow markup logged when the container is
// missing.
const SnapshotLimit = 800

// InjectionNotFoundError explains a NotFound outcome. It is carried in
// Outcome.Err and never returned as a run error.
type InjectionNotFoundError struct {
	Reason   string // "no shadow root" or "container not found"
	Selector string
	Snapshot string // start of the host's shadow markup, when available
}

func (e *InjectionNotFoundError) Error() string {
	if e.Reason == ReasonNoShadowRoot {
		return "inject: sidekick shadowRoot not found"
	}
	return fmt.Sprintf("inject: %s not found in sidekick shadow tree", e.Selector)
}

const (
	ReasonNoShadowRoot = "no shadow root"
	ReasonNoContainer  = "container not found"
)

// Outcome is the terminal result of a run.
type Outcome struct {
	State State
	Err   error // *InjectionNotFoundError for StateNotFound
}

// Config configures an Injector.
type Config struct {
	HostSelector      string        // default: aem-sidekick
	ReadyEvent        string        // default: sidekick-ready
	ContainerSelector string        // default: .action-group.plugins-container
	Delay             time.Duration // default: 1s
	MaxDepth          *int          // nil: shadowtree.DefaultMaxDepth
	Button            Button        // default: DefaultButton()

	Scheduler    Scheduler      // default: TimerScheduler
	Sink         eventsink.Sink // optional
	Logger       *slog.Logger
	OnTransition func(State) // optional, called on every state change
}

func (c *Config) defaults() {
	if c.HostSelector == "" {
		c.HostSelector = "aem-sidekick"
	}
	if c.ReadyEvent == "" {
		c.ReadyEvent = "sidekick-ready"
	}
	if c.ContainerSelector == "" {
		c.ContainerSelector = ".action-group.plugins-container"
	}
	if c.Delay <= 0 {
		c.Delay = time.Second
	}
	if c.MaxDepth == nil {
		depth := shadowtree.DefaultMaxDepth
		c.MaxDepth = &depth
	}
	if c.Button.Tag == "" {
		c.Button = DefaultButton()
	}
	if c.Scheduler == nil {
		c.Scheduler = TimerScheduler{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Injector runs the injection state machine. It holds no per-run state and
// may be reused across documents.
type Injector struct {
	cfg Config
	ids idgen.Generator
}

// New creates an Injector.
func New(cfg Config) *Injector {
	cfg.defaults()
	return &Injector{cfg: cfg, ids: idgen.Prefixed("inj_", idgen.UUIDv7())}
}

// Button returns the configured button.
func (in *Injector) Button() Button { return in.cfg.Button }

// Run drives one injection. If the host is absent it waits for the ready
// event and looks again; then it schedules the probe after the delay.
// Only context cancellation and backend failures are returned as errors;
// a missing host or container is a terminal Outcome.
func (in *Injector) Run(ctx context.Context, doc Document) (Outcome, error) {
	log := in.cfg.Logger.With("url", doc.URL())

	host, err := doc.QueryHost(ctx, in.cfg.HostSelector)
	if err != nil {
		return Outcome{}, fmt.Errorf("inject: query host: %w", err)
	}
	if host == nil {
		in.transition(StateWaiting)
		log.Debug("inject: waiting for ready event", "event", in.cfg.ReadyEvent)
		if err := doc.WaitEvent(ctx, in.cfg.ReadyEvent); err != nil {
			return Outcome{}, err
		}
		host, err = doc.QueryHost(ctx, in.cfg.HostSelector)
		if err != nil {
			return Outcome{}, fmt.Errorf("inject: query host: %w", err)
		}
		if host == nil {
			log.Warn("inject: host element not found for fallback button", "selector", in.cfg.HostSelector)
			return in.finish(ctx, doc, Outcome{State: StateNoHost}), nil
		}
	}

	in.transition(StateProbing)
	type result struct {
		out Outcome
		err error
	}
	done := make(chan result, 1)
	task := in.cfg.Scheduler.AfterFunc(in.cfg.Delay, func() {
		out, err := in.Probe(ctx, doc, host)
		done <- result{out, err}
	})

	select {
	case r := <-done:
		if r.err != nil {
			return Outcome{}, r.err
		}
		return in.finish(ctx, doc, r.out), nil
	case <-ctx.Done():
		task.Stop()
		return Outcome{}, ctx.Err()
	}
}

// Probe is the delayed step: locate the container under host's shadow root
// and append the button unless it is already there.
func (in *Injector) Probe(ctx context.Context, doc Document, host shadowtree.Node) (Outcome, error) {
	log := in.cfg.Logger.With("url", doc.URL())
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	root, err := host.ShadowRoot()
	if err != nil {
		return Outcome{}, fmt.Errorf("inject: shadow root: %w", err)
	}
	if root == nil {
		log.Warn("inject: sidekick shadowRoot not found")
		return Outcome{State: StateNotFound, Err: &InjectionNotFoundError{
			Reason:   ReasonNoShadowRoot,
			Selector: in.cfg.ContainerSelector,
		}}, nil
	}

	container, err := shadowtree.Locate(root, in.cfg.ContainerSelector, shadowtree.WithMaxDepth(*in.cfg.MaxDepth))
	if errors.Is(err, shadowtree.ErrNotFound) {
		nf := &InjectionNotFoundError{Reason: ReasonNoContainer, Selector: in.cfg.ContainerSelector}
		if markup, merr := doc.Markup(ctx, root); merr == nil {
			nf.Snapshot = truncate(markup, SnapshotLimit)
		}
		log.Warn("inject: container not found in sidekick shadow tree", "selector", in.cfg.ContainerSelector)
		log.Debug("inject: sidekick shadow root snapshot", "html", nf.Snapshot)
		return Outcome{State: StateNotFound, Err: nf}, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("inject: locate container: %w", err)
	}

	existing, err := container.QuerySelector(in.cfg.Button.Selector())
	if err != nil {
		return Outcome{}, fmt.Errorf("inject: query button: %w", err)
	}
	if existing != nil {
		log.Debug("inject: button already present", "plugin", in.cfg.Button.PluginID)
		return Outcome{State: StateAlreadyPresent}, nil
	}

	if err := doc.AppendButton(ctx, container, in.cfg.Button); err != nil {
		return Outcome{}, fmt.Errorf("inject: append button: %w", err)
	}
	log.Info("inject: custom button added to sidekick plugins container",
		"plugin", in.cfg.Button.PluginID, "label", in.cfg.Button.Label)
	return Outcome{State: StateInjected}, nil
}

// Activated reports a click on an injected button.
func (in *Injector) Activated(ctx context.Context, pageURL string) {
	b := in.cfg.Button
	in.cfg.Logger.Info("inject: button clicked", "url", pageURL, "plugin", b.PluginID, "event", b.Event)
	if in.cfg.Sink == nil {
		return
	}
	ev := eventsink.Activation{
		ID:        in.ids(),
		PageURL:   pageURL,
		PluginID:  b.PluginID,
		Event:     b.Event,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := in.cfg.Sink.SendActivation(ctx, ev); err != nil {
		in.cfg.Logger.Warn("inject: sink failed", "error", err)
	}
}

func (in *Injector) finish(ctx context.Context, doc Document, out Outcome) Outcome {
	in.transition(out.State)
	if in.cfg.Sink == nil {
		return out
	}
	ev := eventsink.Injection{
		ID:        in.ids(),
		PageURL:   doc.URL(),
		State:     out.State.String(),
		PluginID:  in.cfg.Button.PluginID,
		Timestamp: time.Now().UnixMilli(),
	}
	var nf *InjectionNotFoundError
	if errors.As(out.Err, &nf) {
		ev.Reason = nf.Reason
	}
	if out.State == StateNoHost {
		ev.Reason = "host " + in.cfg.HostSelector + " absent after " + in.cfg.ReadyEvent
	}
	if err := in.cfg.Sink.SendInjection(ctx, ev); err != nil {
		in.cfg.Logger.Warn("inject: sink failed", "error", err)
	}
	return out
}

func (in *Injector) transition(s State) {
	if in.cfg.OnTransition != nil {
		in.cfg.OnTransition(s)
	}
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
