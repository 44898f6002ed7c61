package configsync

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/sktools/eventsink"
	"github.com/hazyhaar/sktools/idgen"
	"github.com/hazyhaar/sktools/journal"
	"github.com/hazyhaar/sktools/plugin"
)

// DefaultMessage is the commit message of a configuration update.
const DefaultMessage = "chore: update Sidekick plugins via script"

// ParseError means the remote file is not a JSON object. Nothing is written.
type ParseError struct {
	Location Location
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("configsync: failed to parse JSON from %s: %v", e.Location.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Recorder stores a summary of each run.
type Recorder interface {
	Record(ctx context.Context, run journal.Run) error
}

// Report describes one Sync call.
type Report struct {
	RunID    string         `json:"run_id"`
	Location Location       `json:"location"`
	Changed  bool           `json:"changed"`
	DryRun   bool           `json:"dry_run,omitempty"`
	OldSHA   string         `json:"old_sha"`
	NewSHA   string         `json:"new_sha,omitempty"`
	Changes  plugin.Changes `json:"changes"`
	Content  []byte         `json:"-"`
}

// Syncer runs the read, merge, compare, write sequence.
type Syncer struct {
	store   Store
	message string
	dryRun  bool
	journal Recorder
	sink    eventsink.Sink
	logger  *slog.Logger
	ids     idgen.Generator
	now     func() time.Time
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithMessage sets the commit message. Default: DefaultMessage.
func WithMessage(m string) Option { return func(s *Syncer) { s.message = m } }

// WithDryRun stops every run after the comparison; Report.Content holds
// what would have been written.
func WithDryRun(on bool) Option { return func(s *Syncer) { s.dryRun = on } }

// WithJournal records every run.
func WithJournal(r Recorder) Option { return func(s *Syncer) { s.journal = r } }

// WithSink emits a sync event per run.
func WithSink(sk eventsink.Sink) Option { return func(s *Syncer) { s.sink = sk } }

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option { return func(s *Syncer) { s.logger = l } }

// NewSyncer creates a Syncer over store.
func NewSyncer(store Store, opts ...Option) *Syncer {
	s := &Syncer{
		store:   store,
		message: DefaultMessage,
		logger:  slog.Default(),
		ids:     idgen.Prefixed("run_", idgen.UUIDv7()),
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Sync ensures desired in the file at loc. An unchanged merge issues no
// write and returns Changed false. A stale version token surfaces as
// *contents.ConflictError and is not retried.
func (s *Syncer) Sync(ctx context.Context, loc Location, desired []plugin.Descriptor) (*Report, error) {
	start := s.now()
	rep := &Report{RunID: s.ids(), Location: loc, DryRun: s.dryRun}

	err := s.run(ctx, loc, desired, rep)
	s.finish(ctx, rep, start, err)
	if err != nil {
		return nil, err
	}
	return rep, nil
}

func (s *Syncer) run(ctx context.Context, loc Location, desired []plugin.Descriptor, rep *Report) error {
	if err := plugin.ValidateAll(desired); err != nil {
		return fmt.Errorf("configsync: %w", err)
	}

	s.logger.Info("configsync: fetching config", "location", loc.String())
	file, err := s.store.Read(ctx, loc)
	if err != nil {
		return fmt.Errorf("configsync: read %s: %w", loc, err)
	}
	rep.OldSHA = file.SHA

	doc, err := plugin.Parse(file.Content)
	if err != nil {
		return &ParseError{Location: loc, Err: err}
	}
	s.logger.Debug("configsync: config loaded", "sha", file.SHA, "keys", doc.Keys())

	updated, changes := plugin.Ensure(desired, doc)
	rep.Changes = changes
	for _, id := range changes.Added {
		s.logger.Info("configsync: added plugin", "id", id)
	}
	for _, id := range changes.Replaced {
		s.logger.Info("configsync: replaced plugin", "id", id)
	}

	before, err := doc.Encode()
	if err != nil {
		return fmt.Errorf("configsync: %w", err)
	}
	after, err := updated.Encode()
	if err != nil {
		return fmt.Errorf("configsync: %w", err)
	}
	if bytes.Equal(before, after) {
		s.logger.Info("configsync: no changes to apply", "location", loc.String())
		return nil
	}
	rep.Changed = true
	rep.Content = after

	if s.dryRun {
		s.logger.Info("configsync: dry run, not committing", "location", loc.String(), "bytes", len(after))
		return nil
	}

	s.logger.Info("configsync: committing updated config", "location", loc.String())
	newSHA, err := s.store.Write(ctx, loc, s.message, after, file.SHA)
	if err != nil {
		return fmt.Errorf("configsync: write %s: %w", loc, err)
	}
	rep.NewSHA = newSHA
	s.logger.Info("configsync: update successful", "sha", newSHA)
	return nil
}

func (s *Syncer) finish(ctx context.Context, rep *Report, start time.Time, runErr error) {
	outcome := journal.OutcomeUnchanged
	switch {
	case runErr != nil:
		outcome = journal.OutcomeFailed
	case rep.Changed && rep.DryRun:
		outcome = journal.OutcomePlanned
	case rep.Changed:
		outcome = journal.OutcomeUpdated
	}
	errText := ""
	if runErr != nil {
		errText = runErr.Error()
	}

	if s.journal != nil {
		run := journal.Run{
			ID:        rep.RunID,
			Owner:     rep.Location.Owner,
			Repo:      rep.Location.Repo,
			Path:      rep.Location.Path,
			Branch:    rep.Location.Branch,
			Outcome:   outcome,
			OldSHA:    rep.OldSHA,
			NewSHA:    rep.NewSHA,
			Added:     rep.Changes.Added,
			Replaced:  rep.Changes.Replaced,
			Error:     errText,
			StartedAt: start,
			Duration:  s.now().Sub(start),
		}
		if err := s.journal.Record(ctx, run); err != nil {
			s.logger.Warn("configsync: journal record failed", "run_id", rep.RunID, "error", err)
		}
	}

	if s.sink != nil {
		ev := eventsink.SyncResult{
			RunID:     rep.RunID,
			Owner:     rep.Location.Owner,
			Repo:      rep.Location.Repo,
			Path:      rep.Location.Path,
			Changed:   rep.Changed,
			DryRun:    rep.DryRun,
			OldSHA:    rep.OldSHA,
			NewSHA:    rep.NewSHA,
			Added:     rep.Changes.Added,
			Replaced:  rep.Changes.Replaced,
			Error:     errText,
			Timestamp: s.now().UnixMilli(),
		}
		if err := s.sink.SendSync(ctx, ev); err != nil {
			s.logger.Warn("configsync: sink failed", "run_id", rep.RunID, "error", err)
		}
	}
}
