package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/sktools/config"
	"github.com/hazyhaar/sktools/configsync"
	"github.com/hazyhaar/sktools/contents"
	"github.com/hazyhaar/sktools/journal"
	"github.com/hazyhaar/sktools/watch"
)

type syncFlags struct {
	dryRun      bool
	asJSON      bool
	journalPath string
	baseURL     string
	loc         configsync.Location
}

func newSyncCommand(a *app) *cobra.Command {
	var (
		fl          syncFlags
		watchConfig bool
		debounce    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Ensure the configured plugins in the remote sidekick config.json",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if watchConfig && a.configPath == "" {
				return errors.New("--watch needs --config")
			}
			out := cmd.OutOrStdout()
			run := func(ctx context.Context, cfg *config.Config) error {
				return runSync(ctx, a, cfg, out, fl)
			}
			if err := run(cmd.Context(), a.cfg); err != nil {
				return err
			}
			if !watchConfig {
				return nil
			}
			w := watch.New(a.configPath, watch.Options{Debounce: debounce, Logger: a.logger})
			return w.OnChange(cmd.Context(), func(ctx context.Context) error {
				cfg, err := config.LoadFile(a.configPath)
				if err != nil {
					return err
				}
				return run(ctx, cfg)
			})
		},
	}
	f := cmd.Flags()
	f.BoolVar(&fl.dryRun, "dry-run", false, "merge and compare but do not commit")
	f.BoolVar(&fl.asJSON, "json", false, "print the run report as JSON")
	f.StringVar(&fl.journalPath, "journal", "", "sqlite path recording every run (overrides config)")
	f.StringVar(&fl.baseURL, "base-url", "", "contents API base URL (overrides config)")
	f.StringVar(&fl.loc.Owner, "owner", "", "repository owner (overrides config)")
	f.StringVar(&fl.loc.Repo, "repo", "", "repository name (overrides config)")
	f.StringVar(&fl.loc.Path, "path", "", "config file path (overrides config)")
	f.StringVar(&fl.loc.Branch, "branch", "", "branch to read and commit (default branch when empty)")
	f.BoolVar(&watchConfig, "watch", false, "stay running and sync again whenever the config file changes")
	f.DurationVar(&debounce, "debounce", watch.DefaultDebounce, "quiet period after a config change before syncing again")
	return cmd
}

// runSync performs one sync pass with cfg, flags taking precedence.
func runSync(ctx context.Context, a *app, cfg *config.Config, out io.Writer, fl syncFlags) error {
	token, err := cfg.Token(a.getenv)
	if err != nil {
		return err
	}
	baseURL := fl.baseURL
	if baseURL == "" {
		baseURL = cfg.Sync.BaseURL
	}
	target := cfg.Sync.Location
	if fl.loc.Owner != "" {
		target.Owner = fl.loc.Owner
	}
	if fl.loc.Repo != "" {
		target.Repo = fl.loc.Repo
	}
	if fl.loc.Path != "" {
		target.Path = fl.loc.Path
	}
	if fl.loc.Branch != "" {
		target.Branch = fl.loc.Branch
	}
	journalPath := fl.journalPath
	if journalPath == "" {
		journalPath = cfg.Journal
	}

	opts := []configsync.Option{
		configsync.WithMessage(cfg.Sync.Message),
		configsync.WithDryRun(fl.dryRun),
		configsync.WithLogger(a.logger),
	}
	if sink := buildSinks(cfg.Sinks, out, a.logger); sink != nil {
		defer sink.Close()
		opts = append(opts, configsync.WithSink(sink))
	}
	if journalPath != "" {
		j, err := journal.Open(journalPath)
		if err != nil {
			return err
		}
		defer j.Close()
		opts = append(opts, configsync.WithJournal(j))
	}

	client := contents.New(baseURL, token)
	syncer := configsync.NewSyncer(configsync.ContentsStore{Client: client}, opts...)

	if !fl.asJSON {
		fmt.Fprintf(out, "Fetching current Sidekick config from %s...\n", target)
	}
	rep, err := syncer.Sync(ctx, target, cfg.Sync.Plugins)
	if err != nil {
		return err
	}

	if fl.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	for _, id := range rep.Changes.Added {
		fmt.Fprintf(out, "Added plugin: %s\n", id)
	}
	for _, id := range rep.Changes.Replaced {
		fmt.Fprintf(out, "Replaced plugin: %s\n", id)
	}
	switch {
	case !rep.Changed:
		fmt.Fprintln(out, "No changes to apply.")
	case rep.DryRun:
		fmt.Fprintln(out, "Dry run, not committing. New content:")
		fmt.Fprint(out, string(rep.Content))
		if !strings.HasSuffix(string(rep.Content), "\n") {
			fmt.Fprintln(out)
		}
	default:
		fmt.Fprintf(out, "Update successful. New file SHA: %s\n", rep.NewSHA)
	}
	return nil
}
