package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/sktools/config"
)

// app carries what every subcommand needs once the root flags are parsed.
type app struct {
	configPath string
	logLevel   string
	getenv     func(string) string

	cfg    *config.Config
	logger *slog.Logger
}

// NewRootCommand builds the sktools command tree.
func NewRootCommand(version string) *cobra.Command {
	return newRootCommand(version, os.Getenv)
}

func newRootCommand(version string, getenv func(string) string) *cobra.Command {
	a := &app{getenv: getenv}

	root := &cobra.Command{
		Use:   "sktools",
		Short: "Sidekick configuration and injection tools",
		Long: `sktools keeps an authoring sidekick configured.

It merges plugin descriptors into the sidekick config.json of a repository,
injects the fallback A/B testing button into live pages, searches composed
shadow trees, and runs the page auto-blocking pass on saved pages.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to sktools.yaml (defaults apply when empty)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "info", "log level: debug, info, warn, error")

	root.AddCommand(
		newSyncCommand(a),
		newInjectCommand(a),
		newLocateCommand(a),
		newDecorateCommand(a),
		newServeCommand(a),
		newHistoryCommand(a),
		newMCPCommand(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	level, err := parseLevel(a.logLevel)
	if err != nil {
		return err
	}
	a.logger = slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	slog.SetDefault(a.logger)

	if a.configPath == "" {
		a.cfg = config.Default()
		return nil
	}
	a.cfg, err = config.LoadFile(a.configPath)
	return err
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}
