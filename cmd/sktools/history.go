package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/sktools/journal"
)

func newHistoryCommand(a *app) *cobra.Command {
	var (
		journalPath string
		limit       int
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded sync runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if journalPath == "" {
				journalPath = a.cfg.Journal
			}
			if journalPath == "" {
				return errors.New("history: no journal; pass --journal or set journal in the config")
			}
			j, err := journal.Open(journalPath)
			if err != nil {
				return err
			}
			defer j.Close()

			runs, err := j.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tOUTCOME\tLOCATION\tSHA\tERROR")
			for _, r := range runs {
				sha := r.OldSHA
				if r.NewSHA != "" {
					sha = r.NewSHA
				}
				fmt.Fprintf(tw, "%s\t%s\t%s/%s/%s\t%s\t%s\n",
					r.StartedAt.UTC().Format(time.RFC3339), r.Outcome, r.Owner, r.Repo, r.Path, short(sha), r.Error)
			}
			return tw.Flush()
		},
	}
	f := cmd.Flags()
	f.StringVar(&journalPath, "journal", "", "sqlite journal path (overrides config)")
	f.IntVar(&limit, "limit", 20, "maximum runs to list")
	f.BoolVar(&asJSON, "json", false, "print runs as JSON")
	return cmd
}

func short(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
