package main

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/sktools/bootstrap"
	"github.com/hazyhaar/sktools/journal"
	"github.com/hazyhaar/sktools/mcptools"
)

func newMCPCommand(a *app) *cobra.Command {
	var journalPath string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the sktools MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps := mcptools.Deps{Logger: a.logger}

			if journalPath == "" {
				journalPath = a.cfg.Journal
			}
			if journalPath != "" {
				j, err := journal.Open(journalPath)
				if err != nil {
					return err
				}
				defer j.Close()
				deps.Journal = j
			}
			if base := a.cfg.Fragments.BaseURL; base != "" {
				l, err := bootstrap.NewHTTPFragmentLoader(base, bootstrap.WithTimeout(a.cfg.Fragments.Timeout))
				if err != nil {
					return err
				}
				deps.Fragments = l
			}

			srv := mcp.NewServer(&mcp.Implementation{Name: "sktools", Version: cmd.Root().Version}, nil)
			mcptools.Register(srv, deps)
			a.logger.Info("mcp: serving on stdio")
			return srv.Run(cmd.Context(), &mcp.StdioTransport{})
		},
	}
	cmd.Flags().StringVar(&journalPath, "journal", "", "sqlite journal for sktools_history (overrides config)")
	return cmd
}
