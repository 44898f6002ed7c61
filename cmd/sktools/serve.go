package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/sktools/contentsrv"
	"github.com/hazyhaar/sktools/dbopen"
)

func newServeCommand(a *app) *cobra.Command {
	var (
		addr   string
		dbPath string
		token  string
		seed   string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a local contents API for development and dry runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg
			if addr == "" {
				addr = cfg.Server.Addr
			}
			if dbPath == "" {
				dbPath = cfg.Server.DB
			}
			if token == "" && cfg.Server.TokenEnv != "" {
				token = a.getenv(cfg.Server.TokenEnv)
			}

			db, err := dbopen.Open(dbPath, dbopen.WithMkdirAll())
			if err != nil {
				return err
			}
			defer db.Close()

			opts := []contentsrv.Option{contentsrv.WithLogger(a.logger)}
			if token != "" {
				opts = append(opts, contentsrv.WithToken(token))
			}
			srv, err := contentsrv.New(db, opts...)
			if err != nil {
				return err
			}

			if seed != "" {
				data, err := os.ReadFile(seed)
				if err != nil {
					return fmt.Errorf("serve: seed: %w", err)
				}
				loc := cfg.Sync.Location
				sha, err := srv.Seed(cmd.Context(), loc.Owner, loc.Repo, loc.Branch, loc.Path, data)
				if err != nil {
					return err
				}
				a.logger.Info("serve: seeded", "location", loc.String(), "sha", sha)
			}
			return srv.ListenAndServe(cmd.Context(), addr)
		},
	}
	f := cmd.Flags()
	f.StringVar(&addr, "addr", "", "listen address (default from config, :8086)")
	f.StringVar(&dbPath, "db", "", "sqlite database path (default from config)")
	f.StringVar(&token, "token", "", "bearer token clients must send (default: none)")
	f.StringVar(&seed, "seed", "", "file written to the configured sync location at startup")
	return cmd
}
