package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/net/html"

	"github.com/hazyhaar/sktools/bootstrap"
)

func newDecorateCommand(a *app) *cobra.Command {
	var (
		file          string
		fragmentsBase string
		format        string
	)
	cmd := &cobra.Command{
		Use:   "decorate",
		Short: "Run the page auto-blocking pass (fragments, hero) on a saved page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				return errors.New("decorate: --file is required")
			}
			if format != "html" && format != "markdown" {
				return fmt.Errorf("decorate: unknown format %q", format)
			}
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("decorate: %w", err)
			}
			defer f.Close()
			doc, err := html.Parse(f)
			if err != nil {
				return fmt.Errorf("decorate: parse: %w", err)
			}
			main := bootstrap.FindMain(doc)
			if main == nil {
				return errors.New("decorate: page has no <main> element")
			}

			if fragmentsBase == "" {
				fragmentsBase = a.cfg.Fragments.BaseURL
			}
			var loader bootstrap.FragmentLoader
			if fragmentsBase != "" {
				l, err := bootstrap.NewHTTPFragmentLoader(fragmentsBase, bootstrap.WithTimeout(a.cfg.Fragments.Timeout))
				if err != nil {
					return err
				}
				loader = l
			}

			res, err := bootstrap.DecorateMain(cmd.Context(), main, loader,
				bootstrap.WithConcurrency(a.cfg.Fragments.Concurrency),
				bootstrap.WithLogger(a.logger))
			if err != nil {
				return err
			}
			a.logger.Info("decorate: done",
				"fragments", res.Fragments, "inlined", res.Inlined, "failed", len(res.Failed), "hero", res.Hero)

			out := cmd.OutOrStdout()
			if format == "markdown" {
				md, err := bootstrap.Markdown(main)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, md)
				return err
			}
			return html.Render(out, doc)
		},
	}
	f := cmd.Flags()
	f.StringVar(&file, "file", "", "HTML page to decorate")
	f.StringVar(&fragmentsBase, "fragments-base", "", "site origin fragments are loaded from (overrides config; empty skips fragments)")
	f.StringVar(&format, "format", "html", "output format: html or markdown")
	return cmd
}
