package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/sktools/htmldom"
	"github.com/hazyhaar/sktools/shadowtree"
)

func newLocateCommand(a *app) *cobra.Command {
	var (
		file     string
		selector string
		maxDepth int
	)
	cmd := &cobra.Command{
		Use:   "locate",
		Short: "Find an element in a saved page, searching shadow roots and slots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" || selector == "" {
				return errors.New("locate: --file and --selector are required")
			}
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("locate: %w", err)
			}
			defer f.Close()
			doc, err := htmldom.Parse(f)
			if err != nil {
				return err
			}

			if !cmd.Flags().Changed("max-depth") {
				maxDepth = *a.cfg.Inject.MaxDepth
			}
			hit, err := shadowtree.Locate(doc.Root(), selector, shadowtree.WithMaxDepth(maxDepth))
			if err != nil {
				return fmt.Errorf("locate %q: %w", selector, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), hit.(*htmldom.Node).OuterHTML())
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&file, "file", "", "HTML file with declarative shadow roots")
	f.StringVar(&selector, "selector", "", "CSS selector")
	f.IntVar(&maxDepth, "max-depth", 0, "shadow boundaries to cross (default from config)")
	return cmd
}
