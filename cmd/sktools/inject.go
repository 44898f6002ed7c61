package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/sktools/config"
	"github.com/hazyhaar/sktools/eventsink"
	"github.com/hazyhaar/sktools/inject"
)

func newInjectCommand(a *app) *cobra.Command {
	var (
		pageURL string
		remote  string
		listen  bool
	)
	cmd := &cobra.Command{
		Use:   "inject",
		Short: "Open a page in Chrome and inject the sidekick fallback button",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if pageURL == "" {
				return errors.New("inject: --url is required")
			}
			cfg := a.cfg
			if remote != "" {
				cfg.Browser.Remote = remote
			}

			sink := buildSinks(cfg.Sinks, cmd.OutOrStdout(), a.logger)
			if sink != nil {
				defer sink.Close()
			}
			in := newInjector(cfg.Inject, sink, a)

			b, err := inject.NewBrowser(inject.BrowserConfig{
				Remote:           cfg.Browser.Remote,
				Mode:             cfg.Browser.Mode,
				XvfbDisplay:      cfg.Browser.XvfbDisplay,
				ResourceBlocking: cfg.Browser.ResourceBlocking,
				Logger:           a.logger,
			})
			if err != nil {
				return err
			}
			defer b.Close()

			// Clicks are reported for as long as the command runs.
			ctx := cmd.Context()
			page, err := b.Open(ctx, pageURL, cfg.Inject.ReadyEvent, func(ctx context.Context) {
				in.Activated(ctx, pageURL)
			})
			if err != nil {
				return err
			}
			defer page.Close()

			runCtx, cancel := context.WithTimeout(ctx, cfg.Inject.Timeout)
			defer cancel()
			out, err := in.Run(runCtx, page)
			if err != nil {
				return fmt.Errorf("inject: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", pageURL, out.State)
			if out.Err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), out.Err)
			}
			if listen && (out.State == inject.StateInjected || out.State == inject.StateAlreadyPresent) {
				a.logger.Info("inject: listening for clicks, interrupt to stop", "url", pageURL)
				<-ctx.Done()
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&pageURL, "url", "", "page to open")
	f.StringVar(&remote, "remote", "", "DevTools WebSocket URL of a running Chrome (overrides config)")
	f.BoolVar(&listen, "listen", false, "keep the page open and report button clicks until interrupted")
	return cmd
}

func newInjector(ic config.InjectConfig, sink eventsink.Sink, a *app) *inject.Injector {
	b := inject.DefaultButton()
	b.PluginID = ic.PluginID
	b.Label = ic.Label
	b.Event = ic.Event
	return inject.New(inject.Config{
		HostSelector:      ic.HostSelector,
		ReadyEvent:        ic.ReadyEvent,
		ContainerSelector: ic.ContainerSelector,
		Delay:             ic.Delay,
		MaxDepth:          ic.MaxDepth,
		Button:            b,
		Sink:              sink,
		Logger:            a.logger,
	})
}
