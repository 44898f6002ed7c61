package main

import (
	"io"
	"log/slog"

	"github.com/hazyhaar/sktools/config"
	"github.com/hazyhaar/sktools/eventsink"
)

// buildSinks turns the configured outputs into one sink. Nil when none is
// configured.
func buildSinks(cfgs []config.SinkConfig, stdout io.Writer, logger *slog.Logger) eventsink.Sink {
	if len(cfgs) == 0 {
		return nil
	}
	var sinks []eventsink.Sink
	for _, sc := range cfgs {
		switch sc.Type {
		case "stdout":
			sinks = append(sinks, eventsink.NewStdout(stdout))
		case "webhook":
			opts := []eventsink.WebhookOption{eventsink.WithWebhookLogger(logger)}
			if sc.Retries > 0 {
				opts = append(opts, eventsink.WithWebhookRetries(sc.Retries))
			}
			sinks = append(sinks, eventsink.NewWebhook(sc.URL, opts...))
		}
	}
	return eventsink.NewRouter(logger, sinks...)
}
