// Command sktools keeps the authoring sidekick configured: it merges plugin
// descriptors into the remote sidekick config, injects the fallback action
// button into live pages, and runs the page auto-blocking pass offline.
//
// Usage:
//
//	sktools sync [--config sktools.yaml] [--dry-run]
//	sktools inject --url https://main--site--org.aem.page/
//	sktools locate --file page.html --selector .plugins-container
//	sktools decorate --file page.html --format markdown
//	sktools serve --addr :8086 --db contents.db
//	sktools history --journal sync.db
//	sktools mcp
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand(version).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
