package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/sktools/config"
	"github.com/hazyhaar/sktools/contentsrv"
	"github.com/hazyhaar/sktools/dbopen"
	"github.com/hazyhaar/sktools/journal"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

// execute runs the command tree with args and returns stdout and stderr.
func execute(t *testing.T, getenv func(string) string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand("test", getenv)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func contentsServer(t *testing.T, initial string) (*contentsrv.Server, string) {
	t.Helper()
	s, err := contentsrv.New(dbopen.OpenMemory(t),
		contentsrv.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		contentsrv.WithToken("tok"))
	require.NoError(t, err)
	_, err = s.Seed(context.Background(), "sudo-buddy", "wgw2025", "", "tools/sidekick/config.json", []byte(initial))
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts.URL
}

func TestSync_MissingToken(t *testing.T) {
	_, _, err := execute(t, env(nil), "sync")
	var mce *config.MissingCredentialError
	require.ErrorAs(t, err, &mce)
	assert.Equal(t, "ERROR: Please set GITHUB_TOKEN env var with a token that has access to the repo.", err.Error())
}

func TestSync_UpdatesThenNoop(t *testing.T) {
	srv, url := contentsServer(t, `{"project":"wgw","plugins":[{"id":"experimentation","title":"Old"}]}`)
	journalPath := filepath.Join(t.TempDir(), "runs.db")
	getenv := env(map[string]string{"GITHUB_TOKEN": "tok"})

	out, _, err := execute(t, getenv, "sync", "--base-url", url, "--journal", journalPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Fetching current Sidekick config from sudo-buddy/wgw2025/tools/sidekick/config.json")
	assert.Contains(t, out, "Replaced plugin: experimentation")
	assert.Contains(t, out, "Update successful. New file SHA: ")

	commits, err := srv.Commits(context.Background(), "sudo-buddy", "wgw2025", "", "tools/sidekick/config.json")
	require.NoError(t, err)
	require.Len(t, commits, 2)
	assert.Equal(t, "chore: update Sidekick plugins via script", commits[0].Message)

	out, _, err = execute(t, getenv, "sync", "--base-url", url, "--journal", journalPath)
	require.NoError(t, err)
	assert.Contains(t, out, "No changes to apply.")

	commits, err = srv.Commits(context.Background(), "sudo-buddy", "wgw2025", "", "tools/sidekick/config.json")
	require.NoError(t, err)
	assert.Len(t, commits, 2, "an unchanged merge must not commit")

	j, err := journal.Open(journalPath)
	require.NoError(t, err)
	defer j.Close()
	runs, err := j.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, journal.OutcomeUnchanged, runs[0].Outcome)
	assert.Equal(t, journal.OutcomeUpdated, runs[1].Outcome)

	out, _, err = execute(t, getenv, "history", "--journal", journalPath)
	require.NoError(t, err)
	assert.Contains(t, out, "OUTCOME")
	assert.Contains(t, out, "unchanged")
	assert.Contains(t, out, "updated")
}

func TestSync_DryRun(t *testing.T) {
	srv, url := contentsServer(t, `{"plugins":[]}`)
	out, _, err := execute(t, env(map[string]string{"GITHUB_TOKEN": "tok"}), "sync", "--base-url", url, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Added plugin: experimentation")
	assert.Contains(t, out, `"title": "A/B Testing"`)

	commits, err := srv.Commits(context.Background(), "sudo-buddy", "wgw2025", "", "tools/sidekick/config.json")
	require.NoError(t, err)
	assert.Len(t, commits, 1)
}

func TestSync_BadToken(t *testing.T) {
	_, url := contentsServer(t, `{}`)
	_, _, err := execute(t, env(map[string]string{"GITHUB_TOKEN": "wrong"}), "sync", "--base-url", url)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestSync_MalformedRemote(t *testing.T) {
	_, url := contentsServer(t, `{"plugins": [`)
	_, _, err := execute(t, env(map[string]string{"GITHUB_TOKEN": "tok"}), "sync", "--base-url", url)
	require.Error(t, err)
}

func TestSync_ConfigFile(t *testing.T) {
	_, url := contentsServer(t, `{}`)
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "sktools.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(`
sync:
  base_url: `+url+`
  token_env: SK_TOKEN
  plugins:
    - id: tagger
      title: Tagger
      environments: [edit]
      event: tagger
`), 0o644))

	out, _, err := execute(t, env(map[string]string{"SK_TOKEN": "tok"}), "--config", cfgFile, "sync", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"changed": true`)
	assert.Contains(t, out, `"tagger"`)
}

func TestSync_WatchRequiresConfig(t *testing.T) {
	_, _, err := execute(t, env(map[string]string{"GITHUB_TOKEN": "tok"}), "sync", "--watch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--watch needs --config")
}

func TestSync_WatchResyncsOnConfigChange(t *testing.T) {
	srv, url := contentsServer(t, `{}`)
	cfgFile := filepath.Join(t.TempDir(), "sktools.yaml")
	writeConfig := func(ids ...string) {
		var b strings.Builder
		b.WriteString("sync:\n  base_url: " + url + "\n  plugins:\n")
		for _, id := range ids {
			b.WriteString("    - id: " + id + "\n      title: " + id + "\n")
		}
		require.NoError(t, os.WriteFile(cfgFile, []byte(b.String()), 0o644))
	}
	writeConfig("tagger")

	commits := func() int {
		c, err := srv.Commits(context.Background(), "sudo-buddy", "wgw2025", "", "tools/sidekick/config.json")
		require.NoError(t, err)
		return len(c)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cmd := newRootCommand("test", env(map[string]string{"GITHUB_TOKEN": "tok"}))
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--config", cfgFile, "sync", "--watch", "--debounce", "20ms"})
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool { return commits() == 2 }, 5*time.Second, 20*time.Millisecond)

	// The first write can land before the watch is registered, so rewrite
	// until it is seen. Rewrites are spaced well past the debounce window and
	// a rewrite with the same plugins merges to an unchanged document.
	require.Eventually(t, func() bool {
		if commits() < 3 {
			writeConfig("tagger", "notes")
		}
		return commits() == 3
	}, 5*time.Second, 200*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("sync --watch did not stop")
	}
	assert.Equal(t, 3, commits())
}

const shadowPage = `<html><body>
<aem-sidekick><template shadowrootmode="open">
  <plugin-action-bar><template shadowrootmode="open">
    <div class="action-group plugins-container"><sk-action-button>Publish</sk-action-button></div>
  </template></plugin-action-bar>
</template></aem-sidekick>
</body></html>`

func TestLocate(t *testing.T) {
	file := filepath.Join(t.TempDir(), "page.html")
	require.NoError(t, os.WriteFile(file, []byte(shadowPage), 0o644))

	out, _, err := execute(t, env(nil), "locate", "--file", file, "--selector", ".plugins-container")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, `<div class="action-group plugins-container">`))

	_, _, err = execute(t, env(nil), "locate", "--file", file, "--selector", ".plugins-container", "--max-depth", "1")
	assert.ErrorContains(t, err, "not found")

	_, _, err = execute(t, env(nil), "locate", "--file", file, "--selector", ".plugins-container", "--max-depth", "0")
	assert.ErrorContains(t, err, "not found", "an explicit zero must not fall back to the config depth")
}

func TestDecorate_Markdown(t *testing.T) {
	file := filepath.Join(t.TempDir(), "page.html")
	require.NoError(t, os.WriteFile(file, []byte(
		`<html><body><main><div><picture><img src="a.png" alt="a"></picture><h1>Welcome</h1><p>Body</p></div></main></body></html>`,
	), 0o644))

	out, _, err := execute(t, env(nil), "decorate", "--file", file, "--format", "markdown")
	require.NoError(t, err)
	assert.Contains(t, out, "# Welcome")
	assert.Contains(t, out, "Body")

	out, _, err = execute(t, env(nil), "decorate", "--file", file)
	require.NoError(t, err)
	assert.Contains(t, out, `<div class="hero">`)
}

func TestInject_RequiresURL(t *testing.T) {
	_, _, err := execute(t, env(nil), "inject")
	assert.ErrorContains(t, err, "--url is required")
}

func TestUnknownLogLevel(t *testing.T) {
	_, _, err := execute(t, env(nil), "--log-level", "loud", "locate")
	assert.ErrorContains(t, err, "unknown log level")
}
