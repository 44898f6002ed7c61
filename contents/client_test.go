package contents

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestFilePath(t *testing.T) {
	assert.Equal(t, "/repos/sudo-buddy/wgw2025/contents/tools/sidekick/config.json",
		FilePath("sudo-buddy", "wgw2025", "tools/sidekick/config.json"))
	assert.Equal(t, "/repos/o/r/contents/a%20b/c%3Fd.json", FilePath("o", "r", "/a b/c?d.json"))
}

func TestGet_HeadersAndBase64WithNewlines(t *testing.T) {
	payload := []byte(`{"plugins":[{"id":"experimentation","title":"A/B Testing"}],"padding":"` +
		"xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx" + `"}`)
	enc := base64.StdEncoding.EncodeToString(payload)
	wrapped := enc[:60] + "\n" + enc[60:120] + "\n" + enc[120:] + "\n"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/repos/o/r/contents/tools/sidekick/config.json", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/vnd.github+json", r.Header.Get("Accept"))
		assert.Equal(t, "sidekick-config-updater", r.Header.Get("User-Agent"))
		assert.Equal(t, "main", r.URL.Query().Get("ref"))
		writeJSON(w, http.StatusOK, map[string]string{
			"type": "file", "path": "tools/sidekick/config.json",
			"sha": "abc123", "encoding": "base64", "content": wrapped,
		})
	}))
	defer srv.Close()

	f, err := New(srv.URL, "tok").Get(context.Background(), "o", "r", "tools/sidekick/config.json", "main")
	require.NoError(t, err)
	assert.Equal(t, "abc123", f.SHA)
	assert.Equal(t, payload, f.Content)
}

func TestGet_NotFoundIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
	}))
	defer srv.Close()

	_, err := New(srv.URL, "tok").Get(context.Background(), "o", "r", "missing.json", "")
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.MethodGet, te.Method)
	assert.Equal(t, http.StatusNotFound, te.Status)
	assert.Contains(t, te.Body, "Not Found")
	assert.Contains(t, te.URL, "/repos/o/r/contents/missing.json")
}

func TestGet_DirectoryRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"type": "dir", "path": "tools"})
	}))
	defer srv.Close()

	_, err := New(srv.URL, "tok").Get(context.Background(), "o", "r", "tools", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a file")
}

func TestGet_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url, "tok").Get(context.Background(), "o", "r", "c.json", "")
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Zero(t, te.Status)
	assert.NotNil(t, te.Err)
}

func TestPut_SendsBodyAndReturnsSHA(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "chore: update Sidekick plugins via script", body["message"])
		assert.Equal(t, "old-sha", body["sha"])
		raw, err := base64.StdEncoding.DecodeString(body["content"])
		require.NoError(t, err)
		assert.Equal(t, "{}\n", string(raw))

		writeJSON(w, http.StatusOK, map[string]any{
			"content": map[string]string{"sha": "new-sha"},
			"commit":  map[string]string{"sha": "commit-sha"},
		})
	}))
	defer srv.Close()

	res, err := New(srv.URL, "tok").Put(context.Background(), "o", "r", "c.json", PutRequest{
		Message: "chore: update Sidekick plugins via script",
		Content: []byte("{}\n"),
		SHA:     "old-sha",
	})
	require.NoError(t, err)
	assert.Equal(t, "new-sha", res.SHA)
	assert.Equal(t, "commit-sha", res.CommitSHA)
}

func TestPut_ConflictError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, map[string]string{"message": "c.json does not match old-sha"})
	}))
	defer srv.Close()

	_, err := New(srv.URL, "tok").Put(context.Background(), "o", "r", "c.json", PutRequest{SHA: "old-sha"})
	var ce *ConflictError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "old-sha", ce.SHA)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusConflict, te.Status)
}

func TestPut_UnprocessableIsNotConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "sha wasn't supplied"})
	}))
	defer srv.Close()

	_, err := New(srv.URL, "tok").Put(context.Background(), "o", "r", "c.json", PutRequest{})
	var ce *ConflictError
	assert.False(t, errors.As(err, &ce))
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusUnprocessableEntity, te.Status)
}
