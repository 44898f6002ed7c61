package eventsink

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStdout_WritesEnvelopes(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdout(&buf)
	ctx := context.Background()

	require.NoError(t, s.SendInjection(ctx, Injection{ID: "i1", State: "injected", PluginID: "experimentation-fallback"}))
	require.NoError(t, s.SendActivation(ctx, Activation{ID: "a1", PluginID: "experimentation-fallback", Event: "experimentation"}))
	require.NoError(t, s.SendSync(ctx, SyncResult{RunID: "r1", Owner: "o", Repo: "r", Path: "p", Changed: true, Added: []string{"experimentation"}}))

	sc := bufio.NewScanner(&buf)
	var types []string
	for sc.Scan() {
		typ, data, err := Decode(sc.Bytes())
		require.NoError(t, err)
		types = append(types, typ)
		if typ == "sync" {
			var ev SyncResult
			require.NoError(t, json.Unmarshal(data, &ev))
			assert.Equal(t, []string{"experimentation"}, ev.Added)
		}
	}
	assert.Equal(t, []string{"injection", "activation", "sync"}, types)
}

func TestStdout_ConcurrentWritesStayLineDelimited(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdout(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.SendInjection(context.Background(), Injection{ID: "x", State: "injected"})
		}()
	}
	wg.Wait()

	sc := bufio.NewScanner(&buf)
	n := 0
	for sc.Scan() {
		_, _, err := Decode(sc.Bytes())
		require.NoError(t, err)
		n++
	}
	assert.Equal(t, 20, n)
}

func TestWebhook_PostsEnvelope(t *testing.T) {
	bodies := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		b, _ := io.ReadAll(r.Body)
		bodies <- b
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL)
	require.NoError(t, w.SendActivation(context.Background(), Activation{ID: "a1", Event: "experimentation"}))

	typ, data, err := Decode(<-bodies)
	require.NoError(t, err)
	assert.Equal(t, "activation", typ)
	assert.Contains(t, string(data), `"event":"experimentation"`)
}

func TestWebhook_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithWebhookBackoff(time.Millisecond))
	require.NoError(t, w.SendSync(context.Background(), SyncResult{RunID: "r"}))
	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhook_ExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithWebhookRetries(1), WithWebhookBackoff(time.Millisecond))
	err := w.SendInjection(context.Background(), Injection{ID: "i"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
	assert.Equal(t, int32(2), calls.Load())
}

func TestCallback_NilHandlersAreNoops(t *testing.T) {
	var c Callback
	assert.NoError(t, c.SendInjection(context.Background(), Injection{}))
	assert.NoError(t, c.SendActivation(context.Background(), Activation{}))
	assert.NoError(t, c.SendSync(context.Background(), SyncResult{}))
}

func TestRouter_FansOutAndReturnsFirstError(t *testing.T) {
	var a, b int
	boom := errors.New("boom")
	ok := &Callback{OnInjection: func(context.Context, Injection) error { a++; return nil }}
	bad := &Callback{OnInjection: func(context.Context, Injection) error { b++; return boom }}

	r := NewRouter(nil, bad, ok)
	assert.Equal(t, 2, r.Len())

	err := r.SendInjection(context.Background(), Injection{ID: "i"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, a, "a failing sink must not block the others")
	assert.Equal(t, 1, b)
	assert.NoError(t, r.Close())
}
