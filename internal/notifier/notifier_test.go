package notifier

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skapxd/image-optimization-service/internal/entities"
)

type capture struct {
	mu   sync.Mutex
	hits []*http.Request
	body []byte
}

func captureServer(t *testing.T, status int) (*httptest.Server, *capture) {
	t.Helper()
	c := &capture{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.hits = append(c.hits, r.Clone(context.Background()))
		c.body = body
		c.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func TestNotifyPostsJSONBody(t *testing.T) {
	srv, c := captureServer(t, http.StatusOK)

	n := New()
	n.Notify(context.Background(), []entities.CallbackSink{{URL: srv.URL}}, map[string]string{
		"optimizationId": "abc",
		"status":         "completed",
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	require.Len(t, c.hits, 1)
	assert.Equal(t, http.MethodPost, c.hits[0].Method)
	assert.Equal(t, "application/json", c.hits[0].Header.Get("Content-Type"))

	var got map[string]string
	require.NoError(t, json.Unmarshal(c.body, &got))
	assert.Equal(t, "abc", got["optimizationId"])
	assert.Equal(t, "completed", got["status"])
}

func TestNotifyGetHasNoBody(t *testing.T) {
	srv, c := captureServer(t, http.StatusOK)

	n := New()
	n.Notify(context.Background(), []entities.CallbackSink{{URL: srv.URL, Method: "get"}}, map[string]string{"k": "v"})

	c.mu.Lock()
	defer c.mu.Unlock()
	require.Len(t, c.hits, 1)
	assert.Equal(t, http.MethodGet, c.hits[0].Method)
	assert.Empty(t, c.body)
}

func TestNotifyMergesHeaders(t *testing.T) {
	srv, c := captureServer(t, http.StatusOK)

	n := New()
	n.Notify(context.Background(), []entities.CallbackSink{{
		URL:     srv.URL,
		Method:  "PUT",
		Headers: map[string]string{"Authorization": "Bearer token", "X-Trace": "1"},
	}}, nil)

	c.mu.Lock()
	defer c.mu.Unlock()
	require.Len(t, c.hits, 1)
	assert.Equal(t, http.MethodPut, c.hits[0].Method)
	assert.Equal(t, "Bearer token", c.hits[0].Header.Get("Authorization"))
	assert.Equal(t, "1", c.hits[0].Header.Get("X-Trace"))
}

func TestNotifySkipsInvalidURLs(t *testing.T) {
	srv, c := captureServer(t, http.StatusOK)

	n := New()
	n.Notify(context.Background(), []entities.CallbackSink{
		{URL: "not a url"},
		{URL: "/relative/path"},
		{URL: srv.URL},
	}, map[string]string{"k": "v"})

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Len(t, c.hits, 1, "only the valid sink is called")
}

func TestNotifySwallowsFailures(t *testing.T) {
	srv, c := captureServer(t, http.StatusInternalServerError)

	n := New()
	// a 500 and an unreachable host must not panic or block
	n.Notify(context.Background(), []entities.CallbackSink{
		{URL: srv.URL},
		{URL: "http://127.0.0.1:1/unreachable"},
	}, map[string]string{"k": "v"})

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Len(t, c.hits, 1)
}

func TestNotifyRunsAllCallbacks(t *testing.T) {
	srvA, cA := captureServer(t, http.StatusOK)
	srvB, cB := captureServer(t, http.StatusAccepted)

	n := New()
	n.Notify(context.Background(), []entities.CallbackSink{
		{URL: srvA.URL},
		{URL: srvB.URL, Method: "PATCH"},
	}, map[string]int{"n": 2})

	cA.mu.Lock()
	assert.Len(t, cA.hits, 1)
	cA.mu.Unlock()
	cB.mu.Lock()
	assert.Len(t, cB.hits, 1)
	cB.mu.Unlock()
}

func TestNotifyNoCallbacksIsNoop(t *testing.T) {
	n := New()
	n.Notify(context.Background(), nil, map[string]string{"k": "v"})
}
