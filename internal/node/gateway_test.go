package node

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"causalkv/internal/clock"
	"causalkv/internal/metrics"
	"causalkv/internal/protocol"
)

func newGateway(t *testing.T) (*httptest.Server, *Node) {
	t.Helper()
	reg := prom.NewRegistry()
	n := New(Options{ID: 3, Metrics: metrics.NewPrometheus(reg)})
	t.Cleanup(n.Stop)

	srv := httptest.NewServer(NewGateway(n, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil))
	t.Cleanup(srv.Close)
	return srv, n
}

func do(t *testing.T, method, url, body string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(b)
}

func TestGateway_KeyLifecycle(t *testing.T) {
	srv, _ := newGateway(t)

	resp, _ := do(t, http.MethodPut, srv.URL+"/kv/color", "blue")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := do(t, http.MethodGet, srv.URL+"/kv/color", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got valueJSON
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	assert.Equal(t, valueJSON{Key: "color", Value: "blue"}, got)

	resp, body = do(t, http.MethodGet, srv.URL+"/entries", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var entries []entryJSON
	require.NoError(t, json.Unmarshal([]byte(body), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, entryJSON{Version: "1@3", Counter: 1, Replica: 3, Key: "color", Value: "blue"}, entries[0])

	resp, _ = do(t, http.MethodDelete, srv.URL+"/kv/color", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, srv.URL+"/kv/color", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGateway_HealthAndMetrics(t *testing.T) {
	srv, _ := newGateway(t)

	resp, body := do(t, http.MethodGet, srv.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok","node":3}`, body)

	do(t, http.MethodPut, srv.URL+"/kv/a", "1")
	resp, body = do(t, http.MethodGet, srv.URL+"/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `causalkv_node_requests_total{op="put"} 1`)
	assert.Contains(t, body, "causalkv_node_entries 1")
}

func TestGateway_RejectsOversizedValue(t *testing.T) {
	srv, n := newGateway(t)

	resp, _ := do(t, http.MethodPut, srv.URL+"/kv/big", strings.Repeat("x", maxValueBytes+1))
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, srv.URL+"/kv/big", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Empty(t, n.Snapshot())

	// exactly at the limit is accepted
	resp, _ = do(t, http.MethodPut, srv.URL+"/kv/big", strings.Repeat("x", maxValueBytes))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	v, err := n.Get("big")
	require.NoError(t, err)
	assert.Len(t, v, maxValueBytes)
}

func TestGateway_ShadowedEntries(t *testing.T) {
	srv, n := newGateway(t)

	older := clock.Version{Counter: 2, Replica: 1}
	newer := clock.Version{Counter: 2, Replica: 2}
	n.step(1, protocol.PutSync{Version: older, Key: "k", Value: "A"})
	n.step(2, protocol.PutSync{Version: newer, Key: "k", Value: "B"})

	resp, body := do(t, http.MethodGet, srv.URL+"/entries/shadowed", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var shadowed []entryJSON
	require.NoError(t, json.Unmarshal([]byte(body), &shadowed))
	assert.Equal(t, []entryJSON{{Version: "2@1", Counter: 2, Replica: 1, Key: "k", Value: "A"}}, shadowed)

	resp, body = do(t, http.MethodGet, srv.URL+"/entries", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var entries []entryJSON
	require.NoError(t, json.Unmarshal([]byte(body), &entries))
	assert.Equal(t, []entryJSON{{Version: "2@2", Counter: 2, Replica: 2, Key: "k", Value: "B"}}, entries)
}
