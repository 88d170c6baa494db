package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperterse/fanout/core/application/dispatcher"
	"github.com/hyperterse/fanout/core/application/registry"
	"github.com/hyperterse/fanout/core/application/schema"
	"github.com/hyperterse/fanout/core/application/services"
	"github.com/hyperterse/fanout/core/infrastructure/drivers"
	"github.com/hyperterse/fanout/core/shared/testutil"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	reg := registry.New(drivers.NewSet(), registry.Options{PoolSize: 2})
	cmp, err := schema.New(reg, schema.Options{})
	require.NoError(t, err)
	engine := services.NewEngine(reg, dispatcher.New(reg, dispatcher.Options{QueryTimeout: 5 * time.Second}), cmp, services.EngineOptions{})
	t.Cleanup(func() { _ = engine.Close() })

	s := NewServer(0)
	RegisterRoutes(s.Router(), engine, RouteOptions{})
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	if resp.Header.Get("Content-Type") == "application/json" {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	}
	return resp.StatusCode, decoded
}

func addShop(t *testing.T, srv *httptest.Server, name string, statements ...string) {
	t.Helper()
	status, body := call(t, srv, http.MethodPost, "/connections", map[string]any{
		"name":     name,
		"kind":     "sqlite",
		"database": testutil.NewSQLiteFile(t, name, statements...),
	})
	require.Equal(t, http.StatusCreated, status, body)
}

func TestHeartbeat(t *testing.T) {
	srv := newTestServer(t)
	status, body := call(t, srv, http.MethodGet, "/heartbeat", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
}

func TestConnectionsLifecycle(t *testing.T) {
	srv := newTestServer(t)
	addShop(t, srv, "east", "CREATE TABLE t (id INTEGER)")

	status, body := call(t, srv, http.MethodPost, "/connections", map[string]any{
		"name": "east", "kind": "sqlite", "database": "/tmp/whatever.db",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "DUPLICATE_NAME", body["error"].(map[string]any)["kind"])

	status, _ = call(t, srv, http.MethodPost, "/connections", map[string]any{"name": "x"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = call(t, srv, http.MethodGet, "/connections", nil)
	assert.Equal(t, http.StatusOK, status)
	conns := body["connections"].([]any)
	require.Len(t, conns, 1)
	assert.Equal(t, "registered", conns[0].(map[string]any)["state"])

	status, body = call(t, srv, http.MethodPost, "/connections/east/validate", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "validated", body["connection"].(map[string]any)["state"])

	status, _ = call(t, srv, http.MethodPost, "/connections/nope/validate", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = call(t, srv, http.MethodDelete, "/connections/east", nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = call(t, srv, http.MethodDelete, "/connections/east", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestQuery(t *testing.T) {
	srv := newTestServer(t)
	addShop(t, srv, "east", "CREATE TABLE users (id INTEGER, name TEXT)", "INSERT INTO users VALUES (1, 'ann')")
	addShop(t, srv, "west", "CREATE TABLE users (id INTEGER, name TEXT)", "INSERT INTO users VALUES (1, 'abe'), (2, 'bo')")

	status, body := call(t, srv, http.MethodPost, "/query", map[string]any{
		"query": "SELECT id, name FROM users ORDER BY id",
		"merge": "join", "join_key": "id",
	})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, []any{"id", "name_east", "name_west"}, body["columns"])
	assert.Equal(t, float64(2), body["row_count"])
	meta := body["metadata"].(map[string]any)
	assert.Equal(t, "join", meta["merge_type"])

	status, body = call(t, srv, http.MethodPost, "/query", map[string]any{
		"query": "SELECT name FROM users", "merge": "join", "join_key": "id",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "MISSING_KEY_COLUMN", body["error"].(map[string]any)["kind"])

	status, _ = call(t, srv, http.MethodPost, "/query", map[string]any{"connections": []string{"east"}})
	assert.Equal(t, http.StatusBadRequest, status, "query is required")

	status, body = call(t, srv, http.MethodPost, "/query", map[string]any{
		"query": "SELECT * FROM users", "connections": []string{"east", "ghost"},
	})
	require.Equal(t, http.StatusOK, status)
	results := body["results"].(map[string]any)
	assert.Equal(t, true, results["east"].(map[string]any)["success"])
	assert.Equal(t, "NOT_FOUND", results["ghost"].(map[string]any)["error"].(map[string]any)["kind"])
}

func TestQuery_NonFiniteValueKeepsOtherConnections(t *testing.T) {
	srv := newTestServer(t)
	addShop(t, srv, "a", "CREATE TABLE m (id INTEGER, score REAL)", "INSERT INTO m VALUES (1, 2.5)")
	addShop(t, srv, "b", "CREATE TABLE m (id INTEGER, score REAL)", "INSERT INTO m VALUES (2, 1e999)")

	status, body := call(t, srv, http.MethodPost, "/query", map[string]any{"query": "SELECT id, score FROM m"})
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, body)

	results := body["results"].(map[string]any)
	a := results["a"].(map[string]any)["data"].([]any)
	b := results["b"].(map[string]any)["data"].([]any)
	assert.Equal(t, 2.5, a[0].(map[string]any)["score"])
	assert.Equal(t, "Infinity", b[0].(map[string]any)["score"])
}

func TestCompareSchemas(t *testing.T) {
	srv := newTestServer(t)
	addShop(t, srv, "east", "CREATE TABLE users (id INTEGER)")
	addShop(t, srv, "west", "CREATE TABLE users (id TEXT)", "CREATE TABLE audit (at TEXT)")

	status, body := call(t, srv, http.MethodPost, "/schemas/compare", nil)
	require.Equal(t, http.StatusOK, status, body)
	tables := body["tables"].([]any)
	require.Len(t, tables, 2)

	audit := tables[0].(map[string]any)
	assert.Equal(t, "audit", audit["name"])
	assert.Equal(t, []any{"east"}, audit["missing_in"])

	users := tables[1].(map[string]any)
	column := users["columns"].([]any)[0].(map[string]any)
	assert.Equal(t, true, column["type_mismatch"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	call(t, srv, http.MethodGet, "/heartbeat", nil)

	scrape := func() string {
		resp, err := srv.Client().Get(srv.URL + "/metrics")
		if err != nil {
			return ""
		}
		defer resp.Body.Close()
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(resp.Body)
		return buf.String()
	}

	assert.Contains(t, scrape(), "go_goroutines")
	assert.Eventually(t, func() bool {
		return strings.Contains(scrape(), `fanout_http_requests_total{method="GET",route="/heartbeat",status="200"}`)
	}, 2*time.Second, 20*time.Millisecond)
}
