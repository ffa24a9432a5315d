package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/roach88/crudkit/internal/apps"
	"github.com/roach88/crudkit/internal/apps/apptest"
	"github.com/roach88/crudkit/internal/engine"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))
}

func registerAll(e *engine.Engine) error {
	_, err := apps.Register(e)
	return err
}

func newTestServer(t *testing.T, cfg Config) (*httptest.Server, *observer.ObservedLogs) {
	t.Helper()
	env := apptest.New(t, registerAll)
	core, logs := observer.New(zapcore.DebugLevel)
	srv := httptest.NewServer(New(env.Engine, cfg, zap.New(core)).Handler())
	t.Cleanup(srv.Close)
	return srv, logs
}

type decoded struct {
	Status    string          `json:"status"`
	Data      json.RawMessage `json:"data"`
	Error     *ErrorBody      `json:"error"`
	RequestID string          `json:"request_id"`
}

func call(t *testing.T, srv *httptest.Server, procedure, body string, header ...string) (*http.Response, decoded) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/rpc/"+procedure, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out decoded
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

func TestRPC_CreateAndGet(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	resp, out := call(t, srv, "product.create", `{"name":"Widget","sku":"W-1","price":"19.90"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", out.Status)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var created map[string]any
	require.NoError(t, json.Unmarshal(out.Data, &created))
	assert.Equal(t, "Widget", created["name"])
	assert.Equal(t, "19.90", created["price"])
	assert.Equal(t, float64(1), created["id"])

	resp, out = call(t, srv, "product.get", `{"id":1}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, mustJSON(t, created), string(out.Data))
}

func TestRPC_ErrorStatuses(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	_, _ = call(t, srv, "tag.create", `{"name":"go"}`)

	tests := []struct {
		name      string
		procedure string
		body      string
		status    int
		code      engine.ErrorCode
	}{
		{"validation", "product.create", `{"name":""}`, http.StatusBadRequest, engine.ErrCodeValidation},
		{"not found", "product.get", `{"id":99}`, http.StatusNotFound, engine.ErrCodeNotFound},
		{"unknown procedure", "nope.create", `{}`, http.StatusNotFound, engine.ErrCodeNotFound},
		{"constraint", "tag.create", `{"name":"go"}`, http.StatusConflict, engine.ErrCodeConstraint},
		{"malformed json", "product.list", `{"limit":`, http.StatusBadRequest, engine.ErrCodeValidation},
		{"array body", "product.list", `[1,2]`, http.StatusBadRequest, engine.ErrCodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, out := call(t, srv, tt.procedure, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, "error", out.Status)
			require.NotNil(t, out.Error)
			assert.Equal(t, string(tt.code), out.Error.Code)
			assert.NotEmpty(t, out.Error.Message)
			assert.Empty(t, out.Data)
		})
	}
}

func TestRPC_ValidationDetails(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	_, out := call(t, srv, "product.create", `{"stock_level":"x"}`)
	require.NotNil(t, out.Error)
	violations, ok := out.Error.Details["violations"].([]any)
	require.True(t, ok, "details: %v", out.Error.Details)
	assert.NotEmpty(t, violations)
}

func TestRPC_EmptyBodyIsEmptyObject(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	resp, out := call(t, srv, "product.list", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(out.Data))
}

func TestRPC_BodyLimit(t *testing.T) {
	srv, _ := newTestServer(t, Config{MaxBodyBytes: 64})

	body := `{"name":"` + strings.Repeat("x", 200) + `"}`
	resp, out := call(t, srv, "product.create", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	require.NotNil(t, out.Error)
	assert.Equal(t, string(engine.ErrCodeValidation), out.Error.Code)
}

func TestRPC_ETag(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	_, _ = call(t, srv, "tag.create", `{"name":"go"}`)

	resp, _ := call(t, srv, "tag.get", `{"id":1}`)
	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)
	assert.True(t, strings.HasPrefix(etag, `"`) && strings.HasSuffix(etag, `"`), etag)

	resp, _ = call(t, srv, "tag.get", `{"id":1}`, "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, resp.StatusCode)

	_, _ = call(t, srv, "tag.update", `{"id":1,"name":"golang"}`)
	resp, out := call(t, srv, "tag.get", `{"id":1}`, "If-None-Match", etag)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEqual(t, etag, resp.Header.Get("ETag"))
	assert.Contains(t, string(out.Data), "golang")

	resp, _ = call(t, srv, "tag.list", `{}`)
	assert.Empty(t, resp.Header.Get("ETag"), "only get procedures are tagged")
}

func TestRPC_RequestID(t *testing.T) {
	srv, logs := newTestServer(t, Config{})

	resp, out := call(t, srv, "product.list", `{}`, RequestIDHeader, "client-42")
	assert.Equal(t, "client-42", resp.Header.Get(RequestIDHeader))
	assert.Equal(t, "client-42", out.RequestID)

	resp, out = call(t, srv, "product.list", `{}`)
	generated := resp.Header.Get(RequestIDHeader)
	assert.Equal(t, "req-000001", generated)
	assert.Equal(t, generated, out.RequestID)

	resp, _ = call(t, srv, "product.list", `{}`, RequestIDHeader, strings.Repeat("a", maxRequestIDLen+1))
	assert.Equal(t, "req-000002", resp.Header.Get(RequestIDHeader))

	entries := logs.FilterMessage("request").FilterField(zap.String("request_id", "client-42")).All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "product.list", fields["procedure"])
	assert.Equal(t, int64(http.StatusOK), fields["status"])
	assert.Equal(t, "/rpc/product.list", fields["path"])
}

func TestProcedures(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	resp, err := srv.Client().Get(srv.URL + "/rpc")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Data []struct {
			Name   string `json:"name"`
			Kind   string `json:"kind"`
			Entity string `json:"entity"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

	names := make([]string, len(out.Data))
	for i, p := range out.Data {
		names[i] = p.Name
	}
	assert.IsIncreasing(t, names)
	assert.Contains(t, names, "stock_movement.record")
	assert.Contains(t, names, "expense.summary")
	assert.NotContains(t, names, "stock_movement.create")
}

func TestHealthz(t *testing.T) {
	env := apptest.New(t)
	srv := httptest.NewServer(New(env.Engine, Config{}, nil).Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, env.Engine.Store().Close())
	resp, err = srv.Client().Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var out decoded
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotNil(t, out.Error)
	assert.Equal(t, string(engine.ErrCodeStorage), out.Error.Code)
}

func TestNoRoute(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/nowhere"},
		{http.MethodGet, "/rpc/product.list"},
	} {
		req, err := http.NewRequest(tc.method, srv.URL+tc.path, nil)
		require.NoError(t, err)
		resp, err := srv.Client().Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.GreaterOrEqual(t, resp.StatusCode, 400, "%s %s", tc.method, tc.path)
		assert.Less(t, resp.StatusCode, 500, "%s %s", tc.method, tc.path)
	}
}

func TestCORS(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		srv, _ := newTestServer(t, Config{})
		resp, _ := call(t, srv, "product.list", `{}`)
		assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight", func(t *testing.T) {
		srv, _ := newTestServer(t, Config{CORSOrigin: "https://app.example"})
		req, err := http.NewRequest(http.MethodOptions, srv.URL+"/rpc/product.list", nil)
		require.NoError(t, err)
		resp, err := srv.Client().Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, "https://app.example", resp.Header.Get("Access-Control-Allow-Origin"))
		assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), RequestIDHeader)
	})
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusFor(engine.ErrCodeValidation))
	assert.Equal(t, http.StatusNotFound, StatusFor(engine.ErrCodeNotFound))
	assert.Equal(t, http.StatusConflict, StatusFor(engine.ErrCodeConstraint))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(engine.ErrCodeStorage))
	assert.Equal(t, http.StatusInternalServerError, StatusFor("SOMETHING_ELSE"))
}

func TestEtagMatches(t *testing.T) {
	assert.False(t, etagMatches("", `"a"`))
	assert.True(t, etagMatches(`"a"`, `"a"`))
	assert.True(t, etagMatches(`"b", "a"`, `"a"`))
	assert.True(t, etagMatches(`W/"a"`, `"a"`))
	assert.True(t, etagMatches(`*`, `"a"`))
	assert.False(t, etagMatches(`"b"`, `"a"`))
}

func TestServe_GracefulShutdown(t *testing.T) {
	env := apptest.New(t, registerAll)
	s := New(env.Engine, Config{MaxConnections: 4, ShutdownTimeout: 2 * time.Second}, nil)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, l) }()

	url := "http://" + l.Addr().String() + "/rpc/product.list"
	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Post(url, "application/json", bytes.NewBufferString(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatalf("Serve did not return after cancel")
	}

	_, err = client.Post(url, "application/json", bytes.NewBufferString(`{}`))
	assert.Error(t, err, "listener should be closed")
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}
