//
// Tencent is pleased to support the open source community by making flow-controller available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// flow-controller is licensed under the Apache License Version 2.0.
//
//

package flowcontroller

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/flow-controller/engine"
	"trpc.group/trpc-go/flow-controller/flow"
	"trpc.group/trpc-go/flow-controller/session/inmemory"
)

func strPtr(s string) *string { return &s }

type mockClient struct{ db *sql.DB }

func (c *mockClient) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.db.QueryRowContext(ctx, query, args...)
}
func (c *mockClient) Ping() error  { return c.db.Ping() }
func (c *mockClient) Close() error { return c.db.Close() }

func echoFlow(t *testing.T) *flow.Flow {
	t.Helper()
	f, err := flow.New(1, "echo", []*flow.Node{
		{ID: "start-1", Type: flow.NodeTypeStart},
		{ID: "msg", Type: flow.NodeTypeText, Text: strPtr("olá")},
	}, []*flow.Edge{
		{Source: "start-1", Target: "msg"},
	})
	require.NoError(t, err)
	return f
}

func newTestServer(t *testing.T, f *flow.Flow, opts ...Option) *Server {
	t.Helper()
	registry := flow.NewRegistry()
	if f != nil {
		registry.Swap(f)
	}
	e := engine.New(registry, nil, inmemory.NewService(), nil)
	return New(e, opts...)
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestProcessMessageEndpoint(t *testing.T) {
	s := newTestServer(t, echoFlow(t))

	w := doJSON(t, s.Handler(), http.MethodPost, "/process_message",
		`{"sender_id":"u1","message":""}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		ResponsePayload *engine.Payload `json:"response_payload"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.ResponsePayload)
	assert.Equal(t, "text", resp.ResponsePayload.Type)
	assert.Equal(t, "olá", resp.ResponsePayload.Text)
}

func TestProcessMessageMissingSenderID(t *testing.T) {
	s := newTestServer(t, echoFlow(t))

	w := doJSON(t, s.Handler(), http.MethodPost, "/process_message", `{"message":"hi"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "sender_id é obrigatório")
}

func TestProcessMessageEmptyBody(t *testing.T) {
	s := newTestServer(t, echoFlow(t))

	w := doJSON(t, s.Handler(), http.MethodPost, "/process_message", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Request body is missing")
}

func TestProcessMessageWithoutPayload(t *testing.T) {
	// A flow resting at a promptless waitInput emits nothing.
	f, err := flow.New(1, "silent", []*flow.Node{
		{ID: "wait", Type: flow.NodeTypeWaitInput},
	}, nil)
	require.NoError(t, err)
	s := newTestServer(t, f)

	w := doJSON(t, s.Handler(), http.MethodPost, "/process_message",
		`{"sender_id":"u1","message":""}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{}`, w.Body.String())
}

func TestReloadFlowEndpoint(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	elements := `{"nodes":[{"id":"w","type":"waitInput","data":{"message":"oi"}}],"edges":[]}`
	mock.ExpectQuery("SELECT id, name, elements FROM flows WHERE status = 'active' LIMIT 1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "elements"}).
			AddRow(int64(7), "onboarding", []byte(elements)))

	loader := flow.NewLoader(&mockClient{db: db})
	e := engine.New(flow.NewRegistry(), loader, inmemory.NewService(), nil)
	s := New(e)

	w := doJSON(t, s.Handler(), http.MethodPost, "/reload_flow", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp reloadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "Fluxo 'onboarding' (ID: 7) recarregado.", resp.Message)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReloadFlowEndpointFailure(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	mock.ExpectQuery("SELECT id, name, elements FROM flows WHERE status = 'active' LIMIT 1").
		WillReturnError(sql.ErrConnDone)

	loader := flow.NewLoader(&mockClient{db: db})
	e := engine.New(flow.NewRegistry(), loader, inmemory.NewService(), nil)
	s := New(e)

	w := doJSON(t, s.Handler(), http.MethodPost, "/reload_flow", "")
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Falha ao recarregar fluxo.")
}

func TestHealthEndpoint(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	mock.ExpectPing()

	s := newTestServer(t, echoFlow(t), WithDBClient(&mockClient{db: db}))

	w := doJSON(t, s.Handler(), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Details.FlowLoaded)
	assert.True(t, resp.Details.DBConnection)
}

func TestHealthEndpointDegraded(t *testing.T) {
	// No flow and no database client.
	s := newTestServer(t, nil)

	w := doJSON(t, s.Handler(), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.False(t, resp.Details.FlowLoaded)
	assert.False(t, resp.Details.DBConnection)
	assert.Equal(t, "Fluxo não carregado ou inválido.", resp.Details.FlowError)
	assert.NotEmpty(t, resp.Details.DBError)
}

func TestRootBanner(t *testing.T) {
	s := newTestServer(t, nil)

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		w := doJSON(t, s.Handler(), method, "/", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Flow Controller Service (MySQL) is running.")
	}
}

func TestRecoverMiddleware(t *testing.T) {
	// A nil session service makes the engine panic inside the handler; the
	// middleware turns it into the generic error payload.
	registry := flow.NewRegistry()
	registry.Swap(echoFlow(t))
	e := engine.New(registry, nil, nil, nil)
	s := New(e)

	w := doJSON(t, s.Handler(), http.MethodPost, "/process_message",
		`{"sender_id":"u1","message":""}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		ResponsePayload *engine.Payload `json:"response_payload"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.ResponsePayload)
	assert.Equal(t, "Erro.", resp.ResponsePayload.Text)
}
