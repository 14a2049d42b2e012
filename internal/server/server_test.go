package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracker/internal/board"
	"tracker/internal/models"
	"tracker/internal/notify"
	"tracker/internal/storage/sqlite"
)

type testEnv struct {
	srv    *Server
	store  *sqlite.Store
	client *board.Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "tracker.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.SaveEmployee(ctx, models.Employee{UserID: 1, Name: "olga", Role: models.RoleOwner}))
	require.NoError(t, store.SaveEmployee(ctx, models.Employee{UserID: 2, Name: "boss", Role: models.RoleAdmin}))
	require.NoError(t, store.SaveEmployee(ctx, models.Employee{UserID: 10, Name: "alice", Role: models.RoleUser}))

	client := board.NewClient(store, notify.Nop{}, models.DefaultStatuses(), time.Second, nil)
	require.NoError(t, client.Reload(ctx))

	return &testEnv{
		srv:    New(client, store, notify.Nop{}, nil, ""),
		store:  store,
		client: client,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.srv.Engine().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHandleVerifyUser(t *testing.T) {
	env := newTestEnv(t)

	t.Run("registered user", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/auth/verify", obj("user", obj("id", 10, "username", "al")))
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, "authorized", body["status"])
		assert.Equal(t, "alice", body["name"])
		assert.Equal(t, "user", body["role"])
	})

	t.Run("unknown user", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/auth/verify", obj("user", obj("id", 777)))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "unregistered", decode(t, rec)["status"])
	})

	t.Run("missing user object", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/auth/verify", obj())
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleRequestRegistration(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/auth/register", obj("name", "newbie", "user_id", 555))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "request_sent", decode(t, rec)["status"])

	rec = env.do(t, http.MethodPost, "/api/auth/register", obj("name", ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleAppData(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.client.Create(ctx, models.Employee{UserID: 2, Name: "boss", Role: models.RoleAdmin},
		board.CreateRequest{Name: "spec", Project: "alpha", Responsible: []string{"alice"}})
	require.NoError(t, err)

	t.Run("admin sees projects", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/appdata", obj("user", obj("id", 2)))
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, "boss", body["user_name"])
		assert.Equal(t, "admin", body["user_role"])
		assert.Equal(t, []any{"alpha"}, body["all_projects"])

		view := body["view"].(map[string]any)
		assert.NotNil(t, view["projects"])
		assert.Nil(t, view["personal"])
	})

	t.Run("basic user sees personal list", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/appdata", obj("user", obj("id", 10)))
		require.Equal(t, http.StatusOK, rec.Code)
		view := decode(t, rec)["view"].(map[string]any)
		assert.NotNil(t, view["personal"])
		assert.Nil(t, view["projects"])
	})

	t.Run("unregistered user rejected", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/appdata", obj("user", obj("id", 999)))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestTaskLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	admin := obj("id", 2)

	rec := env.do(t, http.MethodPost, "/api/tasks", obj("user", admin, "task", obj(
		"name", "build", "project", "alpha",
	)))
	require.Equal(t, http.StatusCreated, rec.Code)
	task := decode(t, rec)["task"].(map[string]any)
	rowID := task["row_id"].(string)
	assert.Equal(t, "todo", task["status"])

	t.Run("edit", func(t *testing.T) {
		rec := env.do(t, http.MethodPut, "/api/tasks/"+rowID, obj("user", admin, "edit", obj(
			"name", "build v2", "project", "alpha", "responsible", []string{"alice"},
		)))
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("status change", func(t *testing.T) {
		rec := env.do(t, http.MethodPut, fmt.Sprintf("/api/tasks/%s/status", rowID), obj("user", admin, "status", "in_progress"))
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("reorder", func(t *testing.T) {
		rec := env.do(t, http.MethodPut, "/api/priorities", obj("user", admin, "row_ids", []string{rowID}))
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("validation error maps to 400", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/tasks", obj("user", admin, "task", obj("name", "")))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown row maps to 404", func(t *testing.T) {
		rec := env.do(t, http.MethodPut, "/api/tasks/424242/status", obj("user", admin, "status", "done"))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestConflictMapsTo409(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := models.Employee{UserID: 2, Name: "boss", Role: models.RoleAdmin}

	created, err := env.client.Create(ctx, admin, board.CreateRequest{Name: "contested", Project: "alpha"})
	require.NoError(t, err)

	// Another writer bumps the row behind the client's back.
	_, err = env.store.ConditionalUpdate(ctx, created.RowID, board.TaskEdit{
		Name: "contested", Project: "alpha",
	}, 0, "eve")
	require.NoError(t, err)

	rec := env.do(t, http.MethodPut, "/api/tasks/"+created.RowID, obj(
		"user", obj("id", 2), "edit", obj("name", "mine", "project", "alpha"),
	))
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["reload_required"])

	// The mandated reload converges on the store's state.
	require.NoError(t, env.client.Reload(ctx))
	rec = env.do(t, http.MethodPut, "/api/tasks/"+created.RowID, obj(
		"user", obj("id", 2), "edit", obj("name", "mine", "project", "alpha"),
	))
	assert.Equal(t, http.StatusOK, rec.Code)
}

// obj builds a json object from alternating key/value pairs.
func obj(kv ...any) map[string]any {
	m := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i].(string)] = kv[i+1]
	}
	return m
}
