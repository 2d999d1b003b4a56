package httpserver

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/taskboard/internal/adapter/memory"
	"github.com/pscheid92/taskboard/internal/app"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndToEnd_ProjectLifecycle(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testNow)
	store := memory.NewStore(clock)
	srv := newTestServer(t, app.NewService(store.Users(), store.Containers(), clock))

	rec := doRequest(srv, http.MethodPost, "/users", `{"email":"a@example.com","name":"Alice"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(srv, http.MethodPost, "/users", `{"email":"A@example.com"}`, nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(srv, http.MethodPost, "/jwt", `{"email":"a@example.com"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := findCookie(rec, tokenCookieName)
	require.NotNil(t, cookie)

	rec = doRequest(srv, http.MethodGet, "/users/me", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"name":"Alice"}`, jsonField(t, rec.Body.Bytes(), "attributes"))

	base := "/projects/a@example.com"

	rec = doRequest(srv, http.MethodPost, base, `{"name":"Launch"}`, cookie)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `[]`, jsonField(t, rec.Body.Bytes(), "tasks"))

	rec = doRequest(srv, http.MethodPost, base+"/project/1/tasks", `{"title":"T1"}`, cookie)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doRequest(srv, http.MethodPost, base+"/project/1/tasks", `{"title":"T2"}`, cookie)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(srv, http.MethodDelete, base+"/project/1/tasks/9", "", cookie)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(srv, http.MethodDelete, base+"/project/1/tasks/1", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(srv, http.MethodPatch, base+"/project/1", `{"status":"Done"}`, cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(srv, http.MethodGet, base+"/project/1", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"id":2,"title":"T2"}]`, jsonField(t, rec.Body.Bytes(), "tasks"))
	assert.JSONEq(t, `"Launch"`, jsonField(t, rec.Body.Bytes(), "name"))
	assert.JSONEq(t, `"Done"`, jsonField(t, rec.Body.Bytes(), "status"))

	rec = doRequest(srv, http.MethodPost, "/projects/nobody@example.com", `{}`, authCookie(t, srv, "nobody@example.com"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func jsonField(t *testing.T, body []byte, key string) string {
	t.Helper()
	var obj map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &obj))
	return string(obj[key])
}
