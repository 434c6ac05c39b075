package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cadence/internal/config"
	"cadence/internal/db"
	"cadence/internal/engine"
	"cadence/internal/migrate"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

// newTestServer serves a fresh workspace. The clock is pinned to Monday
// 2025-03-10 08:30 UTC.
func newTestServer(t *testing.T, auth AuthConfig) *testServer {
	t.Helper()
	workspace := t.TempDir()
	_, err := db.EnsureWorkspace(workspace)
	require.NoError(t, err)
	conn, err := db.Open(db.Config{Workspace: workspace})
	require.NoError(t, err)
	require.NoError(t, migrate.Migrate(conn))

	cfg := config.Default("alice")
	cfg.Timezone = "UTC"
	e := engine.New(conn, cfg)
	e.Now = func() time.Time { return time.Date(2025, 3, 10, 8, 30, 0, 0, time.UTC) }
	if auth.JWTSecret == "" {
		auth.JWTSecret = testSecret
	}
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: auth})
	require.NoError(t, err)

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.Close)
	return ts
}

func bearer(t *testing.T, user string) map[string]string {
	t.Helper()
	token, err := SignToken(testSecret, user, time.Hour)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

func createDefinition(t *testing.T, srv *testServer, headers map[string]string, body map[string]any) DefinitionResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/definitions", body, headers)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var d DefinitionResponse
	require.NoError(t, json.Unmarshal(data, &d))
	return d
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode, string(data))

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	// header identity is ignored unless enabled
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"X-User-Id": "alice"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/me", nil, bearer(t, "alice"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var who WhoAmIResponse
	require.NoError(t, json.Unmarshal(data, &who))
	assert.Equal(t, WhoAmIResponse{UserID: "alice", Source: "jwt"}, who)

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestUserHeaderAndDevLogin(t *testing.T) {
	srv := newTestServer(t, AuthConfig{AllowUserHeader: true, DevLogin: true})

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"X-User-Id": "bob"})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Contains(t, string(data), `"user_id":"bob"`)

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{"user_id": "carol"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var login DevLoginResponse
	require.NoError(t, json.Unmarshal(data, &login))
	p, err := authenticateJWT(login.Token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "carol", p.UserID)
}

func TestDefinitionLifecycle(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	alice := bearer(t, "alice")

	d := createDefinition(t, srv, alice, map[string]any{
		"name":           "  Stretch ",
		"track_by":       "reps",
		"priority":       3,
		"categories":     []string{"Legs", "legs", " Arms "},
		"default_amount": 10,
		"schedules": []map[string]any{
			{"day_of_week": 1, "times": []string{"09:00", "07:30"}},
			{"day_of_week": 1, "times": []string{"07:30"}},
		},
	})
	assert.Equal(t, "Stretch", d.Name)
	assert.Equal(t, "alice", d.UserID)
	assert.True(t, d.Scheduled)
	assert.True(t, d.IsActive)
	assert.Equal(t, []string{"Legs", "Arms"}, d.Categories)
	require.Len(t, d.Schedules, 1)
	assert.Equal(t, []string{"07:30", "09:00"}, d.Schedules[0].Times)

	url := fmt.Sprintf("%s/v0/definitions/%d", srv.URL, d.ID)

	res, data := doJSON(t, srv.Client(), http.MethodPatch, url, map[string]any{"priority": 7}, alice)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var updated DefinitionResponse
	require.NoError(t, json.Unmarshal(data, &updated))
	assert.Equal(t, 7, updated.Priority)
	require.NotNil(t, updated.DefaultAmount)
	assert.Equal(t, 10.0, *updated.DefaultAmount)

	res, data = doJSON(t, srv.Client(), http.MethodPatch, url, map[string]any{"default_amount": nil}, alice)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.NoError(t, json.Unmarshal(data, &updated))
	assert.Nil(t, updated.DefaultAmount)
	assert.Equal(t, 7, updated.Priority)

	res, data = doJSON(t, srv.Client(), http.MethodPatch, url, map[string]any{"priority": 11}, alice)
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
	assert.Contains(t, string(data), "validation_failed")

	// another user cannot see it
	res, _ = doJSON(t, srv.Client(), http.MethodGet, url, nil, bearer(t, "mallory"))
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/users/alice/definitions?active_only=true", nil, alice)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var list []DefinitionResponse
	require.NoError(t, json.Unmarshal(data, &list))
	require.Len(t, list, 1)

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/users/alice/definitions", nil, bearer(t, "mallory"))
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res, _ = doJSON(t, srv.Client(), http.MethodDelete, url, nil, alice)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	res, _ = doJSON(t, srv.Client(), http.MethodGet, url, nil, alice)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestRejectsMalformedSchedule(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/definitions", map[string]any{
		"name":      "Bad",
		"track_by":  "count",
		"schedules": []map[string]any{{"day_of_week": 2, "times": []string{"7:00"}}},
	}, bearer(t, "alice"))
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
	var body struct {
		Error apiErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, "validation_failed", body.Error.Code)
}

func TestEntriesAndCurrent(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	alice := bearer(t, "alice")

	morning := createDefinition(t, srv, alice, map[string]any{
		"name":      "Pills",
		"track_by":  "count",
		"priority":  5,
		"schedules": []map[string]any{{"day_of_week": 1, "times": []string{"08:00"}}},
	})
	loop := createDefinition(t, srv, alice, map[string]any{
		"name":     "Pushups",
		"track_by": "reps",
	})

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/users/alice/current?tz=UTC", nil, alice)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var cur CurrentResponse
	require.NoError(t, json.Unmarshal(data, &cur))
	require.NotNil(t, cur.Task)
	assert.Equal(t, morning.ID, cur.Task.DefinitionID)
	assert.Equal(t, "scheduled", cur.Task.Kind)
	assert.Equal(t, "08:00", cur.Task.Time)

	entriesURL := fmt.Sprintf("%s/v0/definitions/%d/entries", srv.URL, morning.ID)
	body := map[string]any{"amount": 1, "description": "Completed at 08:30 (08:00)", "client_ref": "ref-1"}
	res, data = doJSON(t, srv.Client(), http.MethodPost, entriesURL, body, alice)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var first LogEntryResponse
	require.NoError(t, json.Unmarshal(data, &first))
	assert.Equal(t, "Pills", first.Name)

	// same ref is not appended twice
	res, data = doJSON(t, srv.Client(), http.MethodPost, entriesURL, body, alice)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var again LogEntryResponse
	require.NoError(t, json.Unmarshal(data, &again))
	assert.Equal(t, first.ID, again.ID)

	res, data = doJSON(t, srv.Client(), http.MethodGet, entriesURL, nil, alice)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var entries []LogEntryResponse
	require.NoError(t, json.Unmarshal(data, &entries))
	assert.Len(t, entries, 1)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/users/alice/current", nil, alice)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.NoError(t, json.Unmarshal(data, &cur))
	require.NotNil(t, cur.Task)
	assert.Equal(t, loop.ID, cur.Task.DefinitionID)
	assert.Equal(t, "unscheduled", cur.Task.Kind)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/users/alice/entries/today?tz=UTC", nil, alice)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.NoError(t, json.Unmarshal(data, &entries))
	assert.Len(t, entries, 1)

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/users/alice/current?tz=Mars/Base", nil, alice)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, _ = doJSON(t, srv.Client(), http.MethodDelete, fmt.Sprintf("%s/v0/entries/%d", srv.URL, first.ID), nil, bearer(t, "mallory"))
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	res, _ = doJSON(t, srv.Client(), http.MethodDelete, fmt.Sprintf("%s/v0/entries/%d", srv.URL, first.ID), nil, alice)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
}

func TestProgressAndEvents(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	alice := bearer(t, "alice")
	d := createDefinition(t, srv, alice, map[string]any{
		"name":       "Water",
		"track_by":   "glasses",
		"daily_goal": 4,
	})
	entriesURL := fmt.Sprintf("%s/v0/definitions/%d/entries", srv.URL, d.ID)
	for i := 0; i < 2; i++ {
		res, data := doJSON(t, srv.Client(), http.MethodPost, entriesURL, map[string]any{"amount": 1}, alice)
		require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	}

	res, data := doJSON(t, srv.Client(), http.MethodGet, fmt.Sprintf("%s/v0/definitions/%d/progress?tz=UTC", srv.URL, d.ID), nil, alice)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var report struct {
		Daily struct {
			Value    float64 `json:"value"`
			Pct      float64 `json:"pct"`
			Fraction string  `json:"fraction"`
		} `json:"daily"`
		Streak int `json:"streak"`
	}
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, 2.0, report.Daily.Value)
	assert.Equal(t, 0.5, report.Daily.Pct)
	assert.Equal(t, "2/4", report.Daily.Fraction)
	assert.Equal(t, 1, report.Streak)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/events?limit=2", nil, alice)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var page paginatedEvents
	require.NoError(t, json.Unmarshal(data, &page))
	require.Len(t, page.Items, 2)
	assert.Equal(t, "entry.created", page.Items[0].Type)
	require.NotEmpty(t, page.NextCursor)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/events?cursor="+page.NextCursor, nil, alice)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.NoError(t, json.Unmarshal(data, &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, "definition.created", page.Items[0].Type)
	assert.Empty(t, page.NextCursor)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/events", nil, bearer(t, "mallory"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.NoError(t, json.Unmarshal(data, &page))
	assert.Empty(t, page.Items)
}
