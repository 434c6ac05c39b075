package cadencesdk

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefinitionAcceptsNamingVariants(t *testing.T) {
	variants := map[string]string{
		"snake": `{"id":3,"user_id":"u1","name":"Read","schedules":[{"day_of_week":1,"times":["08:00"]}],
			"priority":2,"track_by":"pages","categories":["A"],"default_amount":5,"daily_goal":10,"is_active":true}`,
		"camel": `{"id":3,"userId":"u1","name":"Read","schedule":[{"dayOfWeek":1,"times":["08:00:00"]}],
			"priority":"2","trackByLabel":"pages","categories":["A"],"defaultAmount":"5.0","dailyGoal":10,"isActive":1}`,
		"lower": `{"id":"3","userid":"u1","name":"Read","schedules":[{"dayofweek":"1","times":["08:00"]}],
			"priority":2,"trackby":"pages","categories":["A"],"defaultamount":5,"goals":{"daily":10}}`,
	}
	want := Definition{
		ID:            3,
		UserID:        "u1",
		Name:          "Read",
		Schedules:     []ScheduleEntry{{DayOfWeek: 1, Times: []string{"08:00"}}},
		Priority:      2,
		TrackBy:       "pages",
		Categories:    []string{"A"},
		DefaultAmount: ptr(5.0),
		DailyGoal:     10,
		IsActive:      true,
	}
	for name, raw := range variants {
		t.Run(name, func(t *testing.T) {
			var got Definition
			require.NoError(t, json.Unmarshal([]byte(raw), &got))
			assert.Equal(t, want, got)
		})
	}
}

func TestDefinitionDefaultAmountNullVersusZero(t *testing.T) {
	var d Definition
	require.NoError(t, json.Unmarshal([]byte(`{"id":1,"default_amount":null}`), &d))
	assert.Nil(t, d.DefaultAmount)
	assert.Equal(t, 1, d.Priority)
	assert.True(t, d.IsActive)

	require.NoError(t, json.Unmarshal([]byte(`{"id":1,"defaultAmount":0,"is_active":false}`), &d))
	require.NotNil(t, d.DefaultAmount)
	assert.Equal(t, 0.0, *d.DefaultAmount)
	assert.False(t, d.IsActive)
}

func TestLogEntryTimestampsAndAmounts(t *testing.T) {
	cases := map[string]struct {
		raw  string
		want time.Time
	}{
		"rfc3339": {`{"id":1,"definition_id":2,"created_at":"2025-03-10T07:30:00.5Z","amount":1}`, time.Date(2025, 3, 10, 7, 30, 0, 500000000, time.UTC)},
		"offset":  {`{"id":1,"definitionId":2,"createdAt":"2025-03-10 02:30:00-05","amount":"1"}`, time.Date(2025, 3, 10, 7, 30, 0, 0, time.UTC)},
		"no zone": {`{"id":1,"taskDefinitionId":2,"created":"2025-03-10 07:30:00","amount":1}`, time.Date(2025, 3, 10, 7, 30, 0, 0, time.UTC)},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			var e LogEntry
			require.NoError(t, json.Unmarshal([]byte(tc.raw), &e))
			assert.Equal(t, int64(2), e.DefinitionID)
			assert.True(t, tc.want.Equal(e.CreatedAt), "got %s", e.CreatedAt)
			require.NotNil(t, e.Amount)
			assert.Equal(t, 1.0, *e.Amount)
			assert.Nil(t, e.Category)
		})
	}

	var bad LogEntry
	assert.Error(t, json.Unmarshal([]byte(`{"id":1,"created_at":"yesterday"}`), &bad))
}

func TestPatchBodyClearsDefaultAmount(t *testing.T) {
	prio := 4
	body := DefinitionPatch{Priority: &prio, ClearDefaultAmount: true}.body()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"priority":4,"default_amount":null}`, string(b))

	amt := 2.5
	b, err = json.Marshal(DefinitionPatch{DefaultAmount: &amt}.body())
	require.NoError(t, err)
	assert.JSONEq(t, `{"default_amount":2.5}`, string(b))
}

func TestClientRequestsAndErrors(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Method+" "+r.URL.RequestURI())
		mu.Unlock()
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/v0/users/u1/definitions":
			io.WriteString(w, `[{"id":1,"userId":"u1","name":"Loop","trackBy":"x"}]`)
		case "/v0/definitions/1/entries":
			if r.Method == http.MethodPost {
				var in NewLogEntry
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
				assert.Equal(t, "ref-1", in.ClientRef)
				w.WriteHeader(http.StatusCreated)
				io.WriteString(w, `{"id":9,"definition_id":1,"created_at":"2025-03-10T08:00:00Z"}`)
				return
			}
			io.WriteString(w, `[]`)
		case "/v0/definitions/2":
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"error":{"code":"not_found","message":"not found"}}`)
		case "/v0/entries/9":
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusTeapot)
		}
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "tok")
	ctx := context.Background()

	defs, err := c.ListDefinitions(ctx, "u1", true)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "x", defs[0].TrackBy)
	assert.Equal(t, 1, defs[0].Priority)

	entry, err := c.CreateLogEntry(ctx, 1, NewLogEntry{ClientRef: "ref-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(9), entry.ID)

	entries, err := c.ListLogEntries(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = c.GetDefinition(ctx, 2)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Contains(t, apiErr.Body, "not_found")

	require.NoError(t, c.DeleteLogEntry(ctx, 9))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"GET /v0/users/u1/definitions?active_only=true",
		"POST /v0/definitions/1/entries",
		"GET /v0/definitions/1/entries",
		"GET /v0/definitions/2",
		"DELETE /v0/entries/9",
	}, seen)
}

func ptr[T any](v T) *T { return &v }
