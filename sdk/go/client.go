package cadencesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Cadence HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	// UserHeader sends X-User-Id when no token is set. Local servers only.
	UserHeader string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BasePath:    "/v0",
		BearerToken: token,
		Timeout:     10 * time.Second,
	}
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// DefinitionInput is the create payload. Nil fields take server defaults.
type DefinitionInput struct {
	Name          string          `json:"name"`
	Schedules     []ScheduleEntry `json:"schedules,omitempty"`
	Priority      *int            `json:"priority,omitempty"`
	TrackBy       string          `json:"track_by,omitempty"`
	Categories    []string        `json:"categories,omitempty"`
	DefaultAmount *float64        `json:"default_amount,omitempty"`
	DailyGoal     *int            `json:"daily_goal,omitempty"`
	WeeklyGoal    *int            `json:"weekly_goal,omitempty"`
	MonthlyGoal   *int            `json:"monthly_goal,omitempty"`
	YearlyGoal    *int            `json:"yearly_goal,omitempty"`
	IsActive      *bool           `json:"is_active,omitempty"`
}

// DefinitionPatch is a partial update. Nil fields are left unchanged.
type DefinitionPatch struct {
	Name               *string
	Schedules          *[]ScheduleEntry
	Priority           *int
	TrackBy            *string
	Categories         *[]string
	DefaultAmount      *float64
	ClearDefaultAmount bool
	DailyGoal          *int
	WeeklyGoal         *int
	MonthlyGoal        *int
	YearlyGoal         *int
	IsActive           *bool
}

func (p DefinitionPatch) body() map[string]any {
	out := map[string]any{}
	set := func(key string, ok bool, v any) {
		if ok {
			out[key] = v
		}
	}
	set("name", p.Name != nil, p.Name)
	set("schedules", p.Schedules != nil, p.Schedules)
	set("priority", p.Priority != nil, p.Priority)
	set("track_by", p.TrackBy != nil, p.TrackBy)
	set("categories", p.Categories != nil, p.Categories)
	set("daily_goal", p.DailyGoal != nil, p.DailyGoal)
	set("weekly_goal", p.WeeklyGoal != nil, p.WeeklyGoal)
	set("monthly_goal", p.MonthlyGoal != nil, p.MonthlyGoal)
	set("yearly_goal", p.YearlyGoal != nil, p.YearlyGoal)
	set("is_active", p.IsActive != nil, p.IsActive)
	switch {
	case p.ClearDefaultAmount:
		out["default_amount"] = nil
	case p.DefaultAmount != nil:
		out["default_amount"] = *p.DefaultAmount
	}
	return out
}

// NewLogEntry is the create payload for a completion.
type NewLogEntry struct {
	Name        *string  `json:"name,omitempty"`
	Amount      *float64 `json:"amount,omitempty"`
	Description string   `json:"description,omitempty"`
	Category    *string  `json:"category,omitempty"`
	ClientRef   string   `json:"client_ref,omitempty"`
}

type CurrentTask struct {
	Kind            string     `json:"kind"`
	DefinitionID    int64      `json:"definition_id"`
	Name            string     `json:"name"`
	Priority        int        `json:"priority"`
	Time            string     `json:"time,omitempty"`
	ScheduledAt     *time.Time `json:"scheduled_at,omitempty"`
	Category        string     `json:"category,omitempty"`
	LastCompletedAt *time.Time `json:"last_completed_at,omitempty"`
}

type Current struct {
	UserID string       `json:"user_id"`
	Now    time.Time    `json:"now"`
	Idle   bool         `json:"idle"`
	Task   *CurrentTask `json:"task,omitempty"`
}

type Period struct {
	Value    float64 `json:"value"`
	Goal     int     `json:"goal"`
	Pct      float64 `json:"pct"`
	Fraction string  `json:"fraction"`
}

type Progress struct {
	DefinitionID int64              `json:"definition_id"`
	Today        string             `json:"today"`
	Daily        Period             `json:"daily"`
	Weekly       Period             `json:"weekly"`
	Monthly      Period             `json:"monthly"`
	Yearly       Period             `json:"yearly"`
	Streak       int                `json:"streak"`
	Totals       map[string]float64 `json:"totals"`
}

// Event represents an audit event.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	UserID     string         `json:"user_id"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// ListDefinitions returns a user's definitions ordered by id.
func (c *Client) ListDefinitions(ctx context.Context, userID string, activeOnly bool) ([]Definition, error) {
	endpoint := c.path(fmt.Sprintf("users/%s/definitions", url.PathEscape(userID)))
	if activeOnly {
		endpoint += "?active_only=true"
	}
	var resp []Definition
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) GetDefinition(ctx context.Context, id int64) (Definition, error) {
	var resp Definition
	err := c.do(ctx, http.MethodGet, c.path(fmt.Sprintf("definitions/%d", id)), nil, &resp)
	return resp, err
}

func (c *Client) CreateDefinition(ctx context.Context, in DefinitionInput) (Definition, error) {
	var resp Definition
	err := c.do(ctx, http.MethodPost, c.path("definitions"), in, &resp)
	return resp, err
}

func (c *Client) UpdateDefinition(ctx context.Context, id int64, patch DefinitionPatch) (Definition, error) {
	var resp Definition
	err := c.do(ctx, http.MethodPatch, c.path(fmt.Sprintf("definitions/%d", id)), patch.body(), &resp)
	return resp, err
}

func (c *Client) DeleteDefinition(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, c.path(fmt.Sprintf("definitions/%d", id)), nil, nil)
}

// ListLogEntries returns a definition's entries, newest first.
func (c *Client) ListLogEntries(ctx context.Context, definitionID int64) ([]LogEntry, error) {
	var resp []LogEntry
	err := c.do(ctx, http.MethodGet, c.path(fmt.Sprintf("definitions/%d/entries", definitionID)), nil, &resp)
	return resp, err
}

func (c *Client) CreateLogEntry(ctx context.Context, definitionID int64, in NewLogEntry) (LogEntry, error) {
	var resp LogEntry
	err := c.do(ctx, http.MethodPost, c.path(fmt.Sprintf("definitions/%d/entries", definitionID)), in, &resp)
	return resp, err
}

func (c *Client) DeleteLogEntry(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, c.path(fmt.Sprintf("entries/%d", id)), nil, nil)
}

// TodayEntries lists a user's entries for the current day in tz.
func (c *Client) TodayEntries(ctx context.Context, userID, tz string) ([]LogEntry, error) {
	var resp []LogEntry
	endpoint := c.path(fmt.Sprintf("users/%s/entries/today", url.PathEscape(userID))) + tzQuery(tz)
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Current asks the server to evaluate the current task from stored history.
func (c *Client) Current(ctx context.Context, userID, tz string) (Current, error) {
	var resp Current
	endpoint := c.path(fmt.Sprintf("users/%s/current", url.PathEscape(userID))) + tzQuery(tz)
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) Progress(ctx context.Context, definitionID int64, tz string) (Progress, error) {
	var resp Progress
	endpoint := c.path(fmt.Sprintf("definitions/%d/progress", definitionID)) + tzQuery(tz)
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := c.path("events")
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// DevLogin mints a token on servers started with dev login enabled.
func (c *Client) DevLogin(ctx context.Context, userID string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, c.path("auth/dev/login"), map[string]any{"user_id": userID}, &resp)
	return resp.Token, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.UserHeader != "":
		req.Header.Set("X-User-Id", c.UserHeader)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) path(p string) string {
	bp := strings.Trim(c.BasePath, "/")
	if bp == "" {
		return strings.TrimLeft(p, "/")
	}
	return bp + "/" + strings.TrimLeft(p, "/")
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}

func tzQuery(tz string) string {
	if tz == "" {
		return ""
	}
	return "?tz=" + url.QueryEscape(tz)
}
