package server

import (
	"encoding/json"
	"time"

	"cadence/internal/domain"
	"cadence/internal/scheduler"
)

// Request payloads

type ScheduleEntryRequest struct {
	DayOfWeek int      `json:"day_of_week"`
	Times     []string `json:"times"`
}

type CreateDefinitionRequest struct {
	Name          string                 `json:"name"`
	Schedules     []ScheduleEntryRequest `json:"schedules,omitempty"`
	Priority      *int                   `json:"priority,omitempty"`
	TrackBy       string                 `json:"track_by,omitempty"`
	Categories    []string               `json:"categories,omitempty"`
	DefaultAmount *float64               `json:"default_amount,omitempty"`
	DailyGoal     *int                   `json:"daily_goal,omitempty"`
	WeeklyGoal    *int                   `json:"weekly_goal,omitempty"`
	MonthlyGoal   *int                   `json:"monthly_goal,omitempty"`
	YearlyGoal    *int                   `json:"yearly_goal,omitempty"`
	IsActive      *bool                  `json:"is_active,omitempty"`
}

// UpdateDefinitionRequest leaves omitted fields unchanged. An explicit null
// default_amount clears it.
type UpdateDefinitionRequest struct {
	Name          *string                 `json:"name,omitempty"`
	Schedules     *[]ScheduleEntryRequest `json:"schedules,omitempty"`
	Priority      *int                    `json:"priority,omitempty"`
	TrackBy       *string                 `json:"track_by,omitempty"`
	Categories    *[]string               `json:"categories,omitempty"`
	DefaultAmount *float64                `json:"default_amount,omitempty" nullable:"true"`
	DailyGoal     *int                    `json:"daily_goal,omitempty"`
	WeeklyGoal    *int                    `json:"weekly_goal,omitempty"`
	MonthlyGoal   *int                    `json:"monthly_goal,omitempty"`
	YearlyGoal    *int                    `json:"yearly_goal,omitempty"`
	IsActive      *bool                   `json:"is_active,omitempty"`
}

type CreateLogEntryRequest struct {
	Name        *string  `json:"name,omitempty"`
	Amount      *float64 `json:"amount,omitempty"`
	Description string   `json:"description,omitempty"`
	Category    *string  `json:"category,omitempty"`
	ClientRef   string   `json:"client_ref,omitempty" maxLength:"64"`
}

type DevLoginRequest struct {
	UserID string `json:"user_id"`
	// TTL is a Go duration string, e.g. "24h".
	TTL string `json:"ttl,omitempty"`
}

// Responses

type DevLoginResponse struct {
	Token string `json:"token"`
}

type WhoAmIResponse struct {
	UserID string `json:"user_id"`
	Source string `json:"source"`
}

type DefinitionResponse struct {
	ID            int64                  `json:"id"`
	UserID        string                 `json:"user_id"`
	Name          string                 `json:"name"`
	Schedules     []domain.ScheduleEntry `json:"schedules"`
	Scheduled     bool                   `json:"scheduled"`
	Priority      int                    `json:"priority"`
	TrackBy       string                 `json:"track_by"`
	Categories    []string               `json:"categories"`
	DefaultAmount *float64               `json:"default_amount"`
	DailyGoal     int                    `json:"daily_goal"`
	WeeklyGoal    int                    `json:"weekly_goal"`
	MonthlyGoal   int                    `json:"monthly_goal"`
	YearlyGoal    int                    `json:"yearly_goal"`
	IsActive      bool                   `json:"is_active"`
	CreatedAt     string                 `json:"created_at" format:"date-time"`
	UpdatedAt     string                 `json:"updated_at" format:"date-time"`
}

type LogEntryResponse struct {
	ID           int64     `json:"id"`
	DefinitionID int64     `json:"definition_id"`
	UserID       string    `json:"user_id"`
	Name         string    `json:"name"`
	Amount       *float64  `json:"amount"`
	Description  string    `json:"description"`
	Category     *string   `json:"category"`
	ClientRef    string    `json:"client_ref,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type CurrentTaskResponse struct {
	Kind            string     `json:"kind" enum:"scheduled,unscheduled"`
	DefinitionID    int64      `json:"definition_id"`
	Name            string     `json:"name"`
	Priority        int        `json:"priority"`
	Time            string     `json:"time,omitempty"`
	ScheduledAt     *time.Time `json:"scheduled_at,omitempty"`
	Category        string     `json:"category,omitempty"`
	LastCompletedAt *time.Time `json:"last_completed_at,omitempty"`
}

type CurrentResponse struct {
	UserID string               `json:"user_id"`
	Now    time.Time            `json:"now"`
	Idle   bool                 `json:"idle"`
	Task   *CurrentTaskResponse `json:"task,omitempty"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	UserID     string         `json:"user_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func scheduleEntries(in []ScheduleEntryRequest) []domain.ScheduleEntry {
	out := make([]domain.ScheduleEntry, 0, len(in))
	for _, s := range in {
		out = append(out, domain.ScheduleEntry{DayOfWeek: s.DayOfWeek, Times: s.Times})
	}
	return out
}

func definitionResponse(d domain.TaskDefinition) DefinitionResponse {
	return DefinitionResponse{
		ID:            d.ID,
		UserID:        d.UserID,
		Name:          d.Name,
		Schedules:     nonNilSlice(d.Schedules),
		Scheduled:     d.Scheduled(),
		Priority:      d.Priority,
		TrackBy:       d.TrackBy,
		Categories:    nonNilSlice(d.Categories),
		DefaultAmount: d.DefaultAmount,
		DailyGoal:     d.Goals.Daily,
		WeeklyGoal:    d.Goals.Weekly,
		MonthlyGoal:   d.Goals.Monthly,
		YearlyGoal:    d.Goals.Yearly,
		IsActive:      d.Active,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

func mapDefinitions(items []domain.TaskDefinition) []DefinitionResponse {
	out := make([]DefinitionResponse, 0, len(items))
	for _, d := range items {
		out = append(out, definitionResponse(d))
	}
	return out
}

func logEntryResponse(e domain.LogEntry) LogEntryResponse {
	return LogEntryResponse{
		ID:           e.ID,
		DefinitionID: e.DefinitionID,
		UserID:       e.UserID,
		Name:         e.Name,
		Amount:       e.Amount,
		Description:  e.Description,
		Category:     e.Category,
		ClientRef:    e.ClientRef,
		CreatedAt:    e.CreatedAt,
	}
}

func mapLogEntries(items []domain.LogEntry) []LogEntryResponse {
	out := make([]LogEntryResponse, 0, len(items))
	for _, e := range items {
		out = append(out, logEntryResponse(e))
	}
	return out
}

func currentTaskResponse(c scheduler.Current) *CurrentTaskResponse {
	res := &CurrentTaskResponse{
		Kind:            c.Kind.String(),
		DefinitionID:    c.DefinitionID,
		Name:            c.Name,
		Priority:        c.Priority,
		Category:        c.Category,
		LastCompletedAt: c.LastCompletedAt,
	}
	if c.Kind == scheduler.KindScheduled {
		at := c.ScheduledAt
		res.Time = c.HHMM
		res.ScheduledAt = &at
	}
	return res
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		UserID:     e.UserID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

// JSON helpers

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil || obj == nil {
		return map[string]any{}
	}
	return obj
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
