package domain

import (
	"sort"
	"time"
)

// ScheduleEntry lists the trigger times for one weekday (0 = Sunday).
type ScheduleEntry struct {
	DayOfWeek int      `json:"day_of_week" minimum:"0" maximum:"6"`
	Times     []string `json:"times"`
}

type Goals struct {
	Daily   int `json:"daily"`
	Weekly  int `json:"weekly"`
	Monthly int `json:"monthly"`
	Yearly  int `json:"yearly"`
}

// TaskDefinition is a recurring task template. An empty schedule makes it
// an unscheduled loop task.
type TaskDefinition struct {
	ID            int64           `json:"id"`
	UserID        string          `json:"user_id"`
	Name          string          `json:"name"`
	Schedules     []ScheduleEntry `json:"schedules"`
	Priority      int             `json:"priority" minimum:"1" maximum:"10"`
	TrackBy       string          `json:"track_by"`
	Categories    []string        `json:"categories"`
	DefaultAmount *float64        `json:"default_amount,omitempty"`
	Goals         Goals           `json:"goals"`
	Active        bool            `json:"is_active"`
	CreatedAt     string          `json:"created_at" format:"date-time"`
	UpdatedAt     string          `json:"updated_at" format:"date-time"`
}

// Scheduled reports whether any weekday carries at least one time.
func (d TaskDefinition) Scheduled() bool {
	for _, s := range d.Schedules {
		if len(s.Times) > 0 {
			return true
		}
	}
	return false
}

// TimesOn returns the sorted trigger times for the weekday.
func (d TaskDefinition) TimesOn(day time.Weekday) []string {
	var out []string
	for _, s := range d.Schedules {
		if s.DayOfWeek == int(day) {
			out = append(out, s.Times...)
		}
	}
	sort.Strings(out)
	return out
}

// LogEntry is one append-only completion record.
type LogEntry struct {
	ID           int64     `json:"id"`
	DefinitionID int64     `json:"definition_id"`
	UserID       string    `json:"user_id,omitempty"`
	Name         string    `json:"name,omitempty"`
	Amount       *float64  `json:"amount,omitempty"`
	Description  string    `json:"description,omitempty"`
	Category     *string   `json:"category,omitempty"`
	ClientRef    string    `json:"client_ref,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewLogEntry is the payload for appending a completion.
type NewLogEntry struct {
	DefinitionID int64
	Name         string
	Amount       *float64
	Description  string
	Category     *string
	ClientRef    string
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	UserID     string `json:"user_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload_json"`
}
