// Package remote serves the scheduler from the HTTP API.
package remote

import (
	"context"
	"io"
	"log"
	"time"

	"cadence/internal/domain"
	"cadence/internal/scheduler"
	cadencesdk "cadence/sdk/go"
)

// Store adapts the API client to scheduler.Store.
type Store struct {
	Client *cadencesdk.Client
	Logger *log.Logger
}

var _ scheduler.Store = Store{}

func (s Store) logger() *log.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return log.New(io.Discard, "", 0)
}

func (s Store) ListDefinitions(ctx context.Context, userID string, activeOnly bool) ([]domain.TaskDefinition, error) {
	items, err := s.Client.ListDefinitions(ctx, userID, activeOnly)
	if err != nil {
		return nil, scheduler.NetworkError{Op: "list definitions", Err: err}
	}
	out := make([]domain.TaskDefinition, 0, len(items))
	for _, d := range items {
		out = append(out, s.toDefinition(d))
	}
	return out, nil
}

func (s Store) ListLogEntries(ctx context.Context, definitionID int64) ([]domain.LogEntry, error) {
	items, err := s.Client.ListLogEntries(ctx, definitionID)
	if err != nil {
		return nil, scheduler.NetworkError{Op: "list log entries", DefinitionID: definitionID, Err: err}
	}
	out := make([]domain.LogEntry, 0, len(items))
	for _, e := range items {
		if e.DefinitionID == 0 {
			e.DefinitionID = definitionID
		}
		out = append(out, ToLogEntry(e))
	}
	return out, nil
}

func (s Store) CreateLogEntry(ctx context.Context, in domain.NewLogEntry) (domain.LogEntry, error) {
	req := cadencesdk.NewLogEntry{
		Amount:      in.Amount,
		Description: in.Description,
		Category:    in.Category,
		ClientRef:   in.ClientRef,
	}
	if in.Name != "" {
		name := in.Name
		req.Name = &name
	}
	e, err := s.Client.CreateLogEntry(ctx, in.DefinitionID, req)
	if err != nil {
		return domain.LogEntry{}, err
	}
	if e.DefinitionID == 0 {
		e.DefinitionID = in.DefinitionID
	}
	return ToLogEntry(e), nil
}

// toDefinition normalizes a wire definition. Schedule times that are not
// valid HH:MM never reach the scheduler.
func (s Store) toDefinition(d cadencesdk.Definition) domain.TaskDefinition {
	var schedules []domain.ScheduleEntry
	for _, entry := range d.Schedules {
		if entry.DayOfWeek < 0 || entry.DayOfWeek > 6 {
			s.logger().Printf("definition %d: dropping schedule for weekday %d", d.ID, entry.DayOfWeek)
			continue
		}
		var times []string
		for _, t := range entry.Times {
			if _, _, err := domain.ParseHHMM(t); err != nil {
				s.logger().Printf("definition %d: dropping time %q", d.ID, t)
				continue
			}
			times = append(times, t)
		}
		schedules = append(schedules, domain.ScheduleEntry{DayOfWeek: entry.DayOfWeek, Times: times})
	}
	return domain.Normalize(domain.TaskDefinition{
		ID:            d.ID,
		UserID:        d.UserID,
		Name:          d.Name,
		Schedules:     schedules,
		Priority:      clampPriority(d.Priority),
		TrackBy:       d.TrackBy,
		Categories:    d.Categories,
		DefaultAmount: d.DefaultAmount,
		Goals: domain.Goals{
			Daily:   d.DailyGoal,
			Weekly:  d.WeeklyGoal,
			Monthly: d.MonthlyGoal,
			Yearly:  d.YearlyGoal,
		},
		Active:    d.IsActive,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	})
}

func clampPriority(p int) int {
	switch {
	case p < 1:
		return 1
	case p > 10:
		return 10
	default:
		return p
	}
}

// ToLogEntry converts a wire entry.
func ToLogEntry(e cadencesdk.LogEntry) domain.LogEntry {
	return domain.LogEntry{
		ID:           e.ID,
		DefinitionID: e.DefinitionID,
		UserID:       e.UserID,
		Name:         e.Name,
		Amount:       e.Amount,
		Description:  e.Description,
		Category:     e.Category,
		ClientRef:    e.ClientRef,
		CreatedAt:    e.CreatedAt.UTC(),
	}
}

// ToDefinition converts a wire definition without logging dropped times.
func ToDefinition(d cadencesdk.Definition) domain.TaskDefinition {
	return Store{}.toDefinition(d)
}

// Dial builds a store for baseURL, authenticating with token when set and
// with userHeader otherwise.
func Dial(baseURL, token, userHeader string, timeout time.Duration) Store {
	c := cadencesdk.New(baseURL, token)
	c.UserHeader = userHeader
	if timeout > 0 {
		c.Timeout = timeout
	}
	return Store{Client: c}
}
