package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"cadence/internal/config"
	"cadence/internal/domain"
	"cadence/internal/events"
	"cadence/internal/progress"
	"cadence/internal/repo"
	"cadence/internal/scheduler"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
	Logger *log.Logger
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) logger() *log.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return log.Default()
}

var _ scheduler.Store = Engine{}

// DefinitionCreateOptions are parameters for creating a definition.
type DefinitionCreateOptions struct {
	UserID        string
	Name          string
	Schedules     []domain.ScheduleEntry
	Priority      int
	TrackBy       string
	Categories    []string
	DefaultAmount *float64
	Goals         domain.Goals
	// Active defaults to true when nil.
	Active *bool
}

func (e Engine) CreateDefinition(ctx context.Context, opts DefinitionCreateOptions) (domain.TaskDefinition, error) {
	if opts.Priority == 0 {
		opts.Priority = 1
	}
	active := true
	if opts.Active != nil {
		active = *opts.Active
	}
	ts := e.now().UTC().Format(time.RFC3339)
	d := domain.TaskDefinition{
		UserID:        strings.TrimSpace(opts.UserID),
		Name:          opts.Name,
		Schedules:     opts.Schedules,
		Priority:      opts.Priority,
		TrackBy:       opts.TrackBy,
		Categories:    opts.Categories,
		DefaultAmount: opts.DefaultAmount,
		Goals:         opts.Goals,
		Active:        active,
		CreatedAt:     ts,
		UpdatedAt:     ts,
	}
	if err := domain.ValidateDefinition(d); err != nil {
		return domain.TaskDefinition{}, err
	}
	d = domain.Normalize(d)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TaskDefinition{}, err
	}
	defer tx.Rollback()

	id, err := e.Repo.InsertDefinitionTx(ctx, tx, d)
	if err != nil {
		return domain.TaskDefinition{}, fmt.Errorf("insert definition: %w", err)
	}
	d.ID = id
	if err := e.Events.Append(ctx, tx, events.DefinitionCreated, d.UserID, "definition", idString(id), events.EventPayload{
		"name":      d.Name,
		"scheduled": d.Scheduled(),
		"priority":  d.Priority,
	}); err != nil {
		return domain.TaskDefinition{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TaskDefinition{}, err
	}
	return d, nil
}

func (e Engine) GetDefinition(ctx context.Context, id int64) (domain.TaskDefinition, error) {
	return e.Repo.GetDefinition(ctx, id)
}

// ListDefinitions returns a user's definitions ordered by id.
func (e Engine) ListDefinitions(ctx context.Context, userID string, activeOnly bool) ([]domain.TaskDefinition, error) {
	return e.Repo.ListDefinitions(ctx, repo.DefinitionFilters{UserID: userID, ActiveOnly: activeOnly})
}

// DefinitionUpdateOptions encapsulates allowed updates. Nil fields are left
// unchanged.
type DefinitionUpdateOptions struct {
	ID            int64
	Name          *string
	Schedules     *[]domain.ScheduleEntry
	Priority      *int
	TrackBy       *string
	Categories    *[]string
	DefaultAmount *float64
	// ClearDefaultAmount sets the default amount to null.
	ClearDefaultAmount bool
	DailyGoal          *int
	WeeklyGoal         *int
	MonthlyGoal        *int
	YearlyGoal         *int
	Active             *bool
}

func (e Engine) UpdateDefinition(ctx context.Context, opts DefinitionUpdateOptions) (domain.TaskDefinition, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TaskDefinition{}, err
	}
	defer tx.Rollback()

	d, err := e.Repo.GetDefinitionTx(ctx, tx, opts.ID)
	if err != nil {
		return d, err
	}
	changed := []string{}
	if opts.Name != nil {
		d.Name = *opts.Name
		changed = append(changed, "name")
	}
	if opts.Schedules != nil {
		d.Schedules = *opts.Schedules
		changed = append(changed, "schedules")
	}
	if opts.Priority != nil {
		d.Priority = *opts.Priority
		changed = append(changed, "priority")
	}
	if opts.TrackBy != nil {
		d.TrackBy = *opts.TrackBy
		changed = append(changed, "track_by")
	}
	if opts.Categories != nil {
		d.Categories = *opts.Categories
		changed = append(changed, "categories")
	}
	if opts.ClearDefaultAmount {
		d.DefaultAmount = nil
		changed = append(changed, "default_amount")
	} else if opts.DefaultAmount != nil {
		v := *opts.DefaultAmount
		d.DefaultAmount = &v
		changed = append(changed, "default_amount")
	}
	for name, goal := range map[string]struct {
		in  *int
		out *int
	}{
		"goals.daily":   {opts.DailyGoal, &d.Goals.Daily},
		"goals.weekly":  {opts.WeeklyGoal, &d.Goals.Weekly},
		"goals.monthly": {opts.MonthlyGoal, &d.Goals.Monthly},
		"goals.yearly":  {opts.YearlyGoal, &d.Goals.Yearly},
	} {
		if goal.in != nil {
			*goal.out = *goal.in
			changed = append(changed, name)
		}
	}
	if opts.Active != nil {
		d.Active = *opts.Active
		changed = append(changed, "is_active")
	}
	if len(changed) == 0 {
		return d, nil
	}
	if err := domain.ValidateDefinition(d); err != nil {
		return domain.TaskDefinition{}, err
	}
	d = domain.Normalize(d)
	sort.Strings(changed)
	d.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateDefinitionTx(ctx, tx, d); err != nil {
		return domain.TaskDefinition{}, err
	}
	if err := e.Events.Append(ctx, tx, events.DefinitionUpdated, d.UserID, "definition", idString(d.ID), events.EventPayload{"fields": changed}); err != nil {
		return domain.TaskDefinition{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TaskDefinition{}, err
	}
	return d, nil
}

// DeleteDefinition removes a definition together with its log entries.
func (e Engine) DeleteDefinition(ctx context.Context, id int64) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	d, err := e.Repo.GetDefinitionTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteDefinitionTx(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.DefinitionDeleted, d.UserID, "definition", idString(id), events.EventPayload{"name": d.Name}); err != nil {
		return err
	}
	return tx.Commit()
}

// ListLogEntries returns a definition's entries, newest first.
func (e Engine) ListLogEntries(ctx context.Context, definitionID int64) ([]domain.LogEntry, error) {
	if _, err := e.Repo.GetDefinition(ctx, definitionID); err != nil {
		return nil, err
	}
	return e.Repo.ListLogEntries(ctx, repo.LogEntryFilters{DefinitionID: definitionID})
}

// CreateLogEntry appends a completion. A repeated create with the same
// client reference returns the entry that already exists.
func (e Engine) CreateLogEntry(ctx context.Context, in domain.NewLogEntry) (domain.LogEntry, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.LogEntry{}, err
	}
	defer tx.Rollback()

	def, err := e.Repo.GetDefinitionTx(ctx, tx, in.DefinitionID)
	if err != nil {
		return domain.LogEntry{}, err
	}
	ref := strings.TrimSpace(in.ClientRef)
	if ref != "" {
		existing, err := e.Repo.FindLogEntryByRefTx(ctx, tx, def.ID, ref)
		if err == nil {
			e.logger().Printf("log entry %s for definition %d already recorded as %d", ref, def.ID, existing.ID)
			return existing, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return domain.LogEntry{}, err
		}
	}

	entry := domain.LogEntry{
		DefinitionID: def.ID,
		UserID:       def.UserID,
		Name:         strings.TrimSpace(in.Name),
		Amount:       in.Amount,
		Description:  strings.TrimSpace(in.Description),
		ClientRef:    ref,
		CreatedAt:    e.now().UTC(),
	}
	if entry.Name == "" {
		entry.Name = def.Name
	}
	if in.Category != nil && strings.TrimSpace(*in.Category) != "" {
		c := strings.TrimSpace(*in.Category)
		entry.Category = &c
	}
	id, err := e.Repo.InsertLogEntryTx(ctx, tx, entry)
	if err != nil {
		if ref != "" {
			// another create with the same ref may have committed first
			tx.Rollback()
			if existing, ferr := e.Repo.FindLogEntryByRef(ctx, def.ID, ref); ferr == nil {
				e.logger().Printf("log entry %s for definition %d raced; returning %d", ref, def.ID, existing.ID)
				return existing, nil
			}
		}
		return domain.LogEntry{}, fmt.Errorf("insert log entry: %w", err)
	}
	entry.ID = id
	payload := events.EventPayload{"definition_id": def.ID}
	if entry.Category != nil {
		payload["category"] = *entry.Category
	}
	if err := e.Events.Append(ctx, tx, events.EntryCreated, def.UserID, "entry", idString(id), payload); err != nil {
		return domain.LogEntry{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.LogEntry{}, err
	}
	// reload so the stored timestamp precision is what callers see
	return e.Repo.GetLogEntry(ctx, id)
}

func (e Engine) GetLogEntry(ctx context.Context, id int64) (domain.LogEntry, error) {
	return e.Repo.GetLogEntry(ctx, id)
}

func (e Engine) DeleteLogEntry(ctx context.Context, id int64) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	entry, err := e.Repo.GetLogEntryTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteLogEntryTx(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.EntryDeleted, entry.UserID, "entry", idString(id), events.EventPayload{"definition_id": entry.DefinitionID}); err != nil {
		return err
	}
	return tx.Commit()
}

// TodayEntries lists a user's entries for the current calendar day in loc.
func (e Engine) TodayEntries(ctx context.Context, userID string, loc *time.Location) ([]domain.LogEntry, error) {
	now := e.now().In(loc)
	y, m, d := now.Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, loc)
	to := time.Date(y, m, d+1, 0, 0, 0, 0, loc)
	return e.Repo.ListLogEntries(ctx, repo.LogEntryFilters{UserID: userID, From: from, To: to})
}

// Progress reports goal progress and streak for a definition.
func (e Engine) Progress(ctx context.Context, definitionID int64, loc *time.Location) (progress.Report, error) {
	def, err := e.Repo.GetDefinition(ctx, definitionID)
	if err != nil {
		return progress.Report{}, err
	}
	entries, err := e.Repo.ListLogEntries(ctx, repo.LogEntryFilters{DefinitionID: definitionID})
	if err != nil {
		return progress.Report{}, err
	}
	return progress.Compute(def, entries, e.now().In(loc)), nil
}

// Current evaluates the selector over stored history. Client-local skips
// are not known here.
func (e Engine) Current(ctx context.Context, userID string, loc *time.Location) (scheduler.Current, bool, error) {
	concurrency := 0
	if e.Config != nil {
		concurrency = e.Config.Concurrency()
	}
	s := scheduler.NewSession(e, scheduler.Options{
		UserID:           userID,
		Location:         loc,
		Now:              e.now,
		FetchConcurrency: concurrency,
		Logger:           e.logger(),
	})
	if err := s.Reload(ctx); err != nil {
		return scheduler.Current{}, false, err
	}
	cur, ok := s.Current()
	return cur, ok, nil
}

func (e Engine) ListEvents(ctx context.Context, f repo.EventFilters) ([]domain.Event, error) {
	return e.Repo.LatestEvents(ctx, f)
}

func idString(id int64) string {
	return strconv.FormatInt(id, 10)
}
