package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"cadence/internal/domain"
)

const definitionColumns = `id,user_id,name,schedules_json,priority,track_by,categories_json,default_amount,goal_daily,goal_weekly,goal_monthly,goal_yearly,is_active,created_at,updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanDefinition(row scanner) (domain.TaskDefinition, error) {
	var (
		d          domain.TaskDefinition
		schedules  string
		categories string
		amount     sql.NullFloat64
		active     int
	)
	err := row.Scan(&d.ID, &d.UserID, &d.Name, &schedules, &d.Priority, &d.TrackBy, &categories, &amount,
		&d.Goals.Daily, &d.Goals.Weekly, &d.Goals.Monthly, &d.Goals.Yearly, &active, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	if err != nil {
		return d, err
	}
	if err := json.Unmarshal([]byte(schedules), &d.Schedules); err != nil {
		return d, fmt.Errorf("definition %d schedules: %w", d.ID, err)
	}
	if err := json.Unmarshal([]byte(categories), &d.Categories); err != nil {
		return d, fmt.Errorf("definition %d categories: %w", d.ID, err)
	}
	if d.Schedules == nil {
		d.Schedules = []domain.ScheduleEntry{}
	}
	if d.Categories == nil {
		d.Categories = []string{}
	}
	if amount.Valid {
		v := amount.Float64
		d.DefaultAmount = &v
	}
	d.Active = active != 0
	return d, nil
}

func definitionArgs(d domain.TaskDefinition) ([]any, error) {
	schedules := d.Schedules
	if schedules == nil {
		schedules = []domain.ScheduleEntry{}
	}
	sj, err := json.Marshal(schedules)
	if err != nil {
		return nil, err
	}
	categories := d.Categories
	if categories == nil {
		categories = []string{}
	}
	cj, err := json.Marshal(categories)
	if err != nil {
		return nil, err
	}
	active := 0
	if d.Active {
		active = 1
	}
	return []any{d.Name, string(sj), d.Priority, d.TrackBy, string(cj), nullableFloatPtr(d.DefaultAmount),
		d.Goals.Daily, d.Goals.Weekly, d.Goals.Monthly, d.Goals.Yearly, active}, nil
}

// InsertDefinitionTx stores d and returns its new id.
func (r Repo) InsertDefinitionTx(ctx context.Context, tx *sql.Tx, d domain.TaskDefinition) (int64, error) {
	args, err := definitionArgs(d)
	if err != nil {
		return 0, err
	}
	args = append([]any{d.UserID}, args...)
	args = append(args, d.CreatedAt, d.UpdatedAt)
	res, err := tx.ExecContext(ctx, `INSERT INTO task_definitions(user_id,name,schedules_json,priority,track_by,categories_json,default_amount,goal_daily,goal_weekly,goal_monthly,goal_yearly,is_active,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateDefinitionTx overwrites every mutable column of d.
func (r Repo) UpdateDefinitionTx(ctx context.Context, tx *sql.Tx, d domain.TaskDefinition) error {
	args, err := definitionArgs(d)
	if err != nil {
		return err
	}
	args = append(args, d.UpdatedAt, d.ID)
	res, err := tx.ExecContext(ctx, `UPDATE task_definitions SET name=?,schedules_json=?,priority=?,track_by=?,categories_json=?,default_amount=?,goal_daily=?,goal_weekly=?,goal_monthly=?,goal_yearly=?,is_active=?,updated_at=? WHERE id=?`, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteDefinitionTx removes a definition; its log entries cascade.
func (r Repo) DeleteDefinitionTx(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM task_definitions WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetDefinition(ctx context.Context, id int64) (domain.TaskDefinition, error) {
	return getDefinition(ctx, r.DB, id)
}

func (r Repo) GetDefinitionTx(ctx context.Context, tx *sql.Tx, id int64) (domain.TaskDefinition, error) {
	return getDefinition(ctx, tx, id)
}

func getDefinition(ctx context.Context, q queryer, id int64) (domain.TaskDefinition, error) {
	return scanDefinition(q.QueryRowContext(ctx, `SELECT `+definitionColumns+` FROM task_definitions WHERE id=?`, id))
}

type DefinitionFilters struct {
	UserID     string
	ActiveOnly bool
}

// ListDefinitions returns definitions ordered by id.
func (r Repo) ListDefinitions(ctx context.Context, f DefinitionFilters) ([]domain.TaskDefinition, error) {
	query := `SELECT ` + definitionColumns + ` FROM task_definitions WHERE user_id=?`
	args := []any{f.UserID}
	if f.ActiveOnly {
		query += ` AND is_active=1`
	}
	query += ` ORDER BY id ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.TaskDefinition{}
	for rows.Next() {
		d, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}
