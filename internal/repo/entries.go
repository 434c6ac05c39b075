package repo

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"cadence/internal/domain"
)

const entryColumns = `id,definition_id,user_id,name,amount,description,category,COALESCE(client_ref,''),created_at`

func scanEntry(row scanner) (domain.LogEntry, error) {
	var (
		e        domain.LogEntry
		amount   sql.NullFloat64
		category sql.NullString
		created  string
	)
	err := row.Scan(&e.ID, &e.DefinitionID, &e.UserID, &e.Name, &amount, &e.Description, &category, &e.ClientRef, &created)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	if amount.Valid {
		v := amount.Float64
		e.Amount = &v
	}
	if category.Valid {
		v := category.String
		e.Category = &v
	}
	e.CreatedAt, err = parseTS(created)
	return e, err
}

// InsertLogEntryTx appends e and returns its new id.
func (r Repo) InsertLogEntryTx(ctx context.Context, tx *sql.Tx, e domain.LogEntry) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO log_entries(definition_id,user_id,name,amount,description,category,client_ref,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		e.DefinitionID, e.UserID, e.Name, nullableFloatPtr(e.Amount), e.Description, nullableStringPtr(e.Category), nullable(e.ClientRef), FormatTS(e.CreatedAt))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetLogEntry(ctx context.Context, id int64) (domain.LogEntry, error) {
	return scanEntry(r.DB.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM log_entries WHERE id=?`, id))
}

func (r Repo) GetLogEntryTx(ctx context.Context, tx *sql.Tx, id int64) (domain.LogEntry, error) {
	return scanEntry(tx.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM log_entries WHERE id=?`, id))
}

// FindLogEntryByRefTx looks up an entry by its client reference.
func (r Repo) FindLogEntryByRefTx(ctx context.Context, tx *sql.Tx, definitionID int64, ref string) (domain.LogEntry, error) {
	return findLogEntryByRef(ctx, tx, definitionID, ref)
}

func (r Repo) FindLogEntryByRef(ctx context.Context, definitionID int64, ref string) (domain.LogEntry, error) {
	return findLogEntryByRef(ctx, r.DB, definitionID, ref)
}

func findLogEntryByRef(ctx context.Context, q queryer, definitionID int64, ref string) (domain.LogEntry, error) {
	return scanEntry(q.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM log_entries WHERE definition_id=? AND client_ref=?`, definitionID, ref))
}

func (r Repo) DeleteLogEntryTx(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM log_entries WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type LogEntryFilters struct {
	DefinitionID int64
	UserID       string
	// From and To bound created_at as [From, To) when non-zero.
	From  time.Time
	To    time.Time
	Limit int
}

// ListLogEntries returns matching entries newest first.
func (r Repo) ListLogEntries(ctx context.Context, f LogEntryFilters) ([]domain.LogEntry, error) {
	var (
		clauses []string
		args    []any
	)
	if f.DefinitionID != 0 {
		clauses = append(clauses, "definition_id=?")
		args = append(args, f.DefinitionID)
	}
	if f.UserID != "" {
		clauses = append(clauses, "user_id=?")
		args = append(args, f.UserID)
	}
	if !f.From.IsZero() {
		clauses = append(clauses, "created_at>=?")
		args = append(args, FormatTS(f.From))
	}
	if !f.To.IsZero() {
		clauses = append(clauses, "created_at<?")
		args = append(args, FormatTS(f.To))
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + entryColumns + ` FROM log_entries ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.LogEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
